package gateway

import "testing"

func TestIngressFilterPrefix(t *testing.T) {
	ws := NewWebSocket("ws://unused", WSWithPrefix("!"))

	cases := []struct {
		msg  Message
		want bool
	}{
		{Message{Room: "r1", Msg: "!challenge @bob#1"}, true},
		{Message{Room: "r1", Msg: "  !accept abc  "}, true},
		{Message{Room: "r1", Msg: "hello there"}, false},
		{Message{Room: "r1", Msg: ""}, false},
		{Message{Room: "r1", Msg: "   "}, false},
	}
	for _, tc := range cases {
		if got := ws.accept(&tc.msg); got != tc.want {
			t.Errorf("accept(%q) = %v, want %v", tc.msg.Msg, got, tc.want)
		}
	}
	if ws.accept(nil) {
		t.Error("nil message must be dropped")
	}
}

func TestIngressFilterRooms(t *testing.T) {
	ws := NewWebSocket("ws://unused",
		WSWithPrefix("!"),
		WSWithAllowedRooms([]string{"lobby", " arena ", ""}),
	)

	if !ws.accept(&Message{Room: "lobby", Msg: "!help"}) {
		t.Error("allowed room was dropped")
	}
	if !ws.accept(&Message{Room: "arena", Msg: "!help"}) {
		t.Error("allowlist entries should be trimmed")
	}
	if ws.accept(&Message{Room: "random", Msg: "!help"}) {
		t.Error("unlisted room must be dropped")
	}

	// no allowlist means every room is served
	open := NewWebSocket("ws://unused", WSWithPrefix("!"))
	if !open.accept(&Message{Room: "anywhere", Msg: "!help"}) {
		t.Error("open ingress should serve all rooms")
	}
}

func TestIngressDeliverWithoutCallback(t *testing.T) {
	ws := NewWebSocket("ws://unused")
	// must not panic before OnMessage is set
	ws.deliver(&Message{Room: "r1", Msg: "!help"})

	var got *Message
	ws.OnMessage(func(m *Message) { got = m })
	ws.deliver(&Message{Room: "r1", Msg: "!help"})
	if got == nil || got.Msg != "!help" {
		t.Fatalf("callback not invoked: %+v", got)
	}
}

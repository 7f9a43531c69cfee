package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-duel-bot/internal/challenge"
	appcfg "github.com/park285/chess-duel-bot/internal/config"
	"github.com/park285/chess-duel-bot/internal/gateway"
	"github.com/park285/chess-duel-bot/internal/msgcat"
)

type sentPM struct {
	userID string
	text   string
}

// fakeSender records direct messages; an optional gate can hold up delivery
// to one user.
type fakeSender struct {
	pms      chan sentPM
	blockFor string
	gate     chan struct{}
}

func (f *fakeSender) SendDirect(_ context.Context, userID, message string) error {
	if f.blockFor != "" && userID == f.blockFor {
		<-f.gate
	}
	f.pms <- sentPM{userID: userID, text: message}
	return nil
}

func (f *fakeSender) SendMessage(_ context.Context, _, _ string) error { return nil }

func newTestBot(t *testing.T, sender gateway.Sender) *bot {
	t.Helper()
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat: %v", err)
	}
	return &bot{
		cfg:      &appcfg.AppConfig{BotPrefix: "!"},
		notifier: gateway.NewNotifier(sender, zap.NewNop()),
		cat:      cat,
		registry: challenge.NewRegistry(),
		logger:   zap.NewNop(),
	}
}

// Unanswered challenge runs out its TTL: the sweeper removes it and both
// parties hear about it, each message carrying the challenge id.
func TestExpiryNotifiesBothParties(t *testing.T) {
	sender := &fakeSender{pms: make(chan sentPM, 4)}
	b := newTestBot(t, sender)

	rec, err := b.registry.Issue("alice", "bob")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	s := challenge.NewSweeper(b.registry, time.Nanosecond, 5*time.Millisecond, b.notifyExpired)
	s.Start()
	defer s.Stop()

	got := map[string]string{}
	for len(got) < 2 {
		select {
		case pm := <-sender.pms:
			got[pm.userID] = pm.text
		case <-time.After(2 * time.Second):
			t.Fatalf("expiry notifications incomplete: %v", got)
		}
	}

	for _, uid := range []string{"alice", "bob"} {
		if !strings.Contains(got[uid], rec.ChallengeID) {
			t.Fatalf("notification for %s missing challenge id: %q", uid, got[uid])
		}
	}
	if b.registry.Count() != 0 {
		t.Fatalf("registry should be empty after expiry")
	}
}

// An unreachable challenger must not delay the opponent's expiry notice.
func TestExpiryNotificationsIndependent(t *testing.T) {
	sender := &fakeSender{
		pms:      make(chan sentPM, 4),
		blockFor: "alice",
		gate:     make(chan struct{}),
	}
	b := newTestBot(t, sender)

	b.notifyExpired(challenge.Record{
		ChallengeID:  "ch-1",
		ChallengerID: "alice",
		OpponentID:   "bob",
		CreatedAt:    time.Now(),
	})

	// bob's PM arrives while alice's delivery is still stuck
	select {
	case pm := <-sender.pms:
		if pm.userID != "bob" {
			t.Fatalf("expected bob first, got %s", pm.userID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("opponent notification blocked behind challenger delivery")
	}

	close(sender.gate)
	select {
	case pm := <-sender.pms:
		if pm.userID != "alice" {
			t.Fatalf("expected alice after gate, got %s", pm.userID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("challenger notification never delivered")
	}
}

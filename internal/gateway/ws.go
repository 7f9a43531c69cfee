package gateway

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// WebSocket is the inbound bridge connection. It filters traffic at the
// boundary: only command messages for rooms the bot serves reach the
// registered callback. A broken connection is redialed with backoff until
// the attempt budget runs out.
type WebSocket struct {
	wsURL          string
	headerProvider HeaderProvider
	allowedRooms   map[string]struct{}
	prefix         string
	maxReconnects  int
	pingInterval   time.Duration

	mu    sync.RWMutex
	conn  *websocket.Conn
	state WebSocketState

	onMessage MessageCallback
	onState   StateCallback

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

var _ Ingress = (*WebSocket)(nil)

type WSOption func(*WebSocket)

// WSWithHeaderProvider injects handshake headers (e.g. X-User-*).
func WSWithHeaderProvider(h HeaderProvider) WSOption {
	return func(ws *WebSocket) { ws.headerProvider = h }
}

// WSWithAllowedRooms restricts delivery to the given rooms. Empty means all
// rooms.
func WSWithAllowedRooms(rooms []string) WSOption {
	return func(ws *WebSocket) {
		for _, r := range rooms {
			if r = strings.TrimSpace(r); r != "" {
				if ws.allowedRooms == nil {
					ws.allowedRooms = make(map[string]struct{})
				}
				ws.allowedRooms[r] = struct{}{}
			}
		}
	}
}

// WSWithPrefix drops inbound messages that do not start with the command
// prefix, so non-command chatter never reaches the handler.
func WSWithPrefix(prefix string) WSOption {
	return func(ws *WebSocket) { ws.prefix = strings.TrimSpace(prefix) }
}

func WSWithMaxReconnects(n int) WSOption {
	return func(ws *WebSocket) { ws.maxReconnects = n }
}

func NewWebSocket(wsURL string, opts ...WSOption) *WebSocket {
	ws := &WebSocket{
		wsURL:         wsURL,
		state:         WSStateDisconnected,
		maxReconnects: 5,
		pingInterval:  30 * time.Second,
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ws)
	}
	return ws
}

// OnMessage sets the single delivery callback. Must be called before
// Connect.
func (ws *WebSocket) OnMessage(cb MessageCallback) {
	ws.mu.Lock()
	ws.onMessage = cb
	ws.mu.Unlock()
}

// OnStateChange sets the connection-state callback. Must be called before
// Connect.
func (ws *WebSocket) OnStateChange(cb StateCallback) {
	ws.mu.Lock()
	ws.onState = cb
	ws.mu.Unlock()
}

// Connect dials the bridge and starts the read loop. The first dial failure
// is returned to the caller; later drops are redialed internally.
func (ws *WebSocket) Connect(ctx context.Context) error {
	ws.mu.Lock()
	if ws.state == WSStateConnected || ws.state == WSStateConnecting {
		ws.mu.Unlock()
		return nil
	}
	ws.mu.Unlock()

	ws.rootCtx, ws.rootCancel = context.WithCancel(context.Background())
	ws.setState(WSStateConnecting)

	conn, err := ws.dial(ctx)
	if err != nil {
		ws.setState(WSStateFailed)
		return err
	}
	ws.setConn(conn)
	ws.setState(WSStateConnected)

	ws.wg.Add(1)
	go ws.run()
	return nil
}

func (ws *WebSocket) State() WebSocketState {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.state
}

// Close tears the connection down and waits for the read loop, bounded by
// ctx. Safe to call more than once.
func (ws *WebSocket) Close(ctx context.Context) error {
	ws.stopOnce.Do(func() {
		close(ws.stopCh)
		_ = ws.closeConn(websocket.StatusNormalClosure, "close")
		if ws.rootCancel != nil {
			ws.rootCancel()
		}
	})

	done := make(chan struct{})
	go func() {
		ws.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// run owns the connection for its whole lifetime: read until the connection
// breaks, then redial, until stopped or out of attempts.
func (ws *WebSocket) run() {
	defer ws.wg.Done()
	for {
		ws.readLoop()
		if ws.isStopping() {
			return
		}
		ws.setState(WSStateReconnecting)
		if !ws.redial() {
			ws.setState(WSStateFailed)
			return
		}
		ws.setState(WSStateConnected)
	}
}

func (ws *WebSocket) readLoop() {
	conn := ws.current()
	if conn == nil {
		return
	}

	// the pinger shares the connection's lifetime; a dead link is closed so
	// the blocked read returns and run() redials
	pingStop := make(chan struct{})
	ws.wg.Add(1)
	go ws.pinger(conn, pingStop)
	defer close(pingStop)

	for {
		var msg Message
		if err := wsjson.Read(ws.rootCtx, conn, &msg); err != nil {
			_ = ws.closeConn(websocket.StatusGoingAway, "reconnect")
			return
		}
		if !ws.accept(&msg) {
			continue
		}
		ws.deliver(&msg)
	}
}

// accept is the ingress filter: non-empty command text, and the room must be
// served when an allowlist is configured.
func (ws *WebSocket) accept(msg *Message) bool {
	if msg == nil {
		return false
	}
	text := strings.TrimSpace(msg.Msg)
	if text == "" {
		return false
	}
	if ws.prefix != "" && !strings.HasPrefix(text, ws.prefix) {
		return false
	}
	if len(ws.allowedRooms) > 0 {
		if _, ok := ws.allowedRooms[msg.Room]; !ok {
			return false
		}
	}
	return true
}

func (ws *WebSocket) deliver(msg *Message) {
	ws.mu.RLock()
	cb := ws.onMessage
	ws.mu.RUnlock()
	if cb != nil {
		cb(msg)
	}
}

func (ws *WebSocket) pinger(conn *websocket.Conn, stop <-chan struct{}) {
	defer ws.wg.Done()
	t := time.NewTicker(ws.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-stop:
			return
		case <-ws.stopCh:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(ws.rootCtx, 3*time.Second)
			err := conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				_ = conn.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

func (ws *WebSocket) redial() bool {
	for attempt := 1; attempt <= ws.maxReconnects; attempt++ {
		select {
		case <-ws.stopCh:
			return false
		case <-time.After(backoffDuration(attempt)):
		}
		dialCtx, cancel := context.WithTimeout(ws.rootCtx, 10*time.Second)
		conn, err := ws.dial(dialCtx)
		cancel()
		if err != nil {
			continue
		}
		ws.setConn(conn)
		return true
	}
	return false
}

func (ws *WebSocket) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, ws.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      ws.buildHeaders(),
	})
	return conn, err
}

func (ws *WebSocket) current() *websocket.Conn {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.conn
}

func (ws *WebSocket) setConn(conn *websocket.Conn) {
	ws.mu.Lock()
	ws.conn = conn
	ws.mu.Unlock()
}

func (ws *WebSocket) closeConn(code websocket.StatusCode, reason string) error {
	ws.mu.Lock()
	conn := ws.conn
	ws.conn = nil
	ws.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close(code, reason)
}

func (ws *WebSocket) setState(state WebSocketState) {
	ws.mu.Lock()
	ws.state = state
	cb := ws.onState
	ws.mu.Unlock()
	if cb != nil {
		cb(state)
	}
}

func (ws *WebSocket) isStopping() bool {
	select {
	case <-ws.stopCh:
		return true
	default:
		return false
	}
}

func (ws *WebSocket) buildHeaders() http.Header {
	hdr := http.Header{}
	if ws.headerProvider == nil {
		return hdr
	}
	for k, v := range ws.headerProvider() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}

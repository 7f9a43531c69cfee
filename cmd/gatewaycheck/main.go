package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/park285/chess-duel-bot/internal/gateway"
)

func main() {
	baseURL := os.Getenv("GATEWAY_BASE_URL")
	wsURL := os.Getenv("GATEWAY_WS_URL")
	userID := os.Getenv("X_USER_ID")
	sessionID := os.Getenv("X_SESSION_ID")

	if baseURL == "" {
		log.Fatal("GATEWAY_BASE_URL is required")
	}

	headers := func() map[string]string {
		m := map[string]string{}
		if userID != "" {
			m["X-User-Id"] = userID
		}
		if sessionID != "" {
			m["X-Session-Id"] = sessionID
		}
		return m
	}

	client := gateway.NewClient(baseURL,
		gateway.WithHeaderProvider(headers),
		gateway.WithTimeout(8*time.Second),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cfg, err := client.GetConfig(ctx)
	if err != nil {
		log.Printf("/config error: %v", err)
	} else {
		log.Printf("/config ok: port=%d rate=%d endpoint=%s", cfg.Port, cfg.MessageRate, cfg.Endpoint)
	}

	if wsURL == "" {
		log.Println("GATEWAY_WS_URL not set; skipping WS check")
		return
	}

	// no prefix or room filter: the probe wants to see all traffic
	ws := gateway.NewWebSocket(wsURL,
		gateway.WSWithHeaderProvider(headers),
		gateway.WSWithMaxReconnects(5),
	)
	ws.OnStateChange(func(state gateway.WebSocketState) {
		log.Printf("WS state: %s", state)
	})
	ws.OnMessage(func(msg *gateway.Message) {
		fmt.Printf("WS msg room=%s from=%s text=%q\n", msg.Room, msg.From(), msg.Msg)
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := ws.Connect(cctx); err != nil {
		log.Printf("WS connect error: %v", err)
		return
	}

	// Observe for a short window
	t := time.NewTimer(10 * time.Second)
	<-t.C

	_ = ws.Close(context.Background())
}

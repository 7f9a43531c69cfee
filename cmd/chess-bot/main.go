package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/park285/chess-duel-bot/internal/challenge"
	appcfg "github.com/park285/chess-duel-bot/internal/config"
	"github.com/park285/chess-duel-bot/internal/duel"
	"github.com/park285/chess-duel-bot/internal/gateway"
	"github.com/park285/chess-duel-bot/internal/identity"
	"github.com/park285/chess-duel-bot/internal/msgcat"
	"github.com/park285/chess-duel-bot/internal/obslog"
	"github.com/park285/chess-duel-bot/internal/profile"
)

func main() {
	_ = godotenv.Load()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()

	headers := func() map[string]string {
		h := map[string]string{}
		if cfg.XUserID != "" {
			h["X-User-Id"] = cfg.XUserID
		}
		if cfg.XSessionID != "" {
			h["X-Session-Id"] = cfg.XSessionID
		}
		return h
	}

	client := gateway.NewClient(cfg.GatewayBaseURL, gateway.WithHeaderProvider(headers))
	notifier := gateway.NewNotifier(client, logger)

	// the ingress filters non-command chatter and foreign rooms at the
	// boundary
	ws := gateway.NewWebSocket(cfg.GatewayWSURL,
		gateway.WSWithHeaderProvider(headers),
		gateway.WSWithPrefix(cfg.BotPrefix),
		gateway.WSWithAllowedRooms(cfg.AllowedRooms),
		gateway.WSWithMaxReconnects(5),
	)
	ws.OnStateChange(func(state gateway.WebSocketState) {
		logger.Info("ws_state", zap.String("state", string(state)))
	})

	cat, err := msgcat.New(cfg.MessageDir)
	if err != nil {
		log.Fatalf("message catalog error: %v", err)
	}

	duelMgr, err := duel.NewManager(cfg.RedisURL)
	if err != nil {
		log.Fatalf("duel manager init error: %v", err)
	}
	if cfg.DatabaseURL != "" {
		repo, err := duel.NewRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("duel repo init error: %v", err)
		}
		defer func() { _ = repo.Close() }()
		duelMgr.AttachRepository(repo)
	}

	profiles := profile.NewStore(duelMgr.Redis())
	resolver := identity.NewResolver(client)

	registry := challenge.NewRegistry()

	bot := &bot{
		cfg:      cfg,
		client:   client,
		notifier: notifier,
		cat:      cat,
		registry: registry,
		duels:    duelMgr,
		profiles: profiles,
		resolver: resolver,
		logger:   logger,
	}

	sweeper := challenge.NewSweeper(registry, cfg.ChallengeTTL, cfg.SweepInterval, bot.notifyExpired)
	sweeper.Start()

	// handlers run off the read loop, bounded by a semaphore; excess
	// commands are dropped rather than queued without limit
	sem := make(chan struct{}, cfg.MaxConcurrency)
	ws.OnMessage(func(msg *gateway.Message) {
		select {
		case sem <- struct{}{}:
			go func() {
				defer func() { <-sem }()
				bot.handle(msg)
			}()
		default:
			logger.Warn("command_dropped",
				zap.String("room", msg.Room),
				zap.Int("limit", cfg.MaxConcurrency),
			)
		}
	})

	cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ws.Connect(cctx); err != nil {
		cancel()
		log.Fatalf("ws connect error: %v", err)
	}
	cancel()
	logger.Info("bot_started",
		zap.String("prefix", cfg.BotPrefix),
		zap.Duration("challenge_ttl", cfg.ChallengeTTL),
		zap.Duration("sweep_interval", cfg.SweepInterval),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	sweeper.Stop()
	_ = ws.Close(context.Background())
	_ = duelMgr.Close()
	logger.Info("bot_stopped")
}

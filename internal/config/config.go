package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	GatewayBaseURL string
	GatewayWSURL   string

	BotPrefix string
	BotUserID string

	XUserID    string
	XSessionID string

	RedisURL    string
	DatabaseURL string

	ChallengeTTL   time.Duration
	SweepInterval  time.Duration
	MessageDir     string
	AllowedRooms   []string
	MaxConcurrency int
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ChallengeTTL:   10 * time.Minute,
		SweepInterval:  time.Minute,
		MaxConcurrency: 200,
	}

	cfg.GatewayBaseURL = strings.TrimSpace(os.Getenv("GATEWAY_BASE_URL"))
	cfg.GatewayWSURL = strings.TrimSpace(os.Getenv("GATEWAY_WS_URL"))
	cfg.BotPrefix = strings.TrimSpace(os.Getenv("BOT_PREFIX"))
	cfg.BotUserID = strings.TrimSpace(os.Getenv("BOT_USER_ID"))

	cfg.XUserID = strings.TrimSpace(os.Getenv("X_USER_ID"))
	cfg.XSessionID = strings.TrimSpace(os.Getenv("X_SESSION_ID"))

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.MessageDir = strings.TrimSpace(os.Getenv("MESSAGE_DIR"))

	if v := strings.TrimSpace(os.Getenv("CHALLENGE_TTL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ChallengeTTL = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("CHALLENGE_SWEEP_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SweepInterval = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("MAX_CONCURRENT_COMMANDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConcurrency = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ALLOWED_ROOMS")); v != "" {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.AllowedRooms = append(cfg.AllowedRooms, s)
			}
		}
	}

	if cfg.GatewayBaseURL == "" {
		return nil, errors.New("GATEWAY_BASE_URL is required")
	}
	if cfg.GatewayWSURL == "" {
		return nil, errors.New("GATEWAY_WS_URL is required")
	}
	if cfg.BotPrefix == "" {
		return nil, errors.New("BOT_PREFIX is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}

package challenge

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-duel-bot/internal/obslog"
)

const (
	DefaultTTL           = 10 * time.Minute
	DefaultSweepInterval = time.Minute
)

// ExpiredFunc is invoked once per expired record, after the record has
// already been removed from the registry. Implementations typically send
// direct messages to both parties; delivery is best-effort and a failure
// never resurrects the record.
type ExpiredFunc func(rec Record)

// Sweeper bounds the lifetime of unanswered challenges. It scans the
// registry on a fixed interval and removes records older than the TTL.
type Sweeper struct {
	reg       *Registry
	ttl       time.Duration
	interval  time.Duration
	onExpired ExpiredFunc

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewSweeper(reg *Registry, ttl, interval time.Duration, onExpired ExpiredFunc) *Sweeper {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		reg:       reg,
		ttl:       ttl,
		interval:  interval,
		onExpired: onExpired,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the sweep loop. It returns immediately; call Stop for a
// clean shutdown.
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.loop()
}

// Stop signals the loop to exit and waits for it. Safe to call more than
// once. In-flight expiry notifications are not waited on.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Sweeper) loop() {
	defer s.wg.Done()
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
			s.sweep(time.Now())
		}
	}
}

// sweep removes everything older than the TTL in one registry critical
// section, then fans the notifications out on their own goroutines so a slow
// or unreachable recipient cannot block the registry or other notifications.
func (s *Sweeper) sweep(now time.Time) {
	expired := s.reg.ExpireBefore(now.Add(-s.ttl))
	if len(expired) == 0 {
		return
	}
	obslog.L().Info("challenge_sweep",
		zap.Int("expired", len(expired)),
		zap.Duration("ttl", s.ttl),
	)
	for _, rec := range expired {
		obslog.L().Info("challenge_expired",
			zap.String("challenge_id", rec.ChallengeID),
			zap.String("challenger_id", rec.ChallengerID),
			zap.String("opponent_id", rec.OpponentID),
			zap.Duration("age", rec.Age(now)),
		)
		if s.onExpired != nil {
			go s.onExpired(rec)
		}
	}
}

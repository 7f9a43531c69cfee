package profile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/chess-duel-bot/internal/obslog"
)

var ErrAlreadyRegistered = errors.New("user already registered")

const (
	initialElo   = 1000
	historyLimit = 20
)

// Profile is a registered user's record.
type Profile struct {
	UserID       string
	Elo          int
	Wins         int
	Loses        int
	Ties         int
	History      string
	RegisteredAt time.Time
}

// WinRate returns wins over total decided games, or -1 when no games were
// played.
func (p *Profile) WinRate() float64 {
	total := p.Wins + p.Loses + p.Ties
	if total == 0 {
		return -1
	}
	return float64(p.Wins) / float64(total)
}

// Store keeps user profiles as Redis hashes under user:<id>.
type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func userKey(userID string) string { return "user:" + strings.TrimSpace(userID) }

// Register creates the profile hash for a new user. The age field doubles as
// the existence guard: HSETNX on it decides the race between two concurrent
// registrations.
func (s *Store) Register(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("invalid user id")
	}
	key := userKey(userID)
	ok, err := s.rdb.HSetNX(ctx, key, "age", time.Now().Unix()).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlreadyRegistered
	}
	if err := s.rdb.HSet(ctx, key,
		"elo", initialElo,
		"wins", 0,
		"loses", 0,
		"ties", 0,
		"history", "",
	).Err(); err != nil {
		return err
	}
	obslog.L().Info("profile_register", zap.String("user_id", userID))
	return nil
}

// IsRegistered reports whether the user has a profile.
func (s *Store) IsRegistered(ctx context.Context, userID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, userKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Get returns the user's profile, or nil when not registered.
func (s *Store) Get(ctx context.Context, userID string) (*Profile, error) {
	fields, err := s.rdb.HGetAll(ctx, userKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	p := &Profile{
		UserID:  strings.TrimSpace(userID),
		Elo:     atoi(fields["elo"], initialElo),
		Wins:    atoi(fields["wins"], 0),
		Loses:   atoi(fields["loses"], 0),
		Ties:    atoi(fields["ties"], 0),
		History: fields["history"],
	}
	if age := atoi(fields["age"], 0); age > 0 {
		p.RegisteredAt = time.Unix(int64(age), 0)
	}
	return p, nil
}

// RecordResult updates both players' counters and history for a finished
// game. A draw ties both; otherwise winnerID wins and loserID loses.
func (s *Store) RecordResult(ctx context.Context, winnerID, loserID string, draw bool) error {
	if draw {
		for _, uid := range []string{winnerID, loserID} {
			if err := s.rdb.HIncrBy(ctx, userKey(uid), "ties", 1).Err(); err != nil {
				return err
			}
			if err := s.appendHistory(ctx, uid, "T"); err != nil {
				return err
			}
		}
		return nil
	}
	if err := s.rdb.HIncrBy(ctx, userKey(winnerID), "wins", 1).Err(); err != nil {
		return err
	}
	if err := s.appendHistory(ctx, winnerID, "W"); err != nil {
		return err
	}
	if err := s.rdb.HIncrBy(ctx, userKey(loserID), "loses", 1).Err(); err != nil {
		return err
	}
	return s.appendHistory(ctx, loserID, "L")
}

// appendHistory pushes one result letter onto the capped history string.
// WATCH guards the read-modify-write against a concurrent append.
func (s *Store) appendHistory(ctx context.Context, userID, letter string) error {
	key := userKey(userID)
	return s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.HGet(ctx, key, "history").Result()
		if err != nil && err != redis.Nil {
			return err
		}
		next := cur + letter
		if len(next) > historyLimit {
			next = next[len(next)-historyLimit:]
		}
		pipe := tx.TxPipeline()
		pipe.HSet(ctx, key, "history", next)
		_, err = pipe.Exec(ctx)
		return err
	}, key)
}

func atoi(s string, def int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return n
	}
	return def
}

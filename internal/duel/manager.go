package duel

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/chess-duel-bot/internal/obslog"
)

const gameTTL = 24 * time.Hour

var ErrGameNotActive = errors.New("game no longer active")

// Manager is the active-game registry. Started duels live in Redis with a
// bounded TTL; finished duels are optionally persisted through an attached
// Repository.
type Manager struct {
	rdb  *redis.Client
	repo *Repository
}

func NewManager(redisURL string) (*Manager, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for duel manager")
	}
	opts, err := ParseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Manager{rdb: rdb}, nil
}

func (m *Manager) Close() error {
	if m == nil || m.rdb == nil {
		return nil
	}
	return m.rdb.Close()
}

// Redis returns the underlying client so sibling stores can share the
// connection pool.
func (m *Manager) Redis() *redis.Client { return m.rdb }

// AttachRepository wires a database repository for persisting final results.
func (m *Manager) AttachRepository(r *Repository) {
	if m != nil {
		m.repo = r
	}
}

// StartFromChallenge turns an accepted challenge into a live game. Sides are
// assigned by an unweighted coin flip regardless of who issued the
// challenge. The challenge record is gone by the time this runs; a failure
// here is reported to the caller but never resurrects the challenge.
func (m *Manager) StartFromChallenge(ctx context.Context, challengeID, challengerID, opponentID string) (*Game, error) {
	if m == nil || m.rdb == nil {
		return nil, fmt.Errorf("duel manager not initialized")
	}
	challengerID = strings.TrimSpace(challengerID)
	opponentID = strings.TrimSpace(opponentID)
	if challengerID == "" || opponentID == "" {
		return nil, fmt.Errorf("invalid participants")
	}

	whiteID, blackID := challengerID, opponentID
	if n, _ := rand.Int(rand.Reader, big.NewInt(2)); n != nil && n.Int64() == 0 {
		whiteID, blackID = blackID, whiteID
	}

	now := time.Now()
	g := &Game{
		ID:          uuid.NewString(),
		ChallengeID: strings.TrimSpace(challengeID),
		WhiteID:     whiteID,
		BlackID:     blackID,
		FEN:         nchess.NewGame().FEN(),
		Turn:        White,
		Status:      StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := m.save(ctx, g); err != nil {
		return nil, err
	}
	if err := m.indexParticipants(ctx, g.ID, g.WhiteID, g.BlackID); err != nil {
		return nil, err
	}
	obslog.L().Info("duel_start",
		zap.String("game_id", g.ID),
		zap.String("challenge_id", g.ChallengeID),
		zap.String("white_id", g.WhiteID),
		zap.String("black_id", g.BlackID),
	)
	return g, nil
}

// GetActiveGameByUser returns the most recently updated active game for a
// user, or nil when there is none.
func (m *Manager) GetActiveGameByUser(ctx context.Context, userID string) (*Game, error) {
	if m == nil || m.rdb == nil {
		return nil, fmt.Errorf("duel manager not initialized")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, nil
	}
	ids, err := m.rdb.SMembers(ctx, idxUserKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	var list []*Game
	for _, id := range ids {
		g, gerr := m.get(ctx, id)
		if gerr == nil && g != nil && g.Status == StatusActive {
			list = append(list, g)
		}
	}
	if len(list) == 0 {
		return nil, nil
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UpdatedAt.After(list[j].UpdatedAt) })
	return list[0], nil
}

// LoadGame returns the game by id, or nil when unknown or expired.
func (m *Manager) LoadGame(ctx context.Context, id string) (*Game, error) {
	return m.get(ctx, id)
}

// Resign ends the user's active game, awarding the win to the opponent. The
// status flip uses an optimistic WATCH transaction so two racing resigns (or
// a resign racing another finisher) settle the game exactly once.
func (m *Manager) Resign(ctx context.Context, userID string) (*Game, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("invalid user")
	}
	g, err := m.GetActiveGameByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, ErrGameNotActive
	}

	gameK := gameKey(g.ID)
	err = m.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, gameK).Bytes()
		if err == redis.Nil {
			return ErrGameNotActive
		}
		if err != nil {
			return err
		}
		var cur Game
		if jerr := json.Unmarshal(raw, &cur); jerr != nil {
			return jerr
		}
		if cur.Status != StatusActive {
			return redis.TxFailedErr
		}
		cur.Status = StatusResigned
		cur.Winner = cur.OpponentOf(userID)
		cur.Outcome = "resign"
		cur.UpdatedAt = time.Now()

		pipe := tx.TxPipeline()
		newRaw, _ := json.Marshal(&cur)
		pipe.Set(ctx, gameK, newRaw, gameTTL)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		g = &cur
		return nil
	}, gameK)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return nil, ErrGameNotActive
		}
		return nil, err
	}

	obslog.L().Info("duel_resign",
		zap.String("game_id", g.ID),
		zap.String("resigner", userID),
		zap.String("winner", g.Winner),
	)
	m.persistIfFinal(ctx, g, "resignation")
	return g, nil
}

func (m *Manager) save(ctx context.Context, g *Game) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return err
	}
	return m.rdb.Set(ctx, gameKey(g.ID), raw, gameTTL).Err()
}

func (m *Manager) get(ctx context.Context, id string) (*Game, error) {
	raw, err := m.rdb.Get(ctx, gameKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var g Game
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (m *Manager) indexParticipants(ctx context.Context, id, white, black string) error {
	for _, uid := range []string{white, black} {
		if strings.TrimSpace(uid) == "" {
			continue
		}
		key := idxUserKey(uid)
		if err := m.rdb.SAdd(ctx, key, id).Err(); err != nil {
			return err
		}
		// keep the index TTL in step with the game TTL
		_ = m.rdb.Expire(ctx, key, gameTTL).Err()
	}
	return nil
}

// persistIfFinal saves the final result to the repository when one is
// attached. Persistence failures are logged, never surfaced to the player.
func (m *Manager) persistIfFinal(ctx context.Context, g *Game, method string) {
	if m == nil || m.repo == nil || g == nil {
		return
	}
	if g.Status == StatusActive {
		return
	}
	if err := m.repo.SaveResult(ctx, g, method); err != nil {
		obslog.L().Error("duel_result_persist_error",
			zap.String("game_id", g.ID),
			zap.String("outcome", g.Outcome),
			zap.Error(err),
		)
		return
	}
	obslog.L().Info("duel_result_persist",
		zap.String("game_id", g.ID),
		zap.String("outcome", g.Outcome),
		zap.String("method", method),
	)
}

func gameKey(id string) string     { return "duel:game:" + strings.TrimSpace(id) }
func idxUserKey(uid string) string { return "duel:index:user:" + strings.TrimSpace(uid) }

// ParseRedisURL accepts redis:// and rediss:// URLs with an optional numeric
// database path.
func ParseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}

package duel

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Repository persists final duel results to Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveResult upserts a finished duel. Replays of the same game id overwrite
// the previous row, so a retried persist is harmless.
func (r *Repository) SaveResult(ctx context.Context, g *Game, method string) error {
	if r == nil || r.db == nil || g == nil {
		return nil
	}

	result := strings.TrimSpace(g.Outcome)
	if result == "resign" {
		switch g.Winner {
		case g.WhiteID:
			result = "white"
		case g.BlackID:
			result = "black"
		default:
			result = ""
		}
	}

	duration := g.UpdatedAt.Sub(g.CreatedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	const q = `INSERT INTO duel_games (
	    game_id, challenge_id, white_id, black_id,
	    result, result_method,
	    started_at, ended_at, duration_ms
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9
	  ) ON CONFLICT (game_id) DO UPDATE SET
	    challenge_id=EXCLUDED.challenge_id,
	    white_id=EXCLUDED.white_id,
	    black_id=EXCLUDED.black_id,
	    result=EXCLUDED.result,
	    result_method=EXCLUDED.result_method,
	    started_at=EXCLUDED.started_at,
	    ended_at=EXCLUDED.ended_at,
	    duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		g.ID, g.ChallengeID,
		g.WhiteID, g.BlackID,
		result, strings.TrimSpace(method),
		g.CreatedAt, g.UpdatedAt, duration,
	)
	return err
}

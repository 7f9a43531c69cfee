package duel

import (
	"time"
)

// Color identifies a chess side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Status is the lifecycle state of a started duel.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusFinished Status = "FINISHED"
	StatusResigned Status = "RESIGNED"
	StatusDraw     Status = "DRAW"
)

// Game is one started duel between two users. The game id is its own token,
// distinct from the challenge id that produced it.
type Game struct {
	ID          string    `json:"id"`
	ChallengeID string    `json:"challenge_id"`
	WhiteID     string    `json:"white_id"`
	BlackID     string    `json:"black_id"`
	FEN         string    `json:"fen"`
	Turn        Color     `json:"turn"`
	Status      Status    `json:"status"`
	Winner      string    `json:"winner,omitempty"`
	Outcome     string    `json:"outcome,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// OpponentOf returns the other participant, or "" when userID is not in the
// game.
func (g *Game) OpponentOf(userID string) string {
	if g.WhiteID == userID {
		return g.BlackID
	}
	if g.BlackID == userID {
		return g.WhiteID
	}
	return ""
}

// SideOf returns the color userID plays, or "" when not a participant.
func (g *Game) SideOf(userID string) Color {
	if g.WhiteID == userID {
		return White
	}
	if g.BlackID == userID {
		return Black
	}
	return ""
}

package challenge

import (
	"errors"
	"time"
)

var (
	ErrInvalidArgs       = errors.New("invalid arguments")
	ErrSelfChallenge     = errors.New("cannot challenge yourself")
	ErrAlreadyChallenged = errors.New("a challenge between these users is already pending")
	ErrNotFound          = errors.New("challenge not found")
)

// Record is one pending challenge. Records are immutable once issued; the
// registry creates them and destroys them on accept, decline, cancel or
// expiry.
type Record struct {
	ChallengeID  string
	ChallengerID string
	OpponentID   string
	CreatedAt    time.Time
}

// Age reports how long the record has been outstanding.
func (r Record) Age(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}

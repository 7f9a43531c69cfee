package challenge

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry is the process-wide store of pending challenges, keyed by the
// challenging user. All reads and writes go through its methods; each method
// is one critical section, so concurrent command handlers and the expiry
// sweeper never observe partial state.
type Registry struct {
	mu sync.Mutex
	// challengerID -> challenges issued by that user, in insertion order
	byChallenger map[string][]Record
}

func NewRegistry() *Registry {
	return &Registry{byChallenger: make(map[string][]Record)}
}

// Issue creates a new pending challenge from challengerID to opponentID.
// The pair check is symmetric: if either user already has a pending
// challenge against the other, in whichever direction, the call fails with
// ErrAlreadyChallenged. The check and the insert run under one lock hold so
// two racing Issue calls for the same pair yield exactly one success.
func (g *Registry) Issue(challengerID, opponentID string) (Record, error) {
	challengerID = strings.TrimSpace(challengerID)
	opponentID = strings.TrimSpace(opponentID)
	if challengerID == "" || opponentID == "" {
		return Record{}, ErrInvalidArgs
	}
	if challengerID == opponentID {
		return Record{}, ErrSelfChallenge
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pendingBetween(challengerID, opponentID) {
		return Record{}, ErrAlreadyChallenged
	}

	rec := Record{
		ChallengeID:  uuid.NewString(),
		ChallengerID: challengerID,
		OpponentID:   opponentID,
		CreatedAt:    time.Now(),
	}
	g.byChallenger[challengerID] = append(g.byChallenger[challengerID], rec)
	return rec, nil
}

// Take finds the challenge addressed to opponentID with the given id and
// removes it in the same critical section. Accept and decline both go
// through Take, so the sweeper can never expire a record between the lookup
// and the removal; whoever locks first wins and the loser sees ErrNotFound.
func (g *Registry) Take(opponentID, challengeID string) (Record, error) {
	opponentID = strings.TrimSpace(opponentID)
	challengeID = strings.TrimSpace(challengeID)
	if opponentID == "" || challengeID == "" {
		return Record{}, ErrInvalidArgs
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for challenger, list := range g.byChallenger {
		for i, rec := range list {
			if rec.ChallengeID == challengeID && rec.OpponentID == opponentID {
				g.removeAt(challenger, i)
				return rec, nil
			}
		}
	}
	return Record{}, ErrNotFound
}

// Cancel removes a challenge by its issuer. Only the original challenger may
// cancel, so the lookup goes straight to their list instead of scanning.
func (g *Registry) Cancel(challengerID, challengeID string) (Record, error) {
	challengerID = strings.TrimSpace(challengerID)
	challengeID = strings.TrimSpace(challengeID)
	if challengerID == "" || challengeID == "" {
		return Record{}, ErrInvalidArgs
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for i, rec := range g.byChallenger[challengerID] {
		if rec.ChallengeID == challengeID {
			g.removeAt(challengerID, i)
			return rec, nil
		}
	}
	return Record{}, ErrNotFound
}

// Remove deletes the matching record if present and reports whether it did.
func (g *Registry) Remove(challengerID, challengeID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, rec := range g.byChallenger[challengerID] {
		if rec.ChallengeID == challengeID {
			g.removeAt(challengerID, i)
			return true
		}
	}
	return false
}

// ExpireBefore removes every record created before cutoff and returns the
// removed set. Removal is atomic and fast; callers notify the affected users
// after the lock is released.
func (g *Registry) ExpireBefore(cutoff time.Time) []Record {
	g.mu.Lock()
	defer g.mu.Unlock()

	var expired []Record
	for challenger, list := range g.byChallenger {
		kept := list[:0]
		for _, rec := range list {
			if rec.CreatedAt.Before(cutoff) {
				expired = append(expired, rec)
			} else {
				kept = append(kept, rec)
			}
		}
		if len(kept) == 0 {
			delete(g.byChallenger, challenger)
		} else {
			g.byChallenger[challenger] = kept
		}
	}
	return expired
}

// Outstanding returns copies of the challenges issued by challengerID.
func (g *Registry) Outstanding(challengerID string) []Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	list := g.byChallenger[strings.TrimSpace(challengerID)]
	out := make([]Record, len(list))
	copy(out, list)
	return out
}

// Count returns the total number of pending challenges.
func (g *Registry) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, list := range g.byChallenger {
		n += len(list)
	}
	return n
}

// pendingBetween reports whether a challenge already exists between the two
// users in either direction. Caller must hold g.mu.
func (g *Registry) pendingBetween(a, b string) bool {
	for _, rec := range g.byChallenger[a] {
		if rec.OpponentID == b {
			return true
		}
	}
	for _, rec := range g.byChallenger[b] {
		if rec.OpponentID == a {
			return true
		}
	}
	return false
}

// removeAt drops index i from a challenger's list and deletes the list once
// empty. Caller must hold g.mu.
func (g *Registry) removeAt(challengerID string, i int) {
	list := g.byChallenger[challengerID]
	list = append(list[:i], list[i+1:]...)
	if len(list) == 0 {
		delete(g.byChallenger, challengerID)
	} else {
		g.byChallenger[challengerID] = list
	}
}

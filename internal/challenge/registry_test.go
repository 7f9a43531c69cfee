package challenge

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestIssueSelfChallenge(t *testing.T) {
	g := NewRegistry()
	if _, err := g.Issue("u1", "u1"); !errors.Is(err, ErrSelfChallenge) {
		t.Fatalf("expected ErrSelfChallenge, got %v", err)
	}
	if g.Count() != 0 {
		t.Fatalf("registry should be unchanged, has %d records", g.Count())
	}
}

func TestIssueInvalidArgs(t *testing.T) {
	g := NewRegistry()
	if _, err := g.Issue("", "u2"); !errors.Is(err, ErrInvalidArgs) {
		t.Fatalf("expected ErrInvalidArgs, got %v", err)
	}
	if _, err := g.Issue("u1", "  "); !errors.Is(err, ErrInvalidArgs) {
		t.Fatalf("expected ErrInvalidArgs, got %v", err)
	}
}

func TestIssueDuplicatePairSymmetric(t *testing.T) {
	g := NewRegistry()
	rec, err := g.Issue("u1", "u2")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if rec.ChallengeID == "" {
		t.Fatalf("expected non-empty challenge id")
	}

	if _, err := g.Issue("u1", "u2"); !errors.Is(err, ErrAlreadyChallenged) {
		t.Fatalf("same direction: expected ErrAlreadyChallenged, got %v", err)
	}
	if _, err := g.Issue("u2", "u1"); !errors.Is(err, ErrAlreadyChallenged) {
		t.Fatalf("reversed direction: expected ErrAlreadyChallenged, got %v", err)
	}
	if g.Count() != 1 {
		t.Fatalf("expected exactly one record for the pair, got %d", g.Count())
	}
}

func TestIssueMultipleOpponents(t *testing.T) {
	g := NewRegistry()
	if _, err := g.Issue("u1", "u2"); err != nil {
		t.Fatalf("Issue u2: %v", err)
	}
	if _, err := g.Issue("u1", "u3"); err != nil {
		t.Fatalf("Issue u3: %v", err)
	}
	if n := len(g.Outstanding("u1")); n != 2 {
		t.Fatalf("expected 2 outstanding challenges, got %d", n)
	}
}

func TestTakeRemovesRecord(t *testing.T) {
	g := NewRegistry()
	rec, err := g.Issue("u1", "u2")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	got, err := g.Take("u2", rec.ChallengeID)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if got.ChallengerID != "u1" || got.OpponentID != "u2" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if g.Count() != 0 {
		t.Fatalf("record should be gone after Take")
	}
	// Second take is a no-op.
	if _, err := g.Take("u2", rec.ChallengeID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on replay, got %v", err)
	}
}

func TestTakeWrongRecipient(t *testing.T) {
	g := NewRegistry()
	rec, err := g.Issue("u1", "u2")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	// Only the addressed opponent may take the challenge.
	if _, err := g.Take("u3", rec.ChallengeID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for wrong recipient, got %v", err)
	}
	if g.Count() != 1 {
		t.Fatalf("record should remain for the real opponent")
	}
}

func TestCancelByChallengerOnly(t *testing.T) {
	g := NewRegistry()
	rec, err := g.Issue("u1", "u2")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Opponent cannot cancel.
	if _, err := g.Cancel("u2", rec.ChallengeID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for opponent cancel, got %v", err)
	}

	got, err := g.Cancel("u1", rec.ChallengeID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.OpponentID != "u2" {
		t.Fatalf("unexpected opponent: %q", got.OpponentID)
	}
	if g.Count() != 0 {
		t.Fatalf("record should be gone after Cancel")
	}
}

func TestUnknownIDIsNoOp(t *testing.T) {
	g := NewRegistry()
	if _, err := g.Issue("u1", "u2"); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := g.Take("u2", "no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Take: expected ErrNotFound, got %v", err)
	}
	if _, err := g.Cancel("u1", "no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Cancel: expected ErrNotFound, got %v", err)
	}
	if g.Remove("u1", "no-such-id") {
		t.Fatalf("Remove should report false for unknown id")
	}
	if g.Count() != 1 {
		t.Fatalf("registry should be unchanged")
	}
}

func TestConcurrentIssueSamePair(t *testing.T) {
	g := NewRegistry()
	const n = 32

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Half challenge in each direction; still one pair.
			if i%2 == 0 {
				_, errs[i] = g.Issue("u1", "u2")
			} else {
				_, errs[i] = g.Issue("u2", "u1")
			}
		}(i)
	}
	wg.Wait()

	success := 0
	for _, err := range errs {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrAlreadyChallenged):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one successful issue, got %d", success)
	}
	if g.Count() != 1 {
		t.Fatalf("expected exactly one record, got %d", g.Count())
	}
}

func TestCancelExpireRace(t *testing.T) {
	g := NewRegistry()
	rec, err := g.Issue("u1", "u2")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	var wg sync.WaitGroup
	var cancelErr error
	var expired []Record
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, cancelErr = g.Cancel("u1", rec.ChallengeID)
	}()
	go func() {
		defer wg.Done()
		expired = g.ExpireBefore(time.Now().Add(time.Hour))
	}()
	wg.Wait()

	// Exactly one side removes the record; the other observes it gone.
	removedByCancel := cancelErr == nil
	removedByExpiry := len(expired) == 1
	if removedByCancel == removedByExpiry {
		t.Fatalf("expected exactly one removal: cancel=%v expired=%d", cancelErr, len(expired))
	}
	if g.Count() != 0 {
		t.Fatalf("registry should be empty after the race")
	}
}

func TestExpireBeforeKeepsYoungRecords(t *testing.T) {
	g := NewRegistry()
	old, err := g.Issue("u1", "u2")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	cutoff := time.Now()
	young, err := g.Issue("u1", "u3")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	expired := g.ExpireBefore(cutoff)
	if len(expired) != 1 || expired[0].ChallengeID != old.ChallengeID {
		t.Fatalf("expected only the old record to expire, got %+v", expired)
	}
	rest := g.Outstanding("u1")
	if len(rest) != 1 || rest[0].ChallengeID != young.ChallengeID {
		t.Fatalf("young record should survive, got %+v", rest)
	}
}

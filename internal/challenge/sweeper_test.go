package challenge

import (
	"sync"
	"testing"
	"time"
)

func TestSweepExpiresOldRecords(t *testing.T) {
	g := NewRegistry()
	rec, err := g.Issue("u1", "u2")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	var mu sync.Mutex
	var notified []Record
	done := make(chan struct{})
	s := NewSweeper(g, 50*time.Millisecond, time.Hour, func(r Record) {
		mu.Lock()
		notified = append(notified, r)
		mu.Unlock()
		close(done)
	})

	// Drive a tick directly; the loop timing is covered separately.
	s.sweep(time.Now().Add(100 * time.Millisecond))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expiry notification never fired")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(notified) != 1 || notified[0].ChallengeID != rec.ChallengeID {
		t.Fatalf("unexpected notifications: %+v", notified)
	}
	if g.Count() != 0 {
		t.Fatalf("expired record should be removed from the registry")
	}
}

func TestSweepKeepsYoungRecords(t *testing.T) {
	g := NewRegistry()
	if _, err := g.Issue("u1", "u2"); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	s := NewSweeper(g, time.Hour, time.Hour, func(r Record) {
		t.Errorf("young record expired: %+v", r)
	})
	s.sweep(time.Now())

	if g.Count() != 1 {
		t.Fatalf("young record should survive the sweep")
	}
}

func TestSweeperLoopAndStop(t *testing.T) {
	g := NewRegistry()
	if _, err := g.Issue("u1", "u2"); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	expired := make(chan Record, 1)
	s := NewSweeper(g, time.Nanosecond, 5*time.Millisecond, func(r Record) {
		select {
		case expired <- r:
		default:
		}
	})
	s.Start()
	defer s.Stop()

	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatalf("sweeper loop never expired the record")
	}
	if g.Count() != 0 {
		t.Fatalf("registry should be empty after expiry")
	}

	// Stop must be idempotent and return promptly.
	s.Stop()
	s.Stop()
}

func TestSweepAnsweredChallengeNotExpired(t *testing.T) {
	g := NewRegistry()
	rec, err := g.Issue("u1", "u2")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := g.Take("u2", rec.ChallengeID); err != nil {
		t.Fatalf("Take: %v", err)
	}

	s := NewSweeper(g, time.Nanosecond, time.Hour, func(r Record) {
		t.Errorf("answered challenge expired: %+v", r)
	})
	s.sweep(time.Now().Add(time.Minute))
}

package identity

import (
	"context"
	"errors"
	"testing"
)

type fakeDirectory struct {
	users map[string]string
}

func (d *fakeDirectory) LookupUser(_ context.Context, query string) (string, error) {
	id, ok := d.users[query]
	if !ok {
		return "", errors.New("no such user")
	}
	return id, nil
}

func TestResolveNumericID(t *testing.T) {
	r := NewResolver(&fakeDirectory{})
	id, err := r.Resolve(context.Background(), "158642095291105280")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id != "158642095291105280" {
		t.Fatalf("numeric id should pass through, got %q", id)
	}
}

func TestResolveHandle(t *testing.T) {
	r := NewResolver(&fakeDirectory{users: map[string]string{"alice#1234": "42"}})
	id, err := r.Resolve(context.Background(), "@alice#1234")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id != "42" {
		t.Fatalf("expected directory id 42, got %q", id)
	}
}

func TestResolveUnknownHandle(t *testing.T) {
	r := NewResolver(&fakeDirectory{users: map[string]string{}})
	if _, err := r.Resolve(context.Background(), "bob#9999"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveMalformedToken(t *testing.T) {
	r := NewResolver(&fakeDirectory{users: map[string]string{"x": "1"}})
	for _, token := range []string{"", "   ", "not a user", "name#", "#123"} {
		if _, err := r.Resolve(context.Background(), token); !errors.Is(err, ErrNotFound) {
			t.Fatalf("token %q: expected ErrNotFound, got %v", token, err)
		}
	}
}

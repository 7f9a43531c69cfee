package identity

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

var ErrNotFound = errors.New("user not found")

// Token grammar: either a bare platform id or a handle#discriminator pair.
var (
	idPattern     = regexp.MustCompile(`^\d+$`)
	handlePattern = regexp.MustCompile(`^.+#\d+$`)
)

// Directory answers handle lookups against the chat platform. The gateway
// client implements it.
type Directory interface {
	LookupUser(ctx context.Context, query string) (string, error)
}

// Resolver turns user-supplied tokens into platform user ids. There is one
// grammar for everyone: numeric ids pass through, handles go to the
// directory, anything else is ErrNotFound.
type Resolver struct {
	dir Directory
}

func NewResolver(dir Directory) *Resolver { return &Resolver{dir: dir} }

func (r *Resolver) Resolve(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	token = strings.TrimPrefix(token, "@")
	if token == "" {
		return "", ErrNotFound
	}
	if idPattern.MatchString(token) {
		return token, nil
	}
	if handlePattern.MatchString(token) {
		if r.dir == nil {
			return "", ErrNotFound
		}
		id, err := r.dir.LookupUser(ctx, token)
		if err != nil || strings.TrimSpace(id) == "" {
			return "", ErrNotFound
		}
		return strings.TrimSpace(id), nil
	}
	return "", ErrNotFound
}

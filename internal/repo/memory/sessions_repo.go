package memory

import (
	"context"
	"time"

	"github.com/geocoder89/shopadmin/internal/cache"
	"github.com/geocoder89/shopadmin/internal/session"
)

// SessionsRepo keeps session state in process. Entries expire ttl after their
// last save, like the redis repo.
type SessionsRepo struct {
	items *cache.Cache[session.State]
}

func NewSessionsRepo(ttl time.Duration) *SessionsRepo {
	return &SessionsRepo{items: cache.New[session.State](ttl)}
}

func (r *SessionsRepo) Load(_ context.Context, sessionID string) (session.State, error) {
	s, ok := r.items.Get(sessionID)
	if !ok {
		return session.State{}, session.ErrNotFound
	}
	return s, nil
}

func (r *SessionsRepo) Save(_ context.Context, sessionID string, s session.State) error {
	r.items.Set(sessionID, s)
	return nil
}

func (r *SessionsRepo) Delete(_ context.Context, sessionID string) error {
	r.items.Delete(sessionID)
	return nil
}

// Sweep drops expired sessions. The admin server calls it on a ticker.
func (r *SessionsRepo) Sweep() int {
	return r.items.Sweep()
}

package redis

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/shopadmin/internal/redisclient"
	"github.com/geocoder89/shopadmin/internal/session"
)

// SessionsRepo stores each session state as JSON under <prefix>session:<sid>
// with SET EX, so idle sessions expire on the redis side.
type SessionsRepo struct {
	rc  *redisclient.Client
	ttl time.Duration
}

func NewSessionsRepo(rc *redisclient.Client, ttl time.Duration) *SessionsRepo {
	return &SessionsRepo{rc: rc, ttl: ttl}
}

func (r *SessionsRepo) key(sessionID string) string {
	return r.rc.Key("session", sessionID)
}

func (r *SessionsRepo) Load(ctx context.Context, sessionID string) (session.State, error) {
	var s session.State
	err := r.rc.GetJSON(ctx, r.key(sessionID), &s)
	if errors.Is(err, redisclient.ErrMiss) {
		return session.State{}, session.ErrNotFound
	}
	if err != nil {
		return session.State{}, err
	}
	return s, nil
}

func (r *SessionsRepo) Save(ctx context.Context, sessionID string, s session.State) error {
	return r.rc.SetJSON(ctx, r.key(sessionID), s, r.ttl)
}

func (r *SessionsRepo) Delete(ctx context.Context, sessionID string) error {
	return r.rc.Del(ctx, r.key(sessionID))
}

// Package sessions binds browser session ids to session slices and to the
// product view mounted for that browser.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/geocoder89/shopadmin/internal/cache"
	"github.com/geocoder89/shopadmin/internal/domain/login"
	"github.com/geocoder89/shopadmin/internal/productview"
	"github.com/geocoder89/shopadmin/internal/session"
	"github.com/geocoder89/shopadmin/internal/state"
)

type Store interface {
	Load(ctx context.Context, sessionID string) (session.State, error)
	Save(ctx context.Context, sessionID string, s session.State) error
	Delete(ctx context.Context, sessionID string) error
}

type Config struct {
	Store    Store
	Auth     login.Authenticator
	Products productview.API
	View     productview.Options
	// TTL bounds how long an idle browser keeps its mounted product view.
	TTL    time.Duration
	Logger *slog.Logger
	// SaveTimeout bounds each state save. Defaults to 2s.
	SaveTimeout time.Duration
}

type Manager struct {
	store       Store
	auth        login.Authenticator
	products    productview.API
	viewOpts    productview.Options
	log         *slog.Logger
	saveTimeout time.Duration

	openMu sync.Mutex
	slices *cache.Cache[*session.Slice]

	mountMu sync.Mutex
	views   *cache.Cache[*productview.Controller]
}

func NewManager(cfg Config) *Manager {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	saveTimeout := cfg.SaveTimeout
	if saveTimeout <= 0 {
		saveTimeout = 2 * time.Second
	}
	viewOpts := cfg.View
	if viewOpts.Logger == nil {
		viewOpts.Logger = log
	}

	return &Manager{
		store:       cfg.Store,
		auth:        cfg.Auth,
		products:    cfg.Products,
		viewOpts:    viewOpts,
		log:         log,
		saveTimeout: saveTimeout,
		slices:      cache.New[*session.Slice](ttl),
		views:       cache.New[*productview.Controller](ttl),
	}
}

// Open returns the live slice for sessionID. Requests for one session share
// it, so overlapping requests see each other's transitions. The store is read
// only when no slice is live, and every state reached afterwards is saved back.
func (m *Manager) Open(ctx context.Context, sessionID string) (*session.Slice, error) {
	if sessionID == "" {
		return nil, errors.New("open session: empty session id")
	}

	if slice, ok := m.liveSlice(sessionID, nil); ok {
		return slice, nil
	}

	current, err := m.store.Load(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		current = session.InitialState
	} else if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	// Subscribed before it is shared; a slice that loses the race below is
	// dropped without ever dispatching.
	fresh := session.NewSlice(current, m.auth, m.log)
	m.persist(ctx, sessionID, fresh)

	slice, _ := m.liveSlice(sessionID, fresh)
	return slice, nil
}

// liveSlice returns the cached slice for sessionID, refreshing its expiry.
// When none is cached and fresh is non-nil, fresh is cached and returned.
func (m *Manager) liveSlice(sessionID string, fresh *session.Slice) (*session.Slice, bool) {
	m.openMu.Lock()
	defer m.openMu.Unlock()

	slice, ok := m.slices.Get(sessionID)
	if !ok {
		if fresh == nil {
			return nil, false
		}
		slice = fresh
	}
	m.slices.Set(sessionID, slice)
	return slice, ok
}

// persist saves the slice after every transition. Saves are serialised and
// always write the slice's latest state.
func (m *Manager) persist(ctx context.Context, sessionID string, slice *session.Slice) {
	var mu sync.Mutex
	saveCtx := context.WithoutCancel(ctx)

	slice.Subscribe(func(_ session.State, action state.Action) {
		mu.Lock()
		defer mu.Unlock()

		ctx, cancel := context.WithTimeout(saveCtx, m.saveTimeout)
		defer cancel()

		if err := m.store.Save(ctx, sessionID, slice.State()); err != nil {
			m.log.ErrorContext(ctx, "save session state failed", "action", action.Type(), "err", err)
		}
	})
}

// Products returns the product view mounted for sessionID, creating and
// mounting one on first use.
func (m *Manager) Products(ctx context.Context, sessionID string) *productview.Controller {
	m.mountMu.Lock()
	c, ok := m.views.Get(sessionID)
	if !ok {
		c = productview.New(m.products, m.viewOpts)
	}
	// Set on every access so an active browser keeps its view.
	m.views.Set(sessionID, c)
	m.mountMu.Unlock()

	c.Mount(ctx)
	return c
}

// Remount drops the mounted product view so the next page load fetches again.
// Streams following the old view are told through its Done channel.
func (m *Manager) Remount(sessionID string) {
	m.mountMu.Lock()
	c, ok := m.views.Get(sessionID)
	m.views.Delete(sessionID)
	m.mountMu.Unlock()

	if ok {
		c.Close()
	}
}

// Forget removes everything kept for sessionID.
func (m *Manager) Forget(ctx context.Context, sessionID string) error {
	m.openMu.Lock()
	m.slices.Delete(sessionID)
	m.openMu.Unlock()

	m.Remount(sessionID)
	return m.store.Delete(ctx, sessionID)
}

// Sweep drops live slices and product views of idle sessions. Swept slices
// have already been saved and are loaded again on the next request.
func (m *Manager) Sweep() int {
	m.openMu.Lock()
	slices := m.slices.Sweep()
	m.openMu.Unlock()

	return slices + m.views.Sweep()
}

// Package session holds the login/session UI state of one admin browser session:
// popup visibility, logout warning, and who is logged in.
package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/geocoder89/shopadmin/internal/domain/login"
	"github.com/geocoder89/shopadmin/internal/state"
)

type State struct {
	ShowPopUp   bool   `json:"showPopUp"`
	IsLoggedIn  bool   `json:"isLoggedIn"`
	ShowWarning bool   `json:"showWarning"`
	UserID      string `json:"userID,omitempty"`
	Role        string `json:"role,omitempty"`
	LoginStatus string `json:"loginStatus,omitempty"`
	LoginError  string `json:"loginError,omitempty"`
}

var InitialState = State{}

var ErrNotFound = errors.New("session not found")

var errNoOutcome = errors.New("authenticator returned no outcome")

type (
	ShowLoginPopUp    struct{}
	HideLoginPopUp    struct{}
	Logout            struct{}
	ShowLogoutWarning struct{}
	HideLogoutWarning struct{}

	// LoginFinished carries the result of the login effect.
	LoginFinished struct {
		Outcome login.Outcome
	}
)

func (ShowLoginPopUp) Type() string    { return "user/showLoginPopUp" }
func (HideLoginPopUp) Type() string    { return "user/hideLoginPopUp" }
func (Logout) Type() string            { return "user/logout" }
func (ShowLogoutWarning) Type() string { return "user/showLogoutWarning" }
func (HideLogoutWarning) Type() string { return "user/hideLogoutWarning" }
func (LoginFinished) Type() string     { return "user/login/finished" }

func Reduce(s State, action state.Action) State {
	switch a := action.(type) {
	case ShowLoginPopUp:
		s.ShowPopUp = true
	case HideLoginPopUp:
		s.ShowPopUp = false
	case ShowLogoutWarning:
		s.ShowWarning = true
	case HideLogoutWarning:
		s.ShowWarning = false
	case Logout:
		return State{IsLoggedIn: false, ShowWarning: false}
	case LoginFinished:
		switch out := a.Outcome.(type) {
		case login.Accepted:
			return State{IsLoggedIn: true, UserID: out.UserID, Role: out.Role}
		case login.Rejected:
			s.LoginStatus = out.Status
			s.LoginError = ""
		case login.Failed:
			s.LoginError = out.Error()
		}
	}
	return s
}

type Slice struct {
	store *state.Store[State]
	auth  login.Authenticator
	log   *slog.Logger
}

func NewSlice(initial State, auth login.Authenticator, log *slog.Logger) *Slice {
	if log == nil {
		log = slog.Default()
	}
	return &Slice{
		store: state.New(initial, Reduce),
		auth:  auth,
		log:   log,
	}
}

func (s *Slice) State() State { return s.store.State() }

func (s *Slice) Subscribe(fn state.Listener[State]) func() { return s.store.Subscribe(fn) }

func (s *Slice) ShowLoginPopUp() State    { return s.store.Dispatch(ShowLoginPopUp{}) }
func (s *Slice) HideLoginPopUp() State    { return s.store.Dispatch(HideLoginPopUp{}) }
func (s *Slice) Logout() State            { return s.store.Dispatch(Logout{}) }
func (s *Slice) ShowLogoutWarning() State { return s.store.Dispatch(ShowLogoutWarning{}) }
func (s *Slice) HideLogoutWarning() State { return s.store.Dispatch(HideLogoutWarning{}) }

// Login posts creds to the auth api and folds the outcome into the state.
// It blocks until the call returns; callers wanting it in the background run it
// in a goroutine.
func (s *Slice) Login(ctx context.Context, creds login.Credentials) (login.Outcome, State) {
	out := s.auth.Login(ctx, creds)
	if out == nil {
		out = login.Failed{Err: errNoOutcome}
	}

	switch o := out.(type) {
	case login.Accepted:
		s.log.InfoContext(ctx, "login accepted", "user", o.UserID, "role", o.Role)
	case login.Rejected:
		s.log.InfoContext(ctx, "login rejected", "user", creds.Username, "status", o.Status)
	case login.Failed:
		s.log.WarnContext(ctx, "login failed", "user", creds.Username, "err", o.Err)
	}

	return out, s.store.Dispatch(LoginFinished{Outcome: out})
}

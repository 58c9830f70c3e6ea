package middlewares

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/shopadmin/internal/auth"
	"github.com/geocoder89/shopadmin/internal/session"
	"github.com/gin-gonic/gin"
)

const SessionCookie = "admin_session"

// Keep these small so tests can fake them easily.
type SessionTokens interface {
	GenerateSessionToken(sessionID string) (string, time.Time, error)
	VerifySessionToken(token string) (*auth.Claims, error)
}

type SessionOpener interface {
	Open(ctx context.Context, sessionID string) (*session.Slice, error)
}

type SessionMiddleware struct {
	tokens   SessionTokens
	sessions SessionOpener
	secure   bool
	log      *slog.Logger
}

// NewSessionMiddleware builds the cookie session middleware. secure marks the
// cookie Secure (https only).
func NewSessionMiddleware(tokens SessionTokens, sessions SessionOpener, secure bool, log *slog.Logger) *SessionMiddleware {
	if log == nil {
		log = slog.Default()
	}
	return &SessionMiddleware{tokens: tokens, sessions: sessions, secure: secure, log: log}
}

// Attach resolves the browser session from the admin_session cookie, issuing a
// new one when it is missing or invalid, and puts its slice on the context.
func (m *SessionMiddleware) Attach() gin.HandlerFunc {
	return func(c *gin.Context) {
		sid := ""
		if raw, err := c.Cookie(SessionCookie); err == nil && raw != "" {
			if claims, err := m.tokens.VerifySessionToken(raw); err == nil {
				sid = claims.SessionID
			}
		}

		if sid == "" {
			sid = auth.NewSessionID()
			raw, exp, err := m.tokens.GenerateSessionToken(sid)
			if err != nil {
				m.log.ErrorContext(c.Request.Context(), "issue session token failed", "err", err)
				abortError(c, http.StatusInternalServerError, "internal_error", "Could not start a session")
				return
			}
			http.SetCookie(c.Writer, &http.Cookie{
				Name:     SessionCookie,
				Value:    raw,
				Path:     "/",
				Expires:  exp,
				MaxAge:   int(time.Until(exp).Seconds()),
				HttpOnly: true,
				Secure:   m.secure,
				SameSite: http.SameSiteLaxMode,
			})
		}

		slice, err := m.sessions.Open(c.Request.Context(), sid)
		if err != nil {
			m.log.ErrorContext(c.Request.Context(), "open session failed", "session_id", sid, "err", err)
			abortError(c, http.StatusServiceUnavailable, "session_unavailable", "Session store is unavailable")
			return
		}

		WithSession(c, sid, slice)
		c.Next()
	}
}

// WithSession stores the session on the gin context.
func WithSession(c *gin.Context, sessionID string, slice *session.Slice) {
	c.Set(CtxSessionID, sessionID)
	c.Set(CtxSession, slice)
}

func SessionIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(CtxSessionID)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

func SessionFromContext(c *gin.Context) (*session.Slice, bool) {
	v, ok := c.Get(CtxSession)
	if !ok {
		return nil, false
	}
	s, ok := v.(*session.Slice)
	return s, ok && s != nil
}

// RequireLogin stops requests from sessions nobody is logged into. Pages get
// the login popup and a redirect home; the api gets a 401.
func RequireLogin(pages bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := SessionFromContext(c)
		if ok && s.State().IsLoggedIn {
			c.Next()
			return
		}

		if pages && ok {
			s.ShowLoginPopUp()
			c.Redirect(http.StatusSeeOther, "/")
			c.Abort()
			return
		}
		abortError(c, http.StatusUnauthorized, "unauthorized", "Login required")
	}
}

func RequireRole(required string, pages bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := SessionFromContext(c)
		if !ok {
			abortError(c, http.StatusUnauthorized, "unauthorized", "Missing session context")
			return
		}

		if s.State().Role != required {
			if pages {
				c.Data(http.StatusForbidden, "text/plain; charset=utf-8", []byte("Admin role required"))
				c.Abort()
				return
			}
			abortError(c, http.StatusForbidden, "forbidden", "Admin role required")
			return
		}
		c.Next()
	}
}

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/geocoder89/shopadmin/internal/domain/login"
	"github.com/geocoder89/shopadmin/internal/http/middlewares"
	"github.com/geocoder89/shopadmin/internal/productview"
	"github.com/geocoder89/shopadmin/internal/session"
	"github.com/geocoder89/shopadmin/internal/upstream/authapi"
	"github.com/gin-gonic/gin"
)

// ProductViews hands out the product view mounted for a browser session.
type ProductViews interface {
	Products(ctx context.Context, sessionID string) *productview.Controller
	Remount(sessionID string)
}

type SessionHandler struct {
	views        ProductViews
	loginTimeout time.Duration
}

func NewSessionHandler(views ProductViews, loginTimeout time.Duration) *SessionHandler {
	if loginTimeout <= 0 {
		loginTimeout = 5 * time.Second
	}
	return &SessionHandler{views: views, loginTimeout: loginTimeout}
}

type sessionResponse struct {
	Session session.State `json:"session"`
}

func currentSession(ctx *gin.Context) (string, *session.Slice, bool) {
	sid, ok := middlewares.SessionIDFromContext(ctx)
	if !ok {
		return "", nil, false
	}
	s, ok := middlewares.SessionFromContext(ctx)
	return sid, s, ok
}

func (h *SessionHandler) sessionOr500(ctx *gin.Context) (string, *session.Slice, bool) {
	sid, s, ok := currentSession(ctx)
	if !ok {
		RespondInternal(ctx, "Session missing from request context")
	}
	return sid, s, ok
}

func (h *SessionHandler) GetSession(ctx *gin.Context) {
	_, s, ok := h.sessionOr500(ctx)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, sessionResponse{Session: s.State()})
}

func (h *SessionHandler) transition(fn func(*session.Slice) session.State) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		_, s, ok := h.sessionOr500(ctx)
		if !ok {
			return
		}
		ctx.JSON(http.StatusOK, sessionResponse{Session: fn(s)})
	}
}

func (h *SessionHandler) ShowPopUp() gin.HandlerFunc {
	return h.transition((*session.Slice).ShowLoginPopUp)
}

func (h *SessionHandler) HidePopUp() gin.HandlerFunc {
	return h.transition((*session.Slice).HideLoginPopUp)
}

func (h *SessionHandler) ShowWarning() gin.HandlerFunc {
	return h.transition((*session.Slice).ShowLogoutWarning)
}

func (h *SessionHandler) HideWarning() gin.HandlerFunc {
	return h.transition((*session.Slice).HideLogoutWarning)
}

func (h *SessionHandler) Login(ctx *gin.Context) {
	sid, s, ok := h.sessionOr500(ctx)
	if !ok {
		return
	}

	var req login.Credentials
	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), h.loginTimeout)
	defer cancel()

	out, st := s.Login(cctx, req)

	switch o := out.(type) {
	case login.Accepted:
		h.views.Remount(sid)
		ctx.JSON(http.StatusOK, sessionResponse{Session: st})
	case login.Rejected:
		RespondError(ctx, http.StatusUnauthorized, "login_rejected", o.Status, sessionResponse{Session: st})
	case login.Failed:
		if authapi.IsCircuitOpen(o) {
			RespondUnavailable(ctx, "auth_unavailable", "Login is temporarily unavailable", sessionResponse{Session: st})
			return
		}
		RespondError(ctx, http.StatusBadGateway, "auth_failed", "Login could not be completed", sessionResponse{Session: st})
	}
}

func (h *SessionHandler) Logout(ctx *gin.Context) {
	sid, s, ok := h.sessionOr500(ctx)
	if !ok {
		return
	}
	st := s.Logout()
	h.views.Remount(sid)
	ctx.JSON(http.StatusOK, sessionResponse{Session: st})
}

// SessionEnder drops everything stored for a browser session.
type SessionEnder interface {
	Forget(ctx context.Context, sessionID string) error
}

// End forgets the session and expires its cookie; the next request starts a
// fresh one.
func (h *SessionHandler) End(sessions SessionEnder) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		sid, _, ok := h.sessionOr500(ctx)
		if !ok {
			return
		}
		if err := sessions.Forget(ctx.Request.Context(), sid); err != nil {
			RespondUnavailable(ctx, "session_unavailable", "Session could not be ended", nil)
			return
		}
		http.SetCookie(ctx.Writer, &http.Cookie{
			Name:     middlewares.SessionCookie,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		ctx.Status(http.StatusNoContent)
	}
}

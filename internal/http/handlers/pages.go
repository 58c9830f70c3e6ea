package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/geocoder89/shopadmin/internal/domain/login"
	"github.com/geocoder89/shopadmin/internal/http/flash"
	"github.com/geocoder89/shopadmin/internal/http/middlewares"
	"github.com/geocoder89/shopadmin/internal/productview"
	"github.com/geocoder89/shopadmin/internal/session"
	"github.com/geocoder89/shopadmin/internal/upstream/authapi"
	"github.com/gin-gonic/gin"
)

type FormTokenIssuer interface {
	FormToken(sessionID string) string
}

// PagesHandler serves the server-rendered admin panel.
type PagesHandler struct {
	views        ProductViews
	tokens       FormTokenIssuer
	adminRole    string
	loginTimeout time.Duration
}

func NewPagesHandler(views ProductViews, tokens FormTokenIssuer, adminRole string, loginTimeout time.Duration) *PagesHandler {
	if loginTimeout <= 0 {
		loginTimeout = 5 * time.Second
	}
	return &PagesHandler{views: views, tokens: tokens, adminRole: adminRole, loginTimeout: loginTimeout}
}

type pageData struct {
	Title     string
	Refresh   int
	Session   session.State
	FormToken string
	Flash     *flash.Flash
	Page      productview.Page
}

func (h *PagesHandler) data(ctx *gin.Context, title string) (pageData, string, *session.Slice, bool) {
	sid, s, ok := currentSession(ctx)
	if !ok {
		ctx.String(http.StatusInternalServerError, "session missing")
		return pageData{}, "", nil, false
	}
	return pageData{
		Title:     title,
		Session:   s.State(),
		FormToken: h.tokens.FormToken(sid),
		Flash:     middlewares.GetFlash(ctx),
	}, sid, s, true
}

func seeOther(ctx *gin.Context, location string) {
	ctx.Redirect(http.StatusSeeOther, location)
}

func (h *PagesHandler) Home(ctx *gin.Context) {
	d, _, _, ok := h.data(ctx, "Home")
	if !ok {
		return
	}
	ctx.HTML(http.StatusOK, "home.html", d)
}

// TogglePopUp handles show=1|0 for the login popup.
func (h *PagesHandler) TogglePopUp(ctx *gin.Context) {
	_, s, ok := currentSession(ctx)
	if !ok {
		ctx.String(http.StatusInternalServerError, "session missing")
		return
	}
	if ctx.PostForm("show") == "1" {
		s.ShowLoginPopUp()
	} else {
		s.HideLoginPopUp()
	}
	seeOther(ctx, "/")
}

// ToggleWarning handles show=1|0 for the logout warning.
func (h *PagesHandler) ToggleWarning(ctx *gin.Context) {
	_, s, ok := currentSession(ctx)
	if !ok {
		ctx.String(http.StatusInternalServerError, "session missing")
		return
	}
	if ctx.PostForm("show") == "1" {
		s.ShowLogoutWarning()
	} else {
		s.HideLogoutWarning()
	}
	seeOther(ctx, "/")
}

// Login posts the popup form. Whatever happens the browser goes back to a
// page that shows the result; only a successful admin login lands on products.
func (h *PagesHandler) Login(ctx *gin.Context) {
	sid, s, ok := currentSession(ctx)
	if !ok {
		ctx.String(http.StatusInternalServerError, "session missing")
		return
	}

	var creds login.Credentials
	if fields := bindFormFields(ctx, &creds); fields != nil {
		ctx.String(http.StatusBadRequest, "%s %s", fields[0].Field, fields[0].Message)
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), h.loginTimeout)
	defer cancel()

	out, st := s.Login(cctx, creds)
	switch {
	case authapi.IsCircuitOpen(out):
		middlewares.SetFlash(ctx, flash.Flash{Kind: flash.KindError, Message: "Login is temporarily unavailable."})
	case isAccepted(out):
		h.views.Remount(sid)
		if st.Role == h.adminRole {
			seeOther(ctx, "/admin/products")
			return
		}
	}
	seeOther(ctx, "/")
}

func isAccepted(out login.Outcome) bool {
	_, ok := out.(login.Accepted)
	return ok
}

func (h *PagesHandler) Logout(ctx *gin.Context) {
	sid, s, ok := currentSession(ctx)
	if !ok {
		ctx.String(http.StatusInternalServerError, "session missing")
		return
	}
	s.Logout()
	h.views.Remount(sid)
	middlewares.SetFlash(ctx, flash.Flash{Kind: flash.KindInfo, Message: "You have been logged out."})
	seeOther(ctx, "/")
}

func pageFromQuery(ctx *gin.Context) (int, bool) {
	raw := ctx.Query("page")
	if raw == "" {
		return 1, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// Products renders the product table, or a self-refreshing loading page while
// the first fetch is running.
func (h *PagesHandler) Products(ctx *gin.Context) {
	page, ok := pageFromQuery(ctx)
	if !ok {
		ctx.String(http.StatusBadRequest, "page must be a positive integer")
		return
	}

	d, sid, _, ok := h.data(ctx, "Products")
	if !ok {
		return
	}

	c := h.views.Products(ctx.Request.Context(), sid)
	d.Page = c.View(page)

	if d.Page.Loading {
		d.Refresh = 1
		ctx.HTML(http.StatusOK, "loading.html", d)
		return
	}
	ctx.HTML(http.StatusOK, "products.html", d)
}

func (h *PagesHandler) DeleteProduct(ctx *gin.Context) {
	page, ok := pageFromQuery(ctx)
	if !ok {
		page = 1
	}

	sid, _, ok := currentSession(ctx)
	if !ok {
		ctx.String(http.StatusInternalServerError, "session missing")
		return
	}

	id := ctx.Param("id")
	if h.views.Products(ctx.Request.Context(), sid).Delete(ctx.Request.Context(), id) {
		middlewares.SetFlash(ctx, flash.Flash{Kind: flash.KindInfo, Message: fmt.Sprintf("Product %s deleted.", id)})
	} else {
		middlewares.SetFlash(ctx, flash.Flash{Kind: flash.KindWarning, Message: fmt.Sprintf("Product %s is not in the table.", id)})
	}
	seeOther(ctx, "/admin/products?page="+strconv.Itoa(page))
}

func (h *PagesHandler) Reload(ctx *gin.Context) {
	sid, _, ok := currentSession(ctx)
	if !ok {
		ctx.String(http.StatusInternalServerError, "session missing")
		return
	}
	h.views.Remount(sid)
	middlewares.SetFlash(ctx, flash.Flash{Kind: flash.KindInfo, Message: "Product list reloaded."})
	seeOther(ctx, "/admin/products")
}

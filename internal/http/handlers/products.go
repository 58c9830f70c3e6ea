package handlers

import (
	"net/http"
	"time"

	"github.com/geocoder89/shopadmin/internal/productview"
	"github.com/geocoder89/shopadmin/internal/state"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type pageQuery struct {
	Page int `form:"page" binding:"omitempty,min=1"`
}

type ProductsHandler struct {
	views    ProductViews
	upgrader websocket.Upgrader
}

// NewProductsHandler builds the product api. allowedOrigins are the cross
// origin pages that may open the live stream; same-origin pages always may.
func NewProductsHandler(views ProductViews, allowedOrigins []string) *ProductsHandler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}

	return &ProductsHandler{
		views: views,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				if _, ok := allowed[origin]; ok {
					return true
				}
				return origin == "http://"+r.Host || origin == "https://"+r.Host
			},
		},
	}
}

type deleteResponse struct {
	Deleted string           `json:"deleted"`
	Policy  string           `json:"policy"`
	Page    productview.Page `json:"page"`
}

func (h *ProductsHandler) controller(ctx *gin.Context) (*productview.Controller, bool) {
	sid, _, ok := currentSession(ctx)
	if !ok {
		RespondInternal(ctx, "Session missing from request context")
		return nil, false
	}
	return h.views.Products(ctx.Request.Context(), sid), true
}

// List serves one page of the product table. While the first fetch is still
// running the page comes back with loading=true and no rows.
func (h *ProductsHandler) List(ctx *gin.Context) {
	var q pageQuery
	if !BindQuery(ctx, &q) {
		return
	}

	c, ok := h.controller(ctx)
	if !ok {
		return
	}

	RespondPage(ctx, http.StatusOK, c.View(q.Page))
}

func (h *ProductsHandler) Delete(ctx *gin.Context) {
	var q pageQuery
	if !BindQuery(ctx, &q) {
		return
	}

	c, ok := h.controller(ctx)
	if !ok {
		return
	}

	id := ctx.Param("id")
	if !c.Delete(ctx.Request.Context(), id) {
		RespondNotFound(ctx, "Product not found")
		return
	}

	ctx.JSON(http.StatusAccepted, deleteResponse{
		Deleted: id,
		Policy:  c.Policy().String(),
		Page:    c.View(q.Page),
	})
}

const (
	streamWriteWait  = 5 * time.Second
	streamPingPeriod = 30 * time.Second
)

// Stream upgrades to a websocket and pushes the requested page every time the
// product table changes. A remount (reload, login) moves the stream onto the
// new product view; a logout closes it.
func (h *ProductsHandler) Stream(ctx *gin.Context) {
	var q pageQuery
	if !BindQuery(ctx, &q) {
		return
	}

	sid, sess, ok := currentSession(ctx)
	if !ok {
		RespondInternal(ctx, "Session missing from request context")
		return
	}
	reqCtx := ctx.Request.Context()
	c := h.views.Products(reqCtx, sid)

	conn, err := h.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		// the upgrader already answered with an http error
		return
	}
	defer conn.Close()

	changed := make(chan struct{}, 1)
	notify := func(productview.ListState, state.Action) {
		select {
		case changed <- struct{}{}:
		default:
		}
	}
	unsubscribe := c.Subscribe(notify)
	defer func() { unsubscribe() }()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func() error {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		return conn.WriteJSON(c.View(q.Page))
	}

	if err := send(); err != nil {
		return
	}

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-reqCtx.Done():
			return
		case <-c.Done():
			unsubscribe()
			if !sess.State().IsLoggedIn {
				msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "logged out")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(streamWriteWait))
				return
			}
			c = h.views.Products(reqCtx, sid)
			unsubscribe = c.Subscribe(notify)
			if err := send(); err != nil {
				return
			}
		case <-changed:
			if err := send(); err != nil {
				return
			}
		case <-ping.C:
			// keeps the view of a watched but otherwise idle session from expiring
			h.views.Products(reqCtx, sid)
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		}
	}
}

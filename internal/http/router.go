package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/geocoder89/shopadmin/internal/auth"
	"github.com/geocoder89/shopadmin/internal/config"
	"github.com/geocoder89/shopadmin/internal/http/flash"
	"github.com/geocoder89/shopadmin/internal/http/handlers"
	"github.com/geocoder89/shopadmin/internal/http/middlewares"
	"github.com/geocoder89/shopadmin/internal/http/templates"
	"github.com/geocoder89/shopadmin/internal/observability"
	"github.com/geocoder89/shopadmin/internal/sessions"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type Deps struct {
	Log      *slog.Logger
	Cfg      config.Config
	Sessions *sessions.Manager
	Tokens   *auth.Manager

	// optional
	Prom         *observability.Prom
	Gatherer     prometheus.Gatherer
	Ping         func(ctx context.Context) error
	LoginLimiter *middlewares.RateLimiter
}

func NewRouter(d Deps) (*gin.Engine, error) {
	if d.Cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	tmpl, err := templates.Load()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	r := gin.New()
	r.SetHTMLTemplate(tmpl)

	// middleware
	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(otelgin.Middleware(d.Cfg.ServiceName))
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.RequestLogger(d.Log))
	r.Use(middlewares.SecurityHeaders())

	// ops
	h := handlers.NewHealthHandler(d.Ping)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	limiter := d.LoginLimiter
	if limiter == nil {
		limiter = middlewares.NewRateLimiter(d.Cfg.LoginRateLimit, d.Cfg.LoginRateWindow)
	}
	limitLogin := limiter.RateLimiterMiddleware(middlewares.KeyByIP)

	secure := d.Cfg.Env == "prod"
	sessionMW := middlewares.NewSessionMiddleware(d.Tokens, d.Sessions, secure, d.Log)
	flashes := flash.NewCodec([]byte("flash:"+d.Cfg.SessionSecret), "admin_flash", secure)
	role := d.Cfg.AdminRole

	// html pages
	pages := handlers.NewPagesHandler(d.Sessions, d.Tokens, role, d.Cfg.UpstreamTimeout)
	ui := r.Group("/", sessionMW.Attach(), middlewares.Flash(flashes), middlewares.RequireFormToken(d.Tokens))
	ui.GET("/", pages.Home)
	ui.POST("/ui/popup", pages.TogglePopUp)
	ui.POST("/ui/warning", pages.ToggleWarning)
	ui.POST("/login", limitLogin, pages.Login)
	ui.POST("/logout", pages.Logout)

	admin := ui.Group("/admin", middlewares.RequireLogin(true), middlewares.RequireRole(role, true))
	admin.GET("/products", pages.Products)
	admin.POST("/products/:id/delete", pages.DeleteProduct)
	admin.POST("/products/reload", pages.Reload)

	// json api
	sh := handlers.NewSessionHandler(d.Sessions, d.Cfg.UpstreamTimeout)
	ph := handlers.NewProductsHandler(d.Sessions, d.Cfg.CORSAllowedOrigins)

	api := r.Group("/api",
		middlewares.CORSMiddleware(d.Cfg.CORSAllowedOrigins),
		middlewares.RequireJSON(),
		middlewares.MaxBodyBytes(1<<20),
	)
	// preflight is answered by the CORS middleware
	api.OPTIONS("/*path", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	withSession := api.Group("", sessionMW.Attach())
	withSession.GET("/session", sh.GetSession)
	withSession.DELETE("/session", sh.End(d.Sessions))
	withSession.POST("/session/popup", sh.ShowPopUp())
	withSession.DELETE("/session/popup", sh.HidePopUp())
	withSession.POST("/session/warning", sh.ShowWarning())
	withSession.DELETE("/session/warning", sh.HideWarning())
	withSession.POST("/login", limitLogin, sh.Login)
	withSession.POST("/logout", sh.Logout)

	products := withSession.Group("/products", middlewares.RequireLogin(false), middlewares.RequireRole(role, false))
	products.GET("", ph.List)
	products.GET("/stream", ph.Stream)
	products.DELETE("/:id", ph.Delete)

	return r, nil
}

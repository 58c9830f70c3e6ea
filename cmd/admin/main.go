package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/shopadmin/internal/auth"
	"github.com/geocoder89/shopadmin/internal/config"
	"github.com/geocoder89/shopadmin/internal/domain/product"
	httpx "github.com/geocoder89/shopadmin/internal/http"
	"github.com/geocoder89/shopadmin/internal/observability"
	"github.com/geocoder89/shopadmin/internal/productview"
	"github.com/geocoder89/shopadmin/internal/redisclient"
	"github.com/geocoder89/shopadmin/internal/repo/memory"
	redisrepo "github.com/geocoder89/shopadmin/internal/repo/redis"
	"github.com/geocoder89/shopadmin/internal/sessions"
	"github.com/geocoder89/shopadmin/internal/upstream"
	"github.com/geocoder89/shopadmin/internal/upstream/authapi"
	"github.com/geocoder89/shopadmin/internal/upstream/productapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)

	shutdownTracer, err := observability.InitTracer(context.Background(), cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	breakerCfg := upstream.BreakerConfig{
		Timeout:          cfg.UpstreamTimeout,
		FailureThreshold: cfg.BreakerFailureThreshold,
		Cooldown:         cfg.BreakerCooldown,
	}

	products, err := productapi.New(productapi.Config{
		BaseURL:      cfg.ProductAPIURL,
		ProductsPath: cfg.ProductsPath,
		Breaker:      upstream.NewBreaker(breakerCfg),
		Observer:     prom,
	})
	if err != nil {
		log.Error("product api client", "err", err)
		os.Exit(1)
	}

	authClient, err := authapi.New(authapi.Config{
		BaseURL:   cfg.AuthAPIURL,
		LoginPath: cfg.LoginPath,
		Breaker:   upstream.NewBreaker(breakerCfg),
		Observer:  prom,
	})
	if err != nil {
		log.Error("auth api client", "err", err)
		os.Exit(1)
	}

	policy, err := productview.ParseDeletePolicy(cfg.DeletePolicy)
	if err != nil {
		log.Error("invalid config", "err", err)
		os.Exit(1)
	}

	// session state lives in redis when configured, in process otherwise
	var (
		store     sessions.Store
		ping      func(ctx context.Context) error
		memStore  *memory.SessionsRepo
		redisConn *redisclient.Client
	)
	if cfg.RedisAddr != "" {
		redisConn = redisclient.New(redisclient.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   "shopadmin:",
		})
		store = redisrepo.NewSessionsRepo(redisConn, cfg.SessionTTL)
		ping = redisConn.Ping
		log.Info("session store", "kind", "redis", "addr", cfg.RedisAddr)
	} else {
		memStore = memory.NewSessionsRepo(cfg.SessionTTL)
		store = memStore
		log.Info("session store", "kind", "memory")
	}

	mgr := sessions.NewManager(sessions.Config{
		Store:    store,
		Auth:     authClient,
		Products: products,
		View: productview.Options{
			Projector: product.Projector{Layout: cfg.DateTimeFormat, Location: cfg.Location()},
			Policy:    policy,
			Metrics:   prom,
		},
		TTL:    cfg.SessionTTL,
		Logger: log,
	})

	router, err := httpx.NewRouter(httpx.Deps{
		Log:      log,
		Cfg:      cfg,
		Sessions: mgr,
		Tokens:   auth.NewManager(cfg.SessionSecret, cfg.SessionTTL),
		Prom:     prom,
		Gatherer: reg,
		Ping:     ping,
	})
	if err != nil {
		log.Error("router setup failed", "err", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// the product stream is long lived; its writes carry their own deadlines
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go sweep(sweepCtx, time.Minute, func() {
		live := mgr.Sweep()
		saved := 0
		if memStore != nil {
			saved = memStore.Sweep()
		}
		if live+saved > 0 {
			log.Debug("expired sessions swept", "live", live, "states", saved)
		}
	})

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env, "product_api", cfg.ProductAPIURL, "delete_policy", policy.String())
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")
	stopSweep()

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		ctx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}
		if err := shutdownTracer(ctx); err != nil {
			log.Error("tracer shutdown failed", "err", err)
		}
		if redisConn != nil {
			_ = redisConn.Close()
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}

func sweep(ctx context.Context, every time.Duration, fn func()) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn()
		}
	}
}

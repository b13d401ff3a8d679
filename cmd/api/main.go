package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"audit-portal/internal/audit"
	"audit-portal/internal/auth"
	"audit-portal/internal/config"
	"audit-portal/internal/consultation"
	"audit-portal/internal/httpapi"
	"audit-portal/internal/ledger"
	"audit-portal/internal/payments"
	"audit-portal/internal/quoting"
	"audit-portal/internal/reporting"
	"audit-portal/internal/storage"
	"audit-portal/internal/store"
	"audit-portal/internal/ws"
	"audit-portal/pkg/logger"
	"audit-portal/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, dialect, err := openDatabase(rootCtx, cfg)
	if err != nil {
		log.Error("database init failed", "err", err, "driver", cfg.DB.Driver)
		os.Exit(1)
	}
	defer db.Close()

	st := store.NewSQL(db, dialect)
	if err := st.Migrate(rootCtx); err != nil {
		log.Error("migration failed", "err", err)
		os.Exit(1)
	}
	if cfg.Quoting.CatalogPath != "" {
		cats, err := quoting.LoadCatalog(cfg.Quoting.CatalogPath)
		if err != nil {
			log.Error("catalog load failed", "err", err, "path", cfg.Quoting.CatalogPath)
			os.Exit(1)
		}
		if err := st.SeedCategories(rootCtx, cats); err != nil {
			log.Error("catalog seed failed", "err", err)
			os.Exit(1)
		}
		log.Info("catalog seeded", "categories", len(cats))
	}

	var rdb *redis.Client
	if cfg.RedisEnabled() {
		rdb, err = utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
	}

	hub := ws.NewHub(log)
	auditSvc := audit.NewService(st)
	ledgerSvc := ledger.NewService(st.Ledger(), auditSvc)
	consultations := consultation.NewService(st, consultation.Options{
		SurchargePercent: cfg.Quoting.MeetingSurchargePercent,
		Audit:            consultation.AuditAdapter{Audit: auditSvc},
		Publisher:        hub,
	})

	paymentsSvc, err := newPayments(cfg, ledgerSvc, rdb)
	if err != nil {
		log.Error("payments init failed", "err", err)
		os.Exit(1)
	}

	files, err := storage.NewLocal(cfg.Storage.Path, cfg.Storage.PublicPrefix, cfg.Storage.MaxUploadSize)
	if err != nil {
		log.Error("storage init failed", "err", err)
		os.Exit(1)
	}

	h := httpapi.Handlers{
		Auth:          authManager,
		Consultations: consultations,
		Ledger:        ledgerSvc,
		Categories:    st,
		Payments:      paymentsSvc,
		Reports:       reporting.NewService(st),
		Files:         files,
		Hub:           hub,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browsers connect from the portal origin; tokens gate access.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		MaxUploadSize: cfg.Storage.MaxUploadSize,
	}

	ready := map[string]healthFunc{
		"database": func(ctx context.Context) error { return utils.HealthCheck(ctx, db.DB, 2*time.Second) },
	}
	if rdb != nil {
		ready["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(httpapi.ClientIP())
	r.Use(httpapi.RateLimit(cfg.RateLimit.Limit, cfg.RateLimit.Period))

	registerRoutes(r, h, auth.RequireAccessToken(authManager), routeOptions{
		EnableLogin: cfg.IsLocal(),
		Ready:       ready,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Websocket connections manage their own deadlines.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "driver", cfg.DB.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	log.Info("shutdown complete")
}

func openDatabase(ctx context.Context, cfg config.Config) (*sqlx.DB, store.Dialect, error) {
	dialect := store.Postgres
	pool := utils.PoolConfig{}
	if cfg.DB.Driver == config.DriverSQLite {
		dialect = store.SQLite
		pool = utils.SingleConnPool()
	}
	db, err := utils.OpenDB(ctx, dialect.DriverName(), cfg.DSN(), pool)
	if err != nil {
		return nil, "", err
	}
	return db, dialect, nil
}

func newPayments(cfg config.Config, ledgerSvc *ledger.Service, rdb *redis.Client) (*payments.Service, error) {
	opts := payments.Options{HourPrice: cfg.Payments.HourPrice, Currency: cfg.Payments.Currency}
	if rdb != nil {
		opts.Dedupe = payments.NewRedisDeduper(rdb, 0)
	}

	// A nil gateway makes checkout and webhooks answer 503.
	var gateway payments.Gateway
	if cfg.PaymentsEnabled() {
		mp, err := payments.NewMercadoPagoGateway(payments.MercadoPagoOptions{
			AccessToken:     cfg.Payments.AccessToken,
			NotificationURL: cfg.Payments.NotificationURL,
			SuccessURL:      cfg.Payments.SuccessURL,
			FailureURL:      cfg.Payments.FailureURL,
			Mock:            cfg.Payments.Mock,
		})
		if err != nil {
			return nil, err
		}
		gateway = mp
	}
	return payments.NewService(gateway, ledgerSvc, opts), nil
}

package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"taskhub.io/internal/audit"
	"taskhub.io/internal/auth"
	"taskhub.io/internal/config"
	"taskhub.io/internal/httpapi"
	"taskhub.io/internal/obs"
	"taskhub.io/internal/store"
	"taskhub.io/internal/store/memory"
	"taskhub.io/internal/store/pg"
	"taskhub.io/internal/tenant"
	"taskhub.io/internal/workspace"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

type backend interface {
	store.Store
	store.AuditSink
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := obs.InitLogger(cfg.Log.Level, cfg.Server.Env, "taskhub-api")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	obs.Init()
	obs.InitBuildInfo(version, commit)
	logger.Info("starting", append(cfg.LogFields(), zap.String("version", version))...)

	var (
		st      backend
		closeDB func() error
	)
	switch cfg.Database.Store {
	case config.StoreMemory:
		st = memory.New()
		logger.Warn("using in-memory store; data is lost on exit")
	default:
		pgStore, err := pg.Open(cfg.Database.DSN, pg.Pool{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			logger.Fatal("open db", zap.Error(err))
		}
		st, closeDB = pgStore, pgStore.Close
	}

	recorder := audit.NewRecorder(st,
		audit.WithLogger(logger.Named("audit")),
		audit.WithBuffer(cfg.Audit.Buffer),
		audit.WithWorkers(cfg.Audit.Workers),
		audit.WithWriteTimeout(cfg.Audit.Timeout),
	)

	tokens, err := auth.NewJWTTokens(cfg.Auth.Secret, cfg.Auth.Issuer, time.Now)
	if err != nil {
		logger.Fatal("token issuer", zap.Error(err))
	}
	hasher := auth.NewBcryptHasher(cfg.Auth.BcryptCost)
	dir := tenant.NewDirectory(st)
	authSvc, err := auth.NewService(st, dir, tokens,
		auth.WithHasher(hasher),
		auth.WithAuditor(recorder),
		auth.WithTokenTTL(cfg.Auth.TokenTTL),
		auth.WithLogger(logger.Named("auth")),
	)
	if err != nil {
		logger.Fatal("auth service", zap.Error(err))
	}
	ws := workspace.NewService(st, dir, hasher,
		workspace.WithAuditor(recorder),
		workspace.WithLogger(logger.Named("workspace")),
	)

	if cfg.Auth.BootstrapEmail != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		u, created, err := authSvc.BootstrapSuperAdmin(ctx, cfg.Auth.BootstrapEmail, cfg.Auth.BootstrapPassword, cfg.Auth.BootstrapName)
		cancel()
		if err != nil {
			logger.Fatal("bootstrap super admin", zap.Error(err))
		}
		logger.Info("super admin ready", zap.String("user_id", u.ID), zap.Bool("created", created))
	}

	proxies, err := httpapi.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		logger.Fatal("trusted proxies", zap.Error(err))
	}

	probe := httpapi.ReadyProbe{Store: st, Timeout: 2 * time.Second}
	api := httpapi.New(authSvc, ws, probe, version,
		httpapi.WithLogger(logger.Named("http")),
		httpapi.WithTrustedProxies(proxies),
		httpapi.WithLimits(httpapi.Limits{
			Burst:         cfg.Server.RateBurst,
			PerSecond:     cfg.Server.RatePerSecond,
			AuthBurst:     cfg.Server.AuthRateBurst,
			AuthPerSecond: cfg.Server.AuthRatePerSecond,
		}),
	)

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcSrv := grpc.NewServer()
	health := httpapi.NewGRPCServer(probe, logger.Named("grpc"))
	health.Register(grpcSrv)

	watchCtx, stopWatch := context.WithCancel(context.Background())
	go health.Watch(watchCtx, 10*time.Second)

	go func() {
		logger.Info("http listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http listen", zap.Error(err))
		}
	}()
	go func() {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			logger.Fatal("grpc listen", zap.Error(err))
		}
		logger.Info("grpc listening", zap.String("addr", cfg.Server.GRPCAddr))
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("grpc serve", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	stopWatch()
	health.Shutdown()
	obs.SetReady(false)
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	grpcSrv.GracefulStop()
	if err := recorder.Close(ctx); err != nil {
		logger.Warn("audit drain", zap.Error(err))
	}
	if closeDB != nil {
		_ = closeDB()
	}
	logger.Info("stopped")
}

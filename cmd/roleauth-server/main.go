// Command roleauth-server serves the session API backed by PostgreSQL and
// Redis, with audit events on Kafka and metrics on /metrics.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	roleAuth "github.com/MrEthical07/roleAuth"
	"github.com/MrEthical07/roleAuth/audit/kafka"
	"github.com/MrEthical07/roleAuth/config"
	dirpg "github.com/MrEthical07/roleAuth/directory/postgres"
	"github.com/MrEthical07/roleAuth/internal/httpapi"
	"github.com/MrEthical07/roleAuth/internal/telemetry"
	otelexport "github.com/MrEthical07/roleAuth/metrics/export/otel"
	promexport "github.com/MrEthical07/roleAuth/metrics/export/prometheus"
	respg "github.com/MrEthical07/roleAuth/resource/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("load config", zap.Error(err))
	}

	logger, err := newLogger(cfg.App)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func newLogger(app config.AppConfig) (*zap.Logger, error) {
	if app.IsProduction() {
		return zap.NewProduction()
	}
	if app.Debug {
		return zap.NewDevelopment()
	}
	c := zap.NewDevelopmentConfig()
	c.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	return c.Build()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// -------- TELEMETRY --------
	endpoint := ""
	if cfg.OTel.Enabled {
		endpoint = cfg.OTel.Endpoint
	}
	providers, err := telemetry.NewProviders(ctx, endpoint, cfg.OTel.ServiceName, cfg.OTel.Insecure)
	if err != nil {
		return err
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	// -------- POSTGRES --------
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return err
	}
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns
	poolCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return err
	}

	docs, err := respg.NewLoader(pool, respg.Options{Table: cfg.Database.ResourceTable})
	if err != nil {
		return err
	}

	// -------- REDIS --------
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return err
	}

	// -------- AUDIT --------
	var sink roleAuth.AuditSink = roleAuth.NewJSONWriterSink(os.Stdout)
	if cfg.Kafka.Enabled {
		client, err := kafka.NewClient(cfg.Kafka.Brokers, cfg.Kafka.ClientID)
		if err != nil {
			return err
		}
		defer client.Close()
		ks, err := kafka.NewSink(client, kafka.Config{Topic: cfg.Kafka.Topic, Logger: logger.Named("audit")})
		if err != nil {
			return err
		}
		sink = ks
	}

	// -------- ENGINE --------
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}
	engine, err := roleAuth.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithDirectory(dirpg.NewStore(pool)).
		WithAuditSink(sink).
		WithLogger(logger.Named("engine")).
		WithTracer(providers.TracerProvider.Tracer("github.com/MrEthical07/roleAuth")).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	latency, err := engine.Ping(ctx)
	if err != nil {
		return err
	}
	report := engine.SecurityReport()
	logger.Info("engine ready",
		zap.Duration("session_store_latency", latency),
		zap.String("signing_algorithm", report.SigningAlgorithm),
		zap.Duration("access_ttl", report.AccessTTL),
		zap.Bool("login_throttle", report.LoginThrottleActive),
		zap.Bool("switch_throttle", report.SwitchThrottleActive),
		zap.Bool("audit", report.AuditEnabled),
	)

	// -------- HTTP --------
	mux := http.NewServeMux()
	httpapi.New(engine, docs, logger.Named("http")).Register(mux)
	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, promexport.NewPrometheusExporter(engine).Handler())
		exp, err := otelexport.NewOTelExporter(providers.MeterProvider.Meter("github.com/MrEthical07/roleAuth"), engine)
		if err != nil {
			return err
		}
		defer func() { _ = exp.Close() }()
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr), zap.String("env", cfg.App.Environment))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Package server wires the auth service together: stores, token codec,
// notification sender, gRPC transport, health and tracing. It also owns the
// process lifecycle from start-up to graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	pb "github.com/dmitrijs2005/gophauth/internal/proto"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/health"
	"github.com/dmitrijs2005/gophauth/internal/server/notify"
	"github.com/dmitrijs2005/gophauth/internal/server/ratelimit"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"github.com/dmitrijs2005/gophauth/internal/server/sessions"
	"github.com/dmitrijs2005/gophauth/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"

	gs "github.com/dmitrijs2005/gophauth/internal/server/grpc"
)

const defaultShutdownTimeout = 10 * time.Second

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	store   *sessions.RedisStore
	auth    *services.AuthService
	server  *gs.GRPCServer
	watcher *health.Watcher

	shutdownTracing telemetry.ShutdownFunc
}

// NewApp connects to Postgres and Redis, applies migrations and builds the
// service graph. Everything opened so far is released again on error.
func NewApp(ctx context.Context, c *config.Config) (_ *App, err error) {
	logger, err := logging.NewJSONLogger(os.Stdout, c.LogLevel)
	if err != nil {
		return nil, err
	}

	a := &App{config: c, logger: logger}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	a.shutdownTracing, err = telemetry.Setup(ctx, c.OTLPEndpoint, c.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("tracing init error: %w", err)
	}

	a.db, err = repomanager.OpenPostgres(ctx, c.DatabaseDSN, repomanager.PoolConfig{
		MaxOpenConns:    c.DBMaxOpenConns,
		MaxIdleConns:    c.DBMaxIdleConns,
		ConnMaxLifetime: c.DBConnMaxLifetime,
		ConnectTimeout:  c.DBConnectTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err = rm.RunMigrations(ctx, a.db); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	a.store, err = sessions.NewRedisStore(ctx, sessions.RedisConfig{
		URL:         c.RedisURL,
		PoolSize:    c.RedisPoolSize,
		PoolTimeout: c.RedisPoolTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("redis init error: %w", err)
	}

	codec, err := auth.NewCodec([]byte(c.SecretKey))
	if err != nil {
		return nil, err
	}

	a.auth, err = services.NewAuthService(a.db, rm, a.store, codec, newSender(c, logger), logger, c)
	if err != nil {
		return nil, err
	}

	hs := grpchealth.NewServer()

	a.watcher = health.NewWatcher(hs, logger, c.HealthCheckInterval, "", pb.AuthService_ServiceName)
	a.watcher.AddCheck("postgres", a.db.PingContext)
	a.watcher.AddCheck("redis", a.store.Ping)
	a.watcher.AddStats("postgres", func() []any { return health.DBPoolStats(a.db.Stats()) })
	a.watcher.AddStats("redis", func() []any { return health.RedisPoolStats(a.store.Stats()) })

	proxies, err := c.TrustedProxyPrefixes()
	if err != nil {
		return nil, err
	}

	a.server = gs.NewGRPCServer(c.EndpointAddrGRPC, logger, a.auth,
		gs.WithHealth(hs),
		gs.WithRateLimiter(ratelimit.New(a.store), ratelimit.Policy{Limit: c.RateLimit, Window: c.RateLimitWindow}),
		gs.WithTrustedProxies(proxies),
		gs.WithServerOptions(grpc.StatsHandler(otelgrpc.NewServerHandler())),
	)

	return a, nil
}

// newSender mails reset links when SMTP is configured and logs them
// otherwise.
func newSender(c *config.Config, l logging.Logger) notify.Sender {
	if c.SMTPHost == "" {
		return notify.NewLogSender(l, c.ResetURLBase)
	}
	return notify.NewSMTPSender(notify.SMTPConfig{
		Host:         c.SMTPHost,
		Port:         c.SMTPPort,
		Username:     c.SMTPUsername,
		Password:     c.SMTPPassword,
		From:         c.SMTPFrom,
		ResetURLBase: c.ResetURLBase,
	})
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, "gRPC server failed", "error", err)
		cancelFunc()
	}
}

// Run serves until a termination signal arrives or ctx is cancelled, then
// drains pending reset link deliveries and releases every pool.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.watcher.Run(ctx)
	}()

	wg.Wait()

	timeout := app.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	app.close(shutdownCtx)

	app.logger.Info(shutdownCtx, "App stopped")
}

func (app *App) close(ctx context.Context) {
	if app.auth != nil {
		drained := make(chan struct{})
		go func() {
			app.auth.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-ctx.Done():
			app.logger.Warn(ctx, "pending notifications abandoned", "error", ctx.Err())
		}
	}

	if app.store != nil {
		if err := app.store.Close(); err != nil {
			app.logger.Error(ctx, "redis close error", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error(ctx, "db close error", "error", err)
		}
	}
	if app.shutdownTracing != nil {
		if err := app.shutdownTracing(ctx); err != nil {
			app.logger.Error(ctx, "tracing shutdown error", "error", err)
		}
	}
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/benvon/onetask/internal/auth"
	"github.com/benvon/onetask/internal/backend"
	"github.com/benvon/onetask/internal/config"
	"github.com/benvon/onetask/internal/dashboard"
	"github.com/benvon/onetask/internal/database"
	"github.com/benvon/onetask/internal/focus"
	"github.com/benvon/onetask/internal/logger"
	"github.com/benvon/onetask/internal/notify"
	"github.com/benvon/onetask/internal/queue"
	"github.com/benvon/onetask/internal/supabase"
	"github.com/benvon/onetask/internal/taskstore"
	"github.com/benvon/onetask/internal/telemetry"
	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// App is everything a command needs, built from configuration.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Backend   backend.Backend
	Auth      *auth.Manager
	Store     *taskstore.Store
	History   *focus.History
	Publisher queue.Publisher

	// DB is set for the postgres and sqlite backends.
	DB *database.DB
	// Broker is set when RabbitMQ is configured.
	Broker *queue.RabbitMQBroker
	// Redis is set when the shared cache is configured.
	Redis *redis.Client

	tracer  *sdktrace.TracerProvider
	closers []func() error
}

func newApp(ctx context.Context, flags *globalFlags) (*App, error) {
	var (
		cfg *config.Config
		err error
	)
	if flags.configPath != "" {
		cfg, err = config.LoadFile(flags.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	debug := cfg.Debug || flags.debug

	zapLogger, err := logger.New(logger.Format(flags.logFormat), debug)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	app := &App{Config: cfg, Logger: zapLogger, Publisher: queue.NopPublisher{}}
	if err := app.init(ctx); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	if cfg.OTELEnabled {
		tp, err := telemetry.InitTracer(ctx, telemetry.Settings{
			ServiceName:    telemetry.ServiceName,
			ServiceVersion: version,
			Endpoint:       cfg.OTELEndpoint,
			Insecure:       cfg.OTELInsecure,
			SampleRatio:    cfg.OTELSampleRatio,
		})
		if err != nil {
			a.Logger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			a.tracer = tp
			a.Logger.Debug("otel_tracer_initialized",
				zap.String("endpoint", cfg.OTELEndpoint),
				zap.Float64("sample_ratio", cfg.OTELSampleRatio))
		}
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	switch cfg.Backend {
	case config.BackendSupabase:
		a.Backend = supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseAnonKey, supabase.WithLogger(a.Logger))
	case config.BackendPostgres, config.BackendSQLite:
		driver := database.DriverPostgres
		if cfg.Backend == config.BackendSQLite {
			driver = database.DriverSQLite
		}
		db, err := database.Open(ctx, driver, cfg.DatabaseURL,
			database.WithSigningKey([]byte(cfg.JWTSecret)),
			database.WithLogger(a.Logger),
		)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		a.DB = db
		a.Backend = db
		a.closers = append(a.closers, db.Close)
	default:
		return fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	authOpts := []auth.Option{auth.WithLogger(a.Logger)}
	ring, err := auth.OpenKeyring(filepath.Join(cfg.DataDir, "keyring"))
	if err != nil {
		a.Logger.Warn("session_persistence_disabled", zap.Error(err))
	} else {
		authOpts = append(authOpts, auth.WithTokenStore(auth.NewKeyringStore(ring)))
	}
	a.Auth = auth.NewManager(a.Backend, authOpts...)
	if err := a.Auth.Restore(); err != nil {
		a.Logger.Warn("failed_to_restore_session", zap.Error(err))
	}
	if c, ok := a.Backend.(*supabase.Client); ok {
		c.SetTokenSource(a.Auth.TokenSource())
	}

	storeOpts := []taskstore.Option{
		taskstore.WithTTL(cfg.CacheTTL),
		taskstore.WithLogger(a.Logger),
	}
	if cfg.ConflictDetection {
		storeOpts = append(storeOpts, taskstore.WithConflictDetection())
	}
	if cfg.RedisURL != "" {
		client, err := taskstore.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			a.Logger.Warn("redis_cache_unavailable", zap.Error(err))
		} else {
			a.Redis = client
			a.closers = append(a.closers, client.Close)
			storeOpts = append(storeOpts, taskstore.WithCache(taskstore.NewRedisCache(client, cfg.CacheTTL)))
		}
	}
	a.Store = taskstore.New(a.Backend, a.Auth, storeOpts...)
	a.History = focus.NewHistory(a.Backend, a.Auth, a.Logger)

	if cfg.RabbitMQURL != "" {
		broker, err := queue.NewRabbitMQBroker(cfg.RabbitMQURL)
		if err != nil {
			a.Logger.Warn("event_publishing_disabled", zap.Error(err))
		} else {
			a.Broker = broker
			a.Publisher = broker
			a.closers = append(a.closers, broker.Close)
		}
	}

	return nil
}

// Controller builds the dashboard controller with the process notifier.
func (a *App) Controller(minutes int) (*dashboard.Controller, error) {
	permission, err := notify.ParsePermission(a.Config.NotificationPermission)
	if err != nil {
		return nil, err
	}
	var notifier notify.Notifier = notify.NewLocal(permission, notify.PermissionGranted, a.Logger)
	if a.Broker != nil {
		notifier = notify.NewBroadcast(notifier, a.Publisher, a.Auth.CurrentUserID, a.Logger)
	}

	if minutes <= 0 {
		minutes = a.Config.FocusMinutes
	}
	return dashboard.New(a.Store, focus.NewSuppressor(notifier, a.Logger),
		dashboard.WithRecorder(a.History),
		dashboard.WithPublisher(a.Publisher, a.Auth),
		dashboard.WithFocusMinutes(minutes),
		dashboard.WithLogger(a.Logger),
	), nil
}

// RequireUser fails with a hint when nobody is signed in.
func (a *App) RequireUser() error {
	if _, err := a.Auth.CurrentUserID(); err != nil {
		if errors.Is(err, backend.ErrNotAuthenticated) {
			return errors.New("not signed in (run 'onetask signin')")
		}
		return err
	}
	return nil
}

// Close releases connections and flushes telemetry.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("failed_to_close_resource", zap.Error(err))
		}
	}
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := telemetry.Shutdown(ctx, a.tracer); err != nil {
			a.Logger.Warn("failed_to_shutdown_otel_tracer", zap.Error(err))
		}
	}
	_ = logger.Sync(a.Logger)
}

// withApp builds the App for one command run.
func withApp(ctx context.Context, flags *globalFlags, fn func(*App) error) error {
	app, err := newApp(ctx, flags)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}

type redisChecker struct {
	client *redis.Client
}

func (r redisChecker) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

// Package database is a self-hosted backend: tasks, focus sessions and
// password accounts in Postgres or SQLite.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	defaultAccessTTL  = time.Hour
	defaultRefreshTTL = 30 * 24 * time.Hour

	// timeLayout is fixed width so stored timestamps sort lexically.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// DB wraps a sqlx connection pool and the signing key for local accounts.
type DB struct {
	*sqlx.DB

	driver     string
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// Option configures a DB.
type Option func(*DB)

// WithSigningKey sets the HS256 key used for access tokens.
func WithSigningKey(key []byte) Option {
	return func(db *DB) { db.secret = key }
}

// WithTokenTTL sets access and refresh token lifetimes.
func WithTokenTTL(access, refresh time.Duration) Option {
	return func(db *DB) {
		if access > 0 {
			db.accessTTL = access
		}
		if refresh > 0 {
			db.refreshTTL = refresh
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(db *DB) { db.logger = logger }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(db *DB) { db.now = now }
}

// Open connects to the database and applies pending migrations.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*DB, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{
		DB:         conn,
		driver:     driver,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(db)
	}
	if len(db.secret) == 0 {
		_ = conn.Close()
		return nil, fmt.Errorf("a signing key is required")
	}

	if driver == DriverSQLite {
		// A single connection serialises writers and keeps pragmas in effect.
		conn.SetMaxOpenConns(1)
		for _, pragma := range []string{"PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
			if _, err := conn.ExecContext(ctx, pragma); err != nil {
				_ = conn.Close()
				return nil, fmt.Errorf("failed to set %s: %w", pragma, err)
			}
		}
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db.logger.Info("database_opened", zap.String("driver", driver))
	return db, nil
}

func (db *DB) timestamp() time.Time {
	return db.now().UTC()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// HealthCheck pings the database.
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

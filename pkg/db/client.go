// Package db owns the GORM connection: driver selection, pool sizing, query
// logging and the transaction helper every repository write goes through.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/relivv-escrow/pkg/config"
	"github.com/angelmondragon/relivv-escrow/pkg/logger"
)

// slowQuery is the threshold above which statements are logged as warnings.
const slowQuery = 250 * time.Millisecond

type Client struct {
	conn *gorm.DB
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// New opens the configured driver, sizes the pool and checks connectivity.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database DSN is required")
	}
	conn, err := gorm.Open(dialector(cfg), &gorm.Config{
		Logger:                 queryLogger{logg: logg},
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	pool, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("sql handle: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		pool.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		pool.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	pool.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	client := &Client{conn: conn}
	if err := client.Ping(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "db_driver", cfg.Driver), "db.connected")
	}
	return client, nil
}

func dialector(cfg config.DBConfig) gorm.Dialector {
	if cfg.IsSQLite() {
		return sqlite.Open(cfg.DSN)
	}
	// Simple protocol keeps pgbouncer in transaction mode happy.
	return postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true})
}

// FromConn wraps an already opened connection.
func FromConn(conn *gorm.DB) *Client {
	return &Client{conn: conn}
}

func (c *Client) DB() *gorm.DB {
	return c.conn
}

func (c *Client) Ping(ctx context.Context) error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.PingContext(ctx)
}

func (c *Client) Close() error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.Close()
}

// WithTx runs fn in a transaction bound to ctx. An error or panic from fn
// rolls back.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.conn.WithContext(ctx).Transaction(fn)
}

// queryLogger sends failed and slow statements to the service logger and
// drops everything else.
type queryLogger struct {
	logg *logger.Logger
}

func (q queryLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface { return q }

func (q queryLogger) Info(context.Context, string, ...interface{}) {}

func (q queryLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if q.logg != nil {
		q.logg.Warn(ctx, "db: "+fmt.Sprintf(msg, args...))
	}
}

func (q queryLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if q.logg != nil {
		q.logg.Error(ctx, "db: "+fmt.Sprintf(msg, args...), nil)
	}
}

func (q queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if q.logg == nil {
		return
	}
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	if !failed && elapsed < slowQuery {
		return
	}
	sql, rows := fc()
	ctx = q.logg.WithFields(ctx, map[string]any{
		"sql":         sql,
		"rows":        rows,
		"duration_ms": elapsed.Milliseconds(),
	})
	if failed {
		// Constraint violations are routine here, so failures stay at warn.
		q.logg.Warn(q.logg.WithField(ctx, "error", err.Error()), "db.query_failed")
		return
	}
	q.logg.Warn(ctx, "db.query_slow")
}

package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/partsreserve-backend/pkg/config"
	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
)

const (
	defaultTxAttempts = 3
	txRetryBackoff    = 20 * time.Millisecond
)

// Client owns the shared gorm handle and runs engine transactions.
type Client struct {
	conn       *gorm.DB
	txAttempts int
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// New opens Postgres at cfg.DSN, or cfg.SQLitePath when useSQLite is set.
func New(ctx context.Context, cfg config.DBConfig, useSQLite bool, logg *logger.Logger) (*Client, error) {
	dialector, err := dialectorFor(cfg, useSQLite)
	if err != nil {
		return nil, err
	}
	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 newQueryLogger(logg, cfg.SlowQueryThreshold),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialector.Name(), err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("sql handle: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if useSQLite {
		// sqlite has one writer; queue on a single connection instead of SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if logg != nil {
		logg.Info(logg.WithField(ctx, "dialect", dialector.Name()), "database connection established")
	}
	return &Client{conn: conn, txAttempts: cfg.TxAttempts}, nil
}

func dialectorFor(cfg config.DBConfig, useSQLite bool) (gorm.Dialector, error) {
	switch {
	case useSQLite && cfg.SQLitePath == "":
		return nil, errors.New("sqlite path is required")
	case useSQLite:
		return sqlite.Open(cfg.SQLitePath), nil
	case cfg.DSN == "":
		return nil, errors.New("database DSN is required")
	}
	return postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true}), nil
}

// Wrap adapts an already opened connection, typically in-memory sqlite in
// tests.
func Wrap(conn *gorm.DB) *Client {
	return &Client{conn: conn}
}

func (c *Client) DB() *gorm.DB {
	return c.conn
}

func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (c *Client) Close() error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn in a transaction. A serialization failure or deadlock
// reruns fn from the start, so fn must not have effects outside tx. A
// context that ends before commit rolls back.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	attempts := c.txAttempts
	if attempts <= 0 {
		attempts = defaultTxAttempts
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = c.runTx(ctx, fn); err == nil || !IsRetryable(err) || attempt == attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(time.Duration(attempt) * txRetryBackoff):
		}
	}
	return err
}

func (c *Client) runTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	tx := c.conn.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		tx.Rollback()
		if r := recover(); r != nil {
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return err
	}
	committed = true
	return nil
}

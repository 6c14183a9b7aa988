package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/circuitbreaker"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Config holds database configuration
type Config struct {
	Driver          string                  `mapstructure:"driver"`
	Host            string                  `mapstructure:"host"`
	Port            int                     `mapstructure:"port"`
	User            string                  `mapstructure:"user"`
	Password        string                  `mapstructure:"password"`
	Database        string                  `mapstructure:"database"`
	SSLMode         string                  `mapstructure:"sslmode"`
	Path            string                  `mapstructure:"path"` // sqlite3 DSN
	MaxConnections  int                     `mapstructure:"max_connections"`
	IdleConnections int                     `mapstructure:"idle_connections"`
	MaxLifetime     time.Duration           `mapstructure:"max_lifetime"`
	AutoMigrate     bool                    `mapstructure:"auto_migrate"`
	HealthInterval  time.Duration           `mapstructure:"health_interval"`
	CircuitBreaker  circuitbreaker.Settings `mapstructure:"circuit_breaker"`
}

// DSN returns the driver-specific connection string
func (c *Config) DSN() string {
	if c.Driver == DriverSQLite {
		if c.Path == "" {
			return "file::memory:?cache=shared&_foreign_keys=on"
		}
		return c.Path
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Client is the document store for projects, series, episodes, research
// reports and knowledge base entries.
type Client struct {
	db     *circuitbreaker.DatabaseWrapper
	logger *zap.Logger
	now    func() time.Time
	stopCh chan struct{}
}

// NewClient opens the database, verifies the connection and optionally
// applies the schema.
func NewClient(config *Config, logger *zap.Logger) (*Client, error) {
	if config.Driver == "" {
		config.Driver = DriverPostgres
	}
	if config.MaxConnections == 0 {
		config.MaxConnections = 25
	}
	if config.IdleConnections == 0 {
		config.IdleConnections = 5
	}
	if config.MaxLifetime == 0 {
		config.MaxLifetime = 5 * time.Minute
	}
	if config.SSLMode == "" {
		config.SSLMode = "require"
	}
	if config.Driver == DriverSQLite {
		// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
		// It is never recycled so in-memory databases survive.
		config.MaxConnections = 1
		config.IdleConnections = 1
		config.MaxLifetime = 0
	}

	rawDB, err := sqlx.Open(config.Driver, config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	rawDB.SetMaxOpenConns(config.MaxConnections)
	rawDB.SetMaxIdleConns(config.IdleConnections)
	rawDB.SetConnMaxLifetime(config.MaxLifetime)

	client := newClient(circuitbreaker.NewDatabaseWrapper(rawDB, config.CircuitBreaker, logger), logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.db.PingContext(ctx); err != nil {
		rawDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if config.AutoMigrate {
		if err := client.Migrate(ctx); err != nil {
			rawDB.Close()
			return nil, err
		}
	}

	if config.HealthInterval > 0 {
		go client.healthCheck(config.HealthInterval)
	}

	logger.Info("Database client initialized",
		zap.String("driver", config.Driver),
		zap.String("host", config.Host),
		zap.Int("max_connections", config.MaxConnections),
	)
	return client, nil
}

// NewClientFromDB wraps an already opened handle. The caller owns migration.
func NewClientFromDB(db *sqlx.DB, settings circuitbreaker.Settings, logger *zap.Logger) *Client {
	return newClient(circuitbreaker.NewDatabaseWrapper(db, settings, logger), logger)
}

func newClient(db *circuitbreaker.DatabaseWrapper, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		stopCh: make(chan struct{}),
	}
}

func (c *Client) healthCheck(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := c.db.PingContext(ctx); err != nil {
				c.logger.Error("Database health check failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// Ping checks connectivity through the circuit breaker
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close stops the health check and closes the connection pool
func (c *Client) Close() error {
	c.logger.Info("Shutting down database client")
	close(c.stopCh)
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// Wrapper returns the underlying DatabaseWrapper for health checks and monitoring
func (c *Client) Wrapper() *circuitbreaker.DatabaseWrapper {
	return c.db
}

// WithTransaction runs fn in a circuit breaker protected transaction
func (c *Client) WithTransaction(ctx context.Context, fn func(*circuitbreaker.TxWrapper) error) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v, original error: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

func (c *Client) q(query string) string {
	return c.db.Rebind(query)
}

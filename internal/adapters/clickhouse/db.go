package clickhouse

import (
	"context"
	"fmt"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"cryptofolio/internal/adapters/config"
	"cryptofolio/pkg/logger"
)

// DB wraps the ClickHouse connection used by the snapshot store
type DB struct {
	conn *sqlx.DB
}

// New creates new ClickHouse connection
func New(cfg *config.ClickHouseConfig) (*DB, error) {
	conn, err := sqlx.Open("clickhouse", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse connection: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("clickhouse ping failed: %w", err)
	}

	logger.Info("clickhouse connection established",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
	)

	return &DB{conn: conn}, nil
}

// Close closes the connection
func (db *DB) Close() error {
	if db.conn != nil {
		logger.Info("closing clickhouse connection")
		return db.conn.Close()
	}
	return nil
}

// DB returns the sqlx handle used by the snapshot repository
func (db *DB) DB() *sqlx.DB {
	return db.conn
}

// Health checks clickhouse health
func (db *DB) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("clickhouse health check failed: %w", err)
	}

	return nil
}

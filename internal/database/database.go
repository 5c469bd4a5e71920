// Package database manages the MySQL connection backing the run ledger.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver

	"github.com/dbsmedya/refmetrics/internal/config"
)

// Manager owns the connection to the state database.
type Manager struct {
	State  *sql.DB
	config *config.StateConfig

	maxRetries int
	backoff    time.Duration
}

// NewManager creates a manager for cfg. No connection is opened until Connect.
func NewManager(cfg *config.StateConfig) *Manager {
	return &Manager{
		config:     cfg,
		maxRetries: 3,
		backoff:    time.Second,
	}
}

// Connect opens and verifies the state database connection.
func (m *Manager) Connect(ctx context.Context) error {
	if m.State != nil {
		return nil
	}
	if m.config == nil {
		return fmt.Errorf("state database is not configured")
	}

	db, err := m.connectWithRetry(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to state database: %w", err)
	}
	m.State = db
	return nil
}

// connectWithRetry attempts to connect with exponential backoff.
func (m *Manager) connectWithRetry(ctx context.Context) (*sql.DB, error) {
	var err error
	backoff := m.backoff

	for i := 0; i < m.maxRetries; i++ {
		var db *sql.DB
		db, err = sql.Open("mysql", BuildDSN(m.config))
		if err == nil {
			db.SetMaxOpenConns(4)
			db.SetMaxIdleConns(2)
			db.SetConnMaxLifetime(10 * time.Minute)

			if err = db.PingContext(ctx); err == nil {
				return db, nil
			}
			db.Close()
		}

		if i < m.maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}
	}

	return nil, fmt.Errorf("failed after %d retries: %w", m.maxRetries, err)
}

// BuildDSN constructs a MySQL DSN from the state configuration.
func BuildDSN(cfg *config.StateConfig) string {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	params := "?parseTime=true"
	switch cfg.TLS {
	case "disable":
		params += "&tls=false"
	case "required":
		params += "&tls=true"
	case "preferred", "":
		params += "&tls=preferred"
	}

	return dsn + params
}

// Ping verifies the connection is alive.
func (m *Manager) Ping(ctx context.Context) error {
	if m.State == nil {
		return fmt.Errorf("state database not connected")
	}
	if err := m.State.PingContext(ctx); err != nil {
		return fmt.Errorf("state ping failed: %w", err)
	}
	return nil
}

// Close closes the connection.
func (m *Manager) Close() error {
	if m.State == nil {
		return nil
	}
	err := m.State.Close()
	m.State = nil
	if err != nil {
		return fmt.Errorf("state close: %w", err)
	}
	return nil
}

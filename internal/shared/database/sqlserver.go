package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server driver

	"github.com/behavioral-quality/aimsreport/internal/shared/config"
)

// OpenSQLServer opens and verifies a connection pool to the clinical EHR
// database. The report only reads, so the pool stays small.
func OpenSQLServer(ctx context.Context, cfg config.SQLServerConfig) (*sql.DB, error) {
	db, err := sql.Open("sqlserver", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 10
	}
	idleConns := cfg.IdleConns
	if idleConns <= 0 || idleConns > maxConns {
		idleConns = maxConns / 2
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(idleConns)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

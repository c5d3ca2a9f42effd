package shared

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// driverNames maps configured driver names to registered [database/sql] drivers.
var driverNames = map[string]string{
	"sqlite3":    "sqlite3",
	"sqlite":     "sqlite3",
	"postgres":   "postgres",
	"postgresql": "postgres",
	"mysql":      "mysql",
}

// NewDatabase opens a connection to a SQLite database at the specified path.
// The path can be ":memory:" for an in-memory database.
// Returns an open database connection or an error if connection fails.
func NewDatabase(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// ConfigureDatabase sets connection pool settings for the database.
// Recommended for production use to limit connections and improve performance.
func ConfigureDatabase(db *sql.DB, maxOpenConns, maxIdleConns int) {
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
}

// DriverName normalizes a configured driver name ("postgresql" -> "postgres").
func DriverName(driver string) (string, error) {
	name, ok := driverNames[strings.ToLower(driver)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	return name, nil
}

// NormalizeDSN rewrites a DSN into the form the driver expects.
//
// Postgres URLs are converted to key/value form and MySQL DSNs always get parseTime enabled.
func NormalizeDSN(driver, dsn string) (string, error) {
	switch driver {
	case "postgres":
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			converted, err := pq.ParseURL(dsn)
			if err != nil {
				return "", fmt.Errorf("%w: invalid postgres url: %v", ErrInvalidConfig, err)
			}
			return converted, nil
		}
		return dsn, nil
	case "mysql":
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("%w: invalid mysql dsn: %v", ErrInvalidConfig, err)
		}
		cfg.ParseTime = true
		return cfg.FormatDSN(), nil
	default:
		return dsn, nil
	}
}

// OpenDatabase connects to the target database described by cfg and verifies the connection
// within the configured connect timeout.
func OpenDatabase(ctx context.Context, cfg DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, ErrDatabaseConfig
	}

	driver, err := DriverName(cfg.Driver)
	if err != nil {
		return nil, err
	}

	dsn, err := NormalizeDSN(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		ConfigureDatabase(db, cfg.MaxOpenConns, cfg.MaxIdleConns)
	}

	timeout := time.Duration(cfg.ConnectTimeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

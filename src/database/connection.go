// Package database opens the SQL store and creates the weatherdash schema
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"

	"github.com/apimgr/weatherdash/src/config"
)

// Dialect identifies the SQL flavour behind a DB
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectMSSQL    Dialect = "mssql"
)

// DB wraps *sql.DB with the dialect needed to write portable queries
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open connects to the configured database and verifies the connection
func Open(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	driver, dsn, dialect, err := dataSource(cfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pool := DefaultPoolConfig()
	if dialect == DialectSQLite {
		// modernc sqlite serialises writers; one connection avoids SQLITE_BUSY
		pool.MaxOpen = 1
		pool.MaxIdle = 1
		if cfg.Path == ":memory:" {
			// the database lives only as long as its single connection
			pool.MaxLifetime = 0
			pool.MaxIdleTime = 0
		}
	}
	sqlDB.SetMaxOpenConns(pool.MaxOpen)
	sqlDB.SetMaxIdleConns(pool.MaxIdle)
	sqlDB.SetConnMaxLifetime(pool.MaxLifetime)
	sqlDB.SetConnMaxIdleTime(pool.MaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, TimeoutPing)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if dialect == DialectSQLite {
		if _, err := sqlDB.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
		if cfg.Path != ":memory:" {
			if _, err := sqlDB.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
				sqlDB.Close()
				return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
			}
		}
	}

	return &DB{DB: sqlDB, Dialect: dialect}, nil
}

// OpenMemory opens an in-memory SQLite database with the schema applied
func OpenMemory(ctx context.Context) (*DB, error) {
	db, err := Open(ctx, config.DatabaseConfig{Type: "sqlite", Path: ":memory:"})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func dataSource(cfg config.DatabaseConfig) (driver, dsn string, dialect Dialect, err error) {
	switch strings.ToLower(cfg.Type) {
	case "", "sqlite":
		if cfg.Path == "" {
			return "", "", "", fmt.Errorf("database path required for SQLite")
		}
		return "sqlite", cfg.Path, DialectSQLite, nil

	case "postgres", "postgresql":
		sslMode := cfg.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, portOr(cfg.Port, 5432), cfg.User, cfg.Password, cfg.Name, sslMode)
		return "pgx", dsn, DialectPostgres, nil

	case "mysql", "mariadb":
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true",
			cfg.User, cfg.Password, cfg.Host, portOr(cfg.Port, 3306), cfg.Name)
		return "mysql", dsn, DialectMySQL, nil

	case "mssql", "sqlserver":
		dsn = fmt.Sprintf("server=%s;port=%d;database=%s;user id=%s;password=%s;encrypt=disable",
			cfg.Host, portOr(cfg.Port, 1433), cfg.Name, cfg.User, cfg.Password)
		return "sqlserver", dsn, DialectMSSQL, nil
	}

	return "", "", "", fmt.Errorf("unsupported database type: %s. Supported: sqlite, postgres, mysql, mariadb, mssql", cfg.Type)
}

func portOr(port, def int) int {
	if port > 0 {
		return port
	}
	return def
}

// Rebind rewrites ? placeholders into the dialect's bind syntax
func (db *DB) Rebind(query string) string {
	var prefix string
	switch db.Dialect {
	case DialectPostgres:
		prefix = "$"
	case DialectMSSQL:
		prefix = "@p"
	default:
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(prefix)
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Limit returns a row-limit clause to append after ORDER BY
func (db *DB) Limit(n int) string {
	if db.Dialect == DialectMSSQL {
		return fmt.Sprintf("OFFSET 0 ROWS FETCH NEXT %d ROWS ONLY", n)
	}
	return fmt.Sprintf("LIMIT %d", n)
}

package database

import (
	"context"
	"fmt"
	"strings"
)

// table is one CREATE TABLE statement plus the indexes created with it.
// Column types use placeholders expanded per dialect.
type table struct {
	name    string
	columns string
	indexes []string
}

var schema = []table{
	{
		name: "users",
		columns: `
			id {id} PRIMARY KEY,
			email {str} NOT NULL UNIQUE,
			password_hash {text} NOT NULL,
			created_at BIGINT NOT NULL,
			last_login_at BIGINT NULL`,
	},
	{
		name: "sessions",
		columns: `
			id {id} PRIMARY KEY,
			user_id {id} NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			ip_address {str} NOT NULL,
			user_agent {str} NOT NULL,
			created_at BIGINT NOT NULL,
			expires_at BIGINT NOT NULL`,
		indexes: []string{
			"CREATE INDEX idx_sessions_expires ON sessions (expires_at)",
			"CREATE INDEX idx_sessions_user ON sessions (user_id)",
		},
	},
	{
		name: "observations",
		columns: `
			id {id} PRIMARY KEY,
			city {str} NOT NULL,
			temperature {float} NOT NULL,
			humidity {float} NOT NULL,
			wind_speed {float} NOT NULL,
			pressure {float} NOT NULL,
			observed_at BIGINT NOT NULL`,
		indexes: []string{
			"CREATE INDEX idx_observations_city_time ON observations (city, observed_at)",
		},
	},
	{
		name: "forecast_points",
		columns: `
			id {id} PRIMARY KEY,
			city {str} NOT NULL,
			forecast_at BIGINT NOT NULL,
			temperature {float} NOT NULL,
			humidity {float} NOT NULL,
			wind_speed {float} NOT NULL,
			pressure {float} NOT NULL,
			fetched_at BIGINT NOT NULL`,
		indexes: []string{
			"CREATE INDEX idx_forecast_city ON forecast_points (city, forecast_at)",
		},
	},
	{
		name: "alerts",
		columns: `
			id {id} PRIMARY KEY,
			status {str} NOT NULL,
			description {text} NOT NULL,
			payload {text} NOT NULL,
			received_at BIGINT NOT NULL`,
		indexes: []string{
			"CREATE INDEX idx_alerts_received ON alerts (received_at)",
		},
	},
}

func (db *DB) typeReplacer() *strings.Replacer {
	switch db.Dialect {
	case DialectPostgres:
		return strings.NewReplacer("{id}", "VARCHAR(26)", "{str}", "VARCHAR(255)", "{text}", "TEXT", "{float}", "DOUBLE PRECISION")
	case DialectMySQL:
		return strings.NewReplacer("{id}", "VARCHAR(26)", "{str}", "VARCHAR(255)", "{text}", "TEXT", "{float}", "DOUBLE")
	case DialectMSSQL:
		return strings.NewReplacer("{id}", "VARCHAR(26)", "{str}", "NVARCHAR(255)", "{text}", "NVARCHAR(MAX)", "{float}", "FLOAT")
	default:
		return strings.NewReplacer("{id}", "TEXT", "{str}", "TEXT", "{text}", "TEXT", "{float}", "REAL")
	}
}

// Migrate creates any missing tables. Indexes are created together with
// their table, so an existing table is left untouched.
func (db *DB) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, TimeoutMigration)
	defer cancel()

	r := db.typeReplacer()

	for _, t := range schema {
		exists, err := db.tableExists(ctx, t.name)
		if err != nil {
			return fmt.Errorf("failed to check table %s: %w", t.name, err)
		}
		if exists {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration: %w", err)
		}

		stmts := append([]string{fmt.Sprintf("CREATE TABLE %s (%s\n)", t.name, r.Replace(t.columns))}, t.indexes...)
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("failed to create %s: %w", t.name, err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration for %s: %w", t.name, err)
		}
	}

	return nil
}

func (db *DB) tableExists(ctx context.Context, name string) (bool, error) {
	var query string
	switch db.Dialect {
	case DialectSQLite:
		query = "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
	case DialectPostgres:
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?"
	case DialectMySQL:
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?"
	case DialectMSSQL:
		query = "SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_NAME = ?"
	}

	var n int
	if err := db.QueryRowContext(ctx, db.Rebind(query), name).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

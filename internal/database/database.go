// Package database stores the attendance ledger in a SQL database.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Supported backends.
const (
	Postgres = "postgres"
	MySQL    = "mysql"
	SQLite   = "sqlite"
)

// Pool configuration
const (
	maxOpenConns    = 5
	maxIdleConns    = 2
	connMaxLifetime = time.Hour
	connMaxIdleTime = 10 * time.Minute
	pingTimeout     = 10 * time.Second
)

// dialect captures the differences between backends that the repository and
// migrator care about.
type dialect struct {
	name          string
	driver        string
	migrationsDir string
	// positional placeholders ($1, $2, ...) instead of ?
	numbered bool
	// DDL of the schema_migrations table
	migrationsTable string
	isUnique        func(error) bool
}

var dialects = map[string]dialect{
	Postgres: {
		name:          Postgres,
		driver:        "postgres",
		migrationsDir: "migrations/postgres",
		numbered:      true,
		migrationsTable: `CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		isUnique: func(err error) bool {
			var pqErr *pq.Error
			return errors.As(err, &pqErr) && pqErr.Code == "23505"
		},
	},
	MySQL: {
		name:          MySQL,
		driver:        "mysql",
		migrationsDir: "migrations/mysql",
		migrationsTable: `CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		isUnique: func(err error) bool {
			var myErr *mysql.MySQLError
			return errors.As(err, &myErr) && myErr.Number == 1062
		},
	},
	SQLite: {
		name:          SQLite,
		driver:        "sqlite3",
		migrationsDir: "migrations/sqlite",
		migrationsTable: `CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		isUnique: func(err error) bool {
			var liteErr sqlite3.Error
			return errors.As(err, &liteErr) && liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
		},
	},
}

// Pool manages a database connection pool for one backend.
type Pool struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to the backend and verifies the connection.
// For SQLite dsn is a file path, optionally with go-sqlite3 query parameters.
func Open(ctx context.Context, backend, dsn string) (*Pool, error) {
	d, ok := dialects[strings.ToLower(backend)]
	if !ok {
		return nil, fmt.Errorf("unsupported database backend %q", backend)
	}
	if dsn == "" {
		return nil, errors.New("database URL is required")
	}
	if d.name == SQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if d.name == SQLite {
		// A single writer avoids SQLITE_BUSY between pooled connections.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxIdleConns)
	}
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Pool{db: db, dialect: d}, nil
}

// sqliteDSN adds the pragmas the ledger relies on unless the caller set them.
func sqliteDSN(dsn string) string {
	params := []string{"_busy_timeout=5000", "_journal_mode=WAL", "_synchronous=FULL"}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	for _, p := range params {
		name := p[:strings.Index(p, "=")+1]
		if strings.Contains(dsn, name) {
			continue
		}
		dsn += sep + p
		sep = "&"
	}
	return dsn
}

// Backend returns the backend name.
func (p *Pool) Backend() string {
	return p.dialect.name
}

// DB returns the underlying sql.DB for direct access.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders for backends that number them.
func (p *Pool) rebind(query string) string {
	if !p.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

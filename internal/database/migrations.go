package database

import (
	"context"
	"embed"
	"fmt"
	"path"
	"slices"
	"strings"
)

//go:embed migrations/*/*.sql
var migrationsFS embed.FS

const insertMigration = "INSERT INTO schema_migrations (version) VALUES (?)"

// Migrate creates the schema_migrations table when missing, applies every
// embedded migration of the pool's dialect that is not recorded there yet
// and returns the file names it applied, in order. Each file runs in its
// own transaction together with its bookkeeping row.
func (p *Pool) Migrate(ctx context.Context) ([]string, error) {
	if _, err := p.db.ExecContext(ctx, p.dialect.migrationsTable); err != nil {
		return nil, fmt.Errorf("create migrations table: %w", err)
	}

	done, err := p.MigrationsApplied(ctx)
	if err != nil {
		return nil, err
	}

	pending, err := p.pending(done)
	if err != nil {
		return nil, err
	}

	for _, file := range pending {
		if err := p.apply(ctx, file); err != nil {
			return nil, err
		}
	}
	return pending, nil
}

// pending lists the dialect's migration files missing from done, sorted.
func (p *Pool) pending(done []string) ([]string, error) {
	entries, err := migrationsFS.ReadDir(p.dialect.migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".sql") && !slices.Contains(done, name) {
			files = append(files, name)
		}
	}
	slices.Sort(files)
	return files, nil
}

func (p *Pool) apply(ctx context.Context, file string) error {
	body, err := migrationsFS.ReadFile(path.Join(p.dialect.migrationsDir, file))
	if err != nil {
		return fmt.Errorf("read migration %s: %w", file, err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", file, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return fmt.Errorf("execute migration %s: %w", file, err)
	}
	if _, err := tx.ExecContext(ctx, p.rebind(insertMigration), file); err != nil {
		return fmt.Errorf("record migration %s: %w", file, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", file, err)
	}
	return nil
}

// MigrationsApplied returns the recorded migration versions in order.
func (p *Pool) MigrationsApplied(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migration versions: %w", err)
	}
	return versions, nil
}

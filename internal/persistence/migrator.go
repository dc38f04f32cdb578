package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/nkrishang/mad-protocol/internal/observability"
)

// Migrator applies SQL migrations from a directory. Files follow the
// {version}_{name}.up.sql / {version}_{name}.down.sql convention and
// applied versions are tracked in public.schema_migrations.
type Migrator struct {
	db     *sql.DB
	dir    string
	logger zerolog.Logger
}

type migration struct {
	version int64
	name    string
	upPath  string
}

func NewMigrator(db *sql.DB, dir string) *Migrator {
	return &Migrator{
		db:     db,
		dir:    dir,
		logger: observability.NewLogger("migrator"),
	}
}

// Up applies all pending migrations in version order.
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.ensureVersionTable(ctx); err != nil {
		return err
	}

	migrations, err := m.loadMigrations()
	if err != nil {
		return err
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, mig := range migrations {
		if applied[mig.version] {
			continue
		}

		script, err := os.ReadFile(mig.upPath)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", mig.upPath, err)
		}

		tx, err := m.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration tx: %w", err)
		}

		if _, err := tx.ExecContext(ctx, string(script)); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d_%s: %w", mig.version, mig.name, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO public.schema_migrations (version, name) VALUES ($1, $2)`,
			mig.version, mig.name,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", mig.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", mig.version, err)
		}

		m.logger.Info().Int64("version", mig.version).Str("name", mig.name).Msg("migration applied")
	}

	return nil
}

// Down rolls back the most recently applied migration.
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.ensureVersionTable(ctx); err != nil {
		return err
	}

	var version int64
	var name string
	err := m.db.QueryRowContext(ctx,
		`SELECT version, name FROM public.schema_migrations ORDER BY version DESC LIMIT 1`,
	).Scan(&version, &name)
	if err == sql.ErrNoRows {
		m.logger.Info().Msg("no migrations to roll back")
		return nil
	}
	if err != nil {
		return fmt.Errorf("query applied migrations: %w", err)
	}

	downPath := filepath.Join(m.dir, fmt.Sprintf("%06d_%s.down.sql", version, name))
	script, err := os.ReadFile(downPath)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", downPath, err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rollback tx: %w", err)
	}

	if _, err := tx.ExecContext(ctx, string(script)); err != nil {
		tx.Rollback()
		return fmt.Errorf("roll back migration %d_%s: %w", version, name, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM public.schema_migrations WHERE version = $1`, version,
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("unrecord migration %d: %w", version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rollback %d: %w", version, err)
	}

	m.logger.Info().Int64("version", version).Str("name", name).Msg("migration rolled back")
	return nil
}

func (m *Migrator) ensureVersionTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS public.schema_migrations (
			version BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}

func (m *Migrator) loadMigrations() ([]migration, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir %s: %w", m.dir, err)
	}

	var migrations []migration
	for _, entry := range entries {
		fileName := entry.Name()
		if !strings.HasSuffix(fileName, ".up.sql") {
			continue
		}

		base := strings.TrimSuffix(fileName, ".up.sql")
		sep := strings.Index(base, "_")
		if sep < 0 {
			return nil, fmt.Errorf("malformed migration file name %q", fileName)
		}

		version, err := strconv.ParseInt(base[:sep], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed migration version in %q: %w", fileName, err)
		}

		migrations = append(migrations, migration{
			version: version,
			name:    base[sep+1:],
			upPath:  filepath.Join(m.dir, fileName),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].version < migrations[j].version
	})

	return migrations, nil
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[int64]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT version FROM public.schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]bool)
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}

	return applied, rows.Err()
}

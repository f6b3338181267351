// Package migration applies the platform's two SQL migration trees with
// golang-migrate. The landlord tree shapes the shared registry; the tenant
// tree shapes each dedicated tenant datastore and is applied once per
// datastore, at provisioning time and again on upgrades.
package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// Tree names one of the two migration sets
type Tree string

const (
	TreeLandlord Tree = "landlord"
	TreeTenant   Tree = "tenant"
)

// Validate checks that the tree names a known migration set
func (t Tree) Validate() error {
	switch t {
	case TreeLandlord, TreeTenant:
		return nil
	}
	return fmt.Errorf("unknown migration tree %q", t)
}

// Dir resolves the tree's directory under the migrations root
func (t Tree) Dir(root string) string {
	return filepath.Join(root, string(t))
}

// Runner applies one migration tree to one database. A tenant datastore
// never sees the landlord tree and vice versa; the pairing is fixed at
// construction.
type Runner struct {
	m      *migrate.Migrate
	tree   Tree
	logger *zap.Logger
}

// NewRunner binds a migration tree to an open database connection
func NewRunner(db *sql.DB, root string, tree Tree, logger *zap.Logger) (*Runner, error) {
	if err := tree.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("postgres migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+tree.Dir(root), "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("open migration tree %s: %w", tree, err)
	}
	return &Runner{
		m:      m,
		tree:   tree,
		logger: logger.With(zap.String("tree", string(tree))),
	}, nil
}

// Up applies every pending migration of the tree
func (r *Runner) Up() error {
	if err := r.m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			r.logger.Info("Migration tree already up to date")
			return nil
		}
		return fmt.Errorf("migrate %s up: %w", r.tree, err)
	}
	r.logVersion("Migrations applied")
	return nil
}

// Down rolls the whole tree back
func (r *Runner) Down() error {
	if err := r.m.Down(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			r.logger.Info("No migrations to roll back")
			return nil
		}
		return fmt.Errorf("migrate %s down: %w", r.tree, err)
	}
	r.logger.Info("Migration tree rolled back")
	return nil
}

// Steps applies n migrations; a negative n rolls back
func (r *Runner) Steps(n int) error {
	if err := r.m.Steps(n); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			r.logger.Info("No migrations to apply")
			return nil
		}
		return fmt.Errorf("migrate %s by %d steps: %w", r.tree, n, err)
	}
	r.logVersion("Migration steps applied")
	return nil
}

// GoTo migrates the tree to an exact schema version, up or down
func (r *Runner) GoTo(version uint) error {
	if err := r.m.Migrate(version); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			r.logger.Info("Already at target version", zap.Uint("version", version))
			return nil
		}
		return fmt.Errorf("migrate %s to version %d: %w", r.tree, version, err)
	}
	r.logVersion("Migrated to version")
	return nil
}

// Version reports the current schema version and the dirty flag. A fresh
// database reports version zero.
func (r *Runner) Version() (uint, bool, error) {
	version, dirty, err := r.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// Force overwrites the recorded schema version without running any SQL.
// The escape hatch for a schema left dirty by a failed migration.
func (r *Runner) Force(version int) error {
	r.logger.Warn("Forcing schema version", zap.Int("version", version))
	if err := r.m.Force(version); err != nil {
		return fmt.Errorf("force %s to version %d: %w", r.tree, version, err)
	}
	return nil
}

// Drop removes every object in the target database
func (r *Runner) Drop() error {
	r.logger.Warn("Dropping all database objects")
	if err := r.m.Drop(); err != nil {
		return fmt.Errorf("drop via %s tree: %w", r.tree, err)
	}
	return nil
}

// Close releases the source and database handles
func (r *Runner) Close() error {
	srcErr, dbErr := r.m.Close()
	return errors.Join(srcErr, dbErr)
}

func (r *Runner) logVersion(msg string) {
	version, dirty, err := r.m.Version()
	if err != nil {
		return
	}
	r.logger.Info(msg, zap.Uint("version", version), zap.Bool("dirty", dirty))
}

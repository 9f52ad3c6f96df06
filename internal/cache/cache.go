// Package cache persists install results between runs so that an unchanged
// dependency tree can skip the bundling step entirely.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"iter"

	"github.com/achille-roussel/sqlrange"
	sqldblogger "github.com/simukti/sqldb-logger"
	"github.com/simukti/sqldb-logger/logadapter/zerologadapter"
	sqlite "modernc.org/sqlite"

	"github.com/pikapkg/snowpack/internal/logging"
	"github.com/pikapkg/snowpack/internal/migrations"
)

// Filename is the database file name inside the cache directory.
const Filename = "install-cache.db"

// MemoryOnlyDSN configures a cache that lives for the duration of the
// process. It is intended for tests.
const MemoryOnlyDSN = "file::memory:?cache=shared"

// Cache wraps the SQLite database that records what the last install
// produced.
type Cache struct {
	db  *sql.DB
	dsn string
	log *logging.Logger
}

// Package describes one installed web module.
type Package struct {
	Name       string `sql:"name"`
	Version    string `sql:"version"`
	Entrypoint string `sql:"entrypoint"`
}

func New() *Cache {
	return &Cache{
		dsn: MemoryOnlyDSN,
		log: logging.NewNopLogger(),
	}
}

func (c *Cache) WithDSN(dsn string) *Cache {
	c.dsn = dsn
	return c
}

func (c *Cache) WithLogger(log *logging.Logger) *Cache {
	c.log = log
	return c
}

// Open connects to the database and applies any pending migrations. Driver
// traffic is routed through the logger at debug level.
func (c *Cache) Open(ctx context.Context) error {
	db := sqldblogger.OpenDriver(c.dsn, &sqlite.Driver{}, zerologadapter.New(c.log.Zerolog()),
		sqldblogger.WithPreparerLevel(sqldblogger.LevelDebug),
		sqldblogger.WithQueryerLevel(sqldblogger.LevelDebug),
		sqldblogger.WithExecerLevel(sqldblogger.LevelDebug),
	)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return err
	}

	if err := migrations.Run(db); err != nil {
		db.Close()
		return err
	}

	c.db = db
	return nil
}

func (c *Cache) Close() {
	if c.db != nil {
		c.db.Close()
	}
}

// RecordInstall replaces the cached package set and appends an install row
// carrying the fingerprint of the inputs that produced it.
func (c *Cache) RecordInstall(ctx context.Context, fingerprint string, pkgs []Package) error {
	return c.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM packages`); err != nil {
			return err
		}

		for _, pkg := range pkgs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO packages (name, version, entrypoint) VALUES (?, ?, ?)`,
				pkg.Name, pkg.Version, pkg.Entrypoint); err != nil {
				return err
			}
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO installs (fingerprint, package_count) VALUES (?, ?)`,
			fingerprint, len(pkgs))
		return err
	})
}

// Fingerprint returns the fingerprint recorded by the most recent install,
// or "" when nothing has been installed yet.
func (c *Cache) Fingerprint(ctx context.Context) (string, error) {
	var fp string
	err := c.db.QueryRowContext(ctx,
		`SELECT fingerprint FROM installs ORDER BY id DESC LIMIT 1`).Scan(&fp)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return fp, err
}

// Packages iterates over the cached packages in name order.
func (c *Cache) Packages(ctx context.Context) iter.Seq2[Package, error] {
	return sqlrange.QueryContext[Package](ctx,
		c.db,
		`SELECT name, version, entrypoint FROM packages ORDER BY name`)
}

func (c *Cache) tx(ctx context.Context, f func(*sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		_ = tx.Rollback()
	}()

	if err := f(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// Package migrations manages the schema of the install cache database.
package migrations

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/pikapkg/snowpack/internal/util"
)

// schema holds the cache database tables. THESE MAY NOT BE CHANGED, as the
// migrations machinery would fall apart for anyone who already applied them.
// Add new numbered migrations instead.
var schema = []*sqlTable{
	createSQLTable("packages").
		VarCharPrimaryKeyColumn("name").
		TextColumn("version").
		TextNonNullColumn("entrypoint").
		TimestampDefaultCurrentTimeColumn("installed_at"),
	createSQLTable("installs").
		IntegerPrimaryKeyAutoincrementColumn("id").
		TextNonNullColumn("fingerprint").
		IntegerNonNullColumn("package_count").
		TimestampDefaultCurrentTimeColumn("created_at"),
}

func schemaFS() fs.FS {
	m := make(map[string]string, len(schema))
	for i, tbl := range schema {
		m[fmt.Sprintf("%03d_%s.up.sql", i, tbl.name)] = tbl.SQL()
	}
	return util.MapFS(m)
}

// Run applies any pending migrations. Safe to call on every open.
func Run(db *sql.DB) error {
	src, err := iofs.New(schemaFS(), ".")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to prepare migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to migrate cache database: %w", err)
	}
	return nil
}

type sqlColumn struct {
	Name                    string
	Type                    sqlDataType
	AutoIncrementPrimaryKey bool
	PrimaryKey              bool
	NotNull                 bool
	Default                 string
}

type sqlDataType interface {
	SQL() string
}

type sqlInteger struct{}
type sqlText struct{}
type sqlTimestamp struct{}
type sqlVarChar struct{}

func (sqlInteger) SQL() string { return "INTEGER" }

func (sqlText) SQL() string { return "TEXT" }

func (sqlTimestamp) SQL() string { return "TIMESTAMP" }

// SQLite has no length-limited strings; the distinct type is kept so that
// key columns read as such in the schema source.
func (sqlVarChar) SQL() string { return "TEXT" }

func (c sqlColumn) SQL() string {
	parts := []string{c.Name, c.Type.SQL()}
	if c.NotNull {
		parts = append(parts, "NOT NULL")
	}
	if c.Default != "" {
		parts = append(parts, "DEFAULT", c.Default)
	}
	return strings.Join(parts, " ")
}

type sqlTable struct {
	name      string
	columns   []sqlColumn
	iteration string // prefix for constraints
}

func createSQLTable(name string) *sqlTable {
	return &sqlTable{
		name:      name,
		iteration: "snowpack_v1",
	}
}

func (t *sqlTable) IntegerPrimaryKeyAutoincrementColumn(name string) *sqlTable {
	t.columns = append(t.columns, sqlColumn{Name: name, Type: sqlInteger{}, AutoIncrementPrimaryKey: true})
	return t
}

func (t *sqlTable) IntegerNonNullColumn(name string) *sqlTable {
	t.columns = append(t.columns, sqlColumn{Name: name, Type: sqlInteger{}, NotNull: true})
	return t
}

func (t *sqlTable) TextColumn(name string) *sqlTable {
	t.columns = append(t.columns, sqlColumn{Name: name, Type: sqlText{}})
	return t
}

func (t *sqlTable) TextNonNullColumn(name string) *sqlTable {
	t.columns = append(t.columns, sqlColumn{Name: name, Type: sqlText{}, NotNull: true})
	return t
}

func (t *sqlTable) VarCharPrimaryKeyColumn(name string) *sqlTable {
	t.columns = append(t.columns, sqlColumn{Name: name, Type: sqlVarChar{}, PrimaryKey: true})
	return t
}

func (t *sqlTable) TimestampDefaultCurrentTimeColumn(name string) *sqlTable {
	t.columns = append(t.columns, sqlColumn{Name: name, Type: sqlTimestamp{}, Default: "CURRENT_TIMESTAMP"})
	return t
}

func (t *sqlTable) SQL() string {
	c := make([]string, len(t.columns))
	for i := range t.columns {
		c[i] = t.columns[i].SQL()
	}

	// Constraints carry names we control, which keeps them addressable in
	// future migrations.
	for i := range t.columns {
		if t.columns[i].AutoIncrementPrimaryKey || t.columns[i].PrimaryKey {
			c = append(c, fmt.Sprintf("CONSTRAINT %[1]s_%[2]s_%[3]s_pkey PRIMARY KEY (%[3]s)", t.iteration, t.name, t.columns[i].Name))
		}
	}

	return fmt.Sprintf("CREATE TABLE %s (%s)", t.name, strings.Join(c, ", "))
}

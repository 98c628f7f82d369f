package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSqlite   = "sqlite3"
	DriverPostgres = "postgres"
)

//go:embed migrations/sqlite3/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// SQLRepository implements Repository on database/sql. Queries are
// written with ? placeholders and rebound to $N for postgres.
type SQLRepository struct {
	conn   *sql.DB
	driver string
}

func NewSQLRepository(driverName, dsn string) (*SQLRepository, error) {
	switch driverName {
	case DriverSqlite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driverName)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &SQLRepository{conn: db, driver: driverName}, nil
}

func (db *SQLRepository) Ping() error {
	return db.conn.Ping()
}

func (db *SQLRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Migrate applies the embedded schema migrations for the active driver.
func (db *SQLRepository) Migrate() error {
	src, err := iofs.New(migrationsFS, "migrations/"+db.driver)
	if err != nil {
		return fmt.Errorf("open migration source: %w", err)
	}

	var instance migratedb.Driver
	switch db.driver {
	case DriverPostgres:
		instance, err = migratepg.WithInstance(db.conn, &migratepg.Config{})
	case DriverSqlite:
		instance, err = migratesqlite.WithInstance(db.conn, &migratesqlite.Config{})
	}
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, db.driver, instance)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// rebind converts ? placeholders to $N for postgres. Queries contain no
// literal question marks, so a plain scan is sufficient.
func (db *SQLRepository) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
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

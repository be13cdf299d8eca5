package sqlite

import (
	"io/fs"
	"net/url"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

type DataSourceOptions struct {
	WALEnabled bool
}

// New returns a new sqlite DB instance with migrated DB scheme to the latest version.
// migrations is read from dir and holds golang-migrate style "N_name.up.sql" files.
func New(dataSourceName string, migrations fs.FS, dir string, dataSourceOptions DataSourceOptions) (*sqlx.DB, error) {
	params := url.Values{}
	params.Set("_busy_timeout", "5000")
	if dataSourceOptions.WALEnabled {
		params.Set("_journal_mode", "WAL")
	}
	db, err := sqlx.Connect("sqlite3", dataSourceName+"?"+params.Encode())
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to DB")
	}

	if err := migrateUp(db, migrations, dir); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func migrateUp(db *sqlx.DB, migrations fs.FS, dir string) error {
	sourceDriver, err := iofs.New(migrations, dir)
	if err != nil {
		return errors.Wrap(err, "failed to init DB source driver")
	}

	dbDriver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return errors.Wrap(err, "failed to init DB migration driver")
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", dbDriver)
	if err != nil {
		return errors.Wrap(err, "failed to init DB migration instance")
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return errors.Wrap(err, "failed to migrate DB to the latest version")
	}
	return nil
}

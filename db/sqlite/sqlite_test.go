package sqlite

import (
	"os"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openrport/rguard/db/migration/history"
)

func TestSqliteWALEnabled(t *testing.T) {
	dataSourceName := t.TempDir() + "/test-db.sqlite3"
	db, err := New(dataSourceName, history.Migrations, history.Dir, DataSourceOptions{WALEnabled: true})
	require.NoError(t, err)
	defer db.Close()
	_, err = os.Stat(dataSourceName + "-shm")
	require.NoError(t, err)
	_, err = os.Stat(dataSourceName + "-wal")
	require.NoError(t, err)
}

func TestSqliteWALDisabled(t *testing.T) {
	dataSourceName := t.TempDir() + "/test-db.sqlite3"
	db, err := New(dataSourceName, history.Migrations, history.Dir, DataSourceOptions{WALEnabled: false})
	require.NoError(t, err)
	defer db.Close()
	_, err = os.Stat(dataSourceName + "-shm")
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(dataSourceName + "-wal")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSqliteMigratesSchema(t *testing.T) {
	db, err := New(t.TempDir()+"/test-db.sqlite3", history.Migrations, history.Dir, DataSourceOptions{})
	require.NoError(t, err)
	defer db.Close()

	var tables []string
	err = db.Select(&tables, "SELECT name FROM sqlite_master WHERE type = 'table' AND name IN ('events', 'scans') ORDER BY name")
	require.NoError(t, err)
	assert.Equal(t, []string{"events", "scans"}, tables)
}

func TestSqliteReopenIsNoChange(t *testing.T) {
	dataSourceName := t.TempDir() + "/test-db.sqlite3"
	db, err := New(dataSourceName, history.Migrations, history.Dir, DataSourceOptions{WALEnabled: true})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = New(dataSourceName, history.Migrations, history.Dir, DataSourceOptions{WALEnabled: true})
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestSqliteBrokenMigration(t *testing.T) {
	broken := fstest.MapFS{
		"1_broken.up.sql": &fstest.MapFile{Data: []byte("CREATE TABLE (")},
	}
	db, err := New(t.TempDir()+"/test-db.sqlite3", broken, ".", DataSourceOptions{})
	require.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "failed to migrate DB to the latest version")
}

package sqlitedb

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDDL = `
CREATE TABLE IF NOT EXISTS things (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL
);
`

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(path, Schema{DDL: testDDL})
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		db, err := Open(path, Schema{DDL: testDDL})
		require.NoError(t, err, "open iteration %d", i)
		_, err = db.Exec("INSERT INTO things (name) VALUES (?)", "x")
		require.NoError(t, err)
		db.Close()
	}

	db, err := Open(path, Schema{DDL: testDDL})
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM things").Scan(&count))
	assert.Equal(t, 3, count, "reopening must not drop data")
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db", Schema{DDL: testDDL})
	assert.Error(t, err)
}

func TestOpen_Pragmas(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), Schema{DDL: testDDL})
	require.NoError(t, err)
	defer db.Close()

	tests := map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1", // NORMAL
		"busy_timeout": "5000",
		"foreign_keys": "1",
	}
	for name, want := range tests {
		got, err := Pragma(db, name)
		require.NoError(t, err)
		assert.Equal(t, want, got, "pragma %s", name)
	}
}

func TestOpen_RunsMigrationsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	applied := 0
	schema := Schema{
		DDL: testDDL,
		Migrations: []Migration{{
			Version: 1,
			Apply: func(db *sql.DB) error {
				applied++
				_, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_things_name ON things(name)")
				return err
			},
		}},
	}

	db, err := Open(path, schema)
	require.NoError(t, err)
	version, err := UserVersion(db)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
	db.Close()

	db, err = Open(path, schema)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, 1, applied, "migration should only run on first open")
}

func TestSchema_CurrentVersion(t *testing.T) {
	assert.Equal(t, 0, Schema{}.CurrentVersion())
	s := Schema{Migrations: []Migration{{Version: 1}, {Version: 3}, {Version: 2}}}
	assert.Equal(t, 3, s.CurrentVersion())
}

package testutil

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

// Reading is one stored sensor value
type Reading struct {
	Tag int
	At  time.Time
	Val float64
}

// UTC builds a whole-second UTC timestamp
func UTC(y int, m time.Month, d, hh, mm, ss int) time.Time {
	return time.Date(y, m, d, hh, mm, ss, 0, time.UTC)
}

// ReadingStore opens an in-memory sqlite database holding floattable with
// the given readings. The handle is closed when the test ends.
func ReadingStore(t *testing.T, readings []Reading) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE floattable (tagindex INTEGER NOT NULL, dateandtime DATETIME NOT NULL, val REAL)`)
	require.NoError(t, err)
	for _, r := range readings {
		_, err := db.Exec(`INSERT INTO floattable (tagindex, dateandtime, val) VALUES (?, ?, ?)`, r.Tag, r.At, r.Val)
		require.NoError(t, err)
	}
	return db
}

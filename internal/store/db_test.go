package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "nested", "guru.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestGetSetDelete(t *testing.T) {
	db := openTestDB(t)

	_, ok, err := db.Get(KeyLastSessionID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.Set(KeyLastSessionID, "s1"))
	require.NoError(t, db.Set(KeyLastSessionID, "s2"))
	v, ok, err := db.Get(KeyLastSessionID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "s2", v)

	require.NoError(t, db.Delete(KeyLastSessionID))
	_, ok, err = db.Get(KeyLastSessionID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetIfAbsentKeepsFirstValue(t *testing.T) {
	db := openTestDB(t)

	first, err := db.SetIfAbsent(KeyUserID, "u1")
	require.NoError(t, err)
	second, err := db.SetIfAbsent(KeyUserID, "u2")
	require.NoError(t, err)

	assert.Equal(t, "u1", first)
	assert.Equal(t, "u1", second)
}

func TestReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guru.db")
	db, err := OpenDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Set(KeyUserID, "u1"))
	require.NoError(t, db.Close())

	db, err = OpenDB(path)
	require.NoError(t, err)
	defer db.Close()
	v, ok, err := db.Get(KeyUserID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "u1", v)

	n, err := db.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n) // user_id + schema_version
}

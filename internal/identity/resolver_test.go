package identity

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openFixture(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE conversations (
			id TEXT PRIMARY KEY,
			serviceId TEXT,
			type TEXT,
			name TEXT,
			profileFullName TEXT,
			profileName TEXT,
			e164 TEXT,
			members TEXT,
			active_at INTEGER
		)`)
	require.NoError(t, err)
	return db
}

func TestBuildNameIndexPrecedence(t *testing.T) {
	db := openFixture(t)

	_, err := db.Exec(`INSERT INTO conversations (id, serviceId, type, profileFullName, profileName, e164) VALUES
		('c1', 'svc-1', 'private', 'Ada Lovelace', 'Ada', '+15550001'),
		('c2', 'svc-2', 'private', NULL, 'Grace', '+15550002'),
		('c3', NULL,    'private', NULL, NULL, '+15550003'),
		('c4', 'svc-4', 'private', NULL, NULL, NULL),
		('g1', NULL,    'group',   'Should Not Appear', NULL, NULL)`)
	require.NoError(t, err)

	index, err := BuildNameIndex(context.Background(), db)
	require.NoError(t, err)

	assert.Equal(t, "Ada Lovelace", index["c1"], "full name wins")
	assert.Equal(t, "Ada Lovelace", index["svc-1"], "service id is indexed too")
	assert.Equal(t, "Grace", index["c2"], "short name is second choice")
	assert.Equal(t, "+15550003", index["c3"], "phone number is last resort")

	_, ok := index["c4"]
	assert.False(t, ok, "entity with no resolvable name is omitted")
	_, ok = index["g1"]
	assert.False(t, ok, "group conversations are not indexed")
}

func TestBuildNameIndexIdempotent(t *testing.T) {
	db := openFixture(t)
	_, err := db.Exec(`INSERT INTO conversations (id, serviceId, type, profileFullName) VALUES
		('c1', 's1', 'private', 'One'),
		('c2', 's2', 'private', 'Two')`)
	require.NoError(t, err)

	first, err := BuildNameIndex(context.Background(), db)
	require.NoError(t, err)
	second, err := BuildNameIndex(context.Background(), db)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestBuildNameIndexEmptySnapshot(t *testing.T) {
	db := openFixture(t)

	index, err := BuildNameIndex(context.Background(), db)
	require.NoError(t, err)
	assert.Empty(t, index)
}

func TestLookupFallsBackToRawID(t *testing.T) {
	index := map[string]string{"known": "Known Name"}

	assert.Equal(t, "Known Name", Lookup(index, "known"))
	assert.Equal(t, "mystery-id", Lookup(index, "mystery-id"))
}

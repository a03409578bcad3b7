package db_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openwcps/wcps-auth/internal/db"
	"github.com/openwcps/wcps-auth/internal/testutil"
)

func TestPostgresCatalog(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}

	ctx := context.Background()
	pool := testutil.SetupTestDB(t)
	catalog := db.NewPostgresCatalog(pool)

	_, err := pool.Exec(ctx,
		`INSERT INTO users (username, displayname, password, salt, rights)
		 VALUES ($1, $2, $3, $4, $5)`,
		"alice", "Ally", db.HashPassword("pw", "s"), "s", 1)
	require.NoError(t, err)

	_, err = pool.Exec(ctx,
		`INSERT INTO servers (server_id, address, port, active) VALUES
		 ('alpha1', '10.0.0.1', 5340, TRUE),
		 ('beta2',  '10.0.0.2', 5341, FALSE)`)
	require.NoError(t, err)

	t.Run("LookupUser", func(t *testing.T) {
		u, err := catalog.LookupUser(ctx, "alice")
		require.NoError(t, err)
		require.NotNil(t, u)
		assert.Equal(t, "alice", u.Username)
		assert.Equal(t, "Ally", u.Displayname)
		assert.Equal(t, "s", u.Salt)
		assert.Equal(t, 1, u.Rights)
		assert.Equal(t, db.HashPassword("pw", "s"), u.PasswordHash)
	})

	t.Run("LookupUser_CaseInsensitive", func(t *testing.T) {
		u, err := catalog.LookupUser(ctx, "ALICE")
		require.NoError(t, err)
		require.NotNil(t, u)
		assert.Equal(t, "alice", u.Username)
	})

	t.Run("LookupUser_Absent", func(t *testing.T) {
		u, err := catalog.LookupUser(ctx, "nobody")
		require.NoError(t, err)
		assert.Nil(t, u)
	})

	t.Run("DisplaynameTaken", func(t *testing.T) {
		taken, err := catalog.DisplaynameTaken(ctx, "Ally")
		require.NoError(t, err)
		assert.True(t, taken)

		taken, err = catalog.DisplaynameTaken(ctx, "Nobody")
		require.NoError(t, err)
		assert.False(t, taken)
	})

	t.Run("UpdateDisplayname", func(t *testing.T) {
		require.NoError(t, catalog.UpdateDisplayname(ctx, "alice", "Allie"))

		u, err := catalog.LookupUser(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "Allie", u.Displayname)
	})

	t.Run("ListActiveServers", func(t *testing.T) {
		servers, err := catalog.ListActiveServers(ctx)
		require.NoError(t, err)
		require.Len(t, servers, 1)
		assert.Equal(t, "alpha1", servers[0].NodeID)
		assert.Equal(t, "10.0.0.1", servers[0].Address)
		assert.Equal(t, 5340, servers[0].Port)
	})
}

func TestHashPassword(t *testing.T) {
	// sha256 of password and salt concatenated, lowercase hex.
	got := db.HashPassword("pw", "s")
	assert.Len(t, got, 64)
	assert.Equal(t, db.HashPassword("pw", "s"), got)
	assert.NotEqual(t, db.HashPassword("pw", "t"), got)
}

package postgres

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrations_DownAndUp(t *testing.T) {
	setupStore(t)

	version, dirty, err := MigrationVersion(sharedDBURL, "")
	require.NoError(t, err)
	require.False(t, dirty)
	require.EqualValues(t, 1, version)

	require.NoError(t, MigrateDown(sharedDBURL, "", 1))
	version, _, err = MigrationVersion(sharedDBURL, "")
	require.NoError(t, err)
	require.Zero(t, version)

	require.NoError(t, MigrateUp(sharedDBURL, ""))
	require.NoError(t, ensureAppRole(t.Context(), sharedAdmin))

	version, _, err = MigrationVersion(sharedDBURL, "")
	require.NoError(t, err)
	require.EqualValues(t, 1, version)
}

func TestMigrateDown_RequiresSteps(t *testing.T) {
	require.Error(t, MigrateDown("postgres://unused", "", 0))
}

func TestNewStore_NilPool(t *testing.T) {
	_, err := NewStore(nil)
	require.Error(t, err)
}

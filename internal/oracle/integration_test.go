//go:build integration

package oracle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/riskoracle/internal/testutil"
)

func TestPostgresStore_Container(t *testing.T) {
	db := testutil.StartPostgres(t)
	runStoreContract(t, func(t *testing.T) Store {
		testutil.Truncate(t, db)
		return NewPostgresStore(db)
	})
}

func TestRedisStore_Container(t *testing.T) {
	client := testutil.StartRedis(t)
	runStoreContract(t, func(t *testing.T) Store {
		require.NoError(t, client.FlushAll(context.Background()).Err())
		return NewRedisStore(client, "")
	})
}

func TestRegistry_SurvivesRestartOnPostgres(t *testing.T) {
	ctx := context.Background()
	db := testutil.StartPostgres(t)
	testutil.Truncate(t, db)

	r, err := Open(ctx, NewPostgresStore(db))
	require.NoError(t, err)
	require.NoError(t, r.Initialize(ctx, adminA))
	require.NoError(t, r.UpdateRisk(ctx, adminA, "validator_1", 50))

	reopened, err := Open(ctx, NewPostgresStore(db))
	require.NoError(t, err)
	assert.Equal(t, uint8(50), reopened.GetRisk("validator_1"))
	assert.ErrorIs(t, reopened.UpdateRisk(ctx, userB, "validator_1", 99), ErrUnauthorized)
	assert.Equal(t, uint8(50), reopened.GetRisk("validator_1"))
}

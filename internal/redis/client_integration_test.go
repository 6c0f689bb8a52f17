package redis

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	rediscontainer "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPassbandCache_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := rediscontainer.Run(ctx, "redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections"),
		),
	)
	require.NoError(t, err)
	defer func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	}()

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := New(strings.TrimPrefix(uri, "redis://"))
	require.NoError(t, err)
	defer client.Close()

	key := PassbandKey("cal.oneh5", 1, time.Unix(0, 0), "fp")
	pb := testPassband()
	require.NoError(t, client.StorePassband(ctx, key, pb))

	got, err := client.GetPassband(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, pb, got)

	require.NoError(t, client.DeletePassband(ctx, key))
	got, err = client.GetPassband(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)
}

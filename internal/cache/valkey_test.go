package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	valkeyContainer "github.com/testcontainers/testcontainers-go/modules/valkey"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
)

func setupTestCache(t *testing.T) *ValkeyCache {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx := context.Background()
	container, err := valkeyContainer.Run(ctx,
		"valkey/valkey:8.0-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	c, err := NewValkeyCache(Config{
		Host:   host,
		Port:   portNum,
		Prefix: "test",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestValkeyCacheSetGet(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "realm-1", "roles-export", `{"realm":[]}`, time.Minute))

	value, err := c.Get(ctx, "realm-1", "roles-export")
	require.NoError(t, err)
	assert.Equal(t, `{"realm":[]}`, value)

	exists, err := c.Exists(ctx, "realm-1", "roles-export")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestValkeyCacheMiss(t *testing.T) {
	c := setupTestCache(t)

	_, err := c.Get(context.Background(), "realm-1", "absent")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestValkeyCacheDelete(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "realm-1", "roles-export", "x", 0))
	require.NoError(t, c.Delete(ctx, "realm-1", "roles-export"))

	_, err := c.Get(ctx, "realm-1", "roles-export")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestValkeyCacheFlushRealmIsScoped(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "realm-1", "roles-export", "a", 0))
	require.NoError(t, c.Set(ctx, "realm-1", "realm-export", "b", 0))
	require.NoError(t, c.Set(ctx, "realm-2", "roles-export", "c", 0))

	require.NoError(t, c.FlushRealm(ctx, "realm-1"))

	_, err := c.Get(ctx, "realm-1", "roles-export")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "realm-1", "realm-export")
	assert.ErrorIs(t, err, ErrCacheMiss)

	// the other realm's entries survive
	value, err := c.Get(ctx, "realm-2", "roles-export")
	require.NoError(t, err)
	assert.Equal(t, "c", value)
}

func TestValkeyCacheHealth(t *testing.T) {
	c := setupTestCache(t)
	assert.NoError(t, c.Health(context.Background()))
}

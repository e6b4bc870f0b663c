package cli

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goalpact/internal/config"
	"goalpact/internal/core"
	applog "goalpact/internal/log"
)

func testConfig() *config.Config {
	return &config.Config{
		DataBackend:          "memory",
		Timezone:             "UTC",
		ReconcileConcurrency: 2,
		SweepLockTTL:         time.Minute,
		LogLevel:             "error",
		LogFormat:            "text",
	}
}

func TestNewRedisClient(t *testing.T) {
	t.Run("empty url disables redis", func(t *testing.T) {
		client, err := NewRedisClient(context.Background(), "")
		require.NoError(t, err)
		assert.Nil(t, client)
	})

	t.Run("bad url", func(t *testing.T) {
		_, err := NewRedisClient(context.Background(), "http://nope")
		assert.Error(t, err)
	})

	t.Run("reachable server", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
		require.NoError(t, err)
		defer client.Close()
		assert.NotNil(t, client)
	})
}

func TestOpenBackendWiresSweeper(t *testing.T) {
	cfg := testConfig()
	logger := SetupLogger(cfg, applog.ComponentApp)

	res, err := OpenBackend(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer res.Cleanup()
	assert.Nil(t, res.Publisher)
	assert.Nil(t, res.DB)

	controller := NewController(res, cfg)
	sweeper := NewSweeper(res, controller, nil, cfg)

	result, err := sweeper.Sweep(context.Background(), core.NewDate(2024, 6, 10))
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Zero(t, result.Users)
}

func TestSweeperUsesRedisLock(t *testing.T) {
	cfg := testConfig()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	res, err := OpenBackend(context.Background(), cfg, SetupLogger(cfg, applog.ComponentApp))
	require.NoError(t, err)
	defer res.Cleanup()

	require.NoError(t, mr.Set("lock:"+SweepLockKey, "someone-else"))

	sweeper := NewSweeper(res, NewController(res, cfg), client, cfg)
	result, err := sweeper.Sweep(context.Background(), core.NewDate(2024, 6, 10))
	require.NoError(t, err)
	assert.True(t, result.Skipped)
}

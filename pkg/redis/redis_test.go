package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	var disabled Config
	require.NoError(t, disabled.Validate())

	cfg := Config{Enabled: true}
	assert.Error(t, cfg.Validate())

	cfg.Addr = "localhost:6379"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5*time.Second, cfg.Options().DialTimeout)

	cfg.DialTimeout.Duration = 250 * time.Millisecond
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 250*time.Millisecond, cfg.Options().DialTimeout)
}

func TestInit(t *testing.T) {
	require.NoError(t, Init(context.Background(), Config{}))
	assert.Nil(t, Client())

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	cfg := Config{Enabled: true, Addr: addr}
	require.NoError(t, cfg.Validate())
	require.NoError(t, Init(context.Background(), cfg))
	assert.NotNil(t, Client())
	require.NoError(t, Close())
	assert.Nil(t, Client())
}

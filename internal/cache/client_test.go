package cache

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient(t *testing.T) {
	t.Run("host:port returns client", func(t *testing.T) {
		client, err := NewRedisClient(ClientConfig{Addr: "localhost:6379"})
		require.NoError(t, err)
		require.NotNil(t, client)
		defer client.Close()
	})

	t.Run("timeout applies to dial, read and write", func(t *testing.T) {
		client, err := NewRedisClient(ClientConfig{Addr: "localhost:6379", Timeout: 750 * time.Millisecond, DB: 2})
		require.NoError(t, err)
		defer client.Close()

		opts := client.Options()
		assert.Equal(t, 750*time.Millisecond, opts.DialTimeout)
		assert.Equal(t, 750*time.Millisecond, opts.ReadTimeout)
		assert.Equal(t, 750*time.Millisecond, opts.WriteTimeout)
		assert.Equal(t, 2, opts.DB)
	})

	t.Run("options are applied last", func(t *testing.T) {
		client, err := NewRedisClient(ClientConfig{Addr: "localhost:6379"}, func(o *redis.Options) {
			o.PoolSize = 3
		})
		require.NoError(t, err)
		defer client.Close()

		assert.Equal(t, 3, client.Options().PoolSize)
	})

	for _, addr := range []string{"", "localhost", "redis://localhost:6379", ":6379", "localhost:"} {
		t.Run("invalid address "+addr, func(t *testing.T) {
			client, err := NewRedisClient(ClientConfig{Addr: addr})
			require.Error(t, err)
			assert.Nil(t, client)
		})
	}
}

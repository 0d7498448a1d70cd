package redisclient

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientOptions_PoolSizing(t *testing.T) {
	o := ClientOptions{Addr: "cache:6379", Username: "svc", Password: "pw", PoolSize: 40, MinIdleConns: 4}.redisOptions()
	assert.Equal(t, "cache:6379", o.Addr)
	assert.Equal(t, "svc", o.Username)
	assert.Equal(t, 40, o.PoolSize)
	assert.Equal(t, 4, o.MinIdleConns)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := NewRedisClient(ClientOptions{Addr: mr.Addr(), PoolSize: 5})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	assert.Equal(t, 5, rdb.Options().PoolSize)

	_, err = NewRedisClient(ClientOptions{Addr: "127.0.0.1:1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping redis")
}

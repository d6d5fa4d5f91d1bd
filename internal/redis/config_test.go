package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupDefaults(t *testing.T) {
	v := viper.New()
	Setup(v, "redis")

	var cfg struct {
		Redis Config `mapstructure:"redis"`
	}
	require.NoError(t, v.Unmarshal(&cfg))
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 5*time.Second, cfg.Redis.DialTimeout)
	assert.Equal(t, 10, cfg.Redis.PoolSize)

	opt := options(&cfg.Redis)
	assert.Nil(t, opt.TLSConfig)
	assert.Equal(t, 3*time.Second, opt.ReadTimeout)

	cfg.Redis.TLS = true
	assert.NotNil(t, options(&cfg.Redis).TLSConfig)
}

func TestPing(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewClient(&Config{Addr: mr.Addr()})
	defer client.Close()

	require.NoError(t, Ping(context.Background(), client, 0))

	mr.Close()
	assert.Error(t, Ping(context.Background(), client, 100*time.Millisecond))
}

package store

import (
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/imtaco/liveroom/internal/errors"
	"github.com/imtaco/liveroom/internal/etcd"
	"github.com/imtaco/liveroom/internal/log"
	"github.com/imtaco/liveroom/liveroom"
)

const (
	BackendRedis  = "redis"
	BackendEtcd   = "etcd"
	BackendMemory = "memory"

	defaultCASAttempts = 8
)

type Config struct {
	Backend     string `mapstructure:"backend"`
	KeyPrefix   string `mapstructure:"key_prefix"`
	CASAttempts int    `mapstructure:"cas_attempts"`
}

func Setup(v *viper.Viper, prefix string) {
	p := func(key string) string { return prefix + "." + key }

	v.SetDefault(p("backend"), BackendRedis)
	v.SetDefault(p("key_prefix"), "liveroom")
	v.SetDefault(p("cas_attempts"), defaultCASAttempts)
}

// Clients carries the backend connections; only the one matching
// Config.Backend is required.
type Clients struct {
	Redis *redis.Client
	Etcd  etcd.Client
}

func New(cfg *Config, clients Clients, clock clockwork.Clock, logger *log.Logger) (Store, error) {
	switch cfg.Backend {
	case BackendRedis:
		if clients.Redis == nil {
			return nil, errors.New(liveroom.ErrConfiguration, "redis backend selected without a redis client")
		}
		return NewRedis(clients.Redis, cfg.KeyPrefix, cfg.CASAttempts, clock, logger), nil
	case BackendEtcd:
		if clients.Etcd == nil {
			return nil, errors.New(liveroom.ErrConfiguration, "etcd backend selected without an etcd client")
		}
		// etcd keys are laid out as {prefix}{roomID}/doc
		return NewEtcd(clients.Etcd, "/"+cfg.KeyPrefix+"/rooms/", cfg.CASAttempts, clock, logger), nil
	case BackendMemory:
		return NewMemory(clock, logger), nil
	}
	return nil, errors.Newf(liveroom.ErrConfiguration, "unknown store backend %q", cfg.Backend)
}

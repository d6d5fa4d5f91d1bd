package config

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides: redis.addr is read from
// LIVEROOM_REDIS_ADDR.
const EnvPrefix = "LIVEROOM"

func NewViper() *viper.Viper {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	return v
}

// Load applies defaults through configure, merges the optional file named by
// app.config_file, then decodes into c. Environment wins over the file.
func Load[T any](c *T, configure func(v *viper.Viper)) (*T, error) {
	v := NewViper()
	v.SetDefault("app.config_file", "")

	configure(v)

	if file := v.GetString("app.config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	return c, v.Unmarshal(c)
}

package transport

import (
	"github.com/spf13/viper"
)

type Config struct {
	Secret         string   `mapstructure:"secret"`
	ActionRate     float64  `mapstructure:"action_rate"`
	ActionBurst    int      `mapstructure:"action_burst"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func Setup(v *viper.Viper, prefix string) {
	p := func(key string) string { return prefix + "." + key }

	v.SetDefault(p("secret"), "MY-secret-key-change-in-production")
	v.SetDefault(p("action_rate"), 5.0)
	v.SetDefault(p("action_burst"), 10)
	v.SetDefault(p("allowed_origins"), []string{"localhost:*", "127.0.0.1:*"})
}

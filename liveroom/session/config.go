package session

import (
	"time"

	"github.com/spf13/viper"

	"github.com/imtaco/liveroom/liveroom"
)

type Config struct {
	Kinds           []string      `mapstructure:"kinds"`
	RetryAttempts   uint64        `mapstructure:"retry_attempts"`
	RetryInitial    time.Duration `mapstructure:"retry_initial"`
	RetryMax        time.Duration `mapstructure:"retry_max"`
	RetryMaxElapsed time.Duration `mapstructure:"retry_max_elapsed"`
}

func Setup(v *viper.Viper, prefix string) {
	p := func(key string) string { return prefix + "." + key }

	v.SetDefault(p("kinds"), []string{string(liveroom.TrackKindAudio)})
	v.SetDefault(p("retry_attempts"), 2)
	v.SetDefault(p("retry_initial"), 200*time.Millisecond)
	v.SetDefault(p("retry_max"), 2*time.Second)
	v.SetDefault(p("retry_max_elapsed"), 10*time.Second)
}

// TrackKinds parses Kinds. Audio is always part of a visit.
func (c *Config) TrackKinds() ([]liveroom.TrackKind, error) {
	kinds := make([]liveroom.TrackKind, 0, len(c.Kinds))
	for _, k := range c.Kinds {
		kinds = append(kinds, liveroom.TrackKind(k))
	}
	return normalizeKinds(kinds)
}

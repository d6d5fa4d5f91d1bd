package coordinator

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// SpeakerFloor is the minimum volume level that can make a participant
	// the active speaker.
	SpeakerFloor    float64       `mapstructure:"speaker_floor"`
	QueueSize       int           `mapstructure:"queue_size"`
	TeardownTimeout time.Duration `mapstructure:"teardown_timeout"`
}

func Setup(v *viper.Viper, prefix string) {
	p := func(key string) string { return prefix + "." + key }

	v.SetDefault(p("speaker_floor"), 0.05)
	v.SetDefault(p("queue_size"), 64)
	v.SetDefault(p("teardown_timeout"), 5*time.Second)
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.QueueSize <= 0 {
		out.QueueSize = 64
	}
	if out.TeardownTimeout <= 0 {
		out.TeardownTimeout = 5 * time.Second
	}
	return out
}

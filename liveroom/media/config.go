package media

import (
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/viper"

	"github.com/imtaco/liveroom/liveroom"
)

const (
	defaultIdentityRooms = 1024
	defaultMaxEvents     = 10
)

type Config struct {
	JanusBaseURL   string        `mapstructure:"janus_base_url"`
	AdminSecret    string        `mapstructure:"admin_secret"`
	RoomPin        string        `mapstructure:"room_pin"`
	SamplingRate   int           `mapstructure:"sampling_rate"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ICEServers     []string      `mapstructure:"ice_servers"`
	MaxEvents      int           `mapstructure:"max_events"`
	PollFailures   int           `mapstructure:"poll_failures"`
	PollBackoff    time.Duration `mapstructure:"poll_backoff"`
	IdentityRooms  int           `mapstructure:"identity_rooms"`
	DeniedKinds    []string      `mapstructure:"denied_kinds"`
}

func Setup(v *viper.Viper, prefix string) {
	p := func(key string) string { return prefix + "." + key }

	v.SetDefault(p("janus_base_url"), "http://janus:8088")
	v.SetDefault(p("admin_secret"), "supersecret")
	v.SetDefault(p("room_pin"), "")
	v.SetDefault(p("sampling_rate"), 16000)
	v.SetDefault(p("request_timeout"), 10*time.Second)
	v.SetDefault(p("ice_servers"), []string{"stun:stun.l.google.com:19302"})
	v.SetDefault(p("max_events"), defaultMaxEvents)
	v.SetDefault(p("poll_failures"), 3)
	v.SetDefault(p("poll_backoff"), time.Second)
	v.SetDefault(p("identity_rooms"), defaultIdentityRooms)
	v.SetDefault(p("denied_kinds"), []string{})
}

func (c *Config) rtcConfiguration() webrtc.Configuration {
	cfg := webrtc.Configuration{}
	if len(c.ICEServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: c.ICEServers}}
	}
	return cfg
}

func (c *Config) deniedKinds() []liveroom.TrackKind {
	kinds := make([]liveroom.TrackKind, 0, len(c.DeniedKinds))
	for _, k := range c.DeniedKinds {
		kinds = append(kinds, liveroom.TrackKind(k))
	}
	return kinds
}

// NewDevices returns the device grants configured by DeniedKinds.
func (c *Config) NewDevices() *GrantedDevices {
	return NewGrantedDevices(c.deniedKinds()...)
}

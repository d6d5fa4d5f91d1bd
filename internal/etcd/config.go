package etcd

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	clientv3 "go.etcd.io/etcd/client/v3"
)

type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CAFile   string `mapstructure:"ca_file"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

type Config struct {
	Endpoints         []string      `mapstructure:"endpoints"`
	Username          string        `mapstructure:"username"`
	Password          string        `mapstructure:"password"`
	DialTimeout       time.Duration `mapstructure:"dial_timeout"`
	DialKeepAliveTime time.Duration `mapstructure:"dial_keepalive_time"`
	// PingTimeout bounds the startup reachability check.
	PingTimeout time.Duration `mapstructure:"ping_timeout"`

	TLS TLSConfig `mapstructure:"tls"`
}

func Setup(v *viper.Viper, prefix string) {
	p := func(key string) string { return prefix + "." + key }

	v.SetDefault(p("endpoints"), []string{"etcd:2379"})
	v.SetDefault(p("username"), "")
	v.SetDefault(p("password"), "")
	v.SetDefault(p("dial_timeout"), "5s")
	v.SetDefault(p("dial_keepalive_time"), "30s")
	v.SetDefault(p("ping_timeout"), "3s")

	v.SetDefault(p("tls.enabled"), false)
	v.SetDefault(p("tls.ca_file"), "")
	v.SetDefault(p("tls.cert_file"), "")
	v.SetDefault(p("tls.key_file"), "")
}

func (c Config) BuildClientConfig() (clientv3.Config, error) {
	cfg := clientv3.Config{
		Endpoints:         c.Endpoints,
		Username:          c.Username,
		Password:          c.Password,
		DialTimeout:       c.DialTimeout,
		DialKeepAliveTime: c.DialKeepAliveTime,
	}
	if len(c.Endpoints) == 0 {
		return cfg, errors.New("etcd endpoints are required")
	}
	if c.TLS.Enabled {
		tlsCfg, err := buildTLSConfig(c.TLS)
		if err != nil {
			return clientv3.Config{}, err
		}
		cfg.TLS = tlsCfg
	}
	return cfg, nil
}

func buildTLSConfig(t TLSConfig) (*tls.Config, error) {
	tc := &tls.Config{MinVersion: tls.VersionTLS12}

	if t.CAFile != "" {
		caPEM, err := os.ReadFile(t.CAFile)
		if err != nil {
			return nil, errors.Wrap(err, "read etcd ca_file")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, errors.New("parse etcd ca_file: no certs found")
		}
		tc.RootCAs = pool
	}

	// client certificate is optional but must be complete
	if t.CertFile != "" || t.KeyFile != "" {
		if t.CertFile == "" || t.KeyFile == "" {
			return nil, errors.New("etcd tls requires both cert_file and key_file")
		}
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, errors.Wrap(err, "load etcd client cert/key")
		}
		tc.Certificates = []tls.Certificate{cert}
	}
	return tc, nil
}

func NewClient(c *Config) (*clientv3.Client, error) {
	cfg, err := c.BuildClientConfig()
	if err != nil {
		return nil, err
	}
	return clientv3.New(cfg)
}

// Ping asks the first endpoint for its status. The client dials lazily, so
// this is where an unreachable cluster shows up at startup.
func Ping(ctx context.Context, client *clientv3.Client, c *Config) error {
	timeout := c.PingTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := client.Status(ctx, c.Endpoints[0])
	return errors.Wrapf(err, "etcd status %s", c.Endpoints[0])
}

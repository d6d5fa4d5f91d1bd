package main

import (
	"context"
	"net/http"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	clientv3 "go.etcd.io/etcd/client/v3"
	"golang.org/x/sync/errgroup"

	"github.com/imtaco/liveroom/internal/config"
	"github.com/imtaco/liveroom/internal/etcd"
	"github.com/imtaco/liveroom/internal/httputil"
	"github.com/imtaco/liveroom/internal/janus"
	"github.com/imtaco/liveroom/internal/jwt"
	"github.com/imtaco/liveroom/internal/log"
	"github.com/imtaco/liveroom/internal/otel"
	"github.com/imtaco/liveroom/internal/redis"
	"github.com/imtaco/liveroom/internal/workflow"
	"github.com/imtaco/liveroom/liveroom"
	"github.com/imtaco/liveroom/liveroom/agent"
	"github.com/imtaco/liveroom/liveroom/coordinator"
	"github.com/imtaco/liveroom/liveroom/media"
	"github.com/imtaco/liveroom/liveroom/session"
	"github.com/imtaco/liveroom/liveroom/store"
	"github.com/imtaco/liveroom/liveroom/transport"
)

type EngineConfig struct {
	Coordinator coordinator.Config `mapstructure:"coordinator"`
	Session     session.Config     `mapstructure:"session"`
}

// VisitConfig optionally enters a room at startup.
type VisitConfig struct {
	RoomID        string `mapstructure:"room_id"`
	ParticipantID string `mapstructure:"participant_id"`
	DisplayRef    string `mapstructure:"display_ref"`
	Credential    string `mapstructure:"credential"`
	// CreateRoom makes ParticipantID the host of a new room before entering.
	CreateRoom bool   `mapstructure:"create_room"`
	Topic      string `mapstructure:"topic"`
}

type Config struct {
	App    config.App       `mapstructure:"app"`
	Http   httputil.Config  `mapstructure:"http"`
	Redis  redis.Config     `mapstructure:"redis"`
	Etcd   etcd.Config      `mapstructure:"etcd"`
	Otel   otel.Config      `mapstructure:"otel"`
	Store  store.Config     `mapstructure:"store"`
	Media  media.Config     `mapstructure:"media"`
	Engine EngineConfig     `mapstructure:"engine"`
	API    transport.Config `mapstructure:"api"`
	Visit  VisitConfig      `mapstructure:"visit"`
}

func loadConfig() (*Config, error) {
	return config.Load(&Config{}, func(v *viper.Viper) {
		v.SetDefault("visit.room_id", "")
		v.SetDefault("visit.participant_id", "")
		v.SetDefault("visit.display_ref", "")
		v.SetDefault("visit.credential", "")
		v.SetDefault("visit.create_room", false)
		v.SetDefault("visit.topic", "")

		config.Setup(v, "app")
		redis.Setup(v, "redis")
		etcd.Setup(v, "etcd")
		otel.Setup(v, "otel")
		httputil.Setup(v, "http")
		store.Setup(v, "store")
		media.Setup(v, "media")
		coordinator.Setup(v, "engine.coordinator")
		session.Setup(v, "engine.session")
		transport.Setup(v, "api")

		// override default addrs to ease testing
		v.SetDefault("http.addr", "127.0.0.1:8095")
	})
}

func main() {
	config, err := loadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration", err)
	}

	logger, err := log.NewLogger(config.App.LogConfigFile)
	if err != nil {
		log.Fatal("Failed to create logger", err)
	}
	defer logger.Sync()

	// global background context
	ctx := context.Background()

	otelShutdown, err := otel.Init(ctx, &config.Otel, logger)
	if err != nil {
		logger.Fatal("Failed to initialize OTEL provider", log.Error(err))
	}

	logger.Info("Starting Live Room Agent...", log.String("store", config.Store.Backend))

	var (
		clients    store.Clients
		redisConn  *goredis.Client
		etcdClient *clientv3.Client
	)
	switch config.Store.Backend {
	case store.BackendRedis:
		redisConn = redis.NewClient(&config.Redis)
		if err := redis.Ping(ctx, redisConn, config.Redis.PingTimeout); err != nil {
			logger.Fatal("Failed to connect to Redis", log.Error(err))
		}
		clients.Redis = redisConn
	case store.BackendEtcd:
		etcdClient, err = etcd.NewClient(&config.Etcd)
		if err != nil {
			logger.Fatal("Failed to create etcd client", log.Error(err))
		}
		if err := etcd.Ping(ctx, etcdClient, &config.Etcd); err != nil {
			logger.Fatal("Failed to connect to etcd", log.Error(err))
		}
		clients.Etcd = etcdClient
	}

	clock := clockwork.NewRealClock()
	roomStore, err := store.New(&config.Store, clients, clock, logger.Module("Store"))
	if err != nil {
		logger.Fatal("Failed to create room store", log.Error(err))
	}

	identity, err := media.NewIdentityRegistry(config.Media.IdentityRooms)
	if err != nil {
		logger.Fatal("Failed to create identity registry", log.Error(err))
	}
	janusAPI := janus.New(config.Media.JanusBaseURL, logger.Module("Janus"),
		janus.WithRequestTimeout(config.Media.RequestTimeout))
	mediaTransport := media.NewJanusTransport(
		janusAPI,
		config.Media.NewDevices(),
		identity,
		&config.Media,
		clock,
		logger.Module("Media"),
	)

	kinds, err := config.Engine.Session.TrackKinds()
	if err != nil {
		logger.Fatal("Invalid media kinds", log.Error(err))
	}

	visitAgent := agent.New(
		roomStore,
		mediaTransport,
		session.NewRetry(&config.Engine.Session, logger.Module("Retry")),
		&config.Engine.Coordinator,
		logger.Module("Agent"),
	)

	router := transport.NewRouter(visitAgent, jwt.NewAuth(config.API.Secret), &config.API, logger.Module("Router"))
	server := httputil.NewServer(&config.Http, router.Handler())

	if config.Visit.RoomID != "" {
		if err := startVisit(ctx, config, kinds, roomStore, mediaTransport, visitAgent, logger); err != nil {
			logger.Fatal("Failed to enter room", log.Error(err))
		}
	}

	go func() {
		logger.Info("Starting visit API server", log.String("addr", config.Http.Addr))
		if err := server.Listen(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start visit API server", log.Error(err))
		}
	}()

	steps := []workflow.ShutdownStep{
		{Name: "server", Run: server.Shutdown},
		{Name: "visit", Run: visitAgent.Close},
	}
	if redisConn != nil {
		steps = append(steps, workflow.ShutdownStep{Name: "redis", Run: func(context.Context) error {
			return redisConn.Close()
		}})
	}
	if etcdClient != nil {
		steps = append(steps, workflow.ShutdownStep{Name: "etcd", Run: func(context.Context) error {
			return etcdClient.Close()
		}})
	}
	steps = append(steps, workflow.ShutdownStep{Name: "otel", Run: otelShutdown})

	workflow.WaitGracefulShutdown(ctx, logger.Module("CleanUp"), config.App.ShutdownTimeout, steps...)
}

// startVisit provisions the room when asked to, then enters it. The room
// record and the media room are created concurrently.
func startVisit(
	ctx context.Context,
	config *Config,
	kinds []liveroom.TrackKind,
	roomStore store.Store,
	provisioner liveroom.RoomProvisioner,
	visitAgent *agent.Agent,
	logger *log.Logger,
) error {
	v := config.Visit
	if v.CreateRoom {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			// idempotent for the same host
			room, err := roomStore.CreateRoom(gctx, v.RoomID, v.Topic, &liveroom.ParticipantRecord{
				ID:         v.ParticipantID,
				DisplayRef: v.DisplayRef,
			})
			if err != nil {
				return err
			}
			logger.Info("Room ready", log.RoomID(room.ID), log.Int64("version", room.Version))
			return nil
		})
		g.Go(func() error {
			return provisioner.EnsureRoom(gctx, v.RoomID, v.Topic)
		})
		if err := g.Wait(); err != nil {
			return err
		}
	}

	_, err := visitAgent.Enter(ctx, session.Visit{
		RoomID:        v.RoomID,
		ParticipantID: v.ParticipantID,
		DisplayRef:    v.DisplayRef,
		Credential:    v.Credential,
		Kinds:         kinds,
	})
	return err
}

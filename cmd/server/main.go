package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/nexus-chat-server/internal/api"
	"github.com/Tyrowin/nexus-chat-server/internal/logger"
	"github.com/Tyrowin/nexus-chat-server/internal/presence"
	"github.com/Tyrowin/nexus-chat-server/internal/relay"
	"github.com/Tyrowin/nexus-chat-server/internal/server"
	"github.com/Tyrowin/nexus-chat-server/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	config := server.NewConfigFromEnv()
	server.SetConfig(config)

	log := logger.New(config.LogLevel, config.IsDevelopment())
	for _, origin := range server.IgnoredOrigins() {
		log.Warn("ignoring invalid origin in configuration", zap.String("origin", origin))
	}

	err := run(*config, log)
	if err != nil {
		log.Error("server stopped", zap.Error(err))
	}
	_ = log.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// closers releases backend connections in reverse order of opening.
type closers []func()

func (c *closers) add(fn func()) {
	*c = append(*c, fn)
}

func (c *closers) run() {
	for i := len(*c) - 1; i >= 0; i-- {
		(*c)[i]()
	}
	*c = nil
}

func run(config server.Config, log *zap.Logger) error {
	ctx := context.Background()

	var (
		messages store.MessageStore
		users    store.UserStore
		status   store.StatusFanout
		cluster  presence.Cluster
		online   api.Presence
		open     closers
	)
	defer open.run()

	if config.MongoURI != "" {
		mongo, err := store.NewMongo(ctx, store.MongoConfig{
			URI:         config.MongoURI,
			Database:    config.MongoDatabase,
			MaxPoolSize: config.MongoMaxPoolSize,
		})
		if err != nil {
			return err
		}
		log.Info("using mongo store", zap.String("database", config.MongoDatabase))
		messages, users = mongo, mongo
		open.add(func() {
			cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mongo.Close(cctx); err != nil {
				log.Warn("mongo disconnect", zap.Error(err))
			}
		})
	} else {
		log.Warn("MONGO_URI not set; messages are kept in memory only")
		mem := store.NewMemory()
		messages, users = mem, mem
	}
	status = append(status, users)

	if config.RedisURL != "" {
		redisStatus, err := store.NewRedisStatus(ctx, config.RedisURL)
		if err != nil {
			return err
		}
		log.Info("sharing presence through redis")
		status = append(status, redisStatus)
		cluster, online = redisStatus, redisStatus
		open.add(func() { _ = redisStatus.Close() })
	}

	hub := server.NewHub(server.HubConfig{
		Messages:       messages,
		Users:          users,
		Status:         status,
		Cluster:        cluster,
		GracePeriod:    config.OfflineGracePeriod,
		PersistTimeout: config.PersistTimeout,
		Logger:         log,
	})

	if config.NatsURL != "" {
		hostname, _ := os.Hostname()
		fanout, err := relay.Dial(relay.Config{
			Servers: strings.Split(config.NatsURL, ","),
			Name:    "nexus-" + hostname,
			Subject: config.NatsSubject,
		}, hub.Deliver, log)
		if err != nil {
			return err
		}
		log.Info("cross-worker fanout over nats", zap.String("subject", config.NatsSubject))
		hub.UseFanout(fanout)
		open.add(func() { _ = fanout.Close() })
	}

	go hub.Run()
	if online == nil {
		online = hub
	}

	apiRouter := api.NewRouter(api.Options{
		Messages:       messages,
		Presence:       online,
		AllowedOrigins: config.AllowedOrigins,
		Logger:         log,
	})
	httpServer := server.CreateServer(config.Port, server.SetupRoutes(hub, apiRouter))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer, log)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case serveErr = <-errCh:
	}

	if err := server.ShutdownServer(httpServer, shutdownTimeout); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if err := hub.Shutdown(shutdownTimeout); err != nil {
		log.Warn("hub shutdown", zap.Error(err))
	}
	open.run()
	log.Info("server stopped")
	return serveErr
}

package main

import (
	"context"
	"os"

	"github.com/fieldsync/backend/internal/bridge"
	"github.com/fieldsync/backend/internal/common/clock"
	"github.com/fieldsync/backend/internal/common/config"
	"github.com/fieldsync/backend/internal/common/constants"
	"github.com/fieldsync/backend/internal/common/db"
	"github.com/fieldsync/backend/internal/common/logger"
	"github.com/fieldsync/backend/internal/common/server"
	"github.com/fieldsync/backend/internal/geofence"
	"github.com/fieldsync/backend/internal/presence"
	realtimehttp "github.com/fieldsync/backend/internal/realtime/http"
	"github.com/fieldsync/backend/internal/realtime/hub"
)

func main() {
	log, err := logger.New(os.Getenv("LOG_DIR"), "realtime", os.Getenv("LOG_LEVEL"))
	if err != nil {
		panic(err)
	}

	cfg, err := config.LoadRealtimeConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()
	clk := clock.NewRealClock()

	var presenceRepo presence.Repository = presence.NewNoopRepository()
	fenceStore := geofence.NewStore()

	if cfg.DatabaseURL != "" {
		pool := db.NewPool(log, cfg.DatabaseURL)
		defer pool.Close()
		db.StartPoolMetrics(pool, constants.DBPoolMetricsInterval)

		presenceRepo = presence.NewPgRepository(pool)
		if err := fenceStore.Load(ctx, geofence.NewPgRepository(pool)); err != nil {
			log.Warnf("geofence load failed, running without fences: %v", err)
		}
	} else {
		log.Warn("DATABASE_URL not set, presence is in-memory only")
	}

	presenceSvc := presence.NewService(ctx,
		presence.ServiceDeps{Repo: presenceRepo, Log: log, Clock: clk},
		presence.ServiceConfig{LastSeenUpdateInterval: cfg.LastSeenUpdateInterval},
	)

	connCfg := hub.ConnConfig{
		WriteWait:   cfg.WebSocketWriteWait,
		PongWait:    cfg.WebSocketPongWait,
		PingPeriod:  cfg.WebSocketPingPeriod,
		MaxMsgSize:  cfg.WebSocketMaxMsgSize,
		SendBufSize: cfg.WebSocketSendBufSize,
	}

	eventHub := hub.New(
		hub.Config{
			SendTimeout: cfg.WebSocketSendTimeout,
			Workers:     cfg.ProcessorWorkers,
			QueueSize:   cfg.ProcessorQueueSize,
			ConnConfig:  connCfg,
		},
		hub.Deps{
			Presence: presenceSvc,
			Geofence: geofence.NewEvaluator(fenceStore),
			Clock:    clk,
			Log:      log,
		},
	)

	var eventBridge *bridge.Bridge
	if cfg.NATSURL != "" {
		eventBridge, err = bridge.Connect(cfg.NATSURL, eventHub, log)
		if err != nil {
			log.Fatalf("failed to connect event bridge: %v", err)
		}
		eventHub.SetPublisher(eventBridge)
	} else {
		log.Warn("NATS_URL not set, running single-instance")
	}

	eventHub.Run()

	handler := realtimehttp.NewHandler(eventHub, presenceSvc, log, []byte(cfg.JWTSecret))
	router := realtimehttp.NewRouter(handler, log)

	srv := server.NewServer(server.DefaultServerConfig(cfg.HTTPPort), router)
	server.StartWithGracefulShutdownAndHooks(srv, log, "realtime", []server.ShutdownHook{
		func(ctx context.Context) error {
			return eventHub.Shutdown(ctx)
		},
		func(ctx context.Context) error {
			presenceSvc.Stop()
			if eventBridge != nil {
				eventBridge.Close()
			}
			return nil
		},
	})
}

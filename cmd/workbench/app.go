package main

import (
	"github.com/rs/zerolog"

	"github.com/streamsql/workbench/cmd/workbench/config"
	"github.com/streamsql/workbench/pkg/dashboard"
	"github.com/streamsql/workbench/pkg/engine"
	"github.com/streamsql/workbench/pkg/gateway"
	"github.com/streamsql/workbench/pkg/infrastructure/metrics"
	"github.com/streamsql/workbench/pkg/metadata"
	"github.com/streamsql/workbench/pkg/models"
	"github.com/streamsql/workbench/pkg/session"
	"github.com/streamsql/workbench/pkg/store"
)

// app wires the store, session registry, gateway clients, execution engine
// and metadata service together for one CLI invocation.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	store     *store.FileStore
	registry  *session.Registry
	gateway   *gateway.Client
	dashboard *dashboard.Client
	engine    *engine.Engine
	metadata  *metadata.Service

	metricsServer *metrics.Server
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := setupLogging(cfg.LogLevel)

	var collector metrics.Collector = metrics.NewNoOpCollector()
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		pc := metrics.NewPrometheusCollector()
		collector = pc
		metricsServer = metrics.NewServer(cfg.Metrics.Address, pc)
		go func() {
			logger.Info().Str("address", cfg.Metrics.Address).Msg("starting metrics server")
			if err := metricsServer.Start(); err != nil {
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	st := store.NewFileStore(cfg.StatePath)

	gw := gateway.NewClient("", logger)
	dash := dashboard.NewClient("", logger)

	registry := session.NewRegistry(st, func(gatewayURL string) session.Gateway {
		return gateway.NewClient(gatewayURL, logger)
	}, logger)
	registry.SetSessionProperties(cfg.SessionProperties)

	// Keep the shared clients pointed at whichever connection owns the
	// active session, including after a session switch or recovery.
	registry.Subscribe(func(sess models.Session, conn models.Connection) {
		gw.SetBaseURL(conn.GatewayURL)
		dash.SetBaseURL(conn.JobManagerURL)
	})
	if state, err := st.Load(); err == nil {
		if conn := activeConnection(state); conn != nil {
			gw.SetBaseURL(conn.GatewayURL)
			dash.SetBaseURL(conn.JobManagerURL)
		}
	}

	engineCfg := engine.DefaultConfig()
	engineCfg.ExecutionTimeout = cfg.ExecutionTimeout
	engineCfg.StreamBufferRows = cfg.MaxBufferRows

	eng := engine.New(gw, registry, engineCfg, logger, collector)
	meta := metadata.NewService(eng, cfg.Metadata.TTL, logger, collector)
	eng.OnMetadataChanged(meta.Refresh)

	return &app{
		cfg:           cfg,
		logger:        logger,
		store:         st,
		registry:      registry,
		gateway:       gw,
		dashboard:     dash,
		engine:        eng,
		metadata:      meta,
		metricsServer: metricsServer,
	}, nil
}

func (a *app) close() {
	if a.metricsServer != nil {
		if err := a.metricsServer.Stop(); err != nil {
			a.logger.Error().Err(err).Msg("error stopping metrics server")
		}
	}
}

// activeConnection resolves the connection backing the active session, or the
// only configured connection when no session exists yet.
func activeConnection(state *store.State) *models.Connection {
	for _, sess := range state.Sessions {
		if sess.Handle == state.ActiveHandle {
			return state.FindConnection(sess.ConnectionID)
		}
	}
	if len(state.Connections) == 1 {
		return &state.Connections[0]
	}
	return nil
}

package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dwizi/region-relay/internal/config"
	"github.com/dwizi/region-relay/internal/connectors"
	"github.com/dwizi/region-relay/internal/connectors/telegram"
	"github.com/dwizi/region-relay/internal/dispatch"
	"github.com/dwizi/region-relay/internal/gateway"
	"github.com/dwizi/region-relay/internal/grammar"
	"github.com/dwizi/region-relay/internal/heartbeat"
	"github.com/dwizi/region-relay/internal/httpapi"
	"github.com/dwizi/region-relay/internal/metrics"
	"github.com/dwizi/region-relay/internal/relay"
	"github.com/dwizi/region-relay/internal/retention"
	"github.com/dwizi/region-relay/internal/store"
)

func New(cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	location, err := grammar.ParseOffset(cfg.TimezoneOffset)
	if err != nil {
		return nil, fmt.Errorf("parse timezone offset: %w", err)
	}

	sqlStore, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := sqlStore.AutoMigrate(context.Background()); err != nil {
		sqlStore.Close()
		return nil, err
	}

	cat, err := loadCatalog(context.Background(), sqlStore, cfg, logger.With("component", "catalog"))
	if err != nil {
		sqlStore.Close()
		return nil, err
	}

	engineOpts := []relay.EngineOption{relay.WithLocation(location)}
	if classes := cfg.TagPriority(); len(classes) > 0 {
		engineOpts = append(engineOpts, relay.WithTagPriority(relay.NewTagPriority(classes...)))
	}
	retrievalEngine := relay.NewEngine(cat, sqlStore, logger.With("component", "retrieval"), engineOpts...)

	dispatcher := dispatch.New(cfg.DispatchLanes, cfg.DispatchQueue, logger.With("component", "dispatch"))
	dispatcher.SetObserver(metrics.DispatchObserver{})

	connector := telegram.New(
		cfg.TelegramToken,
		cfg.TelegramAPI,
		cfg.TelegramPoll,
		logger,
		telegram.WithCommandSync(cfg.CommandSyncEnabled),
		telegram.WithRateLimit(cfg.TelegramRateLimit, cfg.TelegramRateBurst),
		telegram.WithMaxSendRetries(cfg.TelegramSendRetries),
		telegram.WithDispatcher(dispatcher),
	)
	relayGateway := gateway.New(
		cat,
		sqlStore,
		retrievalEngine,
		connector,
		logger.With("component", "gateway"),
		gateway.WithDefaultOffset(cfg.TimezoneOffset),
		gateway.WithTrailingRegion(cfg.TrailingRegion),
	)
	if err := relayGateway.LoadChats(context.Background()); err != nil {
		sqlStore.Close()
		return nil, err
	}
	connector.SetHandler(relayGateway)

	retentionService, err := retention.New(sqlStore, cfg.RetentionDays, cfg.RetentionCron, logger.With("component", "retention"))
	if err != nil {
		sqlStore.Close()
		return nil, err
	}

	registry := heartbeat.NewRegistry()
	for _, component := range []heartbeatAware{connector, retentionService} {
		component.SetHeartbeatReporter(registry)
	}
	staleAfter := time.Duration(cfg.HeartbeatStaleSec) * time.Second
	monitor := heartbeat.NewMonitor(
		registry,
		time.Duration(cfg.HeartbeatIntervalSec)*time.Second,
		staleAfter,
		logger.With("component", "heartbeat"),
	)
	notifier := newHeartbeatNotifier(sqlStore, connector, cfg.HeartbeatNotifyAdmin, logger.With("component", "heartbeat-notifier"))
	monitor.OnTransition(notifier.HandleTransition)

	router := httpapi.NewRouter(httpapi.Dependencies{
		Config:              cfg,
		Store:               sqlStore,
		Catalog:             cat,
		Logger:              logger.With("component", "api"),
		Heartbeat:           registry,
		HeartbeatStaleAfter: staleAfter,
	})

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		store:      sqlStore,
		catalog:    cat,
		gateway:    relayGateway,
		dispatcher: dispatcher,
		connector:  connector,
		connectors: []connectors.Connector{connector},
		retention:  retentionService,
		httpServer: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		heartbeat:        registry,
		heartbeatMonitor: monitor,
	}, nil
}

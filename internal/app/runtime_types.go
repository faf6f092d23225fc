package app

import (
	"log/slog"
	"net/http"

	"github.com/dwizi/region-relay/internal/catalog"
	"github.com/dwizi/region-relay/internal/config"
	"github.com/dwizi/region-relay/internal/connectors"
	"github.com/dwizi/region-relay/internal/connectors/telegram"
	"github.com/dwizi/region-relay/internal/dispatch"
	"github.com/dwizi/region-relay/internal/gateway"
	"github.com/dwizi/region-relay/internal/heartbeat"
	"github.com/dwizi/region-relay/internal/retention"
	"github.com/dwizi/region-relay/internal/store"
)

type Runtime struct {
	cfg              config.Config
	logger           *slog.Logger
	store            *store.Store
	catalog          *catalog.Catalog
	gateway          *gateway.Service
	dispatcher       *dispatch.Engine
	connector        *telegram.Connector
	connectors       []connectors.Connector
	retention        *retention.Service
	httpServer       *http.Server
	heartbeat        *heartbeat.Registry
	heartbeatMonitor *heartbeat.Monitor
}

type heartbeatAware interface {
	SetHeartbeatReporter(reporter heartbeat.Reporter)
}

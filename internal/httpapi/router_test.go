package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dwizi/region-relay/internal/catalog"
	"github.com/dwizi/region-relay/internal/config"
	"github.com/dwizi/region-relay/internal/heartbeat"
	"github.com/dwizi/region-relay/internal/metrics"
	"github.com/dwizi/region-relay/internal/relay"
	"github.com/dwizi/region-relay/internal/store"
)

func newRouterTestStore(t *testing.T) *store.Store {
	t.Helper()
	sqlStore, err := store.New(filepath.Join(t.TempDir(), "router_test.sqlite"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = sqlStore.Close() })
	if err := sqlStore.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("migrate store: %v", err)
	}
	return sqlStore
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReadyAndInfo(t *testing.T) {
	handler := NewRouter(Dependencies{
		Config: config.Config{Environment: "test", TimezoneOffset: "+03:00"},
		Store:  newRouterTestStore(t),
		Logger: testLogger(),
	})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected ready, got %d: %s", res.Code, res.Body.String())
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/v1/info", nil))
	var info map[string]any
	if err := json.NewDecoder(res.Body).Decode(&info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if info["name"] != "region-relay" || info["environment"] != "test" || info["telegram"] != false {
		t.Fatalf("unexpected info payload: %+v", info)
	}
}

func TestHealthReflectsHeartbeat(t *testing.T) {
	registry := heartbeat.NewRegistry()
	handler := NewRouter(Dependencies{
		Logger:              testLogger(),
		Heartbeat:           registry,
		HeartbeatStaleAfter: time.Minute,
	})

	registry.Beat("connector:telegram", "poll cycle ok")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected healthy status, got %d", res.Code)
	}
	var snapshot heartbeat.Snapshot
	if err := json.NewDecoder(res.Body).Decode(&snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snapshot.Components) != 1 || snapshot.Components[0].State != heartbeat.StateHealthy {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}

	registry.Degrade("connector:telegram", "poll failed", errors.New("timeout"))
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected degraded status, got %d", res.Code)
	}
}

func TestCatalogEndpoint(t *testing.T) {
	cat, err := catalog.New([]catalog.Region{
		{Code: "CENTRAL", Aliases: []string{"capital"}},
		{Code: "SOUTH"},
	}, []string{"A", "B"})
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}
	handler := NewRouter(Dependencies{Catalog: cat, Logger: testLogger()})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/v1/catalog", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected catalog, got %d", res.Code)
	}
	var payload struct {
		CountryKeyword string          `json:"country_keyword"`
		Regions        []regionPayload `json:"regions"`
		Tags           []string        `json:"tags"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode catalog: %v", err)
	}
	wantRegions := []regionPayload{
		{Code: "CENTRAL", Aliases: []string{"capital"}},
		{Code: "SOUTH", Aliases: []string{}},
	}
	if diff := cmp.Diff(wantRegions, payload.Regions); diff != "" {
		t.Fatalf("regions mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"A", "B"}, payload.Tags); diff != "" {
		t.Fatalf("tags mismatch (-want +got):\n%s", diff)
	}
	if payload.CountryKeyword != catalog.DefaultCountryKeyword {
		t.Fatalf("unexpected country keyword %q", payload.CountryKeyword)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/api/v1/catalog", nil))
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	sqlStore := newRouterTestStore(t)
	now := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)
	err := sqlStore.InsertBatch(context.Background(), []relay.StoredMessage{
		{ID: "m1", Timestamp: now.Add(-time.Hour), ChatID: -100, MessageID: 1, Regions: []string{"CENTRAL"}},
		{ID: "m2", Timestamp: now.Add(-24 * time.Hour), ChatID: -100, MessageID: 2, Regions: []string{"CENTRAL"}},
	})
	if err != nil {
		t.Fatalf("insert batch: %v", err)
	}
	handler := NewRouter(Dependencies{
		Config: config.Config{TimezoneOffset: "+03:00"},
		Store:  sqlStore,
		Logger: testLogger(),
		Now:    func() time.Time { return now },
	})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/v1/stats?offset=%2B00:00", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected stats, got %d: %s", res.Code, res.Body.String())
	}
	var payload struct {
		Offset string             `json:"offset"`
		Stats  store.ArchiveStats `json:"stats"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if payload.Offset != "+00:00" || payload.Stats.Today != 1 || payload.Stats.Yesterday != 1 || payload.Stats.Total != 2 {
		t.Fatalf("unexpected stats payload: %+v", payload)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/api/v1/stats?offset=noon", nil))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected bad offset to be rejected, got %d", res.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.RecordGroupOutcome("saved", 2)
	handler := NewRouter(Dependencies{Logger: testLogger()})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected metrics, got %d", res.Code)
	}
	body := res.Body.String()
	for _, name := range []string{
		"region_relay_group_saved_messages_total",
		`region_relay_group_outcomes_total{outcome="saved"}`,
	} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected %s in metrics output", name)
		}
	}
}

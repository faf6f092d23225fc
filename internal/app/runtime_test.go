package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dwizi/region-relay/internal/catalog"
	"github.com/dwizi/region-relay/internal/config"
	"github.com/dwizi/region-relay/internal/heartbeat"
	"github.com/dwizi/region-relay/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRuntimeTestStore(t *testing.T) *store.Store {
	t.Helper()
	sqlStore, err := store.New(filepath.Join(t.TempDir(), "runtime_test.sqlite"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = sqlStore.Close() })
	if err := sqlStore.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("migrate store: %v", err)
	}
	return sqlStore
}

const seedCatalog = `country_keyword: country
regions:
  - code: CENTRAL
    aliases: [capital, cap]
  - code: SOUTH
    aliases: [coast]
tags: [A, B]
`

func TestLoadCatalogSeedsEmptyStore(t *testing.T) {
	sqlStore := newRuntimeTestStore(t)
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(seedCatalog), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	cat, err := loadCatalog(context.Background(), sqlStore, config.Config{CatalogFile: path, CountryKeyword: "nation"}, testLogger())
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if diff := cmp.Diff([]string{"CENTRAL", "SOUTH"}, cat.Codes()); diff != "" {
		t.Fatalf("codes mismatch (-want +got):\n%s", diff)
	}
	if cat.CountryKeyword() != "nation" {
		t.Fatalf("expected configured keyword to win, got %q", cat.CountryKeyword())
	}

	stored, err := sqlStore.LoadCatalog(context.Background())
	if err != nil {
		t.Fatalf("expected seeded catalog in store: %v", err)
	}
	if stored.CountryKeyword != "country" || len(stored.Tags) != 2 {
		t.Fatalf("unexpected stored catalog: %+v", stored)
	}
}

func TestLoadCatalogPrefersStore(t *testing.T) {
	sqlStore := newRuntimeTestStore(t)
	if err := sqlStore.ReplaceCatalog(context.Background(), catalog.File{
		Regions: []catalog.Region{{Code: "NORTH", Aliases: []string{"tundra"}}},
		Tags:    []string{"C"},
	}); err != nil {
		t.Fatalf("replace catalog: %v", err)
	}

	cat, err := loadCatalog(context.Background(), sqlStore, config.Config{CatalogFile: "/does/not/exist.yaml"}, testLogger())
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if diff := cmp.Diff([]string{"NORTH"}, cat.Codes()); diff != "" {
		t.Fatalf("codes mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadCatalogWithoutSourceFails(t *testing.T) {
	sqlStore := newRuntimeTestStore(t)
	_, err := loadCatalog(context.Background(), sqlStore, config.Config{}, testLogger())
	if !errors.Is(err, catalog.ErrEmptyCatalog) {
		t.Fatalf("expected empty catalog error, got %v", err)
	}
}

func TestNewRuntimeWiresComponents(t *testing.T) {
	dataDir := t.TempDir()
	path := filepath.Join(dataDir, "catalog.yaml")
	if err := os.WriteFile(path, []byte(seedCatalog), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	cfg := config.Config{
		HTTPAddr:             "127.0.0.1:0",
		DBPath:               filepath.Join(dataDir, "nested", "relay.sqlite"),
		CatalogFile:          path,
		TimezoneOffset:       "+03:00",
		TagPriorityCSV:       "A,B",
		DispatchLanes:        2,
		DispatchQueue:        8,
		RetentionDays:        30,
		RetentionCron:        "0 4 * * *",
		HeartbeatIntervalSec: 30,
		HeartbeatStaleSec:    120,
	}
	runtime, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	defer runtime.Close()

	if runtime.connector.Enabled() {
		t.Fatal("expected connector disabled without token")
	}
	if !runtime.retention.Enabled() {
		t.Fatal("expected retention enabled")
	}
	if runtime.dispatcher.LaneCount() != 2 {
		t.Fatalf("expected two lanes, got %d", runtime.dispatcher.LaneCount())
	}
}

func TestNewRuntimeRejectsBadOffset(t *testing.T) {
	_, err := New(config.Config{DBPath: filepath.Join(t.TempDir(), "relay.sqlite"), TimezoneOffset: "noon"}, testLogger())
	if err == nil || !strings.Contains(err.Error(), "timezone offset") {
		t.Fatalf("expected offset error, got %v", err)
	}
}

type fakeAdminSender struct {
	mu    sync.Mutex
	sends map[int64][]string
}

func (f *fakeAdminSender) SendMessage(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sends == nil {
		f.sends = map[int64][]string{}
	}
	f.sends[chatID] = append(f.sends[chatID], text)
	return nil
}

func TestHeartbeatNotifierMessagesAdmins(t *testing.T) {
	sqlStore := newRuntimeTestStore(t)
	ctx := context.Background()
	for _, user := range []store.User{{ID: 1, Group: store.GroupAdmin}, {ID: 2, Group: store.GroupRegistered}} {
		if err := sqlStore.UpsertUser(ctx, user); err != nil {
			t.Fatalf("upsert user: %v", err)
		}
	}
	sender := &fakeAdminSender{}
	notifier := newHeartbeatNotifier(sqlStore, sender, true, testLogger())

	notifier.HandleTransition(heartbeat.Transition{
		Component: "connector:telegram",
		From:      heartbeat.StateHealthy,
		To:        heartbeat.StateDegraded,
		Message:   "poll failed",
		Error:     "timeout",
	})
	notifier.HandleTransition(heartbeat.Transition{
		Component: "connector:telegram",
		From:      heartbeat.StateDegraded,
		To:        heartbeat.StateHealthy,
	})
	notifier.HandleTransition(heartbeat.Transition{
		Component: "dispatch",
		From:      heartbeat.StateStarting,
		To:        heartbeat.StateHealthy,
	})

	want := map[int64][]string{
		1: {
			"Component connector:telegram is degraded.\npoll failed\nError: timeout",
			"Component connector:telegram recovered.",
		},
	}
	if diff := cmp.Diff(want, sender.sends); diff != "" {
		t.Fatalf("notifications mismatch (-want +got):\n%s", diff)
	}
}

func TestRunMonitoredReportsFailure(t *testing.T) {
	registry := heartbeat.NewRegistry()
	boom := errors.New("boom")
	err := runMonitored(context.Background(), registry, "api", 0, func(context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	snapshot := registry.Snapshot(0)
	if len(snapshot.Components) != 1 || snapshot.Components[0].State != heartbeat.StateDegraded {
		t.Fatalf("expected degraded api component, got %+v", snapshot.Components)
	}

	err = runMonitored(context.Background(), registry, "dispatch", 0, func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snapshot = registry.Snapshot(0)
	for _, component := range snapshot.Components {
		if component.Name == "dispatch" && component.State != heartbeat.StateStopped {
			t.Fatalf("expected dispatch stopped, got %s", component.State)
		}
	}
}

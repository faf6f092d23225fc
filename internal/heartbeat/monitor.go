package heartbeat

import (
	"context"
	"log/slog"
	"time"
)

type Transition struct {
	Component string `json:"component"`
	From      State  `json:"from"`
	To        State  `json:"to"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Monitor polls the registry and logs every component state change, so a
// stalled poller or a failing retention job shows up in the process log.
type Monitor struct {
	registry     *Registry
	interval     time.Duration
	staleAfter   time.Duration
	logger       *slog.Logger
	onTransition func(Transition)
}

func NewMonitor(registry *Registry, interval, staleAfter time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		registry:   registry,
		interval:   interval,
		staleAfter: staleAfter,
		logger:     logger,
	}
}

// OnTransition registers an extra callback run after each logged transition.
func (m *Monitor) OnTransition(callback func(Transition)) {
	m.onTransition = callback
}

func (m *Monitor) Start(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.logger.Info("heartbeat monitor started", "interval", m.interval.String(), "stale_after", m.staleAfter.String())

	previous := map[string]State{}
	for {
		m.compare(m.registry.Snapshot(m.staleAfter), previous)
		select {
		case <-ctx.Done():
			m.logger.Info("heartbeat monitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (m *Monitor) compare(snapshot Snapshot, previous map[string]State) {
	for _, component := range snapshot.Components {
		before, seen := previous[component.Name]
		previous[component.Name] = component.State
		if !seen || before == component.State {
			continue
		}
		transition := Transition{
			Component: component.Name,
			From:      before,
			To:        component.State,
			Message:   component.Message,
			Error:     component.Error,
		}
		if component.State == StateDegraded || component.State == StateStale {
			m.logger.Warn("component degraded", "component", transition.Component, "from", transition.From, "to", transition.To, "error", transition.Error)
		} else {
			m.logger.Info("component state changed", "component", transition.Component, "from", transition.From, "to", transition.To)
		}
		if m.onTransition != nil {
			m.onTransition(transition)
		}
	}
}

package heartbeat

import (
	"sort"
	"strings"
	"sync"
	"time"
)

type State string

const (
	StateStarting State = "starting"
	StateHealthy  State = "healthy"
	StateDegraded State = "degraded"
	StateDisabled State = "disabled"
	StateStopped  State = "stopped"
	StateStale    State = "stale"
)

// Overall values that are not component states.
const (
	OverallUnknown = "unknown"
	OverallIdle    = "idle"
)

// Reporter is what long-running relay components (poller, dispatcher,
// retention job) use to publish their liveness.
type Reporter interface {
	Starting(component, message string)
	Beat(component, message string)
	Degrade(component, message string, err error)
	Disabled(component, message string)
	Stopped(component, message string)
}

type ComponentStatus struct {
	Name       string `json:"name"`
	State      State  `json:"state"`
	Reported   State  `json:"reported"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	LastBeatAt int64  `json:"last_beat_at_unix,omitempty"`
	UpdatedAt  int64  `json:"updated_at_unix"`
}

type Snapshot struct {
	GeneratedAt int64             `json:"generated_at_unix"`
	Overall     string            `json:"overall"`
	Components  []ComponentStatus `json:"components"`
}

type entry struct {
	state     State
	message   string
	err       string
	lastBeat  time.Time
	updatedAt time.Time
}

type Registry struct {
	mu      sync.RWMutex
	now     func() time.Time
	entries map[string]entry
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRegistry(opts ...Option) *Registry {
	registry := &Registry{
		now:     func() time.Time { return time.Now().UTC() },
		entries: map[string]entry{},
	}
	for _, opt := range opts {
		opt(registry)
	}
	return registry
}

func (r *Registry) Starting(component, message string) {
	r.record(component, StateStarting, message, nil, false)
}

func (r *Registry) Beat(component, message string) {
	r.record(component, StateHealthy, message, nil, true)
}

func (r *Registry) Degrade(component, message string, err error) {
	r.record(component, StateDegraded, message, err, false)
}

func (r *Registry) Disabled(component, message string) {
	r.record(component, StateDisabled, message, nil, false)
}

func (r *Registry) Stopped(component, message string) {
	r.record(component, StateStopped, message, nil, false)
}

func (r *Registry) record(component string, state State, message string, err error, beat bool) {
	name := strings.ToLower(strings.TrimSpace(component))
	if name == "" {
		return
	}
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	current := r.entries[name]
	current.state = state
	current.message = strings.TrimSpace(message)
	current.err = ""
	if err != nil {
		current.err = strings.TrimSpace(err.Error())
	}
	current.updatedAt = now
	if beat || current.lastBeat.IsZero() {
		current.lastBeat = now
	}
	r.entries[name] = current
}

// Snapshot reports every component sorted by name. Starting and healthy
// components whose last beat is older than staleAfter are reported stale.
func (r *Registry) Snapshot(staleAfter time.Duration) Snapshot {
	now := r.now()
	r.mu.RLock()
	defer r.mu.RUnlock()

	components := make([]ComponentStatus, 0, len(r.entries))
	for name, current := range r.entries {
		status := ComponentStatus{
			Name:       name,
			State:      current.state,
			Reported:   current.state,
			Message:    current.message,
			Error:      current.err,
			LastBeatAt: current.lastBeat.Unix(),
			UpdatedAt:  current.updatedAt.Unix(),
		}
		live := current.state == StateHealthy || current.state == StateStarting
		if staleAfter > 0 && live && now.Sub(current.lastBeat) > staleAfter {
			status.State = StateStale
		}
		components = append(components, status)
	}
	sort.Slice(components, func(left, right int) bool {
		return components[left].Name < components[right].Name
	})

	return Snapshot{
		GeneratedAt: now.Unix(),
		Overall:     overall(components),
		Components:  components,
	}
}

func (s Snapshot) Degraded() bool {
	return s.Overall == string(StateDegraded)
}

func overall(components []ComponentStatus) string {
	if len(components) == 0 {
		return OverallUnknown
	}
	starting, active := false, false
	for _, component := range components {
		switch component.State {
		case StateDegraded, StateStale:
			return string(StateDegraded)
		case StateStarting:
			starting = true
			active = true
		case StateHealthy:
			active = true
		}
	}
	switch {
	case starting:
		return string(StateStarting)
	case active:
		return string(StateHealthy)
	default:
		return OverallIdle
	}
}

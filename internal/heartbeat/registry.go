package heartbeat

import (
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	StateHealthy  = "healthy"
	StateDegraded = "degraded"
	StateStopped  = "stopped"
	StateStale    = "stale"
)

// Reporter is what runtime components use to report liveness.
type Reporter interface {
	Beat(component, message string)
	Degrade(component, message string, err error)
	Stopped(component, message string)
}

type ComponentStatus struct {
	Name       string `json:"name"`
	State      string `json:"state"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	LastBeatAt int64  `json:"last_beat_at_unix,omitempty"`
}

type Snapshot struct {
	Overall    string            `json:"overall"`
	Components []ComponentStatus `json:"components"`
}

type componentRecord struct {
	state      string
	message    string
	lastError  string
	lastBeatAt time.Time
}

// Registry tracks component liveness for the readiness endpoint.
type Registry struct {
	mu         sync.RWMutex
	components map[string]componentRecord
}

func NewRegistry() *Registry {
	return &Registry{components: map[string]componentRecord{}}
}

func (r *Registry) Beat(component, message string) {
	r.set(component, StateHealthy, message, "")
}

func (r *Registry) Degrade(component, message string, err error) {
	errorText := ""
	if err != nil {
		errorText = err.Error()
	}
	r.set(component, StateDegraded, message, errorText)
}

func (r *Registry) Stopped(component, message string) {
	r.set(component, StateStopped, message, "")
}

func (r *Registry) set(component, state, message, errorText string) {
	name := strings.ToLower(strings.TrimSpace(component))
	if name == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components[name] = componentRecord{
		state:      state,
		message:    strings.TrimSpace(message),
		lastError:  strings.TrimSpace(errorText),
		lastBeatAt: time.Now().UTC(),
	}
}

// Snapshot reports every component, marking healthy ones without a recent
// beat as stale. Overall is degraded when any component is degraded or
// stale.
func (r *Registry) Snapshot(staleAfter time.Duration) Snapshot {
	now := time.Now().UTC()
	r.mu.RLock()
	defer r.mu.RUnlock()

	components := make([]ComponentStatus, 0, len(r.components))
	overall := StateHealthy
	for name, record := range r.components {
		state := record.state
		if state == StateHealthy && staleAfter > 0 && now.Sub(record.lastBeatAt) > staleAfter {
			state = StateStale
		}
		if state == StateDegraded || state == StateStale {
			overall = StateDegraded
		}
		components = append(components, ComponentStatus{
			Name:       name,
			State:      state,
			Message:    record.message,
			Error:      record.lastError,
			LastBeatAt: record.lastBeatAt.Unix(),
		})
	}
	sort.Slice(components, func(left, right int) bool {
		return components[left].Name < components[right].Name
	})
	if len(components) == 0 {
		overall = "unknown"
	}
	return Snapshot{Overall: overall, Components: components}
}

package budget

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Entry is the observable state of one capped resource.
type Entry struct {
	Resource        string        `json:"resource"`
	CapPerWindow    float64       `json:"cap_per_window"`
	Window          time.Duration `json:"window"`
	SpentThisWindow float64       `json:"spent_this_window"`
	WindowStartedAt time.Time     `json:"window_started_at"`
}

type record struct {
	cap             float64
	window          time.Duration
	spent           float64
	windowStartedAt time.Time
}

// Tracker caps how much autonomous activity may occur per rolling window.
// Callers must treat CanSpend followed by Spend as one reservation; Reserve
// does both under a single lock.
type Tracker struct {
	mu        sync.Mutex
	resources map[string]*record
	now       func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		resources: map[string]*record{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Register declares a capped resource. Re-registering replaces the cap and
// window but keeps the current spend so a policy reload cannot refill a
// window early.
func (t *Tracker) Register(resource string, capPerWindow float64, window time.Duration) {
	name := normalizeResource(resource)
	if name == "" || capPerWindow < 0 || window <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	existing, ok := t.resources[name]
	if !ok {
		t.resources[name] = &record{
			cap:             capPerWindow,
			window:          window,
			windowStartedAt: t.now(),
		}
		return
	}
	existing.cap = capPerWindow
	existing.window = window
}

// CanSpend reports whether amount fits in the current window. Read-only
// apart from the lazy window rollover.
func (t *Tracker) CanSpend(resource string, amount float64) bool {
	name := normalizeResource(resource)
	if name == "" || amount < 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.resources[name]
	if !ok {
		return false
	}
	t.rolloverLocked(entry)
	return entry.spent+amount <= entry.cap
}

// Spend consumes amount from the window. It refuses to drive spend above the
// cap and reports whether the spend was applied.
func (t *Tracker) Spend(resource string, amount float64) bool {
	name := normalizeResource(resource)
	if name == "" || amount < 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.resources[name]
	if !ok {
		return false
	}
	t.rolloverLocked(entry)
	if entry.spent+amount > entry.cap {
		return false
	}
	entry.spent += amount
	return true
}

// Reserve atomically checks and spends several amounts. Either every amount
// is applied or none is.
func (t *Tracker) Reserve(amounts map[string]float64) bool {
	if len(amounts) == 0 {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for resource, amount := range amounts {
		name := normalizeResource(resource)
		entry, ok := t.resources[name]
		if !ok || amount < 0 {
			return false
		}
		t.rolloverLocked(entry)
		if entry.spent+amount > entry.cap {
			return false
		}
	}
	for resource, amount := range amounts {
		t.resources[normalizeResource(resource)].spent += amount
	}
	return true
}

// Reset forces a window rollover for one resource, or for all resources when
// the name is empty. Primarily for tests and ops.
func (t *Tracker) Reset(resource string) {
	name := normalizeResource(resource)
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for key, entry := range t.resources {
		if name != "" && key != name {
			continue
		}
		entry.spent = 0
		entry.windowStartedAt = now
	}
}

// Snapshot returns the current state of every resource, sorted by name.
func (t *Tracker) Snapshot() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	entries := make([]Entry, 0, len(t.resources))
	for name, entry := range t.resources {
		t.rolloverLocked(entry)
		entries = append(entries, Entry{
			Resource:        name,
			CapPerWindow:    entry.cap,
			Window:          entry.window,
			SpentThisWindow: entry.spent,
			WindowStartedAt: entry.windowStartedAt,
		})
	}
	sort.Slice(entries, func(left, right int) bool {
		return entries[left].Resource < entries[right].Resource
	})
	return entries
}

func (t *Tracker) rolloverLocked(entry *record) {
	now := t.now()
	if now.Sub(entry.windowStartedAt) >= entry.window {
		entry.spent = 0
		entry.windowStartedAt = now
	}
}

func normalizeResource(resource string) string {
	return strings.ToLower(strings.TrimSpace(resource))
}

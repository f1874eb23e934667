package curiosity

import (
	"sort"
	"strings"
	"sync"
)

// TaskRegistry holds the named investigation tasks a deployment offers.
// Tasks are registered at wiring time; the API and scheduler refer to them
// by name.
type TaskRegistry struct {
	mu    sync.RWMutex
	tasks map[string]Task
}

func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{tasks: map[string]Task{}}
}

func (r *TaskRegistry) Register(name string, task Task) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || task == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[key] = task
}

func (r *TaskRegistry) Lookup(name string) (Task, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[key]
	return task, ok
}

func (r *TaskRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

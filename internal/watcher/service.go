package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 500 * time.Millisecond

// Service watches the policy file and triggers a reload when it changes.
// Editors replace files via rename, so the watch is on the parent directory
// and events are filtered by name.
type Service struct {
	policyPath string
	logger     *slog.Logger
	onChange   func(context.Context)
	watcher    *fsnotify.Watcher
}

func New(policyPath string, logger *slog.Logger, onChange func(context.Context)) (*Service, error) {
	fileWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Service{
		policyPath: filepath.Clean(policyPath),
		logger:     logger,
		onChange:   onChange,
		watcher:    fileWatcher,
	}, nil
}

func (s *Service) Start(ctx context.Context) error {
	defer s.watcher.Close()

	if err := s.watcher.Add(filepath.Dir(s.policyPath)); err != nil {
		return fmt.Errorf("watch policy directory: %w", err)
	}
	s.logger.Info("policy watcher started", "path", s.policyPath)

	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()
	debounced := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("policy watcher stopped")
			return nil
		case event := <-s.watcher.Events:
			if !s.relevant(event) {
				continue
			}
			// Editors fire bursts of write/rename events per save.
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(reloadDebounce, func() {
				select {
				case debounced <- struct{}{}:
				default:
				}
			})
		case <-debounced:
			s.logger.Info("policy file changed", "path", s.policyPath)
			s.onChange(ctx)
		case err := <-s.watcher.Errors:
			if err != nil {
				s.logger.Error("policy watcher error", "error", err)
			}
		}
	}
}

func (s *Service) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != s.policyPath {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

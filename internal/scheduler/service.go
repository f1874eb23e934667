package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dwizi/governor/internal/curiosity"
	"github.com/dwizi/governor/internal/heartbeat"
)

const (
	scheduleFailureBackoffMin = 1 * time.Minute
	scheduleFailureBackoffMax = 30 * time.Minute
	scheduleAutoPauseAfter    = 5
)

// Supervisor runs one gated curiosity cycle. Satisfied by
// curiosity.Supervisor.
type Supervisor interface {
	Run(ctx context.Context, input curiosity.RunInput) curiosity.RunResult
}

// Schedule is a recurring curiosity cycle. The task is supplied by the
// caller at registration time; the scheduler only decides when to fire.
type Schedule struct {
	Name     string             `json:"name"`
	CronExpr string             `json:"cron_expr"`
	Input    curiosity.RunInput `json:"input"`
}

type ScheduleStatus struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	CronExpr            string    `json:"cron_expr"`
	Active              bool      `json:"active"`
	NextRunAt           time.Time `json:"next_run_at"`
	LastRunAt           time.Time `json:"last_run_at,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	RunCount            int       `json:"run_count"`
}

type scheduleRecord struct {
	id                  string
	name                string
	cronExpr            string
	input               curiosity.RunInput
	active              bool
	nextRunAt           time.Time
	lastRunAt           time.Time
	lastError           string
	consecutiveFailures int
	runCount            int
}

// Service fires registered curiosity schedules on a poll loop.
type Service struct {
	supervisor   Supervisor
	logger       *slog.Logger
	pollInterval time.Duration
	reporter     heartbeat.Reporter

	mu        sync.Mutex
	schedules map[string]*scheduleRecord
}

func New(supervisor Supervisor, pollInterval time.Duration, logger *slog.Logger) *Service {
	if pollInterval < time.Second {
		pollInterval = 15 * time.Second
	}
	return &Service{
		supervisor:   supervisor,
		logger:       logger,
		pollInterval: pollInterval,
		schedules:    map[string]*scheduleRecord{},
	}
}

func (s *Service) SetHeartbeatReporter(reporter heartbeat.Reporter) {
	s.reporter = reporter
}

// Add validates the cron expression and registers the schedule, returning
// the generated schedule id.
func (s *Service) Add(schedule Schedule) (string, error) {
	name := strings.TrimSpace(schedule.Name)
	if name == "" {
		return "", fmt.Errorf("schedule name is required")
	}
	if schedule.Input.Task == nil {
		return "", fmt.Errorf("schedule %q has no task", name)
	}
	next, err := NextRun(schedule.CronExpr, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("schedule %q: %w", name, err)
	}
	record := &scheduleRecord{
		id:        "sched-" + uuid.NewString(),
		name:      name,
		cronExpr:  normalizeCronExpr(schedule.CronExpr),
		input:     schedule.Input,
		active:    true,
		nextRunAt: next,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[record.id] = record
	return record.id, nil
}

func (s *Service) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[id]; !ok {
		return false
	}
	delete(s.schedules, id)
	return true
}

func (s *Service) Statuses() []ScheduleStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	statuses := make([]ScheduleStatus, 0, len(s.schedules))
	for _, record := range s.schedules {
		statuses = append(statuses, ScheduleStatus{
			ID:                  record.id,
			Name:                record.name,
			CronExpr:            record.cronExpr,
			Active:              record.active,
			NextRunAt:           record.nextRunAt,
			LastRunAt:           record.lastRunAt,
			LastError:           record.lastError,
			ConsecutiveFailures: record.consecutiveFailures,
			RunCount:            record.runCount,
		})
	}
	sort.Slice(statuses, func(left, right int) bool {
		return statuses[left].Name < statuses[right].Name
	})
	return statuses
}

func (s *Service) Start(ctx context.Context) error {
	if s.supervisor == nil {
		if s.reporter != nil {
			s.reporter.Stopped("scheduler", "no supervisor configured")
		}
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	if s.reporter != nil {
		s.reporter.Beat("scheduler", "polling schedules")
	}
	s.logger.Info("scheduler started", "poll_interval", s.pollInterval.String())
	for {
		select {
		case <-ctx.Done():
			if s.reporter != nil {
				s.reporter.Stopped("scheduler", "stopped")
			}
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.processDue(ctx)
			if s.reporter != nil {
				s.reporter.Beat("scheduler", "poll cycle completed")
			}
		}
	}
}

func (s *Service) processDue(ctx context.Context) {
	now := time.Now().UTC()
	for _, record := range s.claimDue(now) {
		s.runSchedule(ctx, record, now)
	}
}

// claimDue advances next_run_at under the lock before running anything, so
// a slow cycle cannot be double-fired by the next poll.
func (s *Service) claimDue(now time.Time) []*scheduleRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*scheduleRecord
	for _, record := range s.schedules {
		if !record.active || record.nextRunAt.IsZero() || record.nextRunAt.After(now) {
			continue
		}
		next, err := NextRun(record.cronExpr, now)
		if err != nil {
			record.active = false
			record.lastError = err.Error()
			continue
		}
		record.nextRunAt = next
		due = append(due, record)
	}
	return due
}

func (s *Service) runSchedule(ctx context.Context, record *scheduleRecord, now time.Time) {
	input := record.input
	if input.Trigger == "" {
		input.Trigger = "schedule"
	}
	result := s.supervisor.Run(ctx, input)

	runError := ""
	if strings.HasPrefix(result.Reason, "task_error:") {
		runError = strings.TrimPrefix(result.Reason, "task_error:")
	}
	s.recordRun(record, now, runError)

	s.logger.Info("scheduled curiosity cycle finished",
		"schedule", record.name,
		"outcome", result.Outcome,
		"ran", result.Ran,
		"reason", result.Reason,
		"stored", result.StoredCount,
	)
}

func (s *Service) recordRun(record *scheduleRecord, now time.Time, runError string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record.lastRunAt = now
	record.runCount++
	record.lastError = runError
	if runError == "" {
		record.consecutiveFailures = 0
		return
	}
	record.consecutiveFailures++
	if record.consecutiveFailures >= scheduleAutoPauseAfter {
		record.active = false
		s.logger.Error("schedule auto-paused",
			"schedule", record.name,
			"consecutive_failures", record.consecutiveFailures,
		)
		return
	}
	backoffRun := now.Add(failureBackoff(record.consecutiveFailures))
	if backoffRun.After(record.nextRunAt) {
		record.nextRunAt = backoffRun
	}
}

func failureBackoff(consecutive int) time.Duration {
	backoff := scheduleFailureBackoffMin
	for index := 1; index < consecutive; index++ {
		backoff *= 2
		if backoff >= scheduleFailureBackoffMax {
			return scheduleFailureBackoffMax
		}
	}
	return backoff
}

package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dwizi/governor/internal/boundary"
	"github.com/dwizi/governor/internal/budget"
	"github.com/dwizi/governor/internal/config"
	"github.com/dwizi/governor/internal/curiosity"
	"github.com/dwizi/governor/internal/heartbeat"
	"github.com/dwizi/governor/internal/httpapi"
	"github.com/dwizi/governor/internal/idempotency"
	"github.com/dwizi/governor/internal/policy"
	"github.com/dwizi/governor/internal/risk"
	"github.com/dwizi/governor/internal/scheduler"
	"github.com/dwizi/governor/internal/store"
	"github.com/dwizi/governor/internal/watcher"
)

// Runtime wires the gating core together: policy engine, budget tracker,
// execution boundary, curiosity supervisor, and the services around them.
type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	store      *store.Store
	tracker    *budget.Tracker
	engine     *policy.Engine
	boundary   *boundary.Service
	supervisor *curiosity.Supervisor
	tasks      *curiosity.TaskRegistry
	scheduler  *scheduler.Service
	watcher    *watcher.Service
	heartbeat  *heartbeat.Registry
	httpServer *http.Server
}

// New builds the runtime. The initial policy load is fatal: no component may
// start without a valid policy document.
func New(cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	sqlStore, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := sqlStore.AutoMigrate(context.Background()); err != nil {
		sqlStore.Close()
		return nil, err
	}

	tracker := budget.NewTracker()
	engine := policy.NewEngine(cfg.PolicyPath, tracker, logger.With("component", "policy"))
	if err := engine.Load(); err != nil {
		sqlStore.Close()
		return nil, fmt.Errorf("initial policy load: %w", err)
	}

	validator := risk.NewValidator(cfg.WriteWhitelist())
	cache := idempotency.NewCache(time.Duration(cfg.IdempotencyTTLSec) * time.Second)
	boundarySvc := boundary.NewService(validator, cache, sqlStore, logger.With("component", "boundary"))

	supervisor := curiosity.NewSupervisor(
		engine,
		tracker,
		curiosity.NewStoreWriter(sqlStore),
		logger.With("component", "curiosity"),
	)
	supervisor.SetDedupWindow(cfg.MemoryRecentWindow)
	tasks := curiosity.NewTaskRegistry()

	registry := heartbeat.NewRegistry()
	schedulerSvc := scheduler.New(supervisor, time.Duration(cfg.SchedulePollSec)*time.Second, logger.With("component", "scheduler"))
	schedulerSvc.SetHeartbeatReporter(registry)

	var watcherSvc *watcher.Service
	if cfg.PolicyWatch {
		watcherSvc, err = watcher.New(cfg.PolicyPath, logger.With("component", "watcher"), func(context.Context) {
			_ = engine.Reload()
		})
		if err != nil {
			sqlStore.Close()
			return nil, err
		}
	}

	handler := httpapi.NewRouter(httpapi.Dependencies{
		Config:     cfg,
		Store:      sqlStore,
		Engine:     engine,
		Tracker:    tracker,
		Boundary:   boundarySvc,
		Supervisor: supervisor,
		Tasks:      tasks,
		Heartbeat:  registry,
		Logger:     logger.With("component", "api"),
	})

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		store:      sqlStore,
		tracker:    tracker,
		engine:     engine,
		boundary:   boundarySvc,
		supervisor: supervisor,
		tasks:      tasks,
		scheduler:  schedulerSvc,
		watcher:    watcherSvc,
		heartbeat:  registry,
		httpServer: &http.Server{Addr: cfg.HTTPAddr, Handler: handler},
	}, nil
}

// RegisterTool adds a tool runner to the execution boundary. Deployments
// call this before Run.
func (r *Runtime) RegisterTool(runner boundary.Runner) {
	r.boundary.Register(runner)
}

// RegisterTask names a curiosity task for the API and for schedules.
func (r *Runtime) RegisterTask(name string, task curiosity.Task) {
	r.tasks.Register(name, task)
}

// AddSchedule registers a recurring curiosity cycle against a named task.
func (r *Runtime) AddSchedule(name, cronExpr string, input curiosity.RunInput) (string, error) {
	return r.scheduler.Add(scheduler.Schedule{Name: name, CronExpr: cronExpr, Input: input})
}

func (r *Runtime) Engine() *policy.Engine            { return r.engine }
func (r *Runtime) Boundary() *boundary.Service       { return r.boundary }
func (r *Runtime) Supervisor() *curiosity.Supervisor { return r.supervisor }
func (r *Runtime) Store() *store.Store               { return r.store }

func (r *Runtime) Close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}

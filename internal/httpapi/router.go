package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dwizi/governor/internal/boundary"
	"github.com/dwizi/governor/internal/budget"
	"github.com/dwizi/governor/internal/config"
	"github.com/dwizi/governor/internal/curiosity"
	"github.com/dwizi/governor/internal/heartbeat"
	"github.com/dwizi/governor/internal/policy"
	"github.com/dwizi/governor/internal/risk"
	"github.com/dwizi/governor/internal/store"
)

type Dependencies struct {
	Config     config.Config
	Store      *store.Store
	Engine     *policy.Engine
	Tracker    *budget.Tracker
	Boundary   *boundary.Service
	Supervisor *curiosity.Supervisor
	Tasks      *curiosity.TaskRegistry
	Heartbeat  *heartbeat.Registry
	Logger     *slog.Logger
}

type router struct {
	deps Dependencies
}

func NewRouter(deps Dependencies) http.Handler {
	rt := &router{deps: deps}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.handleHealth)
	mux.HandleFunc("/readyz", rt.handleReady)
	mux.HandleFunc("/api/v1/info", rt.handleInfo)
	mux.HandleFunc("/api/v1/decisions", rt.handleDecisions)
	mux.HandleFunc("/api/v1/tools/execute", rt.handleToolExecute)
	mux.HandleFunc("/api/v1/curiosity/run", rt.handleCuriosityRun)
	mux.HandleFunc("/api/v1/budgets", rt.handleBudgets)
	mux.HandleFunc("/api/v1/admin/idempotency", rt.handleIdempotencyStats)
	mux.HandleFunc("/api/v1/admin/idempotency/clear", rt.handleIdempotencyClear)
	mux.HandleFunc("/api/v1/admin/policy/reload", rt.handlePolicyReload)
	mux.HandleFunc("/api/v1/admin/audit", rt.handleAudit)
	return mux
}

func (r *router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *router) handleReady(w http.ResponseWriter, req *http.Request) {
	if r.deps.Store != nil {
		if err := r.deps.Store.Ping(req.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not-ready", "error": err.Error()})
			return
		}
	}
	if r.deps.Engine == nil || r.deps.Engine.Current() == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not-ready", "error": "no policy loaded"})
		return
	}
	payload := map[string]any{"status": "ready"}
	if r.deps.Heartbeat != nil {
		staleAfter := time.Duration(r.deps.Config.HeartbeatStaleSec) * time.Second
		snapshot := r.deps.Heartbeat.Snapshot(staleAfter)
		payload["components"] = snapshot.Components
		payload["overall"] = snapshot.Overall
	}
	writeJSON(w, http.StatusOK, payload)
}

func (r *router) handleInfo(w http.ResponseWriter, req *http.Request) {
	info := map[string]any{
		"name":           "governor",
		"environment":    r.deps.Config.Environment,
		"policy_version": 0,
	}
	if r.deps.Engine != nil {
		info["policy_version"] = r.deps.Engine.Version()
	}
	if r.deps.Tasks != nil {
		info["tasks"] = r.deps.Tasks.Names()
	}
	writeJSON(w, http.StatusOK, info)
}

type decisionRequest struct {
	Domain          string        `json:"domain"`
	Trigger         string        `json:"trigger"`
	Signal          policy.Signal `json:"signal"`
	ToolRisk        string        `json:"tool_risk"`
	RequiresWrite   bool          `json:"requires_write"`
	IsUserInitiated bool          `json:"is_user_initiated"`
	ScopeMinutes    float64       `json:"scope_minutes"`
	PlannedFindings float64       `json:"planned_findings"`
}

func (r *router) handleDecisions(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var payload decisionRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	request := policy.DecisionRequest{
		Domain:          policy.ParseDomain(payload.Domain),
		Trigger:         policy.ParseTrigger(payload.Trigger),
		Signal:          payload.Signal,
		Risk:            policy.Risk{ToolRisk: risk.ParseLevel(payload.ToolRisk)},
		RequiresWrite:   payload.RequiresWrite,
		IsUserInitiated: payload.IsUserInitiated,
		ScopeMinutes:    payload.ScopeMinutes,
		PlannedFindings: payload.PlannedFindings,
	}
	decision := r.deps.Engine.Decide(request)
	writeJSON(w, http.StatusOK, decision)
}

type toolExecuteRequest struct {
	Tool              string         `json:"tool"`
	Args              map[string]any `json:"args"`
	RiskLevel         string         `json:"risk_level"`
	DryRun            bool           `json:"dry_run"`
	BypassIdempotency bool           `json:"bypass_idempotency"`
	Source            string         `json:"source"`
}

func (r *router) handleToolExecute(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var payload toolExecuteRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if strings.TrimSpace(payload.Tool) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tool is required"})
		return
	}
	if payload.Args == nil {
		payload.Args = map[string]any{}
	}
	result := r.deps.Boundary.Execute(req.Context(), boundary.ExecuteInput{
		Tool:              payload.Tool,
		Args:              payload.Args,
		RiskLevel:         risk.ParseLevel(payload.RiskLevel),
		DryRun:            payload.DryRun,
		BypassIdempotency: payload.BypassIdempotency,
		Source:            payload.Source,
	})
	// Gate verdicts are data, not transport errors: the request succeeded
	// even when the tool was blocked.
	writeJSON(w, http.StatusOK, result)
}

type curiosityRunRequest struct {
	Task            string        `json:"task"`
	Trigger         string        `json:"trigger"`
	Domain          string        `json:"domain"`
	ScopeMinutes    float64       `json:"scope_minutes"`
	PlannedFindings int           `json:"planned_findings"`
	Signal          policy.Signal `json:"signal"`
	IsUserInitiated bool          `json:"is_user_initiated"`
	Query           string        `json:"query"`
}

func (r *router) handleCuriosityRun(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var payload curiosityRunRequest
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if strings.TrimSpace(payload.Task) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "task is required"})
		return
	}
	task, ok := r.deps.Tasks.Lookup(payload.Task)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown task"})
		return
	}
	result := r.deps.Supervisor.Run(req.Context(), curiosity.RunInput{
		Trigger:         policy.ParseTrigger(payload.Trigger),
		Domain:          policy.ParseDomain(payload.Domain),
		ScopeMinutes:    payload.ScopeMinutes,
		PlannedFindings: payload.PlannedFindings,
		Signal:          payload.Signal,
		IsUserInitiated: payload.IsUserInitiated,
		Query:           payload.Query,
		Task:            task,
	})
	writeJSON(w, http.StatusOK, result)
}

func (r *router) handleBudgets(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	entries := r.deps.Tracker.Snapshot()
	payload := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		payload = append(payload, map[string]any{
			"resource":              entry.Resource,
			"cap_per_window":        entry.CapPerWindow,
			"window_seconds":        int64(entry.Window / time.Second),
			"spent_this_window":     entry.SpentThisWindow,
			"window_started_unix":   entry.WindowStartedAt.Unix(),
			"remaining_this_window": entry.CapPerWindow - entry.SpentThisWindow,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": payload, "count": len(payload)})
}

func (r *router) handleIdempotencyStats(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	stats := r.deps.Boundary.Cache().Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"size":        stats.Size,
		"ttl_seconds": int64(stats.TTL / time.Second),
	})
}

func (r *router) handleIdempotencyClear(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	r.deps.Boundary.Cache().Clear()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (r *router) handlePolicyReload(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if err := r.deps.Engine.Reload(); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":          err.Error(),
			"policy_version": r.deps.Engine.Version(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "reloaded",
		"policy_version": r.deps.Engine.Version(),
	})
}

func (r *router) handleAudit(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	limit := 50
	if raw := strings.TrimSpace(req.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err == nil && parsed > 0 {
			limit = parsed
		}
	}
	items, err := r.deps.Store.RecentToolAudits(req.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

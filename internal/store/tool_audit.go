package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	AuditVerdictExecuted = "executed"
	AuditVerdictBlocked  = "blocked"
	AuditVerdictRejected = "rejected"
	AuditVerdictFailed   = "failed"
	AuditVerdictDryRun   = "dry_run"
)

type ToolAudit struct {
	ID        string    `json:"id"`
	Tool      string    `json:"tool"`
	Verdict   string    `json:"verdict"`
	Reason    string    `json:"reason,omitempty"`
	Source    string    `json:"source,omitempty"`
	RiskLevel string    `json:"risk_level,omitempty"`
	DryRun    bool      `json:"dry_run"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateToolAuditInput struct {
	Tool      string
	Verdict   string
	Reason    string
	Source    string
	RiskLevel string
	DryRun    bool
	Detail    string
}

// CreateToolAudit records one pass through the execution boundary. Every
// verdict is recorded, blocked and failed ones included, so a rejected
// action is always distinguishable from a successful no-op.
func (s *Store) CreateToolAudit(ctx context.Context, input CreateToolAuditInput) (string, error) {
	tool := strings.TrimSpace(input.Tool)
	if tool == "" {
		return "", fmt.Errorf("audit tool name is required")
	}
	id := "audit-" + uuid.NewString()
	dryRun := 0
	if input.DryRun {
		dryRun = 1
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO tool_audit (id, tool, verdict, reason, source, risk_level, dry_run, detail, created_at_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		tool,
		strings.TrimSpace(input.Verdict),
		nullIfEmpty(strings.TrimSpace(input.Reason)),
		nullIfEmpty(strings.TrimSpace(input.Source)),
		nullIfEmpty(strings.TrimSpace(input.RiskLevel)),
		dryRun,
		nullIfEmpty(strings.TrimSpace(input.Detail)),
		time.Now().UTC().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("insert tool audit: %w", err)
	}
	return id, nil
}

// RecentToolAudits returns the newest audit rows, newest first.
func (s *Store) RecentToolAudits(ctx context.Context, limit int) ([]ToolAudit, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, tool, verdict, COALESCE(reason, ''), COALESCE(source, ''), COALESCE(risk_level, ''),
			dry_run, COALESCE(detail, ''), created_at_unix
		FROM tool_audit ORDER BY created_at_unix DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query tool audits: %w", err)
	}
	defer rows.Close()

	items := []ToolAudit{}
	for rows.Next() {
		var item ToolAudit
		var dryRun int
		var createdAtUnix int64
		if err := rows.Scan(
			&item.ID, &item.Tool, &item.Verdict, &item.Reason, &item.Source, &item.RiskLevel,
			&dryRun, &item.Detail, &createdAtUnix,
		); err != nil {
			return nil, fmt.Errorf("scan tool audit: %w", err)
		}
		item.DryRun = dryRun == 1
		item.CreatedAt = time.Unix(createdAtUnix, 0).UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tool audits: %w", err)
	}
	return items, nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Memory struct {
	ID             string    `json:"id"`
	Text           string    `json:"text"`
	Type           string    `json:"type"`
	Priority       string    `json:"priority,omitempty"`
	Source         string    `json:"source,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	Citation       string    `json:"citation,omitempty"`
	URL            string    `json:"url,omitempty"`
	RelevanceScore float64   `json:"relevance_score,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type CreateMemoryInput struct {
	Text           string
	Type           string
	Priority       string
	Source         string
	Tags           []string
	Citation       string
	URL            string
	RelevanceScore float64
}

// CreateMemory appends one promoted finding and returns its id.
func (s *Store) CreateMemory(ctx context.Context, input CreateMemoryInput) (string, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return "", fmt.Errorf("memory text is required")
	}
	memoryType := strings.TrimSpace(input.Type)
	if memoryType == "" {
		memoryType = "finding"
	}
	id := "mem-" + uuid.NewString()
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO memories (
			id, text, type, priority, source, tags, citation, url, relevance_score, created_at_unix
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		text,
		memoryType,
		nullIfEmpty(strings.TrimSpace(input.Priority)),
		nullIfEmpty(strings.TrimSpace(input.Source)),
		nullIfEmpty(joinTags(input.Tags)),
		nullIfEmpty(strings.TrimSpace(input.Citation)),
		nullIfEmpty(strings.TrimSpace(input.URL)),
		input.RelevanceScore,
		time.Now().UTC().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("insert memory: %w", err)
	}
	return id, nil
}

// RecentMemories returns the newest items, newest first. Used by the
// curiosity dedup window.
func (s *Store) RecentMemories(ctx context.Context, limit int) ([]Memory, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, text, type, COALESCE(priority, ''), COALESCE(source, ''), COALESCE(tags, ''),
			COALESCE(citation, ''), COALESCE(url, ''), COALESCE(relevance_score, 0), created_at_unix
		FROM memories ORDER BY created_at_unix DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// SearchMemories is a plain substring match over stored text.
func (s *Store) SearchMemories(ctx context.Context, query string, limit int) ([]Memory, error) {
	if limit < 1 {
		limit = 20
	}
	needle := "%" + strings.TrimSpace(query) + "%"
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, text, type, COALESCE(priority, ''), COALESCE(source, ''), COALESCE(tags, ''),
			COALESCE(citation, ''), COALESCE(url, ''), COALESCE(relevance_score, 0), created_at_unix
		FROM memories WHERE text LIKE ? ORDER BY created_at_unix DESC LIMIT ?`,
		needle,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

func scanMemories(rows *sql.Rows) ([]Memory, error) {
	items := []Memory{}
	for rows.Next() {
		var item Memory
		var tags string
		var createdAtUnix int64
		if err := rows.Scan(
			&item.ID, &item.Text, &item.Type, &item.Priority, &item.Source, &tags,
			&item.Citation, &item.URL, &item.RelevanceScore, &createdAtUnix,
		); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		item.Tags = splitTags(tags)
		item.CreatedAt = time.Unix(createdAtUnix, 0).UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memories: %w", err)
	}
	return items, nil
}

func joinTags(tags []string) string {
	cleaned := make([]string, 0, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		cleaned = append(cleaned, trimmed)
	}
	return strings.Join(cleaned, ",")
}

func splitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	return tags
}

package policy

import (
	"errors"
	"strings"
	"testing"

	"github.com/dwizi/governor/internal/gaterr"
)

const validPolicyJSON = `{
	"version": 3,
	"thresholds": {
		"curiosity_requires_relevance_score": 0.6,
		"curiosity_requires_citation": true,
		"curiosity_max_minutes_per_day": 30,
		"curiosity_max_findings_per_day": 20,
		"memory_max_chars_per_item": 600,
		"memory_dedupe_similarity_threshold": 0.8
	},
	"trigger_weights": {
		"user_request": 5,
		"schedule": 2,
		"knowledge_gap": 1,
		"event": 3
	},
	"domains": {
		"web_research": {"never_interrupt": true},
		"social": {"min_relevance": 0.75},
		"system": {"enabled": false}
	},
	"urgency_bands": {"ask_permission_at": 7, "notify_at": 4}
}`

func TestParseValidDocument(t *testing.T) {
	document, err := Parse([]byte(validPolicyJSON))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if document.Version != 3 {
		t.Fatalf("expected version 3, got %d", document.Version)
	}
	if !document.Thresholds.CuriosityRequiresCitation {
		t.Fatal("citation requirement should be set")
	}
	if document.MinRelevanceFor(DomainSocial) != 0.75 {
		t.Fatalf("expected social relevance override 0.75, got %v", document.MinRelevanceFor(DomainSocial))
	}
	if document.MinRelevanceFor(DomainConversation) != 0.6 {
		t.Fatalf("expected global relevance fallback 0.6, got %v", document.MinRelevanceFor(DomainConversation))
	}
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	_, err := Parse([]byte("{not json"))
	if !errors.Is(err, gaterr.ErrPolicyInvalid) {
		t.Fatalf("expected ErrPolicyInvalid, got %v", err)
	}
}

func TestParseRejectsMissingThresholds(t *testing.T) {
	raw := strings.Replace(validPolicyJSON, `"curiosity_max_minutes_per_day": 30,`, "", 1)
	_, err := Parse([]byte(raw))
	if !errors.Is(err, gaterr.ErrPolicyInvalid) {
		t.Fatalf("expected ErrPolicyInvalid, got %v", err)
	}
	if !strings.Contains(err.Error(), "curiosity_max_minutes_per_day") {
		t.Fatalf("error should name the missing threshold, got %v", err)
	}
}

func TestParseRejectsMissingVersion(t *testing.T) {
	raw := strings.Replace(validPolicyJSON, `"version": 3,`, "", 1)
	if _, err := Parse([]byte(raw)); !errors.Is(err, gaterr.ErrPolicyInvalid) {
		t.Fatalf("expected ErrPolicyInvalid, got %v", err)
	}
}

func TestParseRejectsUnknownTrigger(t *testing.T) {
	raw := strings.Replace(validPolicyJSON, `"user_request": 5`, `"cosmic_ray": 5`, 1)
	if _, err := Parse([]byte(raw)); !errors.Is(err, gaterr.ErrPolicyInvalid) {
		t.Fatalf("expected ErrPolicyInvalid, got %v", err)
	}
}

func TestParseRejectsUnknownDomain(t *testing.T) {
	raw := strings.Replace(validPolicyJSON, `"social"`, `"astrology"`, 1)
	if _, err := Parse([]byte(raw)); !errors.Is(err, gaterr.ErrPolicyInvalid) {
		t.Fatalf("expected ErrPolicyInvalid, got %v", err)
	}
}

func TestParseRejectsInvertedBands(t *testing.T) {
	raw := strings.Replace(validPolicyJSON, `{"ask_permission_at": 7, "notify_at": 4}`, `{"ask_permission_at": 4, "notify_at": 7}`, 1)
	if _, err := Parse([]byte(raw)); !errors.Is(err, gaterr.ErrPolicyInvalid) {
		t.Fatalf("expected ErrPolicyInvalid, got %v", err)
	}
}

func TestParseRejectsOutOfRangeRelevance(t *testing.T) {
	raw := strings.Replace(validPolicyJSON, `"curiosity_requires_relevance_score": 0.6`, `"curiosity_requires_relevance_score": 1.5`, 1)
	if _, err := Parse([]byte(raw)); !errors.Is(err, gaterr.ErrPolicyInvalid) {
		t.Fatalf("expected ErrPolicyInvalid, got %v", err)
	}
}

func TestParseEnumFallbacks(t *testing.T) {
	if ParseDomain("  Web_Research ") != DomainWebResearch {
		t.Fatal("domain parse should trim and lowercase")
	}
	if ParseDomain("astrology") != DomainUnknown {
		t.Fatal("unknown domain must parse to DomainUnknown")
	}
	if ParseTrigger("cosmic_ray") != TriggerUnknown {
		t.Fatal("unknown trigger must parse to TriggerUnknown")
	}
}

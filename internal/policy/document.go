package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dwizi/governor/internal/gaterr"
)

// Thresholds are the global numeric settings every gate reads. They are
// required in the document: a missing threshold is a load error, never a
// silent default at a call site.
type Thresholds struct {
	CuriosityMinRelevance      float64 `json:"curiosity_requires_relevance_score"`
	CuriosityRequiresCitation  bool    `json:"curiosity_requires_citation"`
	CuriosityMaxMinutesPerDay  float64 `json:"curiosity_max_minutes_per_day"`
	CuriosityMaxFindingsPerDay float64 `json:"curiosity_max_findings_per_day"`
	MemoryMaxCharsPerItem      int     `json:"memory_max_chars_per_item"`
	MemoryDedupeSimilarity     float64 `json:"memory_dedupe_similarity_threshold"`
}

// DomainRule overrides global behavior for one domain.
type DomainRule struct {
	Enabled        *bool    `json:"enabled,omitempty"`
	NeverInterrupt bool     `json:"never_interrupt"`
	MinRelevance   *float64 `json:"min_relevance,omitempty"`
}

// UrgencyBands map the 0..10 urgency score onto background outcomes.
type UrgencyBands struct {
	AskPermissionAt float64 `json:"ask_permission_at"`
	NotifyAt        float64 `json:"notify_at"`
}

// Document is one immutable, versioned policy load. Reload replaces the
// whole document; nothing mutates it in place.
type Document struct {
	Version        int                   `json:"version"`
	Thresholds     Thresholds            `json:"thresholds"`
	TriggerWeights map[Trigger]float64   `json:"trigger_weights"`
	Domains        map[Domain]DomainRule `json:"domains"`
	UrgencyBands   UrgencyBands          `json:"urgency_bands"`
}

type thresholdsWire struct {
	CuriosityMinRelevance      *float64 `json:"curiosity_requires_relevance_score"`
	CuriosityRequiresCitation  *bool    `json:"curiosity_requires_citation"`
	CuriosityMaxMinutesPerDay  *float64 `json:"curiosity_max_minutes_per_day"`
	CuriosityMaxFindingsPerDay *float64 `json:"curiosity_max_findings_per_day"`
	MemoryMaxCharsPerItem      *int     `json:"memory_max_chars_per_item"`
	MemoryDedupeSimilarity     *float64 `json:"memory_dedupe_similarity_threshold"`
}

type documentWire struct {
	Version        *int                  `json:"version"`
	Thresholds     *thresholdsWire       `json:"thresholds"`
	TriggerWeights map[string]float64    `json:"trigger_weights"`
	Domains        map[string]DomainRule `json:"domains"`
	UrgencyBands   *UrgencyBands         `json:"urgency_bands"`
}

// Parse decodes and schema-validates a policy document. Any violation wraps
// gaterr.ErrPolicyInvalid so callers can treat all of them as one fatal
// class at startup.
func Parse(raw []byte) (*Document, error) {
	var wire documentWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", gaterr.ErrPolicyInvalid, err)
	}

	if wire.Version == nil || *wire.Version < 1 {
		return nil, fmt.Errorf("%w: version must be an integer >= 1", gaterr.ErrPolicyInvalid)
	}
	if wire.Thresholds == nil {
		return nil, fmt.Errorf("%w: thresholds section is required", gaterr.ErrPolicyInvalid)
	}
	thresholds, err := validateThresholds(*wire.Thresholds)
	if err != nil {
		return nil, err
	}
	if wire.UrgencyBands == nil {
		return nil, fmt.Errorf("%w: urgency_bands section is required", gaterr.ErrPolicyInvalid)
	}
	bands := *wire.UrgencyBands
	if bands.NotifyAt < 0 || bands.AskPermissionAt > 10 || bands.NotifyAt >= bands.AskPermissionAt {
		return nil, fmt.Errorf("%w: urgency_bands must satisfy 0 <= notify_at < ask_permission_at <= 10", gaterr.ErrPolicyInvalid)
	}

	weights := map[Trigger]float64{}
	for name, weight := range wire.TriggerWeights {
		trigger := ParseTrigger(name)
		if trigger == TriggerUnknown {
			return nil, fmt.Errorf("%w: unknown trigger %q in trigger_weights", gaterr.ErrPolicyInvalid, name)
		}
		if weight < -10 || weight > 10 {
			return nil, fmt.Errorf("%w: trigger weight for %q out of range [-10, 10]", gaterr.ErrPolicyInvalid, name)
		}
		weights[trigger] = weight
	}

	domains := map[Domain]DomainRule{}
	for name, rule := range wire.Domains {
		domain := ParseDomain(name)
		if domain == DomainUnknown {
			return nil, fmt.Errorf("%w: unknown domain %q in domains", gaterr.ErrPolicyInvalid, name)
		}
		if rule.MinRelevance != nil && (*rule.MinRelevance < 0 || *rule.MinRelevance > 1) {
			return nil, fmt.Errorf("%w: min_relevance for %q out of range [0, 1]", gaterr.ErrPolicyInvalid, name)
		}
		domains[domain] = rule
	}

	return &Document{
		Version:        *wire.Version,
		Thresholds:     thresholds,
		TriggerWeights: weights,
		Domains:        domains,
		UrgencyBands:   bands,
	}, nil
}

// LoadFile reads and parses the policy document at path.
func LoadFile(path string) (*Document, error) {
	raw, err := os.ReadFile(strings.TrimSpace(path))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", gaterr.ErrPolicyInvalid, path, err)
	}
	return Parse(raw)
}

func validateThresholds(wire thresholdsWire) (Thresholds, error) {
	missing := []string{}
	if wire.CuriosityMinRelevance == nil {
		missing = append(missing, "curiosity_requires_relevance_score")
	}
	if wire.CuriosityRequiresCitation == nil {
		missing = append(missing, "curiosity_requires_citation")
	}
	if wire.CuriosityMaxMinutesPerDay == nil {
		missing = append(missing, "curiosity_max_minutes_per_day")
	}
	if wire.CuriosityMaxFindingsPerDay == nil {
		missing = append(missing, "curiosity_max_findings_per_day")
	}
	if wire.MemoryMaxCharsPerItem == nil {
		missing = append(missing, "memory_max_chars_per_item")
	}
	if wire.MemoryDedupeSimilarity == nil {
		missing = append(missing, "memory_dedupe_similarity_threshold")
	}
	if len(missing) > 0 {
		return Thresholds{}, fmt.Errorf("%w: missing required thresholds: %s", gaterr.ErrPolicyInvalid, strings.Join(missing, ", "))
	}

	thresholds := Thresholds{
		CuriosityMinRelevance:      *wire.CuriosityMinRelevance,
		CuriosityRequiresCitation:  *wire.CuriosityRequiresCitation,
		CuriosityMaxMinutesPerDay:  *wire.CuriosityMaxMinutesPerDay,
		CuriosityMaxFindingsPerDay: *wire.CuriosityMaxFindingsPerDay,
		MemoryMaxCharsPerItem:      *wire.MemoryMaxCharsPerItem,
		MemoryDedupeSimilarity:     *wire.MemoryDedupeSimilarity,
	}
	if thresholds.CuriosityMinRelevance < 0 || thresholds.CuriosityMinRelevance > 1 {
		return Thresholds{}, fmt.Errorf("%w: curiosity_requires_relevance_score out of range [0, 1]", gaterr.ErrPolicyInvalid)
	}
	if thresholds.MemoryDedupeSimilarity < 0 || thresholds.MemoryDedupeSimilarity > 1 {
		return Thresholds{}, fmt.Errorf("%w: memory_dedupe_similarity_threshold out of range [0, 1]", gaterr.ErrPolicyInvalid)
	}
	if thresholds.CuriosityMaxMinutesPerDay < 0 || thresholds.CuriosityMaxFindingsPerDay < 0 {
		return Thresholds{}, fmt.Errorf("%w: curiosity budgets must be non-negative", gaterr.ErrPolicyInvalid)
	}
	if thresholds.MemoryMaxCharsPerItem < 1 {
		return Thresholds{}, fmt.Errorf("%w: memory_max_chars_per_item must be positive", gaterr.ErrPolicyInvalid)
	}
	return thresholds, nil
}

// MinRelevanceFor resolves the relevance threshold for a domain, falling
// back to the global threshold when the domain has no override.
func (d *Document) MinRelevanceFor(domain Domain) float64 {
	if rule, ok := d.Domains[domain]; ok && rule.MinRelevance != nil {
		return *rule.MinRelevance
	}
	return d.Thresholds.CuriosityMinRelevance
}

func (d *Document) domainEnabled(domain Domain) bool {
	rule, ok := d.Domains[domain]
	if !ok || rule.Enabled == nil {
		return true
	}
	return *rule.Enabled
}

func (d *Document) neverInterrupt(domain Domain) bool {
	if domain == DomainWebResearch {
		return true
	}
	rule, ok := d.Domains[domain]
	return ok && rule.NeverInterrupt
}

func (d *Document) triggerWeight(trigger Trigger) float64 {
	weight, ok := d.TriggerWeights[trigger]
	if !ok {
		return 0
	}
	return weight
}

package idempotency

import (
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

// Volatile argument fields stripped at every nesting level before hashing,
// so two logically identical requests differing only in a timestamp or
// request id produce the same key.
var volatileFields = map[string]struct{}{
	"timestamp":  {},
	"ts":         {},
	"time":       {},
	"request_id": {},
	"requestid":  {},
	"trace_id":   {},
	"traceid":    {},
	"nonce":      {},
	"uuid":       {},
}

const canonicalNull = "\x00null"

type CheckResult struct {
	Blocked bool          `json:"blocked"`
	Age     time.Duration `json:"age,omitempty"`
}

type Stats struct {
	Size int           `json:"size"`
	TTL  time.Duration `json:"ttl"`
}

// Cache remembers recently executed (tool, args) intents so equivalent
// requests inside the TTL are blocked instead of silently repeated.
type Cache struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{
		entries: map[string]time.Time{},
		ttl:     ttl,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Check reports whether an equivalent request was recorded inside the TTL.
// Expired entries are treated as absent.
func (c *Cache) Check(toolName string, args map[string]any) CheckResult {
	key := GenerateKey(toolName, args)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checkLocked(key)
}

// Record remembers the request as executed at now.
func (c *Cache) Record(toolName string, args map[string]any) {
	key := GenerateKey(toolName, args)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = c.now()
}

// Acquire is the atomic check-then-record used at the execution boundary:
// exactly one of two concurrent equivalent requests wins the admission.
func (c *Cache) Acquire(toolName string, args map[string]any) CheckResult {
	key := GenerateKey(toolName, args)
	c.mu.Lock()
	defer c.mu.Unlock()
	result := c.checkLocked(key)
	if result.Blocked {
		return result
	}
	c.entries[key] = c.now()
	return CheckResult{}
}

// Release forgets an acquired entry. Used when execution fails after
// admission so a retry is not blocked by a request that never took effect.
func (c *Cache) Release(toolName string, args map[string]any) {
	key := GenerateKey(toolName, args)
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]time.Time{}
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
	return Stats{Size: len(c.entries), TTL: c.ttl}
}

func (c *Cache) checkLocked(key string) CheckResult {
	recordedAt, ok := c.entries[key]
	if !ok {
		return CheckResult{}
	}
	age := c.now().Sub(recordedAt)
	if age >= c.ttl {
		delete(c.entries, key)
		return CheckResult{}
	}
	return CheckResult{Blocked: true, Age: age}
}

// sweepLocked drops expired entries. Correctness never depends on it; it
// only bounds memory between Stats calls.
func (c *Cache) sweepLocked() {
	now := c.now()
	for key, recordedAt := range c.entries {
		if now.Sub(recordedAt) >= c.ttl {
			delete(c.entries, key)
		}
	}
}

// GenerateKey produces the deterministic idempotency key for a (tool, args)
// intent: identical requests up to key order, string case, whitespace, and
// volatile fields always hash to the same value.
func GenerateKey(toolName string, args map[string]any) string {
	serialized := stableSerialize(NormalizeArgs(args))
	sum := blake3.Sum256([]byte(strings.ToLower(strings.TrimSpace(toolName)) + ":" + serialized))
	return hex.EncodeToString(sum[:])
}

// NormalizeArgs canonicalizes an argument tree: map keys sorted (by the
// serializer), string values trimmed and lowercased, arrays normalized
// element-wise with order preserved, volatile fields stripped at every
// level, and nils collapsed to a canonical null marker.
func NormalizeArgs(value any) any {
	switch typed := value.(type) {
	case nil:
		return canonicalNull
	case string:
		return strings.ToLower(strings.TrimSpace(typed))
	case map[string]any:
		normalized := make(map[string]any, len(typed))
		for key, item := range typed {
			if _, volatile := volatileFields[strings.ToLower(strings.TrimSpace(key))]; volatile {
				continue
			}
			normalized[key] = NormalizeArgs(item)
		}
		return normalized
	case []any:
		normalized := make([]any, len(typed))
		for index, item := range typed {
			normalized[index] = NormalizeArgs(item)
		}
		return normalized
	default:
		return typed
	}
}

// stableSerialize renders a normalized value deterministically: object keys
// in lexicographic order, no incidental whitespace.
func stableSerialize(value any) string {
	var builder strings.Builder
	writeStable(&builder, value)
	return builder.String()
}

func writeStable(builder *strings.Builder, value any) {
	switch typed := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		builder.WriteByte('{')
		for index, key := range keys {
			if index > 0 {
				builder.WriteByte(',')
			}
			encodeScalar(builder, key)
			builder.WriteByte(':')
			writeStable(builder, typed[key])
		}
		builder.WriteByte('}')
	case []any:
		builder.WriteByte('[')
		for index, item := range typed {
			if index > 0 {
				builder.WriteByte(',')
			}
			writeStable(builder, item)
		}
		builder.WriteByte(']')
	default:
		encodeScalar(builder, typed)
	}
}

func encodeScalar(builder *strings.Builder, value any) {
	encoded, err := json.Marshal(value)
	if err != nil {
		builder.WriteString("\"\"")
		return
	}
	builder.Write(encoded)
}

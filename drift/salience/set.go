// Package salience extracts, deduplicates, and budget-tracks goal-critical
// quotes across a session.
package salience

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	ports "github.com/instinct8/driftbench/drift/harness/ports"
)

// Priority classes for salient items. Constraints outrank decisions, which
// outrank plain facts, both for ranking oversized extractions and for
// budget-mode truncation.
const (
	priorityConstraint = 0
	priorityDecision   = 1
	priorityFact       = 2
)

var constraintKeywords = []string{
	"must", "cannot", "required", "must not", "mustn't",
	"should not", "shouldn't", "forbidden", "prohibited",
}

var decisionKeywords = []string{
	"chose", "decided", "selected", "will use", "using",
	"going with", "picked", "opted",
}

func classify(text string) int {
	lower := strings.ToLower(text)
	for _, kw := range constraintKeywords {
		if strings.Contains(lower, kw) {
			return priorityConstraint
		}
	}
	for _, kw := range decisionKeywords {
		if strings.Contains(lower, kw) {
			return priorityDecision
		}
	}
	return priorityFact
}

// Item is a verbatim quote extracted from conversation content, tagged with
// the id of the turn it came from (-1 when provenance is unknown).
type Item struct {
	Text       string `json:"text"`
	SourceTurn int    `json:"source_turn"`
}

// Set is an ordered collection of unique Items, unique up to a semantic
// similarity threshold. It grows monotonically across compressions within a
// trial; deduplication is the only shrink mechanism unless the token budget
// is explicitly enforced. One Set is owned by one strategy instance.
type Set struct {
	embedder  ports.Embedder
	cache     ports.Cache // embedding vectors keyed by item text
	threshold float64

	tokenBudget   int
	enforceBudget bool

	items []Item
}

// Config controls deduplication and budget behavior.
type Config struct {
	// SimilarityThreshold collapses item pairs at or above this cosine
	// similarity. Default 0.85.
	SimilarityThreshold float64
	// TokenBudget bounds the set's token footprint. Advisory unless
	// EnforceBudget is set.
	TokenBudget int
	// EnforceBudget truncates by priority order (constraints > decisions >
	// facts) when the budget is exceeded. Off by default: the budget is
	// tracked purely for monitoring.
	EnforceBudget bool
}

// NewSet creates an empty salience set. The cache memoizes embeddings keyed
// by item text so unchanged items are never re-embedded.
func NewSet(embedder ports.Embedder, cache ports.Cache, cfg Config) *Set {
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.85
	}
	return &Set{
		embedder:      embedder,
		cache:         cache,
		threshold:     cfg.SimilarityThreshold,
		tokenBudget:   cfg.TokenBudget,
		enforceBudget: cfg.EnforceBudget,
	}
}

// Items returns the current items in insertion order.
func (s *Set) Items() []Item {
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// Texts returns the item texts in insertion order.
func (s *Set) Texts() []string {
	out := make([]string, len(s.items))
	for i, item := range s.items {
		out[i] = item.Text
	}
	return out
}

// Len reports the number of items.
func (s *Set) Len() int { return len(s.items) }

// TokenCount approximates the set's token footprint.
func (s *Set) TokenCount() int {
	total := 0
	for _, item := range s.items {
		total += ApproxTokens(item.Text)
	}
	return total
}

// OverBudget reports whether the tracked footprint exceeds the budget.
func (s *Set) OverBudget() bool {
	return s.tokenBudget > 0 && s.TokenCount() > s.tokenBudget
}

// Merge combines new items into the set, deduplicates the result, and, when
// budget enforcement is on, truncates to the token budget by priority order.
func (s *Set) Merge(ctx context.Context, newItems []Item) error {
	combined := append(s.items, newItems...)
	deduped, err := s.dedupe(ctx, combined, s.threshold)
	if err != nil {
		return err
	}
	s.items = deduped
	if s.enforceBudget {
		s.items = truncateByPriority(s.items, s.tokenBudget)
	}
	return nil
}

// Dedupe re-runs deduplication over the current set at the configured
// threshold. Deduplicating an already-deduplicated set is a no-op.
func (s *Set) Dedupe(ctx context.Context) error {
	deduped, err := s.dedupe(ctx, s.items, s.threshold)
	if err != nil {
		return err
	}
	s.items = deduped
	return nil
}

// dedupe performs pairwise cosine comparison and collapses any pair at or
// above threshold, keeping the shorter (more concise) text. Order of the
// survivors is preserved.
func (s *Set) dedupe(ctx context.Context, items []Item, threshold float64) ([]Item, error) {
	if len(items) <= 1 {
		return items, nil
	}

	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = item.Text
	}
	vectors, err := s.embedAll(ctx, texts)
	if err != nil {
		return nil, err
	}

	removed := make(map[int]bool)
	for i := 0; i < len(items); i++ {
		if removed[i] {
			continue
		}
		for j := i + 1; j < len(items); j++ {
			if removed[j] {
				continue
			}
			if ports.CosineSimilarity(vectors[i], vectors[j]) >= threshold {
				if len(items[i].Text) > len(items[j].Text) {
					removed[i] = true
					break
				}
				removed[j] = true
			}
		}
	}

	kept := make([]Item, 0, len(items)-len(removed))
	for i, item := range items {
		if !removed[i] {
			kept = append(kept, item)
		}
	}
	return kept, nil
}

// embedAll resolves vectors for all texts, consulting the cache first and
// embedding only the misses in one batch call.
func (s *Set) embedAll(ctx context.Context, texts []string) ([]ports.Vector, error) {
	vectors := make([]ports.Vector, len(texts))
	var missing []string
	var missingIdx []int

	for i, text := range texts {
		if s.cache != nil {
			if data, ok := s.cache.Get(ctx, text); ok {
				var vec ports.Vector
				if err := json.Unmarshal(data, &vec); err == nil {
					vectors[i] = vec
					continue
				}
			}
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) > 0 {
		fresh, err := s.embedder.Embed(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("embed salience items: %w", err)
		}
		if len(fresh) != len(missing) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(fresh), len(missing))
		}
		for k, vec := range fresh {
			vectors[missingIdx[k]] = vec
			if s.cache != nil {
				if data, err := json.Marshal(vec); err == nil {
					s.cache.Set(ctx, missing[k], data, 0)
				}
			}
		}
	}
	return vectors, nil
}

// Prioritize orders items constraints first, then decisions, then facts,
// preserving insertion order within each class.
func Prioritize(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return classify(out[i].Text) < classify(out[j].Text)
	})
	return out
}

// truncateByPriority keeps the highest-priority items that fit the budget.
func truncateByPriority(items []Item, budget int) []Item {
	if budget <= 0 {
		return items
	}
	remaining := budget
	var kept []Item
	for _, item := range Prioritize(items) {
		cost := ApproxTokens(item.Text)
		if cost > remaining {
			continue
		}
		kept = append(kept, item)
		remaining -= cost
	}
	return kept
}

// ApproxTokens estimates token count with the ~4 bytes per token heuristic.
func ApproxTokens(s string) int {
	l := len(s)
	if l == 0 {
		return 0
	}
	return (l + 3) / 4
}

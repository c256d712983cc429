// Package strategy implements the family of context-compression strategies
// sharing one behavioral contract.
package strategy

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	ports "github.com/instinct8/driftbench/drift/harness/ports"
	"github.com/instinct8/driftbench/drift/template"
)

// Strategy is the shared contract every compression strategy implements.
//
// Initialize is one-time setup; calling it twice overwrites state and logs
// the previous value. UpdateGoal records a goal change; strategies that
// ignore goal evolution accept the call as a no-op. Compress returns a single
// reconstructed context string for the turn span up to triggerPoint; its
// section ordering is deterministic, it never errors on empty input, and
// service failures are resolved by a strategy-local fallback, never
// propagated to the caller. Name is a stable identifier used for result
// grouping.
type Strategy interface {
	Initialize(originalGoal string, constraints []string)
	UpdateGoal(newGoal, rationale string)
	Compress(ctx context.Context, turns []template.Turn, triggerPoint int) string
	Name() string
}

// RecentWindow is the number of raw trailing turns preserved unmodified by
// strategies that keep a recency window.
const RecentWindow = 3

// Deps carries the external collaborators a strategy may need. Each trial
// receives a fresh strategy instance built from these.
type Deps struct {
	Completer    ports.Completer
	Embedder     ports.Embedder
	Cache        ports.Cache
	Logger       zerolog.Logger
	SystemPrompt string

	// Model routing. Zero values defer to the completer's default.
	SummaryModel    string
	ExtractionModel string

	// Salience set tuning (selective-salience and hybrid).
	SimilarityThreshold float64
	SalienceTokenBudget int
	EnforceBudget       bool

	// ExternalCommand is the argv of the baseline agent binary (external
	// strategy only).
	ExternalCommand []string
}

// Factory builds a fresh strategy instance for one trial.
type Factory func(deps Deps) Strategy

var registry = map[string]Factory{
	"naive":              func(d Deps) Strategy { return NewNaive(d) },
	"checkpoint":         func(d Deps) Strategy { return NewCheckpoint(d) },
	"hierarchical":       func(d Deps) Strategy { return NewHierarchical(d) },
	"notes":              func(d Deps) Strategy { return NewNotes(d) },
	"observational":      func(d Deps) Strategy { return NewObservational(d) },
	"protected-core":     func(d Deps) Strategy { return NewProtectedCore(d) },
	"selective-salience": func(d Deps) Strategy { return NewSelectiveSalience(d) },
	"hybrid":             func(d Deps) Strategy { return NewHybrid(d) },
	"external":           func(d Deps) Strategy { return NewExternal(d) },
}

// New builds a fresh instance of the named strategy.
func New(name string, deps Deps) (Strategy, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
	return factory(deps), nil
}

// Names lists all registered strategy names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// span clamps the compress window [0, triggerPoint) to the available turns.
func span(turns []template.Turn, triggerPoint int) []template.Turn {
	if triggerPoint < 0 {
		triggerPoint = 0
	}
	if triggerPoint > len(turns) {
		triggerPoint = len(turns)
	}
	return turns[:triggerPoint]
}

// recent returns the last n turns of the compress window, unmodified.
func recent(turns []template.Turn, triggerPoint, n int) []template.Turn {
	if triggerPoint > len(turns) {
		triggerPoint = len(turns)
	}
	start := triggerPoint - n
	if start < 0 {
		start = 0
	}
	return turns[start:triggerPoint]
}

// ApproxTokens estimates token count with the ~4 bytes per token heuristic.
func ApproxTokens(s string) int {
	l := len(s)
	if l == 0 {
		return 0
	}
	return (l + 3) / 4
}

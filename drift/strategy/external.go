package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"github.com/instinct8/driftbench/drift/template"
)

// externalRequest is the JSON document written to the subprocess's stdin.
type externalRequest struct {
	Turns        []template.Turn `json:"turns"`
	TriggerPoint int             `json:"trigger_point"`
	Goal         string          `json:"goal"`
	Constraints  []string        `json:"constraints"`
}

// External shells out to a baseline agent binary that performs its own
// compression. The subprocess receives the turn span and session state as
// JSON on stdin and writes the compressed context to stdout. Any subprocess
// failure falls back to recent raw turns, keeping the no-error contract.
type External struct {
	command      []string
	logger       zerolog.Logger
	systemPrompt string

	originalGoal string
	currentGoal  string
	constraints  []string
}

func NewExternal(deps Deps) *External {
	return &External{
		command:      append([]string(nil), deps.ExternalCommand...),
		logger:       deps.Logger.With().Str("strategy", "external").Logger(),
		systemPrompt: deps.SystemPrompt,
	}
}

func (e *External) Initialize(originalGoal string, constraints []string) {
	if e.originalGoal != "" && e.originalGoal != originalGoal {
		e.logger.Warn().Str("previous_goal", e.originalGoal).Msg("re-initialized, overwriting goal")
	}
	e.originalGoal = originalGoal
	e.currentGoal = originalGoal
	e.constraints = append([]string(nil), constraints...)
}

func (e *External) UpdateGoal(newGoal, rationale string) {
	e.currentGoal = newGoal
}

func (e *External) Compress(ctx context.Context, turns []template.Turn, triggerPoint int) string {
	window := span(turns, triggerPoint)
	if len(e.command) == 0 {
		e.logger.Warn().Msg("no external command configured, keeping recent turns verbatim")
		return e.fallback(turns, triggerPoint)
	}

	payload, err := json.Marshal(externalRequest{
		Turns:        window,
		TriggerPoint: triggerPoint,
		Goal:         e.currentGoal,
		Constraints:  e.constraints,
	})
	if err != nil {
		e.logger.Warn().Err(err).Msg("request encoding failed, keeping recent turns verbatim")
		return e.fallback(turns, triggerPoint)
	}

	cmd := exec.CommandContext(ctx, e.command[0], e.command[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		e.logger.Warn().Err(err).Str("stderr", stderr.String()).Msg("external compressor failed, keeping recent turns verbatim")
		return e.fallback(turns, triggerPoint)
	}

	compressed := strings.TrimSpace(stdout.String())
	if compressed == "" {
		e.logger.Warn().Msg("external compressor returned empty output, keeping recent turns verbatim")
		return e.fallback(turns, triggerPoint)
	}
	return compressed
}

func (e *External) Name() string { return "external" }

func (e *External) fallback(turns []template.Turn, triggerPoint int) string {
	var parts []string
	if e.systemPrompt != "" {
		parts = append(parts, "System: "+e.systemPrompt)
	}
	if recentTurns := recent(turns, triggerPoint, RecentWindow); len(recentTurns) > 0 {
		parts = append(parts, template.FormatTurns(recentTurns))
	}
	if len(parts) == 0 {
		return "(No previous conversation)"
	}
	return strings.Join(parts, "\n\n")
}

var _ Strategy = (*External)(nil)

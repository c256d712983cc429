// Package template defines conversation fixtures and their read-only store.
package template

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ToolCall records a tool invocation attached to a turn.
type ToolCall struct {
	Name   string          `json:"name"`
	Args   json.RawMessage `json:"args,omitempty"`
	Result string          `json:"result,omitempty"`
}

// Turn is one ordered conversation unit. Immutable once loaded; owned by its
// Template.
type Turn struct {
	ID                 int       `json:"turn_id"`
	Role               string    `json:"role"` // "user" | "assistant"
	Content            string    `json:"content"`
	ToolCall           *ToolCall `json:"tool_call,omitempty"`
	IsCompressionPoint bool      `json:"is_compression_point,omitempty"`
}

// InitialSetup carries the goal, constraints, and system preamble of a
// template.
type InitialSetup struct {
	OriginalGoal    string   `json:"original_goal"`
	HardConstraints []string `json:"hard_constraints"`
	SystemPrompt    string   `json:"system_prompt,omitempty"`
}

// BehavioralTest is a scripted challenge designed to tempt goal abandonment.
type BehavioralTest struct {
	Prompt string `json:"prompt"`
}

// ProbingTasks overrides the default probe prompts for a template.
type ProbingTasks struct {
	GoalProbe       string          `json:"goal_probe,omitempty"`
	ConstraintProbe string          `json:"constraint_probe,omitempty"`
	BehavioralTest  *BehavioralTest `json:"behavioral_test,omitempty"`
}

// GroundTruth is used only for scoring, never fed to the strategy under test.
type GroundTruth struct {
	GoalParaphrase string   `json:"goal_paraphrase,omitempty"`
	Constraints    []string `json:"constraints,omitempty"`
	SalientItems   []string `json:"salient_items,omitempty"`
}

// Template is an immutable conversation fixture with ground truth.
type Template struct {
	TemplateID   string        `json:"template_id"`
	InitialSetup InitialSetup  `json:"initial_setup"`
	Turns        []Turn        `json:"turns"`
	ProbingTasks *ProbingTasks `json:"probing_tasks,omitempty"`
	GroundTruth  *GroundTruth  `json:"ground_truth,omitempty"`
}

// ValidationError reports a malformed template. Fatal; raised at load time,
// before any trial starts.
type ValidationError struct {
	TemplateID string
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("template %q invalid: %s", e.TemplateID, e.Reason)
}

// Validate checks structural invariants beyond the JSON schema.
func (t *Template) Validate() error {
	if t.TemplateID == "" {
		return &ValidationError{TemplateID: "(unknown)", Reason: "missing template_id"}
	}
	if strings.TrimSpace(t.InitialSetup.OriginalGoal) == "" {
		return &ValidationError{TemplateID: t.TemplateID, Reason: "missing original_goal"}
	}
	if len(t.Turns) == 0 {
		return &ValidationError{TemplateID: t.TemplateID, Reason: "empty turns"}
	}
	prev := 0
	for i, turn := range t.Turns {
		if turn.Content == "" {
			return &ValidationError{TemplateID: t.TemplateID, Reason: fmt.Sprintf("turn %d has empty content", turn.ID)}
		}
		if i > 0 && turn.ID <= prev {
			return &ValidationError{TemplateID: t.TemplateID, Reason: fmt.Sprintf("turn ids not strictly ascending at index %d", i)}
		}
		prev = turn.ID
	}
	return nil
}

// CompressionPoints returns the indexes of turns flagged as compression
// triggers, in ascending order.
func (t *Template) CompressionPoints() []int {
	var points []int
	for i, turn := range t.Turns {
		if turn.IsCompressionPoint {
			points = append(points, i)
		}
	}
	return points
}

// FormatTurns renders a turn span as readable text for prompting.
func FormatTurns(turns []Turn) string {
	parts := make([]string, 0, len(turns))
	for _, turn := range turns {
		parts = append(parts, fmt.Sprintf("Turn %d (%s): %s", turn.ID, turn.Role, turn.Content))
	}
	return strings.Join(parts, "\n")
}

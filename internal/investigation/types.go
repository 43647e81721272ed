// Package investigation implements the iterative diagnosis engine: a
// bounded loop that turns a natural-language cluster problem into rounds
// of kubectl evidence gathering and converges on a root-cause hypothesis.
package investigation

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/devdebug/devdebug-ai/internal/docs"
	"github.com/devdebug/devdebug-ai/internal/executor"
	"github.com/devdebug/devdebug-ai/internal/extract"
)

// State is the controller's position in the investigation loop.
type State string

const (
	StateGathering  State = "gathering"
	StateEvaluating State = "evaluating"
	StateContinuing State = "continuing"
	StateConcluding State = "concluding"
)

// Intent classifies what the user wants from a query.
type Intent string

const (
	// IntentTroubleshoot diagnoses a problem (default).
	IntentTroubleshoot Intent = "troubleshoot"
	// IntentAction asks for a mutation (delete, scale, restart).
	IntentAction Intent = "action"
	// IntentInformational asks a read-only question about the cluster.
	IntentInformational Intent = "informational"
)

// ClassifyIntent assigns a query to the closed intent set by keyword.
// Action keywords dominate: "delete the crashing pods" is an action even
// though it mentions a problem.
func ClassifyIntent(query string) Intent {
	lower := strings.ToLower(query)

	for _, kw := range []string{"delete ", "remove ", "restart ", "scale ", "create ", "apply ", "rollout "} {
		if strings.Contains(lower, kw) {
			return IntentAction
		}
	}
	for _, kw := range []string{"what is", "what are", "how many", "list ", "show ", "which ", "explain"} {
		if strings.Contains(lower, kw) {
			return IntentInformational
		}
	}
	return IntentTroubleshoot
}

// Findings is an insertion-ordered mapping from command string to its
// CommandResult. Re-executing a command overwrites its prior result but
// keeps the original position (last write wins).
type Findings struct {
	order   []string
	results map[string]executor.CommandResult
}

// NewFindings returns an empty findings map.
func NewFindings() *Findings {
	return &Findings{results: make(map[string]executor.CommandResult)}
}

// Set records the result for command, appending to the order on first
// sight.
func (f *Findings) Set(command string, result executor.CommandResult) {
	if _, seen := f.results[command]; !seen {
		f.order = append(f.order, command)
	}
	f.results[command] = result
}

// Get returns the result for command.
func (f *Findings) Get(command string) (executor.CommandResult, bool) {
	r, ok := f.results[command]
	return r, ok
}

// Commands returns the executed commands in execution order.
func (f *Findings) Commands() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// Len reports the number of distinct commands recorded.
func (f *Findings) Len() int { return len(f.order) }

// CombinedOutput concatenates all captured stdout and stderr in
// execution order, the shape the pattern analyzer scans.
func (f *Findings) CombinedOutput() string {
	var b strings.Builder
	for _, cmd := range f.order {
		r := f.results[cmd]
		b.WriteString(r.Stdout)
		b.WriteString("\n")
		b.WriteString(r.Stderr)
		b.WriteString("\n")
	}
	return b.String()
}

// OrderedStdout returns command/stdout pairs in execution order, the
// shape resource discovery consumes. Order matters: targeted planning
// keeps only the first few discoveries.
func (f *Findings) OrderedStdout() []extract.Finding {
	out := make([]extract.Finding, 0, len(f.order))
	for _, cmd := range f.order {
		out = append(out, extract.Finding{Command: cmd, Stdout: f.results[cmd].Stdout})
	}
	return out
}

// MarshalJSON preserves insertion order as an array of entries.
func (f *Findings) MarshalJSON() ([]byte, error) {
	type entry struct {
		Command string                 `json:"command"`
		Result  executor.CommandResult `json:"result"`
	}
	entries := make([]entry, 0, len(f.order))
	for _, cmd := range f.order {
		entries = append(entries, entry{Command: cmd, Result: f.results[cmd]})
	}
	return json.Marshal(entries)
}

// Session is one troubleshooting run. Mutated only by the controller
// goroutine driving it; no two rounds execute concurrently.
type Session struct {
	ID             string    `json:"id"`
	Query          string    `json:"query"`
	Namespace      string    `json:"namespace"`
	TargetResource string    `json:"target_resource,omitempty"`
	Intent         Intent    `json:"intent"`
	Findings       *Findings `json:"findings"`
	History        []Step    `json:"history"`
	StartedAt      time.Time `json:"started_at"`
}

// NewSession builds a session for query in namespace. An empty
// namespace means "default".
func NewSession(id, query, namespace, targetResource string) *Session {
	if namespace == "" {
		namespace = "default"
	}
	return &Session{
		ID:             id,
		Query:          query,
		Namespace:      namespace,
		TargetResource: targetResource,
		Intent:         ClassifyIntent(query),
		Findings:       NewFindings(),
		StartedAt:      time.Now().UTC(),
	}
}

// Step is the immutable record of one completed round.
type Step struct {
	Iteration              int       `json:"iteration"`
	CommandsExecuted       []string  `json:"commands_executed"`
	Hypothesis             string    `json:"hypothesis"`
	Confidence             float64   `json:"confidence"`
	ContinuedInvestigation bool      `json:"continued_investigation"`
	Timestamp              time.Time `json:"timestamp"`
}

// AnalysisResult is the Hypothesis Analyzer's verdict on the evidence
// accumulated so far.
type AnalysisResult struct {
	Hypothesis            string  `json:"hypothesis"`
	Confidence            float64 `json:"confidence"`
	ContinueInvestigating bool    `json:"continue_investigating"`
	NextFocus             string  `json:"next_focus"`

	// Signature is the matched failure signature, when the pattern
	// strategy produced the hypothesis. Used for pattern learning.
	Signature string `json:"signature,omitempty"`
}

// PathEntry is one hop of the investigation path in the final report.
type PathEntry struct {
	Iteration  int     `json:"iteration"`
	Hypothesis string  `json:"hypothesis"`
	Confidence float64 `json:"confidence"`
}

// FinalReport is the terminal artifact of a session.
type FinalReport struct {
	SessionID      string         `json:"session_id"`
	RootCause      string         `json:"root_cause"`
	Confidence     float64        `json:"confidence"`
	Solution       string         `json:"solution"`
	Verification   string         `json:"verification,omitempty"`
	Prevention     string         `json:"prevention,omitempty"`
	IterationsUsed int            `json:"iterations_used"`
	Path           []PathEntry    `json:"path"`
	References     []docs.Snippet `json:"references,omitempty"`
}

// IncompleteRootCause is the explicit root cause reported when a
// session concludes without ever completing a round.
const IncompleteRootCause = "Investigation incomplete"

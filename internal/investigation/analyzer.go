package investigation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/devdebug/devdebug-ai/internal/extract"
	"github.com/devdebug/devdebug-ai/internal/llm"
	"github.com/devdebug/devdebug-ai/internal/metrics"
)

// failureSignature maps a known output substring to a hypothesis. The
// table is checked in order, most specific first; the first match wins.
type failureSignature struct {
	// any of these substrings (lowercased) triggers the signature
	markers []string
	// name recorded for pattern learning
	name       string
	hypothesis string
	confidence float64
	// definitive signatures do not ask for more detail even when no
	// describe/logs output has been gathered yet
	definitive bool
}

var failureSignatures = []failureSignature{
	{
		markers:    []string{"createcontainerconfigerror"},
		name:       "CreateContainerConfigError",
		hypothesis: "Pods have CreateContainerConfigError - likely missing ConfigMap or Secret",
		confidence: 0.9,
	},
	{
		markers:    []string{"imagepullbackoff", "errimagepull", "failed to pull image"},
		name:       "ImagePullBackOff",
		hypothesis: "Pods cannot pull container images - check image name and registry credentials",
		confidence: 0.9,
	},
	{
		markers:    []string{"oomkilled"},
		name:       "OOMKilled",
		hypothesis: "Pods killed due to Out of Memory - need to increase memory limits",
		confidence: 0.95,
		definitive: true,
	},
	{
		markers:    []string{"crashloopbackoff", "back-off restarting"},
		name:       "CrashLoopBackOff",
		hypothesis: "Pods are crash looping - need to examine logs for application error",
		confidence: 0.8,
	},
	{
		markers:    []string{"evicted"},
		name:       "Evicted",
		hypothesis: "Pods evicted - likely node resource pressure or PVC issues",
		confidence: 0.85,
	},
	{
		markers:    []string{"certificate has expired", "x509: certificate", "tls: expired"},
		name:       "CertificateExpired",
		hypothesis: "TLS certificate has expired - certificate renewal needed",
		confidence: 0.9,
	},
	{
		markers:    []string{"permission denied", "rbac", "forbidden: user", "runasnonroot"},
		name:       "PermissionDenied",
		hypothesis: "Permission denied - security policy or RBAC configuration issue",
		confidence: 0.85,
	},
	{
		markers:    []string{"connection refused", "no route to host", "network is unreachable"},
		name:       "NetworkIssue",
		hypothesis: "Network connectivity failure - check service endpoints and network policies",
		confidence: 0.75,
	},
}

// definitiveTerms raise the confidence of a generic error-line match:
// these phrasings rarely need further evidence to interpret.
var definitiveTerms = []string{"certificate", "expired", "connection refused", "not found"}

var errorLineMarkers = []string{"error", "fatal", "panic", "failed", "warning"}

// Analyzer forms a root-cause hypothesis from accumulated findings. The
// pattern strategy is deterministic and always available; the model
// strategy refines it from round 2 on when a backend is up.
type Analyzer struct {
	model     llm.Client
	threshold float64
	logger    *zap.Logger
}

// NewAnalyzer builds an Analyzer. model may be nil (pattern-only).
func NewAnalyzer(model llm.Client, confidenceThreshold float64, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if confidenceThreshold <= 0 {
		confidenceThreshold = 0.8
	}
	return &Analyzer{model: model, threshold: confidenceThreshold, logger: logger}
}

// Analyze is a state-free function over the session's evidence. Round 1
// never consults the model: without detailed findings, model reasoning
// is speculation, and pattern recognition on raw status output is more
// reliable.
func (a *Analyzer) Analyze(ctx context.Context, session *Session, iteration int) AnalysisResult {
	if iteration <= 1 || session.Findings.Len() == 0 {
		return a.patternAnalysis(session)
	}

	if a.model != nil && a.model.Available(ctx) {
		if result, ok := a.modelAnalysis(ctx, session, iteration); ok {
			return result
		}
		metrics.ModelFallbacks.WithLabelValues("analysis").Inc()
		a.logger.Debug("model analysis failed, using pattern recognition",
			zap.String("session_id", session.ID),
			zap.Int("iteration", iteration))
	}

	return a.patternAnalysis(session)
}

// patternAnalysis scans all captured output against the signature
// table, then for generic error lines, then for restart hints.
func (a *Analyzer) patternAnalysis(session *Session) AnalysisResult {
	output := session.Findings.CombinedOutput()
	lower := strings.ToLower(output)

	hasPodList := false
	hasDetail := false
	for _, cmd := range session.Findings.Commands() {
		cmdLower := strings.ToLower(cmd)
		if strings.Contains(cmdLower, "get pods") {
			hasPodList = true
		}
		if strings.Contains(cmdLower, "describe") || strings.Contains(cmdLower, "logs") {
			hasDetail = true
		}
	}

	result := AnalysisResult{
		Hypothesis:            "Gathering diagnostic information",
		Confidence:            0.3,
		ContinueInvestigating: true,
	}

	matched := false
	for _, sig := range failureSignatures {
		for _, marker := range sig.markers {
			if strings.Contains(lower, marker) {
				result.Hypothesis = sig.hypothesis
				result.Signature = sig.name
				needsMore := !sig.definitive && !hasDetail
				result.Confidence = a.settleConfidence(sig.confidence, needsMore)
				result.ContinueInvestigating = needsMore
				matched = true
				break
			}
		}
		if matched {
			break
		}
	}

	if !matched {
		errorLines := scanErrorLines(output)
		switch {
		case len(errorLines) > 0:
			summary := make([]string, 0, 2)
			for _, line := range errorLines[:min(2, len(errorLines))] {
				summary = append(summary, truncate(strings.TrimSpace(line), 100))
			}
			result.Hypothesis = "Detected errors: " + strings.Join(summary, "; ")

			definitive := false
			for _, term := range definitiveTerms {
				if strings.Contains(lower, term) {
					definitive = true
					break
				}
			}
			needsMore := true
			base := 0.7
			if definitive {
				base = 0.9
				needsMore = !hasDetail
			}
			result.Confidence = a.settleConfidence(base, needsMore)
			result.ContinueInvestigating = needsMore

		case strings.Contains(lower, "restart count:") || strings.Contains(lower, "restarts:"):
			result.Hypothesis = "Pod is restarting - need to check logs and events for root cause"
			result.Confidence = 0.5
			result.ContinueInvestigating = true
		}
	}

	switch {
	case hasPodList && !hasDetail:
		result.NextFocus = "get detailed pod description and logs"
	case hasDetail:
		result.NextFocus = "analyze error messages and determine solution"
	default:
		result.NextFocus = "discover affected resources"
	}

	return a.enforceInvariant(result)
}

// settleConfidence keeps a needs-more-evidence verdict below the
// conclusion threshold so the loop keeps going; the full signature
// confidence is only claimed once the supporting detail is in hand.
func (a *Analyzer) settleConfidence(base float64, needsMore bool) float64 {
	if needsMore && base >= a.threshold {
		return a.threshold - 0.05
	}
	return base
}

// enforceInvariant guarantees ContinueInvestigating is false whenever
// confidence has reached the threshold.
func (a *Analyzer) enforceInvariant(r AnalysisResult) AnalysisResult {
	if r.Confidence >= a.threshold {
		r.ContinueInvestigating = false
	}
	return r
}

// modelAnalysis asks the inference backend for a structured verdict.
// The second return is false on any failure; the caller falls back.
func (a *Analyzer) modelAnalysis(ctx context.Context, session *Session, iteration int) (AnalysisResult, bool) {
	prompt := buildAnalysisPrompt(session, iteration)

	raw, err := a.model.Complete(ctx, prompt, 500)
	if err != nil {
		metrics.ModelRequestsTotal.WithLabelValues("analysis", "error").Inc()
		return AnalysisResult{}, false
	}
	metrics.ModelRequestsTotal.WithLabelValues("analysis", "ok").Inc()

	obj, err := extract.RepairObject(raw)
	if err != nil {
		return AnalysisResult{}, false
	}

	var parsed struct {
		Hypothesis             string  `json:"hypothesis"`
		Confidence             float64 `json:"confidence"`
		NeedsMoreInvestigation *bool   `json:"needs_more_investigation"`
		NextFocus              string  `json:"next_focus"`
	}
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		return AnalysisResult{}, false
	}
	if parsed.Hypothesis == "" {
		return AnalysisResult{}, false
	}

	confidence := parsed.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	needsMore := true
	if parsed.NeedsMoreInvestigation != nil {
		needsMore = *parsed.NeedsMoreInvestigation
	}
	result := AnalysisResult{
		Hypothesis:            parsed.Hypothesis,
		Confidence:            confidence,
		ContinueInvestigating: needsMore,
		NextFocus:             parsed.NextFocus,
	}
	return a.enforceInvariant(result), true
}

func scanErrorLines(output string) []string {
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		lower := strings.ToLower(line)
		for _, marker := range errorLineMarkers {
			if strings.Contains(lower, marker) {
				lines = append(lines, line)
				break
			}
		}
		if len(lines) >= 3 {
			break
		}
	}
	return lines
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func buildAnalysisPrompt(session *Session, iteration int) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are a Kubernetes troubleshooting expert conducting an iterative investigation.

**Original Problem:**
%s

**Investigation History:**
%s

**Current Findings:**
%s

**Your Task:**
Analyze the findings and determine:
1. What is the ROOT CAUSE hypothesis based on current evidence?
2. How confident are you? (0.0 to 1.0)
3. Do we need MORE investigation or is the root cause clear?
4. If more investigation needed, what specific aspect should we explore?

**Output JSON:**
{
  "hypothesis": "clear statement of suspected root cause",
  "confidence": 0.85,
  "needs_more_investigation": true/false,
  "next_focus": "what to investigate next (if needs_more_investigation=true)"
}`, session.Query, formatHistory(session.History), formatFindings(session.Findings))
	return b.String()
}

func formatHistory(history []Step) string {
	if len(history) == 0 {
		return "No previous iterations"
	}
	var b strings.Builder
	for _, step := range history {
		fmt.Fprintf(&b, "Iteration %d: %s (confidence: %.2f)\n", step.Iteration, step.Hypothesis, step.Confidence)
	}
	return b.String()
}

// formatFindings renders findings for a prompt, truncating each output
// so a noisy command cannot blow the token budget.
func formatFindings(f *Findings) string {
	if f.Len() == 0 {
		return "No findings yet"
	}
	var b strings.Builder
	for _, cmd := range f.Commands() {
		r, _ := f.Get(cmd)
		fmt.Fprintf(&b, "$ %s\n", cmd)
		if r.TimedOut {
			b.WriteString("(timed out)\n")
			continue
		}
		if r.ExecutionError != "" {
			fmt.Fprintf(&b, "(execution error: %s)\n", r.ExecutionError)
			continue
		}
		out := r.Stdout
		if r.Stderr != "" {
			out += "\n" + r.Stderr
		}
		b.WriteString(truncate(out, 1500))
		b.WriteString("\n")
	}
	return b.String()
}

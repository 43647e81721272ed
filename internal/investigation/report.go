package investigation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/devdebug/devdebug-ai/internal/extract"
	"github.com/devdebug/devdebug-ai/internal/metrics"
)

const fallbackSolution = "See investigation findings for details"

// buildReport assembles the terminal artifact. A session that never
// completed a round gets the explicit incomplete report; otherwise the
// final hypothesis is the root cause, optionally elaborated by the
// inference backend with the evidence and any matching reference docs.
func (c *Controller) buildReport(ctx context.Context, session *Session, final AnalysisResult, iterationsUsed int) *FinalReport {
	report := &FinalReport{
		SessionID:      session.ID,
		IterationsUsed: iterationsUsed,
		Path:           pathFrom(session.History),
	}

	if len(session.History) == 0 {
		report.RootCause = IncompleteRootCause
		report.Confidence = 0.0
		report.Solution = "Unable to determine root cause"
		return report
	}

	report.RootCause = final.Hypothesis
	report.Confidence = final.Confidence
	report.Solution = fallbackSolution

	snippets, err := c.docs.Search(ctx, session.Query+" "+final.Hypothesis, 3)
	if err != nil {
		c.logger.Debug("reference search failed", zap.Error(err))
	}
	report.References = snippets

	c.elaborate(ctx, session, final, report)
	return report
}

// elaborate asks the backend for the solution write-up. Every failure
// is silent; the deterministic report stands on its own.
func (c *Controller) elaborate(ctx context.Context, session *Session, final AnalysisResult, report *FinalReport) {
	if c.model == nil || !c.model.Available(ctx) {
		return
	}

	prompt := fmt.Sprintf(finalReportPromptTemplate,
		session.Query,
		final.Hypothesis,
		formatFindings(session.Findings),
		referenceContext(report))

	raw, err := c.model.Complete(ctx, prompt, 1000)
	if err != nil {
		metrics.ModelRequestsTotal.WithLabelValues("report", "error").Inc()
		metrics.ModelFallbacks.WithLabelValues("report").Inc()
		return
	}
	metrics.ModelRequestsTotal.WithLabelValues("report", "ok").Inc()

	obj, err := extract.RepairObject(raw)
	if err != nil {
		metrics.ModelFallbacks.WithLabelValues("report").Inc()
		return
	}
	var parsed struct {
		RootCause    string `json:"root_cause"`
		Solution     string `json:"solution"`
		Verification string `json:"verification"`
		Prevention   string `json:"prevention"`
	}
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		metrics.ModelFallbacks.WithLabelValues("report").Inc()
		return
	}

	if parsed.RootCause != "" {
		report.RootCause = parsed.RootCause
	}
	if parsed.Solution != "" {
		report.Solution = parsed.Solution
	}
	report.Verification = parsed.Verification
	report.Prevention = parsed.Prevention
}

// referenceContext renders retrieved doc snippets for the report
// prompt, empty when nothing matched.
func referenceContext(report *FinalReport) string {
	if len(report.References) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n**Reference Documentation:**\n")
	for _, s := range report.References {
		fmt.Fprintf(&b, "[%s] %s\n", s.Filename, s.Snippet)
	}
	return b.String()
}

func pathFrom(history []Step) []PathEntry {
	path := make([]PathEntry, 0, len(history))
	for _, step := range history {
		path = append(path, PathEntry{
			Iteration:  step.Iteration,
			Hypothesis: step.Hypothesis,
			Confidence: step.Confidence,
		})
	}
	return path
}

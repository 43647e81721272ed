package investigation

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/devdebug/devdebug-ai/internal/extract"
	"github.com/devdebug/devdebug-ai/internal/llm"
	"github.com/devdebug/devdebug-ai/internal/metrics"
	"github.com/devdebug/devdebug-ai/internal/patterns"
)

// Phase is the planning mode for a round.
type Phase int

const (
	// PhaseDiscovery finds the affected resources with filter-based
	// commands that need no concrete names.
	PhaseDiscovery Phase = iota
	// PhaseTargeted inspects resources discovered in earlier rounds.
	PhaseTargeted
)

const (
	maxDiscoveryCommands = 3
	maxTargetedCommands  = 4
	maxTargetedResources = 2
)

// Planner decides what evidence to gather next. Phase 1 asks broad
// discovery questions; later rounds target resources parsed out of the
// earlier answers.
type Planner struct {
	model    llm.Client
	screener *extract.Screener
	learned  patterns.Store
	logger   *zap.Logger
}

// NewPlanner builds a Planner. model and learned may be nil.
func NewPlanner(model llm.Client, screener *extract.Screener, learned patterns.Store, logger *zap.Logger) *Planner {
	if screener == nil {
		screener = extract.NewScreener(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{model: model, screener: screener, learned: learned, logger: logger}
}

// PlanNext returns the commands for the next round, or an empty slice
// when the investigation should stop. An empty plan is a terminal
// signal, never an error.
func (p *Planner) PlanNext(ctx context.Context, analysis AnalysisResult, session *Session, iteration int) []extract.CandidateCommand {
	if !analysis.ContinueInvestigating {
		return nil
	}

	switch p.phaseFor(iteration) {
	case PhaseDiscovery:
		return p.planDiscovery(ctx, session)
	case PhaseTargeted:
		return p.planTargeted(session)
	default:
		return nil
	}
}

func (p *Planner) phaseFor(iteration int) Phase {
	if iteration <= 1 {
		return PhaseDiscovery
	}
	return PhaseTargeted
}

// planDiscovery asks the model for filter-based commands and screens
// them; with no usable backend it falls back to a fixed pair of broad
// probes. Discovery commands must never need name substitution.
func (p *Planner) planDiscovery(ctx context.Context, session *Session) []extract.CandidateCommand {
	if p.model != nil && p.model.Available(ctx) {
		if cmds := p.modelDiscovery(ctx, session); len(cmds) > 0 {
			return cmds
		}
		metrics.ModelFallbacks.WithLabelValues("discovery").Inc()
		p.logger.Debug("model discovery yielded nothing, using fallback probes",
			zap.String("session_id", session.ID))
	}
	return fallbackDiscovery(session.Namespace)
}

func (p *Planner) modelDiscovery(ctx context.Context, session *Session) []extract.CandidateCommand {
	prompt := p.discoveryPrompt(ctx, session)

	raw, err := p.model.Complete(ctx, prompt, 1500)
	if err != nil {
		metrics.ModelRequestsTotal.WithLabelValues("discovery", "error").Inc()
		return nil
	}
	metrics.ModelRequestsTotal.WithLabelValues("discovery", "ok").Inc()
	candidates, err := extract.Commands(raw)
	if err != nil {
		return nil
	}

	clean, rejected := p.screener.Screen(candidates)

	// One bounded refinement pass: tell the model what it got wrong,
	// then drop whatever still carries placeholders.
	if len(rejected) > 0 {
		if refined := p.refine(ctx, prompt, rejected); len(refined) > 0 {
			clean = append(clean, refined...)
		}
	}

	if len(clean) > maxDiscoveryCommands {
		clean = clean[:maxDiscoveryCommands]
	}
	return clean
}

// refine retries rejected commands once with explicit feedback.
func (p *Planner) refine(ctx context.Context, originalPrompt string, rejected []extract.CandidateCommand) []extract.CandidateCommand {
	var listing strings.Builder
	for _, c := range rejected {
		fmt.Fprintf(&listing, "- %s\n", c.Command)
	}
	prompt := fmt.Sprintf(`%s

**REFINEMENT REQUIRED:**
Your previous answer contained unresolved placeholders in these commands:
%s
Regenerate them using field selectors or label selectors so every command
is executable exactly as written, with no placeholder tokens. Same JSON
output format.`, originalPrompt, listing.String())

	raw, err := p.model.Complete(ctx, prompt, 1500)
	if err != nil {
		return nil
	}
	candidates, err := extract.Commands(raw)
	if err != nil {
		return nil
	}
	clean, stillDirty := p.screener.Screen(candidates)
	if len(stillDirty) > 0 {
		metrics.PlaceholdersRejected.Add(float64(len(stillDirty)))
		p.logger.Debug("dropping commands still carrying placeholders after refinement",
			zap.Int("dropped", len(stillDirty)))
	}
	return clean
}

// planTargeted emits describe/logs commands for up to two resources
// parsed from earlier list output. Nothing discovered means stop.
func (p *Planner) planTargeted(session *Session) []extract.CandidateCommand {
	resources := extract.Resources(session.Findings.OrderedStdout())
	if len(resources) == 0 {
		return nil
	}
	if len(resources) > maxTargetedResources {
		resources = resources[:maxTargetedResources]
	}

	ns := session.Namespace
	var cmds []extract.CandidateCommand
	for _, r := range resources {
		cmds = append(cmds, extract.CandidateCommand{
			Command:   fmt.Sprintf("kubectl describe %s %s -n %s", r.Kind, r.Name, ns),
			Rationale: fmt.Sprintf("Inspect events and error details for %s %s", r.Kind, r.Name),
		})

		switch {
		case r.Kind == "pod":
			cmds = append(cmds, extract.CandidateCommand{
				Command:   fmt.Sprintf("kubectl logs %s -n %s --tail=50", r.Name, ns),
				Rationale: fmt.Sprintf("Read recent logs from pod %s", r.Name),
			})
		case r.ManagesPods():
			// One representative pod's logs, selected by label, is
			// enough for diagnosis.
			cmds = append(cmds, extract.CandidateCommand{
				Command:   fmt.Sprintf("kubectl logs -l app=%s -n %s --tail=30 --prefix", r.Name, ns),
				Rationale: fmt.Sprintf("Read logs from pods managed by %s %s", r.Kind, r.Name),
			})
		}
	}

	if len(cmds) > maxTargetedCommands {
		cmds = cmds[:maxTargetedCommands]
	}
	return cmds
}

// fallbackDiscovery is the deterministic Phase 1 plan: non-running pods
// and recent warning events.
func fallbackDiscovery(namespace string) []extract.CandidateCommand {
	return []extract.CandidateCommand{
		{
			Command:   fmt.Sprintf("kubectl get pods -n %s --field-selector=status.phase!=Running -o wide", namespace),
			Rationale: "Find all non-running pods with detailed status information",
		},
		{
			Command:   fmt.Sprintf("kubectl get events -n %s --sort-by=.lastTimestamp --field-selector=type=Warning", namespace),
			Rationale: "Get recent warning events that might explain pod failures",
		},
	}
}

// discoveryPrompt builds the Phase 1 prompt, injecting any learned
// resolution that matches the query so the model starts from confirmed
// ground.
func (p *Planner) discoveryPrompt(ctx context.Context, session *Session) string {
	learned := ""
	if p.learned != nil {
		if known, err := p.learned.Match(ctx, session.Query); err == nil && known != nil {
			learned = fmt.Sprintf(`
**LEARNED CONTEXT (from %d previously confirmed investigations):**
The signature %q has previously resolved to: %s
`, known.HitCount, known.Signature, known.RootCause)
		}
	}

	template := discoveryPromptTemplate
	if session.Intent == IntentAction {
		template = actionPromptTemplate
	}
	return fmt.Sprintf(template, session.Query, session.Namespace, learned, session.Namespace, session.Namespace, session.Namespace)
}

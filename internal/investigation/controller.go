package investigation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/devdebug/devdebug-ai/internal/audit"
	"github.com/devdebug/devdebug-ai/internal/db"
	"github.com/devdebug/devdebug-ai/internal/docs"
	"github.com/devdebug/devdebug-ai/internal/executor"
	"github.com/devdebug/devdebug-ai/internal/extract"
	"github.com/devdebug/devdebug-ai/internal/llm"
	"github.com/devdebug/devdebug-ai/internal/metrics"
	"github.com/devdebug/devdebug-ai/internal/patterns"
	"github.com/devdebug/devdebug-ai/internal/safety"
)

// ErrEmptyQuery rejects a session with nothing to investigate. It is
// the only fatal input error; everything else degrades.
var ErrEmptyQuery = errors.New("investigation query must not be empty")

// Event is streamed to subscribers as a session progresses.
type Event struct {
	SessionID string                  `json:"session_id"`
	Type      string                  `json:"type"` // "state" | "analysis" | "command" | "blocked" | "conclusion" | "error"
	State     State                   `json:"state"`
	Iteration int                     `json:"iteration,omitempty"`
	Analysis  *AnalysisResult         `json:"analysis,omitempty"`
	Command   string                  `json:"command,omitempty"`
	Result    *executor.CommandResult `json:"result,omitempty"`
	Reason    string                  `json:"reason,omitempty"`
	Report    *FinalReport            `json:"report,omitempty"`
	Error     string                  `json:"error,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
}

// Subscriber receives session events in real time.
type Subscriber struct {
	Ch chan Event
}

// Deps wires a Controller. Store and Runner are required; everything
// else may be nil and degrades to the deterministic path.
type Deps struct {
	Analyzer *Analyzer
	Planner  *Planner
	Gate     *safety.Gate
	Runner   executor.Runner
	Store    db.Store
	Learned  patterns.Store
	Docs     docs.Retriever
	Model    llm.Client
	Audit    audit.Logger
	Logger   *zap.Logger

	MaxIterations       int
	ConfidenceThreshold float64
	CommandTimeout      time.Duration
}

// Controller drives investigation sessions through the bounded loop:
// evaluate the evidence, plan the next commands, gate them, execute,
// repeat until confident or out of budget. Session state is read back
// from the store so snapshots never race the running loop.
type Controller struct {
	analyzer *Analyzer
	planner  *Planner
	gate     *safety.Gate
	runner   executor.Runner
	store    db.Store
	learned  patterns.Store
	docs     docs.Retriever
	model    llm.Client
	auditLog audit.Logger
	logger   *zap.Logger

	maxIterations  int
	threshold      float64
	commandTimeout time.Duration

	mu      sync.RWMutex
	reports map[string]*FinalReport

	subsMu      sync.Mutex
	subscribers map[string][]*Subscriber
}

// NewController builds a Controller, filling unset limits with the
// standard budget: five rounds, 0.8 confidence, 30 second commands.
func NewController(deps Deps) *Controller {
	if deps.MaxIterations <= 0 {
		deps.MaxIterations = 5
	}
	if deps.ConfidenceThreshold <= 0 {
		deps.ConfidenceThreshold = 0.8
	}
	if deps.CommandTimeout <= 0 {
		deps.CommandTimeout = executor.DefaultTimeout
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Docs == nil {
		deps.Docs = docs.None{}
	}
	return &Controller{
		analyzer:       deps.Analyzer,
		planner:        deps.Planner,
		gate:           deps.Gate,
		runner:         deps.Runner,
		store:          deps.Store,
		learned:        deps.Learned,
		docs:           deps.Docs,
		model:          deps.Model,
		auditLog:       deps.Audit,
		logger:         deps.Logger,
		maxIterations:  deps.MaxIterations,
		threshold:      deps.ConfidenceThreshold,
		commandTimeout: deps.CommandTimeout,
		reports:        make(map[string]*FinalReport),
		subscribers:    make(map[string][]*Subscriber),
	}
}

// Start creates a session and runs it on its own goroutine, detached
// from the caller's context so it survives a closed HTTP request.
func (c *Controller) Start(ctx context.Context, query, namespace, targetResource string) (string, error) {
	session, err := c.prepare(ctx, query, namespace, targetResource)
	if err != nil {
		return "", err
	}
	go c.runSession(context.Background(), session)
	return session.ID, nil
}

// Run creates a session and drives it to its report synchronously. The
// caller always gets a report or an error, never neither.
func (c *Controller) Run(ctx context.Context, query, namespace, targetResource string) (*FinalReport, error) {
	session, err := c.prepare(ctx, query, namespace, targetResource)
	if err != nil {
		return nil, err
	}
	c.runSession(ctx, session)
	report, ok := c.Report(session.ID)
	if !ok {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("investigation %s aborted: %w", session.ID, err)
		}
		return nil, fmt.Errorf("investigation %s produced no report", session.ID)
	}
	return report, nil
}

func (c *Controller) prepare(ctx context.Context, query, namespace, targetResource string) (*Session, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}

	session := NewSession(uuid.New().String(), query, namespace, targetResource)

	if err := c.saveRecord(ctx, session, StateGathering, AnalysisResult{}); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	if c.auditLog != nil {
		c.auditLog.LogSessionStarted(ctx, session.ID, query)
	}
	metrics.InvestigationsTotal.WithLabelValues(string(session.Intent), "started").Inc()

	c.logger.Info("investigation started",
		zap.String("session_id", session.ID),
		zap.String("intent", string(session.Intent)),
		zap.String("namespace", session.Namespace))
	return session, nil
}

// runSession is the bounded loop. Each round analyzes the evidence
// gathered so far; a confident verdict or an empty plan ends the
// session, otherwise the planned commands are gated and executed and
// the round is recorded.
func (c *Controller) runSession(ctx context.Context, session *Session) {
	start := time.Now()
	defer c.closeSubs(session.ID)

	var final AnalysisResult
	iterationsUsed := 0
	exhausted := true

	for round := 1; round <= c.maxIterations; round++ {
		if ctx.Err() != nil {
			c.fail(ctx, session, ctx.Err())
			return
		}

		analysis := c.analyzer.Analyze(ctx, session, round)
		final = analysis
		c.publish(session.ID, Event{
			SessionID: session.ID,
			Type:      "analysis",
			State:     StateEvaluating,
			Iteration: round,
			Analysis:  &analysis,
			Timestamp: time.Now().UTC(),
		})

		if !analysis.ContinueInvestigating {
			exhausted = false
			break
		}

		plan := c.planner.PlanNext(ctx, analysis, session, round)
		if len(plan) == 0 {
			// Nothing left worth running. Terminal, not an error.
			exhausted = false
			break
		}

		executed := c.executeRound(ctx, session, round, plan)
		iterationsUsed = round

		step := Step{
			Iteration:              round,
			CommandsExecuted:       executed,
			Hypothesis:             analysis.Hypothesis,
			Confidence:             analysis.Confidence,
			ContinuedInvestigation: true,
			Timestamp:              time.Now().UTC(),
		}
		session.History = append(session.History, step)

		if err := c.saveRecord(ctx, session, StateContinuing, analysis); err != nil {
			c.logger.Warn("failed to persist session round",
				zap.String("session_id", session.ID), zap.Error(err))
		}
	}

	if exhausted && iterationsUsed > 0 {
		// Budget spent with the analyzer still asking for more. Settle
		// the verdict on everything gathered.
		final = c.analyzer.Analyze(ctx, session, c.maxIterations+1)
	}

	c.conclude(ctx, session, final, iterationsUsed, time.Since(start))
}

// executeRound gates and runs one round's commands. Allowed commands
// run concurrently; results are recorded in planned order so findings
// stay deterministic.
func (c *Controller) executeRound(ctx context.Context, session *Session, round int, plan []extract.CandidateCommand) []string {
	type slot struct {
		command string
		result  executor.CommandResult
		ran     bool
	}
	slots := make([]slot, len(plan))

	var wg sync.WaitGroup
	for i, candidate := range plan {
		slots[i].command = candidate.Command

		if c.gate != nil {
			verdict := c.gate.IsPermitted(ctx, candidate.Command, session.Query)
			if !verdict.Allowed {
				if c.auditLog != nil {
					c.auditLog.LogCommandBlocked(ctx, session.ID, round, candidate.Command, verdict.Reason)
				}
				metrics.CommandsBlocked.WithLabelValues(verdict.RiskLevel).Inc()
				c.publish(session.ID, Event{
					SessionID: session.ID,
					Type:      "blocked",
					State:     StateGathering,
					Iteration: round,
					Command:   candidate.Command,
					Reason:    verdict.Reason,
					Timestamp: time.Now().UTC(),
				})
				c.logger.Warn("command blocked",
					zap.String("session_id", session.ID),
					zap.String("command", candidate.Command),
					zap.String("reason", verdict.Reason))
				continue
			}
		}

		wg.Add(1)
		go func(i int, command string) {
			defer wg.Done()
			slots[i].result = c.runner.Execute(ctx, command, c.commandTimeout)
			slots[i].ran = true
		}(i, candidate.Command)
	}
	wg.Wait()

	var executed []string
	for _, s := range slots {
		if !s.ran {
			continue
		}
		session.Findings.Set(s.command, s.result)
		executed = append(executed, s.command)

		c.recordStep(ctx, session.ID, round, s.result)
		metrics.ObserveCommand(outcomeOf(s.result), s.result.Duration.Seconds())
		if c.auditLog != nil {
			c.auditLog.LogCommandExecuted(ctx, session.ID, round, s.result)
		}

		result := s.result
		c.publish(session.ID, Event{
			SessionID: session.ID,
			Type:      "command",
			State:     StateGathering,
			Iteration: round,
			Command:   s.command,
			Result:    &result,
			Timestamp: time.Now().UTC(),
		})
	}
	return executed
}

func outcomeOf(r executor.CommandResult) string {
	switch {
	case r.TimedOut:
		return "timeout"
	case r.ExecutionError != "":
		return "spawn_error"
	case r.Failed():
		return "failed"
	default:
		return "ok"
	}
}

func (c *Controller) recordStep(ctx context.Context, sessionID string, round int, result executor.CommandResult) {
	rec := &db.StepRecord{
		SessionID:      sessionID,
		Iteration:      round,
		Command:        result.Command,
		Stdout:         result.Stdout,
		Stderr:         result.Stderr,
		ExitCode:       result.ExitCode,
		TimedOut:       result.TimedOut,
		ExecutionError: result.ExecutionError,
		DurationMs:     result.Duration.Milliseconds(),
		Timestamp:      time.Now().UTC(),
	}
	if err := c.store.AppendStep(ctx, rec); err != nil {
		c.logger.Warn("failed to persist step",
			zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (c *Controller) conclude(ctx context.Context, session *Session, final AnalysisResult, iterationsUsed int, elapsed time.Duration) {
	report := c.buildReport(ctx, session, final, iterationsUsed)

	c.mu.Lock()
	c.reports[session.ID] = report
	c.mu.Unlock()

	if err := c.saveConcluded(ctx, session, report); err != nil {
		c.logger.Warn("failed to persist conclusion",
			zap.String("session_id", session.ID), zap.Error(err))
	}

	// A confident signature match is worth remembering for next time.
	if c.learned != nil && final.Signature != "" && final.Confidence >= c.threshold {
		if err := c.learned.Record(ctx, final.Signature, report.RootCause, final.Confidence); err != nil {
			c.logger.Warn("failed to record learned pattern", zap.Error(err))
		}
	}

	if c.auditLog != nil {
		c.auditLog.LogSessionConcluded(ctx, session.ID, iterationsUsed, report.Confidence, elapsed)
	}
	metrics.InvestigationsTotal.WithLabelValues(string(session.Intent), "concluded").Inc()
	metrics.InvestigationDuration.WithLabelValues(string(session.Intent)).Observe(elapsed.Seconds())
	metrics.InvestigationIterations.Observe(float64(iterationsUsed))
	metrics.InvestigationConfidence.Observe(report.Confidence)

	c.logger.Info("investigation concluded",
		zap.String("session_id", session.ID),
		zap.Int("iterations", iterationsUsed),
		zap.Float64("confidence", report.Confidence),
		zap.Duration("elapsed", elapsed))

	c.publish(session.ID, Event{
		SessionID: session.ID,
		Type:      "conclusion",
		State:     StateConcluding,
		Iteration: iterationsUsed,
		Report:    report,
		Timestamp: time.Now().UTC(),
	})
}

func (c *Controller) fail(ctx context.Context, session *Session, cause error) {
	if c.auditLog != nil {
		c.auditLog.LogSessionFailed(ctx, session.ID, cause)
	}
	metrics.InvestigationsTotal.WithLabelValues(string(session.Intent), "failed").Inc()
	c.logger.Error("investigation failed",
		zap.String("session_id", session.ID), zap.Error(cause))
	c.publish(session.ID, Event{
		SessionID: session.ID,
		Type:      "error",
		State:     StateConcluding,
		Error:     cause.Error(),
		Timestamp: time.Now().UTC(),
	})
}

func (c *Controller) saveRecord(ctx context.Context, session *Session, state State, analysis AnalysisResult) error {
	return c.store.SaveSession(ctx, &db.SessionRecord{
		ID:         session.ID,
		Query:      session.Query,
		Intent:     string(session.Intent),
		State:      string(state),
		RootCause:  analysis.Hypothesis,
		Confidence: analysis.Confidence,
		Iterations: len(session.History),
		CreatedAt:  session.StartedAt,
		UpdatedAt:  time.Now().UTC(),
	})
}

func (c *Controller) saveConcluded(ctx context.Context, session *Session, report *FinalReport) error {
	return c.store.SaveSession(ctx, &db.SessionRecord{
		ID:         session.ID,
		Query:      session.Query,
		Intent:     string(session.Intent),
		State:      string(StateConcluding),
		RootCause:  report.RootCause,
		Confidence: report.Confidence,
		Iterations: report.IterationsUsed,
		CreatedAt:  session.StartedAt,
		UpdatedAt:  time.Now().UTC(),
	})
}

// Report returns the final report for a concluded session.
func (c *Controller) Report(id string) (*FinalReport, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	report, ok := c.reports[id]
	return report, ok
}

// Status returns the persisted snapshot of a session, nil when unknown.
func (c *Controller) Status(ctx context.Context, id string) (*db.SessionRecord, error) {
	return c.store.GetSession(ctx, id)
}

// Steps returns the persisted command history of a session.
func (c *Controller) Steps(ctx context.Context, id string) ([]*db.StepRecord, error) {
	return c.store.GetSteps(ctx, id)
}

// ListSessions returns the most recent sessions, newest first.
func (c *Controller) ListSessions(ctx context.Context, limit int) ([]*db.SessionRecord, error) {
	return c.store.ListSessions(ctx, limit)
}

// Subscribe registers a channel for a session's live events. The
// channel is closed when the session finishes. Slow subscribers drop
// events rather than stall the loop.
func (c *Controller) Subscribe(sessionID string) *Subscriber {
	sub := &Subscriber{Ch: make(chan Event, 64)}

	c.mu.RLock()
	_, done := c.reports[sessionID]
	c.mu.RUnlock()
	if done {
		// Already concluded; nothing will ever be published.
		close(sub.Ch)
		return sub
	}

	c.subsMu.Lock()
	c.subscribers[sessionID] = append(c.subscribers[sessionID], sub)
	c.subsMu.Unlock()
	return sub
}

func (c *Controller) publish(sessionID string, ev Event) {
	c.subsMu.Lock()
	subs := c.subscribers[sessionID]
	c.subsMu.Unlock()
	for _, s := range subs {
		select {
		case s.Ch <- ev:
		default:
		}
	}
}

func (c *Controller) closeSubs(sessionID string) {
	c.subsMu.Lock()
	subs := c.subscribers[sessionID]
	delete(c.subscribers, sessionID)
	c.subsMu.Unlock()
	for _, s := range subs {
		close(s.Ch)
	}
}

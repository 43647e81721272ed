package audit

import "time"

// EventType identifies what kind of event is being recorded.
type EventType string

const (
	// Session lifecycle
	EventSessionStarted   EventType = "session.started"
	EventSessionConcluded EventType = "session.concluded"
	EventSessionFailed    EventType = "session.failed"

	// Command lifecycle
	EventCommandProposed EventType = "command.proposed"
	EventCommandExecuted EventType = "command.executed"
	EventCommandBlocked  EventType = "command.blocked"
	EventCommandTimeout  EventType = "command.timeout"

	// Analysis
	EventAnalysisCompleted EventType = "analysis.completed"
	EventPatternRecorded   EventType = "pattern.recorded"

	// Configuration
	EventConfigLoaded EventType = "config.loaded"
	EventConfigReload EventType = "config.reload"

	// System
	EventServerStarted  EventType = "system.server_started"
	EventServerShutdown EventType = "system.server_shutdown"
)

// Result is the outcome of an audited action.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultDenied  Result = "denied"
)

// Event is a single append-only audit record. SessionID correlates all
// events belonging to one investigation.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id,omitempty"`
	EventType EventType `json:"event_type"`
	Result    Result    `json:"result"`

	// Command details
	Command   string `json:"command,omitempty"`
	Iteration int    `json:"iteration,omitempty"`
	ExitCode  *int   `json:"exit_code,omitempty"`

	// Analysis details
	Confidence float64 `json:"confidence,omitempty"`

	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Error       string         `json:"error,omitempty"`
	DurationMs  int64          `json:"duration_ms,omitempty"`
}

// NewEvent creates an event stamped with the current time.
func NewEvent(eventType EventType) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Result:    ResultSuccess,
	}
}

// WithSession sets the correlating session ID.
func (e *Event) WithSession(id string) *Event {
	e.SessionID = id
	return e
}

// WithCommand sets the command and the round it belongs to.
func (e *Event) WithCommand(command string, iteration int) *Event {
	e.Command = command
	e.Iteration = iteration
	return e
}

// WithResult sets the outcome.
func (e *Event) WithResult(result Result) *Event {
	e.Result = result
	return e
}

// WithDescription sets a human-readable description.
func (e *Event) WithDescription(desc string) *Event {
	e.Description = desc
	return e
}

// WithError records the error and marks the event failed.
func (e *Event) WithError(err error) *Event {
	if err != nil {
		e.Error = err.Error()
		e.Result = ResultFailure
	}
	return e
}

// WithDuration records how long the action took.
func (e *Event) WithDuration(d time.Duration) *Event {
	e.DurationMs = d.Milliseconds()
	return e
}

// WithMetadata attaches an arbitrary key/value pair.
func (e *Event) WithMetadata(key string, value any) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata[key] = value
	return e
}

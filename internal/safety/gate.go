// Package safety decides whether a candidate kubectl command may be
// executed. Decisions layer three checks: a denylist of literal
// dangerous substrings that always blocks, an optional AI evaluator for
// nuanced reasoning, and a deterministic permission policy that works
// with no external dependencies at all.
package safety

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/devdebug/devdebug-ai/internal/extract"
	"github.com/devdebug/devdebug-ai/internal/llm"
	"github.com/devdebug/devdebug-ai/internal/metrics"
)

// Policy holds the permission flags consulted by the deterministic check.
type Policy struct {
	AllowDelete  bool
	AllowCreate  bool
	AllowUpdate  bool
	ReadOnlyMode bool

	// ForbiddenSubstrings always block, regardless of permission flags.
	ForbiddenSubstrings []string
}

// DefaultForbiddenSubstrings blocks filesystem-destructive shell
// commands that have no legitimate place in a kubectl investigation.
var DefaultForbiddenSubstrings = []string{
	"rm -rf",
	"mkfs",
	"dd if=",
	":(){",
	"> /dev/sda",
	"shutdown",
	"reboot",
}

// Verdict is the outcome of a permission check.
type Verdict struct {
	Allowed    bool
	Reason     string
	RiskLevel  string
	Suggestion string
}

// Gate evaluates command safety. The zero value is not usable; construct
// with NewGate.
type Gate struct {
	policy    Policy
	evaluator llm.Client
}

// NewGate builds a Gate with the given policy. The evaluator may be nil,
// in which case only the deterministic policy applies. Policies with no
// explicit denylist get DefaultForbiddenSubstrings.
func NewGate(policy Policy, evaluator llm.Client) *Gate {
	if len(policy.ForbiddenSubstrings) == 0 {
		policy.ForbiddenSubstrings = DefaultForbiddenSubstrings
	}
	return &Gate{policy: policy, evaluator: evaluator}
}

// IsPermitted decides whether command may run. The denylist is checked
// first and always blocks. The AI evaluator, when available, is
// consulted next; any failure there falls through to the deterministic
// permission policy, which is total on its own.
func (g *Gate) IsPermitted(ctx context.Context, command, userQuery string) Verdict {
	lower := strings.ToLower(command)

	for _, bad := range g.policy.ForbiddenSubstrings {
		if strings.Contains(lower, strings.ToLower(bad)) {
			return Verdict{
				Allowed:   false,
				Reason:    fmt.Sprintf("command contains forbidden pattern %q", bad),
				RiskLevel: "high",
			}
		}
	}

	// ReadOnlyMode is enforced before the AI evaluator: a global
	// read-only stance must not depend on model judgement. The check
	// scans the whole command line, so a write chained or piped behind
	// a read prefix is still caught.
	if g.policy.ReadOnlyMode && containsWritePattern(lower) {
		return Verdict{
			Allowed:    false,
			Reason:     "write operation blocked in read-only mode",
			RiskLevel:  "medium",
			Suggestion: "disable read-only mode to permit write operations",
		}
	}

	if g.evaluator != nil && g.evaluator.Available(ctx) {
		if v, ok := g.evaluate(ctx, command, userQuery); ok {
			return v
		}
	}

	return g.permissionCheck(lower)
}

// read operations are always safe regardless of permission flags.
var readOperations = []string{"get", "describe", "logs", "top", "explain", "api-resources", "api-versions"}

// isReadOperation requires a read verb and the absence of any write
// keyword anywhere on the line. A command like
// "kubectl get pods && kubectl delete namespace prod" is not a read
// operation no matter how it starts.
func isReadOperation(lower string) bool {
	if containsWritePattern(lower) {
		return false
	}
	for _, op := range readOperations {
		if strings.Contains(lower, "kubectl "+op) {
			return true
		}
	}
	return false
}

// Matched on word boundaries so resource names like farm-1 or
// credited-svc do not trip the rm/edit keywords.
var writePatternRe = regexp.MustCompile(`\b(delete|create|apply|patch|edit|scale|remove|destroy|rm)\b`)

func containsWritePattern(lower string) bool {
	return writePatternRe.MatchString(lower)
}

// permissionCheck is the deterministic fallback. It classifies the
// command by operation keyword family and gates each family behind its
// permission flag.
func (g *Gate) permissionCheck(lower string) Verdict {
	if isReadOperation(lower) {
		return Verdict{Allowed: true, Reason: "read operation permitted", RiskLevel: "low"}
	}

	if g.policy.ReadOnlyMode && containsWritePattern(lower) {
		return Verdict{
			Allowed:    false,
			Reason:     "write operation blocked in read-only mode",
			RiskLevel:  "medium",
			Suggestion: "disable read-only mode to permit write operations",
		}
	}

	if !g.policy.AllowDelete && strings.Contains(lower, "delete") {
		return Verdict{
			Allowed:    false,
			Reason:     "delete operation not permitted",
			RiskLevel:  "high",
			Suggestion: "enable allow_delete in config",
		}
	}

	if !g.policy.AllowCreate {
		for _, p := range []string{"create", "apply"} {
			if strings.Contains(lower, p) {
				return Verdict{
					Allowed:    false,
					Reason:     "create operation not permitted",
					RiskLevel:  "medium",
					Suggestion: "enable allow_create in config",
				}
			}
		}
	}

	if !g.policy.AllowUpdate {
		for _, p := range []string{"patch", "edit", "scale"} {
			if strings.Contains(lower, p) {
				return Verdict{
					Allowed:    false,
					Reason:     "update operation not permitted",
					RiskLevel:  "medium",
					Suggestion: "enable allow_update in config",
				}
			}
		}
	}

	return Verdict{Allowed: true, Reason: "command permitted", RiskLevel: "low"}
}

// aiVerdict is the structured output requested from the evaluator.
type aiVerdict struct {
	Safe       bool   `json:"safe"`
	Reason     string `json:"reason"`
	RiskLevel  string `json:"risk_level"`
	Suggestion string `json:"suggestion"`
}

const safetyPromptTemplate = `You are a security expert evaluating Kubernetes command safety.

**Command to evaluate:**
%s

**User's original query:**
%s

**Permission context:**
- Delete operations allowed: %t
- Create operations allowed: %t
- Update operations allowed: %t
- Read-only mode: %t

**IMPORTANT RULES:**
1. kubectl get/describe/logs/top commands are ALWAYS SAFE (read-only)
2. If user wants to delete and delete is allowed, kubectl delete is SAFE
3. Multi-step operations are normal: first get resources, then delete them
4. Only block if command contains actual dangerous operations like: rm, dd, mkfs, format

**Your task:**
Evaluate if this specific kubectl command is safe to execute.

**Output JSON only:**
{
  "safe": true/false,
  "reason": "brief explanation",
  "risk_level": "low|medium|high",
  "suggestion": "alternative if unsafe, null otherwise"
}`

// evaluate consults the AI evaluator. The second return is false when
// the evaluator failed or returned output that could not be repaired
// into a verdict, signalling the caller to fall back.
func (g *Gate) evaluate(ctx context.Context, command, userQuery string) (Verdict, bool) {
	prompt := fmt.Sprintf(safetyPromptTemplate,
		command, userQuery,
		g.policy.AllowDelete, g.policy.AllowCreate, g.policy.AllowUpdate, g.policy.ReadOnlyMode)

	raw, err := g.evaluator.Complete(ctx, prompt, 200)
	if err != nil {
		metrics.ModelRequestsTotal.WithLabelValues("safety", "error").Inc()
		return Verdict{}, false
	}
	metrics.ModelRequestsTotal.WithLabelValues("safety", "ok").Inc()

	obj, err := extract.RepairObject(raw)
	if err != nil {
		return Verdict{}, false
	}

	var v aiVerdict
	if err := json.Unmarshal([]byte(obj), &v); err != nil {
		return Verdict{}, false
	}
	if v.Reason == "" {
		v.Reason = "model safety evaluation"
	}

	return Verdict{
		Allowed:    v.Safe,
		Reason:     v.Reason,
		RiskLevel:  v.RiskLevel,
		Suggestion: v.Suggestion,
	}, true
}

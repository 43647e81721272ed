package extract

import (
	"regexp"
	"strings"
)

// Placeholder detection. A command that still contains unresolved variable
// syntax would fail (or worse, do something unintended) if executed
// literally, so such commands never reach the executor.
//
// The tricky case is angle-bracket-shaped or all-caps tokens that are
// legitimate domain vocabulary rather than variables: a field selector like
// status.phase!=Running is fine, and so is grepping for CrashLoopBackOff.
// The whitelist that separates the two is configuration data, not a fixed
// rule — the default set below covers the kubectl status vocabulary.

var (
	angleTokenRe = regexp.MustCompile(`<([A-Za-z][A-Za-z0-9_.-]*)>`)
	braceTokenRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	envTokenRe   = regexp.MustCompile(`\$\{?([A-Za-z_][A-Za-z0-9_]*)\}?`)
)

// bareIdentifiers are placeholder names models emit without any bracket
// syntax at all.
var bareIdentifiers = []string{
	"POD_NAME", "RESOURCE_NAME", "DEPLOYMENT_NAME", "SERVICE_NAME",
	"NAMESPACE_NAME", "CONTAINER_NAME", "NODE_NAME",
}

// DefaultStatusVocabulary lists domain enumeration values that must never be
// mistaken for placeholders. Loaded into Screener as configurable data.
var DefaultStatusVocabulary = []string{
	"Running", "Pending", "Succeeded", "Failed", "Unknown", "Completed",
	"Terminating", "Evicted", "CrashLoopBackOff", "ImagePullBackOff",
	"ErrImagePull", "CreateContainerConfigError", "OOMKilled", "Ready",
	"NotReady", "Warning", "Normal", "True", "False",
}

// Screener classifies commands as clean or placeholder-bearing.
type Screener struct {
	vocabulary map[string]struct{}
}

// NewScreener builds a Screener with the given status vocabulary. An empty
// list falls back to DefaultStatusVocabulary.
func NewScreener(vocabulary []string) *Screener {
	if len(vocabulary) == 0 {
		vocabulary = DefaultStatusVocabulary
	}
	m := make(map[string]struct{}, len(vocabulary))
	for _, v := range vocabulary {
		m[strings.ToLower(v)] = struct{}{}
	}
	return &Screener{vocabulary: m}
}

// HasPlaceholder reports whether command contains an unresolved variable
// token, together with the first offending token for diagnostics.
func (s *Screener) HasPlaceholder(command string) (bool, string) {
	for _, m := range angleTokenRe.FindAllStringSubmatch(command, -1) {
		if !s.isVocabulary(m[1]) {
			return true, m[0]
		}
	}
	for _, m := range braceTokenRe.FindAllStringSubmatch(command, -1) {
		if !s.isVocabulary(m[1]) {
			return true, m[0]
		}
	}
	// jsonpath expressions legitimately use $ and {...}; only flag
	// shell-style tokens outside a jsonpath argument.
	if !strings.Contains(command, "jsonpath") {
		for _, m := range envTokenRe.FindAllStringSubmatch(command, -1) {
			if !s.isVocabulary(m[1]) {
				return true, m[0]
			}
		}
	}
	for _, ident := range bareIdentifiers {
		if containsWord(command, ident) {
			return true, ident
		}
	}
	return false, ""
}

// Screen splits candidates into clean commands and rejected ones.
func (s *Screener) Screen(candidates []CandidateCommand) (clean, rejected []CandidateCommand) {
	for _, c := range candidates {
		if ok, _ := s.HasPlaceholder(c.Command); ok {
			rejected = append(rejected, c)
			continue
		}
		clean = append(clean, c)
	}
	return clean, rejected
}

func (s *Screener) isVocabulary(token string) bool {
	_, ok := s.vocabulary[strings.ToLower(token)]
	return ok
}

// containsWord matches ident on word boundaries so that e.g. a resource
// actually named "pod-name-checker" is not flagged.
func containsWord(command, ident string) bool {
	idx := 0
	for {
		i := strings.Index(command[idx:], ident)
		if i < 0 {
			return false
		}
		i += idx
		before := i == 0 || !isWordByte(command[i-1])
		afterIdx := i + len(ident)
		after := afterIdx >= len(command) || !isWordByte(command[afterIdx])
		if before && after {
			return true
		}
		idx = i + len(ident)
	}
}

func isWordByte(c byte) bool {
	return c == '_' || c == '-' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

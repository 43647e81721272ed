package extract

// Package extract is the robustness layer between the inference backend and
// the rest of the engine. Model output is never trusted: it arrives as raw
// text that may be fenced, commented, truncated mid-generation, or littered
// with control characters, and every consumer goes through the repair
// pipeline here before acting on it.
//
// Responsibilities:
//   - Extract a well-formed list of (command, rationale) pairs from raw text
//   - Repair common structured-output defects (fences, comments, trailing
//     commas, truncation) on a best-effort basis
//   - Reject commands carrying unresolved placeholder tokens
//   - Parse resource identifiers out of kubectl list-style output

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoValidCommands is returned when repair succeeded syntactically but no
// usable command survived validation.
var ErrNoValidCommands = errors.New("no valid commands in model output")

// ErrNoObject is returned when the raw text contains no JSON object at all.
var ErrNoObject = errors.New("no JSON object found in model output")

// CandidateCommand is one planned command with the model's stated rationale.
// A CandidateCommand returned by Commands is non-empty and placeholder-free.
type CandidateCommand struct {
	Command   string `json:"cmd"`
	Rationale string `json:"reason"`
}

type commandsEnvelope struct {
	Commands []struct {
		Cmd    string `json:"cmd"`
		Reason string `json:"reason"`
	} `json:"commands"`
}

var (
	fenceOpenRe     = regexp.MustCompile("```(?:json)?[ \t]*\n?")
	blockCommentRe  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)
)

// Commands extracts candidate commands from raw model output. Elements
// missing either field are dropped; an entirely empty result is an error.
// Placeholder screening is a separate pass (Screen), so callers can decide
// how to handle flagged commands.
func Commands(raw string) ([]CandidateCommand, error) {
	obj, err := RepairObject(raw)
	if err != nil {
		return nil, err
	}

	var env commandsEnvelope
	if err := json.Unmarshal([]byte(obj), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoValidCommands, err)
	}
	if env.Commands == nil {
		return nil, fmt.Errorf("%w: missing commands field", ErrNoValidCommands)
	}

	out := make([]CandidateCommand, 0, len(env.Commands))
	for _, c := range env.Commands {
		cmd := strings.TrimSpace(c.Cmd)
		reason := strings.TrimSpace(c.Reason)
		if cmd == "" || reason == "" {
			continue
		}
		out = append(out, CandidateCommand{Command: cmd, Rationale: reason})
	}
	if len(out) == 0 {
		return nil, ErrNoValidCommands
	}
	return out, nil
}

// RepairObject locates the first JSON object in raw and returns it after
// best-effort repair. Each step is idempotent, so partially clean input
// passes through unchanged.
func RepairObject(raw string) (string, error) {
	// Step 1: strip markdown fences the model wraps structured output in.
	cleaned := fenceOpenRe.ReplaceAllString(raw, "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")

	// Step 2: locate the first balanced object by brace depth, ignoring
	// braces inside string literals. Trailing prose after the object is
	// common and must not confuse the scan.
	obj, complete := scanObject(cleaned)
	if obj == "" {
		return "", ErrNoObject
	}

	// Step 3: truncated generation — append the minimum closing tokens.
	if !complete {
		obj = closeTruncated(obj)
	}

	// Step 4: normalizations for common malformed-JSON mistakes.
	obj = blockCommentRe.ReplaceAllString(obj, "")
	obj = stripLineComments(obj)
	obj = collapseControlChars(obj)
	obj = trailingCommaRe.ReplaceAllString(obj, "$1")

	return obj, nil
}

// scanObject returns the substring from the first '{' through its balanced
// closing brace. complete is false when input ended before balance was
// reached, in which case everything from the first '{' is returned.
func scanObject(s string) (obj string, complete bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return s[start:], false
}

// closeTruncated appends the minimum closing tokens needed to balance a
// generation cut off by a token limit. Closers are emitted in nesting order;
// the result is syntactically closed but carries no guarantee the final
// element is semantically whole — validation downstream drops broken
// elements.
func closeTruncated(s string) string {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	var b strings.Builder
	b.WriteString(s)
	if inString {
		b.WriteByte('"')
	}
	// A dangling comma before a closer would re-break the repaired JSON.
	trimmed := strings.TrimRight(b.String(), " \t\r\n")
	trimmed = strings.TrimSuffix(trimmed, ",")
	b.Reset()
	b.WriteString(trimmed)

	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

// stripLineComments removes // comments outside string literals. A plain
// regex would eat URLs inside command strings (https://...), so the scan is
// string-aware.
func stripLineComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			b.WriteByte(c)
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == '/' && i+1 < len(s) && s[i+1] == '/' {
			for i < len(s) && s[i] != '\n' {
				i++
			}
			if i < len(s) {
				b.WriteByte('\n')
			}
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// collapseControlChars replaces invalid control characters with spaces.
// Outside string literals newlines, carriage returns and tabs are legal
// whitespace and survive; inside string literals any raw control character
// violates strict JSON and is collapsed.
func collapseControlChars(s string) string {
	b := []byte(s)
	inString := false
	escaped := false
	for i := 0; i < len(b); i++ {
		c := b[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			case c < 0x20:
				b[i] = ' '
			}
			continue
		}
		switch {
		case c == '"':
			inString = true
		case c < 0x20 && c != '\n' && c != '\r' && c != '\t':
			b[i] = ' '
		}
	}
	return string(b)
}

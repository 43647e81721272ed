package extract

import (
	"regexp"
	"sort"
	"strings"
)

// Resource identifier extraction from kubectl list-style output. Targeted
// planning (round 2+) needs concrete names discovered in round 1, and the
// only reliable source is the tabular output of `kubectl get <kind>`.

// Resource is one identifier discovered in prior command output.
type Resource struct {
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// ManagesPods reports whether the kind owns pods, in which case a
// label-scoped log retrieval is a meaningful follow-up probe.
func (r Resource) ManagesPods() bool {
	switch r.Kind {
	case "deployment", "statefulset", "daemonset", "replicaset":
		return true
	}
	return false
}

// Finding pairs an executed command with its captured stdout, in
// execution order.
type Finding struct {
	Command string
	Stdout  string
}

var getKindRe = regexp.MustCompile(`kubectl get (\w+)`)

// leafKinds have no children to recurse into, so only abnormal ones are
// worth a targeted look. Composite kinds are passed through unfiltered —
// their health is judged downstream.
var leafKinds = map[string]struct{}{
	"pod": {},
}

// Resources parses every `kubectl get` finding and returns discovered
// identifiers in execution order, with leaf kinds ranked first so an
// abnormal pod is targeted before event rows or owner resources.
func Resources(findings []Finding) []Resource {
	var out []Resource
	for _, f := range findings {
		m := getKindRe.FindStringSubmatch(f.Command)
		if m == nil || f.Stdout == "" {
			continue
		}
		kind := singular(strings.ToLower(m[1]))
		out = append(out, parseTable(kind, f.Stdout)...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		_, li := leafKinds[out[i].Kind]
		_, lj := leafKinds[out[j].Kind]
		return li && !lj
	})
	return out
}

// parseTable reads standard kubectl tabular output: a header row followed by
// one row per resource, first column the name, status in column 3 (pods) or
// column 2 otherwise.
func parseTable(kind, stdout string) []Resource {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) <= 1 {
		// Header only, or empty — nothing discovered.
		return nil
	}

	var out []Resource
	for _, line := range lines[1:] {
		cols := strings.Fields(line)
		if len(cols) == 0 {
			continue
		}
		name := cols[0]
		status := "Unknown"
		if len(cols) > 2 {
			status = cols[2]
		} else if len(cols) > 1 {
			status = cols[1]
		}

		r := Resource{Kind: kind, Name: name, Status: status}
		if _, leaf := leafKinds[kind]; leaf && healthy(status) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func healthy(status string) bool {
	switch strings.ToLower(status) {
	case "running", "succeeded", "completed":
		return true
	}
	return false
}

func singular(kind string) string {
	return strings.TrimSuffix(kind, "s")
}

package extract

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestCommandsPlainJSON(t *testing.T) {
	raw := `{"commands": [{"cmd": "kubectl get pods -n demo", "reason": "list pods"}]}`
	got, err := Commands(raw)
	if err != nil {
		t.Fatalf("Commands: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d commands, want 1", len(got))
	}
	if got[0].Command != "kubectl get pods -n demo" {
		t.Errorf("command = %q", got[0].Command)
	}
}

func TestCommandsMarkdownFence(t *testing.T) {
	raw := "Here you go:\n```json\n{\"commands\": [{\"cmd\": \"kubectl get events -n demo\", \"reason\": \"recent events\"}]}\n```\nLet me know if you need more."
	got, err := Commands(raw)
	if err != nil {
		t.Fatalf("Commands: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d commands, want 1", len(got))
	}
}

func TestCommandsTrailingComma(t *testing.T) {
	raw := `{"commands": [{"cmd": "x", "reason": "y"},] }`
	got, err := Commands(raw)
	if err != nil {
		t.Fatalf("Commands: %v", err)
	}
	if len(got) != 1 || got[0].Command != "x" {
		t.Fatalf("got %+v, want single command x", got)
	}
}

func TestCommandsTruncatedGeneration(t *testing.T) {
	// Token-limit cutoff mid-object: the repair closes the structure, but the
	// surviving element has no reason field and is dropped.
	raw := `{"commands": [{"cmd": "x"`
	_, err := Commands(raw)
	if !errors.Is(err, ErrNoValidCommands) {
		t.Fatalf("err = %v, want ErrNoValidCommands", err)
	}
}

func TestCommandsTruncatedButSalvageable(t *testing.T) {
	raw := `{"commands": [{"cmd": "kubectl get pods -n demo", "reason": "list"}, {"cmd": "kubectl get ev`
	got, err := Commands(raw)
	if err != nil {
		t.Fatalf("Commands: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d commands, want the 1 complete element", len(got))
	}
}

func TestCommandsComments(t *testing.T) {
	raw := `{
  // discovery phase
  "commands": [
    {"cmd": "kubectl get pods -n demo", "reason": "list pods"} /* only one */
  ]
}`
	got, err := Commands(raw)
	if err != nil {
		t.Fatalf("Commands: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d commands, want 1", len(got))
	}
}

func TestCommandsCommentMarkerInsideString(t *testing.T) {
	raw := `{"commands": [{"cmd": "curl https://registry.example/v2/", "reason": "probe registry"}]}`
	got, err := Commands(raw)
	if err != nil {
		t.Fatalf("Commands: %v", err)
	}
	if !strings.Contains(got[0].Command, "https://registry.example/v2/") {
		t.Errorf("URL mangled: %q", got[0].Command)
	}
}

func TestCommandsTrailingProseIgnored(t *testing.T) {
	raw := `{"commands": [{"cmd": "kubectl get pods", "reason": "list"}]} Note: {this} is commentary.`
	got, err := Commands(raw)
	if err != nil {
		t.Fatalf("Commands: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d commands, want 1", len(got))
	}
}

func TestCommandsControlCharsInStrings(t *testing.T) {
	raw := "{\"commands\": [{\"cmd\": \"kubectl get\x01pods\", \"reason\": \"list\npods\"}]}"
	got, err := Commands(raw)
	if err != nil {
		t.Fatalf("Commands: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d commands, want 1", len(got))
	}
}

func TestCommandsNoObject(t *testing.T) {
	_, err := Commands("I cannot help with that.")
	if !errors.Is(err, ErrNoObject) {
		t.Fatalf("err = %v, want ErrNoObject", err)
	}
}

func TestCommandsDropsIncompleteElements(t *testing.T) {
	raw := `{"commands": [
    {"cmd": "kubectl get pods", "reason": "list"},
    {"cmd": "kubectl get events"},
    {"reason": "orphan rationale"},
    {"cmd": "", "reason": "empty"}
  ]}`
	got, err := Commands(raw)
	if err != nil {
		t.Fatalf("Commands: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d commands, want 1 (partial success)", len(got))
	}
}

func TestScreenerPlaceholders(t *testing.T) {
	s := NewScreener(nil)

	cases := []struct {
		command string
		flagged bool
	}{
		{"kubectl describe pod <pod-name> -n demo", true},
		{"kubectl logs {POD} -n demo", true},
		{"kubectl logs $POD_NAME -n demo", true},
		{"kubectl logs ${POD} -n demo", true},
		{"kubectl logs POD_NAME -n demo", true},
		{"kubectl get pods -n demo --field-selector=status.phase!=Running", false},
		{"kubectl get pods -n demo | grep CrashLoopBackOff", false},
		{"kubectl get events -n demo --field-selector=type=Warning", false},
		{"kubectl describe pod payments-7f9c -n demo", false},
	}
	for _, tc := range cases {
		got, token := s.HasPlaceholder(tc.command)
		if got != tc.flagged {
			t.Errorf("HasPlaceholder(%q) = %v (token %q), want %v", tc.command, got, token, tc.flagged)
		}
	}
}

// Property check from the engine's safety contract: injected placeholder
// tokens in any position must be caught.
func TestScreenerInjectedTokens(t *testing.T) {
	s := NewScreener(nil)
	bases := []string{
		"kubectl describe pod %s -n demo",
		"kubectl logs %s -n demo --tail=50",
		"kubectl get pods -l app=%s",
	}
	tokens := []string{"<name>", "{VAR}", "$VAR", "${VAR}", "<pod-name>", "{namespace}"}
	for _, base := range bases {
		for _, tok := range tokens {
			cmd := fmt.Sprintf(base, tok)
			if ok, _ := s.HasPlaceholder(cmd); !ok {
				t.Errorf("placeholder %q not caught in %q", tok, cmd)
			}
		}
	}
}

func TestScreenerVocabularyIsConfigurable(t *testing.T) {
	s := NewScreener([]string{"Degraded"})
	if ok, _ := s.HasPlaceholder("kubectl get apps --field-selector=status.phase=<Degraded>"); ok {
		t.Error("whitelisted vocabulary token flagged as placeholder")
	}
	// Default vocabulary no longer applies once overridden.
	if ok, _ := s.HasPlaceholder("kubectl get pods -o template={Running}"); !ok {
		t.Error("non-whitelisted token should be flagged under custom vocabulary")
	}
}

func TestScreenSplitsBatch(t *testing.T) {
	s := NewScreener(nil)
	in := []CandidateCommand{
		{Command: "kubectl get pods -n demo", Rationale: "list"},
		{Command: "kubectl logs <pod> -n demo", Rationale: "logs"},
	}
	clean, rejected := s.Screen(in)
	if len(clean) != 1 || len(rejected) != 1 {
		t.Fatalf("clean=%d rejected=%d, want 1/1", len(clean), len(rejected))
	}
}

func TestResourcesPodTable(t *testing.T) {
	findings := []Finding{
		{Command: "kubectl get pods -n demo", Stdout: "NAME    READY   STATUS             RESTARTS   AGE\n" +
			"api-1   0/1     CrashLoopBackOff   12         1h\n" +
			"api-2   1/1     Running            0          1h\n"},
	}
	got := Resources(findings)
	if len(got) != 1 {
		t.Fatalf("got %d resources, want 1 (healthy pod filtered)", len(got))
	}
	if got[0].Name != "api-1" || got[0].Kind != "pod" || got[0].Status != "CrashLoopBackOff" {
		t.Errorf("resource = %+v", got[0])
	}
}

func TestResourcesCompositeKindsPassThrough(t *testing.T) {
	findings := []Finding{
		{Command: "kubectl get deployments -n demo", Stdout: "NAME   READY   UP-TO-DATE   AVAILABLE   AGE\n" +
			"web    1/1     1            1           2d\n"},
	}
	got := Resources(findings)
	if len(got) != 1 {
		t.Fatalf("got %d resources, want 1 (composite kinds unfiltered)", len(got))
	}
	if got[0].Kind != "deployment" || !got[0].ManagesPods() {
		t.Errorf("resource = %+v", got[0])
	}
}

func TestResourcesHeaderOnly(t *testing.T) {
	findings := []Finding{
		{Command: "kubectl get pods -n demo", Stdout: "NAME READY STATUS RESTARTS AGE\n"},
	}
	if got := Resources(findings); len(got) != 0 {
		t.Fatalf("got %d resources from header-only output, want 0", len(got))
	}
}

func TestResourcesIgnoresNonGetCommands(t *testing.T) {
	findings := []Finding{
		{Command: "kubectl describe pod api-1 -n demo", Stdout: "Name: api-1\nStatus: Running\n"},
	}
	if got := Resources(findings); len(got) != 0 {
		t.Fatalf("got %d resources from describe output, want 0", len(got))
	}
}

// Discovery order must be a pure function of the findings: execution
// order of the commands, with abnormal pods ranked ahead of event rows
// and owner resources.
func TestResourcesDeterministicOrder(t *testing.T) {
	findings := []Finding{
		{Command: "kubectl get events -n demo", Stdout: "LAST SEEN   TYPE      REASON    OBJECT\n" +
			"5m          Warning   BackOff   pod/pod-a\n"},
		{Command: "kubectl get deployments -n demo", Stdout: "NAME   READY   UP-TO-DATE   AVAILABLE   AGE\n" +
			"web    0/1     1            0           2d\n"},
		{Command: "kubectl get pods -n demo", Stdout: "NAME    READY   STATUS             RESTARTS   AGE\n" +
			"pod-a   0/1     CrashLoopBackOff   9          1h\n"},
	}

	want := []Resource{
		{Kind: "pod", Name: "pod-a", Status: "CrashLoopBackOff"},
		{Kind: "event", Name: "5m", Status: "BackOff"},
		{Kind: "deployment", Name: "web", Status: "1"},
	}

	for run := 0; run < 50; run++ {
		got := Resources(findings)
		if len(got) != len(want) {
			t.Fatalf("run %d: got %d resources, want %d", run, len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("run %d: resource[%d] = %+v, want %+v", run, i, got[i], want[i])
			}
		}
	}
}

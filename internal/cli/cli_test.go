package cli

import (
	"bytes"
	"strings"
	"testing"
	_ "time/tzdata"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version should succeed: %v", err)
	}
	if !strings.Contains(out, "version: dev") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestReplayRejectsBadTimestamp(t *testing.T) {
	if _, err := execute(t, "replay", "--at", "yesterday", "--dry-run"); err == nil {
		t.Fatal("invalid --at should fail")
	}
}

func TestShowRejectsNonPositiveLimit(t *testing.T) {
	if _, err := execute(t, "show", "--limit", "0"); err == nil {
		t.Fatal("--limit 0 should fail")
	}
}

func TestRootHelpDescribesAlerting(t *testing.T) {
	out, err := execute(t, "--help")
	if err != nil {
		t.Fatalf("help should succeed: %v", err)
	}
	for _, want := range []string{"option chain", "threshold_pct", "trading day", "--symbols"} {
		if !strings.Contains(out, want) {
			t.Fatalf("help missing %q:\n%s", want, out)
		}
	}
}

package testutil

import (
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

var updateGolden = flag.Bool("update", false, "rewrite golden files with current output")

// AssertGolden compares actual against testdata/<name>.golden relative to
// the test's working directory. Running the package tests with -update
// rewrites the file instead of comparing.
func AssertGolden(t *testing.T, name string, actual []byte) {
	t.Helper()

	path := filepath.Join("testdata", name+".golden")
	if *updateGolden {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("creating golden dir: %v", err)
		}
		if err := os.WriteFile(path, actual, 0o644); err != nil {
			t.Fatalf("writing golden file %s: %v", path, err)
		}
		t.Logf("rewrote %s", path)
		return
	}

	want, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading golden file %s (run with -update to create): %v", path, err)
	}
	if got, want := strings.TrimRight(string(actual), "\n"), strings.TrimRight(string(want), "\n"); got != want {
		t.Errorf("%s mismatch:\n--- want ---\n%s\n--- got ---\n%s", path, want, got)
	}
}

// AssertGoldenJSON renders v as indented JSON, applies scrub so
// run-dependent values compare stably, and checks it against the named
// golden file. A nil scrub compares the JSON verbatim.
func AssertGoldenJSON(t *testing.T, name string, v any, scrub func(string) string) {
	t.Helper()

	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatalf("marshaling %s: %v", name, err)
	}
	out := string(raw)
	if scrub != nil {
		out = scrub(out)
	}
	AssertGolden(t, name, []byte(out))
}

// Scrubbers replace values that change between runs (object IDs, task
// UUIDs, wall-clock fields, workspace paths) with stable markers so
// golden files survive re-execution against live repositories.

var (
	commitRE    = regexp.MustCompile(`\b[0-9a-f]{40}\b`)
	uuidRE      = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	timestampRE = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})`)
	durationRE  = regexp.MustCompile(`\b\d+(\.\d+)?(ns|µs|us|ms|s|m|h)\b`)
)

// ScrubCommits replaces full 40-hex object names with [COMMIT].
func ScrubCommits(s string) string {
	return commitRE.ReplaceAllString(s, "[COMMIT]")
}

// ScrubTaskIDs replaces UUID-shaped task and workspace IDs with [ID].
func ScrubTaskIDs(s string) string {
	return uuidRE.ReplaceAllString(s, "[ID]")
}

// ScrubTimes replaces RFC 3339 timestamps with [TIME].
func ScrubTimes(s string) string {
	return timestampRE.ReplaceAllString(s, "[TIME]")
}

// ScrubDurations replaces duration literals with [ELAPSED].
func ScrubDurations(s string) string {
	return durationRE.ReplaceAllString(s, "[ELAPSED]")
}

// ScrubWorkdir replaces a concrete workspace directory with [WORKSPACE].
func ScrubWorkdir(s, dir string) string {
	return strings.ReplaceAll(s, dir, "[WORKSPACE]")
}

// ScrubVolatile chains the scrubbers that apply to every result payload.
func ScrubVolatile(s string) string {
	return ScrubTimes(ScrubTaskIDs(ScrubCommits(s)))
}

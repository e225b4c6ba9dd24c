package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"

	"github.com/instantcocoa/perftrace/cli/internal/output"
	"github.com/instantcocoa/perftrace/pkg/database"
	"github.com/instantcocoa/perftrace/pkg/testutil"
	"github.com/instantcocoa/perftrace/services/timing"
)

const resourceCapture = `[
  {"name": "https://bpsso.lenovo.com/webauthn/login", "startTime": 1000, "duration": 120.5},
  {"name": "https://cdn.example.com/app.js", "startTime": 1200, "duration": 800},
  {"name": "https://cdn.example.com/broken.css", "startTime": "soon", "duration": 10}
]`

const xhrCapture = `[
  {"name": "https://eu4-live.inside-graph.com/signalr/start", "startTime": 4500, "duration": 15}
]`

// writeCaptures writes the resource and xhr captures and returns their paths.
func writeCaptures(t *testing.T) (string, string) {
	t.Helper()
	return testutil.WriteFile(t, "resource.json", []byte(resourceCapture)),
		testutil.WriteFile(t, "xhr.json", []byte(xhrCapture))
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	for _, key := range []string{"PERFTRACE_SERVER_ADDR", "PERFTRACE_DEFINITIONS", "PERFTRACE_FORMAT", "PERFTRACE_VERBOSE"} {
		t.Setenv(key, "")
	}
	if os.Getenv("PERFTRACE_HISTORY_DB") == "" {
		t.Setenv("PERFTRACE_HISTORY_DB", filepath.Join(t.TempDir(), "history.db"))
	}

	var stdout, stderr bytes.Buffer
	origOut, origErr := output.Stdout, output.Stderr
	output.Stdout, output.Stderr = &stdout, &stderr
	defer func() { output.Stdout, output.Stderr = origOut, origErr }()

	root := NewRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()

	return stdout.String(), stderr.String(), err
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute(t, "version")
	testutil.RequireNoError(t, err)
	if stdout != "perftrace version "+Version+"\n" {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestCorrelate(t *testing.T) {
	resource, xhr := writeCaptures(t)
	exportPath := filepath.Join(t.TempDir(), "timings.csv")

	stdout, stderr, err := execute(t, "correlate", resource, xhr, "--preset", "login", "--export", exportPath)
	testutil.RequireNoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) < 2 || !strings.HasPrefix(lines[0], "Label") {
		t.Fatalf("stdout = %q", stdout)
	}
	for _, want := range []string{"SSO login → realtime start", "00:00:01.000", "00:00:04.500", "3.500", "Matched"} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("result row %q lacks %q", lines[1], want)
		}
	}
	if !strings.Contains(stderr, "skipped 1 malformed records") {
		t.Errorf("stderr = %q, want a skipped-records warning", stderr)
	}

	data, err := os.ReadFile(exportPath)
	testutil.RequireNoError(t, err, "read export")
	if !strings.Contains(string(data), "00:00:01.000,00:00:04.500,3.500,Matched") {
		t.Errorf("export = %q", data)
	}
}

func TestCorrelate_JSON(t *testing.T) {
	resource, xhr := writeCaptures(t)

	stdout, _, err := execute(t, "correlate", resource, xhr, "-o", "json",
		"--start", "bpsso.lenovo.com/webauthn", "--end", "/signalr/start", "--end", "/api/navigation")
	testutil.RequireNoError(t, err)

	var results []timing.CorrelationResult
	testutil.RequireNoError(t, json.Unmarshal([]byte(stdout), &results), "decode output")

	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if !results[0].Matched() || results[0].DurationSeconds != 3.5 {
		t.Errorf("results[0] = %+v, want matched after 3.5s", results[0])
	}
	if results[1].Matched() {
		t.Errorf("results[1] = %+v, want unmatched", results[1])
	}
}

func TestCorrelate_NoMatchSkipsExport(t *testing.T) {
	resource, _ := writeCaptures(t)
	exportPath := filepath.Join(t.TempDir(), "timings.xlsx")

	_, stderr, err := execute(t, "correlate", resource, "--preset", "login", "--export", exportPath)
	testutil.RequireNoError(t, err)

	if !strings.Contains(stderr, "No data found") {
		t.Errorf("stderr = %q, want a no-data warning", stderr)
	}
	if _, err := os.Stat(exportPath); !os.IsNotExist(err) {
		t.Errorf("export file exists (stat error %v), want it skipped", err)
	}
}

func TestCorrelate_EmptyCapture(t *testing.T) {
	empty := testutil.WriteFile(t, "empty.json", []byte("[]"))

	stdout, stderr, err := execute(t, "correlate", empty, "--preset", "login")
	testutil.RequireNoError(t, err)

	if !strings.Contains(stderr, "No data found") {
		t.Errorf("stderr = %q, want a no-data warning", stderr)
	}
	if !strings.Contains(stdout, "Unmatched") {
		t.Errorf("stdout = %q, want unmatched rows", stdout)
	}
}

func TestCorrelate_NoMatchWarnsInJSON(t *testing.T) {
	resource, _ := writeCaptures(t)

	stdout, stderr, err := execute(t, "correlate", resource, "--preset", "login", "-o", "json")
	testutil.RequireNoError(t, err)

	if !strings.Contains(stderr, "No data found") {
		t.Errorf("stderr = %q, want a no-data warning", stderr)
	}
	var results []timing.CorrelationResult
	if err := json.Unmarshal([]byte(stdout), &results); err != nil {
		t.Fatalf("stdout is not JSON: %v\n%s", err, stdout)
	}
	for _, r := range results {
		if r.Status != timing.StatusUnmatched {
			t.Errorf("%s status = %v, want %v", r.Label, r.Status, timing.StatusUnmatched)
		}
	}
}

func TestCorrelate_Definitions(t *testing.T) {
	resource, _ := writeCaptures(t)
	defsFile := testutil.WriteFile(t, "intervals.yaml", []byte(`
intervals:
  - label: bad
    start: ""
    end: /signalr/start
`))

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"none", nil, "no interval definitions"},
		{"start without end", []string{"--start", "a"}, "--start and --end must be given together"},
		{"unknown preset", []string{"--preset", "checkout"}, `unknown preset "checkout"`},
		{"invalid file", []string{"-d", defsFile}, "empty start pattern"},
		{"missing file", []string{"-d", filepath.Join(t.TempDir(), "missing.yaml")}, "missing.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"correlate", resource}, tt.args...)
			_, _, err := execute(t, args...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestRank(t *testing.T) {
	resource, xhr := writeCaptures(t)

	stdout, _, err := execute(t, "rank", resource, xhr, "-n", "2", "-o", "json")
	testutil.RequireNoError(t, err)

	var ranked []timing.TraceEntry
	testutil.RequireNoError(t, json.Unmarshal([]byte(stdout), &ranked), "decode output")

	want := []string{"https://cdn.example.com/app.js", "https://bpsso.lenovo.com/webauthn/login"}
	if len(ranked) != len(want) {
		t.Fatalf("len(ranked) = %d, want %d", len(ranked), len(want))
	}
	for i, name := range want {
		if ranked[i].Name != name {
			t.Errorf("ranked[%d] = %s, want %s", i, ranked[i].Name, name)
		}
	}

	if _, _, err := execute(t, "rank", resource, "-n", "-1"); err == nil {
		t.Error("rank -n -1 error = nil, want error")
	}
}

func TestNormalize(t *testing.T) {
	resource, xhr := writeCaptures(t)
	out := filepath.Join(t.TempDir(), "session.json")

	_, _, err := execute(t, "normalize", resource, xhr, "--out", out)
	testutil.RequireNoError(t, err)

	jsonData, err := os.ReadFile(out)
	testutil.RequireNoError(t, err, "read .json")
	harData, err := os.ReadFile(strings.TrimSuffix(out, ".json") + ".har")
	testutil.RequireNoError(t, err, "read .har")

	if !bytes.Equal(jsonData, harData) {
		t.Error(".json and .har contents differ")
	}
	entries, skipped, err := timing.LoadTraceFile(out)
	testutil.RequireNoError(t, err)
	if len(entries) != 3 || len(skipped) != 0 {
		t.Errorf("reloaded %d entries, %d skipped; want 3, 0", len(entries), len(skipped))
	}

	if _, _, err := execute(t, "normalize", resource); err == nil {
		t.Error("normalize without --out error = nil, want error")
	}
}

func TestURLs(t *testing.T) {
	resource, xhr := writeCaptures(t)

	stdout, _, err := execute(t, "urls", resource, xhr)
	testutil.RequireNoError(t, err)

	want := "https://bpsso.lenovo.com/webauthn/login\n" +
		"https://cdn.example.com/app.js\n" +
		"https://eu4-live.inside-graph.com/signalr/start\n"
	if stdout != want {
		t.Errorf("stdout = %q, want %q", stdout, want)
	}

	out := filepath.Join(t.TempDir(), "all_urls.txt")
	_, _, err = execute(t, "urls", resource, xhr, "-w", out)
	testutil.RequireNoError(t, err)
	data, err := os.ReadFile(out)
	testutil.RequireNoError(t, err)
	testutil.RequireEqual(t, want, string(data))
}

func TestPresets(t *testing.T) {
	stdout, _, err := execute(t, "presets", "-o", "json")
	testutil.RequireNoError(t, err)

	var sets map[string][]timing.IntervalDefinition
	testutil.RequireNoError(t, json.Unmarshal([]byte(stdout), &sets), "decode output")

	if len(sets["login"]) != 1 || len(sets["navigation"]) != 2 {
		t.Errorf("presets = %v", sets)
	}
	if sets["navigation"][1].Label != "lenovopartnerhub.com → /api/navigation" {
		t.Errorf("default label = %q", sets["navigation"][1].Label)
	}
}

func TestHistory(t *testing.T) {
	historyPath := filepath.Join(t.TempDir(), "history.db")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := database.Connect(ctx, database.SQLiteConfig(historyPath))
	if err != nil {
		t.Skipf("SQLite not available: %v", err)
	}
	db.Close()
	t.Setenv("PERFTRACE_HISTORY_DB", historyPath)

	resource, xhr := writeCaptures(t)
	_, _, err = execute(t, "correlate", resource, xhr, "--preset", "login", "--save", "--name", "nightly")
	testutil.RequireNoError(t, err, "correlate --save")

	stdout, _, err := execute(t, "history", "list", "-o", "json")
	testutil.RequireNoError(t, err, "history list")

	var page timing.ListResult
	testutil.RequireNoError(t, json.Unmarshal([]byte(stdout), &page), "decode list")
	if page.Total != 1 || len(page.Analyses) != 1 {
		t.Fatalf("history has %d analyses (total %d), want 1", len(page.Analyses), page.Total)
	}
	if page.Analyses[0].Name != "nightly" {
		t.Errorf("Name = %q, want nightly", page.Analyses[0].Name)
	}

	stdout, _, err = execute(t, "history", "show", page.Analyses[0].ID, "--kind", "trace")
	testutil.RequireNoError(t, err, "history show")
	if !strings.Contains(stdout, "https://cdn.example.com/app.js") {
		t.Errorf("trace report = %q", stdout)
	}

	if _, _, err := execute(t, "history", "show", "missing"); err == nil {
		t.Error("history show missing error = nil, want error")
	}
}

func TestRemote(t *testing.T) {
	svc := timing.NewService(timing.NewMemoryStore(), testutil.DiscardLogger())
	ts := testutil.NewTestServer()
	timing.NewHandler(testutil.DiscardLogger(), svc).Register(ts.Server)
	ts.Start(t)
	conn := ts.Dial(t)

	origDial := dialServer
	dialServer = func(string) (grpc.ClientConnInterface, func() error, error) {
		return conn, func() error { return nil }, nil
	}
	defer func() { dialServer = origDial }()

	resource, xhr := writeCaptures(t)
	stdout, _, err := execute(t, "remote", "analyze", resource, xhr, "--preset", "login", "--name", "remote run")
	testutil.RequireNoError(t, err, "remote analyze")
	if !strings.Contains(stdout, "3.500") {
		t.Errorf("remote analyze output = %q", stdout)
	}

	stdout, _, err = execute(t, "remote", "list", "-o", "json")
	testutil.RequireNoError(t, err, "remote list")
	var page timing.ListResult
	testutil.RequireNoError(t, json.Unmarshal([]byte(stdout), &page), "decode list")
	if page.Total != 1 || page.Analyses[0].Name != "remote run" {
		t.Fatalf("remote list = %+v", page)
	}

	exportPath := filepath.Join(t.TempDir(), "report.jsonl")
	_, _, err = execute(t, "remote", "get", page.Analyses[0].ID, "--export", exportPath)
	testutil.RequireNoError(t, err, "remote get")
	data, err := os.ReadFile(exportPath)
	testutil.RequireNoError(t, err)
	if n := strings.Count(string(data), "\n"); n != 1 {
		t.Errorf("exported %d lines, want 1", n)
	}

	_, _, err = execute(t, "remote", "get", "missing")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("remote get missing error = %v, want not found", err)
	}
}

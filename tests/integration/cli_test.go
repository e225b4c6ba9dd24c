//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

var (
	cliBinary     string
	cliBinaryOnce sync.Once
	cliBuildErr   error
)

// ensureCLIBinary builds the CLI binary once for all tests
func ensureCLIBinary(t *testing.T) string {
	t.Helper()
	cliBinaryOnce.Do(func() {
		projectRoot := filepath.Join("..", "..")

		existingBinary := filepath.Join(projectRoot, "bin", "perftrace")
		if _, err := os.Stat(existingBinary); err == nil {
			cliBinary = existingBinary
			return
		}

		tmpDir, err := os.MkdirTemp("", "perftrace-cli-test")
		if err != nil {
			cliBuildErr = err
			return
		}

		cliBinary = filepath.Join(tmpDir, "perftrace")
		cmd := exec.Command("go", "build", "-o", cliBinary, "./cli")
		cmd.Dir = projectRoot
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			cliBuildErr = err
			return
		}
	})

	if cliBuildErr != nil {
		t.Fatalf("Failed to build CLI: %v", cliBuildErr)
	}
	return cliBinary
}

// runCLI executes the CLI with given arguments and returns stdout, stderr, and error
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	ensureCLIBinary(t)
	cmd := exec.Command(cliBinary, args...)

	cmd.Env = append(os.Environ(),
		"PERFTRACE_SERVER_ADDR="+serverAddr(),
		"PERFTRACE_HISTORY_DB="+filepath.Join(t.TempDir(), "history.db"),
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// mustRunCLI runs CLI and fails test on error
func mustRunCLI(t *testing.T, args ...string) string {
	t.Helper()
	stdout, stderr, err := runCLI(t, args...)
	if err != nil {
		t.Fatalf("CLI failed: %v\nstdout: %s\nstderr: %s", err, stdout, stderr)
	}
	return stdout
}

func writeCapture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.json")
	if err := os.WriteFile(path, []byte(loginCapture), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCLI_Version(t *testing.T) {
	stdout := mustRunCLI(t, "version")
	if !strings.Contains(stdout, "perftrace version") {
		t.Errorf("Expected version output, got %q", stdout)
	}
}

func TestCLI_Help(t *testing.T) {
	stdout := mustRunCLI(t, "--help")
	for _, cmd := range []string{"correlate", "rank", "normalize", "urls", "watch", "history", "remote", "presets"} {
		if !strings.Contains(stdout, cmd) {
			t.Errorf("Expected %q in help output", cmd)
		}
	}
}

func TestCLI_Correlate(t *testing.T) {
	capture := writeCapture(t)
	exportPath := filepath.Join(t.TempDir(), "timings.xlsx")

	stdout := mustRunCLI(t, "correlate", capture, "--preset", "login", "--export", exportPath)
	if !strings.Contains(stdout, "3.500") {
		t.Errorf("Expected the login interval in output, got:\n%s", stdout)
	}
	if info, err := os.Stat(exportPath); err != nil || info.Size() == 0 {
		t.Errorf("Expected a non-empty spreadsheet at %s (err %v)", exportPath, err)
	}
}

func TestCLI_CorrelateFailsWithoutDefinitions(t *testing.T) {
	_, stderr, err := runCLI(t, "correlate", writeCapture(t))
	if err == nil {
		t.Fatal("Expected an error without interval definitions")
	}
	if !strings.Contains(stderr, "no interval definitions") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestCLI_Remote(t *testing.T) {
	capture := writeCapture(t)

	mustRunCLI(t, "remote", "analyze", capture, "--preset", "login", "--name", "cli-integration")

	stdout := mustRunCLI(t, "remote", "list", "--name", "cli-integration", "-o", "json")
	var page struct {
		Analyses []struct {
			ID string `json:"id"`
		} `json:"analyses"`
		Total int `json:"total"`
	}
	if err := json.Unmarshal([]byte(stdout), &page); err != nil {
		t.Fatalf("Failed to decode list output: %v\n%s", err, stdout)
	}
	if page.Total == 0 {
		t.Fatal("Expected the submitted analysis in the list")
	}

	stdout = mustRunCLI(t, "remote", "get", page.Analyses[0].ID, "--kind", "trace")
	if !strings.Contains(stdout, "bpsso.lenovo.com") {
		t.Errorf("Expected the trace report, got:\n%s", stdout)
	}
}

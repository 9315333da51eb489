package tsugite

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeManifest(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestProcessFilesWritesPlans(t *testing.T) {
	t.Parallel()

	path := writeManifest(t, "app.yaml", sampleManifest)

	processor := NewProcessor()
	if err := processor.ProcessFiles(context.Background(), []string{path}); err != nil {
		t.Fatalf("process: %v", err)
	}

	output := outputFileName(path)
	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}

	expected := "root API: svc.API [threadSafe]\n" +
		"  service = new *svc.Service(config)\n" +
		"  return service\n"
	if string(data) != expected {
		t.Errorf("plan output mismatch:\ngot:\n%s\nwant:\n%s", data, expected)
	}
}

func TestProcessFilesDryRun(t *testing.T) {
	t.Parallel()

	path := writeManifest(t, "app.yaml", sampleManifest)

	processor := NewProcessor()
	processor.DryRun = true
	if err := processor.ProcessFiles(context.Background(), []string{path}); err != nil {
		t.Fatalf("process: %v", err)
	}

	if _, err := os.Stat(outputFileName(path)); !os.IsNotExist(err) {
		t.Error("dry run must not write output files")
	}
}

func TestProcessFilesReportsMissingFile(t *testing.T) {
	t.Parallel()

	processor := NewProcessor()
	err := processor.ProcessFiles(context.Background(), []string{filepath.Join(t.TempDir(), "absent.yaml")})
	if err == nil {
		t.Fatal("expected error for missing manifest")
	}
}

const brokenRootManifest = `
composition: App
types:
  - type: "*svc.Service"
    assignableTo: [svc.API]
  - type: "*svc.Admin"
    assignableTo: [svc.Admin]
setups:
  - name: base
    bindings:
      - contracts:
          - type: svc.API
        impl:
          type: "*svc.Service"
      - contracts:
          - type: svc.Admin
        impl:
          type: "*svc.Admin"
          params:
            - name: missing
              type: svc.Missing
    roots:
      - name: API
        type: svc.API
      - name: Admin
        type: svc.Admin
`

func TestBuildCompositionIsolatesRootFailures(t *testing.T) {
	t.Parallel()

	path := writeManifest(t, "broken.yaml", brokenRootManifest)
	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	result, err := BuildComposition(context.Background(), m, nil)
	if err != nil {
		t.Fatalf("build composition: %v", err)
	}

	if len(result.Plans) != 1 {
		t.Fatalf("plans = %d, want the healthy root to survive", len(result.Plans))
	}
	if result.Plans[0].Root.Name != "API" {
		t.Errorf("surviving root = %s, want API", result.Plans[0].Root.Name)
	}

	if len(result.Errors) != 1 {
		t.Fatalf("errors = %d, want 1", len(result.Errors))
	}
	if !strings.Contains(result.Errors[0].Error(), "Admin") {
		t.Errorf("error %q does not name the failing root", result.Errors[0])
	}

	var resolveDiags int
	for _, d := range result.Diagnostics.Reports() {
		if d.Code == CodeDependencyNotResolved {
			resolveDiags++
		}
	}
	if resolveDiags != 1 {
		t.Errorf("DependencyNotResolved diagnostics = %d, want 1", resolveDiags)
	}
}

func TestOutputFileName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "yaml extension", input: "app.yaml", expected: "app.plan.txt"},
		{name: "yml extension", input: "dir/app.yml", expected: "dir/app.plan.txt"},
		{name: "no extension", input: "app", expected: "app.plan.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := outputFileName(tt.input); got != tt.expected {
				t.Errorf("outputFileName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

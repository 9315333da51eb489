package tsugite

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"
)

// update flag for regenerating golden files
var update = flag.Bool("update", false, "update golden files")

// TestGoldenPlans runs golden file tests for plan emission.
func TestGoldenPlans(t *testing.T) {
	testdataDir := "testdata"

	entries, err := os.ReadDir(testdataDir)
	if err != nil {
		t.Fatalf("failed to read testdata directory: %v", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		testName := entry.Name()
		t.Run(testName, func(t *testing.T) {
			runGoldenTest(t, testdataDir, testName)
		})
	}
}

func runGoldenTest(t *testing.T, testdataDir, testName string) {
	t.Helper()

	srcDir := filepath.Join(testdataDir, testName)

	manifestPath := filepath.Join(srcDir, "manifest.yaml")
	if _, err := os.Stat(manifestPath); os.IsNotExist(err) {
		t.Fatalf("test case %s: missing manifest.yaml", testName)
	}

	generatedPath := outputFileName(manifestPath)
	if !*update {
		defer func() {
			_ = os.Remove(generatedPath)
		}()
	}

	processor := NewProcessor()
	if err := processor.ProcessFiles(context.Background(), []string{manifestPath}); err != nil {
		t.Fatalf("test case %s: planning failed: %v", testName, err)
	}

	actual, err := os.ReadFile(generatedPath)
	if err != nil {
		t.Fatalf("test case %s: failed to read plan output: %v", testName, err)
	}

	expectedPath := filepath.Join(srcDir, "expected.txt")
	if *update {
		if writeErr := os.WriteFile(expectedPath, actual, 0644); writeErr != nil {
			t.Fatalf("failed to update golden file: %v", writeErr)
		}
		_ = os.Remove(generatedPath)
		t.Logf("updated golden file: %s", expectedPath)
		return
	}

	expected, err := os.ReadFile(expectedPath)
	if err != nil {
		t.Fatalf("test case %s: failed to read golden file (run with -update to create): %v", testName, err)
	}

	if string(actual) != string(expected) {
		t.Errorf("test case %s: plan output does not match golden file\ngot:\n%s\nwant:\n%s",
			testName, actual, expected)
	}
}

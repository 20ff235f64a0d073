package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "instructoria ") || !strings.Contains(out, "lesson format v1") {
		t.Fatalf("output = %q", out)
	}
}

func TestLessonValidate(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte(`{"metadata":{"title":"x"},"moments":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "lesson", "validate", "../internal/lesson/testdata/two_activities.json")
	if err != nil {
		t.Fatalf("validate good file: %v\n%s", err, out)
	}
	if !strings.Contains(out, "✓") {
		t.Fatalf("output = %q", out)
	}

	out, err = run(t, "lesson", "validate", bad)
	if err == nil {
		t.Fatalf("expected failure, output = %q", out)
	}
	if !strings.Contains(out, "✗ "+bad) {
		t.Fatalf("output = %q", out)
	}
}

func TestLessonImportAndShow(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "test.db")
	t.Setenv("INSTRUCTORIA_LESSONS_DIR", filepath.Join(dir, "lessons"))

	out, err := run(t, "--db", db, "lesson", "import", "../internal/lesson/testdata/two_activities.json", "--id", "basics")
	if err != nil {
		t.Fatalf("import: %v\n%s", err, out)
	}
	if !strings.Contains(out, "as basics") {
		t.Fatalf("output = %q", out)
	}

	out, err = run(t, "--db", db, "lesson", "show", "basics")
	if err != nil {
		t.Fatalf("show: %v\n%s", err, out)
	}
	if !strings.Contains(out, "  1. ") {
		t.Fatalf("outline missing positions: %q", out)
	}
}

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunExitCodes(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("CATALOG_PROVIDER", "")
	t.Setenv("CINEVERSE_CONFIG", "")

	var stderr bytes.Buffer
	if code := run([]string{"cineverse", "details", "abc"}, &stderr); code != 1 {
		t.Fatalf("expected exit 1 for an invalid id, got %d", code)
	}
	if !strings.Contains(stderr.String(), "command failed") {
		t.Fatalf("expected the failure logged, got %q", stderr.String())
	}

	stderr.Reset()
	if code := run([]string{"cineverse", "search"}, &stderr); code != 1 {
		t.Fatalf("expected exit 1 for a missing query, got %d", code)
	}

	bad := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(bad, []byte("[catalog\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CINEVERSE_CONFIG", bad)
	stderr.Reset()
	if code := run([]string{"cineverse", "search", "alien"}, &stderr); code != 1 {
		t.Fatalf("expected exit 1 for a rejected config file, got %d", code)
	}
	if !strings.Contains(stderr.String(), "config file rejected") {
		t.Fatalf("expected the config error logged, got %q", stderr.String())
	}
}

package supervisor

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func writeExecutable(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\necho hi\n"), 0755); err != nil {
		t.Fatalf("write executable: %v", err)
	}
	return path
}

func TestResolveExecutable_EnvOverride(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix-style executable bit assumed")
	}
	dir := t.TempDir()
	bin := writeExecutable(t, dir, "custom-node")
	t.Setenv("FABSTIR_NODE_BIN", bin)

	got, err := resolveExecutable("fabstir-llm-node")
	if err != nil {
		t.Fatalf("resolveExecutable() error = %v", err)
	}
	if got != bin {
		resolved, _ := filepath.Abs(bin)
		if got != resolved {
			t.Errorf("resolveExecutable() = %q, want %q", got, bin)
		}
	}
}

func TestResolveExecutable_EnvOverrideMissingFile(t *testing.T) {
	t.Setenv("FABSTIR_NODE_BIN", filepath.Join(t.TempDir(), "does-not-exist"))
	if _, err := resolveExecutable("fabstir-llm-node"); err == nil {
		t.Fatal("expected error when FABSTIR_NODE_BIN points at a missing file")
	}
}

func TestResolveExecutable_WorkingDirectoryFallback(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix-style executable bit assumed")
	}
	t.Setenv("FABSTIR_NODE_BIN", "")

	dir := t.TempDir()
	origWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	defer os.Chdir(origWD)
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	writeExecutable(t, dir, "fabstir-llm-node")

	got, err := resolveExecutable("fabstir-llm-node")
	if err != nil {
		t.Fatalf("resolveExecutable() error = %v", err)
	}
	want, _ := filepath.Abs(filepath.Join(dir, "fabstir-llm-node"))
	if got != want {
		t.Errorf("resolveExecutable() = %q, want %q", got, want)
	}
}

func TestResolveExecutable_NotFound(t *testing.T) {
	t.Setenv("FABSTIR_NODE_BIN", "")
	t.Setenv("PATH", t.TempDir())
	dir := t.TempDir()
	origWD, _ := os.Getwd()
	defer os.Chdir(origWD)
	os.Chdir(dir)

	if _, err := resolveExecutable("definitely-not-a-real-binary"); err == nil {
		t.Fatal("expected error for unresolvable binary")
	}
}

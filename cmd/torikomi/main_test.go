package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, root string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	content := "source:\n  root: " + root + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "/srv/docs")

	cfg, resolved, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if resolved != path {
		t.Errorf("resolved path = %q, want %q", resolved, path)
	}
	if cfg.Source.Root != "/srv/docs" {
		t.Errorf("source root = %q", cfg.Source.Root)
	}
}

func TestLoadConfigFallsBackToCwd(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "/srv/docs")

	oldWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldWd) })
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if filepath.Base(resolved) != "config.yaml" || filepath.Dir(resolved) == filepath.Dir(defaultConfigPath) {
		t.Errorf("expected cwd fallback, resolved %q", resolved)
	}
	if cfg.Source.Root != "/srv/docs" {
		t.Errorf("source root = %q", cfg.Source.Root)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config")
	}
}

package osutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestUserHomeDirPrefersHOME(t *testing.T) {
	// not parallel because it messes with env vars
	t.Setenv("HOME", "/tmp/home-for-test")
	t.Setenv("USERPROFILE", "userProfile")

	got, err := UserHomeDir()
	if err != nil {
		t.Fatalf("UserHomeDir() error = %v", err)
	}
	if got != "/tmp/home-for-test" {
		t.Errorf("UserHomeDir() = %q, want %q", got, "/tmp/home-for-test")
	}
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/tmp/home-for-test")

	got, err := ExpandHome("~/gateway.cfg")
	if err != nil {
		t.Fatalf("ExpandHome(~/gateway.cfg) error = %v", err)
	}
	if want := filepath.Join("/tmp/home-for-test", "gateway.cfg"); got != want {
		t.Errorf("ExpandHome(~/gateway.cfg) = %q, want %q", got, want)
	}

	// Non-tilde paths pass through untouched.
	got, err = ExpandHome("relative/path")
	if err != nil || got != "relative/path" {
		t.Errorf("ExpandHome(relative/path) = %q, %v", got, err)
	}

	if _, err := ExpandHome("~other/path"); err == nil {
		t.Error("ExpandHome(~other/path) expected an error")
	}
}

func TestNormalizeFilePath(t *testing.T) {
	t.Setenv("BOOK_CFG_DIR", "/etc/the-book")

	got, err := NormalizeFilePath("$BOOK_CFG_DIR/web.cfg")
	if err != nil {
		t.Fatalf("NormalizeFilePath error = %v", err)
	}
	if got != "/etc/the-book/web.cfg" {
		t.Errorf("NormalizeFilePath = %q, want %q", got, "/etc/the-book/web.cfg")
	}

	if got, err := NormalizeFilePath(""); err != nil || got != "" {
		t.Errorf("NormalizeFilePath(\"\") = %q, %v", got, err)
	}

	got, err = NormalizeFilePath("relative.cfg")
	if err != nil {
		t.Fatalf("NormalizeFilePath(relative.cfg) error = %v", err)
	}
	if !filepath.IsAbs(got) || !strings.HasSuffix(got, "relative.cfg") {
		t.Errorf("NormalizeFilePath(relative.cfg) = %q, want absolute path", got)
	}
}

func TestNormalizeCommand(t *testing.T) {
	// A bare command that doesn't exist stays relative for PATH lookup.
	got, err := NormalizeCommand("curl")
	if err != nil || got != "curl" {
		t.Errorf("NormalizeCommand(curl) = %q, %v", got, err)
	}

	// An existing file becomes absolute.
	dir := t.TempDir()
	path := filepath.Join(dir, "tool.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	got, err = NormalizeCommand(path)
	if err != nil || got != path {
		t.Errorf("NormalizeCommand(%q) = %q, %v", path, got, err)
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "present")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if !FileExists(path) {
		t.Errorf("FileExists(%q) = false, want true", path)
	}
	if FileExists(filepath.Join(dir, "absent")) {
		t.Errorf("FileExists(absent) = true, want false")
	}
}

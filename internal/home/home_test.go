package home

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("with explicit path", func(t *testing.T) {
		dir, err := New("/tmp/test-promptlab")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dir.Path() != "/tmp/test-promptlab" {
			t.Errorf("expected path /tmp/test-promptlab, got %s", dir.Path())
		}
	})

	t.Run("with empty path uses default", func(t *testing.T) {
		dir, err := New("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, DefaultDirName)
		if dir.Path() != expected {
			t.Errorf("expected path %s, got %s", expected, dir.Path())
		}
	})
}

func TestDir_Paths(t *testing.T) {
	dir, _ := New("/tmp/test-promptlab")

	t.Run("DataPath", func(t *testing.T) {
		expected := "/tmp/test-promptlab/data"
		if dir.DataPath() != expected {
			t.Errorf("expected %s, got %s", expected, dir.DataPath())
		}
	})

	t.Run("ConfigPath", func(t *testing.T) {
		expected := "/tmp/test-promptlab/config.yaml"
		if dir.ConfigPath() != expected {
			t.Errorf("expected %s, got %s", expected, dir.ConfigPath())
		}
	})

	t.Run("DBPath", func(t *testing.T) {
		expected := "/tmp/test-promptlab/promptlab.db"
		if dir.DBPath() != expected {
			t.Errorf("expected %s, got %s", expected, dir.DBPath())
		}
	})
}

func TestDir_EnsureExists(t *testing.T) {
	// Use a temp directory
	tmpDir := t.TempDir()
	labDir := filepath.Join(tmpDir, "promptlab-test")

	dir, err := New(labDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Directory shouldn't exist yet
	if dir.Exists() {
		t.Error("directory should not exist before EnsureExists")
	}

	// Create it
	if err := dir.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists failed: %v", err)
	}

	// Now it should exist
	if !dir.Exists() {
		t.Error("directory should exist after EnsureExists")
	}

	// Data directory should also exist
	if _, err := os.Stat(dir.DataPath()); os.IsNotExist(err) {
		t.Error("data directory should exist after EnsureExists")
	}
}

func TestDir_ConfigExists(t *testing.T) {
	tmpDir := t.TempDir()
	dir, _ := New(tmpDir)

	// Config doesn't exist
	if dir.ConfigExists() {
		t.Error("config should not exist initially")
	}

	// Create a config file
	configPath := dir.ConfigPath()
	if err := os.WriteFile(configPath, []byte("test: true\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	// Now it should exist
	if !dir.ConfigExists() {
		t.Error("config should exist after creation")
	}
}

func TestDir_PID(t *testing.T) {
	t.Run("acquire and release", func(t *testing.T) {
		dir, _ := New(t.TempDir())

		if pid, err := dir.ReadPID(); err != nil || pid != 0 {
			t.Fatalf("ReadPID() = %d, %v; want 0, nil", pid, err)
		}
		if err := dir.AcquirePID(); err != nil {
			t.Fatalf("AcquirePID() error = %v", err)
		}
		if pid, _ := dir.ReadPID(); pid != os.Getpid() {
			t.Errorf("ReadPID() = %d, want %d", pid, os.Getpid())
		}
		// Re-acquiring from the same process is allowed.
		if err := dir.AcquirePID(); err != nil {
			t.Errorf("second AcquirePID() error = %v", err)
		}
		if err := dir.ReleasePID(); err != nil {
			t.Fatalf("ReleasePID() error = %v", err)
		}
		if _, err := os.Stat(dir.PIDPath()); !os.IsNotExist(err) {
			t.Error("pid file should be removed")
		}
	})

	t.Run("live process blocks", func(t *testing.T) {
		dir, _ := New(t.TempDir())
		writePID(t, dir, os.Getppid())

		if err := dir.AcquirePID(); !errors.Is(err, ErrServerRunning) {
			t.Errorf("AcquirePID() error = %v, want ErrServerRunning", err)
		}
		// Release leaves another process's file alone.
		if err := dir.ReleasePID(); err != nil {
			t.Fatal(err)
		}
		if pid, _ := dir.ReadPID(); pid != os.Getppid() {
			t.Errorf("foreign pid file removed or changed: %d", pid)
		}
	})

	t.Run("stale file is replaced", func(t *testing.T) {
		dir, _ := New(t.TempDir())
		writePID(t, dir, 2147483000)

		if err := dir.AcquirePID(); err != nil {
			t.Fatalf("AcquirePID() error = %v", err)
		}
		if pid, _ := dir.ReadPID(); pid != os.Getpid() {
			t.Errorf("ReadPID() = %d, want %d", pid, os.Getpid())
		}
	})

	t.Run("malformed file", func(t *testing.T) {
		dir, _ := New(t.TempDir())
		if err := os.WriteFile(dir.PIDPath(), []byte("not-a-pid"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := dir.ReadPID(); err == nil {
			t.Error("expected error for malformed pid file")
		}
	})
}

func writePID(t *testing.T, dir *Dir, pid int) {
	t.Helper()
	if err := os.WriteFile(dir.PIDPath(), []byte(strconv.Itoa(pid)), 0o644); err != nil {
		t.Fatal(err)
	}
}

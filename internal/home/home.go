// Package home manages the promptlab home directory (~/.promptlab).
package home

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const (
	// DefaultDirName is the default name for the promptlab home directory.
	DefaultDirName = ".promptlab"

	// DataDirName is the subdirectory bind-mounted into the DefraDB container.
	DataDirName = "data"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// DBFileName is the sqlite database used when no DSN is configured.
	DBFileName = "promptlab.db"

	// PIDFileName records the running server's process id.
	PIDFileName = "server.pid"
)

// ErrServerRunning is returned when another server owns the home directory.
var ErrServerRunning = errors.New("server already running")

// Dir represents the promptlab home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.promptlab).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// DataPath returns the path to the DefraDB data directory.
func (d *Dir) DataPath() string {
	return filepath.Join(d.path, DataDirName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// DBPath returns the path to the default sqlite database.
func (d *Dir) DBPath() string {
	return filepath.Join(d.path, DBFileName)
}

// PIDPath returns the path to the server PID file.
func (d *Dir) PIDPath() string {
	return filepath.Join(d.path, PIDFileName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	// Create data directory (this also creates the parent)
	if err := os.MkdirAll(d.DataPath(), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// ReadPID returns the recorded server PID, or 0 when there is no PID file.
func (d *Dir) ReadPID() (int, error) {
	data, err := os.ReadFile(d.PIDPath())
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed pid file %s: %w", d.PIDPath(), err)
	}
	return pid, nil
}

// AcquirePID records the current process as the running server. A stale
// PID file left by a dead process is replaced; a live one is an error.
func (d *Dir) AcquirePID() error {
	pid, err := d.ReadPID()
	if err != nil {
		return err
	}
	if pid != 0 && pid != os.Getpid() && processAlive(pid) {
		return fmt.Errorf("%w (pid %d)", ErrServerRunning, pid)
	}
	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return fmt.Errorf("failed to create home directory: %w", err)
	}
	return os.WriteFile(d.PIDPath(), []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

// ReleasePID removes the PID file if it still names the current process.
func (d *Dir) ReleasePID() error {
	pid, err := d.ReadPID()
	if err != nil || pid != os.Getpid() {
		return err
	}
	if err := os.Remove(d.PIDPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove pid file: %w", err)
	}
	return nil
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

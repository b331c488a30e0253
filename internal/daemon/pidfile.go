package daemon

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// ErrNotRunning is returned by Stop when no live daemon is recorded.
var ErrNotRunning = errors.New("daemon is not running")

// ClaimPIDFile atomically records the current process ID at path. It
// fails with ErrAlreadyRunning while path names a live process; a stale
// or unreadable file is replaced.
func ClaimPIDFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create pid dir: %w", err)
	}

	// Link a fully written temp file into place so readers never see a
	// partial PID, and so creation fails if path already exists.
	tmp, err := os.CreateTemp(dir, ".pid-*")
	if err != nil {
		return fmt.Errorf("create pid file: %w", err)
	}
	defer os.Remove(tmp.Name())
	_, err = tmp.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		err := os.Link(tmp.Name(), path)
		if err == nil {
			return nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("claim pid file: %w", err)
		}
		if IsRunning(path) {
			pid, _ := ReadPIDFile(path)
			return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
		}
		if err := RemovePIDFile(path); err != nil {
			return fmt.Errorf("remove stale pid file: %w", err)
		}
	}
	return ErrAlreadyRunning
}

// ReadPIDFile returns the recorded PID, or ok=false when the file is
// missing or unparsable.
func ReadPIDFile(path string) (pid int, ok bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err = strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// RemovePIDFile deletes path. A missing file is not an error.
func RemovePIDFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// RemoveSocketFile deletes a leftover Unix socket. A missing file is not
// an error.
func RemoveSocketFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// IsRunning reports whether the PID recorded at path names a live
// process. A stale PID file is removed. A process owned by another user
// counts as running.
func IsRunning(path string) bool {
	pid, ok := ReadPIDFile(path)
	if !ok {
		return false
	}
	alive := processAlive(pid)
	if !alive {
		log.Debug().Int("pid", pid).Str("path", path).Msg("removing stale pid file")
		_ = RemovePIDFile(path)
	}
	return alive
}

func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	switch {
	case err == nil:
		return true
	case errors.Is(err, unix.EPERM):
		return true
	default:
		// ESRCH and anything else
		return false
	}
}

// Stop sends SIGTERM to the daemon recorded at pidPath.
func Stop(pidPath string) (int, error) {
	if !IsRunning(pidPath) {
		return 0, ErrNotRunning
	}
	pid, _ := ReadPIDFile(pidPath)
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		return pid, fmt.Errorf("signal daemon %d: %w", pid, err)
	}
	return pid, nil
}

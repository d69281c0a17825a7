// Package daemonize detaches the current process into a background
// daemon and manages its PID file, grounded on
// original_source/src/daemon/main.cpp's daemonize() step sequence (itself
// following `man 7 daemon`).
//
// Go cannot fork() a running multi-threaded process safely (the runtime's
// own goroutine scheduler and GC threads do not survive a bare fork), so
// the double-fork-and-setsid sequence the original implements with
// fork()/setsid()/fork() is replaced with the standard Go idiom for the
// same effect: re-exec the same binary as a new process with its own
// session, then exit the parent once the child is launched. No
// third-party daemonization library exists anywhere in the corpus this
// module draws from, so this package is stdlib-only (os/exec, os,
// syscall) by necessity rather than preference.
package daemonize

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"
)

// reexecEnvVar marks a process as already running in the background, so
// Daemonize knows not to re-exec a second time.
const reexecEnvVar = "OCVSMD_DAEMONIZED"

// Daemonize detaches the current process into the background the first
// time it's called: it re-execs the running binary with the same argv in
// a new session, with stdio redirected to /dev/null, and exits the
// calling (parent) process. The re-exec'd child returns from this
// function normally and should proceed to call WritePIDFile and install
// its own signal handling.
//
// If the process is already the re-exec'd child (reexecEnvVar is set),
// Daemonize is a no-op and returns immediately.
func Daemonize() error {
	if os.Getenv(reexecEnvVar) == "1" {
		return nil
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("daemonize: open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	cmd := exec.Command(os.Args[0], os.Args[1:]...)
	cmd.Env = append(os.Environ(), reexecEnvVar+"=1")
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.Dir = "/"
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("daemonize: re-exec: %w", err)
	}

	os.Exit(0)
	panic("unreachable")
}

// WritePIDFile creates (or truncates) path and writes the current
// process's PID to it, grounded on
// step_12_create_pid_file's open/lock/truncate/write sequence. The
// returned file must be kept open for the life of the process; its
// advisory lock (syscall.Flock, the Go equivalent of lockf()) is the
// daemon's single-instance guard.
func WritePIDFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("daemonize: create pid file %s: %w", path, err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("daemonize: lock pid file %s: %w (already running?)", path, err)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, fmt.Errorf("daemonize: truncate pid file %s: %w", path, err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("daemonize: write pid file %s: %w", path, err)
	}

	return f, nil
}

// Package shelld implements the headless shell daemon:
// a detached background process that hosts one persistent shell and
// arbitrates command execution against it over a command FIFO.
//
// Go has no raw fork(2). The double-fork + setsid detach described in
// double-fork daemonization is reproduced by self-re-exec: the binary re-invokes itself
// twice with a hidden stage marker, the first time with Setsid so the
// new process starts its own session, the second time without it so the
// final daemon process is never that session's leader and therefore
// cannot acquire a controlling terminal. See DESIGN.md for the full
// grounding note.
package shelld

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/veilm/hnt/internal/logging"
)

// Stage1Marker and Stage2Marker are the hidden subcommands a binary's
// main() must dispatch to, before any CLI-flag parsing, so that the
// re-exec'd process runs the right half of the detach sequence instead
// of the normal CLI.
const (
	Stage1Marker = "__shelld_stage1__"
	Stage2Marker = "__shelld_stage2__"
)

// SessionDir returns the per-session directory under sessionsRoot.
func SessionDir(sessionsRoot, sessionID string) string {
	return filepath.Join(sessionsRoot, sessionID)
}

// PidLockPath returns the path to a session's liveness lock file.
func PidLockPath(sessionDir string) string {
	return filepath.Join(sessionDir, "pid.lock")
}

// CmdFIFOPath returns the path to a session's command FIFO.
func CmdFIFOPath(sessionDir string) string {
	return filepath.Join(sessionDir, "cmd.fifo")
}

// Spawn brings a daemon to life for a session directory that already
// exists (created by the session client's Create). shell, if empty,
// falls back to $SHELL, then /bin/bash, then /bin/sh (supplemented
// feature 7). Spawn returns as soon as the first re-exec is launched;
// the caller should wait for cmd.fifo to appear before sending commands.
func Spawn(sessionDir, shell string) error {
	if shell == "" {
		shell = defaultShell()
	}
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving executable for daemon re-exec: %w", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolving caller cwd for daemon re-exec: %w", err)
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("opening /dev/null: %w", err)
	}
	defer devNull.Close()

	cmd := exec.Command(exe, Stage1Marker, sessionDir, shell, cwd)
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting daemon stage1: %w", err)
	}
	return cmd.Process.Release()
}

func defaultShell() string {
	if s := os.Getenv("SHELL"); s != "" {
		return s
	}
	for _, candidate := range []string{"/bin/bash", "/bin/sh"} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return "/bin/sh"
}

// RunStage1 is the body of the intermediate child: it has already called
// setsid (via Spawn's SysProcAttr) and is now a session leader. It forks
// again (by re-exec'ing stage2 without Setsid) and exits immediately so
// the final daemon is not a session leader and can never acquire a
// controlling terminal. Fatal on any fork error. cwd is the caller's
// working directory at the time of Spawn, threaded through so stage2 can
// restore it (spec.md §4.1(b)) instead of inheriting sessionDir.
func RunStage1(sessionDir, shell, cwd string) {
	exe, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "shelld: resolving executable: %v\n", err)
		os.Exit(1)
	}
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "shelld: opening /dev/null: %v\n", err)
		os.Exit(1)
	}
	defer devNull.Close()

	cmd := exec.Command(exe, Stage2Marker, sessionDir, shell, cwd)
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.SysProcAttr = &syscall.SysProcAttr{}

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "shelld: starting daemon stage2: %v\n", err)
		os.Exit(1)
	}
	_ = cmd.Process.Release()
	os.Exit(0)
}

// RunStage2 is the final daemon (the grandchild): it restores the
// recorded initial cwd and enters the serve loop. It does not return
// under normal operation; it calls os.Exit on daemon shutdown or a fatal
// I/O error (loss of shell stdin, lock release failure).
func RunStage2(sessionDir, shell, cwd string) {
	d, err := newDaemon(sessionDir, shell, cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "shelld: initializing daemon: %v\n", err)
		os.Exit(1)
	}
	defer d.logFile.Close()

	if err := d.serve(); err != nil {
		logging.Error().Err(err).Msg("shelld: fatal error in serve loop")
		os.Exit(1)
	}
	os.Exit(0)
}

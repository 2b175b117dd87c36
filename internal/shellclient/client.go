// Package shellclient implements the headlesh session client:
// creating a session's filesystem skeleton, spawning its daemon, sending
// command payloads, collecting output, and sending the exit sentinel.
package shellclient

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/veilm/hnt/internal/shelld"
	"github.com/veilm/hnt/pkg/hnt"
)

// Client talks to sessions rooted at a single sessions directory
// (default hnt.DefaultSessionsRoot).
type Client struct {
	SessionsRoot string
}

// New returns a Client rooted at sessionsRoot.
func New(sessionsRoot string) *Client {
	if sessionsRoot == "" {
		sessionsRoot = hnt.DefaultSessionsRoot
	}
	return &Client{SessionsRoot: sessionsRoot}
}

// SessionDir returns a session's directory.
func (c *Client) SessionDir(id string) string {
	return shelld.SessionDir(c.SessionsRoot, id)
}

func validateSessionID(id string) error {
	if id == "" || strings.Contains(id, "/") || strings.Contains(id, "..") {
		return &hnt.SessionError{Kind: hnt.InvalidSessionID, SessionID: id}
	}
	return nil
}

// Create validates session_id and creates the session's filesystem
// skeleton. It fails with SessionAlreadyExists if the directory exists
// and its pid.lock is currently held by a live daemon. It does not start
// the daemon.
func (c *Client) Create(id string) error {
	if err := validateSessionID(id); err != nil {
		return err
	}
	dir := c.SessionDir(id)

	if c.isAliveDir(dir) {
		return &hnt.SessionError{Kind: hnt.SessionAlreadyExists, SessionID: id}
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}
	return nil
}

// Spawn invokes the shell daemon's double-fork daemonization for an
// already-created session, then waits (bounded) for cmd.fifo to appear
// before returning — implemented with an fsnotify watch instead of a
// blind sleep, falling back to short polling if the watch can't be
// established.
func (c *Client) Spawn(id, shell string) error {
	dir := c.SessionDir(id)
	if err := shelld.Spawn(dir, shell); err != nil {
		return fmt.Errorf("spawning daemon: %w", err)
	}
	return c.waitForFIFO(dir, 5*time.Second)
}

func (c *Client) waitForFIFO(dir string, timeout time.Duration) error {
	fifoPath := shelld.CmdFIFOPath(dir)
	if fileExists(fifoPath) {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return c.pollForFIFO(fifoPath, timeout)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return c.pollForFIFO(fifoPath, timeout)
	}

	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return c.pollForFIFO(fifoPath, timeout)
			}
			if ev.Name == fifoPath && (ev.Op&(fsnotify.Create) != 0) {
				return nil
			}
			if fileExists(fifoPath) {
				return nil
			}
		case <-watcher.Errors:
			return c.pollForFIFO(fifoPath, timeout)
		case <-deadline:
			return fmt.Errorf("timed out waiting for daemon to create cmd.fifo")
		}
	}
}

func (c *Client) pollForFIFO(fifoPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fileExists(fifoPath) {
			return nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return fmt.Errorf("timed out waiting for daemon to create cmd.fifo")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// fifoTriple is a per-request set of three named pipes, cleaned up on
// every exit path the way the Rust original's FifoCleaner does via Drop.
type fifoTriple struct {
	stdout string
	stderr string
	status string
}

func newFIFOTriple() (fifoTriple, error) {
	pid := os.Getpid()
	t := fifoTriple{
		stdout: fmt.Sprintf("/tmp/headlesh_out_%d", pid),
		stderr: fmt.Sprintf("/tmp/headlesh_err_%d", pid),
		status: fmt.Sprintf("/tmp/headlesh_status_%d", pid),
	}
	for _, p := range []string{t.stdout, t.stderr, t.status} {
		os.Remove(p)
		if err := syscall.Mkfifo(p, 0600); err != nil {
			t.cleanup()
			return fifoTriple{}, fmt.Errorf("creating fifo %s: %w", p, err)
		}
	}
	return t, nil
}

func (t fifoTriple) cleanup() {
	os.Remove(t.stdout)
	os.Remove(t.stderr)
	os.Remove(t.status)
}

// ExecCaptured runs script in the session's shell and returns its
// buffered stdout, stderr, and exit status.
func (c *Client) ExecCaptured(id, script string) (hnt.ExecOutput, error) {
	var stdoutBuf, stderrBuf bytes.Buffer
	exit, err := c.exec(id, script, &stdoutBuf, &stderrBuf)
	if err != nil {
		return hnt.ExecOutput{}, err
	}
	return hnt.ExecOutput{Stdout: stdoutBuf.String(), Stderr: stderrBuf.String(), ExitStatus: exit}, nil
}

// Exec runs script in the session's shell, streaming stdout/stderr
// directly to the given writers instead of buffering, and returns the
// exit status.
func (c *Client) Exec(id, script string, stdout, stderr io.Writer) (int, error) {
	return c.exec(id, script, stdout, stderr)
}

func (c *Client) exec(id, script string, stdout, stderr io.Writer) (int, error) {
	dir := c.SessionDir(id)
	if !fileExists(shelld.CmdFIFOPath(dir)) {
		return 0, &hnt.SessionError{Kind: hnt.SessionNotFound, SessionID: id}
	}

	triple, err := newFIFOTriple()
	if err != nil {
		return 0, err
	}
	defer triple.cleanup()

	payload := triple.stdout + "\n" + triple.stderr + "\n" + triple.status + "\n" + script

	if err := c.sendPayload(dir, payload); err != nil {
		return 0, err
	}

	var wg sync.WaitGroup
	var stdoutErr, stderrErr error
	var exitStatus int
	var statusErr error

	wg.Add(3)
	go func() {
		defer wg.Done()
		stdoutErr = readFIFOInto(triple.stdout, stdout)
	}()
	go func() {
		defer wg.Done()
		stderrErr = readFIFOInto(triple.stderr, stderr)
	}()
	go func() {
		defer wg.Done()
		exitStatus, statusErr = readStatusFIFO(triple.status)
	}()
	wg.Wait()

	if stdoutErr != nil {
		return 0, fmt.Errorf("reading stdout: %w", stdoutErr)
	}
	if stderrErr != nil {
		return 0, fmt.Errorf("reading stderr: %w", stderrErr)
	}
	if statusErr != nil {
		return 0, fmt.Errorf("reading exit status: %w", statusErr)
	}
	return exitStatus, nil
}

// sendPayload writes the payload to cmd.fifo as a single atomic write,
// so the daemon's blocking read returns a complete record. Opening the
// FIFO for writing is wrapped in a short bounded backoff to absorb the
// rare race where the daemon hasn't yet reached its next blocking open.
func (c *Client) sendPayload(dir, payload string) error {
	fifoPath := shelld.CmdFIFOPath(dir)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 3 * time.Second

	var f *os.File
	openErr := backoff.Retry(func() error {
		var err error
		f, err = os.OpenFile(fifoPath, os.O_WRONLY, 0)
		if err != nil {
			if os.IsNotExist(err) {
				return &hnt.SessionError{Kind: hnt.SessionNotFound, Cause: err}
			}
			return err
		}
		return nil
	}, b)
	if openErr != nil {
		var sessErr *hnt.SessionError
		if errors.As(openErr, &sessErr) {
			return sessErr
		}
		return fmt.Errorf("opening cmd.fifo: %w", openErr)
	}
	defer f.Close()

	if _, err := io.WriteString(f, payload); err != nil {
		return fmt.Errorf("writing command payload: %w", err)
	}
	return nil
}

func readFIFOInto(path string, w io.Writer) error {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// readStatusFIFO reads the shell's exit status. Per supplemented feature
// 6, the trailing newline is optional; a payload that isn't a parseable
// integer reports -1 ("unknown") rather than panicking, distinct from a
// real nonzero exit code.
func readStatusFIFO(path string) (int, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return -1, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return -1, err
	}
	return parseStatus(data), nil
}

// parseStatus accepts a decimal ASCII integer optionally followed by
// whitespace; a payload that isn't parseable reports -1 ("unknown"),
// distinct from a real nonzero exit code.
func parseStatus(data []byte) int {
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return -1
	}
	return n
}

// Exit sends the exit sentinel with /dev/null as all three FIFO paths,
// at the protocol level.
func (c *Client) Exit(id string) error {
	dir := c.SessionDir(id)
	if !fileExists(shelld.CmdFIFOPath(dir)) {
		return &hnt.SessionError{Kind: hnt.SessionNotFound, SessionID: id}
	}
	payload := "/dev/null\n/dev/null\n/dev/null\n" + hnt.ExitSentinel
	return c.sendPayload(dir, payload)
}

// Kill is a cooperative-shutdown alias: it first attempts Exit(), and
// only falls back to SIGTERM-ing the daemon process (read from pid.lock)
// if that fails.
func (c *Client) Kill(id string) error {
	if err := c.Exit(id); err == nil {
		return nil
	}

	dir := c.SessionDir(id)
	pid, err := readPidLock(dir)
	if err != nil {
		return fmt.Errorf("exit() failed and no pid recorded to fall back on: %w", err)
	}
	return syscall.Kill(pid, syscall.SIGTERM)
}

func readPidLock(dir string) (int, error) {
	data, err := os.ReadFile(shelld.PidLockPath(dir))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("pid.lock does not contain a pid: %w", err)
	}
	return pid, nil
}

// SessionInfo is one entry returned by List.
type SessionInfo struct {
	ID    string
	Alive bool
}

// List enumerates every session directory under SessionsRoot and reports
// liveness for each by attempting a non-blocking flock on its pid.lock
// (success ⇒ stale ⇒ dead session).
func (c *Client) List() ([]SessionInfo, error) {
	entries, err := os.ReadDir(c.SessionsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	var sessions []SessionInfo
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(c.SessionsRoot, e.Name())
		sessions = append(sessions, SessionInfo{ID: e.Name(), Alive: c.isAliveDir(dir)})
	}
	return sessions, nil
}

// IsAlive reports whether a session's daemon currently holds pid.lock.
func (c *Client) IsAlive(id string) bool {
	return c.isAliveDir(c.SessionDir(id))
}

func (c *Client) isAliveDir(dir string) bool {
	lockPath := shelld.PidLockPath(dir)
	f, err := os.OpenFile(lockPath, os.O_RDONLY, 0)
	if err != nil {
		return false
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		// Could not acquire: someone else (the daemon) holds it. Alive.
		return true
	}
	// We acquired it: it was unheld. Release and report dead.
	syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	return false
}

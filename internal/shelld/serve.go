package shelld

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"mvdan.cc/sh/v3/syntax"

	"github.com/veilm/hnt/internal/logging"
	"github.com/veilm/hnt/pkg/hnt"
)

// daemon holds the live state of one headless shell daemon.
type daemon struct {
	sessionDir string
	sessionID  string

	logFile *os.File // the held pid.lock fd; see RunStage2's defer

	shellCmd   *exec.Cmd
	shellStdin io.WriteCloser

	scriptDir string // where temp script files are written
}

// newDaemon performs the daemon's initialization steps:
// log file, chdir to the caller's recorded initial cwd, pid.lock,
// cmd.fifo, and the persistent shell subprocess.
func newDaemon(sessionDir, shell, cwd string) (*daemon, error) {
	sessionID := filepath.Base(sessionDir)

	logPath, err := serverLogPath(sessionID)
	if err != nil {
		return nil, err
	}
	if err := logging.Init(logging.Config{
		Level:   logging.InfoLevel,
		Output:  io.Discard,
		LogPath: logPath,
	}); err != nil {
		return nil, fmt.Errorf("initializing daemon log: %w", err)
	}

	// Restore the caller's working directory (spec.md §4.1(b)) rather than
	// the session directory, so relative paths in the first executed
	// script resolve against where the user actually invoked us from.
	// pid.lock/cmd.fifo/script paths below are all joined against the
	// already-absolute sessionDir, so this chdir doesn't affect them.
	if err := os.Chdir(cwd); err != nil {
		return nil, fmt.Errorf("chdir to caller cwd: %w", err)
	}

	lockFile, err := os.OpenFile(PidLockPath(sessionDir), os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening pid.lock: %w", err)
	}
	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		lockFile.Close()
		return nil, fmt.Errorf("acquiring pid.lock (session already live?): %w", err)
	}
	// Record our pid in the lock file so Kill() has a fallback SIGTERM
	// target if the cooperative exit() protocol can't be used.
	if err := lockFile.Truncate(0); err == nil {
		lockFile.WriteAt([]byte(fmt.Sprintf("%d\n", os.Getpid())), 0)
	}

	fifoPath := CmdFIFOPath(sessionDir)
	os.Remove(fifoPath)
	if err := syscall.Mkfifo(fifoPath, 0700); err != nil {
		return nil, fmt.Errorf("creating cmd.fifo: %w", err)
	}

	scriptDir := filepath.Join(sessionDir, "scripts")
	if err := os.MkdirAll(scriptDir, 0700); err != nil {
		return nil, fmt.Errorf("creating script dir: %w", err)
	}

	shellCmd := exec.Command(shell)
	shellCmd.Dir = cwd
	stdin, err := shellCmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("opening shell stdin: %w", err)
	}
	if err := shellCmd.Start(); err != nil {
		return nil, fmt.Errorf("starting shell subprocess: %w", err)
	}

	return &daemon{
		sessionDir: sessionDir,
		sessionID:  sessionID,
		logFile:    lockFile,
		shellCmd:   shellCmd,
		shellStdin: stdin,
		scriptDir:  scriptDir,
	}, nil
}

func serverLogPath(sessionID string) (string, error) {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving data dir: %w", err)
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "hinata", "headlesh", sessionID, "server.log"), nil
}

// serve runs the daemon's main loop: repeatedly open cmd.fifo for
// reading, read one complete payload, dispatch it to the shell, and
// respond on the request's three output FIFOs. It returns only on the
// exit sentinel or a fatal error.
func (d *daemon) serve() error {
	defer d.shutdown()

	for {
		payload, err := d.readPayload()
		if err != nil {
			return fmt.Errorf("reading command payload: %w", err)
		}

		req, err := parsePayload(payload)
		if err != nil {
			logging.Error().Err(err).Msg("shelld: malformed payload, skipping")
			continue
		}

		if req.script == hnt.ExitSentinel {
			logging.Info().Msg("shelld: received exit sentinel")
			return nil
		}

		if err := d.dispatch(req); err != nil {
			logging.Error().Err(err).Msg("shelld: dispatching to shell stdin")
			return err
		}
	}
}

// readPayload opens cmd.fifo for reading (blocking until a writer opens
// it) and reads the entire payload to EOF, as one atomic record.
func (d *daemon) readPayload() ([]byte, error) {
	f, err := os.OpenFile(CmdFIFOPath(d.sessionDir), os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

type request struct {
	stdoutFIFO string
	stderrFIFO string
	statusFIFO string
	script     string
}

// parsePayload splits the first three lines as FIFO paths and the
// remainder as the script body.
func parsePayload(payload []byte) (request, error) {
	r := bufio.NewReader(bytes.NewReader(payload))
	lines := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			return request{}, fmt.Errorf("payload truncated before FIFO path %d", i+1)
		}
		lines = append(lines, strings.TrimSuffix(line, "\n"))
	}
	rest, _ := io.ReadAll(r)
	return request{
		stdoutFIFO: lines[0],
		stderrFIFO: lines[1],
		statusFIFO: lines[2],
		script:     string(rest),
	}, nil
}

// dispatch writes a fresh temp script file and sends the composite shell
// command line to the persistent shell's stdin.
func (d *daemon) dispatch(req request) error {
	if diag := lintScript(req.script); diag != "" {
		logging.Warn().Str("diagnostic", diag).Msg("shelld: script failed to parse (executing anyway)")
	}

	tmpFile, err := os.CreateTemp(d.scriptDir, "cmd-*.sh")
	if err != nil {
		d.writeStatusOrLog(req.statusFIFO, 127)
		return nil
	}
	if _, err := tmpFile.WriteString(req.script); err != nil {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		d.writeStatusOrLog(req.statusFIFO, 127)
		return nil
	}
	tmpFile.Close()

	composite := fmt.Sprintf(
		"{ . %q < /dev/null; } > %q 2> %q; ec=$?; echo $ec > %q; rm -f %q\n",
		tmpFile.Name(), req.stdoutFIFO, req.stderrFIFO, req.statusFIFO, tmpFile.Name(),
	)
	if _, err := io.WriteString(d.shellStdin, composite); err != nil {
		return fmt.Errorf("writing to shell stdin: %w", err)
	}
	return nil
}

// writeStatusOrLog is the best-effort fallback used when the daemon
// cannot even hand the script to the shell: write 127 to the status
// FIFO so the blocked client unblocks instead of hanging forever.
func (d *daemon) writeStatusOrLog(statusFIFO string, code int) {
	f, err := os.OpenFile(statusFIFO, os.O_WRONLY, 0)
	if err != nil {
		logging.Error().Err(err).Str("fifo", statusFIFO).Msg("shelld: could not open status fifo to report dispatch failure")
		return
	}
	defer f.Close()
	fmt.Fprintln(f, code)
}

// lintScript parses script with mvdan.cc/sh/v3's shell syntax parser
// purely for daemon-log diagnostics; a parse failure never blocks
// execution (the daemon still sources whatever the client sent).
func lintScript(script string) string {
	parser := syntax.NewParser()
	_, err := parser.Parse(strings.NewReader(script), "")
	if err != nil {
		return err.Error()
	}
	return ""
}

func (d *daemon) shutdown() {
	if d.shellStdin != nil {
		d.shellStdin.Close()
	}
	os.Remove(CmdFIFOPath(d.sessionDir))
	if d.logFile != nil {
		syscall.Flock(int(d.logFile.Fd()), syscall.LOCK_UN)
		d.logFile.Close()
	}
}

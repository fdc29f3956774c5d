/*
PURPOSE:
  Runs the inference server described by a LaunchSpec in the foreground,
  replacing any instance a previous launch left running.

REQUIREMENTS:
  User-specified:
  - Best-effort stop of the previous instance, then a fixed grace period.
  - stdout/stderr duplicated into a per-run timestamped log.
  - Operator interrupt is a clean shutdown, not a failure.

  Implementation-discovered:
  - The previous instance is found through a PID file written at start,
    never by matching command lines.
  - The child's exit status must reach main unchanged.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli (serve)
  - Consumes: internal/model.LaunchSpec

ERROR HANDLING:
  - Missing/stale PID file is not an error.
  - Start failure is returned as is; nonzero child exit as *ExitError.

IMPLEMENTATION RULES:
  - One foreground child at a time.
  - The PID file is removed when the child exits.

USAGE:
  sup := engine.NewSupervisor(cfg)
  err := sup.Run(ctx, spec)

SELF-HEALING INSTRUCTIONS:
  - If a stale server survives, delete <state_dir>/server.pid and kill it by hand.

RELATED FILES:
  - internal/launch/resolver.go

MAINTENANCE:
  - None.
*/

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/daryltucker/kvharness/internal/config"
	"github.com/daryltucker/kvharness/internal/model"
	"github.com/daryltucker/kvharness/internal/output"
	"github.com/sirupsen/logrus"
)

const pidFileName = "server.pid"

// interruptSettle is how long a failed exit waits for a pending interrupt.
const interruptSettle = 250 * time.Millisecond

// Supervisor owns the lifecycle of the server process.
type Supervisor struct {
	StateDir    string
	GracePeriod time.Duration
	Stdin       io.Reader
	Stdout      io.Writer
	Stderr      io.Writer
	// BaseEnv is extended with the LaunchSpec env; os.Environ() by default.
	BaseEnv []string
}

// NewSupervisor creates a Supervisor attached to the current terminal.
func NewSupervisor(cfg *config.Config) *Supervisor {
	return &Supervisor{
		StateDir:    cfg.Server.StateDir,
		GracePeriod: cfg.Server.GracePeriod,
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		BaseEnv:     os.Environ(),
	}
}

// PIDFile is where the running server's pid is recorded.
func (s *Supervisor) PIDFile() string {
	return filepath.Join(s.StateDir, pidFileName)
}

// StopPrevious terminates the process recorded in the PID file, if any.
// It returns true when a live process was signalled.
func (s *Supervisor) StopPrevious() (bool, error) {
	data, err := os.ReadFile(s.PIDFile())
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read pid file: %w", err)
	}
	defer os.Remove(s.PIDFile())

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		output.Logger.WithField("pid_file", s.PIDFile()).Warn("Ignoring malformed pid file")
		return false, nil
	}
	if !processAlive(pid) {
		return false, nil
	}

	log := output.Logger.WithField("pid", pid)
	log.Info("Stopping previous server instance")
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false, nil
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return false, nil
	}

	deadline := time.Now().Add(s.GracePeriod)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return true, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	if processAlive(pid) {
		log.Warn("Previous instance ignored SIGTERM, killing")
		_ = proc.Signal(syscall.SIGKILL)
	}
	return true, nil
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// Run stops any previous instance, waits the grace period and runs spec in
// the foreground until it exits or ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context, spec *model.LaunchSpec) error {
	log := output.Logger.WithFields(logrus.Fields{
		"config": spec.Config.Name,
		"size":   spec.Config.Size,
		"model":  spec.Model,
	})

	if stopped, err := s.StopPrevious(); err != nil {
		log.WithError(err).Warn("Could not stop previous instance")
	} else if stopped {
		log.Info("Previous instance stopped")
	}

	if s.GracePeriod > 0 {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.GracePeriod):
		}
	}

	for path, body := range spec.Files {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("create directory for %s: %w", path, err)
		}
		if err := os.WriteFile(path, body, 0644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(spec.LogPath), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	logFile, err := os.Create(spec.LogPath)
	if err != nil {
		return fmt.Errorf("create server log %s: %w", spec.LogPath, err)
	}
	defer logFile.Close()

	argv := spec.Command()
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(append([]string{}, s.BaseEnv...), spec.Environ()...)
	cmd.Stdin = s.Stdin
	cmd.Stdout = io.MultiWriter(s.Stdout, logFile)
	cmd.Stderr = io.MultiWriter(s.Stderr, logFile)
	// Grandchildren may hold the output pipes after the server exits.
	cmd.WaitDelay = 5 * time.Second

	log.WithFields(logrus.Fields{
		"command": strings.Join(argv, " "),
		"log":     spec.LogPath,
	}).Info("Starting server")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", argv[0], err)
	}

	if err := s.writePID(cmd.Process.Pid); err != nil {
		log.WithError(err).Warn("Could not record server pid")
	}
	defer os.Remove(s.PIDFile())

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		// The terminal delivers Ctrl-C to the server too, so it may exit
		// before our own signal handler has cancelled ctx.
		if err != nil && ctx.Err() == nil {
			select {
			case <-ctx.Done():
			case <-time.After(interruptSettle):
			}
		}
		if ctx.Err() != nil {
			log.Info("Server stopped by interrupt")
			return nil
		}
		return exitResult(err)
	case <-ctx.Done():
	}

	log.Info("Interrupt received, stopping server")
	_ = cmd.Process.Signal(os.Interrupt)
	select {
	case <-done:
	case <-time.After(s.shutdownTimeout()):
		log.Warn("Server did not exit after interrupt, killing")
		_ = cmd.Process.Kill()
		<-done
	}
	return nil
}

func (s *Supervisor) shutdownTimeout() time.Duration {
	if s.GracePeriod > 0 {
		return 6 * s.GracePeriod
	}
	return 30 * time.Second
}

func (s *Supervisor) writePID(pid int) error {
	if err := os.MkdirAll(s.StateDir, 0755); err != nil {
		return err
	}
	return os.WriteFile(s.PIDFile(), []byte(strconv.Itoa(pid)+"\n"), 0644)
}

func exitResult(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Code: exitErr.ExitCode(), Err: fmt.Errorf("server exited: %w", err)}
	}
	return err
}

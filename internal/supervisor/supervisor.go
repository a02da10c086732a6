// Package supervisor starts the broker-under-test as a subprocess and
// signals workers when it exits, which a worker pool treats as a
// presumptive crash.
package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os/exec"

	shellwords "github.com/kballard/go-shellquote"
)

// Supervisor owns the broker subprocess and the broker-died cancellation
// signal derived from its exit.
type Supervisor struct {
	cmd    *exec.Cmd
	died   context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// Start launches command (a full shell command line) and begins monitoring
// it. command is first parsed as shell-quoted argv; if that parse fails (an
// unbalanced quote, say), it falls back to handing the raw string to
// /bin/sh -c, matching what a broker operator would expect from pasting a
// complex command verbatim.
//
// The returned Supervisor's Died context is canceled the moment the
// subprocess's Wait returns, for any reason (clean exit, signal, crash).
// This is the only cancellation signal the fuzzing engine reacts to; the
// engine never inspects the exit status itself.
func Start(ctx context.Context, command string, logger *slog.Logger) (*Supervisor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	argv, err := shellwords.Split(command)
	var cmd *exec.Cmd
	if err != nil || len(argv) == 0 {
		cmd = exec.CommandContext(ctx, "/bin/sh", "-c", command)
	} else {
		cmd = exec.CommandContext(ctx, argv[0], argv[1:]...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("supervisor: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("supervisor: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("supervisor: start %q: %w", command, err)
	}
	logger.Debug("started broker process", "pid", cmd.Process.Pid, "command", command)

	diedCtx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{cmd: cmd, died: diedCtx, cancel: cancel, logger: logger}

	go s.streamLines(stdout, "stdout")
	go s.streamLines(stderr, "stderr")
	go s.waitAndSignal()

	return s, nil
}

// Died returns a context that is canceled when the broker subprocess exits.
func (s *Supervisor) Died() context.Context {
	return s.died
}

// Stop kills the subprocess if it is still running. Used for orderly
// shutdown when the fuzzing run ends for reasons other than a crash.
func (s *Supervisor) Stop() error {
	if s.cmd.Process == nil {
		return nil
	}
	return s.cmd.Process.Kill()
}

func (s *Supervisor) streamLines(r interface{ Read([]byte) (int, error) }, stream string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.logger.Debug("broker output", "stream", stream, "line", scanner.Text())
	}
}

func (s *Supervisor) waitAndSignal() {
	err := s.cmd.Wait()
	s.logger.Info("broker process exited", "err", err)
	s.cancel()
}

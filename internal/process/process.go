package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"sync"
	"syscall"
	"time"
)

// OutputHandler receives output lines from the subprocess.
type OutputHandler interface {
	HandleLine(source, line string)
}

// LogParser parses a log line and returns the log level and message.
type LogParser func(line string) (level, msg string)

// ExitFunc is called once the subprocess is gone for good. shutdown is true
// when the exit was requested through Shutdown or Kill.
type ExitFunc func(code int, shutdown bool)

// RestartFunc is called after a requested restart, with the error of the
// new subprocess start (nil on success).
type RestartFunc func(args []string, err error)

type exitReason int

const (
	exitReasonProcessExit exitReason = iota
	exitReasonShutdown
	exitReasonRestart
)

// Options configures a Process.
type Options struct {
	Logger *slog.Logger
	// OutputLogger receives the subprocess output (nil = Logger).
	OutputLogger *slog.Logger
	LogParser    LogParser
	Output       OutputHandler
	OnExit       ExitFunc
	OnRestart    RestartFunc

	// GracefulTimeout is the wait after SIGINT before SIGKILL.
	GracefulTimeout time.Duration
	// KillTimeout is the wait after SIGKILL before giving up.
	KillTimeout time.Duration
}

// Process runs one subprocess. Start returns once the subprocess has been
// spawned; a supervisor goroutine then handles restarts, shutdown and exit.
type Process struct {
	id   string
	opts Options

	mu      sync.Mutex
	args    []string
	cmd     *exec.Cmd
	state   State
	started time.Time
	exit    int

	ctx         context.Context
	cancel      context.CancelFunc
	restartChan chan []string
	killChan    chan struct{}
	done        chan struct{}
}

// New creates a process for args; args[0] is the executable.
func New(id string, args []string, opts Options) *Process {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.GracefulTimeout <= 0 {
		opts.GracefulTimeout = 5 * time.Second
	}
	if opts.KillTimeout <= 0 {
		opts.KillTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Process{
		id:          id,
		opts:        opts,
		args:        slices.Clone(args),
		state:       StateIdle,
		ctx:         ctx,
		cancel:      cancel,
		restartChan: make(chan []string, 1),
		killChan:    make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
}

// ID returns the process id given to New.
func (p *Process) ID() string { return p.id }

// Args returns the current argument list.
func (p *Process) Args() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.args)
}

// Info returns a snapshot of the process.
func (p *Process) Info() Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	info := Info{ID: p.id, State: p.state, StartedAt: p.started}
	if p.cmd != nil && p.cmd.Process != nil {
		info.PID = p.cmd.Process.Pid
	}
	return info
}

// Done is closed once the supervisor has exited.
func (p *Process) Done() <-chan struct{} { return p.done }

// ExitCode returns the last exit code. Only meaningful after Done.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exit
}

// Start spawns the subprocess. It can be called once.
func (p *Process) Start() error {
	p.mu.Lock()
	if p.state != StateIdle {
		p.mu.Unlock()
		return fmt.Errorf("process %s already started", p.id)
	}
	p.state = StateStarting
	args := slices.Clone(p.args)
	p.mu.Unlock()

	rp, err := p.startProcess(args)
	if err != nil {
		p.setState(StateError)
		close(p.done)
		return err
	}
	p.setState(StateRunning)

	go p.supervise(rp)
	return nil
}

// RequestRestart asks the supervisor to stop the subprocess and start it
// again with args. Non-blocking: if a restart is already pending, this is
// a no-op.
func (p *Process) RequestRestart(args []string) {
	select {
	case p.restartChan <- slices.Clone(args):
		p.opts.Logger.Info("Restart requested", "id", p.id)
	default:
		p.opts.Logger.Warn("Restart already pending, ignoring", "id", p.id)
	}
}

// Shutdown asks the subprocess to exit gracefully.
func (p *Process) Shutdown() {
	p.cancel()
}

// Kill terminates the subprocess without a graceful period.
func (p *Process) Kill() {
	select {
	case p.killChan <- struct{}{}:
	default:
	}
	p.cancel()
}

// Wait blocks until the supervisor has exited or ctx ends.
func (p *Process) Wait(ctx context.Context) (int, error) {
	select {
	case <-p.done:
		return p.ExitCode(), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Run starts the subprocess and blocks until it exits.
func (p *Process) Run(ctx context.Context) (int, error) {
	if err := p.Start(); err != nil {
		return 1, err
	}
	go func() {
		select {
		case <-ctx.Done():
			p.Shutdown()
		case <-p.done:
		}
	}()
	<-p.done
	return p.ExitCode(), nil
}

func (p *Process) setState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
	if s == StateRunning {
		p.started = time.Now()
	}
}

// runningProcess holds channels for monitoring a running subprocess.
type runningProcess struct {
	cmd         *exec.Cmd
	processDone <-chan error
	outputDone  chan struct{} // receives twice, once per output stream
}

// startProcess starts the subprocess and returns channels for monitoring.
func (p *Process) startProcess(args []string) (*runningProcess, error) {
	if len(args) == 0 {
		return nil, errors.New("empty command")
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		p.opts.Logger.Error("Failed to start process", "id", p.id, "error", err, "command", args[0])
		return nil, err
	}

	p.mu.Lock()
	p.cmd = cmd
	p.args = slices.Clone(args)
	p.mu.Unlock()

	p.opts.Logger.Info("Process started", "id", p.id, "pid", cmd.Process.Pid)
	p.opts.Logger.Debug("Process command", "id", p.id, "args", args)

	outputDone := make(chan struct{}, 2)
	go func() {
		p.streamOutput(stdout, "stdout")
		outputDone <- struct{}{}
	}()
	go func() {
		p.streamOutput(stderr, "stderr")
		outputDone <- struct{}{}
	}()

	processDone := make(chan error, 1)
	go func() {
		processDone <- cmd.Wait()
	}()

	return &runningProcess{cmd: cmd, processDone: processDone, outputDone: outputDone}, nil
}

func (rp *runningProcess) waitOutputDone() {
	<-rp.outputDone
	<-rp.outputDone
}

func (p *Process) supervise(rp *runningProcess) {
	defer close(p.done)
	for {
		code, reason, next := p.runOnce(rp)
		switch reason {
		case exitReasonRestart:
			var err error
			rp, err = p.startProcess(next)
			if p.opts.OnRestart != nil {
				p.opts.OnRestart(next, err)
			}
			if err == nil {
				continue
			}
			code = 1
			p.finish(code, false)
			return
		case exitReasonShutdown:
			p.opts.Logger.Info("Process shut down", "id", p.id, "exit_code", code)
			p.finish(code, true)
			return
		default:
			p.opts.Logger.Info("Process exited", "id", p.id, "exit_code", code)
			p.finish(code, false)
			return
		}
	}
}

func (p *Process) finish(code int, shutdown bool) {
	p.mu.Lock()
	p.exit = code
	if code != 0 && !shutdown {
		p.state = StateError
	} else {
		p.state = StateIdle
	}
	p.mu.Unlock()
	if p.opts.OnExit != nil {
		p.opts.OnExit(code, shutdown)
	}
}

// runOnce waits for the running subprocess and returns the exit code, the
// reason for exit and, for a restart, the next argument list.
func (p *Process) runOnce(rp *runningProcess) (int, exitReason, []string) {
	defer rp.waitOutputDone()

	select {
	case <-p.ctx.Done():
		p.setState(StateStopping)
		select {
		case <-p.killChan:
			return p.kill(rp), exitReasonShutdown, nil
		default:
		}
		p.sendStopSignal(rp.cmd)
		return p.waitForExit(rp), exitReasonShutdown, nil

	case next := <-p.restartChan:
		p.opts.Logger.Info("Restarting process", "id", p.id)
		p.sendStopSignal(rp.cmd)
		p.waitForExit(rp)
		return 0, exitReasonRestart, next

	case processErr := <-rp.processDone:
		return p.handleProcessExit(processErr), exitReasonProcessExit, nil
	}
}

// exitCodeFromError extracts exit code from process error.
// Returns 0 for nil error, the exit code for ExitError, or 1 for other errors.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

// handleProcessExit extracts exit code from process error and logs non-ExitError errors.
func (p *Process) handleProcessExit(processErr error) int {
	exitCode := exitCodeFromError(processErr)
	if processErr != nil && exitCode == 1 {
		p.opts.Logger.Error("Process exited with error", "id", p.id, "error", processErr)
	}
	return exitCode
}

// sendStopSignal sends SIGINT to the subprocess without waiting.
func (p *Process) sendStopSignal(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	p.opts.Logger.Debug("Sending SIGINT to process", "id", p.id, "pid", cmd.Process.Pid)
	if err := cmd.Process.Signal(syscall.SIGINT); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.opts.Logger.Warn("Failed to send SIGINT", "id", p.id, "error", err)
	}
}

// waitForExit waits for the process to exit, force-killing it after the
// graceful timeout.
func (p *Process) waitForExit(rp *runningProcess) int {
	select {
	case err := <-rp.processDone:
		return exitCodeFromError(err)
	case <-p.killChan:
		return p.kill(rp)
	case <-time.After(p.opts.GracefulTimeout):
		p.opts.Logger.Warn("Graceful shutdown timeout, forcing kill", "id", p.id, "timeout", p.opts.GracefulTimeout)
		return p.kill(rp)
	}
}

func (p *Process) kill(rp *runningProcess) int {
	if rp.cmd.Process != nil {
		if err := rp.cmd.Process.Kill(); err != nil {
			// "os: process already finished" is OK - process exited between timeout and kill
			if !errors.Is(err, os.ErrProcessDone) {
				p.opts.Logger.Error("Failed to kill process", "id", p.id, "error", err)
			}
		}
	}
	select {
	case <-rp.processDone:
	case <-time.After(p.opts.KillTimeout):
		p.opts.Logger.Error("Process did not exit after kill signal", "id", p.id)
	}
	return 137
}

// streamOutput forwards subprocess output to the output handler and logs
// it at the level reported by the log parser.
func (p *Process) streamOutput(reader io.Reader, source string) {
	scanner := bufio.NewScanner(reader)

	logger := p.opts.OutputLogger
	if logger == nil {
		logger = p.opts.Logger
	}

	for scanner.Scan() {
		line := scanner.Text()

		if p.opts.Output != nil {
			p.opts.Output.HandleLine(source, line)
		}

		level, msg := "info", line
		if p.opts.LogParser != nil {
			level, msg = p.opts.LogParser(line)
		}

		switch level {
		case "fatal", "error", "panic":
			logger.Error(msg, "process", p.id)
		case "warning":
			logger.Warn(msg, "process", p.id)
		case "debug", "trace", "verbose":
			logger.Debug(msg, "process", p.id)
		default:
			logger.Info(msg, "process", p.id)
		}
	}

	if err := scanner.Err(); err != nil {
		p.opts.Logger.Warn("Error reading output", "id", p.id, "source", source, "error", err)
	}
}

package outputs

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/smazurov/outputnode/internal/handles"
	"github.com/smazurov/outputnode/internal/logging"
	"github.com/smazurov/outputnode/internal/mainloop"
)

// Hooks report machine activity to the owner. All hooks run on the loop.
type Hooks struct {
	// StateChanged fires on every transition.
	StateChanged func(kind handles.OutputKind, from, to State)
	// Signal fires for advisory signals: reconnect, reconnect_success,
	// saved, file_changed, paused and unpaused.
	Signal func(kind handles.OutputKind, sig handles.Signal, data handles.SignalData)
	// Stopped fires when the machine returns to idle after a successful start.
	Stopped func(kind handles.OutputKind, code StopCode, message string)
}

var advisorySignals = []handles.Signal{
	handles.SignalReconnect,
	handles.SignalReconnectSuccess,
	handles.SignalSaved,
	handles.SignalFileChanged,
	handles.SignalPaused,
	handles.SignalUnpaused,
}

// Machine drives one output kind through its states. Every method must be
// called on the loop goroutine; primitive signals are posted there.
type Machine struct {
	kind     handles.OutputKind
	loop     *mainloop.Loop
	strategy Strategy
	hooks    Hooks
	logger   *slog.Logger

	state      State
	gen        uint64
	prepared   *Prepared
	disconnect []func()
	timer      *time.Timer
	deadline   time.Time
	lastError  string
	paused     bool
}

// NewMachine creates an idle machine.
func NewMachine(loop *mainloop.Loop, strategy Strategy, hooks Hooks) *Machine {
	kind := strategy.Kind()
	return &Machine{
		kind:     kind,
		loop:     loop,
		strategy: strategy,
		hooks:    hooks,
		logger:   logging.GetLogger("outputs").With("kind", kind.String()),
		state:    StateIdle,
	}
}

// Kind returns the output kind.
func (m *Machine) Kind() handles.OutputKind { return m.kind }

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Active reports whether the machine is anywhere but idle.
func (m *Machine) Active() bool { return m.state.Active() }

// LastError returns the message of the last failed start or error stop.
func (m *Machine) LastError() string { return m.lastError }

// Paused reports whether the output is paused.
func (m *Machine) Paused() bool { return m.paused }

// Output returns the live output handle, or nil when idle.
func (m *Machine) Output() *handles.Output {
	if m.prepared == nil {
		return nil
	}
	return m.prepared.Output
}

// Path returns the file path of the current run, if any.
func (m *Machine) Path() string {
	if m.prepared == nil {
		return ""
	}
	return m.prepared.Path
}

// DelayRemaining returns the time left in a delay countdown.
func (m *Machine) DelayRemaining() time.Duration {
	if !m.state.Delayed() {
		return 0
	}
	return max(time.Until(m.deadline), 0)
}

// Start prepares and starts the output. It is only legal from idle; a
// start while active returns ALREADY_ACTIVE and changes nothing.
func (m *Machine) Start() error {
	if m.state != StateIdle {
		return NewError(ErrCodeAlreadyActive, fmt.Sprintf("%s is %s", m.kind, m.state), nil)
	}

	prepared, err := m.strategy.Prepare()
	if err != nil {
		m.lastError = err.Error()
		m.logger.Warn("Output prepare failed", "error", err)
		if HasCode(err, ErrCodeBadPath) {
			return err
		}
		return NewError(ErrCodePrepare, fmt.Sprintf("prepare %s", m.kind), err)
	}

	out := prepared.Output
	m.gen++
	gen := m.gen
	m.connect(out.Signals(), gen)

	if !out.Primitive().Start() {
		m.disconnectAll()
		m.gen++
		msg := out.Primitive().LastError()
		if msg == "" {
			msg = fmt.Sprintf("Failed to start %s output.", m.kind)
		}
		m.lastError = msg
		m.strategy.Teardown(prepared)
		m.logger.Warn("Output start failed", "error", msg)
		return NewError(ErrCodeStartFailed, msg, nil)
	}

	m.prepared = prepared
	m.lastError = ""
	m.paused = false
	out.SetActive(true)
	m.logger.Info("Output starting", "output", out.Name(), "type", out.TypeID())
	m.setState(StateStarting)
	return nil
}

// Stop requests a stop. With force the output is aborted and the machine
// is idle on return. Otherwise the machine passes through stopping, and
// delayed stopping when an exit delay is configured, until the primitive
// reports it has stopped.
func (m *Machine) Stop(force bool) {
	if m.state == StateIdle {
		return
	}
	if force {
		prim := m.prepared.Output.Primitive()
		m.gen++
		m.cancelTimer()
		prim.ForceStop()
		m.logger.Info("Output force stopped")
		m.finish(StopSuccess, "")
		return
	}
	if m.state.Stopping() {
		return
	}

	m.logger.Info("Output stopping", "delay", m.prepared.StopDelay)
	m.cancelTimer()
	m.prepared.Output.Primitive().Stop()
	if m.prepared.StopDelay > 0 {
		m.beginStopDelay(m.prepared.StopDelay)
		return
	}
	m.setState(StateStopping)
}

// Pause pauses or resumes the output.
func (m *Machine) Pause(paused bool) error {
	if m.state != StateActive {
		return NewError(ErrCodeNotActive, fmt.Sprintf("%s is not active", m.kind), nil)
	}
	if m.paused == paused {
		return nil
	}
	if !m.prepared.Output.Primitive().Pause(paused) {
		return NewError(ErrCodeUnsupported, "pause", ErrUnsupported)
	}
	m.paused = paused
	return nil
}

// Split asks the output to continue in a new file.
func (m *Machine) Split() error {
	if m.state != StateActive {
		return NewError(ErrCodeNotActive, fmt.Sprintf("%s is not active", m.kind), nil)
	}
	if !m.prepared.Output.Primitive().SplitFile() {
		return NewError(ErrCodeUnsupported, "split", ErrUnsupported)
	}
	return nil
}

// SaveReplay asks a replay buffer to write its window. Completion is
// reported through the saved signal.
func (m *Machine) SaveReplay() error {
	if m.state != StateActive {
		return NewError(ErrCodeNotActive, fmt.Sprintf("%s is not active", m.kind), nil)
	}
	if !m.prepared.Output.Primitive().SaveReplay() {
		return NewError(ErrCodeUnsupported, "save replay", ErrUnsupported)
	}
	return nil
}

func (m *Machine) connect(sigs *handles.SignalHandler, gen uint64) {
	on := func(sig handles.Signal) {
		m.disconnect = append(m.disconnect, sigs.Connect(sig, func(data handles.SignalData) {
			m.loop.Post(func() {
				if m.gen != gen {
					return
				}
				m.handle(sig, data)
			})
		}))
	}
	on(handles.SignalStarting)
	on(handles.SignalStart)
	on(handles.SignalStopping)
	on(handles.SignalStop)
	for _, sig := range advisorySignals {
		on(sig)
	}
}

func (m *Machine) handle(sig handles.Signal, data handles.SignalData) {
	switch sig {
	case handles.SignalStarting:
		if m.state == StateStarting && data.TimeoutSec > 0 {
			m.beginStartDelay(time.Duration(data.TimeoutSec) * time.Second)
		}
	case handles.SignalStart:
		if m.state == StateStarting {
			m.setState(StateActive)
		}
	case handles.SignalStopping:
		if m.state.Stopping() {
			return
		}
		m.cancelTimer()
		if data.TimeoutSec > 0 {
			m.beginStopDelay(time.Duration(data.TimeoutSec) * time.Second)
			return
		}
		m.setState(StateStopping)
	case handles.SignalStop:
		m.gen++
		m.cancelTimer()
		m.finish(StopCode(data.Code), data.LastError)
	default:
		switch sig {
		case handles.SignalPaused:
			m.paused = true
		case handles.SignalUnpaused:
			m.paused = false
		case handles.SignalFileChanged:
			if m.prepared != nil && data.Path != "" {
				m.prepared.Path = data.Path
			}
		}
		if m.hooks.Signal != nil {
			m.hooks.Signal(m.kind, sig, data)
		}
	}
}

func (m *Machine) beginStartDelay(d time.Duration) {
	gen := m.gen
	m.deadline = time.Now().Add(d)
	m.setState(StateDelayedStarting)
	m.timer = m.loop.After(d, func() {
		if m.gen != gen || m.state != StateDelayedStarting {
			return
		}
		m.timer = nil
		m.setState(StateActive)
	})
}

func (m *Machine) beginStopDelay(d time.Duration) {
	gen := m.gen
	m.deadline = time.Now().Add(d)
	m.setState(StateDelayedStopping)
	m.timer = m.loop.After(d, func() {
		if m.gen != gen || m.state != StateDelayedStopping {
			return
		}
		m.timer = nil
		m.setState(StateStopping)
	})
}

func (m *Machine) cancelTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.deadline = time.Time{}
}

func (m *Machine) finish(code StopCode, lastError string) {
	m.disconnectAll()
	prepared := m.prepared
	m.prepared = nil
	m.paused = false

	msg := StopMessage(code, lastError)
	if code != StopSuccess {
		m.lastError = msg
		m.logger.Warn("Output stopped with error", "code", code.String(), "error", lastError)
	} else {
		m.logger.Info("Output stopped")
	}

	if prepared != nil {
		prepared.Output.SetActive(false)
		m.strategy.Teardown(prepared)
	}
	m.setState(StateIdle)
	if m.hooks.Stopped != nil {
		m.hooks.Stopped(m.kind, code, msg)
	}
}

func (m *Machine) disconnectAll() {
	for _, off := range m.disconnect {
		off()
	}
	m.disconnect = nil
}

func (m *Machine) setState(to State) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	m.logger.Debug("Output state changed", "from", string(from), "to", string(to))
	if m.hooks.StateChanged != nil {
		m.hooks.StateChanged(m.kind, from, to)
	}
}

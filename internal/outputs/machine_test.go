package outputs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/outputnode/internal/backend/memory"
	"github.com/smazurov/outputnode/internal/handles"
	"github.com/smazurov/outputnode/internal/mainloop"
)

const testOutputType = "ffmpeg_muxer"

type testStrategy struct {
	table      *handles.Table
	enc        *handles.Encoder
	prepareErr error
	stopDelay  time.Duration
	teardowns  int
}

func (s *testStrategy) Kind() handles.OutputKind { return handles.OutputFile }

func (s *testStrategy) Prepare() (*Prepared, error) {
	if s.prepareErr != nil {
		return nil, s.prepareErr
	}
	out, err := s.table.CreateOutput(handles.OutputFile, testOutputType, "rec", nil)
	if err != nil {
		return nil, err
	}
	s.enc.Bind(0)
	if err := out.SetVideoEncoder(0, s.enc); err != nil {
		return nil, err
	}
	out.Update(handles.Settings{"path": "/tmp/rec.mkv", "directory": "/tmp"})
	return &Prepared{Output: out, StopDelay: s.stopDelay, Path: "/tmp/rec.mkv"}, nil
}

func (s *testStrategy) Teardown(p *Prepared) {
	s.teardowns++
	p.Output.Release()
}

type harness struct {
	loop     *mainloop.Loop
	backend  *memory.Backend
	strategy *testStrategy
	machine  *Machine
	states   chan State
	signals  chan handles.Signal
	stops    chan StopCode
}

func newHarness(t *testing.T, behavior memory.Behavior) *harness {
	t.Helper()
	loop := mainloop.New()
	t.Cleanup(loop.Close)

	backend := memory.New([]string{"obs_x264"}, []string{testOutputType})
	backend.SetBehavior(testOutputType, behavior)
	table := handles.NewTable(backend, backend)
	enc, err := table.CreateEncoder(handles.MediaVideo, "obs_x264", "rec_h264", nil)
	if err != nil {
		t.Fatalf("CreateEncoder failed: %v", err)
	}

	h := &harness{
		loop:     loop,
		backend:  backend,
		strategy: &testStrategy{table: table, enc: enc},
		states:   make(chan State, 32),
		signals:  make(chan handles.Signal, 32),
		stops:    make(chan StopCode, 8),
	}
	h.machine = NewMachine(loop, h.strategy, Hooks{
		StateChanged: func(_ handles.OutputKind, _, to State) { h.states <- to },
		Signal:       func(_ handles.OutputKind, sig handles.Signal, _ handles.SignalData) { h.signals <- sig },
		Stopped:      func(_ handles.OutputKind, code StopCode, _ string) { h.stops <- code },
	})
	return h
}

func (h *harness) do(t *testing.T, fn func()) {
	t.Helper()
	if err := h.loop.Call(context.Background(), fn); err != nil {
		t.Fatalf("loop call failed: %v", err)
	}
}

func (h *harness) start(t *testing.T) error {
	t.Helper()
	var err error
	h.do(t, func() { err = h.machine.Start() })
	return err
}

func (h *harness) state(t *testing.T) State {
	t.Helper()
	var s State
	h.do(t, func() { s = h.machine.State() })
	return s
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case s := <-h.states:
			if s == want {
				return
			}
		case <-timeout:
			t.Fatalf("Timed out waiting for state %s (current %s)", want, h.state(t))
		}
	}
}

func TestMachine_StartStop(t *testing.T) {
	h := newHarness(t, memory.Behavior{})

	if err := h.start(t); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	h.waitState(t, StateStarting)
	h.waitState(t, StateActive)

	h.do(t, func() { h.machine.Stop(false) })
	h.waitState(t, StateStopping)
	h.waitState(t, StateIdle)

	select {
	case code := <-h.stops:
		if code != StopSuccess {
			t.Errorf("Expected success stop, got %s", code)
		}
	case <-time.After(time.Second):
		t.Fatal("Stopped hook not called")
	}
	if h.strategy.teardowns != 1 {
		t.Errorf("Expected 1 teardown, got %d", h.strategy.teardowns)
	}
}

func TestMachine_NoDoubleStart(t *testing.T) {
	h := newHarness(t, memory.Behavior{HoldStart: true})

	if err := h.start(t); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	err := h.start(t)
	if !HasCode(err, ErrCodeAlreadyActive) {
		t.Fatalf("Expected ALREADY_ACTIVE, got %v", err)
	}
	if n := len(h.backend.Outputs()); n != 1 {
		t.Errorf("Expected a single output primitive, got %d", n)
	}
	if s := h.state(t); s != StateStarting {
		t.Errorf("Expected state unchanged at starting, got %s", s)
	}
}

func TestMachine_StartFailure(t *testing.T) {
	tests := []struct {
		name     string
		behavior memory.Behavior
		wantMsg  string
	}{
		{"primitive error", memory.Behavior{FailStart: "connection refused"}, "connection refused"},
		{"generic message", memory.Behavior{FailSilent: true}, "Failed to start recording output."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.behavior)

			err := h.start(t)
			if !HasCode(err, ErrCodeStartFailed) {
				t.Fatalf("Expected START_FAILED, got %v", err)
			}
			var lastErr string
			var state State
			h.do(t, func() {
				lastErr = h.machine.LastError()
				state = h.machine.State()
			})
			if state != StateIdle {
				t.Errorf("Expected idle, got %s", state)
			}
			if lastErr != tt.wantMsg {
				t.Errorf("Expected last error %q, got %q", tt.wantMsg, lastErr)
			}
			if h.strategy.teardowns != 1 {
				t.Errorf("Expected teardown after failed start, got %d", h.strategy.teardowns)
			}
		})
	}
}

func TestMachine_BadPathStaysIdle(t *testing.T) {
	h := newHarness(t, memory.Behavior{})
	_, pathErr := GenerateFilename(OSFS{}, FilenameOptions{Dir: "/definitely/not/here"}, time.Now())
	h.strategy.prepareErr = pathErr

	err := h.start(t)
	if !errors.Is(err, ErrBadPath) {
		t.Fatalf("Expected ErrBadPath, got %v", err)
	}
	if s := h.state(t); s != StateIdle {
		t.Errorf("Expected idle, got %s", s)
	}
	if len(h.backend.Outputs()) != 0 {
		t.Error("Expected no output created for a bad path")
	}
}

func TestMachine_DelayedStart(t *testing.T) {
	h := newHarness(t, memory.Behavior{StartDelaySec: 1, HoldStart: true})

	if err := h.start(t); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	h.waitState(t, StateDelayedStarting)

	var remaining time.Duration
	h.do(t, func() { remaining = h.machine.DelayRemaining() })
	if remaining <= 0 || remaining > time.Second {
		t.Errorf("Expected remaining delay in (0, 1s], got %v", remaining)
	}

	h.waitState(t, StateActive)
}

func TestMachine_ForceStopDuringDelayedStopping(t *testing.T) {
	h := newHarness(t, memory.Behavior{HoldStop: true})
	h.strategy.stopDelay = 5 * time.Second

	if err := h.start(t); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	h.waitState(t, StateActive)

	h.do(t, func() { h.machine.Stop(false) })
	h.waitState(t, StateDelayedStopping)

	var active bool
	var state State
	h.do(t, func() {
		h.machine.Stop(true)
		active = h.machine.Active()
		state = h.machine.State()
	})
	if active || state != StateIdle {
		t.Fatalf("Expected idle immediately after force stop, got %s", state)
	}

	// A late stop signal from the primitive must not disturb the idle machine.
	h.backend.LastOutput(testOutputType).Emit(handles.SignalStop, handles.SignalData{Code: int(StopError)})
	h.do(t, func() {})
	if h.strategy.teardowns != 1 {
		t.Errorf("Expected exactly 1 teardown, got %d", h.strategy.teardowns)
	}
}

func TestMachine_GracefulStopNeverSkipsStopping(t *testing.T) {
	h := newHarness(t, memory.Behavior{HoldStop: true})

	if err := h.start(t); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	h.waitState(t, StateActive)

	h.do(t, func() { h.machine.Stop(false) })
	h.waitState(t, StateStopping)
	if !h.state(t).Active() {
		t.Error("Expected machine still active while stopping")
	}

	h.backend.LastOutput(testOutputType).Emit(handles.SignalStop, handles.SignalData{})
	h.waitState(t, StateIdle)
}

func TestMachine_ErrorStop(t *testing.T) {
	h := newHarness(t, memory.Behavior{})

	if err := h.start(t); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	h.waitState(t, StateActive)

	h.backend.LastOutput(testOutputType).Emit(handles.SignalStop, handles.SignalData{
		Code:      int(StopDisconnected),
		LastError: "connection reset by peer",
	})
	h.waitState(t, StateIdle)

	select {
	case code := <-h.stops:
		if code != StopDisconnected {
			t.Errorf("Expected disconnected, got %s", code)
		}
	case <-time.After(time.Second):
		t.Fatal("Stopped hook not called")
	}
	var lastErr string
	h.do(t, func() { lastErr = h.machine.LastError() })
	if !strings.Contains(lastErr, "Disconnected") || !strings.Contains(lastErr, "connection reset by peer") {
		t.Errorf("Unexpected last error %q", lastErr)
	}
}

func TestMachine_AdvisorySignals(t *testing.T) {
	h := newHarness(t, memory.Behavior{})

	if err := h.start(t); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	h.waitState(t, StateActive)

	out := h.backend.LastOutput(testOutputType)
	out.Emit(handles.SignalReconnect, handles.SignalData{TimeoutSec: 2})
	out.Emit(handles.SignalReconnectSuccess, handles.SignalData{})

	for _, want := range []handles.Signal{handles.SignalReconnect, handles.SignalReconnectSuccess} {
		select {
		case got := <-h.signals:
			if got != want {
				t.Errorf("Expected %s, got %s", want, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("Timed out waiting for %s", want)
		}
	}
	if s := h.state(t); s != StateActive {
		t.Errorf("Reconnect signals changed state to %s", s)
	}
}

func TestMachine_PauseSplit(t *testing.T) {
	h := newHarness(t, memory.Behavior{})

	var err error
	h.do(t, func() { err = h.machine.Pause(true) })
	if !HasCode(err, ErrCodeNotActive) {
		t.Fatalf("Expected NOT_ACTIVE, got %v", err)
	}

	if err := h.start(t); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	h.waitState(t, StateActive)

	h.do(t, func() { err = h.machine.Pause(true) })
	if err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	h.do(t, func() { err = h.machine.Split() })
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		var path string
		h.do(t, func() { path = h.machine.Path() })
		if path == "/tmp/rec.mkv.part1" {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("Expected path to follow file_changed, got %q", path)
		case <-time.After(10 * time.Millisecond):
		}
	}

	h.do(t, func() { err = h.machine.SaveReplay() })
	if err != nil {
		t.Fatalf("SaveReplay on memory output with directory failed: %v", err)
	}
}

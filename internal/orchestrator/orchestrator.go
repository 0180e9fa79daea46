// Package orchestrator runs the four output pipelines (stream, recording,
// replay buffer, virtual camera) on top of a shared encoder pool.
//
// All state is owned by a single loop goroutine. Public methods marshal
// onto it and must not be called from loop callbacks; the active flags are
// the only state read without going through the loop.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/outputnode/internal/events"
	"github.com/smazurov/outputnode/internal/handles"
	"github.com/smazurov/outputnode/internal/logging"
	"github.com/smazurov/outputnode/internal/mainloop"
	"github.com/smazurov/outputnode/internal/multitrack"
	"github.com/smazurov/outputnode/internal/outputs"
	"github.com/smazurov/outputnode/internal/presets"
	"github.com/smazurov/outputnode/internal/profile"
	"github.com/smazurov/outputnode/internal/version"
)

// DefaultNegotiationTimeout bounds the multitrack config request.
const DefaultNegotiationTimeout = 10 * time.Second

// ErrClosed is returned by operations on a closed orchestrator.
var ErrClosed = errors.New("orchestrator is closed")

// Config wires an orchestrator to its backend.
type Config struct {
	Encoders handles.EncoderFactory
	Outputs  handles.OutputFactory
	// Profile defaults to profile.Default().
	Profile *profile.Profile
	// Loop is the owner loop. When nil the orchestrator starts its own and
	// closes it in Close.
	Loop *mainloop.Loop
	// Bus receives state and signal events. Optional.
	Bus *events.Bus
	// FS defaults to outputs.OSFS.
	FS outputs.FS
	// Fetcher defaults to an HTTP fetcher with DefaultNegotiationTimeout.
	Fetcher  multitrack.Fetcher
	Identity multitrack.ClientIdentity
	Now      func() time.Time
}

type audioKey struct {
	typeID  string
	mixer   int
	bitrate int
}

// Orchestrator owns the output machines and the encoders they share.
type Orchestrator struct {
	loop       *mainloop.Loop
	ownLoop    bool
	table      *handles.Table
	bus        *events.Bus
	fs         outputs.FS
	now        func() time.Time
	logger     *slog.Logger
	negotiator *multitrack.Negotiator

	// Loop-owned.
	profile      *profile.Profile
	plan         presets.Plan
	pending      *profile.Profile
	machines     [4]*outputs.Machine
	service      handles.Service
	streamPreset *presets.StreamingPreset
	streamVideo  *handles.Encoder
	audio        map[audioKey]*handles.Encoder
	session      *multitrack.Result
	negotiating  bool
	cancelStart  bool

	flags  ActiveFlags
	closed atomic.Bool

	mu                sync.RWMutex
	lastError         string
	lastRecordingPath string
	lastReplayPath    string
}

// New validates the profile against the backend and creates an idle
// orchestrator. It fails with handles.ErrTypeUnavailable when the file or
// replay output, the stream encoder family or the stream audio encoder is
// missing.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Encoders == nil || cfg.Outputs == nil {
		return nil, errors.New("orchestrator needs encoder and output factories")
	}
	p := cfg.Profile
	if p == nil {
		p = profile.Default()
	}
	p = p.Clone()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}

	o := &Orchestrator{
		table:  handles.NewTable(cfg.Encoders, cfg.Outputs),
		bus:    cfg.Bus,
		fs:     cfg.FS,
		now:    cfg.Now,
		logger: logging.GetLogger("orchestrator"),
		audio:  make(map[audioKey]*handles.Encoder),
	}
	if o.fs == nil {
		o.fs = outputs.OSFS{}
	}
	if o.now == nil {
		o.now = time.Now
	}

	plan, err := o.check(p)
	if err != nil {
		return nil, err
	}
	o.profile, o.plan = p, plan

	o.loop = cfg.Loop
	if o.loop == nil {
		o.loop = mainloop.New()
		o.ownLoop = true
	}

	fetcher := cfg.Fetcher
	if fetcher == nil {
		fetcher = multitrack.NewHTTPFetcher(DefaultNegotiationTimeout)
	}
	identity := cfg.Identity
	if identity.Name == "" {
		identity.Name, identity.Version = "outputnode", version.String()
	}
	o.negotiator = multitrack.New(o.loop, fetcher, identity)

	hooks := outputs.Hooks{
		StateChanged: o.onStateChanged,
		Signal:       o.onSignal,
		Stopped:      o.onStopped,
	}
	for _, s := range []outputs.Strategy{
		&streamStrategy{o: o},
		&recordStrategy{o: o},
		&replayStrategy{o: o},
		&virtualCamStrategy{o: o},
	} {
		o.machines[s.Kind()] = outputs.NewMachine(o.loop, s, hooks)
	}

	o.logger.Info("Orchestrator ready", "mode", string(plan.Mode()), "encoder", p.StreamEncoder())
	return o, nil
}

// check verifies that the backend can serve p and reconciles the recording
// selection in place.
func (o *Orchestrator) check(p *profile.Profile) (presets.Plan, error) {
	for _, typeID := range []string{presets.OutputFile, presets.OutputReplay} {
		if err := o.table.RequireOutputType(typeID); err != nil {
			return nil, err
		}
	}

	family, ok := presets.LookupFamily(p.StreamEncoder())
	if !ok {
		return nil, fmt.Errorf("%w: %s", presets.ErrUnknownEncoder, p.StreamEncoder())
	}
	if err := o.table.RequireEncoderType(family.TypeID); err != nil {
		return nil, err
	}
	if err := o.table.RequireEncoderType(presets.Caps(p.Service.Protocol()).AudioType); err != nil {
		return nil, err
	}

	if sel, reset := presets.Reconcile(p.RecordingSelection(), o.table.EncoderTypeAvailable); reset {
		o.logger.Warn("Recording encoder no longer usable, selection reset", "container", sel.Container)
		p.SetRecordingSelection(sel)
	}
	return p.Plan()
}

// Close stops every output, cancels a pending negotiation and releases the
// encoder pool.
func (o *Orchestrator) Close() {
	if o.closed.Swap(true) {
		return
	}
	_ = o.loop.Call(context.Background(), func() {
		o.negotiator.Close()
		for _, m := range o.machines {
			m.Stop(true)
		}
		o.releasePool()
	})
	if o.ownLoop {
		o.loop.Close()
	}
	o.logger.Info("Orchestrator closed")
}

// Loop returns the owner loop.
func (o *Orchestrator) Loop() *mainloop.Loop {
	return o.loop
}

// Table returns the handle table, for diagnostics.
func (o *Orchestrator) Table() *handles.Table {
	return o.table
}

// Flags returns the active flags. Reads are relaxed.
func (o *Orchestrator) Flags() *ActiveFlags {
	return &o.flags
}

// Active reports whether any output is active.
func (o *Orchestrator) Active() bool {
	return o.flags.Any()
}

// StreamingActive reports whether the stream is active.
func (o *Orchestrator) StreamingActive() bool { return o.flags.Active(handles.OutputStream) }

// RecordingActive reports whether a recording is active.
func (o *Orchestrator) RecordingActive() bool { return o.flags.Active(handles.OutputFile) }

// ReplayBufferActive reports whether the replay buffer is active.
func (o *Orchestrator) ReplayBufferActive() bool { return o.flags.Active(handles.OutputReplay) }

// VirtualCamActive reports whether the virtual camera is active.
func (o *Orchestrator) VirtualCamActive() bool { return o.flags.Active(handles.OutputVirtualCam) }

// LastError returns the message of the most recent failure.
func (o *Orchestrator) LastError() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastError
}

// LastRecordingPath returns the file the current or last recording wrote.
func (o *Orchestrator) LastRecordingPath() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastRecordingPath
}

// LastReplayPath returns the file the last replay save wrote.
func (o *Orchestrator) LastReplayPath() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastReplayPath
}

func (o *Orchestrator) setLastError(msg string) {
	o.mu.Lock()
	o.lastError = msg
	o.mu.Unlock()
}

func (o *Orchestrator) setLastRecordingPath(path string) {
	o.mu.Lock()
	o.lastRecordingPath = path
	o.mu.Unlock()
}

func (o *Orchestrator) setLastReplayPath(path string) {
	o.mu.Lock()
	o.lastReplayPath = path
	o.mu.Unlock()
}

// run executes fn on the loop.
func (o *Orchestrator) run(fn func()) error {
	if o.closed.Load() {
		return ErrClosed
	}
	if err := o.loop.Call(context.Background(), fn); err != nil {
		if errors.Is(err, mainloop.ErrClosed) {
			return ErrClosed
		}
		return err
	}
	return nil
}

// StartRecording starts a recording. On failure it returns false and
// LastError explains why.
func (o *Orchestrator) StartRecording() bool {
	return o.startOnLoop(handles.OutputFile)
}

// StartReplayBuffer starts the replay buffer.
func (o *Orchestrator) StartReplayBuffer() bool {
	return o.startOnLoop(handles.OutputReplay)
}

// StartVirtualCam starts the virtual camera.
func (o *Orchestrator) StartVirtualCam() bool {
	return o.startOnLoop(handles.OutputVirtualCam)
}

func (o *Orchestrator) startOnLoop(kind handles.OutputKind) bool {
	ok := false
	if err := o.run(func() { ok = o.startKind(kind) }); err != nil {
		o.setLastError(err.Error())
		return false
	}
	return ok
}

// startKind runs on the loop.
func (o *Orchestrator) startKind(kind handles.OutputKind) bool {
	if err := o.machines[kind].Start(); err != nil {
		o.setLastError(displayError(err))
		return false
	}
	return true
}

// displayError turns a machine error into a message for the user.
func displayError(err error) string {
	var oe *outputs.Error
	if !errors.As(err, &oe) {
		return err.Error()
	}
	switch {
	case errors.Is(oe.Cause, outputs.ErrBadPath):
		return fmt.Sprintf("Invalid %s. Check your settings.", oe.Message)
	case oe.Cause != nil:
		return fmt.Sprintf("%s: %v", oe.Message, oe.Cause)
	}
	return oe.Message
}

// StopStreaming stops the stream. Without force a configured stream delay
// is honoured.
func (o *Orchestrator) StopStreaming(force bool) {
	o.stopOnLoop(handles.OutputStream, force)
}

// StopRecording stops the recording.
func (o *Orchestrator) StopRecording(force bool) {
	o.stopOnLoop(handles.OutputFile, force)
}

// StopReplayBuffer stops the replay buffer.
func (o *Orchestrator) StopReplayBuffer(force bool) {
	o.stopOnLoop(handles.OutputReplay, force)
}

// StopVirtualCam stops the virtual camera.
func (o *Orchestrator) StopVirtualCam() {
	o.stopOnLoop(handles.OutputVirtualCam, false)
}

func (o *Orchestrator) stopOnLoop(kind handles.OutputKind, force bool) {
	err := o.run(func() {
		// A stream still negotiating has no running output yet.
		if kind == handles.OutputStream && o.negotiating {
			o.logger.Info("Stream start cancelled during multitrack negotiation")
			o.cancelStart = true
			o.negotiator.Close()
		}
		o.machines[kind].Stop(force)
	})
	if err != nil {
		o.logger.Debug("Stop ignored", "kind", kind.String(), "error", err)
	}
}

// OutputStatus is the state of one output kind.
type OutputStatus struct {
	State         string  `json:"state" example:"active" doc:"Machine state"`
	Active        bool    `json:"active"`
	Paused        bool    `json:"paused,omitempty"`
	DelaySec      float64 `json:"delay_remaining_sec,omitempty" doc:"Seconds left in a delay countdown"`
	Output        string  `json:"output,omitempty" doc:"Output name"`
	OutputType    string  `json:"output_type,omitempty"`
	VideoEncoders int     `json:"video_encoders,omitempty"`
	AudioTracks   int     `json:"audio_tracks,omitempty"`
	LastError     string  `json:"last_error,omitempty"`
}

// Status is a snapshot of the whole orchestrator.
type Status struct {
	Mode              string                  `json:"mode"`
	Outputs           map[string]OutputStatus `json:"outputs"`
	Flags             FlagSnapshot            `json:"flags"`
	LastError         string                  `json:"last_error,omitempty"`
	LastRecordingPath string                  `json:"last_recording_path,omitempty"`
	LastReplayPath    string                  `json:"last_replay_path,omitempty"`
	Multitrack        string                  `json:"multitrack,omitempty" doc:"Session id of an engaged multitrack stream"`
	ProfilePending    bool                    `json:"profile_pending" doc:"A profile change waits for outputs to stop"`
	LiveEncoders      int                     `json:"live_encoders"`
	LiveOutputs       int                     `json:"live_outputs"`
}

// Status returns a snapshot taken on the loop.
func (o *Orchestrator) Status() (Status, error) {
	var st Status
	err := o.run(func() {
		st = Status{
			Mode:           string(o.plan.Mode()),
			Outputs:        make(map[string]OutputStatus, len(o.machines)),
			ProfilePending: o.pending != nil,
		}
		for _, m := range o.machines {
			s := OutputStatus{
				State:     string(m.State()),
				Active:    m.Active(),
				Paused:    m.Paused(),
				DelaySec:  m.DelayRemaining().Seconds(),
				LastError: m.LastError(),
			}
			if out := m.Output(); out != nil {
				s.Output = out.Name()
				s.OutputType = out.TypeID()
				s.VideoEncoders = len(out.VideoEncoders())
				s.AudioTracks = len(out.Tracks())
			}
			st.Outputs[m.Kind().String()] = s
		}
		if o.session != nil {
			st.Multitrack = o.session.SessionID
		}
	})
	if err != nil {
		return Status{}, err
	}
	st.Flags = o.flags.Snapshot()
	st.LastError = o.LastError()
	st.LastRecordingPath = o.LastRecordingPath()
	st.LastReplayPath = o.LastReplayPath()
	st.LiveEncoders = o.table.LiveEncoders()
	st.LiveOutputs = o.table.LiveOutputs()
	return st, nil
}

func (o *Orchestrator) publish(ev events.Event) {
	if o.bus != nil {
		o.bus.Publish(ev)
	}
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func (o *Orchestrator) onStateChanged(kind handles.OutputKind, from, to outputs.State) {
	o.flags.set(kind, to.Active())
	m := o.machines[kind]

	switch kind {
	case handles.OutputStream:
		o.flags.setDelay(to.Delayed())
		if to.Delayed() {
			phase := "start"
			if to == outputs.StateDelayedStopping {
				phase = "stop"
			}
			o.publish(events.StreamDelayEvent{
				Phase:        phase,
				RemainingSec: int(m.DelayRemaining().Round(time.Second) / time.Second),
				Timestamp:    timestamp(),
			})
		}
	case handles.OutputFile:
		if to == outputs.StateStarting {
			o.setLastRecordingPath(m.Path())
		}
	}

	o.logger.Info("Output state changed", "kind", kind.String(), "from", string(from), "to", string(to))
	o.publish(events.OutputStateChangedEvent{
		Kind:      kind.String(),
		From:      string(from),
		To:        string(to),
		Timestamp: timestamp(),
	})
}

func (o *Orchestrator) onSignal(kind handles.OutputKind, sig handles.Signal, data handles.SignalData) {
	switch sig {
	case handles.SignalReconnect:
		o.logger.Warn("Output reconnecting", "kind", kind.String(), "timeout_sec", data.TimeoutSec)
		o.publish(events.ReconnectEvent{Kind: kind.String(), TimeoutSec: data.TimeoutSec, Timestamp: timestamp()})
	case handles.SignalReconnectSuccess:
		o.logger.Info("Output reconnected", "kind", kind.String())
		o.publish(events.ReconnectedEvent{Kind: kind.String(), Timestamp: timestamp()})
	case handles.SignalFileChanged:
		if data.Path != "" {
			o.setLastRecordingPath(data.Path)
			o.publish(events.RecordingFileChangedEvent{Path: data.Path, Timestamp: timestamp()})
		}
	case handles.SignalSaved:
		if data.Path != "" {
			o.setLastReplayPath(data.Path)
		}
		o.logger.Info("Replay saved", "path", data.Path)
		o.publish(events.ReplaySavedEvent{Path: data.Path, Timestamp: timestamp()})
	default:
		o.logger.Debug("Output signal", "kind", kind.String(), "signal", string(sig))
	}
}

func (o *Orchestrator) onStopped(kind handles.OutputKind, code outputs.StopCode, msg string) {
	if code != outputs.StopSuccess {
		o.setLastError(msg)
	}
	o.publish(events.OutputStoppedEvent{
		Kind:      kind.String(),
		Code:      int(code),
		Message:   msg,
		Timestamp: timestamp(),
	})
	o.pruneAudio()
	o.applyPending()
}

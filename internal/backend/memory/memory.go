// Package memory is an in-process backend for encoders and outputs. Nothing
// is encoded; outputs raise the same signals a real backend would, which
// makes it suitable for tests and dry runs.
package memory

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/smazurov/outputnode/internal/handles"
	"github.com/smazurov/outputnode/internal/logging"
)

// Behavior controls how outputs of one type react to Start and Stop.
type Behavior struct {
	// FailStart makes Start return false with this last error.
	FailStart string
	// FailSilent makes Start return false without a last error.
	FailSilent bool
	// StartDelaySec is reported through the starting signal.
	StartDelaySec int
	// HoldStart suppresses the automatic start signal.
	HoldStart bool
	// HoldStop suppresses the automatic stop signal on a graceful Stop.
	HoldStop bool
	// StopDelaySec is reported through the stopping signal.
	StopDelaySec int
}

// Backend implements handles.EncoderFactory and handles.OutputFactory.
type Backend struct {
	mu           sync.Mutex
	encoderTypes map[string]bool
	outputTypes  map[string]bool
	behaviors    map[string]Behavior
	encoders     []*Encoder
	outputs      []*Output
	now          func() time.Time
}

// New creates a backend supporting the given type ids.
func New(encoderTypes, outputTypes []string) *Backend {
	b := &Backend{
		encoderTypes: make(map[string]bool),
		outputTypes:  make(map[string]bool),
		behaviors:    make(map[string]Behavior),
		now:          time.Now,
	}
	for _, t := range encoderTypes {
		b.encoderTypes[t] = true
	}
	for _, t := range outputTypes {
		b.outputTypes[t] = true
	}
	return b
}

// SetBehavior configures outputs of typeID created from now on and those
// already created.
func (b *Backend) SetBehavior(typeID string, behavior Behavior) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.behaviors[typeID] = behavior
}

// RemoveEncoderType makes typeID unavailable.
func (b *Backend) RemoveEncoderType(typeID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.encoderTypes, typeID)
}

// RemoveOutputType makes typeID unavailable.
func (b *Backend) RemoveOutputType(typeID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.outputTypes, typeID)
}

func (b *Backend) behavior(typeID string) Behavior {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.behaviors[typeID]
}

// Encoder is an in-memory encoder primitive.
type Encoder struct {
	mu        sync.Mutex
	kind      handles.MediaKind
	typeID    string
	name      string
	settings  handles.Settings
	source    *handles.MediaSource
	destroyed bool
}

// TypeID implements handles.EncoderPrimitive.
func (e *Encoder) TypeID() string { return e.typeID }

// Name returns the encoder name.
func (e *Encoder) Name() string { return e.name }

// Settings returns a copy of the applied settings.
func (e *Encoder) Settings() handles.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings.Clone()
}

// Bound reports whether the encoder was bound to a media source.
func (e *Encoder) Bound() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.source != nil
}

// Destroyed reports whether DestroyEncoder was called.
func (e *Encoder) Destroyed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.destroyed
}

// CreateEncoder implements handles.EncoderFactory.
func (b *Backend) CreateEncoder(kind handles.MediaKind, typeID, name string, settings handles.Settings) (handles.EncoderPrimitive, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.encoderTypes[typeID] {
		return nil, false
	}
	e := &Encoder{kind: kind, typeID: typeID, name: name, settings: settings.Clone()}
	b.encoders = append(b.encoders, e)
	return e, true
}

// UpdateEncoder implements handles.EncoderFactory.
func (b *Backend) UpdateEncoder(enc handles.EncoderPrimitive, settings handles.Settings) {
	e := enc.(*Encoder)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settings = settings.Clone()
}

// BindVideo implements handles.EncoderFactory.
func (b *Backend) BindVideo(enc handles.EncoderPrimitive, src handles.MediaSource) {
	b.bind(enc, src)
}

// BindAudio implements handles.EncoderFactory.
func (b *Backend) BindAudio(enc handles.EncoderPrimitive, src handles.MediaSource) {
	b.bind(enc, src)
}

func (b *Backend) bind(enc handles.EncoderPrimitive, src handles.MediaSource) {
	e := enc.(*Encoder)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.source = &src
}

// DestroyEncoder implements handles.EncoderFactory.
func (b *Backend) DestroyEncoder(enc handles.EncoderPrimitive) {
	e := enc.(*Encoder)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.destroyed = true
}

// EncoderTypeAvailable implements handles.EncoderFactory.
func (b *Backend) EncoderTypeAvailable(typeID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.encoderTypes[typeID]
}

// Encoders returns every encoder created so far.
func (b *Backend) Encoders() []*Encoder {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Encoder(nil), b.encoders...)
}

// CreateOutput implements handles.OutputFactory.
func (b *Backend) CreateOutput(typeID, name string, _ handles.Settings) (handles.OutputPrimitive, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.outputTypes[typeID] {
		return nil, false
	}
	o := &Output{
		backend:  b,
		typeID:   typeID,
		name:     name,
		signals:  handles.NewSignalHandler(),
		settings: handles.Settings{},
		video:    make(map[int]handles.EncoderPrimitive),
		audio:    make(map[int]handles.EncoderPrimitive),
	}
	b.outputs = append(b.outputs, o)
	logging.GetLogger("backend").Debug("Memory output created", "name", name, "type", typeID)
	return o, true
}

// DestroyOutput implements handles.OutputFactory.
func (b *Backend) DestroyOutput(out handles.OutputPrimitive) {
	o := out.(*Output)
	o.mu.Lock()
	defer o.mu.Unlock()
	o.destroyed = true
}

// OutputTypeAvailable implements handles.OutputFactory.
func (b *Backend) OutputTypeAvailable(typeID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outputTypes[typeID]
}

// Outputs returns every output created so far.
func (b *Backend) Outputs() []*Output {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Output(nil), b.outputs...)
}

// LastOutput returns the most recently created output of typeID, or nil.
func (b *Backend) LastOutput(typeID string) *Output {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.outputs) - 1; i >= 0; i-- {
		if b.outputs[i].typeID == typeID {
			return b.outputs[i]
		}
	}
	return nil
}

// Output is an in-memory output primitive.
type Output struct {
	backend *Backend
	typeID  string
	name    string
	signals *handles.SignalHandler

	mu        sync.Mutex
	settings  handles.Settings
	video     map[int]handles.EncoderPrimitive
	audio     map[int]handles.EncoderPrimitive
	service   handles.Service
	running   bool
	paused    bool
	splits    int
	saves     int
	lastError string
	destroyed bool
}

// TypeID implements handles.OutputPrimitive.
func (o *Output) TypeID() string { return o.typeID }

// Name returns the output name.
func (o *Output) Name() string { return o.name }

// Update implements handles.OutputPrimitive.
func (o *Output) Update(settings handles.Settings) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.settings = settings.Clone()
}

// Settings returns the last applied settings.
func (o *Output) Settings() handles.Settings {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.settings.Clone()
}

// SetVideoEncoder implements handles.OutputPrimitive.
func (o *Output) SetVideoEncoder(idx int, enc handles.EncoderPrimitive) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if enc == nil {
		delete(o.video, idx)
		return
	}
	o.video[idx] = enc
}

// SetAudioEncoder implements handles.OutputPrimitive.
func (o *Output) SetAudioEncoder(idx int, enc handles.EncoderPrimitive) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if enc == nil {
		delete(o.audio, idx)
		return
	}
	o.audio[idx] = enc
}

// VideoEncoder returns the encoder attached to slot idx.
func (o *Output) VideoEncoder(idx int) handles.EncoderPrimitive {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.video[idx]
}

// AudioTracks returns the number of attached audio encoders.
func (o *Output) AudioTracks() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.audio)
}

// SetService implements handles.OutputPrimitive.
func (o *Output) SetService(svc handles.Service) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.service = svc
}

// Start implements handles.OutputPrimitive.
func (o *Output) Start() bool {
	bh := o.backend.behavior(o.typeID)
	o.mu.Lock()
	if bh.FailStart != "" || bh.FailSilent {
		o.lastError = bh.FailStart
		o.mu.Unlock()
		return false
	}
	if len(o.video) == 0 && len(o.audio) == 0 {
		o.lastError = "no encoders attached"
		o.mu.Unlock()
		return false
	}
	o.running = true
	o.lastError = ""
	o.mu.Unlock()

	if bh.StartDelaySec > 0 {
		o.signals.Emit(handles.SignalStarting, handles.SignalData{TimeoutSec: bh.StartDelaySec})
	}
	if !bh.HoldStart {
		o.signals.Emit(handles.SignalStart, handles.SignalData{})
	}
	return true
}

// Stop implements handles.OutputPrimitive.
func (o *Output) Stop() {
	bh := o.backend.behavior(o.typeID)
	o.signals.Emit(handles.SignalStopping, handles.SignalData{TimeoutSec: bh.StopDelaySec})
	if bh.HoldStop {
		return
	}
	o.halt()
	o.signals.Emit(handles.SignalStop, handles.SignalData{})
}

// ForceStop implements handles.OutputPrimitive.
func (o *Output) ForceStop() {
	o.halt()
	o.signals.Emit(handles.SignalStop, handles.SignalData{})
}

func (o *Output) halt() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.running = false
	o.paused = false
}

// LastError implements handles.OutputPrimitive.
func (o *Output) LastError() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastError
}

// Signals implements handles.OutputPrimitive.
func (o *Output) Signals() *handles.SignalHandler { return o.signals }

// Pause implements handles.OutputPrimitive.
func (o *Output) Pause(paused bool) bool {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return false
	}
	o.paused = paused
	o.mu.Unlock()
	if paused {
		o.signals.Emit(handles.SignalPaused, handles.SignalData{})
	} else {
		o.signals.Emit(handles.SignalUnpaused, handles.SignalData{})
	}
	return true
}

// SaveReplay implements handles.OutputPrimitive.
func (o *Output) SaveReplay() bool {
	o.mu.Lock()
	if !o.running || !o.settings.Has("directory") {
		o.mu.Unlock()
		return false
	}
	o.saves++
	path := o.filename("Replay", o.saves)
	o.mu.Unlock()
	o.signals.Emit(handles.SignalSaved, handles.SignalData{Path: path})
	return true
}

// SplitFile implements handles.OutputPrimitive.
func (o *Output) SplitFile() bool {
	o.mu.Lock()
	if !o.running || !o.settings.Has("path") {
		o.mu.Unlock()
		return false
	}
	o.splits++
	path := fmt.Sprintf("%s.part%d", o.settings.String("path"), o.splits)
	o.mu.Unlock()
	o.signals.Emit(handles.SignalFileChanged, handles.SignalData{Path: path})
	return true
}

func (o *Output) filename(prefix string, n int) string {
	ext := o.settings.String("extension")
	if ext == "" {
		ext = "mkv"
	}
	stamp := o.backend.now().Format("2006-01-02 15-04-05")
	return filepath.Join(o.settings.String("directory"), fmt.Sprintf("%s %s %d.%s", prefix, stamp, n, ext))
}

// Emit raises sig on the output as if the transport had.
func (o *Output) Emit(sig handles.Signal, data handles.SignalData) {
	if sig == handles.SignalStop {
		o.halt()
	}
	o.signals.Emit(sig, data)
}

// Running reports whether the output was started and not stopped.
func (o *Output) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Paused reports the pause state.
func (o *Output) Paused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.paused
}

// Destroyed reports whether DestroyOutput was called.
func (o *Output) Destroyed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.destroyed
}

// Service returns the attached service.
func (o *Output) Service() handles.Service {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.service
}

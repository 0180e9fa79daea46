package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	ffargs "github.com/smazurov/outputnode/internal/ffmpeg"
	"github.com/smazurov/outputnode/internal/handles"
	"github.com/smazurov/outputnode/internal/metrics/collectors"
	"github.com/smazurov/outputnode/internal/outputs"
	"github.com/smazurov/outputnode/internal/presets"
	"github.com/smazurov/outputnode/internal/process"
)

var errNotConfigured = errors.New("output has no target")

// Output is an output primitive backed by one ffmpeg process.
type Output struct {
	backend *Backend
	typeID  string
	name    string
	signals *handles.SignalHandler
	errs    ffargs.ErrorTracker

	mu        sync.Mutex
	settings  handles.Settings
	video     map[int]*Encoder
	audio     map[int]*Encoder
	service   handles.Service
	proc      *process.Process
	timer     *time.Timer
	running   bool
	stopping  bool
	attempt   int
	lastError string
	path      string
	parts     int
	ring      *segmentRing
	progress  *collectors.ProgressCollector
}

// TypeID implements handles.OutputPrimitive.
func (o *Output) TypeID() string { return o.typeID }

// Update implements handles.OutputPrimitive.
func (o *Output) Update(settings handles.Settings) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.settings = settings.Clone()
}

// SetVideoEncoder implements handles.OutputPrimitive.
func (o *Output) SetVideoEncoder(idx int, enc handles.EncoderPrimitive) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if enc == nil {
		delete(o.video, idx)
		return
	}
	o.video[idx] = enc.(*Encoder)
}

// SetAudioEncoder implements handles.OutputPrimitive.
func (o *Output) SetAudioEncoder(idx int, enc handles.EncoderPrimitive) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if enc == nil {
		delete(o.audio, idx)
		return
	}
	o.audio[idx] = enc.(*Encoder)
}

// SetService implements handles.OutputPrimitive.
func (o *Output) SetService(svc handles.Service) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.service = svc
}

// LastError implements handles.OutputPrimitive.
func (o *Output) LastError() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastError
}

// Signals implements handles.OutputPrimitive.
func (o *Output) Signals() *handles.SignalHandler { return o.signals }

// Args returns the ffmpeg arguments the output would run with.
func (o *Output) Args() ([]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buildArgs(o.target())
}

func (o *Output) isStream() bool {
	switch o.typeID {
	case presets.OutputRTMP, presets.OutputMPEGTS, presets.OutputHLS, presets.OutputWHIP:
		return true
	}
	return false
}

// target returns where the output writes. Must hold o.mu.
func (o *Output) target() string {
	s := o.settings
	switch o.typeID {
	case presets.OutputFile:
		if o.path != "" {
			return o.path
		}
		return s.String("path")
	case presets.OutputReplay:
		if o.ring == nil {
			return ""
		}
		return o.ring.pattern()
	case presets.OutputVirtualCam:
		if dev := s.String("device"); dev != "" {
			return dev
		}
		return o.backend.cfg.VirtualCamDevice
	}
	server, key := s.String("server"), s.String("key")
	if server == "" && o.service != nil {
		server, key = o.service.URL(), o.service.Key()
	}
	if key == "" || strings.HasSuffix(server, "/"+key) {
		return server
	}
	return strings.TrimSuffix(server, "/") + "/" + key
}

// buildArgs assembles the ffmpeg command line. Must hold o.mu.
func (o *Output) buildArgs(target string) ([]string, error) {
	if target == "" {
		return nil, errNotConfigured
	}
	if len(o.video) == 0 && len(o.audio) == 0 {
		return nil, errors.New("no encoders attached")
	}

	p := &ffargs.Params{Binary: o.backend.cfg.Binary, Input: o.backend.cfg.Input, Target: target}
	if o.progress != nil {
		p.Progress = o.progress.URL()
	}
	for _, idx := range slices.Sorted(maps.Keys(o.video)) {
		p.Video = append(p.Video, o.video[idx].video())
	}
	names := o.trackNames()
	for _, idx := range slices.Sorted(maps.Keys(o.audio)) {
		p.Audio = append(p.Audio, o.audio[idx].audio(names[idx]))
	}

	s := o.settings
	switch o.typeID {
	case presets.OutputRTMP:
		p.Format = "flv"
	case presets.OutputMPEGTS:
		p.Format = "mpegts"
	case presets.OutputHLS:
		p.Format = "hls"
		p.FormatArgs = []string{"-hls_time", "2", "-hls_list_size", "6", "-method", "PUT"}
	case presets.OutputWHIP:
		p.Format = "whip"
	case presets.OutputFile:
		p.Format = s.String("muxer")
		p.FormatArgs = strings.Fields(s.String("muxer_settings"))
	case presets.OutputReplay:
		p.Format = "segment"
		p.FormatArgs = o.ring.formatArgs(s.String("muxer"))
	case presets.OutputVirtualCam:
		p.Format = "v4l2"
	}
	if o.isStream() && s.Bool("low_latency") {
		p.FormatArgs = append(p.FormatArgs, "-flush_packets", "1")
	}
	return ffargs.BuildArgs(p), nil
}

// trackNames reads "track_name_<idx>" settings, falling back to "Track N".
func (o *Output) trackNames() map[int]string {
	names := make(map[int]string, len(o.audio))
	for idx := range o.audio {
		name := o.settings.String(fmt.Sprintf("track_name_%d", idx))
		if name == "" {
			name = fmt.Sprintf("Track %d", idx+1)
		}
		names[idx] = name
	}
	return names
}

// Start implements handles.OutputPrimitive. A stream with delay_sec set
// reports the delay through the starting signal and launches ffmpeg once
// it has elapsed.
func (o *Output) Start() bool {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return false
	}
	o.errs.Reset()
	o.lastError = ""
	o.attempt = 0
	o.parts = 0
	o.path = ""
	o.stopping = false

	if o.typeID == presets.OutputReplay {
		if err := o.openRing(); err != nil {
			o.lastError = err.Error()
			o.mu.Unlock()
			return false
		}
	}
	o.openProgress()
	args, err := o.buildArgs(o.target())
	if err != nil {
		o.lastError = err.Error()
		o.release()
		o.mu.Unlock()
		return false
	}

	delay := 0
	if o.isStream() {
		delay = o.settings.Int("delay_sec")
	}
	if delay > 0 {
		o.running = true
		o.timer = time.AfterFunc(time.Duration(delay)*time.Second, func() { o.launchDelayed(args) })
		o.mu.Unlock()
		o.backend.logger.Info("Output start delayed", "name", o.name, "delay_sec", delay)
		o.signals.Emit(handles.SignalStarting, handles.SignalData{TimeoutSec: delay})
		return true
	}

	if err := o.spawn(args); err != nil {
		o.lastError = err.Error()
		o.release()
		o.mu.Unlock()
		return false
	}
	o.running = true
	o.mu.Unlock()
	o.signals.Emit(handles.SignalStart, handles.SignalData{})
	return true
}

func (o *Output) launchDelayed(args []string) {
	o.mu.Lock()
	if !o.running || o.stopping || o.proc != nil {
		o.mu.Unlock()
		return
	}
	o.timer = nil
	if err := o.spawn(args); err != nil {
		o.running = false
		o.lastError = err.Error()
		o.mu.Unlock()
		o.signals.Emit(handles.SignalStop, handles.SignalData{Code: int(outputs.StopError), LastError: err.Error()})
		return
	}
	o.mu.Unlock()
	o.signals.Emit(handles.SignalStart, handles.SignalData{})
}

// spawn starts ffmpeg. Must hold o.mu.
func (o *Output) spawn(args []string) error {
	b := o.backend
	var p *process.Process
	p = process.New(o.name, args, process.Options{
		Logger:          b.logger,
		OutputLogger:    b.ffLogger,
		LogParser:       ffargs.ParseLogLevel,
		Output:          &o.errs,
		GracefulTimeout: b.cfg.GracefulTimeout,
		OnExit:          func(code int, shutdown bool) { o.onExit(p, code, shutdown) },
		OnRestart:       func(args []string, err error) { o.onRestart(p, args, err) },
	})
	if err := p.Start(); err != nil {
		return err
	}
	o.proc = p
	return nil
}

func (o *Output) onExit(p *process.Process, exitCode int, shutdown bool) {
	o.mu.Lock()
	if o.proc != p {
		o.mu.Unlock()
		return
	}
	o.proc = nil

	if shutdown || o.stopping {
		o.running = false
		o.stopping = false
		o.release()
		o.mu.Unlock()
		o.signals.Emit(handles.SignalStop, handles.SignalData{})
		return
	}

	lastErr := o.errs.Last()
	code := classifyExit(exitCode, lastErr)
	if code == outputs.StopSuccess && o.isStream() {
		code = outputs.StopDisconnected
	}
	o.backend.logger.Warn("ffmpeg exited", "name", o.name, "exit_code", exitCode, "stop_code", code.String(), "error", lastErr)

	if o.isStream() && retryable(code) {
		if delay, ok := o.scheduleReconnect(); ok {
			o.mu.Unlock()
			o.signals.Emit(handles.SignalReconnect, handles.SignalData{TimeoutSec: int(delay / time.Second)})
			return
		}
	}

	o.running = false
	o.lastError = lastErr
	o.release()
	o.mu.Unlock()
	o.signals.Emit(handles.SignalStop, handles.SignalData{Code: int(code), LastError: lastErr})
}

// scheduleReconnect arms the next attempt under the fixed policy and
// reports whether one was allowed. Must hold o.mu.
func (o *Output) scheduleReconnect() (time.Duration, bool) {
	policy := outputs.ReconnectPolicyFromSettings(o.settings)
	delay, ok := policy.Next(o.attempt + 1)
	if !ok {
		return 0, false
	}
	o.attempt++
	o.timer = time.AfterFunc(delay, o.reconnect)
	o.backend.logger.Info("Reconnecting", "name", o.name, "attempt", o.attempt, "max", policy.MaxRetries, "delay", delay)
	return delay, true
}

func (o *Output) reconnect() {
	o.mu.Lock()
	if !o.running || o.stopping || o.proc != nil {
		o.mu.Unlock()
		return
	}
	o.timer = nil
	o.errs.Reset()
	args, err := o.buildArgs(o.target())
	if err == nil {
		err = o.spawn(args)
	}
	if err != nil {
		o.backend.logger.Warn("Reconnect attempt failed", "name", o.name, "error", err)
		if delay, ok := o.scheduleReconnect(); ok {
			o.mu.Unlock()
			o.signals.Emit(handles.SignalReconnect, handles.SignalData{TimeoutSec: int(delay / time.Second)})
			return
		}
		o.running = false
		o.lastError = err.Error()
		o.mu.Unlock()
		o.signals.Emit(handles.SignalStop, handles.SignalData{Code: int(outputs.StopDisconnected), LastError: err.Error()})
		return
	}

	p := o.proc
	o.timer = time.AfterFunc(o.backend.cfg.StableAfter, func() { o.confirmReconnect(p) })
	o.mu.Unlock()
}

func (o *Output) confirmReconnect(p *process.Process) {
	o.mu.Lock()
	if o.proc != p || o.stopping {
		o.mu.Unlock()
		return
	}
	o.timer = nil
	o.attempt = 0
	o.mu.Unlock()
	o.backend.logger.Info("Reconnected", "name", o.name)
	o.signals.Emit(handles.SignalReconnectSuccess, handles.SignalData{})
}

func (o *Output) onRestart(p *process.Process, args []string, err error) {
	o.mu.Lock()
	if o.proc != p {
		o.mu.Unlock()
		return
	}
	if err != nil {
		o.mu.Unlock()
		return
	}
	path := args[len(args)-1]
	o.path = path
	o.mu.Unlock()
	o.signals.Emit(handles.SignalFileChanged, handles.SignalData{Path: path})
}

// Stop implements handles.OutputPrimitive. A stream with delay_sec set keeps
// sending for the delay before ffmpeg is asked to exit.
func (o *Output) Stop() {
	o.mu.Lock()
	if !o.running || o.stopping {
		o.mu.Unlock()
		return
	}
	o.stopping = true
	o.cancelTimer()
	p := o.proc

	delay := 0
	if o.isStream() {
		delay = o.settings.Int("delay_sec")
	}
	if p == nil {
		o.running = false
		o.stopping = false
		o.release()
		o.mu.Unlock()
		o.signals.Emit(handles.SignalStopping, handles.SignalData{})
		o.signals.Emit(handles.SignalStop, handles.SignalData{})
		return
	}
	if delay > 0 {
		o.timer = time.AfterFunc(time.Duration(delay)*time.Second, p.Shutdown)
	} else {
		p.Shutdown()
	}
	o.mu.Unlock()
	o.signals.Emit(handles.SignalStopping, handles.SignalData{TimeoutSec: delay})
}

// ForceStop implements handles.OutputPrimitive.
func (o *Output) ForceStop() {
	if o.ForceStopQuiet() {
		o.signals.Emit(handles.SignalStop, handles.SignalData{})
	}
}

// ForceStopQuiet kills ffmpeg without raising a signal. It reports whether
// the output was running.
func (o *Output) ForceStopQuiet() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running {
		return false
	}
	o.cancelTimer()
	if o.proc != nil {
		o.proc.Kill()
		o.proc = nil
	}
	o.running = false
	o.stopping = false
	o.release()
	return true
}

// Pause implements handles.OutputPrimitive. ffmpeg cannot pause an output.
func (o *Output) Pause(bool) bool { return false }

// SplitFile implements handles.OutputPrimitive: ffmpeg is restarted on the
// next part's path.
func (o *Output) SplitFile() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.typeID != presets.OutputFile || !o.running || o.stopping || o.proc == nil {
		return false
	}
	base := o.settings.String("path")
	if base == "" {
		return false
	}
	o.parts++
	ext := filepath.Ext(base)
	next := fmt.Sprintf("%s_%d%s", strings.TrimSuffix(base, ext), o.parts, ext)
	args, err := o.buildArgs(next)
	if err != nil {
		return false
	}
	o.proc.RequestRestart(args)
	return true
}

// SaveReplay implements handles.OutputPrimitive. The completed segments are
// joined without re-encoding; the saved signal carries the file.
func (o *Output) SaveReplay() bool {
	o.mu.Lock()
	if o.typeID != presets.OutputReplay || !o.running || o.ring == nil {
		o.mu.Unlock()
		return false
	}
	ring := o.ring
	s := o.settings
	target, err := outputs.GenerateFilename(outputs.OSFS{}, outputs.FilenameOptions{
		Dir:       s.String("directory"),
		Format:    s.String("file_format"),
		Prefix:    s.String("prefix"),
		Suffix:    s.String("suffix"),
		Extension: s.String("extension"),
		NoSpace:   s.Bool("no_space"),
	}, time.Now())
	o.mu.Unlock()
	if err != nil {
		o.backend.logger.Warn("Replay save rejected", "name", o.name, "error", err)
		return false
	}

	go o.saveReplay(ring, target)
	return true
}

func (o *Output) saveReplay(ring *segmentRing, target string) {
	logger := o.backend.logger
	files, err := ring.window()
	if err != nil || len(files) == 0 {
		logger.Warn("Replay buffer is empty", "name", o.name, "error", err)
		return
	}
	list, err := ring.writeList(files)
	if err != nil {
		logger.Error("Failed to write replay list", "name", o.name, "error", err)
		return
	}

	p := process.New(o.name+"-save", ffargs.ConcatArgs(o.backend.cfg.Binary, list, target), process.Options{
		Logger:          logger,
		OutputLogger:    o.backend.ffLogger,
		LogParser:       ffargs.ParseLogLevel,
		GracefulTimeout: o.backend.cfg.GracefulTimeout,
	})
	code, err := p.Run(context.Background())
	if err != nil || code != 0 {
		logger.Error("Replay save failed", "name", o.name, "exit_code", code, "error", err)
		return
	}

	var size int64
	for _, f := range files {
		size += f.size
	}
	logger.Info("Replay saved", "name", o.name, "path", target, "segments", len(files), "size", humanize.Bytes(uint64(size)))
	o.signals.Emit(handles.SignalSaved, handles.SignalData{Path: target})
}

// openRing creates the replay scratch directory. Must hold o.mu.
func (o *Output) openRing() error {
	s := o.settings
	ext := s.String("extension")
	if ext == "" {
		ext = "mkv"
	}
	maxBytes := int64(s.Int("max_size_mb")) * 1_000_000
	ring, err := newSegmentRing(o.backend.cfg.ScratchDir, ext, o.backend.cfg.SegmentSec, s.Int("max_time_sec"), maxBytes)
	if err != nil {
		return err
	}
	o.ring = ring
	return nil
}

// openProgress starts collecting ffmpeg progress. Failures only cost the
// encode metrics. Must hold o.mu.
func (o *Output) openProgress() {
	dir := o.backend.cfg.ProgressDir
	if dir == "" {
		return
	}
	c := collectors.NewProgressCollector(filepath.Join(dir, o.name+".sock"), o.name)
	if err := c.Start(context.Background()); err != nil {
		o.backend.logger.Warn("Progress collector unavailable", "name", o.name, "error", err)
		return
	}
	o.progress = c
}

// release frees what a run of the output holds. Must hold o.mu.
func (o *Output) release() {
	o.closeRing()
	if o.progress != nil {
		o.progress.Stop()
		o.progress = nil
	}
}

// closeRing removes the replay scratch directory. Must hold o.mu.
func (o *Output) closeRing() {
	if o.ring == nil {
		return
	}
	if err := o.ring.remove(); err != nil {
		o.backend.logger.Warn("Failed to remove replay segments", "dir", o.ring.dir, "error", err)
	}
	o.ring = nil
}

// cancelTimer stops a pending delay, retry or stability timer. Must hold o.mu.
func (o *Output) cancelTimer() {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}

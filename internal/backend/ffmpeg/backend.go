// Package ffmpeg implements the encoder and output factories on top of
// ffmpeg subprocesses. Encoders are descriptions; every output runs one
// ffmpeg process that captures the configured input and encodes it with
// the encoders attached to the output.
package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	ffargs "github.com/smazurov/outputnode/internal/ffmpeg"
	"github.com/smazurov/outputnode/internal/handles"
	"github.com/smazurov/outputnode/internal/logging"
	"github.com/smazurov/outputnode/internal/presets"
)

// Defaults for Config.
const (
	DefaultSegmentSec  = 2
	DefaultStableAfter = 5 * time.Second
)

// Config configures the backend.
type Config struct {
	// Binary is the ffmpeg executable (default "ffmpeg" from PATH).
	Binary string
	Input  ffargs.Input
	// VirtualCamDevice is the v4l2loopback device. The virtual camera is
	// unavailable when it is empty or missing.
	VirtualCamDevice string
	// ScratchDir holds replay buffer segments (default os.TempDir()).
	ScratchDir string
	// SegmentSec is the replay segment length.
	SegmentSec int
	// StableAfter is how long a reconnected stream must run before the
	// reconnect counts as successful.
	StableAfter time.Duration
	// GracefulTimeout bounds the wait for ffmpeg to exit after SIGINT.
	GracefulTimeout time.Duration
	// ProgressDir holds the ffmpeg -progress sockets. Encode metrics are
	// collected only when it is set.
	ProgressDir string
}

// Backend implements handles.EncoderFactory and handles.OutputFactory.
type Backend struct {
	cfg      Config
	logger   *slog.Logger
	ffLogger *slog.Logger

	mu        sync.Mutex
	available map[string]bool // ffmpeg encoder names; nil allows every known type
	outputs   map[*Output]struct{}
}

// New validates cfg and creates a backend.
func New(cfg Config) (*Backend, error) {
	if err := ffargs.ValidateOptions(cfg.Input.Options); err != nil {
		return nil, fmt.Errorf("input options: %w", err)
	}
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = os.TempDir()
	}
	if cfg.SegmentSec <= 0 {
		cfg.SegmentSec = DefaultSegmentSec
	}
	if cfg.StableAfter <= 0 {
		cfg.StableAfter = DefaultStableAfter
	}
	return &Backend{
		cfg:      cfg,
		logger:   logging.GetLogger("backend"),
		ffLogger: logging.GetLogger("ffmpeg"),
		outputs:  make(map[*Output]struct{}),
	}, nil
}

// Probe restricts the available encoder types to those the ffmpeg binary
// was built with.
func (b *Backend) Probe(ctx context.Context) error {
	encoders, err := ffargs.ListEncoders(ctx, b.cfg.Binary)
	if err != nil {
		return err
	}
	available := make(map[string]bool, len(encoders))
	for _, e := range encoders {
		available[e.Name] = true
	}
	b.mu.Lock()
	b.available = available
	b.mu.Unlock()
	b.logger.Info("Probed ffmpeg encoders", "count", len(encoders))
	return nil
}

// Encoder is an encoder primitive: the ffmpeg encoder name and settings
// applied when an output using it starts.
type Encoder struct {
	kind   handles.MediaKind
	typeID string
	name   string
	codec  string

	mu       sync.Mutex
	settings handles.Settings
	mixer    int
}

// TypeID implements handles.EncoderPrimitive.
func (e *Encoder) TypeID() string { return e.typeID }

// Codec returns the ffmpeg encoder name.
func (e *Encoder) Codec() string { return e.codec }

func (e *Encoder) snapshot() (handles.Settings, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings.Clone(), e.mixer
}

func (e *Encoder) video() ffargs.Video {
	s, _ := e.snapshot()
	v := ffargs.Video{
		Encoder:     e.codec,
		RateControl: s.String("rate_control"),
		Bitrate:     s.Int("bitrate"),
		MaxBitrate:  s.Int("max_bitrate"),
		BufferSize:  s.Int("buffer_size"),
		CRF:         s.Int("crf"),
		ICQ:         s.Int("icq_quality"),
		QP:          s.Int("qpi"),
		Preset:      s.String("preset"),
		Profile:     s.String("profile"),
		KeyintSec:   s.Int("keyint_sec"),
		Width:       s.Int("width"),
		Height:      s.Int("height"),
		FPS:         s.Int("fps"),
		PixFmt:      s.String("pix_fmt"),
	}
	if v.RateControl == "" && v.Bitrate > 0 {
		v.RateControl = string(presets.RateCBR)
	}
	return v
}

func (e *Encoder) audio(name string) ffargs.Audio {
	s, mixer := e.snapshot()
	return ffargs.Audio{Encoder: e.codec, Bitrate: s.Int("bitrate"), Mixer: mixer, Name: name}
}

// CreateEncoder implements handles.EncoderFactory.
func (b *Backend) CreateEncoder(kind handles.MediaKind, typeID, name string, settings handles.Settings) (handles.EncoderPrimitive, bool) {
	if !b.EncoderTypeAvailable(typeID) {
		return nil, false
	}
	codec, _ := presets.FFmpegEncoderFor(typeID)
	b.logger.Debug("Encoder created", "name", name, "type", typeID, "codec", codec)
	return &Encoder{kind: kind, typeID: typeID, name: name, codec: codec, settings: settings.Clone()}, true
}

// UpdateEncoder implements handles.EncoderFactory. Running outputs keep
// the settings they started with; the update applies from their next start.
func (b *Backend) UpdateEncoder(enc handles.EncoderPrimitive, settings handles.Settings) {
	e := enc.(*Encoder)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settings = settings.Clone()
}

// BindVideo implements handles.EncoderFactory.
func (b *Backend) BindVideo(enc handles.EncoderPrimitive, _ handles.MediaSource) {}

// BindAudio implements handles.EncoderFactory.
func (b *Backend) BindAudio(enc handles.EncoderPrimitive, src handles.MediaSource) {
	e := enc.(*Encoder)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mixer = src.Mixer
}

// DestroyEncoder implements handles.EncoderFactory.
func (b *Backend) DestroyEncoder(enc handles.EncoderPrimitive) {
	b.logger.Debug("Encoder destroyed", "name", enc.(*Encoder).name)
}

// EncoderTypeAvailable implements handles.EncoderFactory.
func (b *Backend) EncoderTypeAvailable(typeID string) bool {
	codec, ok := presets.FFmpegEncoderFor(typeID)
	if !ok {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.available == nil || b.available[codec]
}

// CreateOutput implements handles.OutputFactory.
func (b *Backend) CreateOutput(typeID, name string, _ handles.Settings) (handles.OutputPrimitive, bool) {
	if !b.OutputTypeAvailable(typeID) {
		return nil, false
	}
	o := &Output{
		backend:  b,
		typeID:   typeID,
		name:     name,
		signals:  handles.NewSignalHandler(),
		settings: handles.Settings{},
		video:    make(map[int]*Encoder),
		audio:    make(map[int]*Encoder),
	}
	b.mu.Lock()
	b.outputs[o] = struct{}{}
	b.mu.Unlock()
	b.logger.Debug("Output created", "name", name, "type", typeID)
	return o, true
}

// DestroyOutput implements handles.OutputFactory.
func (b *Backend) DestroyOutput(out handles.OutputPrimitive) {
	o := out.(*Output)
	o.ForceStopQuiet()
	b.mu.Lock()
	delete(b.outputs, o)
	b.mu.Unlock()
}

// OutputTypeAvailable implements handles.OutputFactory.
func (b *Backend) OutputTypeAvailable(typeID string) bool {
	switch typeID {
	case presets.OutputRTMP, presets.OutputMPEGTS, presets.OutputHLS, presets.OutputWHIP,
		presets.OutputFile, presets.OutputReplay:
		return true
	case presets.OutputVirtualCam:
		if b.cfg.VirtualCamDevice == "" {
			return false
		}
		_, err := os.Stat(b.cfg.VirtualCamDevice)
		return err == nil
	}
	return false
}

// Close kills every remaining output process.
func (b *Backend) Close() {
	b.mu.Lock()
	outs := make([]*Output, 0, len(b.outputs))
	for o := range b.outputs {
		outs = append(outs, o)
	}
	b.mu.Unlock()
	for _, o := range outs {
		o.ForceStopQuiet()
	}
}

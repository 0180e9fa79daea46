// Package cmd holds the CLI subcommands and the backend wiring they share
// with the daemon.
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/smazurov/outputnode/internal/backend/ffmpeg"
	"github.com/smazurov/outputnode/internal/backend/memory"
	ffargs "github.com/smazurov/outputnode/internal/ffmpeg"
	"github.com/smazurov/outputnode/internal/handles"
	"github.com/smazurov/outputnode/internal/logging"
	"github.com/smazurov/outputnode/internal/presets"
	"github.com/smazurov/outputnode/internal/profile"
)

// Backend creates the encoders and outputs the orchestrator drives.
type Backend interface {
	handles.EncoderFactory
	handles.OutputFactory
}

// BackendOptions selects and configures a backend.
type BackendOptions struct {
	// DryRun uses the in-memory backend: every output reports success
	// without encoding anything.
	DryRun bool
	FFmpeg string
	// Probe limits encoders to those the ffmpeg binary was built with.
	Probe        bool
	VideoDevice  string
	InputFormat  string
	AudioDevices []string
	InputOptions []string
	ScratchDir   string
	// Metrics enables ffmpeg -progress sockets for encode metrics.
	Metrics bool
}

// AllEncoderTypes lists every encoder type id the presets know about.
func AllEncoderTypes() []string {
	seen := map[string]bool{}
	var types []string
	for _, f := range presets.Families() {
		if !seen[f.TypeID] {
			seen[f.TypeID] = true
			types = append(types, f.TypeID)
		}
	}
	return append(types, presets.AudioAAC, presets.AudioOpus, presets.AudioPCM, presets.LosslessVideoType, presets.RawVideoType)
}

// AllOutputTypes lists every output type id.
func AllOutputTypes() []string {
	return []string{
		presets.OutputRTMP, presets.OutputWHIP, presets.OutputMPEGTS, presets.OutputHLS,
		presets.OutputFile, presets.OutputReplay, presets.OutputVirtualCam,
	}
}

// NewBackend builds the backend for p. The returned close function stops
// every process the backend started.
func NewBackend(ctx context.Context, opts BackendOptions, p *profile.Profile) (Backend, func(), error) {
	logger := logging.GetLogger("backend")
	if opts.DryRun {
		logger.Info("Dry run: using in-memory backend")
		return memory.New(AllEncoderTypes(), AllOutputTypes()), func() {}, nil
	}

	inputOptions := ffargs.DefaultOptions()
	if len(opts.InputOptions) > 0 {
		inputOptions = make([]ffargs.OptionType, 0, len(opts.InputOptions))
		for _, o := range opts.InputOptions {
			inputOptions = append(inputOptions, ffargs.OptionType(o))
		}
	}

	cfg := ffmpeg.Config{
		Binary: opts.FFmpeg,
		Input: ffargs.Input{
			VideoDevice:  opts.VideoDevice,
			InputFormat:  opts.InputFormat,
			Width:        p.Video.Width,
			Height:       p.Video.Height,
			FPS:          p.Video.FPS,
			AudioDevices: opts.AudioDevices,
			Options:      inputOptions,
		},
		VirtualCamDevice: p.VirtualCam.Device,
		ScratchDir:       opts.ScratchDir,
	}
	if opts.Metrics {
		dir, err := os.MkdirTemp("", "outputnode-progress-*")
		if err != nil {
			return nil, nil, fmt.Errorf("progress socket directory: %w", err)
		}
		cfg.ProgressDir = dir
	}

	b, err := ffmpeg.New(cfg)
	if err != nil {
		if cfg.ProgressDir != "" {
			_ = os.RemoveAll(cfg.ProgressDir)
		}
		return nil, nil, err
	}
	if opts.Probe {
		if err := b.Probe(ctx); err != nil {
			logger.Warn("Encoder probe failed, assuming every encoder is available", "error", err)
		}
	}

	closeFn := func() {
		b.Close()
		if cfg.ProgressDir != "" {
			_ = os.RemoveAll(filepath.Clean(cfg.ProgressDir))
		}
	}
	return b, closeFn, nil
}

package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/outputnode/internal/config"
	"github.com/smazurov/outputnode/internal/events"
	"github.com/smazurov/outputnode/internal/handles"
	"github.com/smazurov/outputnode/internal/logging"
	"github.com/smazurov/outputnode/internal/orchestrator"
	"github.com/smazurov/outputnode/internal/profile"
)

// ProfileReloadDebounce absorbs the burst of writes editors make on save.
const ProfileReloadDebounce = 1500 * time.Millisecond

// WatchProfile hands every change of the profile file to o. A profile
// changed while outputs run is applied once they stop.
func WatchProfile(path string, o *orchestrator.Orchestrator, logger *slog.Logger) (*config.Watcher[*profile.Profile], error) {
	w := config.NewConfigWatcher(path, profile.Load, logger,
		config.WithDebounce[*profile.Profile](ProfileReloadDebounce))
	w.OnReload(func(p *profile.Profile) {
		deferred, err := o.ApplyProfile(p)
		if err != nil {
			logger.Error("Rejected profile change", "path", path, "error", err)
			return
		}
		logger.Info("Profile reloaded", "path", path, "deferred", deferred)
	})
	if err := w.Start(); err != nil {
		return nil, err
	}
	return w, nil
}

// CreateRunCmd creates the run command.
func CreateRunCmd() *cobra.Command {
	var profilePath string
	var backendOpts BackendOptions
	var logJSON bool
	var duration time.Duration
	var stopTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "run <streaming|recording|replay_buffer|virtualcam>",
		Short: "Run one output without the API server",
		Long: `Starts a single output from the profile and keeps it running until interrupted, ` +
			`the optional duration passes, or the output stops on its own. Profile edits are ` +
			`picked up and applied when the output stops.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"streaming", "recording", "replay_buffer", "virtualcam"},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := handles.ParseOutputKind(args[0])
			if err != nil {
				return err
			}

			loggingConfig := logging.Config{Level: "info", Format: "text"}
			if logJSON {
				loggingConfig.Format = "json"
			}
			logging.Initialize(loggingConfig)
			logger := logging.GetLogger("run").With("kind", kind.String())

			store := profile.NewStore(profilePath)
			p, err := store.Load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			backend, closeBackend, err := NewBackend(ctx, backendOpts, p)
			if err != nil {
				return err
			}
			defer closeBackend()

			bus := events.New()
			o, err := orchestrator.New(orchestrator.Config{Encoders: backend, Outputs: backend, Profile: p, Bus: bus})
			if err != nil {
				return err
			}
			defer o.Close()

			stopped := make(chan events.OutputStoppedEvent, 1)
			defer bus.Subscribe(func(e events.OutputStoppedEvent) {
				if e.Kind == kind.String() {
					select {
					case stopped <- e:
					default:
					}
				}
			})()
			defer bus.Subscribe(func(e events.RecordingFileChangedEvent) {
				logger.Info("Recording continues in new file", "path", e.Path)
			})()

			watcher, err := WatchProfile(store.Path(), o, logger)
			if err != nil {
				logger.Warn("Profile hot reload disabled", "error", err)
			} else {
				defer watcher.Stop()
			}

			if !o.Start(ctx, kind) {
				return fmt.Errorf("start %s: %s", kind, o.LastError())
			}
			logger.Info("Output started")

			var deadline <-chan time.Time
			if duration > 0 {
				deadline = time.After(duration)
			}
			select {
			case e := <-stopped:
				return stopResult(kind, e)
			case <-ctx.Done():
				logger.Info("Signal received, stopping output")
			case <-deadline:
				logger.Info("Duration reached, stopping output")
			}

			o.Stop(kind, false)
			select {
			case e := <-stopped:
				if path := o.LastRecordingPath(); path != "" && kind == handles.OutputFile {
					logger.Info("Recording written", "path", path)
				}
				return stopResult(kind, e)
			case <-time.After(stopTimeout):
				logger.Warn("Output did not stop in time, forcing", "timeout", stopTimeout)
				o.Stop(kind, true)
				return nil
			}
		},
	}

	cmd.Flags().StringVarP(&profilePath, "profile", "f", profile.DefaultPath, "Output profile")
	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	cmd.Flags().DurationVar(&stopTimeout, "stop-timeout", 30*time.Second, "Wait this long for a graceful stop")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Log as JSON")
	cmd.Flags().BoolVar(&backendOpts.DryRun, "dry-run", false, "Simulate outputs without running ffmpeg")
	cmd.Flags().StringVar(&backendOpts.FFmpeg, "ffmpeg", "ffmpeg", "ffmpeg binary")
	cmd.Flags().BoolVar(&backendOpts.Probe, "probe", true, "Restrict encoders to those ffmpeg provides")
	cmd.Flags().StringVar(&backendOpts.VideoDevice, "video-device", "", "V4L2 capture device (empty uses a test pattern)")
	cmd.Flags().StringVar(&backendOpts.InputFormat, "input-format", "", "V4L2 input format")
	cmd.Flags().StringSliceVar(&backendOpts.AudioDevices, "audio-device", nil, "ALSA device per mixer, in mixer order")
	cmd.Flags().StringSliceVar(&backendOpts.InputOptions, "input-option", nil, "ffmpeg input option keys")
	return cmd
}

func stopResult(kind handles.OutputKind, e events.OutputStoppedEvent) error {
	if e.Code != 0 {
		return fmt.Errorf("%s stopped: %s", kind, e.Message)
	}
	return nil
}

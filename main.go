package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/outputnode/cmd"
	"github.com/smazurov/outputnode/internal/api"
	"github.com/smazurov/outputnode/internal/config"
	"github.com/smazurov/outputnode/internal/events"
	"github.com/smazurov/outputnode/internal/logging"
	"github.com/smazurov/outputnode/internal/metrics"
	"github.com/smazurov/outputnode/internal/metrics/exporters"
	"github.com/smazurov/outputnode/internal/orchestrator"
	"github.com/smazurov/outputnode/internal/profile"
	"github.com/smazurov/outputnode/internal/systemd"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port       string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`
	CORSOrigin string `help:"Allowed CORS origin" default:"*" toml:"server.cors_origin" env:"SERVER_CORS_ORIGIN"`

	// Output profile
	Profile string `help:"Output profile file" default:"profile.toml" toml:"profile.path" env:"PROFILE_PATH"`

	// Backend settings
	DryRun       bool   `help:"Simulate outputs without running ffmpeg" default:"false" toml:"backend.dry_run" env:"BACKEND_DRY_RUN"`
	FFmpeg       string `help:"ffmpeg binary" default:"ffmpeg" toml:"backend.ffmpeg" env:"BACKEND_FFMPEG"`
	Probe        bool   `help:"Restrict encoders to those ffmpeg provides" default:"true" toml:"backend.probe" env:"BACKEND_PROBE"`
	VideoDevice  string `help:"V4L2 capture device (empty uses a test pattern)" toml:"backend.video_device" env:"BACKEND_VIDEO_DEVICE"`
	InputFormat  string `help:"V4L2 input format" toml:"backend.input_format" env:"BACKEND_INPUT_FORMAT"`
	AudioDevices string `help:"Comma separated ALSA device per mixer, in mixer order" toml:"backend.audio_devices" env:"BACKEND_AUDIO_DEVICES"`
	InputOptions string `help:"Comma separated ffmpeg input option keys" toml:"backend.input_options" env:"BACKEND_INPUT_OPTIONS"`
	ScratchDir   string `help:"Directory for replay buffer segments" toml:"backend.scratch_dir" env:"BACKEND_SCRATCH_DIR"`

	// Metrics settings
	MetricsPrometheusEnabled bool `help:"Serve Prometheus metrics on /metrics" default:"true" toml:"metrics.prometheus_enabled" env:"METRICS_PROMETHEUS_ENABLED"`
	MetricsEncodeEnabled     bool `help:"Collect ffmpeg encode progress" default:"true" toml:"metrics.encode_enabled" env:"METRICS_ENCODE_ENABLED"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel        string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat       string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingOrchestrator string `help:"Orchestrator logging level" default:"info" toml:"logging.orchestrator" env:"LOGGING_ORCHESTRATOR"`
	LoggingOutputs      string `help:"Output state machine logging level" default:"info" toml:"logging.outputs" env:"LOGGING_OUTPUTS"`
	LoggingMultitrack   string `help:"Multitrack negotiation logging level" default:"info" toml:"logging.multitrack" env:"LOGGING_MULTITRACK"`
	LoggingBackend      string `help:"Backend logging level" default:"info" toml:"logging.backend" env:"LOGGING_BACKEND"`
	LoggingFFmpeg       string `help:"ffmpeg process logging level" default:"info" toml:"logging.ffmpeg" env:"LOGGING_FFMPEG"`
	LoggingAPI          string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingMetrics      string `help:"Metrics logging level" default:"info" toml:"logging.metrics" env:"LOGGING_METRICS"`
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"orchestrator": opts.LoggingOrchestrator,
				"outputs":      opts.LoggingOutputs,
				"multitrack":   opts.LoggingMultitrack,
				"backend":      opts.LoggingBackend,
				"ffmpeg":       opts.LoggingFFmpeg,
				"api":          opts.LoggingAPI,
				"http":         opts.LoggingAPI,
				"metrics":      opts.LoggingMetrics,
			},
		})
		logger := logging.GetLogger("main")

		// Create event bus for in-process event handling
		eventBus := events.New()
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(api.LogEvent(entry))
		})

		// Subcommands reuse the options but build their own outputs, so the
		// daemon is only assembled when the root command runs.
		d := &daemon{opts: opts, bus: eventBus, logger: logger}

		hooks.OnStart(func() {
			if startErr := d.start(); startErr != nil {
				logger.Error("Failed to start", "error", startErr)
				os.Exit(1)
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := d.server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			d.stop()
		})
	})

	cli.Root().Use = "outputnode"
	cli.Root().Short = "Streaming, recording and replay buffer output orchestrator"

	cli.Root().AddCommand(cmd.CreatePresetsCmd())
	cli.Root().AddCommand(cmd.CreateValidateCmd())
	cli.Root().AddCommand(cmd.CreateRunCmd())

	// Run the CLI
	cli.Run()
}

// statusLine summarizes the active outputs for systemctl status.
func statusLine(o *orchestrator.Orchestrator) string {
	st, err := o.Status()
	if err != nil {
		return "shutting down"
	}
	var active []string
	for kind, out := range st.Outputs {
		if out.Active {
			active = append(active, fmt.Sprintf("%s %s", kind, out.State))
		}
	}
	if len(active) == 0 {
		return "idle"
	}
	sort.Strings(active)
	return strings.Join(active, ", ")
}

// daemon owns everything the root command runs.
type daemon struct {
	opts   *Options
	bus    *events.Bus
	logger *slog.Logger

	mu           sync.Mutex
	cancel       context.CancelFunc
	orch         *orchestrator.Orchestrator
	closeBackend func()
	server       *api.Server
	collector    *metrics.Collector
	sseExporter  *exporters.SSEExporter
	watcher      *config.Watcher[*profile.Profile]
	notifier     *systemd.Notifier
	unsubStatus  func()
}

func (d *daemon) start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	opts := d.opts

	store := profile.NewStore(opts.Profile)
	p, err := store.Load()
	if err != nil {
		return fmt.Errorf("load output profile %s: %w", store.Path(), err)
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid output profile %s: %w", store.Path(), err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	backend, closeBackend, err := cmd.NewBackend(ctx, cmd.BackendOptions{
		DryRun:       opts.DryRun,
		FFmpeg:       opts.FFmpeg,
		Probe:        opts.Probe,
		VideoDevice:  opts.VideoDevice,
		InputFormat:  opts.InputFormat,
		AudioDevices: splitList(opts.AudioDevices),
		InputOptions: splitList(opts.InputOptions),
		ScratchDir:   opts.ScratchDir,
		Metrics:      opts.MetricsEncodeEnabled,
	}, p)
	if err != nil {
		return fmt.Errorf("create backend: %w", err)
	}
	d.closeBackend = closeBackend

	d.orch, err = orchestrator.New(orchestrator.Config{
		Encoders: backend,
		Outputs:  backend,
		Profile:  p,
		Bus:      d.bus,
	})
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}

	d.collector = metrics.NewCollector(d.bus)
	d.collector.Start()
	if opts.MetricsEncodeEnabled {
		d.sseExporter = exporters.NewSSEExporter(d.bus)
		d.sseExporter.Start(ctx)
	}

	apiOpts := &api.Options{
		AuthUsername: opts.AuthUsername,
		AuthPassword: opts.AuthPassword,
		CORSOrigin:   opts.CORSOrigin,
		Controller:   d.orch,
		Catalog:      backend,
		Store:        store,
		EventBus:     d.bus,
	}
	if opts.MetricsPrometheusEnabled {
		apiOpts.PrometheusHandler = exporters.HTTPHandler()
	}
	d.server = api.NewServer(apiOpts)

	if w, watchErr := cmd.WatchProfile(store.Path(), d.orch, logging.GetLogger("config")); watchErr != nil {
		d.logger.Warn("Profile hot reload disabled", "path", store.Path(), "error", watchErr)
	} else {
		d.watcher = w
	}

	orch := d.orch
	d.notifier = systemd.NewNotifier()
	d.unsubStatus = d.bus.Subscribe(func(events.OutputStateChangedEvent) {
		d.notifier.Status(statusLine(orch))
	})
	d.notifier.Ready(ctx)
	d.notifier.Status(statusLine(orch))
	return nil
}

func (d *daemon) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.notifier != nil {
		d.notifier.Stopping()
	}
	if d.server != nil {
		if err := d.server.Stop(); err != nil {
			d.logger.Error("Error stopping HTTP server", "error", err)
		}
	}
	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			d.logger.Warn("Error stopping profile watcher", "error", err)
		}
	}
	if d.unsubStatus != nil {
		d.unsubStatus()
	}

	// Outputs stop after the API stops accepting requests
	if d.orch != nil {
		d.orch.Close()
	}
	if d.closeBackend != nil {
		d.closeBackend()
	}

	if d.sseExporter != nil {
		d.sseExporter.Stop()
	}
	if d.collector != nil {
		d.collector.Stop()
	}
	if d.cancel != nil {
		d.cancel()
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

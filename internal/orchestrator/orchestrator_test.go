package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/outputnode/internal/backend/memory"
	"github.com/smazurov/outputnode/internal/events"
	"github.com/smazurov/outputnode/internal/handles"
	"github.com/smazurov/outputnode/internal/multitrack"
	"github.com/smazurov/outputnode/internal/outputs"
	"github.com/smazurov/outputnode/internal/presets"
	"github.com/smazurov/outputnode/internal/profile"
)

const overrideConfig = `{
	"meta": {"config_id": "cfg-7"},
	"ingest_endpoints": [{"protocol": "RTMPS", "url_template": "rtmps://ingest.example.com/app/{stream_key}"}],
	"encoder_configurations": [
		{"type": "x264", "width": 1920, "height": 1080, "settings": {"bitrate": 6000}},
		{"type": "x264", "width": 1280, "height": 720, "settings": {"bitrate": 3000}}
	]
}`

func newBackend() *memory.Backend {
	return memory.New(
		[]string{"obs_x264", presets.AudioAAC, presets.AudioOpus, presets.AudioPCM, presets.LosslessVideoType, presets.RawVideoType},
		[]string{presets.OutputRTMP, presets.OutputWHIP, presets.OutputMPEGTS, presets.OutputHLS, presets.OutputFile, presets.OutputReplay, presets.OutputVirtualCam},
	)
}

func testProfile(t *testing.T) *profile.Profile {
	t.Helper()
	p := profile.Default()
	dir := t.TempDir()
	p.Recording.Dir = dir
	p.Replay.Dir = dir
	p.Service.Server = "rtmp://live.example.com/app"
	p.Service.StreamKey = "live_key"
	return p
}

func newOrchestrator(t *testing.T, b *memory.Backend, p *profile.Profile, bus *events.Bus) *Orchestrator {
	t.Helper()
	o, err := New(Config{Encoders: b, Outputs: b, Profile: p, Bus: bus})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(o.Close)
	return o
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func startStreaming(t *testing.T, o *Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if !o.StartStreaming(ctx, nil) {
		t.Fatalf("StartStreaming failed: %s", o.LastError())
	}
}

func TestNew_RequiresTypes(t *testing.T) {
	tests := []struct {
		name   string
		remove func(b *memory.Backend)
	}{
		{"file output", func(b *memory.Backend) { b.RemoveOutputType(presets.OutputFile) }},
		{"replay output", func(b *memory.Backend) { b.RemoveOutputType(presets.OutputReplay) }},
		{"video encoder", func(b *memory.Backend) { b.RemoveEncoderType("obs_x264") }},
		{"audio encoder", func(b *memory.Backend) { b.RemoveEncoderType(presets.AudioAAC) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBackend()
			tt.remove(b)
			_, err := New(Config{Encoders: b, Outputs: b, Profile: testProfile(t)})
			if !errors.Is(err, handles.ErrTypeUnavailable) {
				t.Errorf("Expected ErrTypeUnavailable, got %v", err)
			}
		})
	}
}

func TestNew_WithoutVirtualCam(t *testing.T) {
	b := newBackend()
	b.RemoveOutputType(presets.OutputVirtualCam)
	o := newOrchestrator(t, b, testProfile(t), nil)

	if o.StartVirtualCam() {
		t.Fatal("Expected virtual camera start to fail")
	}
	if !strings.Contains(o.LastError(), "virtual camera") {
		t.Errorf("Unexpected last error %q", o.LastError())
	}
}

func TestNew_ResetsUnavailableRecordingEncoder(t *testing.T) {
	p := testProfile(t)
	p.Simple.RecordingQuality = "HQ"
	p.Simple.RecordingEncoder = "nvenc"
	o := newOrchestrator(t, newBackend(), p, nil)

	got, err := o.Profile()
	if err != nil {
		t.Fatal(err)
	}
	if got.Simple.RecordingEncoder != presets.SelectionNone {
		t.Fatalf("Expected selection reset, got %q", got.Simple.RecordingEncoder)
	}
	if o.StartRecording() {
		t.Fatal("Expected recording with no encoder selection to fail")
	}
	if !strings.Contains(o.LastError(), presets.ErrNoSelection.Error()) {
		t.Errorf("Unexpected last error %q", o.LastError())
	}
}

func TestStartStreaming_FallsBackWithoutMultitrackEndpoint(t *testing.T) {
	b := newBackend()
	bus := events.New()
	negotiated := make(chan events.MultitrackNegotiatedEvent, 1)
	defer bus.Subscribe(func(e events.MultitrackNegotiatedEvent) { negotiated <- e })()

	p := testProfile(t)
	p.Stream.Multitrack.Enabled = true
	o := newOrchestrator(t, b, p, bus)

	startStreaming(t, o)
	if !o.StreamingActive() || !o.Active() {
		t.Fatal("Expected streaming active")
	}

	out := b.LastOutput(presets.OutputRTMP)
	if out == nil {
		t.Fatal("Expected an RTMP output")
	}
	if out.VideoEncoder(0) == nil || out.VideoEncoder(1) != nil {
		t.Error("Expected exactly one video encoder")
	}
	if out.AudioTracks() != 1 {
		t.Errorf("Expected one audio track, got %d", out.AudioTracks())
	}
	if got := out.Settings().String("server"); got != "rtmp://live.example.com/app" {
		t.Errorf("Expected service server, got %q", got)
	}
	if out.Service() == nil || out.Service().Key() != "live_key" {
		t.Error("Expected the service to be attached")
	}
	waitFor(t, "stream active state", func() bool {
		st, _ := o.Status()
		return st.Outputs["streaming"].State == string(outputs.StateActive)
	})

	select {
	case e := <-negotiated:
		t.Errorf("Expected no negotiation event for a clean fall back, got %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStartStreaming_AlreadyActive(t *testing.T) {
	o := newOrchestrator(t, newBackend(), testProfile(t), nil)
	startStreaming(t, o)

	if o.StartStreaming(context.Background(), nil) {
		t.Fatal("Expected second start to fail")
	}
	if o.LastError() == "" {
		t.Error("Expected a last error")
	}
	if !o.StreamingActive() {
		t.Error("Expected the first stream to keep running")
	}
}

func TestStartStreaming_StartFailure(t *testing.T) {
	b := newBackend()
	b.SetBehavior(presets.OutputRTMP, memory.Behavior{FailStart: "connection refused"})
	o := newOrchestrator(t, b, testProfile(t), nil)

	if o.StartStreaming(context.Background(), nil) {
		t.Fatal("Expected start to fail")
	}
	if o.LastError() != "connection refused" {
		t.Errorf("Expected primitive error, got %q", o.LastError())
	}
	if o.StreamingActive() {
		t.Error("Expected streaming idle")
	}
	if n := o.Table().LiveOutputs(); n != 0 {
		t.Errorf("Expected failed output released, %d live", n)
	}
}

func TestStartStreaming_MultitrackEngage(t *testing.T) {
	b := newBackend()
	bus := events.New()
	negotiated := make(chan events.MultitrackNegotiatedEvent, 1)
	defer bus.Subscribe(func(e events.MultitrackNegotiatedEvent) { negotiated <- e })()

	p := testProfile(t)
	p.Stream.Multitrack = profile.MultitrackConfig{Enabled: true, OverrideConfig: overrideConfig}
	o := newOrchestrator(t, b, p, bus)

	startStreaming(t, o)

	out := b.LastOutput(presets.OutputRTMP)
	if out.VideoEncoder(0) == nil || out.VideoEncoder(1) == nil {
		t.Fatal("Expected two rendition encoders")
	}
	if got := out.Settings().String("server"); got != "rtmps://ingest.example.com/app/live_key" {
		t.Errorf("Expected negotiated ingest, got %q", got)
	}
	st, err := o.Status()
	if err != nil {
		t.Fatal(err)
	}
	if st.Multitrack == "" || st.Outputs["streaming"].VideoEncoders != 2 {
		t.Errorf("Unexpected status %+v", st)
	}

	select {
	case e := <-negotiated:
		if e.Decision != "engage" || e.Renditions != 2 {
			t.Errorf("Unexpected negotiation event %+v", e)
		}
	case <-time.After(time.Second):
		t.Error("Expected a negotiation event")
	}

	o.StopStreaming(true)
	if n := o.Table().LiveOutputs(); n != 0 {
		t.Errorf("Expected stream output released, %d live", n)
	}
}

func TestStartStreaming_AbortSetsLastError(t *testing.T) {
	p := testProfile(t)
	p.Stream.Multitrack = profile.MultitrackConfig{Enabled: true, OverrideConfig: "{broken"}
	o := newOrchestrator(t, newBackend(), p, nil)

	if o.StartStreaming(context.Background(), nil) {
		t.Fatal("Expected abort")
	}
	if o.LastError() != "The multitrack override configuration is invalid." {
		t.Errorf("Unexpected last error %q", o.LastError())
	}
	if o.StreamingActive() || o.Table().LiveOutputs() != 0 {
		t.Error("Expected nothing started")
	}
}

func TestRecordingAlias_LocksStreamEncoder(t *testing.T) {
	b := newBackend()
	o := newOrchestrator(t, b, testProfile(t), nil)

	startStreaming(t, o)
	if err := o.UpdateStreamingBitrate(3500); err != nil {
		t.Fatalf("Expected bitrate change with a single consumer, got %v", err)
	}

	if !o.StartRecording() {
		t.Fatalf("StartRecording failed: %s", o.LastError())
	}
	stream := b.LastOutput(presets.OutputRTMP)
	file := b.LastOutput(presets.OutputFile)
	if file.VideoEncoder(0) == nil || file.VideoEncoder(0) != stream.VideoEncoder(0) {
		t.Fatal("Expected the recording to reuse the streaming encoder")
	}

	if err := o.UpdateStreamingBitrate(4000); !errors.Is(err, handles.ErrAliasLocked) {
		t.Fatalf("Expected ErrAliasLocked while shared, got %v", err)
	}

	o.StopStreaming(false)
	waitFor(t, "stream to stop", func() bool { return !o.StreamingActive() })

	if err := o.UpdateStreamingBitrate(4000); err != nil {
		t.Fatalf("Expected bitrate change after the stream stopped, got %v", err)
	}
	enc := file.VideoEncoder(0).(*memory.Encoder)
	if got := enc.Settings().Int("bitrate"); got != 4000 {
		t.Errorf("Expected bitrate 4000 on the encoder, got %d", got)
	}
	if !o.RecordingActive() {
		t.Error("Expected the recording to keep running")
	}
}

func TestRecording_IndependentEncoders(t *testing.T) {
	b := newBackend()
	p := testProfile(t)
	p.Simple.RecordingQuality = "HQ"
	p.Audio.Tracks = []profile.TrackConfig{{Name: "Main"}, {Name: "Mic"}, {Name: "Music", Bitrate: 128}}
	p.Audio.RecordTracks = handles.MaskFromMixers(0, 2)
	o := newOrchestrator(t, b, p, nil)

	startStreaming(t, o)
	if !o.StartRecording() {
		t.Fatalf("StartRecording failed: %s", o.LastError())
	}

	stream := b.LastOutput(presets.OutputRTMP)
	file := b.LastOutput(presets.OutputFile)
	if file.VideoEncoder(0) == stream.VideoEncoder(0) {
		t.Error("Expected an independent recording encoder")
	}
	if file.AudioTracks() != 2 {
		t.Errorf("Expected two recorded tracks, got %d", file.AudioTracks())
	}
	if err := o.UpdateStreamingBitrate(4000); err != nil {
		t.Errorf("Expected stream encoder unshared, got %v", err)
	}
}

func TestStartRecording_BadPath(t *testing.T) {
	p := testProfile(t)
	p.Recording.Dir = filepath.Join(t.TempDir(), "missing")
	o := newOrchestrator(t, newBackend(), p, nil)

	if o.StartRecording() {
		t.Fatal("Expected recording to fail")
	}
	if !strings.Contains(o.LastError(), "output directory") {
		t.Errorf("Unexpected last error %q", o.LastError())
	}
	if o.RecordingActive() || o.Table().LiveOutputs() != 0 {
		t.Error("Expected nothing started")
	}
}

func TestRecording_PathSplitAndPause(t *testing.T) {
	bus := events.New()
	changed := make(chan events.RecordingFileChangedEvent, 1)
	defer bus.Subscribe(func(e events.RecordingFileChangedEvent) { changed <- e })()

	p := testProfile(t)
	p.Recording.Prefix = "rec "
	o := newOrchestrator(t, newBackend(), p, bus)

	if !o.StartRecording() {
		t.Fatalf("StartRecording failed: %s", o.LastError())
	}
	path := o.LastRecordingPath()
	if filepath.Dir(path) != p.Recording.Dir || !strings.HasPrefix(filepath.Base(path), "rec ") || filepath.Ext(path) != ".mkv" {
		t.Errorf("Unexpected recording path %q", path)
	}

	waitFor(t, "recording active", func() bool {
		st, _ := o.Status()
		return st.Outputs["recording"].State == string(outputs.StateActive)
	})

	if err := o.SplitRecording(); err != nil {
		t.Fatalf("SplitRecording failed: %v", err)
	}
	waitFor(t, "split path", func() bool { return strings.HasSuffix(o.LastRecordingPath(), ".part1") })
	select {
	case e := <-changed:
		if e.Path != path+".part1" {
			t.Errorf("Unexpected file change %q", e.Path)
		}
	case <-time.After(time.Second):
		t.Error("Expected a file changed event")
	}

	if err := o.PauseRecording(true); err != nil {
		t.Fatalf("PauseRecording failed: %v", err)
	}
	waitFor(t, "paused", func() bool {
		st, _ := o.Status()
		return st.Outputs["recording"].Paused
	})
}

func TestReplayBuffer_Save(t *testing.T) {
	bus := events.New()
	saved := make(chan events.ReplaySavedEvent, 1)
	defer bus.Subscribe(func(e events.ReplaySavedEvent) { saved <- e })()

	b := newBackend()
	p := testProfile(t)
	o := newOrchestrator(t, b, p, bus)

	if err := o.SaveReplayBuffer(); !outputs.HasCode(err, outputs.ErrCodeNotActive) {
		t.Fatalf("Expected NOT_ACTIVE before start, got %v", err)
	}
	if !o.StartReplayBuffer() {
		t.Fatalf("StartReplayBuffer failed: %s", o.LastError())
	}
	if got := b.LastOutput(presets.OutputReplay).Settings().Int("max_size_mb"); got != 512 {
		t.Errorf("Expected 512 MB limit, got %d", got)
	}
	waitFor(t, "replay active", func() bool {
		st, _ := o.Status()
		return st.Outputs["replay_buffer"].State == string(outputs.StateActive)
	})

	if err := o.SaveReplayBuffer(); err != nil {
		t.Fatalf("SaveReplayBuffer failed: %v", err)
	}
	waitFor(t, "replay path", func() bool { return o.LastReplayPath() != "" })
	if filepath.Dir(o.LastReplayPath()) != p.Replay.Dir {
		t.Errorf("Expected replay in %s, got %s", p.Replay.Dir, o.LastReplayPath())
	}
	select {
	case <-saved:
	case <-time.After(time.Second):
		t.Error("Expected a replay saved event")
	}
}

func TestReplayBuffer_RejectsUnsafeContainer(t *testing.T) {
	p := testProfile(t)
	p.Simple.Container = "fragmented_mp4"
	o := newOrchestrator(t, newBackend(), p, nil)

	if o.StartReplayBuffer() {
		t.Fatal("Expected replay buffer to refuse fragmented mp4")
	}
	if !o.StartRecording() {
		t.Errorf("Expected recording to accept fragmented mp4: %s", o.LastError())
	}
}

func TestForceStop_DuringDelayedStop(t *testing.T) {
	b := newBackend()
	b.SetBehavior(presets.OutputRTMP, memory.Behavior{HoldStop: true})
	p := testProfile(t)
	p.Stream.DelaySec = 5
	o := newOrchestrator(t, b, p, nil)

	startStreaming(t, o)
	o.StopStreaming(false)

	st, err := o.Status()
	if err != nil {
		t.Fatal(err)
	}
	if st.Outputs["streaming"].State != string(outputs.StateDelayedStopping) {
		t.Fatalf("Expected delayed stopping, got %s", st.Outputs["streaming"].State)
	}
	if !o.Flags().Delay() || !o.StreamingActive() {
		t.Fatal("Expected an active delay countdown")
	}

	o.StopStreaming(true)
	if o.StreamingActive() || o.Flags().Delay() {
		t.Error("Expected force stop to clear the stream immediately")
	}
	if b.LastOutput(presets.OutputRTMP).Running() {
		t.Error("Expected primitive halted")
	}
}

func TestVirtualCam_StartStop(t *testing.T) {
	b := newBackend()
	o := newOrchestrator(t, b, testProfile(t), nil)

	if !o.StartVirtualCam() {
		t.Fatalf("StartVirtualCam failed: %s", o.LastError())
	}
	enc := b.LastOutput(presets.OutputVirtualCam).VideoEncoder(0)
	if enc == nil || enc.TypeID() != presets.RawVideoType {
		t.Fatalf("Expected raw video encoder, got %v", enc)
	}
	o.StopVirtualCam()
	waitFor(t, "virtual camera to stop", func() bool { return !o.VirtualCamActive() })
	if n := o.Table().LiveOutputs(); n != 0 {
		t.Errorf("Expected output released, %d live", n)
	}
}

func TestApplyProfile_DeferredWhileActive(t *testing.T) {
	bus := events.New()
	applied := make(chan events.ProfileAppliedEvent, 2)
	defer bus.Subscribe(func(e events.ProfileAppliedEvent) { applied <- e })()

	p := testProfile(t)
	o := newOrchestrator(t, newBackend(), p, bus)

	if !o.StartRecording() {
		t.Fatalf("StartRecording failed: %s", o.LastError())
	}

	next := p.Clone()
	next.Simple.VideoBitrate = 8000
	deferred, err := o.ApplyProfile(next)
	if err != nil || !deferred {
		t.Fatalf("Expected deferred apply, got deferred=%v err=%v", deferred, err)
	}
	if st, _ := o.Status(); !st.ProfilePending {
		t.Error("Expected pending profile in status")
	}

	o.StopRecording(true)

	got, err := o.Profile()
	if err != nil {
		t.Fatal(err)
	}
	if got.Simple.VideoBitrate != 8000 {
		t.Errorf("Expected pending profile applied after stop, got bitrate %d", got.Simple.VideoBitrate)
	}
	for _, want := range []bool{true, false} {
		select {
		case e := <-applied:
			if e.Deferred != want {
				t.Errorf("Expected deferred=%v, got %+v", want, e)
			}
		case <-time.After(time.Second):
			t.Fatal("Expected profile applied events")
		}
	}
}

func TestApplyProfile_RejectsUnavailableEncoder(t *testing.T) {
	p := testProfile(t)
	o := newOrchestrator(t, newBackend(), p, nil)

	next := p.Clone()
	next.Simple.Encoder = "nvenc"
	if _, err := o.ApplyProfile(next); !errors.Is(err, handles.ErrTypeUnavailable) {
		t.Fatalf("Expected ErrTypeUnavailable, got %v", err)
	}
	got, _ := o.Profile()
	if got.Simple.Encoder != "x264" {
		t.Errorf("Expected profile unchanged, got %s", got.Simple.Encoder)
	}
}

func TestStopped_ErrorCodeSetsLastError(t *testing.T) {
	b := newBackend()
	bus := events.New()
	stopped := make(chan events.OutputStoppedEvent, 1)
	defer bus.Subscribe(func(e events.OutputStoppedEvent) { stopped <- e })()
	o := newOrchestrator(t, b, testProfile(t), bus)

	startStreaming(t, o)
	b.LastOutput(presets.OutputRTMP).Emit(handles.SignalStop, handles.SignalData{Code: int(outputs.StopDisconnected)})
	waitFor(t, "stream to stop", func() bool { return !o.StreamingActive() })

	if o.LastError() != outputs.StopDisconnected.Message() {
		t.Errorf("Unexpected last error %q", o.LastError())
	}
	select {
	case e := <-stopped:
		if e.Kind != "streaming" || e.Code != int(outputs.StopDisconnected) {
			t.Errorf("Unexpected stop event %+v", e)
		}
	case <-time.After(time.Second):
		t.Error("Expected a stop event")
	}
}

type blockingFetcher struct{}

func (blockingFetcher) Fetch(ctx context.Context, _ string, _ *multitrack.ConfigRequest) (*multitrack.ConfigResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestClose_ResolvesPendingStart(t *testing.T) {
	b := newBackend()
	p := testProfile(t)
	p.Service.ConfigURL = "http://multitrack.invalid/config"
	p.Stream.Multitrack.Enabled = true
	o, err := New(Config{Encoders: b, Outputs: b, Profile: p, Fetcher: blockingFetcher{}})
	if err != nil {
		t.Fatal(err)
	}

	future := o.StartStreamingAsync(nil)
	if !o.StartRecording() {
		t.Fatalf("StartRecording failed: %s", o.LastError())
	}
	o.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	ok, err := future.Wait(ctx)
	if err != nil {
		t.Fatalf("Expected the start future to resolve, got %v", err)
	}
	if ok {
		t.Error("Expected the pending start to fail")
	}
	if o.Active() || o.Table().LiveOutputs() != 0 || o.Table().LiveEncoders() != 0 {
		t.Errorf("Expected everything released, outputs=%d encoders=%d", o.Table().LiveOutputs(), o.Table().LiveEncoders())
	}
	if o.StartRecording() || o.LastError() != ErrClosed.Error() {
		t.Errorf("Expected start after close to fail with %q, got %q", ErrClosed, o.LastError())
	}
}

// gatedFetcher holds every fetch until release is closed, then serves the
// override configuration.
type gatedFetcher struct {
	started chan struct{}
	release chan struct{}
}

func (f *gatedFetcher) Fetch(ctx context.Context, _ string, _ *multitrack.ConfigRequest) (*multitrack.ConfigResponse, error) {
	select {
	case f.started <- struct{}{}:
	default:
	}
	select {
	case <-f.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return multitrack.ParseConfig(overrideConfig)
}

func TestStopStreaming_CancelsPendingNegotiation(t *testing.T) {
	b := newBackend()
	p := testProfile(t)
	p.Service.ConfigURL = "http://multitrack.invalid/config"
	p.Stream.Multitrack.Enabled = true
	fetcher := &gatedFetcher{started: make(chan struct{}, 1), release: make(chan struct{})}
	o, err := New(Config{Encoders: b, Outputs: b, Profile: p, Fetcher: fetcher})
	if err != nil {
		t.Fatal(err)
	}
	defer o.Close()

	future := o.StartStreamingAsync(nil)
	select {
	case <-fetcher.started:
	case <-time.After(time.Second):
		t.Fatal("Expected the negotiation to reach the service")
	}
	o.StopStreaming(true)
	close(fetcher.release)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	ok, err := future.Wait(ctx)
	if err != nil {
		t.Fatalf("Expected the start future to resolve, got %v", err)
	}
	if ok {
		t.Error("Expected the stopped start to fail")
	}
	if !strings.Contains(o.LastError(), "cancelled") {
		t.Errorf("Expected a cancellation error, got %q", o.LastError())
	}
	if o.StreamingActive() || o.Table().LiveOutputs() != 0 {
		t.Errorf("Expected no stream output, %d live", o.Table().LiveOutputs())
	}

	// The next start negotiates again and goes live.
	startStreaming(t, o)
	if !o.StreamingActive() {
		t.Error("Expected streaming after a fresh start")
	}
	o.StopStreaming(true)
}

func TestStartStop_ByKind(t *testing.T) {
	b := newBackend()
	o := newOrchestrator(t, b, testProfile(t), nil)

	kinds := []handles.OutputKind{handles.OutputStream, handles.OutputFile, handles.OutputReplay, handles.OutputVirtualCam}
	for _, kind := range kinds {
		t.Run(kind.String(), func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if !o.Start(ctx, kind) {
				t.Fatalf("Start(%s) failed: %s", kind, o.LastError())
			}
			waitFor(t, kind.String()+" active", func() bool { return o.Flags().Active(kind) })

			o.Stop(kind, false)
			waitFor(t, kind.String()+" stopped", func() bool { return !o.Flags().Active(kind) })
		})
	}
	if o.Active() {
		t.Error("Expected every output stopped")
	}
}

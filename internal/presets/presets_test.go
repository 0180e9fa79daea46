package presets

import (
	"errors"
	"testing"

	"github.com/smazurov/outputnode/internal/handles"
)

func TestCalcCRF(t *testing.T) {
	tests := []struct {
		name   string
		base   int
		cx, cy int
		lowCPU bool
		want   int
	}{
		{"1080p has no reduction", 23, 1920, 1080, false, 23},
		{"360p reduces by 6", 23, 640, 360, false, 17},
		{"4k clips at cutoff", 16, 3840, 2160, false, 16},
		{"zero size reduces by 10", 23, 0, 0, false, 13},
		{"low cpu subtracts 2 first", 23, 1920, 1080, true, 21},
		{"low cpu at 360p", 23, 640, 360, true, 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalcCRF(tt.base, tt.cx, tt.cy, tt.lowCPU); got != tt.want {
				t.Errorf("CalcCRF(%d, %d, %d, %v) = %d, want %d", tt.base, tt.cx, tt.cy, tt.lowCPU, got, tt.want)
			}
		})
	}
}

func TestCalcCRF_MonotonicAndBounded(t *testing.T) {
	const base = 23
	prev := CalcCRF(base, 0, 0, false)
	for size := 16; size <= 4096; size += 16 {
		cx, cy := size, size*9/16
		reduction := CRFReduction(cx, cy)
		if reduction < 0 || reduction > 10 {
			t.Fatalf("reduction %d out of range at %dx%d", reduction, cx, cy)
		}
		got := CalcCRF(base, cx, cy, false)
		if got > base {
			t.Fatalf("CalcCRF exceeded base at %dx%d: %d", cx, cy, got)
		}
		if got < prev {
			t.Fatalf("CalcCRF decreased from %d to %d at %dx%d", prev, got, cx, cy)
		}
		prev = got
	}
}

func TestQualitySettings_ByFamily(t *testing.T) {
	tests := []struct {
		family string
		mode   string
		key    string
	}{
		{"x264", "CRF", "crf"},
		{"svt_av1", "CRF", "crf"},
		{"qsv", "ICQ", "icq_quality"},
		{"nvenc", "CQP", "qpi"},
		{"amd_hevc", "CQP", "qpp"},
		{"apple_h264", "CQP", "qpb"},
	}

	for _, tt := range tests {
		t.Run(tt.family, func(t *testing.T) {
			f, ok := LookupFamily(tt.family)
			if !ok {
				t.Fatalf("family %s not found", tt.family)
			}
			s := QualitySettings(f, 23, 640, 360)
			if s.String("rate_control") != tt.mode {
				t.Errorf("Expected %s, got %s", tt.mode, s.String("rate_control"))
			}
			if s.Int(tt.key) != 17 {
				t.Errorf("Expected %s=17, got %d", tt.key, s.Int(tt.key))
			}
			if tt.mode == "CQP" && (s.Int("qpi") != s.Int("qpp") || s.Int("qpp") != s.Int("qpb")) {
				t.Errorf("Expected identical QP for all frame types, got %v", s)
			}
		})
	}
}

func TestResolveStreamingPreset_ServiceCeiling(t *testing.T) {
	svc := &handles.BasicService{ServiceProto: "RTMPS", MaxVideoKbps: 6000, MaxAudioKbps: 160}

	preset, err := ResolveStreamingPreset(StreamingRequest{
		Encoder:      "x264",
		VideoBitrate: 9000,
		AudioBitrate: 320,
		Service:      svc,
	})
	if err != nil {
		t.Fatalf("ResolveStreamingPreset failed: %v", err)
	}
	if preset.Video.Int("bitrate") != 6000 {
		t.Errorf("Expected ceiling 6000, got %d", preset.Video.Int("bitrate"))
	}
	if preset.Audio.Int("bitrate") != 160 {
		t.Errorf("Expected audio ceiling 160, got %d", preset.Audio.Int("bitrate"))
	}
	if preset.AudioType != AudioAAC {
		t.Errorf("Expected AAC for RTMPS, got %s", preset.AudioType)
	}

	preset, err = ResolveStreamingPreset(StreamingRequest{
		Encoder:           "x264",
		VideoBitrate:      9000,
		IgnoreRecommended: true,
		Service:           svc,
	})
	if err != nil {
		t.Fatalf("ResolveStreamingPreset failed: %v", err)
	}
	if preset.Video.Int("bitrate") != 9000 {
		t.Errorf("Expected opt-out to keep 9000, got %d", preset.Video.Int("bitrate"))
	}
}

func TestResolveStreamingPreset_Errors(t *testing.T) {
	whip := &handles.BasicService{ServiceProto: "WHIP"}

	tests := []struct {
		name    string
		req     StreamingRequest
		wantErr error
	}{
		{"none selected", StreamingRequest{Encoder: SelectionNone}, ErrNoSelection},
		{"empty selection", StreamingRequest{}, ErrNoSelection},
		{"unknown encoder", StreamingRequest{Encoder: "bogus"}, ErrUnknownEncoder},
		{"hevc over whip", StreamingRequest{Encoder: "nvenc_hevc", Service: whip}, ErrCodecUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ResolveStreamingPreset(tt.req); !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestResolveStreamingPreset_WHIPUsesOpus(t *testing.T) {
	preset, err := ResolveStreamingPreset(StreamingRequest{
		Encoder: "x264",
		Service: &handles.BasicService{Server: "https://whip.example.com/ingest"},
	})
	if err != nil {
		t.Fatalf("ResolveStreamingPreset failed: %v", err)
	}
	if preset.AudioType != AudioOpus {
		t.Errorf("Expected Opus for WHIP, got %s", preset.AudioType)
	}
}

func TestResolveRecordingPreset(t *testing.T) {
	stream, err := ResolveStreamingPreset(StreamingRequest{Encoder: "x264"})
	if err != nil {
		t.Fatalf("ResolveStreamingPreset failed: %v", err)
	}

	alias, err := ResolveRecordingPreset(RecordingRequest{Tier: TierStream, Container: "mkv"}, stream)
	if err != nil {
		t.Fatalf("alias failed: %v", err)
	}
	if !alias.Alias || alias.Stream != stream || alias.Set != nil {
		t.Errorf("Expected alias to stream preset, got %+v", alias)
	}

	if _, err := ResolveRecordingPreset(RecordingRequest{Tier: TierStream}, nil); !errors.Is(err, ErrNoStreamPreset) {
		t.Errorf("Expected ErrNoStreamPreset, got %v", err)
	}

	small, err := ResolveRecordingPreset(RecordingRequest{Tier: TierSmall, Encoder: "x264", Container: "mp4", Width: 640, Height: 360}, stream)
	if err != nil {
		t.Fatalf("small failed: %v", err)
	}
	if small.Alias || small.Set.Video.Int("crf") != 17 {
		t.Errorf("Expected independent set with crf 17, got %+v", small.Set.Video)
	}

	hq, err := ResolveRecordingPreset(RecordingRequest{Tier: TierHQ, Encoder: "x264", Container: "mp4", Width: 1920, Height: 1080}, stream)
	if err != nil {
		t.Fatalf("hq failed: %v", err)
	}
	if hq.Set.Video.Int("crf") != 16 {
		t.Errorf("Expected crf 16, got %d", hq.Set.Video.Int("crf"))
	}

	lossless, err := ResolveRecordingPreset(RecordingRequest{Tier: TierLossless}, stream)
	if err != nil {
		t.Fatalf("lossless failed: %v", err)
	}
	if lossless.Set.VideoType != LosslessVideoType || lossless.Set.AudioType != AudioPCM || lossless.Container.Name != "avi" {
		t.Errorf("Unexpected lossless set %+v", lossless.Set)
	}
}

func TestReconcile_ResetsToNone(t *testing.T) {
	all := func(string) bool { return true }

	tests := []struct {
		name      string
		sel       Selection
		available func(string) bool
		want      string
		reset     bool
	}{
		{"compatible kept", Selection{Encoder: "x264", Container: "mp4"}, all, "x264", false},
		{"hevc in flv reset", Selection{Encoder: "nvenc_hevc", Container: "flv"}, all, SelectionNone, true},
		{"unavailable reset", Selection{Encoder: "qsv", Container: "mkv"}, func(string) bool { return false }, SelectionNone, true},
		{"unknown reset", Selection{Encoder: "bogus", Container: "mkv"}, all, SelectionNone, true},
		{"already none", Selection{Encoder: SelectionNone, Container: "mkv"}, all, SelectionNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reset := Reconcile(tt.sel, tt.available)
			if got.Encoder != tt.want || reset != tt.reset {
				t.Errorf("Expected (%s, %v), got (%s, %v)", tt.want, tt.reset, got.Encoder, reset)
			}
		})
	}

	if _, err := ResolveRecordingPreset(RecordingRequest{Tier: TierHQ, Encoder: SelectionNone, Container: "mkv"}, nil); !errors.Is(err, ErrNoSelection) {
		t.Errorf("Expected ErrNoSelection when starting with a reset selection, got %v", err)
	}
}

func TestNewPlan_Modes(t *testing.T) {
	video := VideoFormat{Width: 1280, Height: 720, FPS: 30}

	simple, err := NewPlan(ModeSimple, video, SimpleConfig{Encoder: "x264", VideoBitrate: 4000, RecordingQuality: "stream"}, AdvancedConfig{})
	if err != nil {
		t.Fatalf("NewPlan simple failed: %v", err)
	}
	if !simple.UsesStreamEncoder() {
		t.Error("Expected simple plan with Stream quality to alias")
	}

	adv, err := NewPlan(ModeAdvanced, video, SimpleConfig{}, AdvancedConfig{
		StreamEncoder:  "x264",
		StreamSettings: map[string]any{"bitrate": int64(5000), "preset": "faster"},
		RecordEncoder:  "nvenc",
		RecordSettings: map[string]any{"preset": "p7"},
		Container:      "mkv",
	})
	if err != nil {
		t.Fatalf("NewPlan advanced failed: %v", err)
	}
	stream, err := adv.Streaming(nil)
	if err != nil {
		t.Fatalf("advanced Streaming failed: %v", err)
	}
	if stream.Video.Int("bitrate") != 5000 || stream.Video.String("preset") != "faster" {
		t.Errorf("Expected raw stream settings applied, got %v", stream.Video)
	}
	rec, err := adv.Recording(stream)
	if err != nil {
		t.Fatalf("advanced Recording failed: %v", err)
	}
	if rec.Alias || rec.Set.VideoType != "nvenc_h264" || rec.Set.Video.String("preset") != "p7" {
		t.Errorf("Unexpected advanced recording %+v", rec.Set)
	}

	if _, err := NewPlan("weird", video, SimpleConfig{}, AdvancedConfig{}); err == nil {
		t.Error("Expected error for unknown mode")
	}
}

package presets

import (
	"fmt"
	"strings"

	"github.com/smazurov/outputnode/internal/handles"
)

// Mode selects how a profile describes its encoders.
type Mode string

// Profile modes.
const (
	ModeSimple   Mode = "simple"
	ModeAdvanced Mode = "advanced"
)

// StreamAlias is the advanced-mode record encoder value that reuses the
// streaming encoder.
const StreamAlias = "stream"

// VideoFormat is the output canvas.
type VideoFormat struct {
	Width  int `toml:"width" json:"width"`
	Height int `toml:"height" json:"height"`
	FPS    int `toml:"fps" json:"fps"`
}

// SimpleConfig derives every encoder from a tier and a bitrate.
type SimpleConfig struct {
	Encoder           string `toml:"encoder" json:"encoder"`
	VideoBitrate      int    `toml:"video_bitrate" json:"video_bitrate"`
	AudioBitrate      int    `toml:"audio_bitrate" json:"audio_bitrate"`
	IgnoreRecommended bool   `toml:"ignore_recommended" json:"ignore_recommended"`
	RecordingQuality  string `toml:"recording_quality" json:"recording_quality"`
	RecordingEncoder  string `toml:"recording_encoder" json:"recording_encoder"`
	Container         string `toml:"container" json:"container"`
}

// AdvancedConfig names encoders per output and carries raw settings maps.
type AdvancedConfig struct {
	StreamEncoder      string         `toml:"stream_encoder" json:"stream_encoder"`
	StreamSettings     map[string]any `toml:"stream_settings" json:"stream_settings,omitempty"`
	StreamAudioBitrate int            `toml:"stream_audio_bitrate" json:"stream_audio_bitrate"`
	RateControl        string         `toml:"rate_control" json:"rate_control"`
	Quality            int            `toml:"quality" json:"quality"`
	KeyintSec          int            `toml:"keyint_sec" json:"keyint_sec"`
	IgnoreRecommended  bool           `toml:"ignore_recommended" json:"ignore_recommended"`
	RecordEncoder      string         `toml:"record_encoder" json:"record_encoder"`
	RecordSettings     map[string]any `toml:"record_settings" json:"record_settings,omitempty"`
	RecordAudioBitrate int            `toml:"record_audio_bitrate" json:"record_audio_bitrate"`
	Container          string         `toml:"container" json:"container"`
}

// Plan resolves the encoder settings of one profile. The orchestrator only
// talks to this interface; the two modes differ in how they fill the presets.
type Plan interface {
	Mode() Mode
	Streaming(svc handles.Service) (*StreamingPreset, error)
	Recording(stream *StreamingPreset) (*RecordingPreset, error)
	// UsesStreamEncoder reports whether recordings alias the stream encoder.
	UsesStreamEncoder() bool
}

// NewPlan builds the plan for mode.
func NewPlan(mode Mode, video VideoFormat, simple SimpleConfig, advanced AdvancedConfig) (Plan, error) {
	switch Mode(strings.ToLower(string(mode))) {
	case ModeSimple, "":
		return &simplePlan{video: video, cfg: simple}, nil
	case ModeAdvanced:
		return &advancedPlan{video: video, cfg: advanced}, nil
	default:
		return nil, fmt.Errorf("unknown output mode %q", mode)
	}
}

type simplePlan struct {
	video VideoFormat
	cfg   SimpleConfig
}

func (p *simplePlan) Mode() Mode { return ModeSimple }

func (p *simplePlan) Streaming(svc handles.Service) (*StreamingPreset, error) {
	return ResolveStreamingPreset(StreamingRequest{
		Encoder:           p.cfg.Encoder,
		VideoBitrate:      p.cfg.VideoBitrate,
		AudioBitrate:      p.cfg.AudioBitrate,
		Width:             p.video.Width,
		Height:            p.video.Height,
		FPS:               p.video.FPS,
		IgnoreRecommended: p.cfg.IgnoreRecommended,
		Service:           svc,
	})
}

func (p *simplePlan) Recording(stream *StreamingPreset) (*RecordingPreset, error) {
	tier, err := ParseTier(orString(p.cfg.RecordingQuality, string(TierStream)))
	if err != nil {
		return nil, err
	}
	return ResolveRecordingPreset(RecordingRequest{
		Tier:      tier,
		Encoder:   orString(p.cfg.RecordingEncoder, p.cfg.Encoder),
		Container: p.cfg.Container,
		Width:     p.video.Width,
		Height:    p.video.Height,
		FPS:       p.video.FPS,
	}, stream)
}

func (p *simplePlan) UsesStreamEncoder() bool {
	return p.cfg.RecordingQuality == "" || strings.EqualFold(p.cfg.RecordingQuality, string(TierStream))
}

type advancedPlan struct {
	video VideoFormat
	cfg   AdvancedConfig
}

func (p *advancedPlan) Mode() Mode { return ModeAdvanced }

func (p *advancedPlan) Streaming(svc handles.Service) (*StreamingPreset, error) {
	preset, err := ResolveStreamingPreset(StreamingRequest{
		Encoder:           p.cfg.StreamEncoder,
		VideoBitrate:      handles.Settings(p.cfg.StreamSettings).Int("bitrate"),
		AudioBitrate:      p.cfg.StreamAudioBitrate,
		Width:             p.video.Width,
		Height:            p.video.Height,
		FPS:               p.video.FPS,
		KeyintSec:         p.cfg.KeyintSec,
		RateControl:       RateControl(strings.ToUpper(p.cfg.RateControl)),
		Quality:           p.cfg.Quality,
		IgnoreRecommended: true,
		Service:           svc,
	})
	if err != nil {
		return nil, err
	}
	preset.Video = preset.Video.Merge(p.cfg.StreamSettings)
	if svc != nil && !p.cfg.IgnoreRecommended {
		svc.ApplyEncoderSettings(preset.Video, preset.Audio)
	}
	return preset, nil
}

func (p *advancedPlan) Recording(stream *StreamingPreset) (*RecordingPreset, error) {
	if p.UsesStreamEncoder() {
		return ResolveRecordingPreset(RecordingRequest{
			Tier:      TierStream,
			Container: p.cfg.Container,
		}, stream)
	}
	preset, err := ResolveRecordingPreset(RecordingRequest{
		Tier:      TierHQ,
		Encoder:   p.cfg.RecordEncoder,
		Container: p.cfg.Container,
		Width:     p.video.Width,
		Height:    p.video.Height,
		FPS:       p.video.FPS,
	}, stream)
	if err != nil {
		return nil, err
	}
	preset.Set.Video = preset.Set.Video.Merge(p.cfg.RecordSettings)
	if p.cfg.RecordAudioBitrate > 0 {
		preset.Set.Audio["bitrate"] = p.cfg.RecordAudioBitrate
	}
	return preset, nil
}

func (p *advancedPlan) UsesStreamEncoder() bool {
	return p.cfg.RecordEncoder == "" || strings.EqualFold(p.cfg.RecordEncoder, StreamAlias)
}

func orString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

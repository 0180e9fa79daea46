// Package profile holds the persisted output profile: which encoders to
// use, where recordings go, and how the stream behaves.
package profile

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/smazurov/outputnode/internal/handles"
	"github.com/smazurov/outputnode/internal/outputs"
	"github.com/smazurov/outputnode/internal/presets"
)

// CurrentVersion is written by Save.
const CurrentVersion = 1

// Profile is the complete output configuration.
type Profile struct {
	Version    int                    `toml:"version" json:"version"`
	Mode       presets.Mode           `toml:"mode" json:"mode"`
	Video      presets.VideoFormat    `toml:"video" json:"video"`
	Simple     presets.SimpleConfig   `toml:"simple" json:"simple"`
	Advanced   presets.AdvancedConfig `toml:"advanced" json:"advanced"`
	Service    handles.BasicService   `toml:"service" json:"service"`
	Audio      AudioConfig            `toml:"audio" json:"audio"`
	Stream     StreamConfig           `toml:"stream" json:"stream"`
	Recording  RecordingConfig        `toml:"recording" json:"recording"`
	Replay     ReplayConfig           `toml:"replay" json:"replay"`
	VirtualCam VirtualCamConfig       `toml:"virtualcam" json:"virtualcam"`
}

// TrackConfig describes one audio mixer.
type TrackConfig struct {
	Name    string `toml:"name" json:"name"`
	Bitrate int    `toml:"bitrate" json:"bitrate"`
}

// AudioConfig maps mixers onto stream and recording tracks. Mixer indices
// are 0-based.
type AudioConfig struct {
	Tracks      []TrackConfig `toml:"tracks" json:"tracks"`
	StreamTrack int           `toml:"stream_track" json:"stream_track"`
	// VODTrack is the mixer sent as the VOD track on protocols that carry one.
	VODTrack *int `toml:"vod_track,omitempty" json:"vod_track,omitempty"`
	// RecordTracks is a mixer selection mask for recordings and the replay buffer.
	RecordTracks uint32 `toml:"record_tracks" json:"record_tracks"`
}

// ReconnectConfig is the stream's fixed-delay retry policy.
type ReconnectConfig struct {
	Enabled       bool `toml:"enabled" json:"enabled"`
	MaxRetries    int  `toml:"max_retries" json:"max_retries"`
	RetryDelaySec int  `toml:"retry_delay_sec" json:"retry_delay_sec"`
}

// MultitrackConfig controls multitrack negotiation.
type MultitrackConfig struct {
	Enabled bool `toml:"enabled" json:"enabled"`
	// OverrideConfig is a JSON configuration used instead of asking the service.
	OverrideConfig      string `toml:"override_config" json:"override_config,omitempty"`
	MaxAggregateBitrate int    `toml:"max_aggregate_bitrate" json:"max_aggregate_bitrate"`
	MaxVideoTracks      int    `toml:"max_video_tracks" json:"max_video_tracks"`
}

// StreamConfig controls the stream output.
type StreamConfig struct {
	DelaySec   int                     `toml:"delay_sec" json:"delay_sec"`
	Reconnect  ReconnectConfig         `toml:"reconnect" json:"reconnect"`
	Network    outputs.NetworkSettings `toml:"network" json:"network"`
	Multitrack MultitrackConfig        `toml:"multitrack" json:"multitrack"`
}

// RecordingConfig controls file naming for recordings.
type RecordingConfig struct {
	Dir       string `toml:"dir" json:"dir"`
	Format    string `toml:"format" json:"format"`
	Prefix    string `toml:"prefix" json:"prefix,omitempty"`
	Suffix    string `toml:"suffix" json:"suffix,omitempty"`
	Overwrite bool   `toml:"overwrite" json:"overwrite"`
	NoSpace   bool   `toml:"no_space" json:"no_space"`
}

// ReplayConfig controls the replay buffer.
type ReplayConfig struct {
	Dir        string `toml:"dir" json:"dir"`
	Prefix     string `toml:"prefix" json:"prefix"`
	Suffix     string `toml:"suffix" json:"suffix,omitempty"`
	MaxSeconds int    `toml:"max_seconds" json:"max_seconds"`
	// MaxSize is a human readable size such as "512 MB".
	MaxSize string `toml:"max_size" json:"max_size"`
}

// VirtualCamConfig controls the virtual camera output.
type VirtualCamConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	Device  string `toml:"device" json:"device,omitempty"`
}

// Default returns a profile that streams x264 over RTMP and records next
// to the working directory using the stream encoder.
func Default() *Profile {
	return &Profile{
		Version: CurrentVersion,
		Mode:    presets.ModeSimple,
		Video:   presets.VideoFormat{Width: 1920, Height: 1080, FPS: 30},
		Simple: presets.SimpleConfig{
			Encoder:          "x264",
			VideoBitrate:     presets.DefaultVideoBitrate,
			AudioBitrate:     presets.DefaultAudioBitrate,
			RecordingQuality: string(presets.TierStream),
			Container:        "mkv",
		},
		Advanced: presets.AdvancedConfig{
			StreamEncoder:      "x264",
			StreamAudioBitrate: presets.DefaultAudioBitrate,
			RateControl:        string(presets.RateCBR),
			KeyintSec:          presets.DefaultKeyintSec,
			RecordEncoder:      presets.StreamAlias,
			Container:          "mkv",
		},
		Audio: AudioConfig{
			Tracks:       []TrackConfig{{Name: "Track 1", Bitrate: presets.DefaultAudioBitrate}},
			RecordTracks: 1,
		},
		Stream: StreamConfig{
			Reconnect: ReconnectConfig{Enabled: true, MaxRetries: 25, RetryDelaySec: 2},
			Network:   outputs.NetworkSettings{BindIP: outputs.BindDefault, IPFamily: outputs.IPFamilyAny},
		},
		Recording: RecordingConfig{Dir: ".", Format: outputs.DefaultNameFormat},
		Replay:    ReplayConfig{Dir: ".", Prefix: "Replay", MaxSeconds: 20, MaxSize: "512 MB"},
	}
}

// Validate checks the profile for values that would make every start fail.
func (p *Profile) Validate() error {
	var errs []error
	if _, err := presets.NewPlan(p.Mode, p.Video, p.Simple, p.Advanced); err != nil {
		errs = append(errs, err)
	}
	if p.Video.Width <= 0 || p.Video.Height <= 0 {
		errs = append(errs, fmt.Errorf("invalid canvas %dx%d", p.Video.Width, p.Video.Height))
	}
	if p.Video.FPS <= 0 {
		errs = append(errs, fmt.Errorf("invalid fps %d", p.Video.FPS))
	}
	if proto := p.Service.Protocol(); proto != "" && !presets.KnownProtocol(proto) {
		errs = append(errs, fmt.Errorf("unknown stream protocol %q", proto))
	}
	if err := p.Stream.Network.Validate(); err != nil {
		errs = append(errs, err)
	}
	if p.Stream.DelaySec < 0 {
		errs = append(errs, fmt.Errorf("negative stream delay %d", p.Stream.DelaySec))
	}
	if p.Stream.Reconnect.MaxRetries < 0 || p.Stream.Reconnect.RetryDelaySec < 0 {
		errs = append(errs, errors.New("reconnect retries and delay must not be negative"))
	}
	if len(p.Audio.Tracks) > handles.MaxTracks {
		errs = append(errs, fmt.Errorf("at most %d audio tracks, got %d", handles.MaxTracks, len(p.Audio.Tracks)))
	}
	if p.Audio.StreamTrack < 0 || p.Audio.StreamTrack >= handles.MaxTracks {
		errs = append(errs, fmt.Errorf("stream track %d out of range", p.Audio.StreamTrack))
	}
	if v := p.Audio.VODTrack; v != nil && (*v < 0 || *v >= handles.MaxTracks) {
		errs = append(errs, fmt.Errorf("vod track %d out of range", *v))
	}
	if len(handles.AssignTracks(p.Audio.RecordTracks)) == 0 {
		errs = append(errs, errors.New("recording needs at least one audio track"))
	}
	if p.Replay.MaxSeconds <= 0 {
		errs = append(errs, fmt.Errorf("replay length must be positive, got %d", p.Replay.MaxSeconds))
	}
	if _, err := p.Replay.MaxBytes(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Plan builds the encoder plan for the profile's mode.
func (p *Profile) Plan() (presets.Plan, error) {
	return presets.NewPlan(p.Mode, p.Video, p.Simple, p.Advanced)
}

// StreamService returns a copy of the configured service.
func (p *Profile) StreamService() handles.Service {
	svc := p.Service
	return &svc
}

// StreamEncoder returns the encoder family id used for streaming.
func (p *Profile) StreamEncoder() string {
	if strings.EqualFold(string(p.Mode), string(presets.ModeAdvanced)) {
		return p.Advanced.StreamEncoder
	}
	return p.Simple.Encoder
}

// RecordingSelection returns the independent recording encoder and
// container, or an empty encoder when recordings use the stream encoder.
func (p *Profile) RecordingSelection() presets.Selection {
	if strings.EqualFold(string(p.Mode), string(presets.ModeAdvanced)) {
		enc := p.Advanced.RecordEncoder
		if strings.EqualFold(enc, presets.StreamAlias) {
			enc = ""
		}
		return presets.Selection{Encoder: enc, Container: p.Advanced.Container}
	}
	enc := ""
	if !strings.EqualFold(p.Simple.RecordingQuality, string(presets.TierStream)) && p.Simple.RecordingQuality != "" {
		enc = p.Simple.RecordingEncoder
		if enc == "" {
			enc = p.Simple.Encoder
		}
	}
	return presets.Selection{Encoder: enc, Container: p.Simple.Container}
}

// SetRecordingSelection stores a reconciled selection back into the profile.
func (p *Profile) SetRecordingSelection(sel presets.Selection) {
	if strings.EqualFold(string(p.Mode), string(presets.ModeAdvanced)) {
		p.Advanced.RecordEncoder = sel.Encoder
		return
	}
	p.Simple.RecordingEncoder = sel.Encoder
}

// ReconnectPolicy converts the reconnect section.
func (p *Profile) ReconnectPolicy() outputs.ReconnectPolicy {
	return outputs.ReconnectPolicy{
		Enabled:    p.Stream.Reconnect.Enabled,
		MaxRetries: p.Stream.Reconnect.MaxRetries,
		RetryDelay: time.Duration(p.Stream.Reconnect.RetryDelaySec) * time.Second,
	}
}

// TrackBitrate returns the configured bitrate of mixer, or def.
func (p *Profile) TrackBitrate(mixer, def int) int {
	if mixer >= 0 && mixer < len(p.Audio.Tracks) && p.Audio.Tracks[mixer].Bitrate > 0 {
		return p.Audio.Tracks[mixer].Bitrate
	}
	return def
}

// TrackName returns the display name of mixer.
func (p *Profile) TrackName(mixer int) string {
	if mixer >= 0 && mixer < len(p.Audio.Tracks) && p.Audio.Tracks[mixer].Name != "" {
		return p.Audio.Tracks[mixer].Name
	}
	return fmt.Sprintf("Track %d", mixer+1)
}

// MaxBytes parses MaxSize. An empty size means no limit.
func (r ReplayConfig) MaxBytes() (uint64, error) {
	if r.MaxSize == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(r.MaxSize)
	if err != nil {
		return 0, fmt.Errorf("invalid replay max_size %q: %w", r.MaxSize, err)
	}
	return n, nil
}

// Clone returns a deep copy.
func (p *Profile) Clone() *Profile {
	c := *p
	c.Audio.Tracks = append([]TrackConfig(nil), p.Audio.Tracks...)
	if p.Audio.VODTrack != nil {
		v := *p.Audio.VODTrack
		c.Audio.VODTrack = &v
	}
	if p.Advanced.StreamSettings != nil {
		c.Advanced.StreamSettings = handles.Settings(p.Advanced.StreamSettings).Clone()
	}
	if p.Advanced.RecordSettings != nil {
		c.Advanced.RecordSettings = handles.Settings(p.Advanced.RecordSettings).Clone()
	}
	return &c
}

package handles

import "strings"

// Service describes the remote endpoint a stream output sends to.
type Service interface {
	Name() string
	// Protocol returns the transport name, e.g. "RTMPS", "SRT", "WHIP".
	Protocol() string
	URL() string
	Key() string
	// PreferredOutputType returns an output type id hint, or "" for none.
	PreferredOutputType() string
	// ApplyEncoderSettings lowers bitrates in place to the service ceilings.
	ApplyEncoderSettings(video, audio Settings)
	// MultitrackConfigURL returns "" when the service has no multitrack endpoint.
	MultitrackConfigURL() string
}

// BasicService is a Service backed by static values, typically loaded from
// the profile.
type BasicService struct {
	ServiceName    string `toml:"name" json:"name,omitempty"`
	ServiceProto   string `toml:"protocol" json:"protocol,omitempty"`
	Server         string `toml:"server" json:"server,omitempty"`
	StreamKey      string `toml:"key" json:"key,omitempty"`
	OutputType     string `toml:"output_type" json:"output_type,omitempty"`
	ConfigURL      string `toml:"multitrack_config_url" json:"multitrack_config_url,omitempty"`
	MaxVideoKbps   int    `toml:"max_video_bitrate" json:"max_video_bitrate,omitempty"`
	MaxAudioKbps   int    `toml:"max_audio_bitrate" json:"max_audio_bitrate,omitempty"`
	MaxFPS         int    `toml:"max_fps" json:"max_fps,omitempty"`
	SupportedCodec string `toml:"video_codec" json:"video_codec,omitempty"`
}

// Name implements Service.
func (s *BasicService) Name() string { return s.ServiceName }

// Protocol implements Service. An empty protocol is derived from the URL scheme.
func (s *BasicService) Protocol() string {
	if s.ServiceProto != "" {
		return strings.ToUpper(s.ServiceProto)
	}
	return ProtocolFromURL(s.Server)
}

// URL implements Service.
func (s *BasicService) URL() string { return s.Server }

// Key implements Service.
func (s *BasicService) Key() string { return s.StreamKey }

// PreferredOutputType implements Service.
func (s *BasicService) PreferredOutputType() string { return s.OutputType }

// MultitrackConfigURL implements Service.
func (s *BasicService) MultitrackConfigURL() string { return s.ConfigURL }

// ApplyEncoderSettings implements Service.
func (s *BasicService) ApplyEncoderSettings(video, audio Settings) {
	if video != nil && s.MaxVideoKbps > 0 {
		if video.Int("bitrate") > s.MaxVideoKbps {
			video["bitrate"] = s.MaxVideoKbps
		}
		if video.Has("max_bitrate") && video.Int("max_bitrate") > s.MaxVideoKbps {
			video["max_bitrate"] = s.MaxVideoKbps
		}
	}
	if video != nil && s.MaxFPS > 0 && video.Int("fps") > s.MaxFPS {
		video["fps"] = s.MaxFPS
	}
	if audio != nil && s.MaxAudioKbps > 0 && audio.Int("bitrate") > s.MaxAudioKbps {
		audio["bitrate"] = s.MaxAudioKbps
	}
}

// ProtocolFromURL guesses the protocol from a server URL scheme.
func ProtocolFromURL(u string) string {
	scheme, _, ok := strings.Cut(u, "://")
	if !ok {
		return ""
	}
	switch strings.ToLower(scheme) {
	case "rtmp":
		return "RTMP"
	case "rtmps":
		return "RTMPS"
	case "srt":
		return "SRT"
	case "rist":
		return "RIST"
	case "http", "https":
		if strings.HasSuffix(strings.ToLower(u), ".m3u8") {
			return "HLS"
		}
		return "WHIP"
	}
	return strings.ToUpper(scheme)
}

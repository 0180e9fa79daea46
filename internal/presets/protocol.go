package presets

import (
	"slices"
	"strings"
)

// Output type ids used by stream, file, replay and virtual camera outputs.
const (
	OutputRTMP       = "rtmp_output"
	OutputWHIP       = "whip_output"
	OutputMPEGTS     = "ffmpeg_mpegts_muxer"
	OutputHLS        = "ffmpeg_hls_muxer"
	OutputFile       = "ffmpeg_muxer"
	OutputReplay     = "replay_buffer"
	OutputVirtualCam = "virtualcam_output"
)

// ProtocolCaps lists what a streaming protocol accepts.
type ProtocolCaps struct {
	Protocol       string
	OutputType     string
	AudioCodec     string
	AudioType      string
	VideoCodecs    []string
	MaxAudioTracks int
	// VOD is true when the protocol can carry a separate VOD audio track.
	VOD bool
}

var protocols = []ProtocolCaps{
	{Protocol: "RTMP", OutputType: OutputRTMP, AudioCodec: "aac", AudioType: AudioAAC, VideoCodecs: []string{CodecH264, CodecHEVC, CodecAV1}, MaxAudioTracks: 2, VOD: true},
	{Protocol: "RTMPS", OutputType: OutputRTMP, AudioCodec: "aac", AudioType: AudioAAC, VideoCodecs: []string{CodecH264, CodecHEVC, CodecAV1}, MaxAudioTracks: 2, VOD: true},
	{Protocol: "HLS", OutputType: OutputHLS, AudioCodec: "aac", AudioType: AudioAAC, VideoCodecs: []string{CodecH264, CodecHEVC}, MaxAudioTracks: 1},
	{Protocol: "SRT", OutputType: OutputMPEGTS, AudioCodec: "aac", AudioType: AudioAAC, VideoCodecs: []string{CodecH264, CodecHEVC, CodecAV1}, MaxAudioTracks: MaxAudioTracks},
	{Protocol: "RIST", OutputType: OutputMPEGTS, AudioCodec: "aac", AudioType: AudioAAC, VideoCodecs: []string{CodecH264, CodecHEVC, CodecAV1}, MaxAudioTracks: MaxAudioTracks},
	{Protocol: "WHIP", OutputType: OutputWHIP, AudioCodec: "opus", AudioType: AudioOpus, VideoCodecs: []string{CodecH264, CodecAV1}, MaxAudioTracks: 1},
}

// MaxAudioTracks is the track limit of the most permissive protocol.
const MaxAudioTracks = 6

// Caps returns the capabilities of protocol. Unknown protocols are treated
// like RTMP.
func Caps(protocol string) ProtocolCaps {
	for _, p := range protocols {
		if strings.EqualFold(p.Protocol, protocol) {
			return p
		}
	}
	return protocols[0]
}

// KnownProtocol reports whether protocol has an entry in the table.
func KnownProtocol(protocol string) bool {
	for _, p := range protocols {
		if strings.EqualFold(p.Protocol, protocol) {
			return true
		}
	}
	return false
}

// SupportsVideo reports whether the protocol accepts the codec.
func (p ProtocolCaps) SupportsVideo(codec string) bool {
	return slices.Contains(p.VideoCodecs, codec)
}

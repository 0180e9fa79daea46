package presets

import (
	"slices"
	"strings"
)

// Container describes a recording container format.
type Container struct {
	Name       string
	Extension  string
	MuxerName  string
	VideoCodec []string
	AudioCodec []string
	// ReplaySafe is false for formats the replay buffer cannot write.
	ReplaySafe bool
}

var containers = []Container{
	{Name: "mkv", Extension: "mkv", MuxerName: "matroska", VideoCodec: []string{CodecH264, CodecHEVC, CodecAV1}, AudioCodec: []string{"aac", "opus", "pcm_s16le"}, ReplaySafe: true},
	{Name: "mp4", Extension: "mp4", MuxerName: "mp4", VideoCodec: []string{CodecH264, CodecHEVC, CodecAV1}, AudioCodec: []string{"aac", "opus"}, ReplaySafe: true},
	{Name: "fragmented_mp4", Extension: "mp4", MuxerName: "mp4", VideoCodec: []string{CodecH264, CodecHEVC, CodecAV1}, AudioCodec: []string{"aac", "opus"}, ReplaySafe: false},
	{Name: "hybrid_mp4", Extension: "mp4", MuxerName: "mp4", VideoCodec: []string{CodecH264, CodecHEVC, CodecAV1}, AudioCodec: []string{"aac", "opus"}, ReplaySafe: false},
	{Name: "mov", Extension: "mov", MuxerName: "mov", VideoCodec: []string{CodecH264, CodecHEVC}, AudioCodec: []string{"aac", "pcm_s16le"}, ReplaySafe: true},
	{Name: "fragmented_mov", Extension: "mov", MuxerName: "mov", VideoCodec: []string{CodecH264, CodecHEVC}, AudioCodec: []string{"aac", "pcm_s16le"}, ReplaySafe: false},
	{Name: "flv", Extension: "flv", MuxerName: "flv", VideoCodec: []string{CodecH264}, AudioCodec: []string{"aac"}, ReplaySafe: true},
	{Name: "ts", Extension: "ts", MuxerName: "mpegts", VideoCodec: []string{CodecH264, CodecHEVC, CodecAV1}, AudioCodec: []string{"aac", "opus"}, ReplaySafe: true},
	{Name: "avi", Extension: "avi", MuxerName: "avi", VideoCodec: []string{CodecRaw}, AudioCodec: []string{"pcm_s16le"}, ReplaySafe: false},
}

// LookupContainer finds a container by name (case-insensitive).
func LookupContainer(name string) (Container, bool) {
	for _, c := range containers {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Container{}, false
}

// Containers returns every known container.
func Containers() []Container {
	return slices.Clone(containers)
}

// Supports reports whether the container can carry the given video codec.
func (c Container) Supports(codec string) bool {
	return slices.Contains(c.VideoCodec, codec)
}

// SupportsAudio reports whether the container can carry the given audio codec.
func (c Container) SupportsAudio(codec string) bool {
	return slices.Contains(c.AudioCodec, codec)
}

// MuxerFlags returns extra muxer options for the container.
func (c Container) MuxerFlags() []string {
	switch c.Name {
	case "fragmented_mp4", "fragmented_mov":
		return []string{"-movflags", "frag_keyframe+empty_moov+delay_moov"}
	case "hybrid_mp4":
		return []string{"-movflags", "+faststart+frag_keyframe"}
	case "mp4", "mov":
		return []string{"-movflags", "+faststart"}
	}
	return nil
}

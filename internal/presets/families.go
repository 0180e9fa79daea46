package presets

import (
	"slices"
	"strings"
)

// RateControl is an encoder rate-control mode.
type RateControl string

// Rate-control modes.
const (
	RateCBR      RateControl = "CBR"
	RateVBR      RateControl = "VBR"
	RateCRF      RateControl = "CRF"
	RateICQ      RateControl = "ICQ"
	RateCQP      RateControl = "CQP"
	RateLossless RateControl = "lossless"
)

// Family describes one video encoder family and what it can do.
type Family struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	TypeID        string `json:"type_id"`
	FFmpegEncoder string `json:"ffmpeg_encoder"`
	Codec         string `json:"codec"`
	DefaultPreset string `json:"default_preset,omitempty"`
	Hardware      bool   `json:"hardware"`
	CRF           bool   `json:"crf"`
	ICQ           bool   `json:"icq"`
	CQP           bool   `json:"cqp"`
	LowCPU        bool   `json:"low_cpu"`
}

// Quality returns the quality rate-control mode the family prefers: CRF
// when supported, then ICQ, then CQP.
func (f Family) Quality() RateControl {
	switch {
	case f.CRF:
		return RateCRF
	case f.ICQ:
		return RateICQ
	case f.CQP:
		return RateCQP
	default:
		return RateVBR
	}
}

// Video codec names.
const (
	CodecH264 = "h264"
	CodecHEVC = "hevc"
	CodecAV1  = "av1"
	CodecRaw  = "utvideo"
)

// Audio encoder type ids.
const (
	AudioAAC  = "ffmpeg_aac"
	AudioOpus = "ffmpeg_opus"
	AudioPCM  = "ffmpeg_pcm_s16le"
)

// LosslessVideoType is the encoder type id used by the Lossless tier.
const LosslessVideoType = "ffmpeg_utvideo"

// RawVideoType passes uncompressed frames to the virtual camera.
const RawVideoType = "ffmpeg_rawvideo"

var families = []Family{
	{ID: "x264", Name: "Software (x264)", TypeID: "obs_x264", FFmpegEncoder: "libx264", Codec: CodecH264, DefaultPreset: "veryfast", CRF: true},
	{ID: "x264_lowcpu", Name: "Software (x264 low CPU usage preset)", TypeID: "obs_x264", FFmpegEncoder: "libx264", Codec: CodecH264, DefaultPreset: "ultrafast", CRF: true, LowCPU: true},
	{ID: "nvenc", Name: "Hardware (NVENC, H.264)", TypeID: "nvenc_h264", FFmpegEncoder: "h264_nvenc", Codec: CodecH264, DefaultPreset: "p5", Hardware: true, CQP: true},
	{ID: "nvenc_hevc", Name: "Hardware (NVENC, HEVC)", TypeID: "nvenc_hevc", FFmpegEncoder: "hevc_nvenc", Codec: CodecHEVC, DefaultPreset: "p5", Hardware: true, CQP: true},
	{ID: "nvenc_av1", Name: "Hardware (NVENC, AV1)", TypeID: "nvenc_av1", FFmpegEncoder: "av1_nvenc", Codec: CodecAV1, DefaultPreset: "p5", Hardware: true, CQP: true},
	{ID: "qsv", Name: "Hardware (QSV, H.264)", TypeID: "qsv_h264", FFmpegEncoder: "h264_qsv", Codec: CodecH264, DefaultPreset: "balanced", Hardware: true, ICQ: true, CQP: true},
	{ID: "qsv_hevc", Name: "Hardware (QSV, HEVC)", TypeID: "qsv_hevc", FFmpegEncoder: "hevc_qsv", Codec: CodecHEVC, DefaultPreset: "balanced", Hardware: true, ICQ: true, CQP: true},
	{ID: "qsv_av1", Name: "Hardware (QSV, AV1)", TypeID: "qsv_av1", FFmpegEncoder: "av1_qsv", Codec: CodecAV1, DefaultPreset: "balanced", Hardware: true, ICQ: true, CQP: true},
	{ID: "amd", Name: "Hardware (AMD, H.264)", TypeID: "amf_h264", FFmpegEncoder: "h264_amf", Codec: CodecH264, DefaultPreset: "quality", Hardware: true, CQP: true},
	{ID: "amd_hevc", Name: "Hardware (AMD, HEVC)", TypeID: "amf_hevc", FFmpegEncoder: "hevc_amf", Codec: CodecHEVC, DefaultPreset: "quality", Hardware: true, CQP: true},
	{ID: "amd_av1", Name: "Hardware (AMD, AV1)", TypeID: "amf_av1", FFmpegEncoder: "av1_amf", Codec: CodecAV1, DefaultPreset: "quality", Hardware: true, CQP: true},
	{ID: "apple_h264", Name: "Hardware (Apple, H.264)", TypeID: "vt_h264", FFmpegEncoder: "h264_videotoolbox", Codec: CodecH264, Hardware: true, CQP: true},
	{ID: "apple_hevc", Name: "Hardware (Apple, HEVC)", TypeID: "vt_hevc", FFmpegEncoder: "hevc_videotoolbox", Codec: CodecHEVC, Hardware: true, CQP: true},
	{ID: "svt_av1", Name: "AV1 (SVT)", TypeID: "svt_av1", FFmpegEncoder: "libsvtav1", Codec: CodecAV1, DefaultPreset: "8", CRF: true},
	{ID: "aom_av1", Name: "AV1 (AOM)", TypeID: "aom_av1", FFmpegEncoder: "libaom-av1", Codec: CodecAV1, DefaultPreset: "8", CRF: true},
}

// Families returns every known encoder family.
func Families() []Family {
	return slices.Clone(families)
}

// LookupFamily finds a family by id (case-insensitive).
func LookupFamily(id string) (Family, bool) {
	for _, f := range families {
		if strings.EqualFold(f.ID, id) {
			return f, true
		}
	}
	return Family{}, false
}

// LookupFamilyByType finds the first family using the given encoder type id.
func LookupFamilyByType(typeID string) (Family, bool) {
	for _, f := range families {
		if f.TypeID == typeID {
			return f, true
		}
	}
	return Family{}, false
}

// FFmpegEncoderFor maps an encoder type id (video or audio) to an ffmpeg
// encoder name.
func FFmpegEncoderFor(typeID string) (string, bool) {
	if f, ok := LookupFamilyByType(typeID); ok {
		return f.FFmpegEncoder, true
	}
	switch typeID {
	case AudioAAC:
		return "aac", true
	case AudioOpus:
		return "libopus", true
	case AudioPCM:
		return "pcm_s16le", true
	case LosslessVideoType:
		return "utvideo", true
	case RawVideoType:
		return "rawvideo", true
	}
	return "", false
}

// AudioCodecFor returns the codec name an audio encoder type produces, as
// listed in the container and protocol tables.
func AudioCodecFor(typeID string) string {
	switch typeID {
	case AudioAAC:
		return "aac"
	case AudioOpus:
		return "opus"
	case AudioPCM:
		return "pcm_s16le"
	}
	return ""
}

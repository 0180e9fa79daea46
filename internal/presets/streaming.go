package presets

import (
	"errors"
	"fmt"

	"github.com/smazurov/outputnode/internal/handles"
	"github.com/smazurov/outputnode/internal/logging"
)

var (
	// ErrNoSelection is returned when the encoder selection is SelectionNone.
	ErrNoSelection = errors.New("no encoder selected")
	// ErrUnknownEncoder is returned for an encoder id missing from the family table.
	ErrUnknownEncoder = errors.New("unknown encoder")
	// ErrCodecUnsupported is returned when the protocol or container cannot carry the codec.
	ErrCodecUnsupported = errors.New("codec not supported by target")
	// ErrNoStreamPreset is returned when an alias is requested without a streaming preset.
	ErrNoStreamPreset = errors.New("stream encoder alias requested without a streaming preset")
)

// Default streaming values.
const (
	DefaultVideoBitrate = 2500
	DefaultAudioBitrate = 160
	DefaultKeyintSec    = 2
)

// StreamingRequest is the user-level input to ResolveStreamingPreset.
type StreamingRequest struct {
	Encoder      string
	VideoBitrate int
	AudioBitrate int
	Width        int
	Height       int
	FPS          int
	KeyintSec    int
	// RateControl defaults to CBR. A quality mode uses Quality as the base value.
	RateControl RateControl
	Quality     int
	// IgnoreRecommended skips the service bitrate ceilings.
	IgnoreRecommended bool
	Service           handles.Service
}

// StreamingPreset is the resolved streaming encoder pair.
type StreamingPreset struct {
	Family    Family
	Protocol  ProtocolCaps
	VideoType string
	Video     handles.Settings
	AudioType string
	Audio     handles.Settings
}

// ResolveStreamingPreset turns a streaming request into concrete encoder settings.
func ResolveStreamingPreset(req StreamingRequest) (*StreamingPreset, error) {
	if req.Encoder == "" || req.Encoder == SelectionNone {
		return nil, ErrNoSelection
	}
	family, ok := LookupFamily(req.Encoder)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEncoder, req.Encoder)
	}

	caps := Caps("RTMP")
	if req.Service != nil {
		caps = Caps(req.Service.Protocol())
	}
	if !caps.SupportsVideo(family.Codec) {
		return nil, fmt.Errorf("%s over %s: %w", family.Codec, caps.Protocol, ErrCodecUnsupported)
	}

	video := baseVideoSettings(family, req.Width, req.Height, req.FPS, req.KeyintSec)
	video["rate_control"] = string(RateCBR)
	video["bitrate"] = orDefault(req.VideoBitrate, DefaultVideoBitrate)

	switch req.RateControl {
	case RateVBR:
		video["rate_control"] = string(RateVBR)
		video["max_bitrate"] = video.Int("bitrate")
	case RateCRF, RateICQ, RateCQP:
		quality := QualitySettings(family, req.Quality, req.Width, req.Height)
		video = video.Merge(quality)
		video["max_bitrate"] = video.Int("bitrate")
	}

	audio := handles.Settings{
		"bitrate": orDefault(req.AudioBitrate, DefaultAudioBitrate),
	}

	if req.Service != nil && !req.IgnoreRecommended {
		before := video.Int("bitrate")
		req.Service.ApplyEncoderSettings(video, audio)
		if after := video.Int("bitrate"); after != before {
			logging.GetLogger("presets").Info("Applied service bitrate ceiling",
				"service", req.Service.Name(), "requested", before, "applied", after)
		}
	}

	return &StreamingPreset{
		Family:    family,
		Protocol:  caps,
		VideoType: family.TypeID,
		Video:     video,
		AudioType: caps.AudioType,
		Audio:     audio,
	}, nil
}

// QualitySettings builds rate-control settings for a quality-targeting
// mode. CRF encoders get CalcCRF; encoders without CRF use ICQ, or CQP
// with the same value for every frame type.
func QualitySettings(family Family, base, cx, cy int) handles.Settings {
	value := CalcCRF(base, cx, cy, family.LowCPU)
	s := handles.Settings{}
	switch family.Quality() {
	case RateCRF:
		s["rate_control"] = string(RateCRF)
		s["crf"] = value
	case RateICQ:
		s["rate_control"] = string(RateICQ)
		s["icq_quality"] = value
	case RateCQP:
		s["rate_control"] = string(RateCQP)
		s["qpi"] = value
		s["qpp"] = value
		s["qpb"] = value
	default:
		s["rate_control"] = string(RateVBR)
	}
	return s
}

func baseVideoSettings(family Family, width, height, fps, keyint int) handles.Settings {
	s := handles.Settings{
		"keyint_sec": orDefault(keyint, DefaultKeyintSec),
	}
	if family.DefaultPreset != "" {
		s["preset"] = family.DefaultPreset
	}
	if family.Codec == CodecH264 {
		s["profile"] = "high"
	}
	if width > 0 && height > 0 {
		s["width"] = width
		s["height"] = height
	}
	if fps > 0 {
		s["fps"] = fps
	}
	return s
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

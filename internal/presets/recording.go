package presets

import (
	"fmt"
	"strings"

	"github.com/smazurov/outputnode/internal/handles"
)

// Tier is a recording quality tier.
type Tier string

// Recording tiers.
const (
	TierStream   Tier = "Stream"
	TierSmall    Tier = "Small"
	TierHQ       Tier = "HQ"
	TierLossless Tier = "Lossless"
)

// Base CRF values for the lossy tiers.
const (
	SmallCRF = 23
	HQCRF    = 16
)

// Recording audio bitrates per tier, kbps.
const (
	SmallAudioBitrate = 160
	HQAudioBitrate    = 192
)

// ParseTier accepts a tier name in any case.
func ParseTier(s string) (Tier, error) {
	for _, t := range []Tier{TierStream, TierSmall, TierHQ, TierLossless} {
		if strings.EqualFold(string(t), s) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown recording quality %q", s)
}

// EncoderSet is an independent video/audio encoder pair for a recording.
type EncoderSet struct {
	Family    Family
	Container Container
	VideoType string
	Video     handles.Settings
	AudioType string
	Audio     handles.Settings
}

// RecordingRequest is the user-level input to ResolveRecordingPreset.
type RecordingRequest struct {
	Tier      Tier
	Encoder   string
	Container string
	Width     int
	Height    int
	FPS       int
}

// RecordingPreset is either an alias to the streaming encoders or an
// independent encoder set.
type RecordingPreset struct {
	Tier   Tier
	Alias  bool
	Stream *StreamingPreset
	Set    *EncoderSet
	// Container is set in both cases; aliased recordings still choose their
	// own container.
	Container Container
}

// ResolveRecordingPreset resolves a recording tier. TierStream returns an
// alias to stream rather than new encoder settings.
func ResolveRecordingPreset(req RecordingRequest, stream *StreamingPreset) (*RecordingPreset, error) {
	tier := req.Tier
	if tier == "" {
		tier = TierStream
	}

	if tier == TierLossless {
		return resolveLossless(req), nil
	}

	container, ok := LookupContainer(req.Container)
	if !ok {
		container, _ = LookupContainer("mkv")
	}

	if tier == TierStream {
		if stream == nil {
			return nil, ErrNoStreamPreset
		}
		if !container.Supports(stream.Family.Codec) {
			return nil, fmt.Errorf("%s in %s: %w", stream.Family.Codec, container.Name, ErrCodecUnsupported)
		}
		return &RecordingPreset{Tier: tier, Alias: true, Stream: stream, Container: container}, nil
	}

	if req.Encoder == "" || req.Encoder == SelectionNone {
		return nil, ErrNoSelection
	}
	family, ok := LookupFamily(req.Encoder)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEncoder, req.Encoder)
	}
	if !container.Supports(family.Codec) {
		return nil, fmt.Errorf("%s in %s: %w", family.Codec, container.Name, ErrCodecUnsupported)
	}

	base, audioBitrate := SmallCRF, SmallAudioBitrate
	if tier == TierHQ {
		base, audioBitrate = HQCRF, HQAudioBitrate
	}

	video := baseVideoSettings(family, req.Width, req.Height, req.FPS, 0)
	video = video.Merge(QualitySettings(family, base, req.Width, req.Height))

	return &RecordingPreset{
		Tier: tier,
		Set: &EncoderSet{
			Family:    family,
			Container: container,
			VideoType: family.TypeID,
			Video:     video,
			AudioType: AudioAAC,
			Audio:     handles.Settings{"bitrate": audioBitrate},
		},
		Container: container,
	}, nil
}

func resolveLossless(req RecordingRequest) *RecordingPreset {
	container, _ := LookupContainer("avi")
	video := handles.Settings{"rate_control": string(RateLossless)}
	if req.Width > 0 && req.Height > 0 {
		video["width"] = req.Width
		video["height"] = req.Height
	}
	if req.FPS > 0 {
		video["fps"] = req.FPS
	}
	return &RecordingPreset{
		Tier: TierLossless,
		Set: &EncoderSet{
			Family:    Family{ID: "lossless", Name: "Lossless (UT Video)", TypeID: LosslessVideoType, FFmpegEncoder: "utvideo", Codec: CodecRaw},
			Container: container,
			VideoType: LosslessVideoType,
			Video:     video,
			AudioType: AudioPCM,
			Audio:     handles.Settings{},
		},
		Container: container,
	}
}

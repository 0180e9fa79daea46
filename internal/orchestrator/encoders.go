package orchestrator

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/smazurov/outputnode/internal/handles"
	"github.com/smazurov/outputnode/internal/presets"
)

// ensureStreamVideo returns the shared streaming video encoder, creating it
// or applying preset to it. An encoder held by an active output keeps its
// current settings.
func (o *Orchestrator) ensureStreamVideo(preset *presets.StreamingPreset) (*handles.Encoder, error) {
	if enc := o.streamVideo; enc != nil && !enc.Released() {
		if enc.TypeID() == preset.VideoType {
			if err := enc.Update(preset.Video); err != nil {
				o.logger.Debug("Stream encoder in use, keeping its settings", "error", err)
			}
			return enc, nil
		}
		if enc.Locked() {
			return nil, fmt.Errorf("switch stream encoder to %s: %w", preset.VideoType, handles.ErrAliasLocked)
		}
		enc.Release()
	}
	o.streamVideo = nil

	enc, err := o.table.CreateEncoder(handles.MediaVideo, preset.VideoType, "streaming_video", preset.Video)
	if err != nil {
		return nil, err
	}
	enc.Bind(0)
	o.streamVideo = enc
	return enc, nil
}

// audioEncoder returns a pooled audio encoder for the mixer, so outputs
// recording the same mixer at the same bitrate share one encoder.
func (o *Orchestrator) audioEncoder(typeID string, mixer, bitrate int) (*handles.Encoder, error) {
	key := audioKey{typeID: typeID, mixer: mixer, bitrate: bitrate}
	if enc, ok := o.audio[key]; ok && !enc.Released() {
		return enc, nil
	}
	settings := handles.Settings{}
	if bitrate > 0 {
		settings["bitrate"] = bitrate
	}
	name := fmt.Sprintf("audio_track%d_%s_%d", mixer+1, typeID, bitrate)
	enc, err := o.table.CreateEncoder(handles.MediaAudio, typeID, name, settings)
	if err != nil {
		return nil, err
	}
	enc.Bind(mixer)
	o.audio[key] = enc
	return enc, nil
}

// pruneAudio releases pooled audio encoders no output uses.
func (o *Orchestrator) pruneAudio() {
	for key, enc := range o.audio {
		if enc.Consumers() == 0 {
			enc.Release()
			delete(o.audio, key)
		}
	}
}

// releasePool drops the orchestrator's own references. Encoders still
// attached to an output live until that output is released.
func (o *Orchestrator) releasePool() {
	if o.streamVideo != nil {
		o.streamVideo.Release()
		o.streamVideo = nil
	}
	for key, enc := range o.audio {
		enc.Release()
		delete(o.audio, key)
	}
	o.streamPreset = nil
}

// outputName returns a unique output name with a readable prefix.
func outputName(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

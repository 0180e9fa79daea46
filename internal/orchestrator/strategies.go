package orchestrator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smazurov/outputnode/internal/handles"
	"github.com/smazurov/outputnode/internal/outputs"
	"github.com/smazurov/outputnode/internal/presets"
)

// streamStrategy builds the stream output. The video encoder is the shared
// streaming encoder unless an engaged multitrack session supplies renditions.
type streamStrategy struct {
	o *Orchestrator
}

func (s *streamStrategy) Kind() handles.OutputKind { return handles.OutputStream }

func (s *streamStrategy) Prepare() (prepared *outputs.Prepared, err error) {
	o := s.o
	svc := o.currentService()
	preset, err := o.plan.Streaming(svc)
	if err != nil {
		return nil, err
	}
	o.streamPreset = preset

	caps := preset.Protocol
	typeID := caps.OutputType
	if t := svc.PreferredOutputType(); t != "" {
		typeID = t
	}
	settings := handles.Settings{
		"server":   svc.URL(),
		"key":      svc.Key(),
		"protocol": caps.Protocol,
	}
	sess := o.session
	if sess != nil {
		caps = presets.Caps(sess.Protocol)
		typeID = caps.OutputType
		settings["server"] = sess.IngestURL
		settings["key"] = ""
		settings["protocol"] = sess.Protocol
		settings["multitrack_session"] = sess.SessionID
		settings["multitrack_config"] = sess.ConfigID
	}
	settings = settings.Merge(o.profile.ReconnectPolicy().Settings()).Merge(o.profile.Stream.Network.Settings())
	if d := o.profile.Stream.DelaySec; d > 0 {
		settings["delay_sec"] = d
	}

	out, err := o.table.CreateOutput(handles.OutputStream, typeID, outputName("stream"), nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			out.Release()
		}
	}()

	if err := out.SetService(svc); err != nil {
		return nil, err
	}

	if sess != nil {
		for _, r := range sess.Renditions {
			enc, err := o.table.CreateEncoder(handles.MediaVideo, r.TypeID, fmt.Sprintf("multitrack_video_%d", r.Index), r.Settings)
			if err != nil {
				return nil, err
			}
			enc.Bind(0)
			err = out.SetVideoEncoder(r.Index, enc)
			enc.Release()
			if err != nil {
				return nil, err
			}
		}
	} else {
		enc, err := o.ensureStreamVideo(preset)
		if err != nil {
			return nil, err
		}
		if err := out.SetVideoEncoder(0, enc); err != nil {
			return nil, err
		}
	}

	bitrate := preset.Audio.Int("bitrate")
	for _, slot := range o.streamTracks(caps) {
		trackBitrate := bitrate
		if slot.Index > 0 {
			trackBitrate = min(o.profile.TrackBitrate(slot.Mixer, bitrate), bitrate)
		}
		enc, err := o.audioEncoder(preset.AudioType, slot.Mixer, trackBitrate)
		if err != nil {
			return nil, err
		}
		if err := out.SetAudioTrack(slot.Index, enc, o.profile.TrackName(slot.Mixer)); err != nil {
			return nil, err
		}
	}

	out.Update(settings)
	prepared = &outputs.Prepared{Output: out}
	if d := o.profile.Stream.DelaySec; d > 0 {
		prepared.StopDelay = time.Duration(d) * time.Second
	}
	return prepared, nil
}

func (s *streamStrategy) Teardown(p *outputs.Prepared) {
	p.Output.Release()
	s.o.session = nil
}

// streamTracks maps the main mixer to track 0 and, when the protocol can
// carry it, the VOD mixer to track 1.
func (o *Orchestrator) streamTracks(caps presets.ProtocolCaps) []handles.TrackSlot {
	a := o.profile.Audio
	slots := []handles.TrackSlot{{Index: 0, Mixer: a.StreamTrack}}
	if a.VODTrack != nil && caps.VOD && caps.MaxAudioTracks > 1 && *a.VODTrack != a.StreamTrack {
		slots = append(slots, handles.TrackSlot{Index: 1, Mixer: *a.VODTrack})
	}
	return slots
}

func (o *Orchestrator) currentService() handles.Service {
	if o.service != nil {
		return o.service
	}
	return o.profile.StreamService()
}

// recordingPreset resolves the recording encoders, resolving the streaming
// preset first when recordings alias it.
func (o *Orchestrator) recordingPreset() (*presets.RecordingPreset, error) {
	stream := o.streamPreset
	if stream == nil && o.plan.UsesStreamEncoder() {
		var err error
		stream, err = o.plan.Streaming(o.currentService())
		if err != nil {
			return nil, err
		}
		o.streamPreset = stream
	}
	return o.plan.Recording(stream)
}

// attachRecordingEncoders wires video and the selected mixer tracks onto a
// file or replay output.
func (o *Orchestrator) attachRecordingEncoders(out *handles.Output, rec *presets.RecordingPreset) error {
	var audioType string
	var bitrate int
	if rec.Alias {
		enc, err := o.ensureStreamVideo(rec.Stream)
		if err != nil {
			return err
		}
		if err := out.SetVideoEncoder(0, enc); err != nil {
			return err
		}
		audioType, bitrate = rec.Stream.AudioType, rec.Stream.Audio.Int("bitrate")
	} else {
		enc, err := o.table.CreateEncoder(handles.MediaVideo, rec.Set.VideoType, out.Kind().String()+"_video", rec.Set.Video)
		if err != nil {
			return err
		}
		enc.Bind(0)
		err = out.SetVideoEncoder(0, enc)
		enc.Release()
		if err != nil {
			return err
		}
		audioType, bitrate = rec.Set.AudioType, rec.Set.Audio.Int("bitrate")
	}

	if codec := presets.AudioCodecFor(audioType); !rec.Container.SupportsAudio(codec) {
		return fmt.Errorf("%s audio in %s: %w", codec, rec.Container.Name, presets.ErrCodecUnsupported)
	}

	for _, slot := range handles.AssignTracks(o.profile.Audio.RecordTracks) {
		trackBitrate := 0
		if audioType != presets.AudioPCM {
			trackBitrate = o.profile.TrackBitrate(slot.Mixer, bitrate)
		}
		enc, err := o.audioEncoder(audioType, slot.Mixer, trackBitrate)
		if err != nil {
			return err
		}
		if err := out.SetAudioTrack(slot.Index, enc, o.profile.TrackName(slot.Mixer)); err != nil {
			return err
		}
	}
	return nil
}

func muxerSettings(c presets.Container) handles.Settings {
	return handles.Settings{
		"format":         c.Name,
		"muxer":          c.MuxerName,
		"muxer_settings": strings.Join(c.MuxerFlags(), " "),
		"extension":      c.Extension,
	}
}

type recordStrategy struct {
	o *Orchestrator
}

func (s *recordStrategy) Kind() handles.OutputKind { return handles.OutputFile }

func (s *recordStrategy) Prepare() (prepared *outputs.Prepared, err error) {
	o := s.o
	rec, err := o.recordingPreset()
	if err != nil {
		return nil, err
	}

	cfg := o.profile.Recording
	path, err := outputs.GenerateFilename(o.fs, outputs.FilenameOptions{
		Dir:       cfg.Dir,
		Format:    cfg.Format,
		Prefix:    cfg.Prefix,
		Suffix:    cfg.Suffix,
		Extension: rec.Container.Extension,
		Overwrite: cfg.Overwrite,
		NoSpace:   cfg.NoSpace,
	}, o.now())
	if err != nil {
		return nil, err
	}

	out, err := o.table.CreateOutput(handles.OutputFile, presets.OutputFile, outputName("recording"), nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			out.Release()
		}
	}()

	if err := o.attachRecordingEncoders(out, rec); err != nil {
		return nil, err
	}

	settings := muxerSettings(rec.Container)
	settings["path"] = path
	out.Update(settings)
	return &outputs.Prepared{Output: out, Path: path}, nil
}

func (s *recordStrategy) Teardown(p *outputs.Prepared) {
	p.Output.Release()
}

type replayStrategy struct {
	o *Orchestrator
}

func (s *replayStrategy) Kind() handles.OutputKind { return handles.OutputReplay }

func (s *replayStrategy) Prepare() (prepared *outputs.Prepared, err error) {
	o := s.o
	rec, err := o.recordingPreset()
	if err != nil {
		return nil, err
	}
	if !rec.Container.ReplaySafe {
		return nil, fmt.Errorf("replay buffer cannot write %s: %w", rec.Container.Name, presets.ErrCodecUnsupported)
	}

	cfg := o.profile.Replay
	if cfg.Dir == "" || !o.fs.DirExists(cfg.Dir) {
		return nil, outputs.NewError(outputs.ErrCodeBadPath, fmt.Sprintf("replay directory %q", cfg.Dir), outputs.ErrBadPath)
	}
	maxBytes, err := cfg.MaxBytes()
	if err != nil {
		return nil, err
	}

	out, err := o.table.CreateOutput(handles.OutputReplay, presets.OutputReplay, outputName("replay"), nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			out.Release()
		}
	}()

	if err := o.attachRecordingEncoders(out, rec); err != nil {
		return nil, err
	}

	settings := muxerSettings(rec.Container)
	settings["directory"] = cfg.Dir
	settings["file_format"] = o.profile.Recording.Format
	settings["prefix"] = cfg.Prefix
	settings["suffix"] = cfg.Suffix
	settings["no_space"] = o.profile.Recording.NoSpace
	settings["max_time_sec"] = cfg.MaxSeconds
	settings["max_size_mb"] = int(maxBytes / 1_000_000)
	out.Update(settings)
	return &outputs.Prepared{Output: out}, nil
}

func (s *replayStrategy) Teardown(p *outputs.Prepared) {
	p.Output.Release()
}

// errNoVirtualCam is returned when the backend has no virtual camera output.
var errNoVirtualCam = errors.New("virtual camera is not available")

type virtualCamStrategy struct {
	o *Orchestrator
}

func (s *virtualCamStrategy) Kind() handles.OutputKind { return handles.OutputVirtualCam }

func (s *virtualCamStrategy) Prepare() (prepared *outputs.Prepared, err error) {
	o := s.o
	if !o.table.OutputTypeAvailable(presets.OutputVirtualCam) {
		return nil, fmt.Errorf("%w: %w", errNoVirtualCam, handles.ErrTypeUnavailable)
	}

	out, err := o.table.CreateOutput(handles.OutputVirtualCam, presets.OutputVirtualCam, outputName("virtualcam"), nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			out.Release()
		}
	}()

	v := o.profile.Video
	enc, err := o.table.CreateEncoder(handles.MediaVideo, presets.RawVideoType, "virtualcam_video", handles.Settings{
		"width":   v.Width,
		"height":  v.Height,
		"fps":     v.FPS,
		"pix_fmt": "yuv420p",
	})
	if err != nil {
		return nil, err
	}
	enc.Bind(0)
	err = out.SetVideoEncoder(0, enc)
	enc.Release()
	if err != nil {
		return nil, err
	}

	out.Update(handles.Settings{"device": o.profile.VirtualCam.Device})
	return &outputs.Prepared{Output: out}, nil
}

func (s *virtualCamStrategy) Teardown(p *outputs.Prepared) {
	p.Output.Release()
}

package handles

import (
	"errors"
	"fmt"
)

// MaxTracks is the number of audio track slots per output.
const MaxTracks = 6

// MaxVideoSlots bounds the video encoders an output can carry. Only an
// engaged multitrack stream uses more than slot 0.
const MaxVideoSlots = 8

var (
	// ErrTrackIndex is returned for a track index outside 0..MaxTracks-1.
	ErrTrackIndex = errors.New("track index out of range")
	// ErrVideoSlot is returned for a video slot outside 0..MaxVideoSlots-1.
	ErrVideoSlot = errors.New("video slot out of range")
	// ErrNotStream is returned when a service is attached to a non-stream output.
	ErrNotStream = errors.New("service can only be attached to a stream output")
	// ErrWrongMedia is returned when an encoder of the wrong kind is attached.
	ErrWrongMedia = errors.New("encoder media kind does not match slot")
)

// Track is an indexed audio slot on an output.
type Track struct {
	Index   int
	Bitrate int
	Name    string
	Encoder *Encoder
}

// Output is an output handle owning one primitive and references to the
// encoders attached to it.
type Output struct {
	table  *Table
	kind   OutputKind
	typeID string
	name   string
	prim   OutputPrimitive

	video   [MaxVideoSlots]*Encoder
	tracks  [MaxTracks]*Track
	service Service

	settings Settings
	active   bool
	released bool
}

// Kind returns the output kind.
func (o *Output) Kind() OutputKind { return o.kind }

// TypeID returns the output type id.
func (o *Output) TypeID() string { return o.typeID }

// Name returns the output name.
func (o *Output) Name() string { return o.name }

// Primitive returns the backend object.
func (o *Output) Primitive() OutputPrimitive { return o.prim }

// Signals is shorthand for Primitive().Signals().
func (o *Output) Signals() *SignalHandler { return o.prim.Signals() }

// Service returns the attached service, or nil.
func (o *Output) Service() Service { return o.service }

// Settings returns a copy of the last settings pushed with Update.
func (o *Output) Settings() Settings { return o.settings.Clone() }

// Active reports whether the output is marked active.
func (o *Output) Active() bool { return o.active }

// SetActive marks the output active or inactive. Encoders consult this
// flag when deciding whether an update is allowed.
func (o *Output) SetActive(active bool) { o.active = active }

// Released reports whether Release has been called.
func (o *Output) Released() bool { return o.released }

// Update pushes settings to the primitive.
func (o *Output) Update(settings Settings) {
	if o.released {
		return
	}
	o.settings = settings.Clone()
	o.prim.Update(settings.Clone())
}

// VideoEncoder returns the encoder in the given slot, or nil.
func (o *Output) VideoEncoder(slot int) *Encoder {
	if slot < 0 || slot >= MaxVideoSlots {
		return nil
	}
	return o.video[slot]
}

// VideoEncoders returns the populated video slots in slot order.
func (o *Output) VideoEncoders() []*Encoder {
	var out []*Encoder
	for _, e := range o.video {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

// SetVideoEncoder attaches enc to slot, taking a reference. A nil enc clears
// the slot.
func (o *Output) SetVideoEncoder(slot int, enc *Encoder) error {
	if o.released {
		return ErrReleased
	}
	if slot < 0 || slot >= MaxVideoSlots {
		return fmt.Errorf("slot %d: %w", slot, ErrVideoSlot)
	}
	if enc != nil && enc.kind != MediaVideo {
		return fmt.Errorf("slot %d: %w", slot, ErrWrongMedia)
	}
	prev := o.video[slot]
	if prev == enc {
		return nil
	}
	if enc != nil {
		enc.Retain()
		enc.attach(o)
		o.prim.SetVideoEncoder(slot, enc.prim)
	} else {
		o.prim.SetVideoEncoder(slot, nil)
	}
	o.video[slot] = enc
	o.drop(prev)
	return nil
}

// Track returns the track at idx, or nil.
func (o *Output) Track(idx int) *Track {
	if idx < 0 || idx >= MaxTracks {
		return nil
	}
	return o.tracks[idx]
}

// Tracks returns the populated tracks in index order.
func (o *Output) Tracks() []*Track {
	var out []*Track
	for _, t := range o.tracks {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

// SetAudioTrack binds enc to track idx, taking a reference. A nil enc clears
// the track.
func (o *Output) SetAudioTrack(idx int, enc *Encoder, name string) error {
	if o.released {
		return ErrReleased
	}
	if idx < 0 || idx >= MaxTracks {
		return fmt.Errorf("track %d: %w", idx, ErrTrackIndex)
	}
	if enc != nil && enc.kind != MediaAudio {
		return fmt.Errorf("track %d: %w", idx, ErrWrongMedia)
	}
	var prev *Encoder
	if t := o.tracks[idx]; t != nil {
		prev = t.Encoder
	}
	if enc == nil {
		o.tracks[idx] = nil
		o.prim.SetAudioEncoder(idx, nil)
		o.drop(prev)
		return nil
	}
	if prev != enc {
		enc.Retain()
		enc.attach(o)
	}
	o.tracks[idx] = &Track{
		Index:   idx,
		Bitrate: enc.settings.Int("bitrate"),
		Name:    name,
		Encoder: enc,
	}
	o.prim.SetAudioEncoder(idx, enc.prim)
	if prev != enc {
		o.drop(prev)
	}
	return nil
}

// SetService attaches svc. Only stream outputs accept a service.
func (o *Output) SetService(svc Service) error {
	if o.released {
		return ErrReleased
	}
	if o.kind != OutputStream {
		return ErrNotStream
	}
	o.service = svc
	o.prim.SetService(svc)
	return nil
}

// Release detaches all encoders, dropping their references, and destroys
// the primitive. Calling Release twice is a no-op.
func (o *Output) Release() {
	if o.released {
		return
	}
	for i, e := range o.video {
		o.video[i] = nil
		o.drop(e)
	}
	for i, t := range o.tracks {
		o.tracks[i] = nil
		if t != nil {
			o.drop(t.Encoder)
		}
	}
	o.active = false
	o.released = true
	o.service = nil
	o.table.destroyOutput(o)
}

// drop releases one reference to e and detaches o from it when no other
// slot still holds it.
func (o *Output) drop(e *Encoder) {
	if e == nil {
		return
	}
	if !o.holds(e) {
		e.detach(o)
	}
	e.Release()
}

func (o *Output) holds(e *Encoder) bool {
	for _, v := range o.video {
		if v == e {
			return true
		}
	}
	for _, t := range o.tracks {
		if t != nil && t.Encoder == e {
			return true
		}
	}
	return false
}

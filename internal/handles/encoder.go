package handles

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrAliasLocked is returned when an encoder shared by several outputs
	// is reconfigured while any of them is active.
	ErrAliasLocked = errors.New("encoder is shared with an active output")
	// ErrEncoderLocked is returned when a non-dynamic setting of an encoder
	// attached to an active output is changed.
	ErrEncoderLocked = errors.New("encoder is in use by an active output")
	// ErrReleased is returned when a released handle is used.
	ErrReleased = errors.New("handle already released")
)

// DynamicFields are the settings that may change while an encoder is live.
var DynamicFields = []string{"bitrate", "buffer_size", "max_bitrate"}

// IsDynamic reports whether key may be updated on a live encoder.
func IsDynamic(key string) bool {
	return slices.Contains(DynamicFields, key)
}

// Encoder is a shared, reference-counted encoder handle.
type Encoder struct {
	table    *Table
	kind     MediaKind
	typeID   string
	name     string
	settings Settings
	prim     EncoderPrimitive

	refs      int
	bound     bool
	mixer     int
	consumers []*Output
}

// Kind returns the media kind.
func (e *Encoder) Kind() MediaKind { return e.kind }

// TypeID returns the codec family id.
func (e *Encoder) TypeID() string { return e.typeID }

// Name returns the encoder name.
func (e *Encoder) Name() string { return e.name }

// Settings returns a copy of the current settings.
func (e *Encoder) Settings() Settings { return e.settings.Clone() }

// Primitive returns the backend object.
func (e *Encoder) Primitive() EncoderPrimitive { return e.prim }

// Refs returns the current reference count.
func (e *Encoder) Refs() int { return e.refs }

// Released reports whether the last reference has been dropped.
func (e *Encoder) Released() bool { return e.refs <= 0 }

// Retain adds a reference and returns e for chaining.
func (e *Encoder) Retain() *Encoder {
	e.refs++
	return e
}

// Release drops a reference. The last release destroys the primitive.
func (e *Encoder) Release() {
	if e.refs <= 0 {
		return
	}
	e.refs--
	if e.refs > 0 {
		return
	}
	e.table.destroyEncoder(e)
}

// Bind attaches the encoder to the process-wide media clock. Audio encoders
// are fed from the given mixer. Binding happens once.
func (e *Encoder) Bind(mixer int) {
	if e.bound || e.Released() {
		return
	}
	src := MediaSource{Clock: Clock(), Mixer: mixer}
	if e.kind == MediaVideo {
		e.table.encoders.BindVideo(e.prim, src)
	} else {
		e.table.encoders.BindAudio(e.prim, src)
	}
	e.bound = true
	e.mixer = mixer
}

// Bound reports whether Bind has been called.
func (e *Encoder) Bound() bool { return e.bound }

// Consumers returns the number of outputs the encoder is attached to.
func (e *Encoder) Consumers() int { return len(e.consumers) }

// ActiveConsumers returns the number of attached outputs that are active.
func (e *Encoder) ActiveConsumers() int {
	n := 0
	for _, o := range e.consumers {
		if o.active {
			n++
		}
	}
	return n
}

// Locked reports whether any attached output is active.
func (e *Encoder) Locked() bool {
	return e.ActiveConsumers() > 0
}

// CheckUpdate reports whether settings could be applied without changing
// anything.
func (e *Encoder) CheckUpdate(settings Settings) error {
	if e.Released() {
		return ErrReleased
	}
	active := e.ActiveConsumers()
	if active == 0 {
		return nil
	}
	if len(e.consumers) > 1 {
		return fmt.Errorf("update %s: %w", e.name, ErrAliasLocked)
	}
	for k := range settings {
		if !IsDynamic(k) {
			return fmt.Errorf("update %s field %q: %w", e.name, k, ErrEncoderLocked)
		}
	}
	return nil
}

// Update merges settings into the encoder and pushes them to the primitive.
func (e *Encoder) Update(settings Settings) error {
	if err := e.CheckUpdate(settings); err != nil {
		return err
	}
	e.settings = e.settings.Merge(settings)
	e.table.encoders.UpdateEncoder(e.prim, e.settings.Clone())
	return nil
}

func (e *Encoder) attach(o *Output) {
	if !slices.Contains(e.consumers, o) {
		e.consumers = append(e.consumers, o)
	}
}

func (e *Encoder) detach(o *Output) {
	e.consumers = slices.DeleteFunc(e.consumers, func(c *Output) bool { return c == o })
}

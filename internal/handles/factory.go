package handles

// EncoderPrimitive is the backend object behind an Encoder handle.
type EncoderPrimitive interface {
	// TypeID returns the codec family id the primitive was created with.
	TypeID() string
}

// OutputPrimitive is the backend object behind an Output handle.
// Start, Stop and ForceStop are called on the owner goroutine; signals may
// be emitted from any goroutine.
type OutputPrimitive interface {
	TypeID() string
	Update(settings Settings)
	SetVideoEncoder(idx int, enc EncoderPrimitive)
	SetAudioEncoder(idx int, enc EncoderPrimitive)
	SetService(svc Service)

	Start() bool
	Stop()
	ForceStop()
	LastError() string

	// Signals exposes the named-signal interface of the primitive.
	Signals() *SignalHandler

	// Pause toggles recording pause. Returns false when unsupported.
	Pause(paused bool) bool
	// SaveReplay asks a replay buffer to write its window to disk.
	SaveReplay() bool
	// SplitFile asks a recording to continue in a new file.
	SplitFile() bool
}

// MediaSource is what an encoder is bound to: the process-wide media clock
// plus, for audio, the mixer index feeding it.
type MediaSource struct {
	Clock *MediaClock
	Mixer int
}

// EncoderFactory creates and drives encoder primitives.
type EncoderFactory interface {
	// CreateEncoder returns false when the format is unsupported.
	CreateEncoder(kind MediaKind, typeID, name string, settings Settings) (EncoderPrimitive, bool)
	UpdateEncoder(enc EncoderPrimitive, settings Settings)
	BindVideo(enc EncoderPrimitive, src MediaSource)
	BindAudio(enc EncoderPrimitive, src MediaSource)
	DestroyEncoder(enc EncoderPrimitive)
	EncoderTypeAvailable(typeID string) bool
}

// OutputFactory creates output primitives.
type OutputFactory interface {
	// CreateOutput returns false when the output type is unsupported.
	CreateOutput(typeID, name string, hotkeyData Settings) (OutputPrimitive, bool)
	DestroyOutput(out OutputPrimitive)
	OutputTypeAvailable(typeID string) bool
}

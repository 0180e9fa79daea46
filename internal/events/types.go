package events

// Event type constants for kelindar/event.
const (
	TypeOutputStateChanged uint32 = iota + 1
	TypeOutputStopped
	TypeReconnect
	TypeReconnected
	TypeRecordingFileChanged
	TypeReplaySaved
	TypeStreamDelay
	TypeMultitrackNegotiated
	TypeProfileApplied
	TypeLogEntry
	TypeEncodeMetrics
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// OutputStateChangedEvent is published on every state machine transition.
type OutputStateChangedEvent struct {
	Kind      string `json:"kind" example:"streaming" doc:"Output kind: streaming, recording, replay_buffer, virtualcam"`
	From      string `json:"from" example:"starting" doc:"Previous state"`
	To        string `json:"to" example:"active" doc:"New state"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for OutputStateChangedEvent.
func (e OutputStateChangedEvent) Type() uint32 { return TypeOutputStateChanged }

// GetKind returns the output kind.
func (e OutputStateChangedEvent) GetKind() string {
	return e.Kind
}

// IsActive reports whether the output is now running.
func (e OutputStateChangedEvent) IsActive() bool {
	return e.To != "idle"
}

// OutputStoppedEvent is published when an output returns to idle.
type OutputStoppedEvent struct {
	Kind      string `json:"kind" example:"streaming" doc:"Output kind"`
	Code      int    `json:"code" example:"0" doc:"Stop code reported by the output"`
	Message   string `json:"message,omitempty" doc:"Displayable stop message, empty on success"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for OutputStoppedEvent.
func (e OutputStoppedEvent) Type() uint32 { return TypeOutputStopped }

// ReconnectEvent is published when the stream transport starts retrying.
type ReconnectEvent struct {
	Kind       string `json:"kind" example:"streaming" doc:"Output kind"`
	TimeoutSec int    `json:"timeout_sec" example:"2" doc:"Seconds until the next attempt"`
	Timestamp  string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ReconnectEvent.
func (e ReconnectEvent) Type() uint32 { return TypeReconnect }

// ReconnectedEvent is published when a retry succeeds.
type ReconnectedEvent struct {
	Kind      string `json:"kind" example:"streaming" doc:"Output kind"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ReconnectedEvent.
func (e ReconnectedEvent) Type() uint32 { return TypeReconnected }

// RecordingFileChangedEvent is published when a recording is split into a new file.
type RecordingFileChangedEvent struct {
	Path      string `json:"path" example:"/recordings/2026-01-27 10-30-00.mkv" doc:"New recording file"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for RecordingFileChangedEvent.
func (e RecordingFileChangedEvent) Type() uint32 { return TypeRecordingFileChanged }

// ReplaySavedEvent is published when the replay buffer writes a file.
type ReplaySavedEvent struct {
	Path      string `json:"path" example:"/recordings/Replay 2026-01-27 10-30-00.mkv" doc:"Saved replay file"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ReplaySavedEvent.
func (e ReplaySavedEvent) Type() uint32 { return TypeReplaySaved }

// StreamDelayEvent reports a start or stop delay countdown.
type StreamDelayEvent struct {
	Phase        string `json:"phase" example:"starting" doc:"starting or stopping"`
	RemainingSec int    `json:"remaining_sec" example:"30" doc:"Seconds left in the countdown"`
	Timestamp    string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamDelayEvent.
func (e StreamDelayEvent) Type() uint32 { return TypeStreamDelay }

// MultitrackNegotiatedEvent reports the outcome of a multitrack negotiation.
type MultitrackNegotiatedEvent struct {
	SessionID  string `json:"session_id" doc:"Negotiation session identifier"`
	Decision   string `json:"decision" example:"engage" doc:"engage, fall_back or abort"`
	Renditions int    `json:"renditions" example:"3" doc:"Number of negotiated video renditions"`
	Message    string `json:"message,omitempty" doc:"Displayable error or warning"`
	Timestamp  string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for MultitrackNegotiatedEvent.
func (e MultitrackNegotiatedEvent) Type() uint32 { return TypeMultitrackNegotiated }

// ProfileAppliedEvent is published when an output profile takes effect.
type ProfileAppliedEvent struct {
	Mode      string `json:"mode" example:"simple" doc:"Profile mode"`
	Deferred  bool   `json:"deferred" doc:"True when the profile waits for outputs to stop"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ProfileAppliedEvent.
func (e ProfileAppliedEvent) Type() uint32 { return TypeProfileApplied }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2026-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"orchestrator" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }

// EncodeMetricsEvent carries the latest ffmpeg progress of one output.
type EncodeMetricsEvent struct {
	Output          string `json:"output" example:"adv_stream" doc:"Output name"`
	FPS             string `json:"fps" example:"29.97" doc:"Encoding frame rate"`
	DroppedFrames   string `json:"dropped_frames" example:"0" doc:"Frames dropped since start"`
	DuplicateFrames string `json:"duplicate_frames" example:"0" doc:"Frames duplicated since start"`
	Speed           string `json:"speed" example:"1.00" doc:"Encoding speed relative to realtime"`
	BitrateKbps     string `json:"bitrate_kbps" example:"6000.0" doc:"Output bitrate in kbit/s"`
}

// Type returns the event type identifier for EncodeMetricsEvent.
func (e EncodeMetricsEvent) Type() uint32 { return TypeEncodeMetrics }

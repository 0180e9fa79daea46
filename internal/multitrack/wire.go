package multitrack

// SchemaVersion is sent with every configuration request.
const SchemaVersion = "2024-06-04"

// Status results returned by the service.
const (
	StatusSuccess = "success"
	StatusWarning = "warning"
	StatusError   = "error"
)

// ConfigRequest is the body POSTed to the service's multitrack config URL.
type ConfigRequest struct {
	Service        string       `json:"service"`
	SchemaVersion  string       `json:"schema_version"`
	Authentication string       `json:"authentication"`
	Client         ClientInfo   `json:"client"`
	Capabilities   Capabilities `json:"capabilities"`
	Preferences    Preferences  `json:"preferences"`
}

// ClientInfo identifies this node.
type ClientInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Platform  string `json:"platform"`
	Arch      string `json:"arch"`
	SessionID string `json:"session_id"`
}

// Capabilities describes the encoding hardware.
type Capabilities struct {
	CPU      CPUInfo   `json:"cpu"`
	GPU      []GPUInfo `json:"gpu,omitempty"`
	Encoders []string  `json:"encoders,omitempty"`
}

// CPUInfo describes the host CPU.
type CPUInfo struct {
	LogicalCores int `json:"logical_cores"`
}

// GPUInfo describes one GPU.
type GPUInfo struct {
	Model         string `json:"model"`
	VendorID      int    `json:"vendor_id,omitempty"`
	DeviceID      int    `json:"device_id,omitempty"`
	DedicatedVRAM uint64 `json:"dedicated_video_memory,omitempty"`
}

// Preferences carries the user's limits and canvas.
type Preferences struct {
	MaximumAggregateBitrate *int            `json:"maximum_aggregate_bitrate,omitempty"`
	MaximumVideoTracks      *int            `json:"maximum_video_tracks,omitempty"`
	VODTrackAudio           bool            `json:"vod_track_audio"`
	Width                   int             `json:"width"`
	Height                  int             `json:"height"`
	Framerate               Framerate       `json:"framerate"`
	AudioTracks             []AudioTrackRef `json:"audio_tracks"`
}

// Framerate is a rational frame rate.
type Framerate struct {
	Numerator   int `json:"numerator"`
	Denominator int `json:"denominator"`
}

// AudioTrackRef names an audio track and its role.
type AudioTrackRef struct {
	Index int    `json:"index"`
	Role  string `json:"role"`
}

// ConfigResponse is the service's answer.
type ConfigResponse struct {
	Meta                  Meta                   `json:"meta"`
	Status                *Status                `json:"status,omitempty"`
	IngestEndpoints       []IngestEndpoint       `json:"ingest_endpoints"`
	EncoderConfigurations []EncoderConfiguration `json:"encoder_configurations"`
	AudioConfigurations   AudioConfigurations    `json:"audio_configurations"`
}

// Meta identifies the configuration.
type Meta struct {
	Service       string `json:"service"`
	SchemaVersion string `json:"schema_version"`
	ConfigID      string `json:"config_id"`
}

// Status is an optional verdict with a displayable message.
type Status struct {
	Result   string `json:"result"`
	HTMLEnUS string `json:"html_en_us"`
}

// IngestEndpoint is one place the renditions can be sent.
type IngestEndpoint struct {
	Protocol       string  `json:"protocol"`
	URLTemplate    string  `json:"url_template"`
	Authentication *string `json:"authentication,omitempty"`
}

// EncoderConfiguration is one video rendition requested by the service.
type EncoderConfiguration struct {
	Type      string         `json:"type"`
	Width     int            `json:"width"`
	Height    int            `json:"height"`
	Framerate *Framerate     `json:"framerate,omitempty"`
	Settings  map[string]any `json:"settings"`
}

// AudioConfigurations lists audio encoders for live and VOD tracks.
type AudioConfigurations struct {
	Live []AudioConfiguration `json:"live"`
	VOD  []AudioConfiguration `json:"vod,omitempty"`
}

// AudioConfiguration is one audio encoder requested by the service.
type AudioConfiguration struct {
	Codec    string         `json:"codec"`
	Channels int            `json:"channels"`
	Settings map[string]any `json:"settings"`
}

package models

import (
	"github.com/smazurov/outputnode/internal/ffmpeg"
	"github.com/smazurov/outputnode/internal/orchestrator"
	"github.com/smazurov/outputnode/internal/presets"
	"github.com/smazurov/outputnode/internal/profile"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit SHA"`
	BuildDate string `json:"build_date" example:"2026-01-27 14:30" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"a1b2c3d4" doc:"Unique build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go compiler version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Compiler used"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Status models
type StatusResponse struct {
	Body orchestrator.Status
}

// Output control models
type OutputKindInput struct {
	Kind string `path:"kind" enum:"streaming,recording,replay_buffer,virtualcam" doc:"Output kind"`
}

type StartOutputInput struct {
	OutputKindInput
}

type StopOutputInput struct {
	OutputKindInput
	Force bool `query:"force" doc:"Stop immediately, skipping stop delays and pending data"`
}

type OutputActionData struct {
	Kind      string `json:"kind" example:"recording" doc:"Output kind"`
	Active    bool   `json:"active" doc:"Whether the output is running after the request"`
	State     string `json:"state" example:"active" doc:"Machine state after the request"`
	LastError string `json:"last_error,omitempty" doc:"Last displayable error"`
}

type OutputActionResponse struct {
	Body OutputActionData
}

type PauseRecordingInput struct {
	Body struct {
		Paused bool `json:"paused" doc:"True to pause, false to resume"`
	}
}

type BitrateInput struct {
	Body struct {
		Kbps int `json:"kbps" minimum:"1" example:"4500" doc:"New video bitrate in kbps"`
	}
}

type MessageData struct {
	Message string `json:"message" doc:"Operation result message"`
}

type MessageResponse struct {
	Body MessageData
}

// Profile models
type ProfileResponse struct {
	Body *profile.Profile
}

// ProfileUpdateInput carries a partial profile in JSON. Fields that are
// left out keep their current values.
type ProfileUpdateInput struct {
	RawBody []byte `contentType:"application/json"`
}

type ProfileUpdateData struct {
	Deferred bool             `json:"deferred" doc:"True when the profile waits for active outputs to stop"`
	Saved    bool             `json:"saved" doc:"True when the profile was written to disk"`
	Profile  *profile.Profile `json:"profile" doc:"The accepted profile"`
}

type ProfileUpdateResponse struct {
	Body ProfileUpdateData
}

// Encoder models
type EncoderFamily struct {
	presets.Family
	Available bool `json:"available" doc:"Whether the backend can create this encoder"`
}

type AudioEncoder struct {
	TypeID    string `json:"type_id" example:"ffmpeg_aac" doc:"Encoder type id"`
	Codec     string `json:"codec" example:"aac" doc:"Codec produced"`
	Available bool   `json:"available" doc:"Whether the backend can create this encoder"`
}

type OutputType struct {
	TypeID    string `json:"type_id" example:"rtmp_output" doc:"Output type id"`
	Available bool   `json:"available" doc:"Whether the backend can create this output"`
}

type EncoderData struct {
	Video   []EncoderFamily `json:"video" doc:"Video encoder families"`
	Audio   []AudioEncoder  `json:"audio" doc:"Audio encoders"`
	Outputs []OutputType    `json:"outputs" doc:"Output types"`
}

type EncodersResponse struct {
	Body EncoderData
}

// Options models for FFmpeg input configuration
type OptionsData struct {
	Options []ffmpeg.Option `json:"options" doc:"All available FFmpeg options with metadata"`
}

type OptionsResponse struct {
	Body OptionsData
}

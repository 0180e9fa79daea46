package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/outputnode/internal/api/models"
	"github.com/smazurov/outputnode/internal/handles"
	"github.com/smazurov/outputnode/internal/orchestrator"
	"github.com/smazurov/outputnode/internal/outputs"
	"github.com/smazurov/outputnode/internal/profile"
)

// errorStatus maps orchestrator errors onto HTTP errors.
func errorStatus(err error) error {
	var oe *outputs.Error
	switch {
	case errors.Is(err, orchestrator.ErrClosed):
		return huma.Error503ServiceUnavailable(err.Error())
	case errors.As(err, &oe):
		switch oe.Code {
		case outputs.ErrCodeNotActive, outputs.ErrCodeAlreadyActive:
			return huma.Error409Conflict(oe.Message, err)
		case outputs.ErrCodeUnsupported:
			return huma.Error501NotImplemented(oe.Message, err)
		case outputs.ErrCodeBadPath:
			return huma.Error422UnprocessableEntity(oe.Message, err)
		}
		return huma.Error500InternalServerError(oe.Message, err)
	case errors.Is(err, handles.ErrAliasLocked), errors.Is(err, handles.ErrEncoderLocked),
		errors.Is(err, profile.ErrLocked):
		return huma.Error409Conflict(err.Error())
	}
	return huma.Error500InternalServerError(err.Error())
}

func (s *Server) outputAction(kind handles.OutputKind) (*models.OutputActionResponse, error) {
	st, err := s.ctrl.Status()
	if err != nil {
		return nil, errorStatus(err)
	}
	out := st.Outputs[kind.String()]
	return &models.OutputActionResponse{
		Body: models.OutputActionData{
			Kind:      kind.String(),
			Active:    out.Active,
			State:     out.State,
			LastError: out.LastError,
		},
	}, nil
}

// registerOutputRoutes registers status and output control routes.
func (s *Server) registerOutputRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Status",
		Description: "Snapshot of every output, the active flags and the last error",
		Tags:        []string{"outputs"},
		Security:    withAuth(),
		Errors:      []int{401, 503},
	}, func(_ context.Context, _ *struct{}) (*models.StatusResponse, error) {
		st, err := s.ctrl.Status()
		if err != nil {
			return nil, errorStatus(err)
		}
		return &models.StatusResponse{Body: st}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "start-output",
		Method:      http.MethodPost,
		Path:        "/api/outputs/{kind}/start",
		Summary:     "Start Output",
		Description: "Start streaming, recording, the replay buffer or the virtual camera. Streaming waits for multitrack negotiation.",
		Tags:        []string{"outputs"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 409, 503},
	}, func(ctx context.Context, input *models.StartOutputInput) (*models.OutputActionResponse, error) {
		kind, err := handles.ParseOutputKind(input.Kind)
		if err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
		if !s.ctrl.Start(ctx, kind) {
			msg := s.ctrl.LastError()
			if msg == "" {
				msg = "output failed to start"
			}
			return nil, huma.Error409Conflict(msg)
		}
		return s.outputAction(kind)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-output",
		Method:      http.MethodPost,
		Path:        "/api/outputs/{kind}/stop",
		Summary:     "Stop Output",
		Description: "Request a graceful stop, or an immediate one with force=true. The state settles asynchronously.",
		Tags:        []string{"outputs"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 503},
	}, func(_ context.Context, input *models.StopOutputInput) (*models.OutputActionResponse, error) {
		kind, err := handles.ParseOutputKind(input.Kind)
		if err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
		s.ctrl.Stop(kind, input.Force)
		return s.outputAction(kind)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "pause-recording",
		Method:      http.MethodPost,
		Path:        "/api/recording/pause",
		Summary:     "Pause Recording",
		Description: "Pause or resume the active recording",
		Tags:        []string{"recording"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 501, 503},
	}, func(_ context.Context, input *models.PauseRecordingInput) (*models.OutputActionResponse, error) {
		if err := s.ctrl.PauseRecording(input.Body.Paused); err != nil {
			return nil, errorStatus(err)
		}
		return s.outputAction(handles.OutputFile)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "split-recording",
		Method:      http.MethodPost,
		Path:        "/api/recording/split",
		Summary:     "Split Recording",
		Description: "Continue the active recording in a new file",
		Tags:        []string{"recording"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 501, 503},
	}, func(_ context.Context, _ *struct{}) (*models.MessageResponse, error) {
		if err := s.ctrl.SplitRecording(); err != nil {
			return nil, errorStatus(err)
		}
		return &models.MessageResponse{Body: models.MessageData{Message: "Recording split requested"}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "save-replay",
		Method:      http.MethodPost,
		Path:        "/api/replay/save",
		Summary:     "Save Replay",
		Description: "Write the replay buffer window to disk. The path arrives as a replay-saved event.",
		Tags:        []string{"replay"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 501, 503},
	}, func(_ context.Context, _ *struct{}) (*models.MessageResponse, error) {
		if err := s.ctrl.SaveReplayBuffer(); err != nil {
			return nil, errorStatus(err)
		}
		return &models.MessageResponse{Body: models.MessageData{Message: "Replay save requested"}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "update-stream-bitrate",
		Method:      http.MethodPut,
		Path:        "/api/streaming/bitrate",
		Summary:     "Update Stream Bitrate",
		Description: "Change the streaming video bitrate. Rejected while the encoder is shared with another active output.",
		Tags:        []string{"streaming"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 422, 503},
	}, func(_ context.Context, input *models.BitrateInput) (*models.MessageResponse, error) {
		if err := s.ctrl.UpdateStreamingBitrate(input.Body.Kbps); err != nil {
			return nil, errorStatus(err)
		}
		return &models.MessageResponse{Body: models.MessageData{Message: "Bitrate updated"}}, nil
	})
}

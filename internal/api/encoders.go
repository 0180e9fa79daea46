package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/outputnode/internal/api/models"
	"github.com/smazurov/outputnode/internal/presets"
)

var (
	audioTypes  = []string{presets.AudioAAC, presets.AudioOpus, presets.AudioPCM}
	outputTypes = []string{
		presets.OutputRTMP, presets.OutputWHIP, presets.OutputMPEGTS, presets.OutputHLS,
		presets.OutputFile, presets.OutputReplay, presets.OutputVirtualCam,
	}
)

func (s *Server) encoderData() models.EncoderData {
	var data models.EncoderData
	for _, f := range presets.Families() {
		data.Video = append(data.Video, models.EncoderFamily{Family: f, Available: s.catalog.EncoderTypeAvailable(f.TypeID)})
	}
	for _, t := range audioTypes {
		data.Audio = append(data.Audio, models.AudioEncoder{
			TypeID:    t,
			Codec:     presets.AudioCodecFor(t),
			Available: s.catalog.EncoderTypeAvailable(t),
		})
	}
	for _, t := range outputTypes {
		data.Outputs = append(data.Outputs, models.OutputType{TypeID: t, Available: s.catalog.OutputTypeAvailable(t)})
	}
	return data
}

// registerEncoderRoutes registers the encoder catalog route.
func (s *Server) registerEncoderRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-encoders",
		Method:      http.MethodGet,
		Path:        "/api/encoders",
		Summary:     "List Encoders",
		Description: "List video encoder families, audio encoders and output types with their availability on this host",
		Tags:        []string{"encoders"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.EncodersResponse, error) {
		return &models.EncodersResponse{Body: s.encoderData()}, nil
	})
}

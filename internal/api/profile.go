package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/outputnode/internal/api/models"
	"github.com/smazurov/outputnode/internal/orchestrator"
	"github.com/smazurov/outputnode/internal/profile"
)

// maskedKey replaces the stream key in responses. Sending it back keeps
// the stored key.
const maskedKey = "********"

func redact(p *profile.Profile) *profile.Profile {
	if p.Service.StreamKey != "" {
		p.Service.StreamKey = maskedKey
	}
	return p
}

// registerProfileRoutes registers the profile read and update routes.
func (s *Server) registerProfileRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-profile",
		Method:      http.MethodGet,
		Path:        "/api/profile",
		Summary:     "Get Profile",
		Description: "Get the output profile in effect. The stream key is masked.",
		Tags:        []string{"profile"},
		Security:    withAuth(),
		Errors:      []int{401, 503},
	}, func(_ context.Context, _ *struct{}) (*models.ProfileResponse, error) {
		p, err := s.ctrl.Profile()
		if err != nil {
			return nil, errorStatus(err)
		}
		return &models.ProfileResponse{Body: redact(p)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "update-profile",
		Method:      http.MethodPatch,
		Path:        "/api/profile",
		Summary:     "Update Profile",
		Description: "Merge a partial profile into the current one and apply it. While outputs are active the change is deferred until they stop.",
		Tags:        []string{"profile"},
		Security:    withAuth(),
		Errors:      []int{400, 401, 409, 422, 503},
	}, func(_ context.Context, input *models.ProfileUpdateInput) (*models.ProfileUpdateResponse, error) {
		p, err := s.ctrl.Profile()
		if err != nil {
			return nil, errorStatus(err)
		}
		key := p.Service.StreamKey
		if err := json.Unmarshal(input.RawBody, p); err != nil {
			return nil, huma.Error400BadRequest("invalid profile JSON", err)
		}
		if p.Service.StreamKey == maskedKey {
			p.Service.StreamKey = key
		}
		if err := p.Validate(); err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}

		deferred, err := s.ctrl.ApplyProfile(p)
		if errors.Is(err, orchestrator.ErrClosed) {
			return nil, errorStatus(err)
		}
		if err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}

		saved := false
		if s.store != nil {
			if err := s.store.Save(p); err != nil {
				return nil, errorStatus(err)
			}
			saved = true
		}
		s.logger.Info("Profile updated via API", "mode", string(p.Mode), "deferred", deferred, "saved", saved)

		return &models.ProfileUpdateResponse{
			Body: models.ProfileUpdateData{
				Deferred: deferred,
				Saved:    saved,
				Profile:  redact(p.Clone()),
			},
		}, nil
	})
}

package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/outputnode/internal/events"
	"github.com/smazurov/outputnode/internal/orchestrator"
)

// registerSSERoutes registers the output event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Status snapshot on connect, then output state changes, stops, reconnects, recording splits, replay saves, delays, multitrack negotiations and profile changes",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"status":                orchestrator.Status{},
		"output-state-changed":  events.OutputStateChangedEvent{},
		"output-stopped":        events.OutputStoppedEvent{},
		"reconnect":             events.ReconnectEvent{},
		"reconnected":           events.ReconnectedEvent{},
		"recording-file-change": events.RecordingFileChangedEvent{},
		"replay-saved":          events.ReplaySavedEvent{},
		"stream-delay":          events.StreamDelayEvent{},
		"multitrack-negotiated": events.MultitrackNegotiatedEvent{},
		"profile-applied":       events.ProfileAppliedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.OutputStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.OutputStoppedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ReconnectEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ReconnectedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.RecordingFileChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ReplaySavedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.StreamDelayEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.MultitrackNegotiatedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ProfileAppliedEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Subscribed first so nothing between the snapshot and the stream is lost
		st, err := s.ctrl.Status()
		if err != nil {
			s.logger.Debug("Status unavailable for SSE client", "error", err)
			return
		}
		if err := send.Data(st); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}

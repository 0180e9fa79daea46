package orchestrator

import (
	"context"

	"github.com/smazurov/outputnode/internal/events"
	"github.com/smazurov/outputnode/internal/handles"
	"github.com/smazurov/outputnode/internal/mainloop"
	"github.com/smazurov/outputnode/internal/multitrack"
	"github.com/smazurov/outputnode/internal/presets"
)

// singleTrackService hides the multitrack endpoint of a service when
// multitrack is disabled in the profile.
type singleTrackService struct {
	handles.Service
}

func (singleTrackService) MultitrackConfigURL() string { return "" }

// StartStreaming starts the stream and waits for the outcome. A nil svc
// uses the profile's service. If ctx ends first the start continues in the
// background and StartStreaming returns false.
func (o *Orchestrator) StartStreaming(ctx context.Context, svc handles.Service) bool {
	ok, err := o.StartStreamingAsync(svc).Wait(ctx)
	if err != nil {
		o.logger.Warn("Stopped waiting for stream start", "error", err)
		return false
	}
	return ok
}

// StartStreamingAsync begins a multitrack negotiation and, unless it aborts,
// starts the stream. The future always resolves: true once the stream
// output started, false with LastError set otherwise. StopStreaming while
// the negotiation is pending cancels the start.
func (o *Orchestrator) StartStreamingAsync(svc handles.Service) *mainloop.Future[bool] {
	promise, future := mainloop.NewPromise[bool]()
	if o.closed.Load() || !o.loop.Post(func() { o.beginStreaming(svc, promise) }) {
		o.setLastError(ErrClosed.Error())
		promise.Resolve(false)
	}
	return future
}

func (o *Orchestrator) beginStreaming(svc handles.Service, promise *mainloop.Promise[bool]) {
	if o.closed.Load() {
		o.setLastError(ErrClosed.Error())
		promise.Resolve(false)
		return
	}
	if o.negotiating || o.machines[handles.OutputStream].Active() {
		o.setLastError("Streaming is already active.")
		promise.Resolve(false)
		return
	}
	if svc == nil {
		svc = o.profile.StreamService()
	}

	req := o.negotiationRequest(svc)
	future, err := o.negotiator.Begin(req)
	if err != nil {
		o.setLastError(err.Error())
		promise.Resolve(false)
		return
	}

	o.negotiating = true
	o.cancelStart = false
	future.Then(o.loop, func(r multitrack.Result) {
		// After Close this may run off the loop; leave loop state alone.
		if o.closed.Load() {
			promise.Resolve(false)
			return
		}
		o.negotiating = false
		if o.cancelStart {
			o.cancelStart = false
			o.setLastError("Stream start was cancelled.")
			promise.Resolve(false)
			return
		}
		o.reportNegotiation(r)

		switch r.Decision {
		case multitrack.Abort:
			msg := "Multitrack negotiation failed."
			if r.Err != nil {
				msg = r.Err.Message
			}
			o.setLastError(msg)
			promise.Resolve(false)
			return
		case multitrack.Engage:
			o.session = &r
		default:
			o.session = nil
			if r.Err != nil {
				o.logger.Warn("Multitrack unavailable, streaming single track", "reason", r.Err.Message)
			}
		}

		o.service = svc
		ok := o.startKind(handles.OutputStream)
		if !ok {
			o.session = nil
		}
		promise.Resolve(ok)
	})
}

func (o *Orchestrator) negotiationRequest(svc handles.Service) multitrack.Request {
	p := o.profile
	mt := p.Stream.Multitrack
	req := multitrack.Request{
		Service:        svc,
		AudioEncoderID: presets.Caps(svc.Protocol()).AudioType,
		MainTrack:      p.Audio.StreamTrack,
		VODTrack:       p.Audio.VODTrack,
		Canvas:         p.Video,
	}
	if !mt.Enabled {
		req.Service = singleTrackService{svc}
		return req
	}
	req.OverrideConfig = mt.OverrideConfig
	if mt.MaxAggregateBitrate > 0 {
		v := mt.MaxAggregateBitrate
		req.MaxAggregateBitrate = &v
	}
	if mt.MaxVideoTracks > 0 {
		v := mt.MaxVideoTracks
		req.MaxVideoTracks = &v
	}
	return req
}

func (o *Orchestrator) reportNegotiation(r multitrack.Result) {
	if r.Decision == multitrack.FallBack && r.Err == nil {
		return
	}
	ev := events.MultitrackNegotiatedEvent{
		SessionID:  r.SessionID,
		Decision:   r.Decision.String(),
		Renditions: len(r.Renditions),
		Message:    r.Warning,
		Timestamp:  timestamp(),
	}
	if r.Err != nil {
		ev.Message = r.Err.Message
	}
	o.publish(ev)
}

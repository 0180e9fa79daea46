// Package multitrack negotiates a multitrack video session with a streaming
// service. The negotiation runs off the owner loop and reports back through
// a future that always resolves, including when the negotiator is closed
// mid-flight.
package multitrack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"github.com/google/uuid"

	"github.com/smazurov/outputnode/internal/handles"
	"github.com/smazurov/outputnode/internal/logging"
	"github.com/smazurov/outputnode/internal/mainloop"
	"github.com/smazurov/outputnode/internal/presets"
)

// ErrNegotiationInFlight is returned by Begin while an earlier session is unresolved.
var ErrNegotiationInFlight = errors.New("multitrack negotiation already in flight")

// Decision is the tri-state outcome of a negotiation.
type Decision int

// Decisions.
const (
	// FallBack means start an ordinary single-track stream.
	FallBack Decision = iota
	// Engage means use the negotiated multitrack configuration.
	Engage
	// Abort means do not start at all.
	Abort
)

func (d Decision) String() string {
	switch d {
	case Engage:
		return "engage"
	case Abort:
		return "abort"
	default:
		return "fall_back"
	}
}

// Error is a negotiation failure with a displayable message and the
// decision the caller must follow.
type Error struct {
	Message  string
	Decision Decision
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %v", e.Message, e.Decision, e.Cause)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Decision)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Request is the configuration snapshot for one negotiation.
type Request struct {
	Service        handles.Service
	AudioEncoderID string
	MainTrack      int
	// VODTrack is the audio track carried for VOD, if any.
	VODTrack *int
	// OverrideConfig is a JSON configuration used instead of asking the service.
	OverrideConfig      string
	MaxAggregateBitrate *int
	MaxVideoTracks      *int
	Canvas              presets.VideoFormat
}

// Rendition is one negotiated video encoder.
type Rendition struct {
	Index    int
	TypeID   string
	Width    int
	Height   int
	Bitrate  int
	Settings handles.Settings
}

// Result is what the future resolves to.
type Result struct {
	Decision   Decision
	Err        *Error
	Warning    string
	SessionID  string
	ConfigID   string
	IngestURL  string
	Protocol   string
	Renditions []Rendition
}

func fallBack(sessionID, msg string, cause error) Result {
	return Result{Decision: FallBack, SessionID: sessionID, Err: &Error{Message: msg, Decision: FallBack, Cause: cause}}
}

func abort(sessionID, msg string, cause error) Result {
	return Result{Decision: Abort, SessionID: sessionID, Err: &Error{Message: msg, Decision: Abort, Cause: cause}}
}

// Session guards one in-flight negotiation.
type Session struct {
	ID      string
	Request Request
	promise *mainloop.Promise[Result]
	future  *mainloop.Future[Result]
	cancel  context.CancelFunc
}

// Future returns the session's result future.
func (s *Session) Future() *mainloop.Future[Result] {
	return s.future
}

// Close cancels the background work and resolves the future with Abort if
// it is still pending.
func (s *Session) Close() {
	s.cancel()
	s.promise.Resolve(abort(s.ID, "Multitrack negotiation was cancelled.", context.Canceled))
}

// ClientIdentity is reported to the service.
type ClientIdentity struct {
	Name     string
	Version  string
	Encoders []string
}

// Negotiator runs negotiations. Begin and Close must be called on the loop.
type Negotiator struct {
	loop     *mainloop.Loop
	fetcher  Fetcher
	identity ClientIdentity
	logger   *slog.Logger
	session  *Session
}

// New creates a negotiator whose results are delivered on loop.
func New(loop *mainloop.Loop, fetcher Fetcher, identity ClientIdentity) *Negotiator {
	return &Negotiator{
		loop:     loop,
		fetcher:  fetcher,
		identity: identity,
		logger:   logging.GetLogger("multitrack"),
	}
}

// Session returns the most recent session, or nil.
func (n *Negotiator) Session() *Session {
	return n.session
}

// Begin starts a negotiation and returns its future. With no multitrack
// endpoint and no override the future is already resolved with FallBack.
func (n *Negotiator) Begin(req Request) (*mainloop.Future[Result], error) {
	if n.session != nil && !n.session.future.Ready() {
		return nil, ErrNegotiationInFlight
	}

	ctx, cancel := context.WithCancel(context.Background())
	promise, future := mainloop.NewPromise[Result]()
	s := &Session{
		ID:      uuid.NewString(),
		Request: req,
		promise: promise,
		future:  future,
		cancel:  cancel,
	}
	n.session = s

	url := ""
	if req.Service != nil {
		url = req.Service.MultitrackConfigURL()
	}
	if url == "" && req.OverrideConfig == "" {
		cancel()
		promise.Resolve(Result{Decision: FallBack, SessionID: s.ID})
		return future, nil
	}

	n.logger.Info("Multitrack negotiation started", "session", s.ID, "override", req.OverrideConfig != "")
	body := n.buildRequest(s.ID, req)

	go func() {
		defer cancel()
		var cfg *ConfigResponse
		var err error
		if req.OverrideConfig != "" {
			cfg, err = ParseConfig(req.OverrideConfig)
			if err != nil {
				n.deliver(s, abort(s.ID, "The multitrack override configuration is invalid.", err))
				return
			}
		} else {
			cfg, err = n.fetcher.Fetch(ctx, url, body)
		}
		if ctx.Err() != nil {
			return
		}
		var result Result
		if err != nil {
			result = fallBack(s.ID, "Could not get a multitrack configuration from the service.", err)
		} else {
			result = decide(s.ID, req, cfg)
		}
		n.deliver(s, result)
	}()

	return future, nil
}

// deliver resolves the session on the loop. If the loop is gone the
// session is resolved directly so the future never stays pending.
func (n *Negotiator) deliver(s *Session, r Result) {
	if !n.loop.Post(func() {
		if s.promise.Resolve(r) {
			n.logger.Info("Multitrack negotiation finished", "session", s.ID, "decision", r.Decision.String(), "renditions", len(r.Renditions))
		}
	}) {
		s.promise.Resolve(r)
	}
}

// Close tears down the current session, resolving it with Abort if pending.
func (n *Negotiator) Close() {
	if n.session != nil {
		n.session.Close()
	}
}

func (n *Negotiator) buildRequest(sessionID string, req Request) *ConfigRequest {
	body := &ConfigRequest{
		SchemaVersion: SchemaVersion,
		Client: ClientInfo{
			Name:      n.identity.Name,
			Version:   n.identity.Version,
			Platform:  runtime.GOOS,
			Arch:      runtime.GOARCH,
			SessionID: sessionID,
		},
		Capabilities: Capabilities{
			CPU:      CPUInfo{LogicalCores: runtime.NumCPU()},
			Encoders: n.identity.Encoders,
		},
		Preferences: Preferences{
			MaximumAggregateBitrate: req.MaxAggregateBitrate,
			MaximumVideoTracks:      req.MaxVideoTracks,
			VODTrackAudio:           req.VODTrack != nil,
			Width:                   req.Canvas.Width,
			Height:                  req.Canvas.Height,
			Framerate:               Framerate{Numerator: max(req.Canvas.FPS, 1), Denominator: 1},
			AudioTracks:             []AudioTrackRef{{Index: req.MainTrack, Role: "main"}},
		},
	}
	if req.VODTrack != nil {
		body.Preferences.AudioTracks = append(body.Preferences.AudioTracks, AudioTrackRef{Index: *req.VODTrack, Role: "vod"})
	}
	if req.Service != nil {
		body.Service = req.Service.Name()
		body.Authentication = req.Service.Key()
	}
	return body
}

// decide turns a configuration into a Result.
func decide(sessionID string, req Request, cfg *ConfigResponse) Result {
	warning := ""
	if cfg.Status != nil {
		switch cfg.Status.Result {
		case StatusError:
			return abort(sessionID, statusMessage(cfg.Status, "The service refused to start a multitrack stream."), nil)
		case StatusWarning:
			warning = cfg.Status.HTMLEnUS
		}
	}

	if len(cfg.EncoderConfigurations) == 0 {
		return fallBack(sessionID, "The service returned no encoder configurations.", nil)
	}

	endpoint, ok := pickEndpoint(cfg.IngestEndpoints)
	if !ok {
		return fallBack(sessionID, "The service returned no usable ingest endpoint.", nil)
	}

	renditions := pickRenditions(cfg.EncoderConfigurations, req.MaxVideoTracks, req.MaxAggregateBitrate)
	if len(renditions) == 0 {
		return fallBack(sessionID, "No video rendition fits the configured bitrate limits.", nil)
	}

	key := ""
	if req.Service != nil {
		key = req.Service.Key()
	}
	if endpoint.Authentication != nil && *endpoint.Authentication != "" {
		key = *endpoint.Authentication
	}

	return Result{
		Decision:   Engage,
		Warning:    warning,
		SessionID:  sessionID,
		ConfigID:   cfg.Meta.ConfigID,
		IngestURL:  strings.ReplaceAll(endpoint.URLTemplate, "{stream_key}", key),
		Protocol:   strings.ToUpper(endpoint.Protocol),
		Renditions: renditions,
	}
}

func statusMessage(s *Status, def string) string {
	if s.HTMLEnUS != "" {
		return s.HTMLEnUS
	}
	return def
}

// pickEndpoint prefers RTMPS over RTMP.
func pickEndpoint(endpoints []IngestEndpoint) (IngestEndpoint, bool) {
	for _, proto := range []string{"RTMPS", "RTMP"} {
		for _, e := range endpoints {
			if strings.EqualFold(e.Protocol, proto) && e.URLTemplate != "" {
				return e, true
			}
		}
	}
	return IngestEndpoint{}, false
}

// pickRenditions keeps configurations in service order, honouring the
// track count limit and skipping any that would exceed the aggregate bitrate.
func pickRenditions(cfgs []EncoderConfiguration, maxTracks, maxBitrate *int) []Rendition {
	var out []Rendition
	total := 0
	for _, c := range cfgs {
		if maxTracks != nil && len(out) >= *maxTracks {
			break
		}
		settings := handles.Settings(c.Settings).Clone()
		bitrate := settings.Int("bitrate")
		if maxBitrate != nil && total+bitrate > *maxBitrate {
			continue
		}
		total += bitrate

		typeID := c.Type
		if f, ok := presets.LookupFamily(c.Type); ok {
			typeID = f.TypeID
		}
		settings["width"] = c.Width
		settings["height"] = c.Height
		if c.Framerate != nil && c.Framerate.Denominator > 0 {
			settings["fps"] = c.Framerate.Numerator / c.Framerate.Denominator
		}
		out = append(out, Rendition{
			Index:    len(out),
			TypeID:   typeID,
			Width:    c.Width,
			Height:   c.Height,
			Bitrate:  bitrate,
			Settings: settings,
		})
	}
	return out
}

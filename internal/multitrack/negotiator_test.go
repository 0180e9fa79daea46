package multitrack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smazurov/outputnode/internal/handles"
	"github.com/smazurov/outputnode/internal/mainloop"
)

const sampleConfig = `{
	"meta": {"service": "Example", "schema_version": "2024-06-04", "config_id": "cfg-1"},
	"status": {"result": "success", "html_en_us": ""},
	"ingest_endpoints": [
		{"protocol": "RTMP", "url_template": "rtmp://ingest.example.com/app/{stream_key}"},
		{"protocol": "RTMPS", "url_template": "rtmps://ingest.example.com/app/{stream_key}"}
	],
	"encoder_configurations": [
		{"type": "x264", "width": 1920, "height": 1080, "framerate": {"numerator": 60, "denominator": 1}, "settings": {"bitrate": 6000, "rate_control": "CBR"}},
		{"type": "x264", "width": 1280, "height": 720, "settings": {"bitrate": 3000}},
		{"type": "x264", "width": 852, "height": 480, "settings": {"bitrate": 1500}}
	],
	"audio_configurations": {"live": [{"codec": "aac", "channels": 2, "settings": {"bitrate": 160}}]}
}`

func intPtr(v int) *int { return &v }

func newLoop(t *testing.T) *mainloop.Loop {
	t.Helper()
	l := mainloop.New()
	t.Cleanup(l.Close)
	return l
}

func begin(t *testing.T, loop *mainloop.Loop, n *Negotiator, req Request) (*mainloop.Future[Result], error) {
	t.Helper()
	var f *mainloop.Future[Result]
	var err error
	if callErr := loop.Call(context.Background(), func() { f, err = n.Begin(req) }); callErr != nil {
		t.Fatalf("loop call failed: %v", callErr)
	}
	return f, err
}

func wait(t *testing.T, f *mainloop.Future[Result]) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	r, err := f.Wait(ctx)
	if err != nil {
		t.Fatalf("future never resolved: %v", err)
	}
	return r
}

func serve(t *testing.T, status int, body string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "outputnode/") {
			http.Error(w, "missing user agent", http.StatusBadRequest)
			return
		}
		var req ConfigRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBegin_NoEndpointFallsBackImmediately(t *testing.T) {
	loop := newLoop(t)
	n := New(loop, NewHTTPFetcher(time.Second), ClientIdentity{Name: "outputnode"})

	f, err := begin(t, loop, n, Request{Service: &handles.BasicService{Server: "rtmp://example.com/app"}})
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if !f.Ready() {
		t.Fatal("Expected future resolved on return")
	}
	r, _ := f.Get()
	if r.Decision != FallBack || r.Err != nil {
		t.Errorf("Expected clean fall back, got %+v", r)
	}
}

func TestBegin_Engage(t *testing.T) {
	srv := serve(t, http.StatusOK, sampleConfig, nil)
	loop := newLoop(t)
	n := New(loop, NewHTTPFetcher(time.Second), ClientIdentity{Name: "outputnode"})
	svc := &handles.BasicService{ServiceName: "Example", StreamKey: "live_123", ConfigURL: srv.URL}

	f, err := begin(t, loop, n, Request{Service: svc, MaxVideoTracks: intPtr(2)})
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	r := wait(t, f)

	if r.Decision != Engage {
		t.Fatalf("Expected engage, got %s (%v)", r.Decision, r.Err)
	}
	if r.IngestURL != "rtmps://ingest.example.com/app/live_123" {
		t.Errorf("Expected RTMPS ingest with key, got %s", r.IngestURL)
	}
	if len(r.Renditions) != 2 {
		t.Fatalf("Expected 2 renditions, got %d", len(r.Renditions))
	}
	if r.Renditions[0].TypeID != "obs_x264" || r.Renditions[0].Settings.Int("fps") != 60 {
		t.Errorf("Unexpected first rendition %+v", r.Renditions[0])
	}
	if r.ConfigID != "cfg-1" {
		t.Errorf("Expected config id cfg-1, got %s", r.ConfigID)
	}
}

func TestBegin_AggregateBitrateCap(t *testing.T) {
	srv := serve(t, http.StatusOK, sampleConfig, nil)
	loop := newLoop(t)
	n := New(loop, NewHTTPFetcher(time.Second), ClientIdentity{})
	svc := &handles.BasicService{ConfigURL: srv.URL}

	f, _ := begin(t, loop, n, Request{Service: svc, MaxAggregateBitrate: intPtr(5000)})
	r := wait(t, f)
	if r.Decision != Engage {
		t.Fatalf("Expected engage, got %s", r.Decision)
	}
	total := 0
	for _, rd := range r.Renditions {
		total += rd.Bitrate
	}
	if total > 5000 || len(r.Renditions) != 2 {
		t.Errorf("Expected 720p+480p within 5000, got %d renditions totalling %d", len(r.Renditions), total)
	}

	f, _ = begin(t, loop, n, Request{Service: svc, MaxAggregateBitrate: intPtr(500)})
	if r := wait(t, f); r.Decision != FallBack {
		t.Errorf("Expected fall back when nothing fits, got %s", r.Decision)
	}
}

func TestBegin_Decisions(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   Decision
		msg    string
	}{
		{"service error aborts", http.StatusBadRequest, `{"status": {"result": "error", "html_en_us": "Your account cannot stream."}}`, Abort, "Your account cannot stream."},
		{"warning engages", http.StatusOK, `{"status": {"result": "warning", "html_en_us": "Careful"}, "ingest_endpoints": [{"protocol": "RTMP", "url_template": "rtmp://x/{stream_key}"}], "encoder_configurations": [{"type": "x264", "width": 1280, "height": 720, "settings": {"bitrate": 3000}}]}`, Engage, ""},
		{"server failure falls back", http.StatusInternalServerError, `oops`, FallBack, "Could not get a multitrack configuration from the service."},
		{"no encoders falls back", http.StatusOK, `{"ingest_endpoints": [{"protocol": "RTMP", "url_template": "rtmp://x"}]}`, FallBack, "The service returned no encoder configurations."},
		{"no endpoint falls back", http.StatusOK, `{"encoder_configurations": [{"type": "x264", "settings": {"bitrate": 1}}], "ingest_endpoints": [{"protocol": "SRT", "url_template": "srt://x"}]}`, FallBack, "The service returned no usable ingest endpoint."},
		{"garbage falls back", http.StatusOK, `{not json`, FallBack, "Could not get a multitrack configuration from the service."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serve(t, tt.status, tt.body, nil)
			loop := newLoop(t)
			n := New(loop, NewHTTPFetcher(time.Second), ClientIdentity{})

			f, err := begin(t, loop, n, Request{Service: &handles.BasicService{ConfigURL: srv.URL}})
			if err != nil {
				t.Fatalf("Begin failed: %v", err)
			}
			r := wait(t, f)
			if r.Decision != tt.want {
				t.Fatalf("Expected %s, got %s (%v)", tt.want, r.Decision, r.Err)
			}
			if tt.msg != "" && (r.Err == nil || r.Err.Message != tt.msg) {
				t.Errorf("Expected message %q, got %+v", tt.msg, r.Err)
			}
			if r.Err != nil && r.Err.Decision != r.Decision {
				t.Errorf("Error decision %s disagrees with result %s", r.Err.Decision, r.Decision)
			}
			if tt.want == Engage && r.Warning != "Careful" {
				t.Errorf("Expected warning to carry through, got %q", r.Warning)
			}
		})
	}
}

func TestBegin_OverrideSkipsService(t *testing.T) {
	var hits atomic.Int32
	srv := serve(t, http.StatusOK, sampleConfig, &hits)
	loop := newLoop(t)
	n := New(loop, NewHTTPFetcher(time.Second), ClientIdentity{})
	svc := &handles.BasicService{ConfigURL: srv.URL, StreamKey: "k"}

	f, _ := begin(t, loop, n, Request{Service: svc, OverrideConfig: sampleConfig})
	if r := wait(t, f); r.Decision != Engage {
		t.Fatalf("Expected engage from override, got %s", r.Decision)
	}
	if hits.Load() != 0 {
		t.Errorf("Expected no HTTP requests, got %d", hits.Load())
	}

	f, _ = begin(t, loop, n, Request{Service: svc, OverrideConfig: "{broken"})
	if r := wait(t, f); r.Decision != Abort {
		t.Errorf("Expected abort for invalid override, got %s", r.Decision)
	}
}

func blockingServer(t *testing.T) (*httptest.Server, chan struct{}) {
	t.Helper()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
			_, _ = w.Write([]byte(sampleConfig))
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
		srv.Close()
	})
	return srv, release
}

func TestBegin_RejectsWhileInFlight(t *testing.T) {
	srv, release := blockingServer(t)
	loop := newLoop(t)
	n := New(loop, NewHTTPFetcher(5*time.Second), ClientIdentity{})
	req := Request{Service: &handles.BasicService{ConfigURL: srv.URL}}

	f, err := begin(t, loop, n, req)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, err := begin(t, loop, n, req); !errors.Is(err, ErrNegotiationInFlight) {
		t.Fatalf("Expected ErrNegotiationInFlight, got %v", err)
	}

	close(release)
	wait(t, f)

	if _, err := begin(t, loop, n, Request{}); err != nil {
		t.Errorf("Expected Begin to succeed after resolution, got %v", err)
	}
}

func TestClose_ResolvesPendingFuture(t *testing.T) {
	srv, _ := blockingServer(t)
	loop := newLoop(t)
	n := New(loop, NewHTTPFetcher(time.Minute), ClientIdentity{})

	f, err := begin(t, loop, n, Request{Service: &handles.BasicService{ConfigURL: srv.URL}})
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if f.Ready() {
		t.Fatal("Expected pending future while the service is blocked")
	}

	_ = loop.Call(context.Background(), n.Close)

	r := wait(t, f)
	if r.Decision != Abort || !errors.Is(r.Err, context.Canceled) {
		t.Errorf("Expected abort with cancellation, got %+v", r)
	}
}

func TestFuture_ContinuationOnLoop(t *testing.T) {
	srv := serve(t, http.StatusOK, sampleConfig, nil)
	loop := newLoop(t)
	n := New(loop, NewHTTPFetcher(time.Second), ClientIdentity{})

	// count is only touched on the loop goroutine.
	count := 0
	done := make(chan int, 1)

	f, _ := begin(t, loop, n, Request{Service: &handles.BasicService{ConfigURL: srv.URL}})
	f.Then(loop, func(r Result) {
		count++
		done <- count
	})

	select {
	case got := <-done:
		if got != 1 {
			t.Errorf("Expected single continuation, got %d", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Continuation never ran")
	}
}

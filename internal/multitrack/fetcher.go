package multitrack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/smazurov/outputnode/internal/logging"
	"github.com/smazurov/outputnode/internal/version"
)

// maxResponseSize bounds the configuration body read from the service.
const maxResponseSize = 1 << 20

// Fetcher retrieves a multitrack configuration.
type Fetcher interface {
	Fetch(ctx context.Context, url string, req *ConfigRequest) (*ConfigResponse, error)
}

// HTTPFetcher POSTs the request as JSON.
type HTTPFetcher struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPFetcher creates a fetcher with the given request timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.GetLogger("multitrack"),
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, body *ConfigRequest) (*ConfigResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch config: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	f.logger.Debug("Multitrack config fetched", "url", url, "status", resp.StatusCode, "bytes", len(raw))

	// An error status in the body takes precedence over the HTTP status.
	var cfg ConfigResponse
	if jsonErr := json.Unmarshal(raw, &cfg); jsonErr == nil && cfg.Status != nil && cfg.Status.Result == StatusError {
		return &cfg, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("config request failed, status: %d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// ParseConfig decodes a configuration supplied directly, bypassing the service.
func ParseConfig(raw string) (*ConfigResponse, error) {
	var cfg ConfigResponse
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse override config: %w", err)
	}
	return &cfg, nil
}

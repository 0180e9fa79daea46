// Package collectors gathers metrics from running ffmpeg processes.
package collectors

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/smazurov/outputnode/internal/logging"
	"github.com/smazurov/outputnode/internal/metrics"
)

// ProgressCollector reads ffmpeg "-progress" reports from a Unix socket and
// publishes them as encode metrics of one output.
type ProgressCollector struct {
	logger     *slog.Logger
	socketPath string
	output     string

	mu       sync.Mutex
	listener net.Listener
	current  metrics.EncodeMetrics
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}
}

// NewProgressCollector creates a collector listening on socketPath.
func NewProgressCollector(socketPath, output string) *ProgressCollector {
	return &ProgressCollector{
		logger:     logging.GetLogger("metrics").With("output", output),
		socketPath: socketPath,
		output:     output,
		done:       make(chan struct{}),
	}
}

// URL is the value for ffmpeg's -progress option.
func (p *ProgressCollector) URL() string {
	return "unix://" + p.socketPath
}

// Start creates the socket and accepts ffmpeg connections until Stop or ctx
// ends.
func (p *ProgressCollector) Start(ctx context.Context) error {
	if err := os.Remove(p.socketPath); err != nil && !os.IsNotExist(err) {
		p.logger.Warn("Failed to clean up old socket file", "error", err)
	}
	listener, err := net.Listen("unix", p.socketPath)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.listener = listener
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	go p.accept(listener)
	go func() {
		<-p.ctx.Done()
		listener.Close()
	}()
	return nil
}

// Stop closes the socket and removes the output's metrics.
func (p *ProgressCollector) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		cancel, listener := p.cancel, p.listener
		p.mu.Unlock()
		if cancel == nil {
			return
		}
		cancel()
		listener.Close()
		<-p.done
		os.Remove(p.socketPath)
		metrics.DeleteEncodeMetrics(p.output)
	})
}

func (p *ProgressCollector) accept(listener net.Listener) {
	defer close(p.done)
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || p.ctx.Err() != nil {
				return
			}
			p.logger.Warn("Error accepting connection", "error", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}
		go p.handleConnection(conn)
	}
}

func (p *ProgressCollector) handleConnection(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	block := make(map[string]string)
	for scanner.Scan() {
		if p.ctx.Err() != nil {
			return
		}
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		block[key] = strings.TrimSpace(value)
		if key == "progress" {
			p.publish(block)
			block = make(map[string]string)
		}
	}
}

// publish applies one progress block. Fields ffmpeg reports as N/A keep
// their previous value.
func (p *ProgressCollector) publish(block map[string]string) {
	p.mu.Lock()
	m := p.current
	if v, ok := parseFloat(block["fps"]); ok {
		m.FPS = v
	}
	if v, ok := parseFloat(block["drop_frames"]); ok {
		m.DroppedFrames = v
	}
	if v, ok := parseFloat(block["dup_frames"]); ok {
		m.DuplicateFrames = v
	}
	if v, ok := parseFloat(strings.TrimSuffix(block["speed"], "x")); ok {
		m.Speed = v
	}
	if v, ok := parseFloat(strings.TrimSuffix(block["bitrate"], "kbits/s")); ok {
		m.BitrateKbps = v
	}
	p.current = m
	p.mu.Unlock()

	metrics.SetEncodeMetrics(p.output, m)
}

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v, err == nil
}

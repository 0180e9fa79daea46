// Package process runs subprocesses for the ffmpeg backend.
//
// A Process wraps os/exec for a single subprocess:
//   - Graceful shutdown with SIGINT and a configurable timeout
//   - Force kill with SIGKILL, immediately or after the graceful timeout
//   - Output streaming with pluggable log parsing
//   - In-place restart with a new argument list
//
// Example:
//
//	p := process.New("recording", []string{"ffmpeg", "-i", in, out}, process.Options{
//	    Logger: logger,
//	    OnExit: func(code int, shutdown bool) { ... },
//	})
//	if err := p.Start(); err != nil { ... }
//	defer p.Shutdown()
package process

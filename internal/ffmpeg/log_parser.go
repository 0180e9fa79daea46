package ffmpeg

import (
	"strings"
	"sync"
)

// ParseLogLevel extracts the log level from ffmpeg output.
// FFmpeg with -loglevel level+info outputs lines like "[info] message"
// or "[component @ 0x...] [level] message" for component-specific logs.
// Returns the level and the message with level stripped but component preserved.
func ParseLogLevel(line string) (level, msg string) {
	if len(line) < 3 || line[0] != '[' {
		return "info", line
	}

	end := strings.Index(line, "] ")
	if end == -1 {
		return "info", line
	}

	bracket := line[1:end]

	if isLogLevel(bracket) {
		return bracket, line[end+2:]
	}

	// Check for component prefix: [component @ 0x...] [level] message
	// Keep the component, strip only the [level]
	component := line[:end+2]
	rest := line[end+2:]
	if len(rest) > 2 && rest[0] == '[' {
		if nextEnd := strings.Index(rest, "] "); nextEnd != -1 {
			nextBracket := rest[1:nextEnd]
			if isLogLevel(nextBracket) {
				return nextBracket, component + rest[nextEnd+2:]
			}
		}
	}

	return "info", line
}

func isLogLevel(s string) bool {
	switch s {
	case "quiet", "panic", "fatal", "error", "warning", "info", "verbose", "debug", "trace":
		return true
	}
	return false
}

// ErrorTracker remembers the last error line an ffmpeg process printed.
// It implements process.OutputHandler.
type ErrorTracker struct {
	mu   sync.Mutex
	last string
}

// HandleLine records lines logged at error level or above.
func (t *ErrorTracker) HandleLine(_, line string) {
	level, msg := ParseLogLevel(line)
	switch level {
	case "error", "fatal", "panic":
		t.mu.Lock()
		t.last = msg
		t.mu.Unlock()
	}
}

// Last returns the most recent error line, or "".
func (t *ErrorTracker) Last() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Reset forgets the recorded error.
func (t *ErrorTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = ""
}

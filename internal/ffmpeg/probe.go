package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// Encoder is one line of `ffmpeg -encoders`.
type Encoder struct {
	Type        string `json:"type"` // V, A or S
	Name        string `json:"name"`
	Description string `json:"description"`
}

var encoderLine = regexp.MustCompile(`^\s*([VASF\.]{6})\s+(\S+)\s+(.+)$`)

// ListEncoders runs `ffmpeg -encoders` and returns the encoders ffmpeg was
// built with.
func ListEncoders(ctx context.Context, binary string) ([]Encoder, error) {
	args := append(Base(binary), "-encoders")
	out, err := exec.CommandContext(ctx, args[0], args[1:]...).Output()
	if err != nil {
		return nil, fmt.Errorf("list ffmpeg encoders: %w", err)
	}
	return ParseEncoders(string(out)), nil
}

// ParseEncoders parses the output of `ffmpeg -encoders`.
func ParseEncoders(output string) []Encoder {
	var encoders []Encoder
	scanner := bufio.NewScanner(strings.NewReader(output))
	started := false
	for scanner.Scan() {
		line := scanner.Text()
		if !started {
			// the table starts after the " ------" separator
			if strings.HasPrefix(strings.TrimSpace(line), "------") {
				started = true
			}
			continue
		}
		m := encoderLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		kind := "?"
		switch {
		case strings.Contains(m[1], "V"):
			kind = "V"
		case strings.Contains(m[1], "A"):
			kind = "A"
		case strings.Contains(m[1], "S"):
			kind = "S"
		}
		encoders = append(encoders, Encoder{Type: kind, Name: m[2], Description: strings.TrimSpace(m[3])})
	}
	return encoders
}

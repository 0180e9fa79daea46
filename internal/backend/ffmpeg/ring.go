package ffmpeg

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// segmentRing is the on-disk window of a replay buffer: ffmpeg's segment
// muxer writes fixed-length files into dir and wraps the numbering, so the
// directory never holds more than wrap segments.
type segmentRing struct {
	dir      string
	ext      string
	segment  time.Duration
	maxTime  time.Duration
	maxBytes int64
}

func newSegmentRing(root, ext string, segmentSec, maxSec int, maxBytes int64) (*segmentRing, error) {
	dir, err := os.MkdirTemp(root, "replay-*")
	if err != nil {
		return nil, fmt.Errorf("replay scratch directory: %w", err)
	}
	return &segmentRing{
		dir:      dir,
		ext:      ext,
		segment:  time.Duration(segmentSec) * time.Second,
		maxTime:  time.Duration(maxSec) * time.Second,
		maxBytes: maxBytes,
	}, nil
}

func (r *segmentRing) pattern() string {
	return filepath.Join(r.dir, "seg%05d."+r.ext)
}

// wrap is the number of segment files kept: the window plus the one being
// written.
func (r *segmentRing) wrap() int {
	if r.segment <= 0 {
		return 2
	}
	n := int((r.maxTime + r.segment - 1) / r.segment)
	return max(n, 1) + 1
}

// formatArgs configures the segment muxer.
func (r *segmentRing) formatArgs(muxer string) []string {
	return []string{
		"-segment_time", fmt.Sprint(int(r.segment / time.Second)),
		"-segment_format", muxer,
		"-segment_wrap", fmt.Sprint(r.wrap()),
		"-reset_timestamps", "1",
	}
}

type segmentFile struct {
	path string
	mod  time.Time
	size int64
}

// window returns the completed segments making up the replay, oldest
// first, bounded by maxTime and maxBytes. The segment being written is
// left out.
func (r *segmentRing) window() ([]segmentFile, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, err
	}
	var files []segmentFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "seg") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, segmentFile{path: filepath.Join(r.dir, e.Name()), mod: info.ModTime(), size: info.Size()})
	}
	slices.SortFunc(files, func(a, b segmentFile) int { return a.mod.Compare(b.mod) })
	if len(files) > 1 {
		files = files[:len(files)-1]
	}

	var total int64
	start := len(files)
	for i := len(files) - 1; i >= 0; i-- {
		if r.maxTime > 0 && time.Duration(len(files)-i)*r.segment > r.maxTime {
			break
		}
		if r.maxBytes > 0 && total+files[i].size > r.maxBytes && start < len(files) {
			break
		}
		total += files[i].size
		start = i
	}
	return files[start:], nil
}

// writeList writes an ffmpeg concat list for files and returns its path.
func (r *segmentRing) writeList(files []segmentFile) (string, error) {
	var b strings.Builder
	for _, f := range files {
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(f.path, "'", `'\''`))
	}
	list, err := os.CreateTemp(r.dir, "concat-*.txt")
	if err != nil {
		return "", err
	}
	defer list.Close()
	if _, err := list.WriteString(b.String()); err != nil {
		return "", err
	}
	return list.Name(), nil
}

func (r *segmentRing) remove() error {
	return os.RemoveAll(r.dir)
}

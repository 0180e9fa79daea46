package ffmpeg

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// DefaultBinary is the ffmpeg executable looked up in PATH.
const DefaultBinary = "ffmpeg"

// Base returns the executable with the standard global flags.
func Base(binary string) []string {
	if binary == "" {
		binary = DefaultBinary
	}
	return []string{binary, "-hide_banner", "-nostdin", "-loglevel", "level+info"}
}

// BuildArgs builds the argument list for one output.
func BuildArgs(p *Params) []string {
	args := Base(p.Binary)
	if p.Progress != "" {
		args = append(args, "-progress", p.Progress, "-stats_period", "1")
	}
	in := p.Input

	// Video input
	if in.TestSource() {
		// -re keeps a generated source at its native frame rate
		args = append(args, "-re", "-f", "lavfi", "-i", testPattern(in))
	} else {
		args = append(args, "-f", "v4l2")
		args = append(args, InputArgs(in.Options)...)
		if in.InputFormat != "" {
			args = append(args, "-input_format", in.InputFormat)
		}
		if in.Width > 0 && in.Height > 0 {
			args = append(args, "-video_size", fmt.Sprintf("%dx%d", in.Width, in.Height))
		}
		if in.FPS > 0 {
			args = append(args, "-framerate", strconv.Itoa(in.FPS))
		}
		args = append(args, "-i", in.VideoDevice)
	}

	// One audio input per mixer, in track order
	var mixers []int
	for _, a := range p.Audio {
		if !slices.Contains(mixers, a.Mixer) {
			mixers = append(mixers, a.Mixer)
		}
	}
	for _, mixer := range mixers {
		if mixer < len(in.AudioDevices) && in.AudioDevices[mixer] != "" {
			args = append(args, "-thread_queue_size", "1024", "-f", "alsa", "-ar", "48000", "-ac", "2", "-i", in.AudioDevices[mixer])
		} else {
			args = append(args, "-f", "lavfi", "-i", fmt.Sprintf("sine=frequency=%d:sample_rate=48000", 440*(mixer+1)))
		}
	}

	if slices.Contains(in.Options, OptionCopyTimestamps) {
		args = append(args, "-copyts", "-start_at_zero")
	}

	for i, v := range p.Video {
		args = append(args, "-map", "0:v:0")
		args = append(args, videoArgs(i, v, in)...)
	}
	for i, a := range p.Audio {
		input := slices.Index(mixers, a.Mixer) + 1
		args = append(args, "-map", fmt.Sprintf("%d:a:0", input))
		args = append(args, audioArgs(i, a)...)
	}

	if p.Format != "" {
		args = append(args, "-f", p.Format)
	}
	args = append(args, p.FormatArgs...)
	return append(args, "-y", p.Target)
}

func testPattern(in Input) string {
	w, h, fps := in.Width, in.Height, in.FPS
	if w <= 0 || h <= 0 {
		w, h = 1920, 1080
	}
	if fps <= 0 {
		fps = 30
	}
	return fmt.Sprintf("testsrc2=size=%dx%d:rate=%d", w, h, fps)
}

func videoArgs(idx int, v Video, in Input) []string {
	s := func(opt string) string { return fmt.Sprintf("-%s:v:%d", opt, idx) }
	args := []string{s("c"), v.Encoder}

	var filters []string
	if v.Width > 0 && v.Height > 0 && (v.Width != in.Width || v.Height != in.Height) {
		filters = append(filters, fmt.Sprintf("scale=%d:%d", v.Width, v.Height))
	}
	if v.FPS > 0 && v.FPS != in.FPS {
		filters = append(filters, "fps="+strconv.Itoa(v.FPS))
	}
	if v.PixFmt != "" {
		filters = append(filters, "format="+v.PixFmt)
	}
	if len(filters) > 0 {
		args = append(args, s("filter"), strings.Join(filters, ","))
	}

	if v.Profile != "" {
		args = append(args, s("profile"), v.Profile)
	}
	if v.Preset != "" {
		args = append(args, s("preset"), v.Preset)
	}

	switch v.RateControl {
	case "CBR":
		args = append(args, s("b"), kbps(v.Bitrate), s("minrate"), kbps(v.Bitrate), s("maxrate"), kbps(v.Bitrate))
		args = append(args, s("bufsize"), kbps(orInt(v.BufferSize, v.Bitrate)))
	case "VBR":
		args = append(args, s("b"), kbps(v.Bitrate))
		if v.MaxBitrate > 0 {
			args = append(args, s("maxrate"), kbps(v.MaxBitrate))
		}
		if v.BufferSize > 0 {
			args = append(args, s("bufsize"), kbps(v.BufferSize))
		}
	case "CRF":
		args = append(args, s("crf"), strconv.Itoa(v.CRF))
		if v.Encoder == "libaom-av1" {
			args = append(args, s("b"), "0")
		}
	case "ICQ":
		args = append(args, s("global_quality"), strconv.Itoa(v.ICQ))
	case "CQP":
		switch {
		case strings.Contains(v.Encoder, "nvenc"):
			args = append(args, s("rc"), "constqp", s("qp"), strconv.Itoa(v.QP))
		case strings.Contains(v.Encoder, "amf"):
			q := strconv.Itoa(v.QP)
			args = append(args, s("rc"), "cqp", s("qp_i"), q, s("qp_p"), q, s("qp_b"), q)
		case strings.Contains(v.Encoder, "videotoolbox"):
			args = append(args, s("q"), strconv.Itoa(v.QP))
		default:
			args = append(args, s("qp"), strconv.Itoa(v.QP))
		}
	}

	fps := orInt(v.FPS, in.FPS)
	if v.KeyintSec > 0 && fps > 0 {
		args = append(args, s("g"), strconv.Itoa(v.KeyintSec*fps))
	}
	if !isHardwareEncoder(v.Encoder) && strings.Contains(v.Encoder, "x264") {
		args = append(args, s("sc_threshold"), "0")
	}
	return args
}

func audioArgs(idx int, a Audio) []string {
	s := func(opt string) string { return fmt.Sprintf("-%s:a:%d", opt, idx) }
	args := []string{s("c"), a.Encoder}
	if a.Bitrate > 0 {
		args = append(args, s("b"), kbps(a.Bitrate))
	}
	args = append(args, s("ar"), "48000")
	if a.Name != "" {
		args = append(args, fmt.Sprintf("-metadata:s:a:%d", idx), "title="+a.Name)
	}
	return args
}

// ConcatArgs joins the files listed in listFile into target without
// re-encoding.
func ConcatArgs(binary, listFile, target string) []string {
	args := Base(binary)
	return append(args, "-f", "concat", "-safe", "0", "-i", listFile, "-map", "0", "-c", "copy", "-y", target)
}

func kbps(v int) string { return strconv.Itoa(v) + "k" }

func orInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

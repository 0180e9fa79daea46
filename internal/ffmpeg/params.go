package ffmpeg

// Input describes the capture source every output encodes from.
type Input struct {
	// VideoDevice is a V4L2 device path. Empty uses a test pattern.
	VideoDevice string
	InputFormat string // yuyv422, mjpeg, etc.
	Width       int
	Height      int
	FPS         int
	// AudioDevices maps mixer index to an ALSA device. Mixers without a
	// device get a test tone.
	AudioDevices []string
	Options      []OptionType
}

// TestSource reports whether the input is generated rather than captured.
func (in Input) TestSource() bool { return in.VideoDevice == "" }

// Video is one encoded video stream of an output.
type Video struct {
	Encoder     string // libx264, h264_nvenc, ...
	RateControl string // CBR, VBR, CRF, ICQ, CQP, lossless
	Bitrate     int    // kbps
	MaxBitrate  int    // kbps
	BufferSize  int    // kbps
	CRF         int
	ICQ         int
	QP          int
	Preset      string
	Profile     string
	KeyintSec   int
	// Width, Height and FPS scale the input when set and different.
	Width  int
	Height int
	FPS    int
	PixFmt string
}

// Audio is one encoded audio track of an output.
type Audio struct {
	Encoder string // aac, libopus, pcm_s16le
	Bitrate int    // kbps, 0 for PCM
	Mixer   int
	Name    string
}

// Params is everything needed to build one ffmpeg invocation.
type Params struct {
	Binary string
	Input  Input
	Video  []Video
	Audio  []Audio
	// Format is the muxer name passed to -f.
	Format string
	// FormatArgs go right before the target, e.g. -movflags or segment options.
	FormatArgs []string
	Target     string
	// Progress is an ffmpeg -progress URL, e.g. unix:///run/outputnode/stream.sock.
	Progress string
}

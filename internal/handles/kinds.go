package handles

import "fmt"

// MediaKind distinguishes video encoders from audio encoders.
type MediaKind int

// Media kinds.
const (
	MediaVideo MediaKind = iota
	MediaAudio
)

func (k MediaKind) String() string {
	switch k {
	case MediaVideo:
		return "video"
	case MediaAudio:
		return "audio"
	default:
		return fmt.Sprintf("media(%d)", int(k))
	}
}

// OutputKind identifies one of the four output pipelines.
type OutputKind int

// Output kinds. The order is stable and used for array indexing.
const (
	OutputStream OutputKind = iota
	OutputFile
	OutputReplay
	OutputVirtualCam
)

// OutputKinds lists every kind in index order.
var OutputKinds = []OutputKind{OutputStream, OutputFile, OutputReplay, OutputVirtualCam}

func (k OutputKind) String() string {
	switch k {
	case OutputStream:
		return "streaming"
	case OutputFile:
		return "recording"
	case OutputReplay:
		return "replay_buffer"
	case OutputVirtualCam:
		return "virtualcam"
	default:
		return fmt.Sprintf("output(%d)", int(k))
	}
}

// ParseOutputKind converts a kind name (as produced by String) back to an OutputKind.
func ParseOutputKind(s string) (OutputKind, error) {
	for _, k := range OutputKinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown output kind %q", s)
}

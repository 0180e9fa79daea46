package outputs

import "fmt"

// StopCode is the code carried by a primitive's stop signal.
type StopCode int

// Stop codes.
const (
	StopSuccess       StopCode = 0
	StopBadPath       StopCode = -1
	StopConnectFailed StopCode = -2
	StopInvalidStream StopCode = -3
	StopError         StopCode = -4
	StopDisconnected  StopCode = -5
	StopUnsupported   StopCode = -6
	StopNoSpace       StopCode = -7
	StopEncodeError   StopCode = -8
)

var stopMessages = map[StopCode]string{
	StopSuccess:       "",
	StopBadPath:       "Invalid path or connection URL. Check your settings to confirm that they are valid.",
	StopConnectFailed: "Failed to connect to the server.",
	StopInvalidStream: "Could not access the specified channel or stream key. Check that the stream key is correct.",
	StopError:         "An unexpected error occurred.",
	StopDisconnected:  "Disconnected from the server.",
	StopUnsupported:   "The output format is either unsupported or does not support more than one audio track.",
	StopNoSpace:       "There is not sufficient disk space to continue.",
	StopEncodeError:   "An encoder error occurred.",
}

// Message returns the display text for the code.
func (c StopCode) Message() string {
	if msg, ok := stopMessages[c]; ok {
		return msg
	}
	return stopMessages[StopError]
}

func (c StopCode) String() string {
	switch c {
	case StopSuccess:
		return "success"
	case StopBadPath:
		return "bad_path"
	case StopConnectFailed:
		return "connect_failed"
	case StopInvalidStream:
		return "invalid_stream"
	case StopError:
		return "error"
	case StopDisconnected:
		return "disconnected"
	case StopUnsupported:
		return "unsupported"
	case StopNoSpace:
		return "no_space"
	case StopEncodeError:
		return "encode_error"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// StopMessage combines the code text with the primitive's last error.
func StopMessage(code StopCode, lastError string) string {
	if code == StopSuccess {
		return ""
	}
	msg := code.Message()
	if lastError != "" {
		return msg + "\n\n" + lastError
	}
	return msg
}

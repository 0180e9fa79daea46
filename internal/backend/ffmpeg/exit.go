package ffmpeg

import (
	"strings"

	"github.com/smazurov/outputnode/internal/outputs"
)

var exitPatterns = []struct {
	code    outputs.StopCode
	matches []string
}{
	{outputs.StopNoSpace, []string{"No space left on device"}},
	{outputs.StopInvalidStream, []string{"401", "403", "Unauthorized", "Forbidden", "Server error: Invalid stream key"}},
	{outputs.StopBadPath, []string{"No such file or directory", "Permission denied", "Invalid argument"}},
	{outputs.StopConnectFailed, []string{"Connection refused", "Connection timed out", "Network is unreachable", "Failed to resolve", "Name or service not known"}},
	{outputs.StopDisconnected, []string{"Broken pipe", "Connection reset by peer", "End of file"}},
	{outputs.StopEncodeError, []string{"Error while opening encoder", "Could not open encoder", "Error initializing output stream"}},
	{outputs.StopUnsupported, []string{"not supported", "Unsupported codec", "Could not find tag for codec"}},
}

// classifyExit maps an unexpected ffmpeg exit to a stop code using the last
// error line the process printed.
func classifyExit(exitCode int, lastError string) outputs.StopCode {
	if exitCode == 0 && lastError == "" {
		return outputs.StopSuccess
	}
	for _, p := range exitPatterns {
		for _, m := range p.matches {
			if strings.Contains(lastError, m) {
				return p.code
			}
		}
	}
	return outputs.StopError
}

// retryable reports whether a stream that stopped with code may reconnect.
func retryable(code outputs.StopCode) bool {
	switch code {
	case outputs.StopDisconnected, outputs.StopConnectFailed, outputs.StopError:
		return true
	}
	return false
}

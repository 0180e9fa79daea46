package orchestrator

import (
	"sync/atomic"

	"github.com/smazurov/outputnode/internal/handles"
)

// ActiveFlags mirrors the machines' activity for readers off the loop.
// Reads are relaxed: a caller may briefly see a stale value.
type ActiveFlags struct {
	kinds [4]atomic.Bool
	delay atomic.Bool
}

// Active reports whether kind is anywhere but idle.
func (f *ActiveFlags) Active(kind handles.OutputKind) bool {
	if int(kind) < 0 || int(kind) >= len(f.kinds) {
		return false
	}
	return f.kinds[kind].Load()
}

// Any reports whether any output is active.
func (f *ActiveFlags) Any() bool {
	for i := range f.kinds {
		if f.kinds[i].Load() {
			return true
		}
	}
	return false
}

// Delay reports whether the stream is in a delay countdown.
func (f *ActiveFlags) Delay() bool {
	return f.delay.Load()
}

// Snapshot returns the flags as a plain struct.
func (f *ActiveFlags) Snapshot() FlagSnapshot {
	return FlagSnapshot{
		Streaming:    f.Active(handles.OutputStream),
		Recording:    f.Active(handles.OutputFile),
		ReplayBuffer: f.Active(handles.OutputReplay),
		VirtualCam:   f.Active(handles.OutputVirtualCam),
		Delay:        f.Delay(),
	}
}

func (f *ActiveFlags) set(kind handles.OutputKind, active bool) {
	f.kinds[kind].Store(active)
}

func (f *ActiveFlags) setDelay(active bool) {
	f.delay.Store(active)
}

// FlagSnapshot is a point-in-time copy of ActiveFlags.
type FlagSnapshot struct {
	Streaming    bool `json:"streaming"`
	Recording    bool `json:"recording"`
	ReplayBuffer bool `json:"replay_buffer"`
	VirtualCam   bool `json:"virtualcam"`
	Delay        bool `json:"delay"`
}

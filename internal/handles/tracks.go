package handles

import "math/bits"

// TrackSlot pairs an assigned track index with the mixer bit it came from.
type TrackSlot struct {
	Index int
	Mixer int
}

// AssignTracks maps the set bits of a mixer selection mask onto contiguous
// track indices starting at 0. Bits at or above MaxTracks are ignored.
func AssignTracks(mask uint32) []TrackSlot {
	mask &= 1<<MaxTracks - 1
	slots := make([]TrackSlot, 0, bits.OnesCount32(mask))
	for mixer := range MaxTracks {
		if mask&(1<<mixer) == 0 {
			continue
		}
		slots = append(slots, TrackSlot{Index: len(slots), Mixer: mixer})
	}
	return slots
}

// MaskFromMixers builds a selection mask from mixer indices.
func MaskFromMixers(mixers ...int) uint32 {
	var mask uint32
	for _, m := range mixers {
		if m >= 0 && m < MaxTracks {
			mask |= 1 << m
		}
	}
	return mask
}

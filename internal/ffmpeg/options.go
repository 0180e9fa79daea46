package ffmpeg

import (
	"fmt"
	"slices"
	"strings"
)

// OptionType represents a strongly typed FFmpeg input option.
type OptionType string

// FFmpeg option constants
const (
	OptionGeneratePTS        OptionType = "genpts"
	OptionIgnoreDTS          OptionType = "igndts"
	OptionIgnoreErrors       OptionType = "ignore_err"
	OptionWallclockTimestamp OptionType = "wallclock_ts"
	OptionAvoidNegativeTS    OptionType = "avoid_negative_ts"
	OptionThreadQueue1024    OptionType = "thread_queue_1024"
	OptionThreadQueue4096    OptionType = "thread_queue_4096"
	OptionLowLatency         OptionType = "low_latency"
	OptionCopyTimestamps     OptionType = "copyts"
)

// ExclusiveGroup represents a group of mutually exclusive options
type ExclusiveGroup string

const (
	GroupThreadQueue ExclusiveGroup = "thread_queue"
)

// Option describes an input option.
type Option struct {
	Key            OptionType     `json:"key"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	AppDefault     bool           `json:"app_default"`
	ExclusiveGroup ExclusiveGroup `json:"exclusive_group,omitempty"`
	ConflictsWith  []OptionType   `json:"conflicts_with,omitempty"`
}

// AllOptions lists every supported input option.
var AllOptions = []Option{
	{Key: OptionGeneratePTS, Name: "Generate PTS", Description: "Generate presentation timestamps", ConflictsWith: []OptionType{OptionWallclockTimestamp, OptionCopyTimestamps}},
	{Key: OptionIgnoreDTS, Name: "Ignore DTS", Description: "Ignore decode timestamps of a corrupted source"},
	{Key: OptionIgnoreErrors, Name: "Ignore Errors", Description: "Continue despite source errors"},
	{Key: OptionWallclockTimestamp, Name: "Wallclock Timestamps", Description: "Use the wallclock as timestamps", ConflictsWith: []OptionType{OptionGeneratePTS}},
	{Key: OptionAvoidNegativeTS, Name: "Avoid Negative Timestamps", Description: "Shift timestamps to start at zero"},
	{Key: OptionThreadQueue1024, Name: "Large Thread Queue", Description: "1024 packet input queue", AppDefault: true, ExclusiveGroup: GroupThreadQueue},
	{Key: OptionThreadQueue4096, Name: "Extra Large Thread Queue", Description: "4096 packet input queue", ExclusiveGroup: GroupThreadQueue},
	{Key: OptionLowLatency, Name: "Low Latency Mode", Description: "Flush packets as soon as they are muxed"},
	{Key: OptionCopyTimestamps, Name: "Copy Timestamps", Description: "Keep source timestamps, starting at zero", AppDefault: true, ConflictsWith: []OptionType{OptionGeneratePTS, OptionWallclockTimestamp}},
}

// GetOptionByKey returns an option by its key
func GetOptionByKey(key OptionType) *Option {
	for i := range AllOptions {
		if AllOptions[i].Key == key {
			return &AllOptions[i]
		}
	}
	return nil
}

// ValidateOptions checks for unknown keys, conflicts and exclusive group
// violations.
func ValidateOptions(selected []OptionType) error {
	groups := make(map[ExclusiveGroup][]string)
	for _, key := range selected {
		option := GetOptionByKey(key)
		if option == nil {
			return fmt.Errorf("unknown ffmpeg option %q", key)
		}
		if option.ExclusiveGroup != "" {
			groups[option.ExclusiveGroup] = append(groups[option.ExclusiveGroup], option.Name)
		}
		for _, conflict := range option.ConflictsWith {
			if slices.Contains(selected, conflict) {
				return fmt.Errorf("option '%s' conflicts with '%s'", option.Name, GetOptionByKey(conflict).Name)
			}
		}
	}
	for group, names := range groups {
		if len(names) > 1 {
			return fmt.Errorf("multiple options from exclusive group '%s' selected: %s", group, strings.Join(names, ", "))
		}
	}
	return nil
}

// DefaultOptions returns the options enabled by default.
func DefaultOptions() []OptionType {
	var defaults []OptionType
	for _, option := range AllOptions {
		if option.AppDefault {
			defaults = append(defaults, option.Key)
		}
	}
	return defaults
}

// InputArgs renders the options that go before -i.
func InputArgs(options []OptionType) []string {
	var args []string
	var fflags []string

	for _, option := range options {
		switch option {
		case OptionGeneratePTS:
			fflags = append(fflags, "+genpts")
		case OptionIgnoreDTS:
			fflags = append(fflags, "+igndts")
		case OptionIgnoreErrors:
			args = append(args, "-err_detect", "ignore_err")
		case OptionWallclockTimestamp:
			args = append(args, "-use_wallclock_as_timestamps", "1")
		case OptionAvoidNegativeTS:
			args = append(args, "-avoid_negative_ts", "make_zero")
		case OptionThreadQueue1024:
			args = append(args, "-thread_queue_size", "1024")
		case OptionThreadQueue4096:
			args = append(args, "-thread_queue_size", "4096")
		case OptionLowLatency:
			fflags = append(fflags, "+flush_packets")
			args = append(args, "-flags", "+low_delay")
		}
	}

	if len(fflags) > 0 {
		args = append(args, "-fflags", strings.Join(fflags, ""))
	}
	return args
}

// isHardwareEncoder checks if the given codec name represents a hardware encoder
func isHardwareEncoder(codec string) bool {
	for _, hw := range []string{"nvenc", "amf", "vaapi", "qsv", "videotoolbox", "rkmpp", "v4l2m2m"} {
		if strings.Contains(codec, hw) {
			return true
		}
	}
	return false
}

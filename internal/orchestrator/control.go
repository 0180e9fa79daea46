package orchestrator

import (
	"context"
	"fmt"

	"github.com/smazurov/outputnode/internal/events"
	"github.com/smazurov/outputnode/internal/handles"
	"github.com/smazurov/outputnode/internal/outputs"
	"github.com/smazurov/outputnode/internal/profile"
)

// Start starts the output of kind. Streaming waits for the multitrack
// negotiation, bounded by ctx.
func (o *Orchestrator) Start(ctx context.Context, kind handles.OutputKind) bool {
	switch kind {
	case handles.OutputStream:
		return o.StartStreaming(ctx, nil)
	case handles.OutputFile:
		return o.StartRecording()
	case handles.OutputReplay:
		return o.StartReplayBuffer()
	default:
		return o.StartVirtualCam()
	}
}

// Stop stops the output of kind. The virtual camera always stops at once.
func (o *Orchestrator) Stop(kind handles.OutputKind, force bool) {
	switch kind {
	case handles.OutputStream:
		o.StopStreaming(force)
	case handles.OutputFile:
		o.StopRecording(force)
	case handles.OutputReplay:
		o.StopReplayBuffer(force)
	default:
		o.StopVirtualCam()
	}
}

// PauseRecording pauses or resumes the active recording.
func (o *Orchestrator) PauseRecording(paused bool) error {
	return o.onMachine(handles.OutputFile, func(m *outputs.Machine) error { return m.Pause(paused) })
}

// SplitRecording continues the active recording in a new file. The new path
// is reported by LastRecordingPath once the output confirms it.
func (o *Orchestrator) SplitRecording() error {
	return o.onMachine(handles.OutputFile, (*outputs.Machine).Split)
}

// SaveReplayBuffer writes the replay window to disk. The path is reported
// by LastReplayPath once the save completes.
func (o *Orchestrator) SaveReplayBuffer() error {
	return o.onMachine(handles.OutputReplay, (*outputs.Machine).SaveReplay)
}

func (o *Orchestrator) onMachine(kind handles.OutputKind, fn func(m *outputs.Machine) error) error {
	var err error
	if runErr := o.run(func() { err = fn(o.machines[kind]) }); runErr != nil {
		return runErr
	}
	return err
}

// UpdateStreamingBitrate changes the streaming video bitrate in kbps. It
// fails while the encoder is shared with another active output.
func (o *Orchestrator) UpdateStreamingBitrate(kbps int) error {
	if kbps <= 0 {
		return fmt.Errorf("invalid bitrate %d", kbps)
	}
	var err error
	runErr := o.run(func() {
		enc := o.streamVideo
		if enc == nil || enc.Released() {
			err = outputs.NewError(outputs.ErrCodeNotActive, "no streaming encoder", nil)
			return
		}
		if err = enc.Update(handles.Settings{"bitrate": kbps}); err != nil {
			return
		}
		if o.streamPreset != nil {
			o.streamPreset.Video["bitrate"] = kbps
		}
		o.logger.Info("Streaming bitrate updated", "kbps", kbps)
	})
	if runErr != nil {
		return runErr
	}
	return err
}

// Profile returns a copy of the profile in effect.
func (o *Orchestrator) Profile() (*profile.Profile, error) {
	var p *profile.Profile
	if err := o.run(func() { p = o.profile.Clone() }); err != nil {
		return nil, err
	}
	return p, nil
}

// ApplyProfile replaces the profile. While any output is active the change
// is held back and applied once every output has stopped; deferred reports
// that case. A later call replaces a held-back profile.
func (o *Orchestrator) ApplyProfile(p *profile.Profile) (deferred bool, err error) {
	if err := p.Validate(); err != nil {
		return false, fmt.Errorf("invalid profile: %w", err)
	}
	p = p.Clone()

	runErr := o.run(func() {
		if o.busy() {
			o.pending = p
			deferred = true
			o.logger.Info("Profile change deferred until outputs stop")
			o.publish(events.ProfileAppliedEvent{Mode: string(p.Mode), Deferred: true, Timestamp: timestamp()})
			return
		}
		o.pending = nil
		err = o.apply(p)
	})
	if runErr != nil {
		return false, runErr
	}
	return deferred, err
}

func (o *Orchestrator) busy() bool {
	if o.negotiating {
		return true
	}
	for _, m := range o.machines {
		if m.Active() {
			return true
		}
	}
	return false
}

// apply runs on the loop with every output idle.
func (o *Orchestrator) apply(p *profile.Profile) error {
	plan, err := o.check(p)
	if err != nil {
		return err
	}
	o.releasePool()
	o.profile, o.plan = p, plan
	o.service = nil
	o.logger.Info("Profile applied", "mode", string(plan.Mode()), "encoder", p.StreamEncoder())
	o.publish(events.ProfileAppliedEvent{Mode: string(plan.Mode()), Timestamp: timestamp()})
	return nil
}

func (o *Orchestrator) applyPending() {
	if o.pending == nil || o.busy() {
		return
	}
	p := o.pending
	o.pending = nil
	if err := o.apply(p); err != nil {
		o.setLastError(fmt.Sprintf("Profile not applied: %v", err))
		o.logger.Error("Deferred profile rejected", "error", err)
	}
}

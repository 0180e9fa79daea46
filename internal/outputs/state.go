package outputs

// State is the lifecycle state of one output kind.
type State string

// Output states.
const (
	StateIdle            State = "idle"
	StateStarting        State = "starting"
	StateDelayedStarting State = "delayed_starting"
	StateActive          State = "active"
	StateStopping        State = "stopping"
	StateDelayedStopping State = "delayed_stopping"
)

// Active reports whether the state is anything but idle.
func (s State) Active() bool {
	return s != StateIdle && s != ""
}

// Delayed reports whether the state is a delay countdown.
func (s State) Delayed() bool {
	return s == StateDelayedStarting || s == StateDelayedStopping
}

// Stopping reports whether a stop has been requested and not yet completed.
func (s State) Stopping() bool {
	return s == StateStopping || s == StateDelayedStopping
}

package outputs

import (
	"time"

	"github.com/smazurov/outputnode/internal/handles"
)

// Prepared is what a Strategy hands the machine for one start attempt.
type Prepared struct {
	Output *handles.Output
	// StopDelay is the configured exit delay. Zero stops without a countdown.
	StopDelay time.Duration
	// Path is the file the output writes, if any.
	Path string
}

// Strategy holds the per-kind part of starting and stopping an output.
// The machine owns the state transitions; the strategy owns encoders,
// settings and the output handle.
type Strategy interface {
	Kind() handles.OutputKind
	// Prepare makes sure encoders exist and are bound, builds output
	// settings and returns an output ready to start. An error leaves the
	// machine idle.
	Prepare() (*Prepared, error)
	// Teardown runs after the output stopped or failed to start.
	Teardown(p *Prepared)
}

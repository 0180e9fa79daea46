package handles

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/smazurov/outputnode/internal/logging"
)

var (
	// ErrUnsupported is returned when a factory cannot create the requested type.
	ErrUnsupported = errors.New("unsupported type")
	// ErrTypeUnavailable is returned when a required type is missing from the installation.
	ErrTypeUnavailable = errors.New("required type unavailable")
)

// Table creates encoder and output handles and tracks how many are alive.
// Handles are not safe for concurrent use; callers serialize access on the
// owner loop. The live counts may be read from any goroutine.
type Table struct {
	encoders EncoderFactory
	outputs  OutputFactory
	logger   *slog.Logger

	liveEncoders atomic.Int64
	liveOutputs  atomic.Int64
}

// NewTable creates a table backed by the given factories.
func NewTable(encoders EncoderFactory, outputs OutputFactory) *Table {
	return &Table{
		encoders: encoders,
		outputs:  outputs,
		logger:   logging.GetLogger("handles"),
	}
}

// RequireEncoderType fails with ErrTypeUnavailable when typeID cannot be created.
func (t *Table) RequireEncoderType(typeID string) error {
	if !t.encoders.EncoderTypeAvailable(typeID) {
		return fmt.Errorf("encoder %q: %w", typeID, ErrTypeUnavailable)
	}
	return nil
}

// RequireOutputType fails with ErrTypeUnavailable when typeID cannot be created.
func (t *Table) RequireOutputType(typeID string) error {
	if !t.outputs.OutputTypeAvailable(typeID) {
		return fmt.Errorf("output %q: %w", typeID, ErrTypeUnavailable)
	}
	return nil
}

// EncoderTypeAvailable reports whether the encoder factory supports typeID.
func (t *Table) EncoderTypeAvailable(typeID string) bool {
	return t.encoders.EncoderTypeAvailable(typeID)
}

// OutputTypeAvailable reports whether the output factory supports typeID.
func (t *Table) OutputTypeAvailable(typeID string) bool {
	return t.outputs.OutputTypeAvailable(typeID)
}

// CreateEncoder creates an encoder holding one reference.
func (t *Table) CreateEncoder(kind MediaKind, typeID, name string, settings Settings) (*Encoder, error) {
	prim, ok := t.encoders.CreateEncoder(kind, typeID, name, settings.Clone())
	if !ok || prim == nil {
		return nil, fmt.Errorf("create %s encoder %q (%s): %w", kind, name, typeID, ErrUnsupported)
	}
	t.liveEncoders.Add(1)
	t.logger.Debug("Encoder created", "name", name, "type", typeID, "kind", kind.String())
	return &Encoder{
		table:    t,
		kind:     kind,
		typeID:   typeID,
		name:     name,
		settings: settings.Clone(),
		prim:     prim,
		refs:     1,
	}, nil
}

// CreateOutput creates an output handle.
func (t *Table) CreateOutput(kind OutputKind, typeID, name string, hotkeyData Settings) (*Output, error) {
	prim, ok := t.outputs.CreateOutput(typeID, name, hotkeyData)
	if !ok || prim == nil {
		return nil, fmt.Errorf("create %s output %q (%s): %w", kind, name, typeID, ErrUnsupported)
	}
	t.liveOutputs.Add(1)
	t.logger.Debug("Output created", "name", name, "type", typeID, "kind", kind.String())
	return &Output{
		table:    t,
		kind:     kind,
		typeID:   typeID,
		name:     name,
		prim:     prim,
		settings: Settings{},
	}, nil
}

// LiveEncoders returns the number of encoders not yet destroyed.
func (t *Table) LiveEncoders() int { return int(t.liveEncoders.Load()) }

// LiveOutputs returns the number of outputs not yet destroyed.
func (t *Table) LiveOutputs() int { return int(t.liveOutputs.Load()) }

func (t *Table) destroyEncoder(e *Encoder) {
	t.encoders.DestroyEncoder(e.prim)
	t.liveEncoders.Add(-1)
	e.consumers = nil
	t.logger.Debug("Encoder destroyed", "name", e.name, "type", e.typeID)
}

func (t *Table) destroyOutput(o *Output) {
	t.outputs.DestroyOutput(o.prim)
	t.liveOutputs.Add(-1)
	t.logger.Debug("Output destroyed", "name", o.name, "type", o.typeID)
}

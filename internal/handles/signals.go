package handles

import (
	"sort"
	"sync"
)

// Signal names an event raised by an output primitive.
type Signal string

// Output signals. Primitives raise them from their own goroutines.
const (
	SignalStart            Signal = "start"
	SignalStop             Signal = "stop"
	SignalStarting         Signal = "starting"
	SignalStopping         Signal = "stopping"
	SignalReconnect        Signal = "reconnect"
	SignalReconnectSuccess Signal = "reconnect_success"
	SignalSaved            Signal = "saved"
	SignalFileChanged      Signal = "file_changed"
	SignalPaused           Signal = "paused"
	SignalUnpaused         Signal = "unpaused"
)

// SignalData is the small payload carried by every signal.
type SignalData struct {
	Code       int
	LastError  string
	TimeoutSec int
	Path       string
}

// SignalHandler keeps an explicit listener list per signal.
// Emit calls listeners synchronously on the emitting goroutine, in
// registration order.
type SignalHandler struct {
	mu        sync.Mutex
	nextID    int
	listeners map[Signal]map[int]func(SignalData)
}

// NewSignalHandler creates an empty handler.
func NewSignalHandler() *SignalHandler {
	return &SignalHandler{listeners: make(map[Signal]map[int]func(SignalData))}
}

// Connect registers fn for sig and returns a function that disconnects it.
func (h *SignalHandler) Connect(sig Signal, fn func(SignalData)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	if h.listeners[sig] == nil {
		h.listeners[sig] = make(map[int]func(SignalData))
	}
	h.listeners[sig][id] = fn

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.listeners[sig], id)
	}
}

// Emit delivers data to every listener of sig.
func (h *SignalHandler) Emit(sig Signal, data SignalData) {
	h.mu.Lock()
	ids := make([]int, 0, len(h.listeners[sig]))
	for id := range h.listeners[sig] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(SignalData), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, h.listeners[sig][id])
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(data)
	}
}

// Count returns the number of listeners registered for sig.
func (h *SignalHandler) Count(sig Signal) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners[sig])
}

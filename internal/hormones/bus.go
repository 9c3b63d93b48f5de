// Package hormones implements the chemical messaging system of the organism.
// Organs never call each other directly: they emit named hormones on the bus
// and subscribe to the ones they metabolize.
package hormones

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"w0rd/internal/logging"
)

// MaxCascadeDepth caps hormone chain reactions. A hormone emitted in
// response to another carries depth parent+1; past this depth it is dropped.
const MaxCascadeDepth = 8

// historyCap bounds the in-memory hormone history ring.
const historyCap = 500

// Hormone is a single chemical signal.
type Hormone struct {
	ID           string
	Name         string
	Emitter      string
	Payload      map[string]any
	CascadeDepth int
	Timestamp    time.Time
}

// Handler metabolizes a hormone. Errors are logged by the bus, never
// propagated to the emitter.
type Handler func(ctx context.Context, h Hormone) error

// Recorder persists accepted hormones. Optional.
type Recorder interface {
	RecordHormone(ctx context.Context, h Hormone) error
}

// Bus is the hormone pub/sub fabric. Safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	subs     map[string][]Handler
	history  []Hormone
	slow     []Hormone
	recorder Recorder
	log      *logging.Logger
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string][]Handler),
		log:  logging.Get(logging.CategoryBus),
	}
}

// SetRecorder installs a persistence hook for accepted hormones.
func (b *Bus) SetRecorder(r Recorder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recorder = r
}

// Subscribe registers a handler for a hormone name.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[name] = append(b.subs[name], h)
}

// Signal emits a root hormone (cascade depth 0).
func (b *Bus) Signal(ctx context.Context, name string, payload map[string]any, emitter string) {
	b.emit(ctx, newHormone(name, payload, emitter, 0))
}

// SignalFrom emits a hormone caused by a parent signal. The child carries
// the parent's cascade depth plus one.
func (b *Bus) SignalFrom(ctx context.Context, name string, payload map[string]any, emitter string, parent Hormone) {
	b.emit(ctx, newHormone(name, payload, emitter, parent.CascadeDepth+1))
}

// SignalSlow queues a hormone for the next FlushSlowRelease. Used for
// signals that should land after the current activity settles, like
// emergency_winter.
func (b *Bus) SignalSlow(name string, payload map[string]any, emitter string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.slow = append(b.slow, newHormone(name, payload, emitter, 0))
}

// FlushSlowRelease drains the slow-release queue in FIFO order.
func (b *Bus) FlushSlowRelease(ctx context.Context) {
	b.mu.Lock()
	queued := b.slow
	b.slow = nil
	b.mu.Unlock()

	for _, h := range queued {
		b.emit(ctx, h)
	}
}

// Recent returns the n most recent hormones, newest first.
func (b *Bus) Recent(n int) []Hormone {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n > len(b.history) {
		n = len(b.history)
	}
	out := make([]Hormone, 0, n)
	for i := len(b.history) - 1; i >= len(b.history)-n; i-- {
		out = append(out, b.history[i])
	}
	return out
}

// emit appends to history, enforces the cascade cutoff, persists and
// dispatches to all subscribers in parallel, gathering before return.
func (b *Bus) emit(ctx context.Context, h Hormone) {
	b.mu.Lock()
	// History records every emission attempt, including cascade-dropped
	// ones, so the blood test shows what the organism tried to say.
	b.history = append(b.history, h)
	if len(b.history) > historyCap {
		b.history = b.history[len(b.history)-historyCap:]
	}
	if h.CascadeDepth > MaxCascadeDepth {
		b.mu.Unlock()
		b.log.Warn("hormone %s dropped at cascade depth %d", h.Name, h.CascadeDepth)
		return
	}
	handlers := make([]Handler, len(b.subs[h.Name]))
	copy(handlers, b.subs[h.Name])
	recorder := b.recorder
	b.mu.Unlock()

	if recorder != nil {
		if err := recorder.RecordHormone(ctx, h); err != nil {
			b.log.Error("failed to persist hormone %s: %v", h.Name, err)
		}
	}

	if len(handlers) == 0 {
		b.log.Debug("hormone %s (depth %d) had no listeners", h.Name, h.CascadeDepth)
		return
	}

	var g errgroup.Group
	for _, handler := range handlers {
		handler := handler
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					b.log.Error("handler panic on %s: %v", h.Name, r)
				}
			}()
			if herr := handler(ctx, h); herr != nil {
				b.log.Error("handler error on %s: %v", h.Name, herr)
			}
			return nil
		})
	}
	_ = g.Wait()

	b.log.Debug("hormone %s dispatched to %d handlers (depth %d)", h.Name, len(handlers), h.CascadeDepth)
}

func newHormone(name string, payload map[string]any, emitter string, depth int) Hormone {
	if payload == nil {
		payload = map[string]any{}
	}
	return Hormone{
		ID:           NewID(),
		Name:         name,
		Emitter:      emitter,
		Payload:      payload,
		CascadeDepth: depth,
		Timestamp:    time.Now(),
	}
}

// NewID returns a 12-hex-char hormone identifier.
func NewID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

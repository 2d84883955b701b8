package shortcut

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PollInterval is how often Watch samples the pressed keys
const PollInterval = 100 * time.Millisecond

// Action runs when its combination is pressed
type Action func()

// KeySource reports the keys currently held down. OS key capture lives
// behind this interface.
type KeySource interface {
	Pressed() []Key
}

// KeySourceFunc adapts a function to KeySource
type KeySourceFunc func() []Key

func (f KeySourceFunc) Pressed() []Key {
	return f()
}

// Registry maps canonical key combinations to actions
type Registry struct {
	bindings map[Combo][]Action
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Registry{
		bindings: make(map[Combo][]Action),
		logger:   logger,
	}
}

// Register binds action to combo. A combo may carry several actions; they
// run in registration order.
func (r *Registry) Register(combo Combo, action Action) error {
	if combo.IsEmpty() {
		return ErrEmptyCombo
	}
	if action == nil {
		return ErrNilAction
	}

	r.mu.Lock()
	r.bindings[combo] = append(r.bindings[combo], action)
	r.mu.Unlock()

	r.logger.Debug("Shortcut registered", zap.Stringer("combo", combo))
	return nil
}

// Registered reports whether any action is bound to combo
func (r *Registry) Registered(combo Combo) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.bindings[combo]) > 0
}

// Dispatch runs every action bound to exactly pressed and returns how many ran
func (r *Registry) Dispatch(pressed Combo) int {
	r.mu.RLock()
	actions := append([]Action(nil), r.bindings[pressed]...)
	r.mu.RUnlock()

	if len(actions) > 0 {
		r.logger.Info("Shortcut pressed", zap.Stringer("combo", pressed))
	}
	for _, a := range actions {
		a()
	}
	return len(actions)
}

// Watch samples source every interval and dispatches whenever the pressed
// set changes, so holding a combination fires it once. It returns when ctx
// is cancelled.
func (r *Registry) Watch(ctx context.Context, source KeySource, interval time.Duration) error {
	if interval <= 0 {
		interval = PollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := NewCombo()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		now := NewCombo(source.Pressed()...)
		if now.Equal(last) {
			continue
		}
		last = now
		r.Dispatch(now)
	}
}

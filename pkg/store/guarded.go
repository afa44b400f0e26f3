package store

import (
	"context"
	"errors"

	"github.com/nimburion/docstore/pkg/resilience"
)

// Guarded routes every call to a SnapshotStore through a circuit breaker.
// Missing snapshots and invalid names do not count as backend failures.
// Close always reaches the wrapped store.
type Guarded struct {
	SnapshotStore
	breaker *resilience.CircuitBreaker
}

// IsBackendFailure reports whether err says something about backend health.
func IsBackendFailure(err error) bool {
	return err != nil &&
		!errors.Is(err, ErrSnapshotNotFound) &&
		!errors.Is(err, ErrInvalidName) &&
		!errors.Is(err, context.Canceled)
}

// Guard wraps s with breaker. A nil breaker returns s unchanged.
func Guard(s SnapshotStore, breaker *resilience.CircuitBreaker) SnapshotStore {
	if breaker == nil {
		return s
	}
	return &Guarded{SnapshotStore: s, breaker: breaker}
}

// Breaker returns the breaker guarding the store.
func (g *Guarded) Breaker() *resilience.CircuitBreaker { return g.breaker }

// Unwrap returns the guarded store.
func (g *Guarded) Unwrap() SnapshotStore { return g.SnapshotStore }

func (g *Guarded) HealthCheck(ctx context.Context) error {
	return g.breaker.Execute(func() error { return g.SnapshotStore.HealthCheck(ctx) })
}

func (g *Guarded) PutSnapshot(ctx context.Context, name string, data []byte) error {
	return g.breaker.Execute(func() error { return g.SnapshotStore.PutSnapshot(ctx, name, data) })
}

func (g *Guarded) GetSnapshot(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := g.breaker.Execute(func() error {
		var err error
		data, err = g.SnapshotStore.GetSnapshot(ctx, name)
		return err
	})
	return data, err
}

func (g *Guarded) DeleteSnapshot(ctx context.Context, name string) error {
	return g.breaker.Execute(func() error { return g.SnapshotStore.DeleteSnapshot(ctx, name) })
}

func (g *Guarded) ListSnapshots(ctx context.Context) ([]string, error) {
	var names []string
	err := g.breaker.Execute(func() error {
		var err error
		names, err = g.SnapshotStore.ListSnapshots(ctx)
		return err
	})
	return names, err
}

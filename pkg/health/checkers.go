package health

import (
	"context"
	"time"

	"github.com/nimburion/docstore/pkg/resilience"
)

// Checkable is implemented by snapshot stores and other adapters.
type Checkable interface {
	HealthCheck(ctx context.Context) error
}

// AdapterChecker reports an adapter healthy when its HealthCheck succeeds
// within the timeout.
type AdapterChecker struct {
	name    string
	adapter Checkable
	timeout time.Duration
}

// NewAdapterChecker creates a checker for adapter. A zero timeout means 5s.
func NewAdapterChecker(name string, adapter Checkable, timeout time.Duration) *AdapterChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AdapterChecker{name: name, adapter: adapter, timeout: timeout}
}

func (c *AdapterChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res := CheckResult{Name: c.name, Status: StatusHealthy, Message: "OK"}
	if err := c.adapter.HealthCheck(checkCtx); err != nil {
		res.Status = StatusUnhealthy
		res.Message = ""
		res.Error = err.Error()
	}
	res.Duration = time.Since(start)
	res.Timestamp = time.Now()
	return res
}

func (c *AdapterChecker) Name() string { return c.name }

// BreakerChecker maps a circuit breaker state to a status: closed is
// healthy, half-open degraded and open unhealthy.
type BreakerChecker struct {
	name    string
	breaker *resilience.CircuitBreaker
}

func NewBreakerChecker(name string, breaker *resilience.CircuitBreaker) *BreakerChecker {
	return &BreakerChecker{name: name, breaker: breaker}
}

func (c *BreakerChecker) Check(context.Context) CheckResult {
	state := c.breaker.GetState()
	res := CheckResult{
		Name:      c.name,
		Timestamp: time.Now(),
		Message:   state.String(),
		Metadata:  map[string]any{"failures": c.breaker.GetFailures()},
	}
	switch state {
	case resilience.StateClosed:
		res.Status = StatusHealthy
	case resilience.StateHalfOpen:
		res.Status = StatusDegraded
	default:
		res.Status = StatusUnhealthy
	}
	return res
}

func (c *BreakerChecker) Name() string { return c.name }

// Pool is the part of a worker pool a PoolChecker inspects.
type Pool interface {
	Running() int
	Cap() int
	IsClosed() bool
}

// PoolChecker is unhealthy for a closed pool and degraded when every worker
// is busy.
type PoolChecker struct {
	name string
	pool Pool
}

func NewPoolChecker(name string, pool Pool) *PoolChecker {
	return &PoolChecker{name: name, pool: pool}
}

func (c *PoolChecker) Check(context.Context) CheckResult {
	running, capacity := c.pool.Running(), c.pool.Cap()
	res := CheckResult{
		Name:      c.name,
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Metadata:  map[string]any{"running": running, "capacity": capacity},
	}
	switch {
	case c.pool.IsClosed():
		res.Status = StatusUnhealthy
		res.Error = "pool is closed"
	case capacity > 0 && running >= capacity:
		res.Status = StatusDegraded
		res.Message = "all workers busy"
	}
	return res
}

func (c *PoolChecker) Name() string { return c.name }

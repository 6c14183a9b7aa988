package circuitbreaker

import (
	"context"

	"go.uber.org/zap"
)

// CallWrapper guards an arbitrary remote call, such as a generative model
// request, with a circuit breaker and records metrics consistently.
type CallWrapper struct {
	cb      *CircuitBreaker
	name    string
	service string
}

// NewCallWrapper creates a call wrapper registered under name/service
func NewCallWrapper(name, service string, settings Settings, fallback Settings, isFailure func(error) bool, logger *zap.Logger) *CallWrapper {
	config := settings.ToConfig(fallback)
	config.IsFailure = isFailure
	cb := NewCircuitBreaker(name, config, logger)
	GlobalMetricsCollector.RegisterCircuitBreaker(name, service, cb)
	return &CallWrapper{cb: cb, name: name, service: service}
}

// Do runs fn through the breaker
func (cw *CallWrapper) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	err := cw.cb.Execute(ctx, func() error { return fn(ctx) })
	success := err == nil || !cw.cb.isFailure(err)
	GlobalMetricsCollector.RecordRequest(cw.name, cw.service, cw.cb.State(), success)
	return err
}

// State returns the breaker state
func (cw *CallWrapper) State() State {
	return cw.cb.State()
}

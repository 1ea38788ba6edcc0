package ai

import (
	"errors"

	"jobcoach/internal/config"
	appErrors "jobcoach/internal/errors"

	"github.com/sony/gobreaker/v2"
	"google.golang.org/genai"
)

// Breaker guards one kind of Gemini call. A nil *Breaker is valid and
// runs calls unguarded, which is what a disabled breaker config yields.
type Breaker[T any] struct {
	cb *gobreaker.CircuitBreaker[T]
}

// NewGenerateBreaker returns the breaker for content generation of one
// operation (cheatsheet, outline, answer). It trips once MinRequests calls
// were seen in the interval and the failure ratio reaches FailureThreshold.
func NewGenerateBreaker(operationType string, cfg *config.OperationAIConfig, logger *appErrors.Logger) *Breaker[*genai.GenerateContentResponse] {
	cbCfg := cfg.CircuitBreaker
	return newBreaker[*genai.GenerateContentResponse]("AI-"+operationType, operationType, cbCfg, logger,
		func(counts gobreaker.Counts) bool {
			return counts.Requests >= cbCfg.MinRequests && failureRatio(counts) >= cbCfg.FailureThreshold
		})
}

// NewModelBreaker returns the breaker for model lookups. Readiness checks
// are not on the session path, so it only trips after five requests with
// at least 80% failures regardless of the operation's thresholds.
func NewModelBreaker(operationType string, cfg *config.OperationAIConfig, logger *appErrors.Logger) *Breaker[*genai.Model] {
	return newBreaker[*genai.Model]("AI-Model-"+operationType, operationType, cfg.CircuitBreaker, logger,
		func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && failureRatio(counts) >= 0.8
		})
}

func newBreaker[T any](name, operationType string, cbCfg config.CircuitBreakerConfig, logger *appErrors.Logger, trip func(gobreaker.Counts) bool) *Breaker[T] {
	if !cbCfg.Enabled {
		return nil
	}
	if logger == nil {
		logger = appErrors.Discard()
	}

	return &Breaker[T]{cb: gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: cbCfg.MaxRequests,
		Interval:    cbCfg.Interval,
		Timeout:     cbCfg.Timeout,
		ReadyToTrip: trip,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log := logger.Info
			if to == gobreaker.StateOpen {
				log = logger.Warn
			}
			log("Circuit breaker state changed",
				"name", name,
				"operation_type", operationType,
				"from", from.String(),
				"to", to.String())
		},
	})}
}

func failureRatio(counts gobreaker.Counts) float64 {
	if counts.Requests == 0 {
		return 0
	}
	return float64(counts.TotalFailures) / float64(counts.Requests)
}

// Execute runs fn through the breaker.
func (b *Breaker[T]) Execute(fn func() (T, error)) (T, error) {
	if b == nil {
		return fn()
	}
	return b.cb.Execute(fn)
}

// Stats reports the breaker state for /stats.
func (b *Breaker[T]) Stats() map[string]any {
	if b == nil {
		return map[string]any{"enabled": false}
	}
	counts := b.cb.Counts()
	return map[string]any{
		"enabled": true,
		"name":    b.cb.Name(),
		"state":   b.cb.State().String(),
		"counts": map[string]uint32{
			"requests":              counts.Requests,
			"total_failures":        counts.TotalFailures,
			"consecutive_failures":  counts.ConsecutiveFailures,
			"consecutive_successes": counts.ConsecutiveSuccesses,
		},
	}
}

// Healthy reports whether calls are let through normally. A half-open
// breaker counts as unhealthy until it closes again.
func (b *Breaker[T]) Healthy() bool {
	return b == nil || b.cb.State() == gobreaker.StateClosed
}

// IsBreakerRejection reports whether err means the breaker refused the
// call without reaching Gemini.
func IsBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

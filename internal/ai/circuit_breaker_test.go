package ai

import (
	stderrors "errors"
	"testing"
	"time"

	"jobcoach/internal/config"
	"jobcoach/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func breakerConfig(maxRequests, minRequests uint32, threshold float64) *config.OperationAIConfig {
	return &config.OperationAIConfig{
		Provider: "gemini",
		Model:    "gemini-2.0-flash",
		CircuitBreaker: config.CircuitBreakerConfig{
			Enabled:          true,
			MaxRequests:      maxRequests,
			Interval:         60 * time.Second,
			Timeout:          60 * time.Second,
			MinRequests:      minRequests,
			FailureThreshold: threshold,
		},
	}
}

func TestIndependentCircuitBreakerConfigurations(t *testing.T) {
	logger := errors.Discard()
	breakers := map[string]*Breaker[*genai.GenerateContentResponse]{
		"AI-" + config.OpCheatSheet: NewGenerateBreaker(config.OpCheatSheet, breakerConfig(3, 3, 0.6), logger),
		"AI-" + config.OpOutline:    NewGenerateBreaker(config.OpOutline, breakerConfig(5, 2, 0.7), logger),
		"AI-" + config.OpAnswer:     NewGenerateBreaker(config.OpAnswer, breakerConfig(4, 5, 0.5), logger),
	}

	for want, cb := range breakers {
		t.Run(want, func(t *testing.T) {
			stats := cb.Stats()
			assert.Equal(t, want, stats["name"])
			assert.Equal(t, "closed", stats["state"])
			assert.Equal(t, true, stats["enabled"])
			assert.True(t, cb.Healthy())
		})
	}
}

func TestDisabledCircuitBreaker(t *testing.T) {
	cfg := breakerConfig(1, 1, 0.1)
	cfg.CircuitBreaker.Enabled = false

	cb := NewGenerateBreaker(config.OpAnswer, cfg, errors.Discard())
	assert.Nil(t, cb)
	assert.Equal(t, map[string]any{"enabled": false}, cb.Stats())
	assert.True(t, cb.Healthy())

	called := false
	_, err := cb.Execute(func() (*genai.GenerateContentResponse, error) {
		called = true
		return &genai.GenerateContentResponse{}, nil
	})
	require.NoError(t, err)
	assert.True(t, called, "a nil breaker runs the call directly")

	mcb := NewModelBreaker(config.OpAnswer, cfg, nil)
	assert.Nil(t, mcb)
	assert.True(t, mcb.Healthy())
}

func TestCircuitBreakerTrips(t *testing.T) {
	cb := NewGenerateBreaker(config.OpCheatSheet, breakerConfig(1, 3, 0.5), errors.Discard())
	boom := stderrors.New("upstream unavailable")

	for range 3 {
		_, err := cb.Execute(func() (*genai.GenerateContentResponse, error) { return nil, boom })
		assert.ErrorIs(t, err, boom)
		assert.False(t, IsBreakerRejection(err))
	}

	assert.False(t, cb.Healthy())
	stats := cb.Stats()
	assert.Equal(t, "open", stats["state"])

	called := false
	_, err := cb.Execute(func() (*genai.GenerateContentResponse, error) {
		called = true
		return nil, nil
	})
	assert.True(t, IsBreakerRejection(err))
	assert.False(t, called, "an open breaker rejects calls")
}

func TestModelCircuitBreakerIsLenient(t *testing.T) {
	mcb := NewModelBreaker(config.OpOutline, breakerConfig(1, 1, 0.1), nil)
	boom := stderrors.New("models endpoint down")

	for range 4 {
		_, _ = mcb.Execute(func() (*genai.Model, error) { return nil, boom })
	}
	assert.True(t, mcb.Healthy(), "model checks trip only after five requests")
	counts := mcb.Stats()["counts"].(map[string]uint32)
	assert.Equal(t, uint32(4), counts["consecutive_failures"])

	_, _ = mcb.Execute(func() (*genai.Model, error) { return nil, boom })
	assert.False(t, mcb.Healthy())
	assert.Equal(t, "AI-Model-"+config.OpOutline, mcb.Stats()["name"])
}

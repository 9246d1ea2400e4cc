package mcp

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/gatehouse/internal/config"
	"github.com/fyrsmithlabs/gatehouse/internal/engine"
)

func testEngine(t *testing.T) *engine.Engine {
	t.Helper()
	cfg := &config.Config{
		Project:  config.ProjectConfig{Name: "demo", Root: t.TempDir(), StateDir: ".gatehouse"},
		Router:   config.RouterConfig{ConfidenceFloor: 0.05},
		Dispatch: config.DispatchConfig{Timeout: config.Duration(time.Second)},
		Pipeline: config.PipelineConfig{
			Phases: []config.PhaseConfig{
				{ID: "design", Classification: "process"},
			},
		},
	}
	e, err := engine.New(cfg, nil, nil)
	require.NoError(t, err)
	return e
}

func TestNewServer(t *testing.T) {
	s, err := NewServer(nil, testEngine(t), nil)
	require.NoError(t, err)
	assert.NotNil(t, s.mcp)
	assert.NotNil(t, s.metrics)
}

func TestNewServerRequiresEngine(t *testing.T) {
	_, err := NewServer(DefaultConfig(), nil, nil)
	assert.Error(t, err)
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{errors.New("unknown phase \"x\""), "unknown_phase"},
		{errors.New("intent matches no configured trigger"), "ambiguous_intent"},
		{errors.New("analysis already in flight for this phase and target"), "dispatch_in_flight"},
		{errors.New("finding not found"), "not_found"},
		{errors.New("justification is required to accept a risk"), "validation_error"},
		{errors.New("boom"), "internal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, categorizeError(tt.err), tt.err.Error())
	}
}

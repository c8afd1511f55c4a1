package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGRPCTarget(t *testing.T) {
	tests := []struct {
		in       string
		target   string
		insecure bool
	}{
		{"localhost:4317", "localhost:4317", true},
		{"http://collector:4317/v1/traces", "collector:4317", true},
		{"https://collector.example:4317", "collector.example:4317", false},
	}
	for _, tt := range tests {
		target, insecure, err := grpcTarget(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.target, target)
		assert.Equal(t, tt.insecure, insecure)
	}

	_, _, err := grpcTarget("http://")
	require.Error(t, err)
}

func TestNewProvidersWithoutEndpoint(t *testing.T) {
	p, err := NewProviders(context.Background(), "  ", "roleauth", false)
	require.NoError(t, err)
	require.NotNil(t, p.TracerProvider)
	require.NotNil(t, p.MeterProvider)
	require.NoError(t, p.Shutdown(context.Background()))
}

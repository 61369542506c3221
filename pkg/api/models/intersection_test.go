package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goclaw/intersection/config"
)

func TestConfigRequest_OperatorBounds(t *testing.T) {
	tests := []struct {
		name  string
		req   ConfigRequest
		valid bool
	}{
		{"within bounds", ConfigRequest{Roads: []string{"A", "B"}, GreenSeconds: 5, YellowSeconds: 1}, true},
		{"green below operator minimum", ConfigRequest{Roads: []string{"A", "B"}, GreenSeconds: 2, YellowSeconds: 1}, false},
		{"single road", ConfigRequest{Roads: []string{"A"}, GreenSeconds: 10, YellowSeconds: 3}, false},
		{"five roads", ConfigRequest{Roads: []string{"A", "B", "C", "D", "E"}, GreenSeconds: 10, YellowSeconds: 3}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := config.ValidateStruct(tt.req)
			assert.Equal(t, tt.valid, err == nil, "ValidateStruct() error = %v", err)

			// Build only applies the scheduler's structural limits.
			cfg, err := tt.req.Build()
			require.NoError(t, err)
			assert.Equal(t, tt.req.GreenSeconds, cfg.Green())
		})
	}
}

package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeployStatusPredicates(t *testing.T) {
	tests := []struct {
		status     DeployStatus
		terminal   bool
		successful bool
	}{
		{StatusNotStarted, false, false},
		{StatusInProgress, false, false},
		{StatusStart, false, false},
		{StatusCompleted, true, false},
		{StatusSuccess, true, true},
		{StatusFailed, true, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
			assert.Equal(t, tt.successful, tt.status.IsSuccessful())
		})
	}
}

func TestDeployStatusLegacyLowercase(t *testing.T) {
	var h DeployHistory
	require.NoError(t, json.Unmarshal([]byte(`{"id":"abcd1234","status":"failed"}`), &h))
	assert.Equal(t, StatusFailed, h.Status)
	assert.True(t, h.Status.IsTerminal())
}

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAgentRecordDefaults(t *testing.T) {
	r := NewAgentRecord("Add login form")
	assert.Equal(t, StatusPending, r.Status)
	assert.Equal(t, "Initializing", r.Step)
	assert.False(t, r.Terminal())
}

func TestAgentRecordTerminal(t *testing.T) {
	r := NewAgentRecord("x")
	r.Status = StatusCompleted
	assert.True(t, r.Terminal())

	r.Status = StatusFailed
	assert.True(t, r.Terminal())

	r.Status = StatusRunning
	assert.False(t, r.Terminal())
}

func TestNewDocumentHasEmptyAgentMap(t *testing.T) {
	d := NewDocument()
	require.NotNil(t, d.Agents)
	assert.Len(t, d.Agents, 0)
	assert.Equal(t, Summary{}, d.Summary)
}

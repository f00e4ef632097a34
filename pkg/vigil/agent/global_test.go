package agent

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongdm/vigil/pkg/vigil"
)

func TestDefault_NilBeforeInit(t *testing.T) {
	reset()
	t.Cleanup(reset)

	assert.Nil(t, Default())
	assert.Nil(t, CaptureException(errors.New("x"), nil, nil))
}

func TestInit_InstallsAndReplaces(t *testing.T) {
	reset()
	t.Cleanup(reset)

	first, err := Init(testConfig("ws://localhost:1"))
	require.NoError(t, err)
	assert.Same(t, first, Default())

	second, err := Init(testConfig("ws://localhost:1"))
	require.NoError(t, err)
	assert.Same(t, second, Default())
	assert.NotEqual(t, first.Config().AgentID, second.Config().AgentID)
}

func TestInit_DisabledAgentIsStillInstalled(t *testing.T) {
	reset()
	t.Cleanup(reset)

	a, err := Init(vigil.DefaultConfig())

	assert.ErrorIs(t, err, ErrMissingAPIKey)
	assert.Same(t, a, Default())
	assert.Nil(t, CaptureException(errors.New("x"), nil, nil))
}

func TestCaptureException_UsesDefault(t *testing.T) {
	reset()
	t.Cleanup(reset)
	_, err := Init(testConfig("ws://localhost:1"))
	require.NoError(t, err)

	record := CaptureException(errors.New("x"), map[string]any{"k": "v"}, nil)

	require.NotNil(t, record)
	assert.Equal(t, "v", record.Context["k"])
	assert.Equal(t, "github.com/strongdm/vigil/pkg/vigil/agent.TestCaptureException_UsesDefault", record.StackTrace[0].MethodName)
}

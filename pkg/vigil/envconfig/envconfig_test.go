package envconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongdm/vigil/pkg/vigil"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(WithSearchPaths(t.TempDir()))
	require.NoError(t, err)

	assert.Equal(t, vigil.DefaultConfig(), cfg)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("VIGIL_API_KEY", "env-key")
	t.Setenv("VIGIL_BACKEND_URL", "ws://localhost:9000/agent")
	t.Setenv("VIGIL_ENVIRONMENT", "staging")
	t.Setenv("VIGIL_SAMPLING_RATE", "0.25")
	t.Setenv("VIGIL_MAX_CAPTURE_DEPTH", "5")
	t.Setenv("VIGIL_MAX_STRING_LENGTH", "200")
	t.Setenv("VIGIL_MAX_COLLECTION_SIZE", "20")
	t.Setenv("VIGIL_DEBUG", "true")
	t.Setenv("VIGIL_AGENT_ID", "agent-7")

	cfg, err := Load(WithSearchPaths(t.TempDir()))
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.APIKey)
	assert.Equal(t, "ws://localhost:9000/agent", cfg.BackendURL)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, 0.25, cfg.SamplingRate)
	assert.Equal(t, 5, cfg.MaxCaptureDepth)
	assert.Equal(t, 200, cfg.MaxStringLength)
	assert.Equal(t, 20, cfg.MaxCollectionSize)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "agent-7", cfg.AgentID)
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vigil.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_key: file-key
environment: qa
max_string_length: 50
`), 0o600))
	t.Setenv("VIGIL_ENVIRONMENT", "from-env")

	cfg, err := Load(WithSearchPaths(dir))
	require.NoError(t, err)

	assert.Equal(t, "file-key", cfg.APIKey)
	assert.Equal(t, "from-env", cfg.Environment, "environment overrides the file")
	assert.Equal(t, 50, cfg.MaxStringLength)
	assert.Equal(t, vigil.DefaultMaxCollectionSize, cfg.MaxCollectionSize)
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	_, err := Load(WithConfigFile(filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, err)
}

func TestLoad_NormalizesOutOfRange(t *testing.T) {
	t.Setenv("VIGIL_SAMPLING_RATE", "7")
	t.Setenv("VIGIL_MAX_COLLECTION_SIZE", "-1")

	cfg, err := Load(WithSearchPaths(t.TempDir()))
	require.NoError(t, err)

	assert.Equal(t, 1.0, cfg.SamplingRate)
	assert.Equal(t, vigil.DefaultMaxCollectionSize, cfg.MaxCollectionSize)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vigil.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_key: [unterminated"), 0o600))

	_, err := Load(WithConfigFile(path))
	assert.Error(t, err)
}

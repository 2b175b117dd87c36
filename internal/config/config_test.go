package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withTempHome(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	t.Setenv("XDG_CONFIG_HOME", "")
	return tmp
}

func TestLoadDefaultsWhenNothingConfigured(t *testing.T) {
	withTempHome(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, cfg.Model)
}

func TestLoadGlobalConfig(t *testing.T) {
	home := withTempHome(t)
	globalDir := filepath.Join(home, ".config", "hnt")
	require.NoError(t, os.MkdirAll(globalDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(globalDir, "hnt.jsonc"),
		[]byte(`{
			// global default
			"model": "global/model"
		}`), 0644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "global/model", cfg.Model)
}

func TestProjectConfigOverridesGlobal(t *testing.T) {
	home := withTempHome(t)
	globalDir := filepath.Join(home, ".config", "hnt")
	require.NoError(t, os.MkdirAll(globalDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(globalDir, "hnt.jsonc"),
		[]byte(`{"model": "global/model"}`), 0644))

	project := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(project, ".hnt"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(project, ".hnt", "hnt.jsonc"),
		[]byte(`{"model": "project/model", "agent_editor": "vim"}`), 0644))

	cfg, err := Load(project)
	require.NoError(t, err)
	assert.Equal(t, "project/model", cfg.Model)
	assert.Equal(t, "vim", cfg.AgentEditor)
}

func TestEnvOverridesConfigFile(t *testing.T) {
	withTempHome(t)
	t.Setenv("HNT_MODEL", "env/model")

	project := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(project, ".hnt"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(project, ".hnt", "hnt.jsonc"),
		[]byte(`{"model": "project/model"}`), 0644))

	cfg, err := Load(project)
	require.NoError(t, err)
	assert.Equal(t, "env/model", cfg.Model)
}

func TestDotEnvIsLoaded(t *testing.T) {
	withTempHome(t)
	project := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(project, ".env"),
		[]byte("HNT_AGENT_MODEL=dotenv/model\n"), 0644))

	cfg, err := Load(project)
	require.NoError(t, err)
	assert.Equal(t, "dotenv/model", cfg.AgentModel)
}

func TestResolveModelFallbackChain(t *testing.T) {
	cfg := &Config{Model: "cfg-model", AgentModel: "cfg-agent-model"}
	assert.Equal(t, "flag-model", ResolveModel("flag-model", cfg))
	assert.Equal(t, "cfg-agent-model", ResolveModel("", cfg))
	assert.Equal(t, "cfg-model", ResolveModel("", &Config{Model: "cfg-model"}))
	assert.Equal(t, DefaultModel, ResolveModel("", &Config{}))
}

func TestStripJSONCommentsHandlesBothStyles(t *testing.T) {
	input := []byte(`{
		// line comment
		"a": 1, /* inline
		multiline */ "b": 2
	}`)
	out := stripJSONComments(input)
	assert.NotContains(t, string(out), "line comment")
	assert.NotContains(t, string(out), "multiline")
}

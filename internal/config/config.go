package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"

	"github.com/joho/godotenv"
)

// DefaultModel is used when no flag, env var, or config file names one.
const DefaultModel = "openrouter/auto"

// Config is the narrowed settings surface this module cares about: model selection
// and the agent's editor-integration preferences. Everything else the
// teacher's opencode.json supported (providers, agents, MCP, permissions)
// has no component to serve in this repo.
type Config struct {
	// Model is the default model identifier (HNT_MODEL / "model").
	Model string `json:"model"`
	// AgentModel overrides Model for hnt-agent specifically
	// (HNT_AGENT_MODEL / "agent_model").
	AgentModel string `json:"agent_model"`
	// AgentEditor holds the external-editor preference
	// (HNT_AGENT_EDITOR / "agent_editor"). It is loaded and merged here
	// only: hnt-agent reads new instructions from stdin and does not open
	// an editor.
	AgentEditor string `json:"agent_editor"`
	// AgentUsePane holds the pane-editor preference
	// (HNT_AGENT_USE_PANE / "agent_use_pane"). It is loaded and merged
	// here only; hnt-agent does not open a multiplexer pane.
	AgentUsePane bool `json:"agent_use_pane"`
}

// Load loads configuration from, in increasing priority:
//  1. the global config (~/.config/hnt/hnt.jsonc)
//  2. the project config (directory/.hnt/hnt.jsonc)
//  3. a .env file in directory, if present
//  4. environment variables
//
// directory may be "" to skip project config and .env loading.
func Load(directory string) (*Config, error) {
	cfg := &Config{Model: DefaultModel}

	loadConfigFile(GetPaths().GlobalConfigPath(), cfg)
	if directory != "" {
		loadConfigFile(ProjectConfigPath(directory), cfg)
		_ = godotenv.Load(filepath.Join(directory, ".env"))
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func loadConfigFile(path string, cfg *Config) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	data = stripJSONComments(data)

	var fileCfg Config
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		return
	}
	mergeConfig(cfg, &fileCfg)
}

// stripJSONComments removes // and /* */ comments from JSONC.
func stripJSONComments(data []byte) []byte {
	singleLine := regexp.MustCompile(`//.*$`)
	lines := bytes.Split(data, []byte("\n"))
	for i, line := range lines {
		lines[i] = singleLine.ReplaceAll(line, nil)
	}
	data = bytes.Join(lines, []byte("\n"))

	multiLine := regexp.MustCompile(`/\*[\s\S]*?\*/`)
	return multiLine.ReplaceAll(data, nil)
}

func mergeConfig(target, source *Config) {
	if source.Model != "" {
		target.Model = source.Model
	}
	if source.AgentModel != "" {
		target.AgentModel = source.AgentModel
	}
	if source.AgentEditor != "" {
		target.AgentEditor = source.AgentEditor
	}
	if source.AgentUsePane {
		target.AgentUsePane = true
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HNT_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("HNT_AGENT_MODEL"); v != "" {
		cfg.AgentModel = v
	}
	if v := os.Getenv("HNT_AGENT_EDITOR"); v != "" {
		cfg.AgentEditor = v
	}
	if v := os.Getenv("HNT_AGENT_USE_PANE"); v != "" {
		cfg.AgentUsePane = v != "0" && v != "false"
	}
}

// ResolveModel implements the fallback chain of supplemented feature 2c:
// --model flag → HNT_AGENT_MODEL → HNT_MODEL → DefaultModel. cfg's
// AgentModel/Model fields already carry the env/file-merged values, so
// this only arbitrates precedence between the CLI flag and cfg.
func ResolveModel(flag string, cfg *Config) string {
	if flag != "" {
		return flag
	}
	if cfg.AgentModel != "" {
		return cfg.AgentModel
	}
	if cfg.Model != "" {
		return cfg.Model
	}
	return DefaultModel
}

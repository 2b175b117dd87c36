package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths contains the standard paths for hnt data.
type Paths struct {
	Data   string // ~/.local/share/hnt
	Config string // ~/.config/hnt
	Cache  string // ~/.cache/hnt
	State  string // ~/.local/state/hnt
}

// GetPaths returns the standard paths for hnt data.
func GetPaths() *Paths {
	return &Paths{
		Data:   filepath.Join(getEnvOrDefault("XDG_DATA_HOME", defaultDataHome()), "hnt"),
		Config: filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", defaultConfigHome()), "hnt"),
		Cache:  filepath.Join(getEnvOrDefault("XDG_CACHE_HOME", defaultCacheHome()), "hnt"),
		State:  filepath.Join(getEnvOrDefault("XDG_STATE_HOME", defaultStateHome()), "hnt"),
	}
}

// EnsurePaths creates all required directories.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Data, p.Config, p.Cache, p.State} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// GlobalConfigPath returns the path to the global hnt.jsonc file.
func (p *Paths) GlobalConfigPath() string {
	return filepath.Join(p.Config, "hnt.jsonc")
}

// InfoFilePath returns the default path to the agent priming facts file.
func (p *Paths) InfoFilePath() string {
	return filepath.Join(p.Config, "agent", "HNT.md")
}

// ProjectConfigPath returns the path to a directory's project config file.
func ProjectConfigPath(directory string) string {
	return filepath.Join(directory, ".hnt", "hnt.jsonc")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultDataHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "share")
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}

func defaultCacheHome() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "cache")
	}
	return filepath.Join(os.Getenv("HOME"), ".cache")
}

func defaultStateHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "state")
}

// Package config loads hnt's settings from, in increasing priority: the
// global ~/.config/hnt/hnt.jsonc, a project .hnt/hnt.jsonc, a .env file
// in the working directory (via godotenv), and environment variables
// (HNT_MODEL, HNT_AGENT_MODEL, HNT_AGENT_EDITOR, HNT_AGENT_USE_PANE).
//
// JSONC files may use // and /* */ comments; they're stripped before
// unmarshaling. See Paths for XDG-compliant data/config/cache/state
// directories.
package config

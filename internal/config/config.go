package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Environment variables that override the daemon preferences.
const (
	EnvDaemonURL   = "CONVO_DAEMON_URL"
	EnvDaemonToken = "CONVO_DAEMON_TOKEN"
)

// configDirOverride and dataDirOverride are set by tests to redirect
// ConfigDir and DataDir.
var (
	configDirOverride string
	dataDirOverride   string
)

// ConfigDir returns the config directory for convo.
func ConfigDir() string {
	if configDirOverride != "" {
		return configDirOverride
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "convo")
}

// DataDir returns ~/.local/share/convo, creating it if needed.
func DataDir() (string, error) {
	dir := dataDirOverride
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".local", "share", "convo")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// ApplyEnv overlays the daemon settings from the environment. Environment
// values win over the preferences file.
func (p *Preferences) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvDaemonURL)); v != "" {
		p.DaemonURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDaemonToken)); v != "" {
		p.DaemonToken = v
	}
}

// CommandsFilePath returns the YAML command library path: the configured
// one, or commands.yaml in the config directory.
func (p Preferences) CommandsFilePath() string {
	if p.CommandsFile != "" {
		if strings.HasPrefix(p.CommandsFile, "~/") {
			if home, err := os.UserHomeDir(); err == nil {
				return filepath.Join(home, p.CommandsFile[2:])
			}
		}
		return p.CommandsFile
	}
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "commands.yaml")
}

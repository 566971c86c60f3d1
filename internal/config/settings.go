package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Settings is the part of the configuration persisted by `wwatcher setup`.
type Settings struct {
	KalshiAPIKeyID       string `json:"kalshi_api_key_id,omitempty"`
	KalshiPrivateKeyPath string `json:"kalshi_private_key_path,omitempty"`
	WebhookURL           string `json:"webhook_url,omitempty"`
	NtfyURL              string `json:"ntfy_url,omitempty"`
}

// DefaultSettingsPath returns ~/.config/whale-watcher/config.json.
func DefaultSettingsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}
	return filepath.Join(home, ".config", "whale-watcher", "config.json"), nil
}

// LoadSettings reads the settings file at path. A missing file yields empty
// settings; an unreadable or malformed one is a *ConfigError.
func LoadSettings(path string) (Settings, error) {
	var s Settings

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, &ConfigError{Path: path, Err: err}
	}

	if err := json.Unmarshal(data, &s); err != nil {
		return s, &ConfigError{Path: path, Err: fmt.Errorf("parse settings: %w", err)}
	}
	return s, nil
}

// SaveSettings writes s to path, creating the directory if needed. The file is
// readable only by the owner since it names the Kalshi key.
func SaveSettings(path string, s Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.json")
	if err != nil {
		return fmt.Errorf("create settings file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

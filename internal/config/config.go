// Package config loads agent configuration from an optional YAML file
// with PULSE_* environment overrides, and can watch the file so the
// agent picks up rotated credentials without a restart.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Session SessionConfig `yaml:"session"`
	Alerts  AlertsConfig  `yaml:"alerts"`
}

type ServerConfig struct {
	APIBaseURL string `yaml:"api_base_url"`
	PushURL    string `yaml:"push_url"`
}

type AuthConfig struct {
	Token string `yaml:"token"`
}

type SessionConfig struct {
	UserID      string `yaml:"user_id"`
	DisplayName string `yaml:"display_name"`
}

type AlertsConfig struct {
	Enabled   bool `yaml:"enabled"`
	BodyLimit int  `yaml:"body_limit"`
}

func Default() Config {
	cfg := Config{}
	cfg.Server.APIBaseURL = "http://127.0.0.1:8080"
	cfg.Server.PushURL = "ws://127.0.0.1:8080/v1/push"
	cfg.Alerts.Enabled = true
	cfg.Alerts.BodyLimit = 120
	return cfg
}

// Load reads the YAML file at path (optional; empty path skips the
// file) and applies environment overrides on top.
func Load(path string) (Config, error) {
	cfg := Default()
	path = strings.TrimSpace(path)
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Auth.Token) == "" {
		return fmt.Errorf("auth token is required")
	}
	if strings.TrimSpace(c.Session.UserID) == "" {
		return fmt.Errorf("session user id is required")
	}
	if strings.TrimSpace(c.Server.APIBaseURL) == "" {
		return fmt.Errorf("api base url is required")
	}
	if strings.TrimSpace(c.Server.PushURL) == "" {
		return fmt.Errorf("push url is required")
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("PULSE_API_BASE_URL")); v != "" {
		cfg.Server.APIBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("PULSE_PUSH_URL")); v != "" {
		cfg.Server.PushURL = v
	}
	if v := strings.TrimSpace(os.Getenv("PULSE_TOKEN")); v != "" {
		cfg.Auth.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("PULSE_USER_ID")); v != "" {
		cfg.Session.UserID = v
	}
	if v := strings.TrimSpace(os.Getenv("PULSE_DISPLAY_NAME")); v != "" {
		cfg.Session.DisplayName = v
	}
	if v := strings.TrimSpace(os.Getenv("PULSE_ALERTS_ENABLED")); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Alerts.Enabled = enabled
		}
	}
	if v := strings.TrimSpace(os.Getenv("PULSE_ALERT_BODY_LIMIT")); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 {
			cfg.Alerts.BodyLimit = limit
		}
	}
}

// Watch invokes onChange whenever the config file is rewritten. The
// parent directory is watched so atomic replace-by-rename is seen too.
// The returned function stops the watcher.
func Watch(path string, onChange func()) (func() error, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != absPath {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					onChange()
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return watcher.Close, nil
}

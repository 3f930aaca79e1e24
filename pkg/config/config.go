// Package config loads the application settings. Values come from built-in
// defaults, then an optional YAML file, then environment variables, so
// secrets can stay out of the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ServiceSetting enables one catalog. The order of Settings.Services is the
// priority order used when merging results.
type ServiceSetting struct {
	Name    string `yaml:"name" json:"name"`
	Enabled bool   `yaml:"enabled" json:"enabled"`
}

// MusicBrainzSettings identify the application to MusicBrainz.
type MusicBrainzSettings struct {
	AppName    string `yaml:"app_name" json:"app_name"`
	AppVersion string `yaml:"app_version" json:"app_version"`
	Contact    string `yaml:"contact" json:"contact"`
}

// UserAgent renders "Name/Version ( contact )".
func (m MusicBrainzSettings) UserAgent() string {
	ua := m.AppName + "/" + m.AppVersion
	if m.Contact != "" {
		ua += " ( " + m.Contact + " )"
	}
	return ua
}

// Settings holds every configurable value.
type Settings struct {
	Services         []ServiceSetting    `yaml:"services" json:"services"`
	FrontOnly        bool                `yaml:"front_only" json:"front_only"`
	DefaultOutputDir string              `yaml:"default_output_dir" json:"default_output_dir"`
	DefaultFilename  string              `yaml:"default_filename" json:"default_filename"`
	NoSavePrompt     bool                `yaml:"no_save_prompt" json:"no_save_prompt"`
	ExitOnDownload   bool                `yaml:"exit_on_download" json:"exit_on_download"`
	BatchSize        int                 `yaml:"batch_size" json:"batch_size"`
	ThumbnailSize    int                 `yaml:"thumbnail_size" json:"thumbnail_size"`
	DiscogsToken     string              `yaml:"discogs_token" json:"-"`
	SpotifyClientID  string              `yaml:"spotify_client_id" json:"-"`
	SpotifySecret    string              `yaml:"spotify_client_secret" json:"-"`
	MusicBrainz      MusicBrainzSettings `yaml:"musicbrainz" json:"musicbrainz"`
	UserAgent        string              `yaml:"user_agent" json:"user_agent"`
	DatabasePath     string              `yaml:"database_path" json:"database_path"`
	ListenAddr       string              `yaml:"listen_addr" json:"listen_addr"`
	LogLevel         string              `yaml:"log_level" json:"log_level"`
}

const (
	MinBatchSize = 1
	MaxBatchSize = 50
)

// Default returns the built-in settings.
func Default() *Settings {
	return &Settings{
		Services: []ServiceSetting{
			{Name: "iTunes", Enabled: true},
			{Name: "Last.fm", Enabled: true},
			{Name: "MusicBrainz", Enabled: true},
			{Name: "Bandcamp", Enabled: true},
			{Name: "Discogs", Enabled: true},
			{Name: "VGMdb", Enabled: false},
			{Name: "Spotify", Enabled: false},
		},
		FrontOnly:        true,
		DefaultOutputDir: "~/Downloads",
		BatchSize:        5,
		ThumbnailSize:    180,
		MusicBrainz: MusicBrainzSettings{
			AppName:    "CoverArtGo",
			AppVersion: "1.0",
			Contact:    "https://github.com/cover-art-go",
		},
		DatabasePath: "coverart.db",
		ListenAddr:   ":4000",
		LogLevel:     "info",
	}
}

// DefaultPath returns the YAML file location under the user config dir.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "cover-art-go", "config.yaml")
}

// Load reads path on top of the defaults and applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Settings, error) {
	s := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, s); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	s.applyEnv(os.LookupEnv)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) applyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("DISCOGS_TOKEN", &s.DiscogsToken)
	str("SPOTIFY_CLIENT_ID", &s.SpotifyClientID)
	str("SPOTIFY_CLIENT_SECRET", &s.SpotifySecret)
	str("DATABASE_PATH", &s.DatabasePath)
	str("COVERART_LISTEN_ADDR", &s.ListenAddr)
	str("COVERART_LOG_LEVEL", &s.LogLevel)
	str("COVERART_USER_AGENT", &s.UserAgent)
	if v, ok := lookup("COVERART_BATCH_SIZE"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			s.BatchSize = n
		}
	}
}

// Validate checks ranges and service names.
func (s *Settings) Validate() error {
	if s.BatchSize < MinBatchSize || s.BatchSize > MaxBatchSize {
		return fmt.Errorf("batch_size must be between %d and %d, got %d", MinBatchSize, MaxBatchSize, s.BatchSize)
	}
	if s.ThumbnailSize < 0 {
		return fmt.Errorf("thumbnail_size must not be negative, got %d", s.ThumbnailSize)
	}
	seen := make(map[string]bool)
	for _, svc := range s.Services {
		key := strings.ToLower(strings.TrimSpace(svc.Name))
		if key == "" {
			return errors.New("service entry without a name")
		}
		if seen[key] {
			return fmt.Errorf("service %q listed twice", svc.Name)
		}
		seen[key] = true
	}
	return nil
}

// EnabledServices returns the enabled service names in priority order.
func (s *Settings) EnabledServices() []string {
	var out []string
	for _, svc := range s.Services {
		if svc.Enabled {
			out = append(out, svc.Name)
		}
	}
	return out
}

// OutputDir expands a leading ~ in DefaultOutputDir.
func (s *Settings) OutputDir() string {
	return ExpandHome(s.DefaultOutputDir)
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// Save writes the settings to path as YAML, creating the directory.
func (s *Settings) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	s := Default()
	require.NoError(t, s.Validate())
	assert.Equal(t, []string{"iTunes", "Last.fm", "MusicBrainz", "Bandcamp", "Discogs"}, s.EnabledServices())
	assert.True(t, s.FrontOnly)
	assert.Equal(t, 5, s.BatchSize)
	assert.Equal(t, "CoverArtGo/1.0 ( https://github.com/cover-art-go )", s.MusicBrainz.UserAgent())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `services:
  - name: VGMdb
    enabled: true
  - name: iTunes
    enabled: true
  - name: Discogs
    enabled: false
front_only: false
batch_size: 12
discogs_token: from-file
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv("DISCOGS_TOKEN", "from-env")
	t.Setenv("DATABASE_PATH", filepath.Join(dir, "x.db"))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"VGMdb", "iTunes"}, s.EnabledServices())
	assert.False(t, s.FrontOnly)
	assert.Equal(t, 12, s.BatchSize)
	assert.Equal(t, "from-env", s.DiscogsToken)
	assert.Equal(t, filepath.Join(dir, "x.db"), s.DatabasePath)
	assert.Equal(t, ":4000", s.ListenAddr, "unset keys keep their defaults")
}

func TestLoadMissingFile(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().EnabledServices(), s.EnabledServices())
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"batch too small", func(s *Settings) { s.BatchSize = 0 }},
		{"batch too large", func(s *Settings) { s.BatchSize = 51 }},
		{"negative thumbnail", func(s *Settings) { s.ThumbnailSize = -1 }},
		{"duplicate service", func(s *Settings) { s.Services = append(s.Services, ServiceSetting{Name: "itunes"}) }},
		{"unnamed service", func(s *Settings) { s.Services = append(s.Services, ServiceSetting{}) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := Default()
			tc.mutate(s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	s := Default()
	s.BatchSize = 9
	s.DefaultFilename = "folder"
	require.NoError(t, s.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, got.BatchSize)
	assert.Equal(t, "folder", got.DefaultFilename)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "Music"), ExpandHome("~/Music"))
	assert.Equal(t, "/abs/path", ExpandHome("/abs/path"))
}

package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Cover-Art-Go/pkg/config"
)

func TestBuildRegistersEveryService(t *testing.T) {
	s := config.Default()
	reg := Build(s, Fetcher(s), nil)
	assert.Equal(t, []string{"Bandcamp", "Discogs", "Last.fm", "MusicBrainz", "Spotify", "VGMdb", "iTunes"}, reg.Names())

	for _, svc := range s.Services {
		_, ok := reg.Lookup(svc.Name)
		assert.True(t, ok, svc.Name)
	}
}

func TestOptionsFollowSettings(t *testing.T) {
	s := config.Default()
	s.FrontOnly = false
	s.BatchSize = 9
	s.Services = []config.ServiceSetting{{Name: "Discogs", Enabled: true}, {Name: "iTunes", Enabled: false}, {Name: "VGMdb", Enabled: true}}

	opts := Options(s)
	assert.Equal(t, []string{"Discogs", "VGMdb"}, opts.Services)
	assert.False(t, opts.FrontOnly)
	assert.Equal(t, 9, opts.BatchSize)

	adapters, err := Build(s, Fetcher(s), nil).Resolve(opts.Services)
	require.NoError(t, err)
	assert.Equal(t, "Discogs", adapters[0].Name())
	assert.Equal(t, "VGMdb", adapters[1].Name())
}

func TestFetcherUserAgent(t *testing.T) {
	s := config.Default()
	assert.NotEmpty(t, Fetcher(s).UserAgent)
	s.UserAgent = "custom/1"
	assert.Equal(t, "custom/1", Fetcher(s).UserAgent)
}

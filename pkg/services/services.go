// Package services builds the adapter registry from the settings. Every known
// service is registered; the enabled subset and its order come from
// Settings.Services and are applied per search through cover.Options.
package services

import (
	"time"

	"Cover-Art-Go/pkg/bandcamp"
	"Cover-Art-Go/pkg/config"
	"Cover-Art-Go/pkg/cover"
	"Cover-Art-Go/pkg/discogs"
	"Cover-Art-Go/pkg/fetch"
	"Cover-Art-Go/pkg/itunes"
	"Cover-Art-Go/pkg/lastfm"
	"Cover-Art-Go/pkg/musicbrainz"
	"Cover-Art-Go/pkg/spotify"
	"Cover-Art-Go/pkg/vgmdb"
)

// Fetcher returns the HTTP client shared by the adapters.
func Fetcher(s *config.Settings) *fetch.Client {
	ua := s.UserAgent
	if ua == "" {
		ua = fetch.DefaultUserAgent
	}
	return fetch.New(ua, fetch.DefaultTimeout)
}

// Build registers every adapter. tokens may be nil, in which case Spotify
// logs in on every start.
func Build(s *config.Settings, f *fetch.Client, tokens spotify.TokenStore) *cover.Registry {
	sp := spotify.New(s.SpotifyClientID, s.SpotifySecret)
	if tokens != nil {
		sp = sp.WithTokenStore(tokens)
	}
	return cover.NewRegistry(
		itunes.New(f),
		lastfm.New(f),
		musicbrainz.New(f, musicbrainz.Options{UserAgent: s.MusicBrainz.UserAgent(), Delay: time.Second}),
		bandcamp.New(f),
		discogs.New(f, s.DiscogsToken),
		vgmdb.New(f),
		sp,
	)
}

// Options turns the settings into the defaults of a search session.
func Options(s *config.Settings) cover.Options {
	return cover.Options{
		Services:  s.EnabledServices(),
		FrontOnly: s.FrontOnly,
		BatchSize: s.BatchSize,
	}
}

// Package itunes implements the cover.Adapter interface using the public
// iTunes Search API. No authentication is required. The zero value Client is
// ready for use and talks to the production endpoint.
package itunes

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"Cover-Art-Go/pkg/cover"
	"Cover-Art-Go/pkg/fetch"
	"Cover-Art-Go/pkg/imagesize"
)

// ServiceName is the name stamped on every candidate.
const ServiceName = "iTunes"

const (
	searchURL     = "https://itunes.apple.com/search"
	searchLimit   = 25
	thumbnailDims = "300x300"
	// maxResName asks the artwork CDN for the largest rendition it has.
	maxResName = "999999999x0w-999.jpg"
)

var artworkPattern = regexp.MustCompile(`^(.*)/(\d+x\d+)([^/]*)$`)

// Client searches the iTunes store. Fetch and Prober may be nil in which case
// shared defaults are used. BaseURL overrides the search endpoint in tests.
type Client struct {
	Fetch   *fetch.Client
	Prober  *imagesize.Prober
	BaseURL string
}

// Ensure interface compliance at compile time.
var _ cover.Adapter = (*Client)(nil)

// New returns a Client using f for API calls and image probes.
func New(f *fetch.Client) *Client {
	return &Client{Fetch: f, Prober: imagesize.New(f)}
}

func (c *Client) Name() string { return ServiceName }

func (c *Client) fetcher() *fetch.Client {
	if c.Fetch == nil {
		return &fetch.Client{}
	}
	return c.Fetch
}

// SearchAlbumCandidates queries the album entity of the search API. Only
// collection results of type Album that carry artwork become candidates.
func (c *Client) SearchAlbumCandidates(tok *cover.Token, q cover.SearchQuery) []cover.AlbumCandidate {
	return cover.SoftList(tok, ServiceName, "search", func(ctx context.Context) ([]cover.AlbumCandidate, error) {
		return c.search(ctx, q)
	})
}

// searchResponse mirrors the subset of the iTunes JSON response we care about.
type searchResponse struct {
	Results []struct {
		WrapperType      string `json:"wrapperType"`
		CollectionType   string `json:"collectionType"`
		CollectionID     int64  `json:"collectionId"`
		CollectionName   string `json:"collectionName"`
		ArtistName       string `json:"artistName"`
		ArtworkURL100    string `json:"artworkUrl100"`
		ArtworkURL60     string `json:"artworkUrl60"`
		ReleaseDate      string `json:"releaseDate"`
		PrimaryGenreName string `json:"primaryGenreName"`
	} `json:"results"`
}

func (c *Client) search(ctx context.Context, q cover.SearchQuery) ([]cover.AlbumCandidate, error) {
	term := strings.TrimSpace(q.Artist + " " + q.Album)
	if term == "" {
		return nil, &cover.InputError{Msg: "artist and album are both empty"}
	}
	base := c.BaseURL
	if base == "" {
		base = searchURL
	}
	params := url.Values{
		"term":    {term},
		"entity":  {"album"},
		"media":   {"music"},
		"limit":   {strconv.Itoa(searchLimit)},
		"country": {"US"},
	}
	u := base + "?" + params.Encode()
	var body searchResponse
	if err := c.fetcher().JSON(ctx, u, nil, &body); err != nil {
		return nil, err
	}
	var out []cover.AlbumCandidate
	for _, item := range body.Results {
		if item.WrapperType != "collection" || item.CollectionType != "Album" {
			continue
		}
		art := item.ArtworkURL100
		if art == "" {
			art = item.ArtworkURL60
		}
		if item.CollectionID == 0 || item.CollectionName == "" || item.ArtistName == "" || art == "" {
			continue
		}
		out = append(out, cover.AlbumCandidate{
			Identifier:    strconv.FormatInt(item.CollectionID, 10),
			AlbumName:     item.CollectionName,
			ArtistName:    item.ArtistName,
			SourceService: ServiceName,
			ExtraData: map[string]any{
				"base_artwork_url": art,
				"release_date":     item.ReleaseDate,
				"primary_genre":    item.PrimaryGenreName,
			},
		})
	}
	return out, nil
}

// ArtworkURLs derives the thumbnail and the largest available rendition from
// an artwork URL returned by the search API. Both are forced to https.
func ArtworkURLs(base string) (thumb, full string) {
	thumb, full = base, base
	if m := artworkPattern.FindStringSubmatch(base); m != nil {
		thumb = m[1] + "/" + thumbnailDims + m[3]
		full = m[1] + "/" + maxResName
	}
	return forceHTTPS(thumb), forceHTTPS(full)
}

func forceHTTPS(u string) string {
	if strings.HasPrefix(u, "http://") {
		return "https://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

// ListPotentialImages projects the artwork URL stored on the candidate. iTunes
// offers exactly one front cover per album.
func (c *Client) ListPotentialImages(tok *cover.Token, cand *cover.AlbumCandidate) []cover.PotentialImage {
	return cover.SoftList(tok, ServiceName, "list", func(ctx context.Context) ([]cover.PotentialImage, error) {
		if err := cover.CheckOwner(cand.SourceService, ServiceName); err != nil {
			return nil, err
		}
		base := cand.Extra("base_artwork_url")
		if base == "" {
			return nil, &cover.DataError{Msg: "candidate " + cand.Identifier + " has no artwork url"}
		}
		thumb, full := ArtworkURLs(base)
		return []cover.PotentialImage{{
			Identifier:   full,
			ThumbnailURL: thumb,
			FullImageURL: full,
			Source:       cand,
			IsFront:      true,
		}}, nil
	})
}

// ResolveImageDetails downloads the head of the full image to learn its size.
func (c *Client) ResolveImageDetails(tok *cover.Token, pi *cover.PotentialImage) *cover.ImageResult {
	return cover.SoftOne(tok, ServiceName, "resolve", func(ctx context.Context) (*cover.ImageResult, error) {
		if err := cover.CheckOwner(pi.Service(), ServiceName); err != nil {
			return nil, err
		}
		p := c.Prober
		if p == nil {
			p = imagesize.New(c.Fetch)
		}
		return p.Resolve(ctx, pi, nil)
	})
}

// Package lastfm reads album search results from the Last.fm website. The
// public site exposes the cover of each result on its image CDN, so no API key
// is needed and every candidate carries its single image with it.
package lastfm

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"Cover-Art-Go/pkg/cover"
	"Cover-Art-Go/pkg/fetch"
	"Cover-Art-Go/pkg/imagesize"
	"Cover-Art-Go/pkg/scrape"
)

// ServiceName is the name stamped on every candidate.
const ServiceName = "Last.fm"

const (
	baseURL = "https://www.last.fm"
	// placeholderHash is the grey star Last.fm shows for albums without art.
	placeholderHash = "c6f59c1e5e7240a4c0d427abd71f3dbb"
)

var (
	fastlyPattern  = regexp.MustCompile(`^(https://lastfm\.freetls\.fastly\.net/i/u/)[^/]+/(.+)$`)
	dimsPattern    = regexp.MustCompile(`/(\d+x\d+|\d+x0|0x\d+)/`)
	queryCleaner   = strings.NewReplacer(".", " ", ":", " ", "-", " ")
	resultBlock    = scrape.ClassTag("div", "album-result-inner")
	headingTag     = scrape.ClassTag("h4", "album-result-heading")
	linkTag        = regexp.MustCompile(`<a\b[^>]*\bclass\s*=\s*["']link-block-target["'][^>]*>`)
	artistTag      = scrape.ClassTag("p", "album-result-artist")
	anchorTag      = regexp.MustCompile(`<a\b[^>]*>`)
	imageTag       = regexp.MustCompile(`<img\b[^>]*\bclass\s*=\s*["'][^"']*\balbum-result-image\b[^"']*["'][^>]*>`)
	noResultsBlock = regexp.MustCompile(`<p\b[^>]*class\s*=\s*["']message["'][^>]*>\s*(No albums found|No results for)`)
)

// Client scrapes the Last.fm album search. BaseURL overrides the site root in
// tests.
type Client struct {
	Fetch   *fetch.Client
	Prober  *imagesize.Prober
	BaseURL string
}

var _ cover.Adapter = (*Client)(nil)

// New returns a Client using f.
func New(f *fetch.Client) *Client {
	return &Client{Fetch: f, Prober: imagesize.New(f)}
}

func (c *Client) Name() string { return ServiceName }

func (c *Client) base() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return baseURL
}

func (c *Client) fetcher() *fetch.Client {
	if c.Fetch == nil {
		return &fetch.Client{}
	}
	return c.Fetch
}

func (c *Client) SearchAlbumCandidates(tok *cover.Token, q cover.SearchQuery) []cover.AlbumCandidate {
	return cover.SoftList(tok, ServiceName, "search", func(ctx context.Context) ([]cover.AlbumCandidate, error) {
		return c.search(ctx, q)
	})
}

func (c *Client) search(ctx context.Context, q cover.SearchQuery) ([]cover.AlbumCandidate, error) {
	query := strings.TrimSpace(queryCleaner.Replace(q.Artist + " " + q.Album))
	if query == "" {
		return nil, &cover.InputError{Msg: "artist and album are both empty"}
	}
	u := c.base() + "/search/albums?q=" + url.QueryEscape(query)
	page, err := c.fetcher().Page(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	return parseSearch(u, page.Body)
}

func parseSearch(u, body string) ([]cover.AlbumCandidate, error) {
	if noResultsBlock.MatchString(body) {
		return nil, nil
	}
	blocks := scrape.Blocks(body, resultBlock)
	if len(blocks) == 0 {
		return nil, &cover.DataError{URL: u, Msg: "no album results on page, layout may have changed"}
	}
	var out []cover.AlbumCandidate
	for _, b := range blocks {
		_, heading, ok := scrape.Element(b, headingTag, "h4")
		if !ok {
			continue
		}
		link, title, ok := scrape.Element(heading, linkTag, "a")
		if !ok {
			continue
		}
		href := scrape.Attr(link, "href")
		if !strings.HasPrefix(href, "/music/") {
			continue
		}
		artist := "N/A"
		if _, p, ok := scrape.Element(b, artistTag, "p"); ok {
			if _, name, ok := scrape.Element(p, anchorTag, "a"); ok {
				artist = scrape.Text(name)
			}
		}
		extra := map[string]any{}
		if img := imageTag.FindString(b); img != "" {
			if src := scrape.Attr(img, "src"); src != "" && !isPlaceholder(src) {
				extra["search_thumb_url"] = src
			}
		}
		out = append(out, cover.AlbumCandidate{
			Identifier:    href,
			AlbumName:     scrape.Text(title),
			ArtistName:    artist,
			SourceService: ServiceName,
			ExtraData:     extra,
		})
	}
	if len(out) == 0 {
		return nil, &cover.DataError{URL: u, Msg: "result blocks found but none could be parsed"}
	}
	return out, nil
}

func isPlaceholder(src string) bool {
	m := fastlyPattern.FindStringSubmatch(src)
	if m == nil {
		return false
	}
	hash, _, _ := strings.Cut(m[2], ".")
	return hash == placeholderHash
}

// ImageURLs rewrites a CDN thumbnail URL into the 174px thumbnail and the
// original upload.
func ImageURLs(src string) (thumb, full string, ok bool) {
	m := fastlyPattern.FindStringSubmatch(src)
	if m == nil {
		return "", "", false
	}
	return m[1] + "174s/" + m[2], m[1] + "o/" + m[2], true
}

func (c *Client) ListPotentialImages(tok *cover.Token, cand *cover.AlbumCandidate) []cover.PotentialImage {
	return cover.SoftList(tok, ServiceName, "list", func(ctx context.Context) ([]cover.PotentialImage, error) {
		if err := cover.CheckOwner(cand.SourceService, ServiceName); err != nil {
			return nil, err
		}
		src := cand.Extra("search_thumb_url")
		if src == "" || isPlaceholder(src) {
			return nil, nil
		}
		thumb, full, ok := ImageURLs(src)
		if !ok {
			return nil, &cover.DataError{URL: src, Msg: "unexpected image url"}
		}
		return []cover.PotentialImage{{
			Identifier:   full,
			ThumbnailURL: thumb,
			FullImageURL: full,
			Source:       cand,
			IsFront:      true,
			ExtraData: map[string]any{
				"gallery_page_url": c.base() + cand.Identifier + "/+images",
			},
		}}, nil
	})
}

// dimsFromURL reads a WxH path segment. A zero side means the image is square.
func dimsFromURL(u string) (int, int, bool) {
	m := dimsPattern.FindStringSubmatch(u)
	if m == nil {
		return 0, 0, false
	}
	ws, hs, _ := strings.Cut(m[1], "x")
	w, err1 := strconv.Atoi(ws)
	h, err2 := strconv.Atoi(hs)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	switch {
	case w > 0 && h == 0:
		return w, w, true
	case h > 0 && w == 0:
		return h, h, true
	case w > 0 && h > 0:
		return w, h, true
	}
	return 0, 0, false
}

func (c *Client) ResolveImageDetails(tok *cover.Token, pi *cover.PotentialImage) *cover.ImageResult {
	return cover.SoftOne(tok, ServiceName, "resolve", func(ctx context.Context) (*cover.ImageResult, error) {
		if err := cover.CheckOwner(pi.Service(), ServiceName); err != nil {
			return nil, err
		}
		if w, h, ok := dimsFromURL(pi.FullImageURL); ok {
			return cover.NewImageResult(pi, w, h), nil
		}
		p := c.Prober
		if p == nil {
			p = imagesize.New(c.Fetch)
		}
		return p.Resolve(ctx, pi, nil)
	})
}

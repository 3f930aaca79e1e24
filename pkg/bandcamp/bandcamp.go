// Package bandcamp scrapes the Bandcamp album search. Result pages embed a
// small rendition of each cover hosted on bcbits.com; the size suffix in that
// URL selects the rendition, so the original is reached by rewriting it.
package bandcamp

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"Cover-Art-Go/pkg/cover"
	"Cover-Art-Go/pkg/fetch"
	"Cover-Art-Go/pkg/imagesize"
	"Cover-Art-Go/pkg/scrape"
)

// ServiceName is the name stamped on every candidate.
const ServiceName = "Bandcamp"

const baseURL = "https://bandcamp.com"

var (
	// bcbitsPattern splits an image URL into its base, size suffix and
	// extension, e.g. https://f4.bcbits.com/img/a123_10.jpg.
	bcbitsPattern = regexp.MustCompile(`(?i)^(https://[^/]+\.bcbits\.com/img/[a-zA-Z0-9]+)(_[0-9]+)?\.(jpg|png|gif|jpeg)$`)
	queryCleaner  = regexp.MustCompile(`[^\w\s-]`)

	noResults   = regexp.MustCompile(`<div\b[^>]*\bid\s*=\s*["']search-no-results["']`)
	resultBlock = scrape.ClassTag("li", "searchresult")
	itemType    = regexp.MustCompile(`<div\b[^>]*\bclass\s*=\s*["']itemtype["'][^>]*>\s*ALBUM\s*</div>`)
	headingTag  = scrape.ClassTag("div", "heading")
	subheadTag  = scrape.ClassTag("div", "subhead")
	artTag      = scrape.ClassTag("a", "artcont")
	anchorTag   = regexp.MustCompile(`<a\b[^>]*>`)
	imgTag      = regexp.MustCompile(`<img\b[^>]*>`)
)

// Client reads bandcamp.com search results. BaseURL overrides the site root
// in tests.
type Client struct {
	Fetch   *fetch.Client
	Prober  *imagesize.Prober
	BaseURL string
}

var _ cover.Adapter = (*Client)(nil)

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

// ImageURLs derives the 150px thumbnail and the original upload from any
// rendition of a bcbits image.
func ImageURLs(src string) (thumb, full string, ok bool) {
	m := bcbitsPattern.FindStringSubmatch(src)
	if m == nil {
		return "", "", false
	}
	return m[1] + "_7." + m[3], m[1] + "_0." + m[3], true
}

func clean(s string) string {
	return strings.Join(strings.Fields(queryCleaner.ReplaceAllString(s, " ")), " ")
}

func (c *Client) SearchAlbumCandidates(tok *cover.Token, q cover.SearchQuery) []cover.AlbumCandidate {
	return cover.SoftList(tok, ServiceName, "search", func(ctx context.Context) ([]cover.AlbumCandidate, error) {
		return c.search(ctx, q)
	})
}

func (c *Client) search(ctx context.Context, q cover.SearchQuery) ([]cover.AlbumCandidate, error) {
	var parts []string
	for _, p := range []string{clean(q.Album), clean(q.Artist)} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return nil, &cover.InputError{Msg: "artist and album are effectively empty"}
	}
	u := c.base() + "/search?q=" + url.QueryEscape(strings.Join(parts, " ")) + "&item_type=a"
	page, err := c.fetcher().Page(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	return c.parseSearch(u, page.Body)
}

func (c *Client) parseSearch(u, body string) ([]cover.AlbumCandidate, error) {
	if noResults.MatchString(body) {
		return nil, nil
	}
	var blocks []string
	for _, b := range scrape.Blocks(body, resultBlock) {
		if itemType.MatchString(b) {
			blocks = append(blocks, b)
		}
	}
	if len(blocks) == 0 {
		return nil, &cover.DataError{URL: u, Msg: "no album results and no empty-result marker, layout may have changed"}
	}

	var (
		out      []cover.AlbumCandidate
		seen     = make(map[string]bool)
		anyImage bool
	)
	for _, b := range blocks {
		_, heading, ok := scrape.Element(b, headingTag, "div")
		if !ok {
			continue
		}
		link, title, ok := scrape.Element(heading, anchorTag, "a")
		if !ok {
			continue
		}
		page := c.albumURL(scrape.Attr(link, "href"))
		if page == "" || seen[page] {
			continue
		}
		artist := ""
		if _, sub, ok := scrape.Element(b, subheadTag, "div"); ok {
			artist = scrape.Text(sub)
			if len(artist) > 3 && strings.EqualFold(artist[:3], "by ") {
				artist = strings.TrimSpace(artist[3:])
			}
		}
		album := scrape.Text(title)
		extra := map[string]any{
			"search_result_artist_text": artist,
			"search_result_album_text":  album,
		}
		if _, art, ok := scrape.Element(b, artTag, "a"); ok {
			if img := imgTag.FindString(art); img != "" {
				anyImage = true
				if thumb, full, ok := ImageURLs(scrape.Attr(img, "src")); ok {
					extra["direct_thumbnail_url"] = thumb
					extra["direct_full_image_url"] = full
				}
			}
		}
		seen[page] = true
		out = append(out, cover.AlbumCandidate{
			Identifier:    page,
			AlbumName:     album,
			ArtistName:    artist,
			SourceService: ServiceName,
			ExtraData:     extra,
		})
	}
	switch {
	case len(out) == 0:
		return nil, &cover.DataError{URL: u, Msg: "album results found but none could be parsed"}
	case !anyImage:
		return nil, &cover.DataError{URL: u, Msg: "no result carried artwork, layout may have changed"}
	}
	return out, nil
}

// albumURL drops the query and fragment of a result link and makes it
// absolute.
func (c *Client) albumURL(href string) string {
	if href == "" {
		return ""
	}
	p, err := url.Parse(href)
	if err != nil {
		return ""
	}
	p.RawQuery, p.Fragment = "", ""
	if p.Scheme == "" || p.Host == "" {
		base, _ := url.Parse(c.base())
		p = base.ResolveReference(p)
	}
	return p.String()
}

func (c *Client) ListPotentialImages(tok *cover.Token, cand *cover.AlbumCandidate) []cover.PotentialImage {
	return cover.SoftList(tok, ServiceName, "list", func(ctx context.Context) ([]cover.PotentialImage, error) {
		if err := cover.CheckOwner(cand.SourceService, ServiceName); err != nil {
			return nil, err
		}
		thumb, full := cand.Extra("direct_thumbnail_url"), cand.Extra("direct_full_image_url")
		if thumb == "" || full == "" {
			return nil, &cover.DataError{URL: cand.Identifier, Msg: "candidate has no artwork urls"}
		}
		return []cover.PotentialImage{{
			Identifier:   full,
			ThumbnailURL: thumb,
			FullImageURL: full,
			Source:       cand,
			IsFront:      true,
			ExtraData:    map[string]any{"album_page_url": cand.Identifier},
		}}, nil
	})
}

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

// Package vgmdb scrapes VGMdb, the video game music database. Searches run
// on the album title only because the site does not index artists in its
// quick search.
package vgmdb

import (
	"context"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"Cover-Art-Go/pkg/cover"
	"Cover-Art-Go/pkg/fetch"
	"Cover-Art-Go/pkg/imagesize"
	"Cover-Art-Go/pkg/scrape"
)

// ServiceName is the name stamped on every candidate.
const ServiceName = "VGMdb"

const baseURL = "https://vgmdb.net"

var (
	mediaPattern   = regexp.MustCompile(`(?i)^(https?://)(medium-)?(media\.vgm\.io/albums/.*)$`)
	albumPath      = regexp.MustCompile(`^/album/(\d+)`)
	queryCleaner   = regexp.MustCompile(`[^\w\s\-.:()]`)
	titleSuffix    = regexp.MustCompile(`(?i)\s*(\[[^\]]+\]\s*)?-\s*VGMdb$`)
	bgImage        = regexp.MustCompile(`background-image:\s*url\(['"]?([^'")]+)['"]?\)`)
	noAlbums       = regexp.MustCompile(`<h3\b[^>]*class\s*=\s*["']label["'][^>]*>\s*0 album results for`)
	rowTag         = regexp.MustCompile(`<tr\b[^>]*>`)
	albumTitleLink = scrape.ClassTag("a", "albumtitle")
	englishTitle   = regexp.MustCompile(`<span\b[^>]*class\s*=\s*["']albumtitle["'][^>]*lang\s*=\s*["']en["'][^>]*>`)
	pageTitle      = regexp.MustCompile(`<title>`)
	galleryDiv     = regexp.MustCompile(`<div\b[^>]*\bid\s*=\s*["']cover_gallery["'][^>]*>`)
	galleryLink    = scrape.ClassTag("a", "highslide")
	labelTag       = scrape.ClassTag("h4", "label")
	coverArtDiv    = regexp.MustCompile(`<div\b[^>]*\bid\s*=\s*["']coverart["'][^>]*>`)
)

// Client reads vgmdb.net pages. BaseURL overrides the site root in tests.
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

// ImageURLs maps either rendition of a media.vgm.io image to the
// medium-sized thumbnail and the full image.
func ImageURLs(u string) (thumb, full string, ok bool) {
	u, _, _ = strings.Cut(u, "?")
	m := mediaPattern.FindStringSubmatch(u)
	if m == nil {
		return "", "", false
	}
	return m[1] + "medium-" + m[3], m[1] + m[3], true
}

func (c *Client) SearchAlbumCandidates(tok *cover.Token, q cover.SearchQuery) []cover.AlbumCandidate {
	return cover.SoftList(tok, ServiceName, "search", func(ctx context.Context) ([]cover.AlbumCandidate, error) {
		return c.search(ctx, q)
	})
}

func (c *Client) search(ctx context.Context, q cover.SearchQuery) ([]cover.AlbumCandidate, error) {
	query := strings.Join(strings.Fields(queryCleaner.ReplaceAllString(q.Album, " ")), " ")
	if query == "" {
		return nil, &cover.InputError{Msg: "album is effectively empty"}
	}
	u := c.base() + "/search?q=" + url.QueryEscape(query) + "&type="
	page, err := c.fetcher().Page(ctx, u, nil)
	if err != nil {
		return nil, err
	}

	// A unique hit redirects straight to the album page.
	if final, err := url.Parse(page.FinalURL); err == nil {
		if m := albumPath.FindStringSubmatch(final.Path); m != nil {
			title := redirectedTitle(page.Body)
			if title == "" {
				title = q.Album
			}
			return []cover.AlbumCandidate{{
				Identifier:    page.FinalURL,
				AlbumName:     title,
				ArtistName:    q.Artist,
				SourceService: ServiceName,
				ExtraData:     map[string]any{"vgmdb_id": m[1], "search_redirected": true},
			}}, nil
		}
	}
	if noAlbums.MatchString(page.Body) {
		return nil, nil
	}

	base, _ := url.Parse(c.base())
	var out []cover.AlbumCandidate
	seen := make(map[string]bool)
	for _, row := range scrape.Blocks(page.Body, rowTag) {
		link := albumTitleLink.FindString(row)
		if link == "" {
			continue
		}
		href, title := scrape.Attr(link, "href"), strings.TrimSpace(scrape.Attr(link, "title"))
		if href == "" || title == "" {
			continue
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref).String()
		if seen[abs] {
			continue
		}
		seen[abs] = true
		out = append(out, cover.AlbumCandidate{
			Identifier:    abs,
			AlbumName:     title,
			ArtistName:    q.Artist,
			SourceService: ServiceName,
			ExtraData:     map[string]any{"search_result_album_text": title},
		})
	}
	return out, nil
}

// redirectedTitle reads the English album title from an album page, falling
// back to the document title without the site suffix.
func redirectedTitle(body string) string {
	if _, inner, ok := scrape.Element(body, englishTitle, "span"); ok {
		if t := scrape.Text(inner); t != "" {
			return t
		}
	}
	if _, inner, ok := scrape.Element(body, pageTitle, "title"); ok {
		return strings.TrimSpace(titleSuffix.ReplaceAllString(scrape.Text(inner), ""))
	}
	return ""
}

func (c *Client) ListPotentialImages(tok *cover.Token, cand *cover.AlbumCandidate) []cover.PotentialImage {
	return cover.SoftList(tok, ServiceName, "list", func(ctx context.Context) ([]cover.PotentialImage, error) {
		if err := cover.CheckOwner(cand.SourceService, ServiceName); err != nil {
			return nil, err
		}
		page, err := c.fetcher().Page(ctx, cand.Identifier, nil)
		if err != nil {
			return nil, err
		}
		return albumImages(cand, page.FinalURL, page.Body), nil
	})
}

func albumImages(cand *cover.AlbumCandidate, pageURL, body string) []cover.PotentialImage {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	abs := func(ref string) string {
		r, err := url.Parse(strings.TrimSpace(ref))
		if err != nil {
			return ""
		}
		return base.ResolveReference(r).String()
	}

	var out []cover.PotentialImage
	seen := make(map[string]bool)
	add := func(src, label string, front bool) {
		thumb, full, ok := ImageURLs(src)
		if !ok || seen[full] {
			return
		}
		seen[full] = true
		out = append(out, cover.PotentialImage{
			Identifier:   full,
			ThumbnailURL: thumb,
			FullImageURL: full,
			Source:       cand,
			IsFront:      front,
			OriginalType: label,
		})
	}

	if loc := galleryDiv.FindStringIndex(body); loc != nil {
		gallery := body[loc[0]:]
		if end := coverArtDiv.FindStringIndex(gallery); end != nil {
			gallery = gallery[:end[0]]
		}
		for _, item := range scrape.Blocks(gallery, galleryLink) {
			href := scrape.Attr(item, "href")
			if href == "" {
				continue
			}
			label := ""
			if _, inner, ok := scrape.Element(item, labelTag, "h4"); ok {
				label = scrape.Text(inner)
			}
			l := strings.ToLower(label)
			add(abs(href), label, strings.HasPrefix(l, "front") || strings.HasPrefix(l, "cover"))
		}
	}
	if len(out) == 0 {
		if tag := coverArtDiv.FindString(body); tag != "" {
			if m := bgImage.FindStringSubmatch(scrape.Attr(tag, "style")); m != nil {
				add(abs(m[1]), "Front", true)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].IsFront && !out[j].IsFront })
	return out
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

// Package discogs implements the cover.Adapter interface on top of the
// Discogs database API. A personal access token is required; without one the
// adapter reports an input error and returns nothing.
package discogs

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"Cover-Art-Go/pkg/cover"
	"Cover-Art-Go/pkg/fetch"
	"Cover-Art-Go/pkg/imagesize"
)

// ServiceName is the name stamped on every candidate.
const ServiceName = "Discogs"

const (
	apiURL = "https://api.discogs.com"
	// maxResults bounds how many search hits are turned into candidates.
	maxResults = 20
)

// Client calls the Discogs API with a user token.
type Client struct {
	Fetch   *fetch.Client
	Prober  *imagesize.Prober
	Token   string
	BaseURL string
}

var _ cover.Adapter = (*Client)(nil)

// New returns a Client authenticating with token.
func New(f *fetch.Client, token string) *Client {
	return &Client{Fetch: f, Prober: imagesize.New(f), Token: token}
}

func (c *Client) Name() string { return ServiceName }

func (c *Client) base() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return apiURL
}

func (c *Client) fetcher() *fetch.Client {
	if c.Fetch == nil {
		return &fetch.Client{}
	}
	return c.Fetch
}

func (c *Client) header() (http.Header, error) {
	if strings.TrimSpace(c.Token) == "" {
		return nil, &cover.InputError{Msg: "discogs requires a personal access token"}
	}
	h := http.Header{}
	h.Set("Authorization", "Discogs token="+c.Token)
	return h, nil
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

type searchResult struct {
	ID      int64  `json:"id"`
	Type    string `json:"type"`
	Title   string `json:"title"`
	Year    string `json:"year"`
	Country string `json:"country"`
	Thumb   string `json:"thumb"`
}

type imageInfo struct {
	Type   string `json:"type"`
	URI    string `json:"uri"`
	URI150 string `json:"uri150"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type releaseResponse struct {
	ID          int64       `json:"id"`
	MainRelease int64       `json:"main_release"`
	Images      []imageInfo `json:"images"`
}

func (c *Client) SearchAlbumCandidates(tok *cover.Token, q cover.SearchQuery) []cover.AlbumCandidate {
	return cover.SoftList(tok, ServiceName, "search", func(ctx context.Context) ([]cover.AlbumCandidate, error) {
		return c.search(ctx, q)
	})
}

func (c *Client) search(ctx context.Context, q cover.SearchQuery) ([]cover.AlbumCandidate, error) {
	h, err := c.header()
	if err != nil {
		return nil, err
	}
	if q.Empty() {
		return nil, &cover.InputError{Msg: "artist and album are both empty"}
	}
	params := url.Values{
		"release_title": {q.Album},
		"type":          {"release"},
		"sort":          {"score"},
		"per_page":      {strconv.Itoa(maxResults)},
	}
	if q.Artist != "" {
		params.Set("artist", q.Artist)
	}
	res, err := c.query(ctx, params, h)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		fallback := q.Album
		if q.Artist != "" {
			fallback = q.Artist + " - " + q.Album
		}
		if strings.TrimSpace(fallback) == "" {
			return nil, nil
		}
		params = url.Values{
			"q":        {fallback},
			"type":     {"release"},
			"sort":     {"score"},
			"per_page": {strconv.Itoa(maxResults)},
		}
		if res, err = c.query(ctx, params, h); err != nil {
			return nil, err
		}
	}
	return candidates(res, q), nil
}

func (c *Client) query(ctx context.Context, params url.Values, h http.Header) ([]searchResult, error) {
	var resp searchResponse
	if err := c.fetcher().JSON(ctx, c.base()+"/database/search?"+params.Encode(), h, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// candidates turns search hits into candidates, exact title matches first.
// Discogs titles read "Artist - Album".
func candidates(res []searchResult, q cover.SearchQuery) []cover.AlbumCandidate {
	wantAlbum := strings.ToLower(strings.TrimSpace(q.Album))
	wantArtist := strings.ToLower(strings.TrimSpace(q.Artist))
	var exact, other []cover.AlbumCandidate
	seen := make(map[string]bool)
	for i, r := range res {
		if i >= maxResults {
			break
		}
		if r.ID == 0 || r.Title == "" {
			continue
		}
		kind := strings.ToLower(r.Type)
		if kind != "release" && kind != "master" {
			continue
		}
		id := kind + "/" + strconv.FormatInt(r.ID, 10)
		if seen[id] {
			continue
		}
		seen[id] = true
		artist, album := "", strings.TrimSpace(r.Title)
		if a, b, ok := strings.Cut(r.Title, " - "); ok {
			artist, album = strings.TrimSpace(a), strings.TrimSpace(b)
		}
		cand := cover.AlbumCandidate{
			Identifier:    id,
			AlbumName:     album,
			ArtistName:    artist,
			SourceService: ServiceName,
			ExtraData: map[string]any{
				"discogs_title": r.Title,
				"year":          r.Year,
				"country":       r.Country,
			},
		}
		albumMatch := strings.ToLower(album) == wantAlbum
		artistMatch := wantArtist == "" || strings.ToLower(artist) == wantArtist
		if albumMatch && artistMatch {
			exact = append(exact, cand)
		} else {
			other = append(other, cand)
		}
	}
	return append(exact, other...)
}

func (c *Client) ListPotentialImages(tok *cover.Token, cand *cover.AlbumCandidate) []cover.PotentialImage {
	return cover.SoftList(tok, ServiceName, "list", func(ctx context.Context) ([]cover.PotentialImage, error) {
		if err := cover.CheckOwner(cand.SourceService, ServiceName); err != nil {
			return nil, err
		}
		h, err := c.header()
		if err != nil {
			return nil, err
		}
		kind, id, ok := strings.Cut(cand.Identifier, "/")
		if !ok || id == "" {
			return nil, &cover.InputError{Msg: "invalid discogs identifier " + cand.Identifier}
		}
		var rel releaseResponse
		switch kind {
		case "release":
			err = c.fetcher().JSON(ctx, c.base()+"/releases/"+id, h, &rel)
		case "master":
			var master releaseResponse
			if err = c.fetcher().JSON(ctx, c.base()+"/masters/"+id, h, &master); err != nil {
				return nil, err
			}
			if master.MainRelease == 0 {
				return nil, nil
			}
			err = c.fetcher().JSON(ctx, fmt.Sprintf("%s/releases/%d", c.base(), master.MainRelease), h, &rel)
		default:
			return nil, &cover.InputError{Msg: "unknown discogs item type " + kind}
		}
		if err != nil {
			return nil, err
		}
		return imagesOf(cand, rel.Images), nil
	})
}

// imagesOf orders images primary first, then by area.
func imagesOf(cand *cover.AlbumCandidate, images []imageInfo) []cover.PotentialImage {
	sorted := append([]imageInfo(nil), images...)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := sorted[i].Type == "primary", sorted[j].Type == "primary"
		if pi != pj {
			return pi
		}
		return sorted[i].Width*sorted[i].Height > sorted[j].Width*sorted[j].Height
	})
	var out []cover.PotentialImage
	for _, img := range sorted {
		if img.URI == "" || img.URI150 == "" {
			continue
		}
		extra := map[string]any{"discogs_image_type": img.Type}
		if img.Width > 0 && img.Height > 0 {
			extra["width"] = img.Width
			extra["height"] = img.Height
		}
		out = append(out, cover.PotentialImage{
			Identifier:   img.URI,
			ThumbnailURL: img.URI150,
			FullImageURL: img.URI,
			Source:       cand,
			IsFront:      strings.EqualFold(img.Type, "primary"),
			OriginalType: img.Type,
			ExtraData:    extra,
		})
	}
	return out
}

func (c *Client) ResolveImageDetails(tok *cover.Token, pi *cover.PotentialImage) *cover.ImageResult {
	return cover.SoftOne(tok, ServiceName, "resolve", func(ctx context.Context) (*cover.ImageResult, error) {
		if err := cover.CheckOwner(pi.Service(), ServiceName); err != nil {
			return nil, err
		}
		w, _ := pi.ExtraData["width"].(int)
		h, _ := pi.ExtraData["height"].(int)
		if w > 0 && h > 0 {
			return cover.NewImageResult(pi, w, h), nil
		}
		p := c.Prober
		if p == nil {
			p = imagesize.New(c.Fetch)
		}
		return p.Resolve(ctx, pi, nil)
	})
}

// Package spotify wraps the official Spotify client library to search albums
// and expose their artwork as a cover.Adapter. Authentication uses the
// client credentials flow, so only an application ID and secret are needed.
//
// The wrapped library does not accept a context. Calls run on their own
// goroutine and are abandoned when the token fires.
package spotify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/zmb3/spotify"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"Cover-Art-Go/pkg/cover"
)

// ServiceName is the name stamped on every candidate.
const ServiceName = "Spotify"

// minThumb is the smallest edge accepted as a thumbnail when a larger
// rendition exists.
const minThumb = 300

// searcher defines the subset of the spotify.Client used by this package.
// It allows the concrete client to be replaced in tests.
type searcher interface {
	Search(query string, t spotify.SearchType) (*spotify.SearchResult, error)
}

// TokenStore caches application tokens between runs. *db.DB implements it.
type TokenStore interface {
	GetToken(ctx context.Context, service string) (*oauth2.Token, error)
	SaveToken(ctx context.Context, service string, token *oauth2.Token) error
}

// Client searches the Spotify catalog. The first search authenticates; a
// failed authentication is retried on the next search.
type Client struct {
	clientID     string
	clientSecret string
	tokenURL     string

	store TokenStore

	mu     sync.Mutex
	client searcher
}

var _ cover.Adapter = (*Client)(nil)

// New returns a Client for the given application credentials.
func New(clientID, clientSecret string) *Client {
	return &Client{clientID: clientID, clientSecret: clientSecret, tokenURL: spotify.TokenURL}
}

// WithTokenStore makes the client reuse unexpired tokens from store.
func (c *Client) WithTokenStore(store TokenStore) *Client {
	c.store = store
	return c
}

func (c *Client) Name() string { return ServiceName }

// connect returns the authenticated library client, logging in on first use.
func (c *Client) connect(ctx context.Context) (searcher, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	if c.clientID == "" || c.clientSecret == "" {
		return nil, &cover.InputError{Msg: "spotify requires a client id and secret"}
	}
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}
	sc := spotify.Authenticator{}.NewClient(token)
	c.client = &sc
	return c.client, nil
}

func (c *Client) token(ctx context.Context) (*oauth2.Token, error) {
	if c.store != nil {
		if t, err := c.store.GetToken(ctx, ServiceName); err == nil && t.Valid() {
			return t, nil
		}
	}
	config := &clientcredentials.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		TokenURL:     c.tokenURL,
	}
	t, err := config.Token(ctx)
	if err != nil {
		return nil, &cover.NetworkError{URL: c.tokenURL, Err: err}
	}
	if c.store != nil {
		if err := c.store.SaveToken(ctx, ServiceName, t); err != nil {
			logrus.WithError(err).WithField("service", ServiceName).Warn("could not cache token")
		}
	}
	return t, nil
}

func (c *Client) SearchAlbumCandidates(tok *cover.Token, q cover.SearchQuery) []cover.AlbumCandidate {
	return cover.SoftList(tok, ServiceName, "search", func(ctx context.Context) ([]cover.AlbumCandidate, error) {
		return c.search(ctx, q)
	})
}

// Query renders the field filter syntax of the search endpoint.
func Query(q cover.SearchQuery) string {
	var parts []string
	if a := strings.TrimSpace(q.Album); a != "" {
		parts = append(parts, "album:"+a)
	}
	if a := strings.TrimSpace(q.Artist); a != "" {
		parts = append(parts, "artist:"+a)
	}
	return strings.Join(parts, " ")
}

func (c *Client) search(ctx context.Context, q cover.SearchQuery) ([]cover.AlbumCandidate, error) {
	query := Query(q)
	if query == "" {
		return nil, &cover.InputError{Msg: "artist and album are both empty"}
	}
	sc, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	res, err := call(ctx, func() (*spotify.SearchResult, error) {
		return sc.Search(query, spotify.SearchTypeAlbum)
	})
	if err != nil {
		return nil, err
	}
	if res == nil || res.Albums == nil {
		return nil, nil
	}
	out := make([]cover.AlbumCandidate, 0, len(res.Albums.Albums))
	for _, a := range res.Albums.Albums {
		if a.ID == "" || len(a.Images) == 0 {
			continue
		}
		names := make([]string, 0, len(a.Artists))
		for _, ar := range a.Artists {
			names = append(names, ar.Name)
		}
		images := make([]map[string]any, 0, len(a.Images))
		for _, img := range a.Images {
			images = append(images, map[string]any{"url": img.URL, "width": img.Width, "height": img.Height})
		}
		out = append(out, cover.AlbumCandidate{
			Identifier:    string(a.ID),
			AlbumName:     a.Name,
			ArtistName:    strings.Join(names, ", "),
			SourceService: ServiceName,
			ExtraData: map[string]any{
				"album_type":  a.AlbumType,
				"spotify_url": a.ExternalURLs["spotify"],
				"images":      images,
			},
		})
	}
	return out, nil
}

// call runs fn off the caller's goroutine so a cancelled ctx returns at once.
func call(ctx context.Context, fn func() (*spotify.SearchResult, error)) (*spotify.SearchResult, error) {
	type result struct {
		res *spotify.SearchResult
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("spotify client panic: %v", r)}
			}
		}()
		res, err := fn()
		ch <- result{res, err}
	}()
	select {
	case r := <-ch:
		return r.res, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type rendition struct {
	url    string
	width  int
	height int
}

func renditions(cand *cover.AlbumCandidate) []rendition {
	raw, _ := cand.ExtraData["images"].([]map[string]any)
	out := make([]rendition, 0, len(raw))
	for _, m := range raw {
		u, _ := m["url"].(string)
		w, _ := m["width"].(int)
		h, _ := m["height"].(int)
		if u != "" {
			out = append(out, rendition{u, w, h})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].width*out[i].height > out[j].width*out[j].height })
	return out
}

// ListPotentialImages returns the album cover once: the largest rendition
// as the full image and the smallest one of at least 300px as thumbnail.
func (c *Client) ListPotentialImages(tok *cover.Token, cand *cover.AlbumCandidate) []cover.PotentialImage {
	return cover.SoftList(tok, ServiceName, "list", func(ctx context.Context) ([]cover.PotentialImage, error) {
		if err := cover.CheckOwner(cand.SourceService, ServiceName); err != nil {
			return nil, err
		}
		rs := renditions(cand)
		if len(rs) == 0 {
			return nil, nil
		}
		full, thumb := rs[0], rs[0]
		for _, r := range rs[1:] {
			if r.width >= minThumb && r.height >= minThumb {
				thumb = r
			}
		}
		return []cover.PotentialImage{{
			Identifier:   full.url,
			ThumbnailURL: thumb.url,
			FullImageURL: full.url,
			Source:       cand,
			IsFront:      true,
			OriginalType: "Front",
			ExtraData:    map[string]any{"width": full.width, "height": full.height},
		}}, nil
	})
}

// ResolveImageDetails trusts the dimensions reported by the API.
func (c *Client) ResolveImageDetails(tok *cover.Token, pi *cover.PotentialImage) *cover.ImageResult {
	return cover.SoftOne(tok, ServiceName, "resolve", func(ctx context.Context) (*cover.ImageResult, error) {
		if err := cover.CheckOwner(pi.Service(), ServiceName); err != nil {
			return nil, err
		}
		w, _ := pi.ExtraData["width"].(int)
		h, _ := pi.ExtraData["height"].(int)
		if w <= 0 || h <= 0 {
			return nil, &cover.DataError{URL: pi.FullImageURL, Msg: "image has no reported dimensions"}
		}
		return cover.NewImageResult(pi, w, h), nil
	})
}

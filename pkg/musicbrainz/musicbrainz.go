// Package musicbrainz finds releases through the MusicBrainz XML web service
// and lists their artwork from the Cover Art Archive.
//
// MusicBrainz asks every client to stay below one request per second and to
// identify itself with a descriptive User-Agent, so the Client throttles its
// searches and is safe for concurrent use.
package musicbrainz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pborman/uuid"
	caa "gopkg.in/mineo/gocaa.v1"

	"Cover-Art-Go/pkg/cover"
	"Cover-Art-Go/pkg/fetch"
	"Cover-Art-Go/pkg/imagesize"
)

// ServiceName is the name stamped on every candidate.
const ServiceName = "MusicBrainz"

const (
	releaseEndpoint = "%s/ws/2/release/"
	searchLimit     = 25
	preferredTypes  = "Album OR EP OR Single"
)

// CAAClient lists the images the Cover Art Archive holds for a release.
type CAAClient interface {
	GetReleaseInfo(mbid uuid.UUID) (*caa.CoverArtInfo, error)
}

// Client searches MusicBrainz releases. Use New to get a fully configured
// value.
type Client struct {
	fetch  *fetch.Client
	prober *imagesize.Prober
	caa    CAAClient

	host      string
	userAgent string

	mu    sync.Mutex
	delay time.Duration
	next  time.Time
}

var _ cover.Adapter = (*Client)(nil)

// Options configure a Client.
type Options struct {
	// UserAgent identifies the application as "Name/Version ( contact )".
	UserAgent string
	// Host is the web service root. Empty means https://musicbrainz.org.
	Host string
	// Delay is the minimum time between two search requests. Zero means one
	// second.
	Delay time.Duration
	// CAA overrides the Cover Art Archive client.
	CAA CAAClient
}

// New returns a Client. f is used for searches and image probes; it is copied
// so the MusicBrainz User-Agent does not leak to other services.
func New(f *fetch.Client, opts Options) *Client {
	var own fetch.Client
	if f != nil {
		own = *f
	}
	if opts.UserAgent != "" {
		own.UserAgent = opts.UserAgent
	}
	if opts.Host == "" {
		opts.Host = "https://musicbrainz.org"
	}
	if opts.Delay == 0 {
		opts.Delay = time.Second
	}
	if opts.CAA == nil {
		opts.CAA = caa.NewCAAClient(own.UserAgent)
	}
	return &Client{
		fetch:     &own,
		prober:    imagesize.New(&own),
		caa:       opts.CAA,
		host:      strings.TrimRight(opts.Host, "/"),
		userAgent: own.UserAgent,
		delay:     opts.Delay,
	}
}

func (c *Client) Name() string { return ServiceName }

// wait blocks until the next request slot or until ctx is done.
func (c *Client) wait(ctx context.Context) error {
	c.mu.Lock()
	now := time.Now()
	at := c.next
	if at.Before(now) {
		at = now
	}
	c.next = at.Add(c.delay)
	c.mu.Unlock()

	d := time.Until(at)
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// The following structures only decode what we need from the XML response.
type mbReleaseMetadata struct {
	ReleaseList mbReleaseList `xml:"release-list"`
}

type mbReleaseList struct {
	Releases []mbRelease `xml:"release"`
}

type mbRelease struct {
	ID           string         `xml:"id,attr"`
	Score        int            `xml:"score,attr"`
	Title        string         `xml:"title"`
	Status       string         `xml:"status"`
	Date         string         `xml:"date"`
	Country      string         `xml:"country"`
	Credits      []mbNameCredit `xml:"artist-credit>name-credit"`
	ReleaseGroup mbReleaseGroup `xml:"release-group"`
}

type mbNameCredit struct {
	JoinPhrase string `xml:"joinphrase,attr"`
	Name       string `xml:"name"`
	Artist     struct {
		Name string `xml:"name"`
	} `xml:"artist"`
}

type mbReleaseGroup struct {
	ID          string `xml:"id,attr"`
	Type        string `xml:"type,attr"`
	Title       string `xml:"title"`
	PrimaryType string `xml:"primary-type"`
}

func (r mbRelease) artist() string {
	var b strings.Builder
	for _, nc := range r.Credits {
		name := nc.Name
		if name == "" {
			name = nc.Artist.Name
		}
		b.WriteString(name)
		b.WriteString(nc.JoinPhrase)
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		return s
	}
	return "Unknown Artist"
}

func (r mbRelease) primaryType() string {
	if r.ReleaseGroup.PrimaryType != "" {
		return r.ReleaseGroup.PrimaryType
	}
	return r.ReleaseGroup.Type
}

func typeRank(t string) int {
	switch t {
	case "Album":
		return 0
	case "EP":
		return 1
	case "Single":
		return 2
	}
	return 3
}

var luceneSpecial = strings.NewReplacer(
	`\`, `\\`, `+`, `\+`, `-`, `\-`, `&`, `\&`, `|`, `\|`, `!`, `\!`, `(`, `\(`, `)`, `\)`,
	`{`, `\{`, `}`, `\}`, `[`, `\[`, `]`, `\]`, `^`, `\^`, `"`, `\"`, `~`, `\~`, `*`, `\*`,
	`?`, `\?`, `:`, `\:`, `/`, `\/`,
)

type field struct{ name, value string }

// buildQuery renders a Lucene query. Strict queries require every field.
func buildQuery(fields []field, strict bool) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			continue
		}
		v := f.value
		if f.name != "primarytype" {
			v = luceneSpecial.Replace(strings.ToLower(v))
		}
		parts = append(parts, fmt.Sprintf("%s:(%s)", f.name, v))
	}
	sep := " "
	if strict {
		sep = " AND "
	}
	return strings.Join(parts, sep)
}

// searchAttempts widens the query step by step: exact official releases,
// then official albums, EPs and singles, then anything.
func searchAttempts(q cover.SearchQuery) []string {
	base := []field{{"release", q.Album}, {"artist", q.Artist}}
	official := append(append([]field(nil), base...), field{"status", "official"})
	typed := append(append([]field(nil), official...), field{"primarytype", preferredTypes})
	return []string{
		buildQuery(official, true),
		buildQuery(typed, false),
		buildQuery(base, false),
	}
}

func (c *Client) SearchAlbumCandidates(tok *cover.Token, q cover.SearchQuery) []cover.AlbumCandidate {
	return cover.SoftList(tok, ServiceName, "search", func(ctx context.Context) ([]cover.AlbumCandidate, error) {
		return c.search(ctx, q)
	})
}

func (c *Client) search(ctx context.Context, q cover.SearchQuery) ([]cover.AlbumCandidate, error) {
	if q.Empty() {
		return nil, &cover.InputError{Msg: "artist and album are both empty"}
	}
	var releases []mbRelease
	for _, query := range searchAttempts(q) {
		rs, err := c.searchReleases(ctx, query)
		if err != nil {
			return nil, err
		}
		if len(rs) > 0 {
			releases = rs
			break
		}
	}
	sort.SliceStable(releases, func(i, j int) bool {
		if releases[i].Score != releases[j].Score {
			return releases[i].Score > releases[j].Score
		}
		return typeRank(releases[i].primaryType()) < typeRank(releases[j].primaryType())
	})
	out := make([]cover.AlbumCandidate, 0, len(releases))
	for _, r := range releases {
		if r.ID == "" {
			continue
		}
		out = append(out, cover.AlbumCandidate{
			Identifier:    r.ID,
			AlbumName:     r.Title,
			ArtistName:    r.artist(),
			SourceService: ServiceName,
			ExtraData: map[string]any{
				"release_group_id":           r.ReleaseGroup.ID,
				"release_group_primary_type": r.primaryType(),
				"release_date":               r.Date,
				"release_country":            r.Country,
				"release_status":             r.Status,
				"api_score":                  r.Score,
			},
		})
	}
	return out, nil
}

func (c *Client) searchReleases(ctx context.Context, query string) ([]mbRelease, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	params := url.Values{
		"query": {query},
		"limit": {strconv.Itoa(searchLimit)},
	}
	u := fmt.Sprintf(releaseEndpoint, c.host) + "?" + params.Encode()
	var root mbReleaseMetadata
	if err := c.fetch.XML(ctx, u, nil, &root); err != nil {
		return nil, err
	}
	return root.ReleaseList.Releases, nil
}

// releaseInfo calls the Cover Art Archive off the caller's goroutine because
// the library takes no context.
func (c *Client) releaseInfo(ctx context.Context, mbid uuid.UUID) (*caa.CoverArtInfo, error) {
	type result struct {
		info *caa.CoverArtInfo
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: &cover.NetworkError{URL: "coverartarchive.org", Err: fmt.Errorf("%v", r)}}
			}
		}()
		info, err := c.caa.GetReleaseInfo(mbid)
		ch <- result{info, err}
	}()
	select {
	case r := <-ch:
		return r.info, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) ListPotentialImages(tok *cover.Token, cand *cover.AlbumCandidate) []cover.PotentialImage {
	return cover.SoftList(tok, ServiceName, "list", func(ctx context.Context) ([]cover.PotentialImage, error) {
		if err := cover.CheckOwner(cand.SourceService, ServiceName); err != nil {
			return nil, err
		}
		mbid := caa.StringToUUID(cand.Identifier)
		if mbid == nil {
			return nil, &cover.InputError{Msg: "not a release id: " + cand.Identifier}
		}
		info, err := c.releaseInfo(ctx, mbid)
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && info != nil {
			// A field type drift in the archive JSON still leaves the
			// image list usable.
			err = nil
		}
		var httpErr caa.HTTPError
		if errors.As(err, &httpErr) {
			if httpErr.StatusCode == http.StatusNotFound {
				return nil, nil
			}
			return nil, &cover.APIError{URL: httpErr.URL.String(), StatusCode: httpErr.StatusCode}
		}
		if err != nil {
			return nil, err
		}
		if info == nil {
			return nil, nil
		}
		return imagesFromInfo(cand, info), nil
	})
}

// imagesFromInfo converts archive entries into potential images, fronts
// first. An entry is a front cover when it has no types or only "Front".
func imagesFromInfo(cand *cover.AlbumCandidate, info *caa.CoverArtInfo) []cover.PotentialImage {
	var out []cover.PotentialImage
	for _, img := range info.Images {
		full := httpsURL(img.Image)
		if full == "" {
			continue
		}
		front := len(img.Types) == 0 || (len(img.Types) == 1 && img.Types[0] == "Front")
		out = append(out, cover.PotentialImage{
			Identifier:   full,
			ThumbnailURL: thumbnailURL(full),
			FullImageURL: full,
			Source:       cand,
			IsFront:      front,
			OriginalType: strings.Join(img.Types, ", "),
			ExtraData:    map[string]any{"caa_types": img.Types},
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].IsFront && !out[j].IsFront })
	return out
}

func httpsURL(u string) string {
	if strings.HasPrefix(u, "http://") {
		return "https://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

// thumbnailURL maps .../<id>.jpg to the 250px rendition .../<id>-250.jpg.
func thumbnailURL(full string) string {
	ext := path.Ext(full)
	if ext == "" {
		return full
	}
	return strings.TrimSuffix(full, ext) + "-250.jpg"
}

func (c *Client) ResolveImageDetails(tok *cover.Token, pi *cover.PotentialImage) *cover.ImageResult {
	return cover.SoftOne(tok, ServiceName, "resolve", func(ctx context.Context) (*cover.ImageResult, error) {
		if err := cover.CheckOwner(pi.Service(), ServiceName); err != nil {
			return nil, err
		}
		res, err := c.prober.Resolve(ctx, pi, nil)
		if err != nil || res == nil {
			return res, err
		}
		if res.OriginalType == "" {
			res.OriginalType = "Unknown"
			if pi.IsFront {
				res.OriginalType = "Front"
			}
		}
		return res, nil
	})
}

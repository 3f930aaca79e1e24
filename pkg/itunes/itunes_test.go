package itunes

import (
	"bytes"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"Cover-Art-Go/pkg/cover"
	"Cover-Art-Go/pkg/fetch"
)

// roundTripper mocks HTTP responses for tests and records the last request.
type roundTripper struct {
	status int
	body   []byte
	last   *http.Request
}

func (rt *roundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	rt.last = r
	rec := httptest.NewRecorder()
	rec.WriteHeader(rt.status)
	rec.Write(rt.body)
	return rec.Result(), nil
}

func newClient(rt *roundTripper) *Client {
	return New(&fetch.Client{HTTP: &http.Client{Transport: rt}})
}

const searchBody = `{"resultCount":3,"results":[
 {"wrapperType":"collection","collectionType":"Album","collectionId":1441164426,"collectionName":"Abbey Road (Remastered)","artistName":"The Beatles","artworkUrl100":"http://is1-ssl.mzstatic.com/image/thumb/Music/v4/ab/cd/source/100x100bb.jpg"},
 {"wrapperType":"track","collectionId":2,"collectionName":"Something","artistName":"The Beatles","artworkUrl100":"https://x/100x100bb.jpg"},
 {"wrapperType":"collection","collectionType":"Album","collectionId":3,"collectionName":"No Art","artistName":"The Beatles"}
]}`

func TestSearchAlbumCandidates(t *testing.T) {
	rt := &roundTripper{status: http.StatusOK, body: []byte(searchBody)}
	c := newClient(rt)
	got := c.SearchAlbumCandidates(nil, cover.SearchQuery{Artist: "The Beatles", Album: "Abbey Road"})
	if len(got) != 1 {
		t.Fatalf("expected one candidate, got %+v", got)
	}
	if got[0].Identifier != "1441164426" || got[0].SourceService != ServiceName {
		t.Fatalf("unexpected candidate %+v", got[0])
	}
	q := rt.last.URL.Query()
	if q.Get("term") != "The Beatles Abbey Road" || q.Get("entity") != "album" || q.Get("limit") != "25" || q.Get("country") != "US" {
		t.Fatalf("unexpected query %v", q)
	}
}

func TestSearchFailsSoft(t *testing.T) {
	c := newClient(&roundTripper{status: http.StatusInternalServerError})
	if got := c.SearchAlbumCandidates(nil, cover.SearchQuery{Album: "x"}); len(got) != 0 {
		t.Fatalf("expected no candidates, got %+v", got)
	}
	if got := c.SearchAlbumCandidates(nil, cover.SearchQuery{}); got != nil {
		t.Fatalf("empty query must not search, got %+v", got)
	}
}

func TestArtworkURLs(t *testing.T) {
	cases := []struct{ in, thumb, full string }{
		{
			"http://is1-ssl.mzstatic.com/image/thumb/Music/v4/ab/source/100x100bb.jpg",
			"https://is1-ssl.mzstatic.com/image/thumb/Music/v4/ab/source/300x300bb.jpg",
			"https://is1-ssl.mzstatic.com/image/thumb/Music/v4/ab/source/999999999x0w-999.jpg",
		},
		{"https://example.com/cover.jpg", "https://example.com/cover.jpg", "https://example.com/cover.jpg"},
	}
	for _, tc := range cases {
		thumb, full := ArtworkURLs(tc.in)
		if thumb != tc.thumb || full != tc.full {
			t.Errorf("ArtworkURLs(%q) = %q, %q", tc.in, thumb, full)
		}
	}
}

func TestListAndResolve(t *testing.T) {
	var img bytes.Buffer
	png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 3000, 3000)))
	rt := &roundTripper{status: http.StatusOK, body: img.Bytes()}
	c := newClient(rt)

	cand := &cover.AlbumCandidate{
		Identifier:    "1",
		SourceService: ServiceName,
		AlbumName:     "Abbey Road",
		ExtraData:     map[string]any{"base_artwork_url": "https://a/b/100x100bb.jpg"},
	}
	images := c.ListPotentialImages(nil, cand)
	if len(images) != 1 || !images[0].IsFront || images[0].Source != cand {
		t.Fatalf("unexpected images %+v", images)
	}
	res := c.ResolveImageDetails(nil, &images[0])
	if res == nil || res.FullWidth != 3000 || res.AlbumName != "Abbey Road" {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.HasSuffix(rt.last.URL.Path, "999999999x0w-999.jpg") {
		t.Fatalf("probed %s", rt.last.URL)
	}
}

func TestRejectsForeignCandidate(t *testing.T) {
	c := &Client{}
	cand := &cover.AlbumCandidate{SourceService: "Discogs", ExtraData: map[string]any{"base_artwork_url": "https://a/100x100.jpg"}}
	if got := c.ListPotentialImages(nil, cand); got != nil {
		t.Fatalf("foreign candidate accepted: %+v", got)
	}
}

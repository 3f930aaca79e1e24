package lastfm

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"Cover-Art-Go/pkg/cover"
)

const searchPage = `<html><body>
<section class="album-results">
 <div class="album-result-inner">
  <img class="cover-art album-result-image" src="https://lastfm.freetls.fastly.net/i/u/300x300/2a96cbd8b46e442fc41c2b86b821562f.png" alt="">
  <h4 class="album-result-heading"><a class="link-block-target" href="/music/Boards+of+Canada/Geogaddi">Geogaddi</a></h4>
  <p class="album-result-artist"><a href="/music/Boards+of+Canada">Boards of Canada</a></p>
 </div>
 <div class="album-result-inner">
  <img class="album-result-image" src="https://lastfm.freetls.fastly.net/i/u/300x300/c6f59c1e5e7240a4c0d427abd71f3dbb.png">
  <h4 class="album-result-heading"><a class="link-block-target" href="/music/Someone/Geogaddi+Tribute">Geogaddi &amp; More</a></h4>
  <p class="album-result-artist"><a href="/music/Someone">Someone</a></p>
 </div>
 <div class="album-result-inner">
  <h4 class="album-result-heading"><a class="link-block-target" href="https://elsewhere.example/">Spam</a></h4>
 </div>
</section>
</body></html>`

func TestSearchParsesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if q := r.URL.Query().Get("q"); q != "Boards of Canada Geogaddi  Deluxe Edition" {
			http.Error(w, "unexpected query "+q, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(searchPage))
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL}
	got := c.SearchAlbumCandidates(nil, cover.SearchQuery{Artist: "Boards of Canada", Album: "Geogaddi: Deluxe-Edition."})
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %+v", got)
	}
	if got[0].AlbumName != "Geogaddi" || got[0].ArtistName != "Boards of Canada" || got[0].Identifier != "/music/Boards+of+Canada/Geogaddi" {
		t.Fatalf("unexpected first candidate %+v", got[0])
	}
	if got[1].AlbumName != "Geogaddi & More" {
		t.Fatalf("entities not decoded: %q", got[1].AlbumName)
	}
	if got[1].Extra("search_thumb_url") != "" {
		t.Fatal("placeholder image must be dropped")
	}

	images := c.ListPotentialImages(nil, &got[0])
	if len(images) != 1 {
		t.Fatalf("expected one image, got %+v", images)
	}
	if images[0].FullImageURL != "https://lastfm.freetls.fastly.net/i/u/o/2a96cbd8b46e442fc41c2b86b821562f.png" ||
		images[0].ThumbnailURL != "https://lastfm.freetls.fastly.net/i/u/174s/2a96cbd8b46e442fc41c2b86b821562f.png" {
		t.Fatalf("unexpected urls %+v", images[0])
	}
	if len(c.ListPotentialImages(nil, &got[1])) != 0 {
		t.Fatal("candidate without art must have no images")
	}
}

func TestSearchNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<p class="message">No albums found.</p>`))
	}))
	defer srv.Close()
	c := &Client{BaseURL: srv.URL}
	if got := c.SearchAlbumCandidates(nil, cover.SearchQuery{Album: "zzzz"}); len(got) != 0 {
		t.Fatalf("expected nothing, got %+v", got)
	}
}

func TestDimsFromURL(t *testing.T) {
	cases := []struct {
		in   string
		w, h int
		ok   bool
	}{
		{"https://x/i/u/300x300/a.png", 300, 300, true},
		{"https://x/i/u/500x0/a.png", 500, 500, true},
		{"https://x/i/u/0x640/a.png", 640, 640, true},
		{"https://x/i/u/o/a.png", 0, 0, false},
	}
	for _, tc := range cases {
		w, h, ok := dimsFromURL(tc.in)
		if w != tc.w || h != tc.h || ok != tc.ok {
			t.Errorf("dimsFromURL(%q) = %d, %d, %v", tc.in, w, h, ok)
		}
	}
}

func TestResolveUsesURLDimensions(t *testing.T) {
	c := &Client{}
	cand := &cover.AlbumCandidate{SourceService: ServiceName}
	pi := &cover.PotentialImage{FullImageURL: "https://x/i/u/1200x0/a.png", Source: cand}
	res := c.ResolveImageDetails(nil, pi)
	if res == nil || res.FullWidth != 1200 || res.FullHeight != 1200 {
		t.Fatalf("unexpected result %+v", res)
	}
}

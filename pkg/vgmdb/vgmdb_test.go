package vgmdb

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Cover-Art-Go/pkg/cover"
)

const resultsPage = `<html><body><table><tbody>
<tr><td>SQEX-10001</td><td>2007</td><td><a href="/album/1234" class="albumtitle album-game" title="Final Fantasy IV DS OST"><span>FF4</span></a></td></tr>
<tr><td>SQEX-10002</td><td>2008</td><td><a href="https://vgmdb.net/album/5678" class="albumtitle" title="Final Fantasy IV Celtic Moon"><span>x</span></a></td></tr>
<tr><td>dup</td><td></td><td><a href="/album/1234" class="albumtitle" title="Final Fantasy IV DS OST"></a></td></tr>
<tr><td>no title</td><td></td><td><a href="/album/9" class="albumtitle"></a></td></tr>
</tbody></table></body></html>`

const albumPage = `<html><head><title>Final Fantasy IV DS OST [SQEX-10001] - VGMdb</title></head><body>
<div id="innermain"><h1><span class="albumtitle" lang="en" style="display:inline">Final Fantasy IV <em>DS</em> OST</span></h1></div>
<div id="cover_gallery"><table><tr>
<td><a href="https://media.vgm.io/albums/12/1234/1234-back.jpg" class="highslide"><h4 class="label">Back</h4></a></td>
<td><a href="https://medium-media.vgm.io/albums/12/1234/1234-front.jpg" class="highslide"><h4 class="label">Front</h4></a></td>
<td><a href="/db/assets/other.jpg" class="highslide"><h4 class="label">Obi</h4></a></td>
</tr></table></div>
<div id="coverart" style="background-image: url('https://medium-media.vgm.io/albums/12/1234/1234-front.jpg')"></div>
</body></html>`

func TestImageURLs(t *testing.T) {
	thumb, full, ok := ImageURLs("https://medium-media.vgm.io/albums/1/2/x.jpg?v=1")
	require.True(t, ok)
	assert.Equal(t, "https://medium-media.vgm.io/albums/1/2/x.jpg", thumb)
	assert.Equal(t, "https://media.vgm.io/albums/1/2/x.jpg", full)

	_, _, ok = ImageURLs("https://vgmdb.net/db/assets/x.jpg")
	assert.False(t, ok)
}

func TestSearchListsRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" || r.URL.Query().Get("q") != "Final Fantasy IV" {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, resultsPage)
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL}
	got := c.SearchAlbumCandidates(nil, cover.SearchQuery{Artist: "Uematsu", Album: "Final Fantasy IV!"})
	require.Len(t, got, 2)
	assert.Equal(t, srv.URL+"/album/1234", got[0].Identifier)
	assert.Equal(t, "Final Fantasy IV DS OST", got[0].AlbumName)
	assert.Equal(t, "Uematsu", got[0].ArtistName)
	assert.Equal(t, "https://vgmdb.net/album/5678", got[1].Identifier)
}

func TestSearchFollowsRedirectToAlbum(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/album/1234", http.StatusFound)
	})
	mux.HandleFunc("/album/1234", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, albumPage)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := &Client{BaseURL: srv.URL}
	got := c.SearchAlbumCandidates(nil, cover.SearchQuery{Album: "FF4 DS"})
	require.Len(t, got, 1)
	assert.Equal(t, srv.URL+"/album/1234", got[0].Identifier)
	assert.Equal(t, "Final Fantasy IV DS OST", got[0].AlbumName)
	assert.Equal(t, "1234", got[0].ExtraData["vgmdb_id"])

	images := c.ListPotentialImages(nil, &got[0])
	require.Len(t, images, 2)
	assert.Equal(t, "https://media.vgm.io/albums/12/1234/1234-front.jpg", images[0].FullImageURL)
	assert.True(t, images[0].IsFront)
	assert.Equal(t, "Back", images[1].OriginalType)
	assert.False(t, images[1].IsFront)
}

func TestListFallsBackToCoverArt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<div id="coverart" style="background-image: url('https://medium-media.vgm.io/albums/9/9/9.png')"></div>`)
	}))
	defer srv.Close()

	cand := &cover.AlbumCandidate{Identifier: srv.URL + "/album/9", SourceService: ServiceName}
	images := (&Client{}).ListPotentialImages(nil, cand)
	require.Len(t, images, 1)
	assert.Equal(t, "https://media.vgm.io/albums/9/9/9.png", images[0].FullImageURL)
	assert.Equal(t, "https://medium-media.vgm.io/albums/9/9/9.png", images[0].ThumbnailURL)
}

func TestNoAlbumResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<h3 class="label">0 album results for zz</h3>`)
	}))
	defer srv.Close()
	c := &Client{BaseURL: srv.URL}
	assert.Empty(t, c.SearchAlbumCandidates(nil, cover.SearchQuery{Album: "zz"}))
	assert.Nil(t, c.SearchAlbumCandidates(nil, cover.SearchQuery{Artist: "only artist"}))
}

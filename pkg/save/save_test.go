package save

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/bogem/id3v2"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Cover-Art-Go/pkg/cover"
	"Cover-Art-Go/pkg/db"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type history struct {
	got []db.Download
	err error
}

func (h *history) AddDownload(_ context.Context, d db.Download) (int64, error) {
	h.got = append(h.got, d)
	return int64(len(h.got)), h.err
}

func result(url string) *cover.ImageResult {
	src := &cover.AlbumCandidate{Identifier: "1", AlbumName: "Geogaddi", ArtistName: "Boards of Canada", SourceService: "iTunes"}
	return cover.NewImageResult(&cover.PotentialImage{Identifier: url, FullImageURL: url, Source: src}, 4, 3)
}

func TestSaveNeverOverwrites(t *testing.T) {
	data := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(data)
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	h := &history{}
	s := &Saver{Fs: fs, History: h}
	img := result(srv.URL + "/cover")

	first, err := s.Save(context.Background(), img, Options{Dir: "/out", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/out", "Boards of Canada - Geogaddi.png"), first.Path)
	assert.Equal(t, "image/png", first.ContentType)

	second, err := s.Save(context.Background(), img, Options{Dir: "/out"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/out", "Boards of Canada - Geogaddi (1).png"), second.Path)

	stored, err := afero.ReadFile(fs, first.Path)
	require.NoError(t, err)
	assert.Equal(t, data, stored)

	require.Len(t, h.got, 2)
	assert.Equal(t, "s1", h.got[0].SessionID)
	assert.Equal(t, "iTunes", h.got[0].Service)
	assert.Equal(t, 4, h.got[0].Width)
	assert.Equal(t, first.Path, h.got[0].Path)
}

func TestSaveCustomNameAndHistoryFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0x10, 'J', 'F', 'I', 'F', 0})
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	s := &Saver{Fs: fs, History: &history{err: errors.New("locked")}}
	res, err := s.Save(context.Background(), result(srv.URL+"/x.png?size=big"), Options{Dir: "/covers", Filename: `AC/DC: "Live"?`})
	require.NoError(t, err, "history errors are logged, not returned")
	assert.Equal(t, filepath.Join("/covers", "AC_DC_ _Live__.jpg"), res.Path)
}

func TestSaveErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/empty" {
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()
	s := &Saver{Fs: afero.NewMemMapFs()}

	_, err := s.Save(context.Background(), nil, Options{})
	assert.ErrorIs(t, err, ErrNoImage)

	_, err = s.Save(context.Background(), result(srv.URL+"/missing"), Options{Dir: "/o"})
	var apiErr *cover.APIError
	assert.ErrorAs(t, err, &apiErr)

	_, err = s.Save(context.Background(), result(srv.URL+"/empty"), Options{Dir: "/o"})
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestSaveReadOnlyFs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(pngBytes(t))
	}))
	defer srv.Close()
	s := &Saver{Fs: afero.NewReadOnlyFs(afero.NewMemMapFs())}
	_, err := s.Save(context.Background(), result(srv.URL), Options{Dir: "/o"})
	assert.Error(t, err)
}

func TestDefaultFilename(t *testing.T) {
	assert.Equal(t, "A - B", DefaultFilename(" A ", "B"))
	assert.Equal(t, "B", DefaultFilename("", "B"))
	assert.Equal(t, "A", DefaultFilename("A", ""))
	assert.Equal(t, "album_art", DefaultFilename("", " "))
}

func TestSanitizeFileName(t *testing.T) {
	cases := map[string]string{
		"Help!":             "Help!",
		"a/b\\c":            "a_b_c",
		"name...":           "name",
		"  lots   of  sp  ": "lots of sp",
		"tab\there":         "tab_here",
		"...":               "album_art",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeFileName(in), in)
	}
}

func TestURLExt(t *testing.T) {
	assert.Equal(t, ".png", urlExt("https://x/y/cover.PNG?w=1"))
	assert.Equal(t, ".jpg", urlExt("https://x/y/cover.jpeg"))
	assert.Equal(t, ".jpg", urlExt("https://x/y/cover"))
}

func TestEmbedMP3(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.mp3")
	require.NoError(t, os.WriteFile(path, []byte("not really audio"), 0o644))
	art := pngBytes(t)

	require.NoError(t, EmbedMP3(path, art, "image/png"))
	require.NoError(t, EmbedMP3(path, art, "image/png"))

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	require.NoError(t, err)
	defer tag.Close()
	frames := tag.GetFrames(tag.CommonID("Attached picture"))
	require.Len(t, frames, 1, "previous pictures are replaced")
	pic, ok := frames[0].(id3v2.PictureFrame)
	require.True(t, ok)
	assert.Equal(t, byte(id3v2.PTFrontCover), pic.PictureType)
	assert.Equal(t, art, pic.Picture)
}

// Package audiofile derives a search from a local music file. It reads the
// artist and album tags, looks for cover art already stored next to the file
// or inside it and turns the size of that art into minimum dimensions so only
// strictly better covers are offered.
package audiofile

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"Cover-Art-Go/pkg/cover"
	"Cover-Art-Go/pkg/imagesize"
)

// ErrNoAlbum is returned when neither the tags nor the caller supply an album.
var ErrNoAlbum = errors.New("album is mandatory but was not found in the file tags")

// EmbeddedArt is the value of Info.ExistingArt when the art came from the
// audio file itself.
const EmbeddedArt = "embedded"

var (
	artBases      = []string{"cover", "folder", "album", "front"}
	artExtensions = []string{".jpg", ".jpeg", ".png"}
)

// Info is what a music file tells about the cover to look for.
type Info struct {
	Path   string
	Dir    string
	Artist string
	Album  string
	// ExistingArt is the path of the art found next to the file, EmbeddedArt,
	// or empty when there is none.
	ExistingArt string
	ArtWidth    int
	ArtHeight   int
}

// Query merges the tags with explicit values, which win when not empty.
func (i *Info) Query(artist, album string) (cover.SearchQuery, error) {
	q := cover.SearchQuery{Artist: strings.TrimSpace(artist), Album: strings.TrimSpace(album)}
	if q.Artist == "" {
		q.Artist = i.Artist
	}
	if q.Album == "" {
		q.Album = i.Album
	}
	if q.Album == "" {
		return q, ErrNoAlbum
	}
	return q, nil
}

// Reader inspects music files through Fs.
type Reader struct {
	Fs afero.Fs
}

// New returns a Reader on the real filesystem.
func New() *Reader { return &Reader{Fs: afero.NewOsFs()} }

func (r *Reader) fs() afero.Fs {
	if r.Fs == nil {
		return afero.NewOsFs()
	}
	return r.Fs
}

// IsFile reports whether path names an existing regular file.
func (r *Reader) IsFile(path string) bool {
	fi, err := r.fs().Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// Inspect reads the tags of path and looks for existing art. A failure to
// measure the art is logged and leaves the dimensions at zero.
func (r *Reader) Inspect(path string) (*Info, error) {
	f, err := r.fs().Open(path)
	if err != nil {
		return nil, fmt.Errorf("open music file: %w", err)
	}
	defer f.Close()
	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("read tags of %s: %w", path, err)
	}
	info := &Info{
		Path:   path,
		Dir:    filepath.Dir(path),
		Artist: strings.TrimSpace(m.AlbumArtist()),
		Album:  strings.TrimSpace(m.Album()),
	}
	if info.Artist == "" {
		info.Artist = strings.TrimSpace(m.Artist())
	}
	log := logrus.WithField("file", path)
	log.WithFields(logrus.Fields{"artist": info.Artist, "album": info.Album}).Info("read music file tags")

	art, err := r.FindArt(info.Dir)
	if err != nil {
		log.WithError(err).Warn("could not list folder for existing art")
	}
	if art != "" {
		info.ExistingArt = art
		if info.ArtWidth, info.ArtHeight, err = r.ArtSize(art); err != nil {
			log.WithError(err).Warn("could not read existing art size")
		}
		return info, nil
	}
	if pic := m.Picture(); pic != nil && len(pic.Data) > 0 {
		info.ExistingArt = EmbeddedArt
		w, h, _, err := imagesize.Bytes(pic.Data)
		if err != nil {
			log.WithError(err).Warn("could not read embedded art size")
		} else {
			info.ArtWidth, info.ArtHeight = w, h
		}
	}
	return info, nil
}

// FindArt returns the art file stored in dir. Well known names such as
// cover.jpg or Folder.PNG win; otherwise the first image file is used.
func (r *Reader) FindArt(dir string) (string, error) {
	entries, err := afero.ReadDir(r.fs(), dir)
	if err != nil {
		return "", err
	}
	for _, base := range artBases {
		for _, ext := range artExtensions {
			want := base + ext
			for _, e := range entries {
				if !e.IsDir() && strings.EqualFold(e.Name(), want) {
					return filepath.Join(dir, e.Name()), nil
				}
			}
		}
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, want := range artExtensions {
			if ext == want {
				return filepath.Join(dir, e.Name()), nil
			}
		}
	}
	return "", nil
}

// ArtSize returns the pixel size of the image at path.
func (r *Reader) ArtSize(path string) (int, int, error) {
	f, err := r.fs().Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	w, h, _, err := imagesize.Reader(f)
	return w, h, err
}

// MinDimensions turns the size of existing art into search thresholds. A
// zero minimum counts as unset. The result is strictly larger than the
// existing art in one direction: an unset width becomes art width + 1 and an
// unset height becomes the art height, plus one when the width was given.
func MinDimensions(minWidth, minHeight, artWidth, artHeight int) (int, int) {
	if artWidth <= 0 || artHeight <= 0 {
		return minWidth, minHeight
	}
	switch {
	case minWidth == 0 && minHeight == 0:
		return artWidth + 1, artHeight
	case minWidth == 0:
		return artWidth + 1, minHeight
	case minHeight == 0:
		return minWidth, artHeight + 1
	}
	return minWidth, minHeight
}

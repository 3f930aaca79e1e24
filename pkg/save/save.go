// Package save downloads a chosen cover and stores it on disk. Files are
// never overwritten: a numbered suffix is appended when the name is taken.
package save

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bogem/id3v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"Cover-Art-Go/pkg/cover"
	"Cover-Art-Go/pkg/db"
	"Cover-Art-Go/pkg/fetch"
	"Cover-Art-Go/pkg/metrics"
)

// MaxImageBytes bounds a downloaded cover.
const MaxImageBytes = 64 << 20

// maxSuffix bounds the search for a free file name.
const maxSuffix = 1000

var (
	invalidChars  = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	trailingDots  = regexp.MustCompile(`\.+$`)
	spaces        = regexp.MustCompile(`\s+`)
	ErrEmptyImage = errors.New("downloaded image is empty")
	ErrNoImage    = errors.New("no image to save")
)

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

// Recorder stores the history of saved covers.
type Recorder interface {
	AddDownload(ctx context.Context, d db.Download) (int64, error)
}

// Saver writes covers through Fs. History and Fetch are optional.
type Saver struct {
	Fetch   *fetch.Client
	Fs      afero.Fs
	History Recorder
}

// New returns a Saver writing to the real filesystem.
func New(f *fetch.Client, history Recorder) *Saver {
	return &Saver{Fetch: f, Fs: afero.NewOsFs(), History: history}
}

// Options control where a cover goes.
type Options struct {
	Dir string
	// Filename is the base name without extension. Empty means
	// "Artist - Album", or "album_art" when both are unknown.
	Filename string
	// EmbedInto is an MP3 file that receives the cover as its front
	// picture. It is opened on the real filesystem.
	EmbedInto string
	SessionID string
}

// Result describes a saved cover.
type Result struct {
	Path        string `json:"path"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	Embedded    bool   `json:"embedded"`
}

// Save downloads img and writes it below opts.Dir.
func (s *Saver) Save(ctx context.Context, img *cover.ImageResult, opts Options) (res *Result, err error) {
	defer func() { metrics.Saved(err) }()
	if img == nil || img.FullImageURL == "" {
		return nil, ErrNoImage
	}
	data, err := s.download(ctx, img.FullImageURL)
	if err != nil {
		return nil, err
	}
	ctype := http.DetectContentType(data)
	ext, ok := extensions[ctype]
	if !ok {
		ext = urlExt(img.FullImageURL)
	}

	fs := s.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	base := opts.Filename
	if base == "" {
		base = DefaultFilename(img.ArtistName, img.AlbumName)
	}
	target, err := writeUnique(fs, dir, SanitizeFileName(base), ext, data)
	if err != nil {
		return nil, err
	}
	res = &Result{Path: target, ContentType: ctype, Size: len(data)}
	log := logrus.WithFields(logrus.Fields{"service": img.SourceService, "path": target})
	log.Info("cover saved")

	if opts.EmbedInto != "" {
		if err := EmbedMP3(opts.EmbedInto, data, ctype); err != nil {
			return res, fmt.Errorf("embed cover: %w", err)
		}
		res.Embedded = true
		log.WithField("audio", opts.EmbedInto).Info("cover embedded")
	}

	if s.History != nil {
		_, herr := s.History.AddDownload(ctx, db.Download{
			SessionID:  opts.SessionID,
			Service:    img.SourceService,
			ArtistName: img.ArtistName,
			AlbumName:  img.AlbumName,
			ImageURL:   img.FullImageURL,
			Width:      img.FullWidth,
			Height:     img.FullHeight,
			Path:       target,
		})
		if herr != nil {
			log.WithError(herr).Warn("could not record download")
		}
	}
	return res, nil
}

func (s *Saver) download(ctx context.Context, url string) ([]byte, error) {
	f := s.Fetch
	if f == nil {
		f = &fetch.Client{}
	}
	resp, err := f.Open(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
	if err != nil {
		return nil, &cover.NetworkError{URL: url, Err: err}
	}
	if len(data) > MaxImageBytes {
		return nil, &cover.DataError{URL: url, Msg: fmt.Sprintf("image larger than %d bytes", MaxImageBytes)}
	}
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	return data, nil
}

// writeUnique creates name+ext in dir, or "name (n)"+ext for the first free
// n. Creation is exclusive so concurrent saves never clobber each other.
func writeUnique(fs afero.Fs, dir, name, ext string, data []byte) (string, error) {
	for i := 0; i < maxSuffix; i++ {
		candidate := name + ext
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", name, i, ext)
		}
		target := filepath.Join(dir, candidate)
		f, err := fs.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create %s: %w", target, err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", fmt.Errorf("write %s: %w", target, err)
		}
		return target, f.Close()
	}
	return "", fmt.Errorf("no free file name for %s%s in %s", name, ext, dir)
}

// DefaultFilename builds "Artist - Album" from whatever is known.
func DefaultFilename(artist, album string) string {
	artist, album = strings.TrimSpace(artist), strings.TrimSpace(album)
	switch {
	case artist != "" && album != "":
		return artist + " - " + album
	case album != "":
		return album
	case artist != "":
		return artist
	}
	return "album_art"
}

// SanitizeFileName replaces characters that are invalid in file names on
// common filesystems.
func SanitizeFileName(name string) string {
	name = invalidChars.ReplaceAllString(name, "_")
	name = trailingDots.ReplaceAllString(name, "")
	name = spaces.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)
	if name == "" {
		return "album_art"
	}
	return name
}

func urlExt(u string) string {
	u, _, _ = strings.Cut(u, "?")
	switch ext := strings.ToLower(path.Ext(u)); ext {
	case ".jpg", ".jpeg":
		return ".jpg"
	case ".png", ".gif", ".webp", ".bmp", ".tif", ".tiff":
		return ext
	}
	return ".jpg"
}

// EmbedMP3 replaces the attached pictures of the MP3 at file with data as
// its front cover.
func EmbedMP3(file string, data []byte, mimeType string) error {
	tag, err := id3v2.Open(file, id3v2.Options{Parse: true})
	if err != nil {
		return err
	}
	defer tag.Close()
	tag.DeleteFrames(tag.CommonID("Attached picture"))
	tag.AddAttachedPicture(id3v2.PictureFrame{
		Encoding:    id3v2.EncodingUTF8,
		MimeType:    mimeType,
		PictureType: id3v2.PTFrontCover,
		Description: "Cover",
		Picture:     data,
	})
	return tag.Save()
}

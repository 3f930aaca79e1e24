// Package imagesize determines the pixel dimensions of remote and local images
// without decoding them. Only as much of the body is downloaded as the format
// header needs; the whole image is read only when the header is unusually far
// into the file.
package imagesize

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"net/http"

	// Decoders for every format a cover service is known to serve.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"Cover-Art-Go/pkg/cover"
	"Cover-Art-Go/pkg/fetch"
)

const (
	firstProbe = 2 << 10
	lastProbe  = 128 << 10
	maxImage   = 32 << 20
)

// ErrUnknownFormat is returned when no registered decoder recognises the data.
var ErrUnknownFormat = errors.New("unrecognised image data")

// Prober fetches image headers over HTTP.
type Prober struct {
	Client *fetch.Client
}

// New returns a Prober using c.
func New(c *fetch.Client) *Prober {
	return &Prober{Client: c}
}

func (p *Prober) client() *fetch.Client {
	if p == nil || p.Client == nil {
		return &fetch.Client{}
	}
	return p.Client
}

// Probe downloads the start of url and returns its width and height.
func (p *Prober) Probe(ctx context.Context, url string, header http.Header) (int, int, error) {
	resp, err := p.client().Open(ctx, url, header)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	if ctx.Err() != nil {
		return 0, 0, ctx.Err()
	}

	var buf bytes.Buffer
	next := firstProbe
	for next <= lastProbe {
		n, err := io.CopyN(&buf, resp.Body, int64(next-buf.Len()))
		if w, h, ok := decode(buf.Bytes()); ok {
			return w, h, nil
		}
		if err == io.EOF || (err == nil && n == 0) {
			return 0, 0, &cover.DataError{URL: url, Msg: "probe dimensions", Err: ErrUnknownFormat}
		}
		if err != nil {
			return 0, 0, wrapRead(ctx, url, err)
		}
		next *= 2
	}
	if _, err := io.Copy(&buf, io.LimitReader(resp.Body, maxImage-int64(buf.Len()))); err != nil {
		return 0, 0, wrapRead(ctx, url, err)
	}
	if w, h, ok := decode(buf.Bytes()); ok {
		return w, h, nil
	}
	return 0, 0, &cover.DataError{URL: url, Msg: "probe dimensions", Err: ErrUnknownFormat}
}

func wrapRead(ctx context.Context, url string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &cover.NetworkError{URL: url, Err: err}
}

func decode(b []byte) (int, int, bool) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, false
	}
	return cfg.Width, cfg.Height, true
}

// Bytes returns the dimensions and format name of an in-memory image.
func Bytes(b []byte) (width, height int, format string, err error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return 0, 0, "", err
	}
	return cfg.Width, cfg.Height, format, nil
}

// Reader returns the dimensions and format name of the image read from r.
func Reader(r io.Reader) (width, height int, format string, err error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return 0, 0, "", err
	}
	return cfg.Width, cfg.Height, format, nil
}

// Resolve probes the full image of pi and builds the sized result.
func (p *Prober) Resolve(ctx context.Context, pi *cover.PotentialImage, header http.Header) (*cover.ImageResult, error) {
	if pi.FullImageURL == "" {
		return nil, &cover.DataError{Msg: "image has no url"}
	}
	w, h, err := p.Probe(ctx, pi.FullImageURL, header)
	if err != nil {
		return nil, err
	}
	return cover.NewImageResult(pi, w, h), nil
}

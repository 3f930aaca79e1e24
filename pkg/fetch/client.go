// Package fetch provides the HTTP client shared by the service adapters. It
// applies the user agent and default headers every service expects, bounds
// response sizes and converts failures into the error kinds defined by the
// cover package so they can be classified for logs and metrics.
package fetch

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"io"
	"net/http"
	"time"

	"Cover-Art-Go/pkg/cover"
)

// DefaultTimeout bounds every request made through a zero value Client.
const DefaultTimeout = 10 * time.Second

// DefaultUserAgent identifies the application to remote services.
const DefaultUserAgent = "CoverArtGo/1.0 ( https://github.com/cover-art-go )"

// maxBody caps how much of a page or API response is read into memory.
const maxBody = 8 << 20

// Client wraps an *http.Client with the headers used for every request. The
// zero value is ready to use and shares an http.Client with DefaultTimeout.
type Client struct {
	HTTP      *http.Client
	UserAgent string
	// Header is added to every request before per-call headers.
	Header http.Header
}

// New returns a Client with its own http.Client using timeout.
func New(userAgent string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{HTTP: &http.Client{Timeout: timeout}, UserAgent: userAgent}
}

var defaultHTTP = &http.Client{Timeout: DefaultTimeout}

func (c *Client) client() *http.Client {
	if c.HTTP == nil {
		return defaultHTTP
	}
	return c.HTTP
}

// Open performs a GET request and returns the response when the status is
// 2xx. The caller closes the body.
func (c *Client) Open(ctx context.Context, url string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &cover.DataError{URL: url, Msg: "build request", Err: err}
	}
	ua := c.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	for k, vs := range c.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for k, vs := range header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := c.client().Do(req)
	if err != nil {
		return nil, &cover.NetworkError{URL: url, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &cover.APIError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return resp, nil
}

// Page is a fetched text document together with the URL it was finally served
// from after redirects.
type Page struct {
	Body     string
	FinalURL string
}

// Bytes returns the body of url.
func (c *Client) Bytes(ctx context.Context, url string, header http.Header) ([]byte, error) {
	resp, err := c.Open(ctx, url, header)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &cover.NetworkError{URL: url, Err: err}
	}
	return b, nil
}

// Page fetches an HTML document.
func (c *Client) Page(ctx context.Context, url string, header http.Header) (*Page, error) {
	resp, err := c.Open(ctx, url, header)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &cover.NetworkError{URL: url, Err: err}
	}
	final := url
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	return &Page{Body: string(b), FinalURL: final}, nil
}

// JSON decodes the JSON body of url into v.
func (c *Client) JSON(ctx context.Context, url string, header http.Header, v any) error {
	b, err := c.Bytes(ctx, url, header)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return &cover.DataError{URL: url, Msg: "decode json", Err: err}
	}
	return nil
}

// XML decodes the XML body of url into v.
func (c *Client) XML(ctx context.Context, url string, header http.Header, v any) error {
	b, err := c.Bytes(ctx, url, header)
	if err != nil {
		return err
	}
	if err := xml.Unmarshal(b, v); err != nil {
		return &cover.DataError{URL: url, Msg: "decode xml", Err: err}
	}
	return nil
}

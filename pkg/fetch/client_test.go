package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"Cover-Art-Go/pkg/cover"
)

func TestClientHeadersAndJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.UserAgent() != "ua-test" {
			t.Errorf("user agent = %q", r.UserAgent())
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("default header missing")
		}
		if r.Header.Get("Authorization") != "Discogs token=abc" {
			t.Errorf("per-call header missing")
		}
		w.Write([]byte(`{"name":"ok"}`))
	}))
	defer srv.Close()

	c := New("ua-test", time.Second)
	c.Header = http.Header{"Accept": {"application/json"}}
	var out struct{ Name string }
	err := c.JSON(context.Background(), srv.URL, http.Header{"Authorization": {"Discogs token=abc"}}, &out)
	if err != nil || out.Name != "ok" {
		t.Fatalf("got %+v err=%v", out, err)
	}
}

func TestClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/down":
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
		default:
			w.Write([]byte("<not json"))
		}
	}))
	defer srv.Close()
	c := &Client{}
	ctx := context.Background()

	_, err := c.Bytes(ctx, srv.URL+"/down", nil)
	var apiErr *cover.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected api error, got %v", err)
	}

	var v map[string]any
	err = c.JSON(ctx, srv.URL+"/garbage", nil, &v)
	var dataErr *cover.DataError
	if !errors.As(err, &dataErr) {
		t.Fatalf("expected data error, got %v", err)
	}

	_, err = c.Bytes(ctx, "http://127.0.0.1:1/", nil)
	var netErr *cover.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestPageFollowsRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/album/42", http.StatusFound)
	})
	mux.HandleFunc("/album/42", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>album</html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p, err := (&Client{}).Page(context.Background(), srv.URL+"/search?q=x", nil)
	if err != nil {
		t.Fatal(err)
	}
	if p.FinalURL != srv.URL+"/album/42" || p.Body != "<html>album</html>" {
		t.Fatalf("unexpected page %+v", p)
	}
}

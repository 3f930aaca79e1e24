package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"Cover-Art-Go/pkg/cover"
	"Cover-Art-Go/pkg/handlers"
)

// TestMetricsEndpoint ensures /metrics is served next to the API and carries
// the security headers.
func TestMetricsEndpoint(t *testing.T) {
	orch := cover.New(cover.NewRegistry())
	defer orch.Shutdown()
	srv := httptest.NewServer(newHandler(&handlers.Application{Orchestrator: orch}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.StatusCode)
	}
	data, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(data), "coverart_sessions_active") {
		t.Errorf("metrics missing collectors: %.200s", data)
	}
	if resp.Header.Get("X-Frame-Options") != "DENY" {
		t.Errorf("security headers not applied")
	}
}

// TestUnknownRoute returns 404 rather than falling through to an API handler.
func TestUnknownRoute(t *testing.T) {
	orch := cover.New(cover.NewRegistry())
	defer orch.Shutdown()
	srv := httptest.NewServer(newHandler(&handlers.Application{Orchestrator: orch}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.StatusCode)
	}
}

package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/seantiz/modreg/internal/engine"
)

func TestHealthzEndpoint(t *testing.T) {
	srv := newTestServer(t)
	if _, err := srv.registry.Install(context.Background(), engine.InstallRequest{Key: "cart"}); err != nil {
		t.Fatalf("Install: %v", err)
	}

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
	if body.Modules != 1 {
		t.Errorf("modules = %d, want 1", body.Modules)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	if _, err := srv.registry.Install(context.Background(), engine.InstallRequest{Key: "cart", Enabled: true}); err != nil {
		t.Fatalf("Install: %v", err)
	}

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	// Make a request to generate metrics.
	http.Get(ts.URL + "/healthz")

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/plain") && !strings.Contains(contentType, "text/openmetrics") {
		t.Errorf("Content-Type = %q, expected prometheus format", contentType)
	}

	bodyBytes, _ := io.ReadAll(resp.Body)
	body := string(bodyBytes)

	for _, want := range []string{
		"modreg_http_requests_total",
		"modreg_http_request_duration_seconds",
		"modreg_module_operations_total",
		"modreg_modules 1",
		"modreg_modules_enabled 1",
		"modreg_modules_core 0",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

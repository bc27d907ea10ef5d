package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/seantiz/modreg/internal/engine"
	"github.com/seantiz/modreg/internal/model"
)

func doRequest(t *testing.T, ts *httptest.Server, method, path, body string) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

func install(t *testing.T, srv *Server, req engine.InstallRequest) {
	t.Helper()
	if _, err := srv.registry.Install(context.Background(), req); err != nil {
		t.Fatalf("Install(%q): %v", req.Key, err)
	}
}

func TestInstallModule(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	status, body := doRequest(t, ts, http.MethodPost, "/v1/modules", `{"key":"payment_gateway","version":"2.0.0","settings":{"currency":"EUR"}}`)
	if status != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", status, body)
	}

	m := decode[model.Module](t, body)
	if len(m.ID) != 26 {
		t.Errorf("ID length = %d, want 26", len(m.ID))
	}
	if m.Name != "Payment Gateway" {
		t.Errorf("Name = %q, want %q", m.Name, "Payment Gateway")
	}
	if !m.AutoRegister || m.Enabled {
		t.Errorf("AutoRegister/Enabled = %v/%v, want true/false", m.AutoRegister, m.Enabled)
	}

	status, body = doRequest(t, ts, http.MethodPost, "/v1/modules", `{"key":"payment_gateway"}`)
	if status != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409: %s", status, body)
	}
}

func TestInstallModuleBadRequests(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"key":`},
		{"missing key", `{}`},
		{"bad version", `{"key":"cart","version":"one"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := doRequest(t, ts, http.MethodPost, "/v1/modules", tt.body)
			if status != http.StatusBadRequest {
				t.Errorf("status = %d, want 400: %s", status, body)
			}
		})
	}
}

func TestManagementDisabled(t *testing.T) {
	srv := newTestServerWith(t, Options{})
	install(t, srv, engine.InstallRequest{Key: "cart"})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	if status, _ := doRequest(t, ts, http.MethodPost, "/v1/modules", `{"key":"coupon"}`); status != http.StatusForbidden {
		t.Errorf("install status = %d, want 403", status)
	}
	if status, _ := doRequest(t, ts, http.MethodDelete, "/v1/modules/cart", ""); status != http.StatusForbidden {
		t.Errorf("uninstall status = %d, want 403", status)
	}
}

func TestGetAndUninstallModule(t *testing.T) {
	srv := newTestServer(t)
	install(t, srv, engine.InstallRequest{Key: "cart"})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	status, body := doRequest(t, ts, http.MethodGet, "/v1/modules/cart", "")
	if status != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", status)
	}
	if m := decode[model.Module](t, body); m.Key != "cart" {
		t.Errorf("Key = %q, want cart", m.Key)
	}

	if status, _ := doRequest(t, ts, http.MethodDelete, "/v1/modules/cart", ""); status != http.StatusNoContent {
		t.Errorf("DELETE status = %d, want 204", status)
	}
	if status, _ := doRequest(t, ts, http.MethodGet, "/v1/modules/cart", ""); status != http.StatusNotFound {
		t.Errorf("GET after delete status = %d, want 404", status)
	}
	if status, _ := doRequest(t, ts, http.MethodDelete, "/v1/modules/cart", ""); status != http.StatusNotFound {
		t.Errorf("second DELETE status = %d, want 404", status)
	}
}

func TestEnableDisableErrors(t *testing.T) {
	srv := newTestServer(t)
	install(t, srv, engine.InstallRequest{Key: "auth", Enabled: true, IsCore: true})
	install(t, srv, engine.InstallRequest{Key: "payment_gateway"})
	install(t, srv, engine.InstallRequest{Key: "cart", Dependencies: []string{"payment_gateway", "tax"}})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	status, body := doRequest(t, ts, http.MethodPost, "/v1/modules/cart/enable", "")
	if status != http.StatusConflict {
		t.Fatalf("enable cart status = %d, want 409", status)
	}
	resp := decode[errorResponse](t, body)
	if want := []string{"payment_gateway", "tax"}; !slices.Equal(resp.Keys, want) {
		t.Errorf("keys = %v, want %v", resp.Keys, want)
	}

	if status, _ := doRequest(t, ts, http.MethodPost, "/v1/modules/auth/disable", ""); status != http.StatusForbidden {
		t.Errorf("disable core status = %d, want 403", status)
	}
	if status, _ := doRequest(t, ts, http.MethodPost, "/v1/modules/ghost/enable", ""); status != http.StatusNotFound {
		t.Errorf("enable missing status = %d, want 404", status)
	}
}

func TestEnableDisableFlow(t *testing.T) {
	srv := newTestServer(t)
	install(t, srv, engine.InstallRequest{Key: "payment_gateway"})
	install(t, srv, engine.InstallRequest{Key: "cart", Dependencies: []string{"payment_gateway"}})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for _, path := range []string{"/v1/modules/payment_gateway/enable", "/v1/modules/cart/enable"} {
		status, body := doRequest(t, ts, http.MethodPost, path, "")
		if status != http.StatusOK {
			t.Fatalf("POST %s status = %d: %s", path, status, body)
		}
		if m := decode[model.Module](t, body); !m.Enabled {
			t.Errorf("POST %s: module not enabled", path)
		}
	}

	status, body := doRequest(t, ts, http.MethodPost, "/v1/modules/payment_gateway/disable", "")
	if status != http.StatusConflict {
		t.Fatalf("disable with dependents status = %d, want 409", status)
	}
	if resp := decode[errorResponse](t, body); !slices.Equal(resp.Keys, []string{"cart"}) {
		t.Errorf("keys = %v, want [cart]", resp.Keys)
	}

	status, body = doRequest(t, ts, http.MethodGet, "/v1/modules/enabled", "")
	if status != http.StatusOK {
		t.Fatalf("GET enabled status = %d", status)
	}
	enabled := decode[enabledModulesResponse](t, body)
	if len(enabled.Modules) != 2 {
		t.Errorf("enabled modules = %d, want 2", len(enabled.Modules))
	}
}

func TestUpdateSettings(t *testing.T) {
	srv := newTestServer(t)
	install(t, srv, engine.InstallRequest{Key: "cart", Settings: map[string]any{"currency": "USD", "limit": 5}})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	status, body := doRequest(t, ts, http.MethodPatch, "/v1/modules/cart/settings", `{"currency":"EUR"}`)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", status, body)
	}
	m := decode[model.Module](t, body)
	if m.Settings["currency"] != "EUR" || m.Settings["limit"] != float64(5) {
		t.Errorf("settings = %v, want currency EUR and limit 5", m.Settings)
	}

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"null payload", "/v1/modules/cart/settings", `null`, http.StatusBadRequest},
		{"array payload", "/v1/modules/cart/settings", `[1,2]`, http.StatusBadRequest},
		{"missing module", "/v1/modules/ghost/settings", `{"a":1}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if status, body := doRequest(t, ts, http.MethodPatch, tt.path, tt.body); status != tt.want {
				t.Errorf("status = %d, want %d: %s", status, tt.want, body)
			}
		})
	}
}

func TestListModulesAndStats(t *testing.T) {
	srv := newTestServer(t)
	install(t, srv, engine.InstallRequest{Key: "auth", Enabled: true, IsCore: true})
	install(t, srv, engine.InstallRequest{Key: "cart", Dependencies: []string{"tax"}, SortOrder: -1})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	status, body := doRequest(t, ts, http.MethodGet, "/v1/modules", "")
	if status != http.StatusOK {
		t.Fatalf("GET /v1/modules status = %d", status)
	}
	list := decode[listModulesResponse](t, body)
	if len(list.Modules) != 2 {
		t.Fatalf("modules = %d, want 2", len(list.Modules))
	}
	cart := list.Modules[0]
	if cart.Key != "cart" || !cart.HasUnmetDependencies || !cart.CanBeDisabled {
		t.Errorf("first module = %+v, want cart with unmet dependencies", cart)
	}
	if list.Modules[1].CanBeDisabled {
		t.Error("core module reported as disableable")
	}

	status, body = doRequest(t, ts, http.MethodGet, "/v1/modules/stats", "")
	if status != http.StatusOK {
		t.Fatalf("GET stats status = %d", status)
	}
	stats := decode[engine.Statistics](t, body)
	want := engine.Statistics{Total: 2, Enabled: 1, Disabled: 1, Core: 1, Custom: 1, EnabledPercentage: 50}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
}

func TestSyncAndClearCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "modules.yaml")
	data := "modules:\n  - key: auth\n    enabled: true\n    is_core: true\n  - key: cart\n    dependencies: [auth]\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	srv := newTestServerWith(t, Options{Manifest: path})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	status, body := doRequest(t, ts, http.MethodPost, "/v1/modules/sync", "")
	if status != http.StatusOK {
		t.Fatalf("sync status = %d: %s", status, body)
	}
	report := decode[engine.SyncReport](t, body)
	if !slices.Equal(report.Created, []string{"auth", "cart"}) {
		t.Errorf("created = %v, want [auth cart]", report.Created)
	}

	if status, _ := doRequest(t, ts, http.MethodPost, "/v1/modules/clear-cache", ""); status != http.StatusOK {
		t.Errorf("clear-cache status = %d, want 200", status)
	}
}

func TestSyncInvalidManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modules.yaml")
	if err := os.WriteFile(path, []byte("modules:\n  - key: a\n  - key: a\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	srv := newTestServerWith(t, Options{Manifest: path})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	if status, _ := doRequest(t, ts, http.MethodPost, "/v1/modules/sync", ""); status != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", status)
	}
}

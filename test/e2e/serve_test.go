package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	startupTimeout = 10 * time.Second
	pollInterval   = 100 * time.Millisecond
)

const baseManifest = `modules:
  - key: auth
    enabled: true
    is_core: true
    sort_order: 1
  - key: payment_gateway
    enabled: true
    sort_order: 10
  - key: cart
    dependencies: [payment_gateway]
    sort_order: 20
`

// lockedBuffer is a thread-safe wrapper around bytes.Buffer.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (lb *lockedBuffer) Write(p []byte) (int, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.buf.Write(p)
}

func (lb *lockedBuffer) String() string {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.buf.String()
}

// serverProc holds the running modreg serve subprocess and its output.
type serverProc struct {
	cmd      *exec.Cmd
	output   *lockedBuffer
	url      string
	manifest string
}

var (
	builtBinary string
	buildOnce   sync.Once
	buildErr    error
)

func getBinary(t *testing.T) string {
	t.Helper()
	buildOnce.Do(func() {
		dir, err := os.MkdirTemp("", "modreg-e2e-*")
		if err != nil {
			buildErr = err
			return
		}
		binary := filepath.Join(dir, "modreg")
		cmd := exec.Command("go", "build", "-o", binary, "./cmd/modreg")
		cmd.Dir = findRepoRoot(t)
		out, err := cmd.CombinedOutput()
		if err != nil {
			buildErr = fmt.Errorf("go build failed: %w\n%s", err, out)
			return
		}
		builtBinary = binary
	})
	if buildErr != nil {
		t.Fatal(buildErr)
	}
	return builtBinary
}

func findRepoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find repo root")
		}
		dir = parent
	}
}

func startServer(t *testing.T, binary string, env ...string) *serverProc {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	dir := t.TempDir()
	manifest := filepath.Join(dir, "modules.yaml")
	if err := os.WriteFile(manifest, []byte(baseManifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	output := &lockedBuffer{}
	cmd := exec.Command(binary, "serve")
	cmd.Env = append(os.Environ(),
		"MODREG_LISTEN_ADDR="+addr,
		"MODREG_DB_PATH="+filepath.Join(dir, "modreg.db"),
		"MODREG_MANIFEST="+manifest,
		"MODREG_CACHE_ENGINE=memory",
		"MODREG_LOG_LEVEL=info",
	)
	cmd.Env = append(cmd.Env, env...)
	cmd.Stdout = output
	cmd.Stderr = output

	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}

	sp := &serverProc{
		cmd:      cmd,
		output:   output,
		url:      "http://" + addr,
		manifest: manifest,
	}

	t.Cleanup(func() {
		cmd.Process.Kill()
		cmd.Wait()
	})

	deadline := time.Now().Add(startupTimeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(sp.url + "/healthz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == 200 {
				return sp
			}
		}
		time.Sleep(pollInterval)
	}
	t.Fatalf("server did not become ready within %v\noutput:\n%s", startupTimeout, output.String())
	return nil
}

func (sp *serverProc) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, sp.url+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func TestServeSyncsManifestAtStartup(t *testing.T) {
	sp := startServer(t, getBinary(t))

	status, body := sp.do(t, http.MethodGet, "/healthz", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	var health struct {
		Status  string `json:"status"`
		Modules int    `json:"modules"`
	}
	if err := json.Unmarshal(body, &health); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("status = %q, want %q", health.Status, "ok")
	}
	if health.Modules != 3 {
		t.Errorf("modules = %d, want 3", health.Modules)
	}
}

func TestServeMetrics(t *testing.T) {
	sp := startServer(t, getBinary(t))
	sp.do(t, http.MethodGet, "/v1/modules", "")

	status, body := sp.do(t, http.MethodGet, "/metrics", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	for _, name := range []string{
		"modreg_http_requests_total",
		"modreg_http_request_duration_seconds",
		"modreg_modules_enabled",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestServeLifecycle(t *testing.T) {
	sp := startServer(t, getBinary(t))

	status, body := sp.do(t, http.MethodPost, "/v1/modules/cart/enable", "")
	if status != http.StatusOK {
		t.Fatalf("enable cart: status = %d, want 200\nbody: %s", status, body)
	}

	status, body = sp.do(t, http.MethodPost, "/v1/modules/payment_gateway/disable", "")
	if status != http.StatusConflict {
		t.Fatalf("disable payment_gateway: status = %d, want 409\nbody: %s", status, body)
	}
	var rejected struct {
		Keys []string `json:"keys"`
	}
	if err := json.Unmarshal(body, &rejected); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(rejected.Keys) != 1 || rejected.Keys[0] != "cart" {
		t.Errorf("keys = %v, want [cart]", rejected.Keys)
	}

	status, _ = sp.do(t, http.MethodPost, "/v1/modules/auth/disable", "")
	if status != http.StatusForbidden {
		t.Errorf("disable auth: status = %d, want 403", status)
	}
}

func TestServeResyncsOnManifestChange(t *testing.T) {
	sp := startServer(t, getBinary(t))

	updated := baseManifest + `  - key: wishlist
    enabled: true
    sort_order: 30
`
	if err := os.WriteFile(sp.manifest, []byte(updated), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	deadline := time.Now().Add(startupTimeout)
	for time.Now().Before(deadline) {
		status, _ := sp.do(t, http.MethodGet, "/v1/modules/wishlist", "")
		if status == http.StatusOK {
			return
		}
		time.Sleep(pollInterval)
	}
	t.Fatalf("wishlist not synced within %v\noutput:\n%s", startupTimeout, sp.output.String())
}

func TestServeInstallDisabledByConfiguration(t *testing.T) {
	sp := startServer(t, getBinary(t), "MODREG_ALLOW_INSTALL=false")

	status, _ := sp.do(t, http.MethodPost, "/v1/modules", `{"key":"wishlist"}`)
	if status != http.StatusForbidden {
		t.Errorf("status = %d, want 403", status)
	}
}

package app

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"cephagent/internal/config"
)

// TestStartExporter_DisabledIsNoop verifies no listener is opened when disabled.
// Params: t test context.
// Returns: none.
func TestStartExporter_DisabledIsNoop(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	stop, err := startExporter(context.Background(), config.PrometheusConfig{Listen: "bad"}, staticHandler("x"), logger)
	if err != nil {
		t.Fatalf("disabled exporter: %v", err)
	}
	stop()

	stop, err = startExporter(context.Background(), config.PrometheusConfig{Enabled: true, Listen: "bad"}, nil, logger)
	if err != nil {
		t.Fatalf("exporter without handler: %v", err)
	}
	stop()
}

// TestStartExporter_ServesHandler verifies the handler is mounted at the configured path.
// Params: t test context.
// Returns: none.
func TestStartExporter_ServesHandler(t *testing.T) {
	address := freeAddress(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop, err := startExporter(ctx, config.PrometheusConfig{
		Enabled: true,
		Listen:  address,
		Path:    "/metrics",
		Pprof:   true,
	}, staticHandler("ceph_osd_0_osd_op 12\n"), logger)
	if err != nil {
		t.Fatalf("start exporter: %v", err)
	}
	defer stop()

	client := &http.Client{Timeout: 2 * time.Second}
	body := httpGet(t, client, "http://"+address+"/metrics")
	if !strings.Contains(body, "ceph_osd_0_osd_op 12") {
		t.Fatalf("unexpected metrics body: %q", body)
	}

	if body := httpGet(t, client, "http://"+address+"/debug/pprof/"); !strings.Contains(body, "goroutine") {
		t.Fatalf("expected pprof index, got %q", body)
	}

	stop()
	stop()
	if _, err := client.Get("http://" + address + "/metrics"); err == nil {
		t.Fatalf("expected request to fail after stop")
	}
}

// TestStartExporter_ListenError verifies bind failures surface.
// Params: t test context.
// Returns: none.
func TestStartExporter_ListenError(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err = startExporter(context.Background(), config.PrometheusConfig{
		Enabled: true,
		Listen:  listener.Addr().String(),
		Path:    "/metrics",
	}, staticHandler("x"), logger)
	if err == nil {
		t.Fatalf("expected listen error for occupied address")
	}
}

// freeAddress reserves and releases a loopback port.
// Params: t test context.
// Returns: host:port string.
func freeAddress(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	address := listener.Addr().String()
	_ = listener.Close()
	return address
}

// httpGet fetches url and returns body text.
// Params: t test context; client HTTP client; url target.
// Returns: response body.
func httpGet(t *testing.T, client *http.Client, url string) string {
	t.Helper()
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s: %v", url, err)
	}
	return string(body)
}

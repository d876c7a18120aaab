package status

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/health"
	"github.com/erghjunk/portfolio-dataQueryWithDownstreamGisCalculations/internal/metrics"
)

type fixedProgress health.Progress

func (f fixedProgress) Progress() health.Progress { return health.Progress(f) }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	b, _ := io.ReadAll(resp.Body)
	return resp, string(b)
}

func TestRouter_Endpoints(t *testing.T) {
	mp := metrics.Init(metrics.Config{})
	pr := fixedProgress{RunID: "r1", Phase: health.PhaseProcessing, Facilities: 3, Done: 1}
	srv := httptest.NewServer(NewRouter(quiet(), pr, mp.Handler()))
	defer srv.Close()

	if resp, body := get(t, srv.URL+"/healthz"); resp.StatusCode != http.StatusOK || body != "ok" {
		t.Fatalf("healthz status=%d body=%q", resp.StatusCode, body)
	}
	if resp, _ := get(t, srv.URL+"/readyz"); resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz status=%d", resp.StatusCode)
	}

	resp, body := get(t, srv.URL+"/progress")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("progress status=%d", resp.StatusCode)
	}
	var p health.Progress
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatalf("decode progress: %v", err)
	}
	if p.RunID != "r1" || p.Done != 1 || p.Facilities != 3 {
		t.Fatalf("progress=%+v", p)
	}

	resp, body = get(t, srv.URL+"/metrics")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "go_goroutines") {
		t.Fatalf("metrics status=%d", resp.StatusCode)
	}

	post, err := http.Post(srv.URL+"/progress", "text/plain", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	_ = post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("POST status=%d want 405", post.StatusCode)
	}
}

func TestRouter_NoMetricsHandler(t *testing.T) {
	srv := httptest.NewServer(NewRouter(quiet(), fixedProgress{}, nil))
	defer srv.Close()
	if resp, _ := get(t, srv.URL+"/metrics"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("metrics status=%d want 404", resp.StatusCode)
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, ln, quiet(), NewRouter(quiet(), fixedProgress{}, nil)) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve did not return after cancel")
	}
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestProvider_RegistersStandardCollectors_AndBuildInfo(t *testing.T) {
	p := Init(Config{Build: BuildInfo{Version: "test", Revision: "r", Branch: "b", BuildDate: "now"}})

	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "smoke"})
	p.Register(g)
	g.Set(42)

	if n := testutil.CollectAndCount(g); n == 0 {
		t.Fatalf("expected at least 1 sample from test_gauge, got %d", n)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	body := rr.Body.String()

	if !strings.Contains(body, "go_goroutines") {
		t.Fatalf("expected go_goroutines in payload; got:\n%s", body)
	}
	if !strings.Contains(body, `app_build_info{`) || !strings.Contains(body, `version="test"`) {
		t.Fatalf("expected app_build_info in payload; got:\n%s", body)
	}
}

func TestProvider_WriteTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.prom")
	p := Init(Config{Textfile: path})

	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "ejquery_test_total", Help: "smoke"})
	p.Register(c)
	c.Add(3)

	if err := p.WriteTextfile(); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(b), "ejquery_test_total 3") {
		t.Fatalf("textfile missing counter:\n%s", b)
	}
}

func TestProvider_WriteTextfile_DisabledWhenEmpty(t *testing.T) {
	p := Init(Config{})
	if err := p.WriteTextfile(); err != nil {
		t.Fatalf("WriteTextfile with no path: %v", err)
	}
}

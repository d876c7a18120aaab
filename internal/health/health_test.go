package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type staticProgress Progress

func (s staticProgress) Progress() Progress { return Progress(s) }

func TestLiveness_Handler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()

	Liveness()(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	ct := rr.Header().Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content-type=%q want text/plain", ct)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != "ok" {
		t.Fatalf("body=%q want ok", got)
	}
}

func TestReadiness_FollowsPhase(t *testing.T) {
	cases := []struct {
		phase string
		code  int
	}{
		{"", http.StatusServiceUnavailable},
		{PhaseLoading, http.StatusServiceUnavailable},
		{PhaseProcessing, http.StatusOK},
		{PhaseExporting, http.StatusOK},
		{PhaseDone, http.StatusOK},
		{PhaseFailed, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		Readiness(staticProgress{Phase: tc.phase})(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if rr.Code != tc.code {
			t.Fatalf("phase=%q status=%d want %d", tc.phase, rr.Code, tc.code)
		}
	}
}

func TestProgressHandler_EncodesSnapshot(t *testing.T) {
	rr := httptest.NewRecorder()
	ProgressHandler(staticProgress{RunID: "r1", Phase: PhaseProcessing, Facilities: 10, Done: 4, Skipped: 1, Rows: 3})(
		rr, httptest.NewRequest(http.MethodGet, "/progress", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var got Progress
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RunID != "r1" || got.Done != 4 || got.Skipped != 1 || got.Rows != 3 || got.Facilities != 10 {
		t.Fatalf("progress=%+v", got)
	}
}

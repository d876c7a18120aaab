// Package health serves the liveness, readiness and progress endpoints of
// the status server.
package health

import (
	"encoding/json"
	"net/http"
	"time"
)

func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// Phases of a run, in order.
const (
	PhaseLoading    = "loading"
	PhaseProcessing = "processing"
	PhaseExporting  = "exporting"
	PhaseDone       = "done"
	PhaseFailed     = "failed"
)

type Progress struct {
	RunID      string    `json:"run_id"`
	Phase      string    `json:"phase"`
	Facilities int       `json:"facilities"`
	Done       int       `json:"done"`
	Skipped    int       `json:"skipped"`
	Rows       int       `json:"rows"`
	Catchments int       `json:"catchments"`
	EJPolygons int       `json:"ej_polygons"`
	StartedAt  time.Time `json:"started_at"`
	ElapsedSec float64   `json:"elapsed_seconds"`
}

type ProgressReporter interface {
	Progress() Progress
}

// Readiness reports 503 until the inputs are loaded and the indexes built.
func Readiness(pr ProgressReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		type resp struct {
			Status string `json:"status"`
			Phase  string `json:"phase"`
		}
		p := pr.Progress()
		out := resp{Status: "ready", Phase: p.Phase}
		ready := p.Phase != PhaseLoading && p.Phase != PhaseFailed && p.Phase != ""
		if !ready {
			out.Status = "not_ready"
		}
		w.Header().Set("Content-Type", "application/json")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(out)
	}
}

func ProgressHandler(pr ProgressReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(pr.Progress())
	}
}

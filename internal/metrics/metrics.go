// Package metrics owns the Prometheus registry of a run.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type BuildInfo struct {
	Version   string
	Revision  string
	Branch    string
	BuildDate string
}

type Config struct {
	// Textfile receives the registry contents in text exposition format when
	// the run ends. Empty disables the dump.
	Textfile string
	Build    BuildInfo
}

type Provider struct {
	reg      *prometheus.Registry
	textfile string
}

func Init(cfg Config) *Provider {
	reg := prometheus.NewRegistry()

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	build := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build info for this binary (value is always 1).",
		},
		[]string{"version", "revision", "branch", "build_date"},
	)
	reg.MustRegister(build)
	v := cfg.Build
	if v.Version == "" {
		v.Version = "dev"
	}
	build.WithLabelValues(v.Version, v.Revision, v.Branch, v.BuildDate).Set(1)

	return &Provider{reg: reg, textfile: cfg.Textfile}
}

func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}

func (p *Provider) Register(cs ...prometheus.Collector) {
	for _, c := range cs {
		p.reg.MustRegister(c)
	}
}

func (p *Provider) Registerer() prometheus.Registerer { return p.reg }

func (p *Provider) Gatherer() prometheus.Gatherer { return p.reg }

// WriteTextfile dumps the registry to the configured text file, in the
// format node_exporter's textfile collector reads. The file is replaced
// atomically.
func (p *Provider) WriteTextfile() error {
	if p.textfile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(p.textfile, p.reg); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", p.textfile, err)
	}
	return nil
}

func (p *Provider) TextfilePath() string { return p.textfile }

package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level   string
	Console bool
	RunID   string
	Service string
}

type ctxKey string

const (
	ctxFacilityKey ctxKey = "facility_id"
	ctxComponent   ctxKey = "component"
	ctxStage       ctxKey = "stage"
)

func WithFacility(ctx context.Context, facilityID string) context.Context {
	if facilityID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxFacilityKey, facilityID)
}

func WithComponent(ctx context.Context, component string) context.Context {
	if component == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxComponent, component)
}

func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxStage, stage)
}

func NewID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// Build returns a zerolog logger writing JSON lines to out. When Console is
// set, only the first writer is rendered for humans; the rest stay JSON so
// the run log remains machine readable.
func Build(cfg Config, out io.Writer, extra ...io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "timestamp"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "msg"

	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	if len(extra) > 0 {
		ws := append([]io.Writer{out}, extra...)
		out = zerolog.MultiLevelWriter(ws...)
	}

	base := zerolog.New(out).Level(parseLevel(cfg.Level))

	ctx := base.With().Timestamp()
	if cfg.RunID != "" {
		ctx = ctx.Str("run_id", cfg.RunID)
	}
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	return ctx.Logger()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// returns a child logger with context fields applied
func FromContext(ctx context.Context, parent *zerolog.Logger) *zerolog.Logger {
	l := withContextFields(ctx, parent, nil)
	return &l
}

func contextValue(ctx context.Context, k ctxKey) (string, bool) {
	s, ok := ctx.Value(k).(string)
	return s, ok && s != ""
}

var contextKeys = []ctxKey{ctxComponent, ctxStage, ctxFacilityKey}

// skip names keys the caller sets itself.
func withContextFields(ctx context.Context, parent *zerolog.Logger, skip map[string]bool) zerolog.Logger {
	var base zerolog.Logger
	if parent == nil {
		base = zerolog.New(io.Discard)
	} else {
		base = *parent
	}
	w := base.With()
	for _, k := range contextKeys {
		if skip[string(k)] {
			continue
		}
		if s, ok := contextValue(ctx, k); ok {
			w = w.Str(string(k), s)
		}
	}
	return w.Logger()
}

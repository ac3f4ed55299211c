// Package logging builds the structured JSON logger shared by the core. Log
// lines use timestamp/severity/message keys so they land in log pipelines
// without a translation step.
package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
)

// NewHandler returns the JSON handler carrying the core's attribute naming.
func NewHandler(w io.Writer) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				attr.Key = "timestamp"
			case slog.LevelKey:
				return slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				attr.Key = "message"
			}
			return attr
		},
	})
}

// Setup installs the core's logger as the process default and bridges the
// standard library logger onto it. Every line carries the service name and,
// when provided, the environment.
func Setup(service, env string) *slog.Logger {
	handler := NewHandler(os.Stdout)

	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}
	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		args = append(args, attr)
	}

	base := slog.New(handler).With(args...)
	slog.SetDefault(base)

	bridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	bridge.SetFlags(0)
	log.SetOutput(bridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}

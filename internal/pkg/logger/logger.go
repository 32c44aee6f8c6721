package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

var base zerolog.Logger

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	base = zerolog.New(os.Stdout).With().Timestamp().Logger()
	log.Logger = base
}

// Init attaches the service name to every log line. Call once from main.
func Init(serviceName string) {
	base = zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", serviceName).
		Logger()
	log.Logger = base
}

// Ctx returns a logger bound to the trace of the given context, so log lines
// can be correlated with spans in Jaeger.
func Ctx(ctx context.Context) *zerolog.Logger {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l := base.With().Str("trace_id", sc.TraceID().String()).Logger()
		return &l
	}
	return &base
}

package invocation

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/oriys/durablevm/internal/logging"
)

// Option configures a Machine at construction time, following the
// functional-options pattern used throughout the reference executor
// package (executor.Option / WithLogger).
type Option func(*Machine)

// WithLogger overrides the default operational logger (logging.Op()). A
// Machine configured this way keeps the caller's logger for its whole
// lifetime; it will not be replaced by the trace-correlated logger Start
// otherwise switches in once a span opens.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		m.log = l
		m.logOverridden = true
	}
}

// WithMaxJournalEntries caps how many entries a single invocation may
// accumulate before the VM refuses further emissions as a protocol
// violation, guarding against a runaway handler turning one invocation
// into an unbounded memory sink.
func WithMaxJournalEntries(n uint32) Option {
	return func(m *Machine) {
		m.maxJournalEntries = n
	}
}

// WithDebugIDGenerator overrides how the Machine mints a debug id when
// the start message doesn't carry one. Defaults to uuid.New().String().
func WithDebugIDGenerator(f func() string) Option {
	return func(m *Machine) {
		m.genDebugID = f
	}
}

// WithTracer overrides the tracer a Machine starts its per-invocation
// span from. Defaults to observability.Tracer(), which is a no-op unless
// the host has called observability.Init with a real OTLP endpoint.
func WithTracer(t trace.Tracer) Option {
	return func(m *Machine) {
		m.tracer = t
	}
}

func defaultLogger() *slog.Logger {
	return logging.Op()
}

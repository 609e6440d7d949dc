// Package trace provides optional latency instrumentation for a command
// call.
//
// Instrumentation is a capability the caller hands in; when no Hook is
// supplied every function here is a no-op. Timing uses time.Now, whose
// monotonic reading makes elapsed durations immune to wall clock jumps.
package trace

import (
	"log/slog"
	"time"
)

// Span tags emitted by the session.
const (
	TagResolve = "resolve"
	TagConnect = "connect"
	TagCommand = "command"
)

// Span describes one measured section of a call.
type Span struct {
	SessionID string
	Tag       string
	Start     time.Time
	Elapsed   time.Duration
}

// Hook receives completed spans. It is called synchronously on the
// calling goroutine.
type Hook func(Span)

// Start begins a span and returns the function that ends it.
//
// Example:
//
//	end := trace.Start(hook, id, trace.TagResolve)
//	addr, err := r.Resolve(host, port)
//	end()
func Start(h Hook, sessionID, tag string) func() {
	if h == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		h(Span{
			SessionID: sessionID,
			Tag:       tag,
			Start:     start,
			Elapsed:   time.Since(start),
		})
	}
}

// LogHook returns a Hook that writes each span to logger at Info level.
func LogHook(logger *slog.Logger) Hook {
	return func(s Span) {
		logger.Info("span",
			"component", "espif",
			"session_id", s.SessionID,
			"tag", s.Tag,
			"start", s.Start,
			"elapsed_ms", s.Elapsed.Milliseconds(),
		)
	}
}

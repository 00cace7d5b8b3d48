// Package spanrt is the distributed trace runtime (C9): span lifecycle,
// parent/child and context propagation compatible with the W3C
// tracecontext format, and bounded per-trace span storage feeding the
// export pipeline (C10).
package spanrt

import (
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/telemetry/internal/terr"
)

// Status is a span's terminal outcome.
type Status int

// Supported statuses.
const (
	StatusUnset Status = iota
	StatusOK
	StatusError
)

// state is a span's lifecycle stage: new -> recording -> finished.
type state int32

const (
	stateNew state = iota
	stateRecording
	stateFinished
)

// Event is a timestamped annotation attached to a span.
type Event struct {
	Timestamp  time.Time
	Name       string
	Attributes map[string]string
}

// Span is a single unit of work in a trace. Spans are shared handles: pass
// *Span, never copy the value.
type Span struct {
	mu sync.Mutex

	traceID      trace.TraceID
	spanID       trace.SpanID
	parentSpanID trace.SpanID
	operation    string
	service      string

	start time.Time
	end   time.Time

	status Status
	tags   map[string]string

	baggage map[string]string
	events  []Event

	st state
}

// TraceID returns the span's trace id.
func (s *Span) TraceID() trace.TraceID { return s.traceID }

// SpanID returns the span's own id.
func (s *Span) SpanID() trace.SpanID { return s.spanID }

// ParentSpanID returns the parent's span id, the zero SpanID for a root
// span.
func (s *Span) ParentSpanID() trace.SpanID { return s.parentSpanID }

// Operation returns the span's operation name.
func (s *Span) Operation() string { return s.operation }

// Service returns the span's service name.
func (s *Span) Service() string { return s.service }

// Start returns the span's start timestamp.
func (s *Span) Start() time.Time { return s.start }

// End returns the span's end timestamp, the zero time if not finished.
func (s *Span) End() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.end
}

// Duration returns End - Start, zero if not finished.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.end.IsZero() {
		return 0
	}

	return s.end.Sub(s.start)
}

// StatusCode returns the span's current status.
func (s *Span) StatusCode() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status
}

// SetStatus sets the span's status. A finished span's status is not
// mutated further.
func (s *Span) SetStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st == stateFinished {
		return
	}

	s.status = status
}

// SetTag sets a tag on the span.
func (s *Span) SetTag(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tags == nil {
		s.tags = make(map[string]string)
	}

	s.tags[key] = value
}

// Tags returns a copy of the span's tags.
func (s *Span) Tags() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.tags))
	for k, v := range s.tags {
		out[k] = v
	}

	return out
}

// Baggage returns a copy of the span's propagated baggage.
func (s *Span) Baggage() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.baggage))
	for k, v := range s.baggage {
		out[k] = v
	}

	return out
}

// AddEvent appends a timestamped event to the span.
func (s *Span) AddEvent(name string, attrs map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, Event{Timestamp: time.Now(), Name: name, Attributes: attrs})
}

// Events returns a copy of the span's recorded events.
func (s *Span) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Event, len(s.events))
	copy(out, s.events)

	return out
}

// finish transitions the span to finished, recording the end time and
// defaulting an unset status to ok. Returns already_exists on double-finish.
func (s *Span) finish(at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st == stateFinished {
		return terr.New(terr.KindAlreadyExists, "spanrt.Finish", "span already finished")
	}

	s.end = at
	if s.status == StatusUnset {
		s.status = StatusOK
	}

	s.st = stateFinished

	return nil
}

// IsFinished reports whether the span has been finished.
func (s *Span) IsFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.st == stateFinished
}

package models

import "time"

type EventType string

const (
	EventPhaseStarted EventType = "phase_started"
	EventEstimate     EventType = "estimate"
	EventCTResult     EventType = "ct_result"
	EventProbeResult  EventType = "probe_result"
	EventProgress     EventType = "progress"
	EventRateLimit    EventType = "rate_limit"
	EventPhaseDone    EventType = "phase_done"
	EventSummary      EventType = "summary"
	EventError        EventType = "error"
)

// Event is a structured progress notification. Rendering is left to the observer.
type Event struct {
	Type    EventType
	Phase   string
	Message string
	Result  *DiscoveryResult
	Fields  map[string]any
	Err     error
	Time    time.Time
}

type Observer interface {
	Notify(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) Notify(e Event) { f(e) }

type nopObserver struct{}

func (nopObserver) Notify(Event) {}

func NopObserver() Observer { return nopObserver{} }

func NewEvent(t EventType, phase, msg string) Event {
	return Event{Type: t, Phase: phase, Message: msg, Time: time.Now()}
}

func (e Event) With(key string, v any) Event {
	fields := make(map[string]any, len(e.Fields)+1)
	for k, val := range e.Fields {
		fields[k] = val
	}
	fields[key] = v
	e.Fields = fields
	return e
}

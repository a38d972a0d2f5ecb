package types

// EventSink consumes semantic stream events, e.g. a renderer or the session
// logger.
type EventSink interface {
	Observe(ev StreamEvent)
}

// Sinks fans one event out to several sinks in order.
type Sinks []EventSink

func (s Sinks) Observe(ev StreamEvent) {
	for _, sink := range s {
		sink.Observe(ev)
	}
}

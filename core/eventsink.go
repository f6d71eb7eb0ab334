package core

import "pkt.systems/penroseide/schema"

// EventSink receives a snapshot after every accepted session transition.
type EventSink interface {
	OnSessionEvent(event schema.SessionEvent)
}

// PrefsSink persists preferences and the draft program.
type PrefsSink interface {
	SaveSettings(settings schema.Settings)
	SaveDraft(text string)
}

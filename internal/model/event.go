// internal/model/event.go
package model

import "time"

// EventType represents the type of event delivered to the workflow loop
type EventType string

const (
	EventSerialConnected EventType = "SERIAL_CONNECTED"
	EventSerialLine      EventType = "SERIAL_LINE"
	EventSerialError     EventType = "SERIAL_ERROR"
	EventRecordFetched   EventType = "RECORD_FETCHED"
	EventFetchFailed     EventType = "FETCH_FAILED"
	EventCableTimeout    EventType = "CABLE_TIMEOUT"
)

// Event is a message posted by a background service onto the workflow
// loop. Generation ties the event to the run that started the service;
// events from a stale generation are discarded on arrival.
type Event struct {
	Type       EventType
	Generation uint64
	Line       string
	Record     *ServerRecord
	Err        error
	Timestamp  time.Time
}

package api

import (
	"strings"
	"time"
)

// EventTypeContractInvalidation is the event type appended to the log when a
// contract is found to be violated.
const EventTypeContractInvalidation = "contract:invalidation"

// Event is a single immutable life-event in the append-only log.
//
// ID is assigned by the store on Append and is strictly increasing.
// Timestamp is always milliseconds since the Unix epoch (UTC); use
// TimestampOf and Event.Time to convert at boundaries.
type Event struct {
	ID          int64
	EventType   string
	Timestamp   int64
	Description string
	Tags        []string
}

// ItemID returns the event's log position. It lets events flow through the
// generic checkpointed queue processor.
func (e Event) ItemID() int64 {
	return e.ID
}

// Time returns the event timestamp as a UTC time.Time.
func (e Event) Time() time.Time {
	return time.UnixMilli(e.Timestamp).UTC()
}

// TimestampOf converts t into the canonical millisecond timestamp.
func TimestampOf(t time.Time) int64 {
	return t.UnixMilli()
}

// NewEvent builds an event stamped with the given time.
func NewEvent(eventType string, at time.Time, description string, tags ...string) Event {
	return Event{
		EventType:   eventType,
		Timestamp:   TimestampOf(at),
		Description: description,
		Tags:        tags,
	}
}

// ParseTags splits a comma-separated tag list, trimming blanks.
func ParseTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

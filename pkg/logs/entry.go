package logs

import (
	"time"

	"github.com/google/uuid"
)

// Entry is one indexed unit of log data. Entries are immutable once
// indexed; they are removed only by a retention sweep or an explicit delete.
type Entry struct {
	// ID is assigned at ingest time and never reused.
	ID string `json:"id"`

	// Timestamp is the event time in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	// RecordTime is the ingest time in Unix milliseconds. Zero means
	// unknown (the producer did not record it).
	RecordTime int64 `json:"record_time,omitempty"`

	// Level is a free-form severity token (ERROR, WARN, info, ...).
	Level string `json:"level,omitempty"`

	Message string `json:"message"`

	// Source identifies the origin of the entry (file path, host, app).
	Source string `json:"source,omitempty"`

	// Metadata holds arbitrary structured fields extracted by the
	// producer. Log data is schema-less: there is no fixed field set.
	Metadata map[string]string `json:"metadata,omitempty"`

	// RawContent is the original unparsed line.
	RawContent string `json:"raw_content,omitempty"`
}

// NewEntry builds an entry with a fresh ID and RecordTime set to now.
func NewEntry(timestamp int64, level, message, source string) Entry {
	return Entry{
		ID:         uuid.NewString(),
		Timestamp:  timestamp,
		RecordTime: time.Now().UnixMilli(),
		Level:      level,
		Message:    message,
		Source:     source,
	}
}

// Field returns the value of a named field. The well-known fields map to
// struct members; anything else is looked up in Metadata. The second
// return reports whether the field is present on this entry.
func (e *Entry) Field(name string) (string, bool) {
	switch name {
	case "level":
		return e.Level, e.Level != ""
	case "message":
		return e.Message, e.Message != ""
	case "source":
		return e.Source, e.Source != ""
	case "id":
		return e.ID, e.ID != ""
	default:
		v, ok := e.Metadata[name]
		return v, ok
	}
}

// EffectiveTime returns the time used for histogram bucketing: the record
// time when known, otherwise the event timestamp.
func (e *Entry) EffectiveTime() int64 {
	if e.RecordTime != 0 {
		return e.RecordTime
	}
	return e.Timestamp
}

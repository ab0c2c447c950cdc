package kafka

import (
	"encoding/json"
	"time"
)

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Trace context (extracted from Kafka headers)
	TraceParent string
}

// PortalSource returns the portal header the scrapers set, if any.
func (m *IncomingMessage) PortalSource() string {
	return m.Headers[HeaderPortalSource]
}

const (
	HeaderEventType     = "event_type"
	HeaderPortalSource  = "portal_source"
	HeaderSchemaVersion = "schema_version"
	HeaderTraceParent   = "traceparent"
)

// Event is the envelope published on the output topic.
type Event struct {
	EventType     string          `json:"event_type"`
	SchemaVersion string          `json:"schema_version"`
	EntityID      string          `json:"entity_id"`
	EntityType    string          `json:"entity_type"`
	Data          json.RawMessage `json:"data,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

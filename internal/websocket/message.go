package websocket

import (
	"encoding/json"
	"time"
)

// Message types pushed to dashboard clients.
const (
	MessageTypeIncidentOpened    = "incident_opened"
	MessageTypeIncidentResolved  = "incident_resolved"
	MessageTypeIncidentEscalated = "incident_escalated"
	MessageTypeRuleUpdated       = "rule_updated"
	MessageTypeHeartbeat         = "heartbeat"
	MessageTypeConnection        = "connection"
)

// Message represents a WebSocket message
type Message struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// ToJSON converts the message to JSON bytes
func (m Message) ToJSON() []byte {
	m.Timestamp = time.Now().UTC()
	data, _ := json.Marshal(m)
	return data
}

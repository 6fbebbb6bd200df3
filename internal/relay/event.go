// Package relay binds exactly one desk and one scanner per desk session and
// forwards a fixed vocabulary of events between them.
package relay

import "encoding/json"

// Event is the wire envelope for every relay message, in both directions.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Event vocabulary.
const (
	EventJoinDesk            = "join-desk"
	EventJoinScanner         = "join-scanner"
	EventDeskJoined          = "desk-joined"
	EventScannerJoined       = "scanner-joined"
	EventScannerConnected    = "scanner-connected"
	EventScannerDisconnected = "scanner-disconnected"
	EventDeskDisconnected    = "desk-disconnected"
	EventScanParticipant     = "scan-participant"
	EventScanAcknowledged    = "scan-acknowledged"
	EventResumeScanning      = "resume-scanning"
	EventClearScan           = "clear-scan"
	EventError               = "error"
)

// Role tags a connection exactly once at join time; it is the sole
// authorization context for subsequent events from that connection.
type Role string

const (
	RoleDesk    Role = "desk"
	RoleScanner Role = "scanner"
)

// JoinPayload carries the pairing credentials on join-desk / join-scanner.
type JoinPayload struct {
	DeskID    string `json:"deskId"`
	Signature string `json:"signature"`
}

// JoinedPayload confirms a join back to the joining peer.
type JoinedPayload struct {
	DeskID string `json:"deskId"`
}

// ScanPayload carries a decoded badge identifier.
type ScanPayload struct {
	UniqueID string `json:"uniqueId"`
}

// ErrorPayload is sent to the offending peer; all relay errors are local and
// recoverable.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewEvent marshals payload into an Event. A nil payload produces an event
// with no data field.
func NewEvent(eventType string, payload any) Event {
	if payload == nil {
		return Event{Type: eventType}
	}
	data, _ := json.Marshal(payload)
	return Event{Type: eventType, Data: data}
}

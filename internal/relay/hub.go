package relay

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/hosteldesk/desk-relay-go/internal/errors"
	"github.com/hosteldesk/desk-relay-go/internal/model"
	"github.com/hosteldesk/desk-relay-go/internal/repository"
	"github.com/hosteldesk/desk-relay-go/internal/session"
	"github.com/hosteldesk/desk-relay-go/internal/util"
)

const journalTimeout = 5 * time.Second

// Peer is one live connection. Send must not block; an implementation drops
// the peer instead of stalling the hub.
type Peer interface {
	ID() string
	Send(event Event) error
	Close()
}

// room holds at most one desk and one scanner bound under a desk session id.
// A new join for a role supersedes the existing holder, which tolerates page
// refreshes without an explicit teardown.
type room struct {
	desk    Peer
	scanner Peer
}

func (rm *room) empty() bool {
	return rm.desk == nil && rm.scanner == nil
}

// Hub owns all pairing rooms. Every mutation and the notifications it
// triggers happen under one mutex, so each inbound event is handled to
// completion before the next.
type Hub struct {
	mu       sync.Mutex
	rooms    map[string]*room
	registry session.Registry
	journal  repository.ScanJournal // nil when no database is configured
}

func NewHub(registry session.Registry, journal repository.ScanJournal) *Hub {
	return &Hub{
		rooms:    make(map[string]*room),
		registry: registry,
		journal:  journal,
	}
}

// JoinDesk binds p as the desk for the session, creating the room if needed.
// Returns true when the connection is bound, so the transport can tag it.
func (h *Hub) JoinDesk(ctx context.Context, p Peer, deskID, signature string) bool {
	if !h.registry.Validate(ctx, deskID, signature) {
		h.sendError(p, apperrors.Unauthorized("Invalid or expired desk session"))
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	rm := h.rooms[deskID]
	if rm == nil {
		rm = &room{}
		h.rooms[deskID] = rm
	}

	prev := rm.desk
	rm.desk = p
	if prev != nil && prev != p {
		// A refreshed desk page silently evicts the prior connection;
		// closing the superseded socket avoids leaking it.
		prev.Close()
	}

	h.send(deskID, p, NewEvent(EventDeskJoined, JoinedPayload{DeskID: deskID}))
	if rm.scanner != nil {
		// A rejoining desk recovers the current pairing status.
		h.send(deskID, p, NewEvent(EventScannerConnected, nil))
	}

	log.Info().
		Str("deskId", util.MaskToken(deskID)).
		Str("connId", p.ID()).
		Bool("scannerBound", rm.scanner != nil).
		Msg("desk joined room")

	return true
}

// JoinScanner binds p as the scanner. A scanner cannot originate a room: if
// no desk has ever joined the session, the join is rejected.
func (h *Hub) JoinScanner(ctx context.Context, p Peer, deskID, signature string) bool {
	if !h.registry.Validate(ctx, deskID, signature) {
		h.sendError(p, apperrors.Unauthorized("Invalid or expired desk session"))
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	rm := h.rooms[deskID]
	if rm == nil {
		h.sendError(p, apperrors.RoomNotFound())
		return false
	}

	prev := rm.scanner
	rm.scanner = p
	if prev != nil && prev != p {
		prev.Close()
	}

	h.send(deskID, p, NewEvent(EventScannerJoined, JoinedPayload{DeskID: deskID}))
	if rm.desk != nil {
		h.send(deskID, rm.desk, NewEvent(EventScannerConnected, nil))
	}

	log.Info().
		Str("deskId", util.MaskToken(deskID)).
		Str("connId", p.ID()).
		Bool("deskBound", rm.desk != nil).
		Msg("scanner joined room")

	return true
}

// ScanParticipant relays a decoded badge id to the bound desk and echoes the
// acknowledgment to the scanner itself, so it can display the last scan
// without a round trip through the desk.
func (h *Hub) ScanParticipant(p Peer, role Role, deskID, uniqueID string) {
	if role != RoleScanner {
		h.sendError(p, apperrors.ProtocolViolation("Only a scanner can submit scans"))
		return
	}
	if uniqueID == "" {
		h.sendError(p, apperrors.MissingRequired("uniqueId"))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	rm := h.rooms[deskID]
	if rm == nil || rm.desk == nil {
		h.sendError(p, apperrors.PeerUnavailable("desk"))
		return
	}

	ack := NewEvent(EventScanAcknowledged, ScanPayload{UniqueID: uniqueID})
	h.send(deskID, rm.desk, ack)
	h.send(deskID, p, ack)

	log.Info().
		Str("deskId", util.MaskToken(deskID)).
		Str("uniqueId", uniqueID).
		Msg("scan relayed to desk")

	if h.journal != nil {
		go h.recordScan(deskID, uniqueID)
	}
}

// ResumeScanning tells the bound scanner to restart its decode loop.
func (h *Hub) ResumeScanning(p Peer, role Role, deskID string) {
	if role != RoleDesk {
		h.sendError(p, apperrors.ProtocolViolation("Only a desk can resume scanning"))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	rm := h.rooms[deskID]
	if rm == nil || rm.scanner == nil {
		h.sendError(p, apperrors.PeerUnavailable("scanner"))
		return
	}

	h.send(deskID, rm.scanner, NewEvent(EventResumeScanning, nil))
}

// ClearScan is relayed from whichever side emits it to the other bound side,
// resetting the "last scanned" display on both ends together.
func (h *Hub) ClearScan(p Peer, role Role, deskID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rm := h.rooms[deskID]
	if rm == nil {
		h.sendError(p, apperrors.RoomNotFound())
		return
	}

	var target Peer
	var targetRole string
	switch role {
	case RoleDesk:
		target, targetRole = rm.scanner, "scanner"
	case RoleScanner:
		target, targetRole = rm.desk, "desk"
	default:
		h.sendError(p, apperrors.ProtocolViolation("Join a session before clearing"))
		return
	}

	if target == nil {
		h.sendError(p, apperrors.PeerUnavailable(targetRole))
		return
	}

	h.send(deskID, target, NewEvent(EventClearScan, nil))
}

// Disconnect clears the slot p held, notifies the remaining peer, and deletes
// the room once both slots are empty. A superseded connection disconnecting
// late must not clear the slot of its replacement.
func (h *Hub) Disconnect(p Peer, role Role, deskID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rm := h.rooms[deskID]
	if rm == nil {
		return
	}

	switch role {
	case RoleDesk:
		if rm.desk != p {
			return
		}
		rm.desk = nil
		if rm.scanner != nil {
			h.send(deskID, rm.scanner, NewEvent(EventDeskDisconnected, nil))
		}
	case RoleScanner:
		if rm.scanner != p {
			return
		}
		rm.scanner = nil
		if rm.desk != nil {
			h.send(deskID, rm.desk, NewEvent(EventScannerDisconnected, nil))
		}
	default:
		return
	}

	if rm.empty() {
		delete(h.rooms, deskID)
	}

	log.Info().
		Str("deskId", util.MaskToken(deskID)).
		Str("connId", p.ID()).
		Str("role", string(role)).
		Msg("peer disconnected from room")
}

// RoomCount returns the number of live rooms.
func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

func (h *Hub) send(deskID string, p Peer, event Event) {
	if err := p.Send(event); err != nil {
		log.Warn().
			Err(err).
			Str("deskId", util.MaskToken(deskID)).
			Str("connId", p.ID()).
			Str("eventType", event.Type).
			Msg("peer send buffer full, dropping event")
	}
}

func (h *Hub) sendError(p Peer, appErr *apperrors.AppError) {
	event := NewEvent(EventError, ErrorPayload{
		Code:    string(appErr.Code),
		Message: appErr.Message,
	})
	if err := p.Send(event); err != nil {
		log.Warn().
			Err(err).
			Str("connId", p.ID()).
			Msg("failed to deliver error event")
	}
}

func (h *Hub) recordScan(deskID, uniqueID string) {
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()

	_, err := h.journal.Record(ctx, model.CreateScanRecordParams{
		DeskID:   deskID,
		UniqueID: uniqueID,
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("deskId", util.MaskToken(deskID)).
			Msg("failed to journal scan")
	}
}

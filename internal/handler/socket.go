package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/hosteldesk/desk-relay-go/internal/audit"
	"github.com/hosteldesk/desk-relay-go/internal/config"
	apperrors "github.com/hosteldesk/desk-relay-go/internal/errors"
	"github.com/hosteldesk/desk-relay-go/internal/relay"
	"github.com/hosteldesk/desk-relay-go/internal/util"
)

// SocketHandler upgrades connections on the pairing socket path and pumps
// events between each connection and the relay hub.
type SocketHandler struct {
	hub      *relay.Hub
	upgrader websocket.Upgrader
}

func NewSocketHandler(hub *relay.Hub) *SocketHandler {
	return &SocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// The pairing link is opened from the scanner's mobile
				// browser; authorization is the session credential, not
				// the Origin header.
				return true
			},
		},
	}
}

// GET /accommodationsocket
func (h *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade pairing socket")
		return
	}

	peer := newSocketPeer(sock)
	go peer.writePump()

	log.Debug().Str("connId", peer.ID()).Msg("pairing socket connected")

	h.readPump(r, peer)
}

// readPump handles one connection until it closes. The connection's role and
// desk id are assigned exactly once, on its first successful join.
func (h *SocketHandler) readPump(r *http.Request, peer *socketPeer) {
	var (
		role   relay.Role
		deskID string
	)

	defer func() {
		if role != "" {
			h.hub.Disconnect(peer, role, deskID)
		}
		peer.Close()
	}()

	peer.sock.SetReadLimit(config.SocketMaxMessageBytes)

	for {
		var event relay.Event
		if err := peer.sock.ReadJSON(&event); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("connId", peer.ID()).Msg("pairing socket read error")
			}
			return
		}

		switch event.Type {
		case relay.EventJoinDesk:
			// A connection is tagged with its role and session exactly once;
			// rebinding would leave a slot holding a dead peer on close.
			if role != "" {
				h.sendError(peer, apperrors.ProtocolViolation("Connection already joined a session"))
				continue
			}
			join, ok := h.decodeJoin(peer, event)
			if !ok {
				continue
			}
			if h.hub.JoinDesk(r.Context(), peer, join.DeskID, join.Signature) {
				role, deskID = relay.RoleDesk, join.DeskID
				audit.LogFromRequest(r, audit.Event{
					Type:   audit.EventDeskJoin,
					DeskID: util.MaskToken(deskID),
					ConnID: peer.ID(),
				})
			} else {
				audit.LogFromRequest(r, audit.Event{
					Type:   audit.EventAuthFailure,
					DeskID: util.MaskToken(join.DeskID),
					ConnID: peer.ID(),
				})
			}

		case relay.EventJoinScanner:
			if role != "" {
				h.sendError(peer, apperrors.ProtocolViolation("Connection already joined a session"))
				continue
			}
			join, ok := h.decodeJoin(peer, event)
			if !ok {
				continue
			}
			if h.hub.JoinScanner(r.Context(), peer, join.DeskID, join.Signature) {
				role, deskID = relay.RoleScanner, join.DeskID
				audit.LogFromRequest(r, audit.Event{
					Type:   audit.EventScannerJoin,
					DeskID: util.MaskToken(deskID),
					ConnID: peer.ID(),
				})
			} else {
				audit.LogFromRequest(r, audit.Event{
					Type:   audit.EventAuthFailure,
					DeskID: util.MaskToken(join.DeskID),
					ConnID: peer.ID(),
				})
			}

		case relay.EventScanParticipant:
			if role == "" {
				h.sendError(peer, apperrors.ProtocolViolation("Join a session before sending events"))
				continue
			}
			var scan relay.ScanPayload
			if err := json.Unmarshal(event.Data, &scan); err != nil {
				h.sendError(peer, apperrors.InvalidInput("scan-participant", "payload must be JSON"))
				continue
			}
			h.hub.ScanParticipant(peer, role, deskID, scan.UniqueID)

		case relay.EventResumeScanning:
			if role == "" {
				h.sendError(peer, apperrors.ProtocolViolation("Join a session before sending events"))
				continue
			}
			h.hub.ResumeScanning(peer, role, deskID)

		case relay.EventClearScan:
			if role == "" {
				h.sendError(peer, apperrors.ProtocolViolation("Join a session before sending events"))
				continue
			}
			h.hub.ClearScan(peer, role, deskID)

		default:
			h.sendError(peer, apperrors.ProtocolViolation("Unknown event type: "+event.Type))
		}
	}
}

func (h *SocketHandler) decodeJoin(peer *socketPeer, event relay.Event) (relay.JoinPayload, bool) {
	var join relay.JoinPayload
	if err := json.Unmarshal(event.Data, &join); err != nil {
		h.sendError(peer, apperrors.InvalidInput(event.Type, "payload must be JSON"))
		return join, false
	}
	if join.DeskID == "" || join.Signature == "" {
		h.sendError(peer, apperrors.MissingRequired("deskId and signature"))
		return join, false
	}
	return join, true
}

func (h *SocketHandler) sendError(peer *socketPeer, appErr *apperrors.AppError) {
	event := relay.NewEvent(relay.EventError, relay.ErrorPayload{
		Code:    string(appErr.Code),
		Message: appErr.Message,
	})
	if err := peer.Send(event); err != nil {
		log.Warn().Err(err).Str("connId", peer.ID()).Msg("failed to deliver error event")
	}
}

// socketPeer adapts a websocket connection to the hub's Peer interface: a
// buffered outbound channel drained by a single writer goroutine, so event
// order is preserved and Send never blocks the hub.
type socketPeer struct {
	id   string
	sock *websocket.Conn
	send chan relay.Event
	done chan struct{}
	once sync.Once
}

func newSocketPeer(sock *websocket.Conn) *socketPeer {
	return &socketPeer{
		id:   uuid.NewString(),
		sock: sock,
		send: make(chan relay.Event, config.SocketSendBuffer),
		done: make(chan struct{}),
	}
}

func (p *socketPeer) ID() string {
	return p.id
}

func (p *socketPeer) Send(event relay.Event) error {
	select {
	case <-p.done:
		return errors.New("connection closed")
	case p.send <- event:
		return nil
	default:
		return errors.New("send buffer full")
	}
}

func (p *socketPeer) Close() {
	p.once.Do(func() {
		close(p.done)
		p.sock.Close()
	})
}

func (p *socketPeer) writePump() {
	for {
		select {
		case <-p.done:
			return
		case event := <-p.send:
			if err := p.sock.WriteJSON(event); err != nil {
				log.Debug().Err(err).Str("connId", p.id).Msg("pairing socket write error")
				p.Close()
				return
			}
		}
	}
}

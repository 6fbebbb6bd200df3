package handler

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hosteldesk/desk-relay-go/internal/relay"
	"github.com/hosteldesk/desk-relay-go/internal/session"
)

const socketReadTimeout = 2 * time.Second

func newSocketServer(t *testing.T) (*httptest.Server, session.Registry) {
	t.Helper()
	registry := session.NewMemoryRegistry(30 * time.Minute)
	hub := relay.NewHub(registry, nil)
	srv := httptest.NewServer(NewSocketHandler(hub))
	t.Cleanup(srv.Close)
	return srv, registry
}

func dialSocket(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	sock, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { sock.Close() })
	return sock
}

func readEvent(t *testing.T, sock *websocket.Conn) relay.Event {
	t.Helper()
	require.NoError(t, sock.SetReadDeadline(time.Now().Add(socketReadTimeout)))
	var event relay.Event
	require.NoError(t, sock.ReadJSON(&event))
	return event
}

func joinAs(t *testing.T, sock *websocket.Conn, eventType, deskID, signature string) relay.Event {
	t.Helper()
	require.NoError(t, sock.WriteJSON(relay.NewEvent(eventType, relay.JoinPayload{
		DeskID:    deskID,
		Signature: signature,
	})))
	return readEvent(t, sock)
}

func TestSocketPairing(t *testing.T) {
	srv, registry := newSocketServer(t)
	deskSession := createSession(t, registry)

	desk := dialSocket(t, srv)
	joined := joinAs(t, desk, relay.EventJoinDesk, deskSession.ID, deskSession.Signature)
	assert.Equal(t, relay.EventDeskJoined, joined.Type)

	scanner := dialSocket(t, srv)
	joined = joinAs(t, scanner, relay.EventJoinScanner, deskSession.ID, deskSession.Signature)
	assert.Equal(t, relay.EventScannerJoined, joined.Type)

	assert.Equal(t, relay.EventScannerConnected, readEvent(t, desk).Type)
}

func TestSocketScanFlow(t *testing.T) {
	srv, registry := newSocketServer(t)
	deskSession := createSession(t, registry)

	desk := dialSocket(t, srv)
	joinAs(t, desk, relay.EventJoinDesk, deskSession.ID, deskSession.Signature)

	scanner := dialSocket(t, srv)
	joinAs(t, scanner, relay.EventJoinScanner, deskSession.ID, deskSession.Signature)
	readEvent(t, desk) // scanner-connected

	require.NoError(t, scanner.WriteJSON(relay.NewEvent(relay.EventScanParticipant,
		relay.ScanPayload{UniqueID: "INF0042"})))

	// Both sides receive the acknowledgment.
	assert.Equal(t, relay.EventScanAcknowledged, readEvent(t, desk).Type)
	assert.Equal(t, relay.EventScanAcknowledged, readEvent(t, scanner).Type)

	// Desk resumes the scanner.
	require.NoError(t, desk.WriteJSON(relay.NewEvent(relay.EventResumeScanning, nil)))
	assert.Equal(t, relay.EventResumeScanning, readEvent(t, scanner).Type)
}

func TestSocketRejectsInvalidJoin(t *testing.T) {
	t.Run("unknown session", func(t *testing.T) {
		srv, _ := newSocketServer(t)

		sock := dialSocket(t, srv)
		event := joinAs(t, sock, relay.EventJoinDesk, "no-such-desk", "sig")
		assert.Equal(t, relay.EventError, event.Type)
	})

	t.Run("missing credentials", func(t *testing.T) {
		srv, _ := newSocketServer(t)

		sock := dialSocket(t, srv)
		event := joinAs(t, sock, relay.EventJoinDesk, "", "")
		assert.Equal(t, relay.EventError, event.Type)
	})
}

func TestSocketRejectsEventsBeforeJoin(t *testing.T) {
	srv, _ := newSocketServer(t)

	sock := dialSocket(t, srv)
	require.NoError(t, sock.WriteJSON(relay.NewEvent(relay.EventScanParticipant,
		relay.ScanPayload{UniqueID: "INF0042"})))

	assert.Equal(t, relay.EventError, readEvent(t, sock).Type)
}

func TestSocketRejectsSecondJoin(t *testing.T) {
	registry := session.NewMemoryRegistry(30 * time.Minute)
	hub := relay.NewHub(registry, nil)
	srv := httptest.NewServer(NewSocketHandler(hub))
	t.Cleanup(srv.Close)
	deskSession := createSession(t, registry)

	desk := dialSocket(t, srv)
	joined := joinAs(t, desk, relay.EventJoinDesk, deskSession.ID, deskSession.Signature)
	require.Equal(t, relay.EventDeskJoined, joined.Type)

	// The same connection must not take the scanner slot as well.
	event := joinAs(t, desk, relay.EventJoinScanner, deskSession.ID, deskSession.Signature)
	require.Equal(t, relay.EventError, event.Type)
	var relayErr relay.ErrorPayload
	require.NoError(t, json.Unmarshal(event.Data, &relayErr))
	assert.Equal(t, "PROTOCOL_VIOLATION", relayErr.Code)

	// Rebinding to the desk slot is rejected the same way.
	event = joinAs(t, desk, relay.EventJoinDesk, deskSession.ID, deskSession.Signature)
	require.Equal(t, relay.EventError, event.Type)

	// The scanner slot stayed free and pairs normally.
	scanner := dialSocket(t, srv)
	joined = joinAs(t, scanner, relay.EventJoinScanner, deskSession.ID, deskSession.Signature)
	require.Equal(t, relay.EventScannerJoined, joined.Type)
	require.Equal(t, relay.EventScannerConnected, readEvent(t, desk).Type)

	// Closing both connections leaves no room behind.
	desk.Close()
	require.Equal(t, relay.EventDeskDisconnected, readEvent(t, scanner).Type)
	scanner.Close()
	require.Eventually(t, func() bool {
		return hub.RoomCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestSocketRejectsUnknownEventType(t *testing.T) {
	srv, registry := newSocketServer(t)
	deskSession := createSession(t, registry)

	sock := dialSocket(t, srv)
	joinAs(t, sock, relay.EventJoinDesk, deskSession.ID, deskSession.Signature)

	require.NoError(t, sock.WriteJSON(relay.Event{Type: "launch-missiles"}))
	assert.Equal(t, relay.EventError, readEvent(t, sock).Type)
}

func TestSocketDisconnectNotifiesPeer(t *testing.T) {
	srv, registry := newSocketServer(t)
	deskSession := createSession(t, registry)

	desk := dialSocket(t, srv)
	joinAs(t, desk, relay.EventJoinDesk, deskSession.ID, deskSession.Signature)

	scanner := dialSocket(t, srv)
	joinAs(t, scanner, relay.EventJoinScanner, deskSession.ID, deskSession.Signature)
	readEvent(t, desk) // scanner-connected

	scanner.Close()

	assert.Equal(t, relay.EventScannerDisconnected, readEvent(t, desk).Type)
}

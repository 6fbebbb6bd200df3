// Package scanner implements the mobile side of a pairing: join a desk
// session from link parameters, decode badges from a camera stream, and emit
// each scan to the relay, pausing until the desk releases the next one.
package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/hosteldesk/desk-relay-go/internal/relay"
	"github.com/hosteldesk/desk-relay-go/internal/util"
)

// Status mirrors the scanner UI status line.
type Status string

const (
	StatusConnecting  Status = "connecting"
	StatusJoined      Status = "joined"
	StatusDecoding    Status = "decoding"
	StatusPaused      Status = "paused"
	StatusDeskOffline Status = "desk-offline"
	StatusCameraError Status = "camera-error"
)

// FrameSource is the camera decode stream: Next blocks until a QR code has
// been decoded from a frame and returns its text. Camera acquisition and QR
// decoding live behind this interface.
type FrameSource interface {
	Next(ctx context.Context) (string, error)
}

type Config struct {
	SocketURL string // ws:// or wss:// pairing socket endpoint
	DeskID    string // from the pairing link query parameters
	Signature string
	Frames    FrameSource
	OnStatus  func(Status)          // optional
	OnScan    func(uniqueID string) // confirmation of the last accepted scan
	OnClear   func()                // optional
	Dialer    *websocket.Dialer     // optional
}

type Client struct {
	cfg    Config
	resume chan struct{}

	writeMu sync.Mutex
	sock    *websocket.Conn
}

func New(cfg Config) *Client {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Client{
		cfg:    cfg,
		resume: make(chan struct{}, 1),
	}
}

// Run joins the relay and drives the decode loop until ctx is cancelled, the
// connection drops, or the join is rejected.
func (c *Client) Run(ctx context.Context) error {
	c.setStatus(StatusConnecting)

	sock, _, err := c.cfg.Dialer.DialContext(ctx, c.cfg.SocketURL, nil)
	if err != nil {
		return fmt.Errorf("dial pairing socket: %w", err)
	}
	c.sock = sock
	defer sock.Close()

	// Unblock the read loop when the caller cancels.
	go func() {
		<-ctx.Done()
		sock.Close()
	}()

	join := relay.NewEvent(relay.EventJoinScanner, relay.JoinPayload{
		DeskID:    c.cfg.DeskID,
		Signature: c.cfg.Signature,
	})
	if err := c.writeEvent(join); err != nil {
		return fmt.Errorf("join session: %w", err)
	}

	decodeCtx, stopDecoding := context.WithCancel(ctx)
	defer stopDecoding()

	joined := false
	for {
		var event relay.Event
		if err := c.sock.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("pairing socket closed: %w", err)
		}

		switch event.Type {
		case relay.EventScannerJoined:
			if !joined {
				joined = true
				c.setStatus(StatusJoined)
				go c.decodeLoop(decodeCtx)
				c.signalResume()
			}

		case relay.EventScanAcknowledged:
			var scan relay.ScanPayload
			if err := json.Unmarshal(event.Data, &scan); err != nil {
				log.Warn().Err(err).Msg("malformed scan acknowledgment")
				continue
			}
			// Echoed back by the relay; stay paused until the desk has
			// processed the scan.
			c.setStatus(StatusPaused)
			if c.cfg.OnScan != nil {
				c.cfg.OnScan(scan.UniqueID)
			}

		case relay.EventResumeScanning:
			c.signalResume()

		case relay.EventClearScan:
			if c.cfg.OnClear != nil {
				c.cfg.OnClear()
			}
			c.signalResume()

		case relay.EventDeskDisconnected:
			// Non-fatal: the desk may refresh and rejoin while we hold the
			// session.
			c.setStatus(StatusDeskOffline)

		case relay.EventError:
			var relayErr relay.ErrorPayload
			if err := json.Unmarshal(event.Data, &relayErr); err != nil {
				relayErr.Message = "unknown relay error"
			}
			if !joined {
				return fmt.Errorf("join rejected: %s", relayErr.Message)
			}
			log.Warn().
				Str("code", relayErr.Code).
				Str("message", relayErr.Message).
				Msg("relay error")

		default:
			log.Debug().Str("eventType", event.Type).Msg("ignoring event")
		}
	}
}

// decodeLoop waits for a resume signal, decodes frames until one yields a
// participant id, emits it, and pauses itself until the next resume. The
// pause prevents the same badge from being scanned repeatedly while the desk
// operator is still reading the first result.
func (c *Client) decodeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.resume:
		}

		c.setStatus(StatusDecoding)

		for {
			text, err := c.cfg.Frames.Next(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				// Camera acquisition failures need user action (permission
				// grant); there is nothing to retry here.
				log.Error().Err(err).Msg("camera decode failed")
				c.setStatus(StatusCameraError)
				return
			}

			uniqueID := ParseBadge(text)
			if uniqueID == "" {
				continue
			}

			scan := relay.NewEvent(relay.EventScanParticipant, relay.ScanPayload{
				UniqueID: uniqueID,
			})
			if err := c.writeEvent(scan); err != nil {
				log.Error().Err(err).Msg("failed to emit scan")
				return
			}

			log.Info().
				Str("deskId", util.MaskToken(c.cfg.DeskID)).
				Str("uniqueId", uniqueID).
				Msg("scan emitted")

			c.setStatus(StatusPaused)
			break
		}
	}
}

func (c *Client) writeEvent(event relay.Event) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.sock.WriteJSON(event)
}

func (c *Client) signalResume() {
	select {
	case c.resume <- struct{}{}:
	default:
	}
}

func (c *Client) setStatus(status Status) {
	if c.cfg.OnStatus != nil {
		c.cfg.OnStatus(status)
	}
}

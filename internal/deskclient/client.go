// Package deskclient implements the helpdesk side of a pairing: request a
// desk session, render it as a pairing link, and react to relay events so a
// badge scan on the phone populates the desk's search field.
package deskclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/hosteldesk/desk-relay-go/internal/relay"
	"github.com/hosteldesk/desk-relay-go/internal/util"
)

// State mirrors the desk UI connection indicator.
type State string

const (
	StateDisabled      State = "disabled"
	StateRequesting    State = "requesting"
	StateIdle          State = "idle"    // joined, waiting for a scanner
	StatePaired        State = "paired"  // scanner connected
	StateAwaitingClear State = "awaiting-clear"
)

const scanBuffer = 16

type Config struct {
	ServerURL  string            // base http(s) URL for /desk endpoints
	SocketURL  string            // ws(s) URL of the pairing socket
	Store      SessionStore      // optional; persists the session credential
	HTTPClient *http.Client      // optional
	Dialer     *websocket.Dialer // optional
	OnStatus   func(State)       // optional
}

type Client struct {
	cfg Config

	mu          sync.Mutex
	state       State
	session     *StoredSession
	scannerUp   bool
	currentScan string
	done        chan struct{}
	doneClosed  bool

	writeMu sync.Mutex
	sock    *websocket.Conn

	scans chan string
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Client{
		cfg:        cfg,
		state:      StateDisabled,
		scans:      make(chan string, scanBuffer),
		done:       make(chan struct{}),
		doneClosed: true, // not enabled yet
	}
}

// Enable obtains a session (reusing a persisted one when still valid), joins
// the relay as the desk, and starts the background refresh loop.
func (c *Client) Enable(ctx context.Context) error {
	c.setState(StateRequesting)

	session, err := c.obtainSession(ctx)
	if err != nil {
		c.setState(StateDisabled)
		return err
	}

	c.mu.Lock()
	c.session = session
	c.done = make(chan struct{})
	c.doneClosed = false
	done := c.done
	c.mu.Unlock()

	if c.cfg.Store != nil {
		if err := c.cfg.Store.Save(session); err != nil {
			log.Warn().Err(err).Msg("failed to persist desk session")
		}
	}

	sock, _, err := c.cfg.Dialer.DialContext(ctx, c.cfg.SocketURL, nil)
	if err != nil {
		c.setState(StateDisabled)
		return fmt.Errorf("dial pairing socket: %w", err)
	}
	c.writeMu.Lock()
	c.sock = sock
	c.writeMu.Unlock()

	join := relay.NewEvent(relay.EventJoinDesk, relay.JoinPayload{
		DeskID:    session.DeskID,
		Signature: session.Signature,
	})
	if err := c.writeEvent(join); err != nil {
		sock.Close()
		c.setState(StateDisabled)
		return fmt.Errorf("join session: %w", err)
	}

	go c.readLoop(sock, done)
	go c.refreshLoop(session, done)

	return nil
}

// Disable leaves the relay and discards the persisted session. It is safe to
// call repeatedly and before Enable; the client can be enabled again after.
func (c *Client) Disable(ctx context.Context) error {
	c.mu.Lock()
	if !c.doneClosed {
		close(c.done)
		c.doneClosed = true
	}
	session := c.session
	c.session = nil
	c.mu.Unlock()

	c.writeMu.Lock()
	sock := c.sock
	c.sock = nil
	c.writeMu.Unlock()
	if sock != nil {
		sock.Close()
	}

	if c.cfg.Store != nil {
		if err := c.cfg.Store.Clear(); err != nil {
			log.Warn().Err(err).Msg("failed to clear persisted desk session")
		}
	}

	c.setState(StateDisabled)

	if session == nil {
		return nil
	}
	_, err := c.postCredentials(ctx, "/desk/disable", session)
	return err
}

// PairingURL renders the link the desk encodes as a QR code for the scanner.
func (c *Client) PairingURL(base string) (string, error) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	if session == nil {
		return "", fmt.Errorf("no active desk session")
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set("deskId", session.DeskID)
	q.Set("signature", session.Signature)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Scans delivers each acknowledged badge id; the surrounding UI uses it to
// populate the lookup field.
func (c *Client) Scans() <-chan string {
	return c.scans
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) ScannerConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scannerUp
}

func (c *Client) CurrentScan() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentScan
}

// Resume releases the scanner for the next badge after the current scan has
// been processed.
func (c *Client) Resume() error {
	c.mu.Lock()
	c.currentScan = ""
	c.mu.Unlock()
	c.restoreConnectedState()
	return c.writeEvent(relay.NewEvent(relay.EventResumeScanning, nil))
}

// Clear resets the "last scanned" display on both ends and releases the
// scanner.
func (c *Client) Clear() error {
	c.mu.Lock()
	c.currentScan = ""
	c.mu.Unlock()
	c.restoreConnectedState()
	if err := c.writeEvent(relay.NewEvent(relay.EventClearScan, nil)); err != nil {
		return err
	}
	return c.writeEvent(relay.NewEvent(relay.EventResumeScanning, nil))
}

func (c *Client) readLoop(sock *websocket.Conn, done chan struct{}) {
	for {
		var event relay.Event
		if err := sock.ReadJSON(&event); err != nil {
			select {
			case <-done:
			default:
				log.Warn().Err(err).Msg("pairing socket closed")
				c.setState(StateDisabled)
			}
			return
		}

		switch event.Type {
		case relay.EventDeskJoined:
			c.setState(StateIdle)

		case relay.EventScannerConnected:
			c.mu.Lock()
			c.scannerUp = true
			c.mu.Unlock()
			c.setState(StatePaired)

		case relay.EventScannerDisconnected:
			c.mu.Lock()
			c.scannerUp = false
			c.mu.Unlock()
			c.setState(StateIdle)

		case relay.EventScanAcknowledged:
			var scan relay.ScanPayload
			if err := json.Unmarshal(event.Data, &scan); err != nil {
				log.Warn().Err(err).Msg("malformed scan acknowledgment")
				continue
			}
			c.mu.Lock()
			c.currentScan = scan.UniqueID
			c.mu.Unlock()
			c.setState(StateAwaitingClear)
			select {
			case c.scans <- scan.UniqueID:
			default:
				log.Warn().Str("uniqueId", scan.UniqueID).Msg("scan buffer full, dropping scan")
			}

		case relay.EventClearScan:
			c.mu.Lock()
			c.currentScan = ""
			c.mu.Unlock()
			c.restoreConnectedState()

		case relay.EventError:
			var relayErr relay.ErrorPayload
			if err := json.Unmarshal(event.Data, &relayErr); err != nil {
				relayErr.Message = "unknown relay error"
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

// refreshLoop keeps the session alive while the desk stays enabled.
func (c *Client) refreshLoop(session *StoredSession, done chan struct{}) {
	interval := time.Until(session.ExpiresAt) / 3
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			expiresAt, err := c.refreshSession(ctx, session)
			cancel()
			if err != nil {
				log.Warn().Err(err).Msg("desk session refresh failed")
				continue
			}

			c.mu.Lock()
			if c.session != nil {
				c.session.ExpiresAt = expiresAt
			}
			c.mu.Unlock()

			if c.cfg.Store != nil {
				if err := c.cfg.Store.Save(session); err != nil {
					log.Warn().Err(err).Msg("failed to persist refreshed desk session")
				}
			}

			log.Debug().
				Str("deskId", util.MaskToken(session.DeskID)).
				Time("expiresAt", expiresAt).
				Msg("desk session refreshed")
		}
	}
}

// refreshSession extends the session server-side and returns the expiry the
// server granted.
func (c *Client) refreshSession(ctx context.Context, session *StoredSession) (time.Time, error) {
	envelope, err := c.postCredentials(ctx, "/desk/refresh", session)
	if err != nil {
		return time.Time{}, err
	}
	return time.Now().Add(time.Duration(envelope.Data.ExpiresIn) * time.Second), nil
}

func (c *Client) obtainSession(ctx context.Context) (*StoredSession, error) {
	if c.cfg.Store != nil {
		stored, err := c.cfg.Store.Load()
		if err != nil {
			log.Warn().Err(err).Msg("failed to load persisted desk session")
		}
		// Reuse a persisted session only if the server still accepts it; the
		// refresh response carries the authoritative new expiry.
		if stored != nil && time.Now().Before(stored.ExpiresAt) {
			if expiresAt, err := c.refreshSession(ctx, stored); err == nil {
				stored.ExpiresAt = expiresAt
				log.Info().
					Str("deskId", util.MaskToken(stored.DeskID)).
					Time("expiresAt", expiresAt).
					Msg("reusing persisted desk session")
				return stored, nil
			}
		}
	}

	return c.createSession(ctx)
}

type apiEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
	Data    struct {
		DeskID    string `json:"deskId"`
		Signature string `json:"signature"`
		ExpiresIn int    `json:"expiresIn"`
	} `json:"data"`
}

func (c *Client) createSession(ctx context.Context) (*StoredSession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ServerURL+"/desk/create", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create desk session: %w", err)
	}
	defer resp.Body.Close()

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode create response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !envelope.Success {
		return nil, fmt.Errorf("create desk session: %s", envelope.Error)
	}

	return &StoredSession{
		DeskID:    envelope.Data.DeskID,
		Signature: envelope.Data.Signature,
		ExpiresAt: time.Now().Add(time.Duration(envelope.Data.ExpiresIn) * time.Second),
	}, nil
}

func (c *Client) postCredentials(ctx context.Context, path string, session *StoredSession) (*apiEnvelope, error) {
	body, err := json.Marshal(map[string]string{
		"deskId":    session.DeskID,
		"signature": session.Signature,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ServerURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !envelope.Success {
		return nil, fmt.Errorf("%s rejected: %s", path, envelope.Error)
	}
	return &envelope, nil
}

func (c *Client) writeEvent(event relay.Event) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.sock == nil {
		return fmt.Errorf("not connected")
	}
	return c.sock.WriteJSON(event)
}

// restoreConnectedState returns to Paired or Idle after a scan is cleared.
func (c *Client) restoreConnectedState() {
	c.mu.Lock()
	up := c.scannerUp
	c.mu.Unlock()
	if up {
		c.setState(StatePaired)
	} else {
		c.setState(StateIdle)
	}
}

func (c *Client) setState(state State) {
	c.mu.Lock()
	changed := c.state != state
	c.state = state
	c.mu.Unlock()

	if changed && c.cfg.OnStatus != nil {
		c.cfg.OnStatus(state)
	}
}

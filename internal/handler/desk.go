package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hosteldesk/desk-relay-go/internal/audit"
	apperrors "github.com/hosteldesk/desk-relay-go/internal/errors"
	"github.com/hosteldesk/desk-relay-go/internal/httputil"
	"github.com/hosteldesk/desk-relay-go/internal/repository"
	"github.com/hosteldesk/desk-relay-go/internal/session"
	"github.com/hosteldesk/desk-relay-go/internal/util"
)

const scanHistoryLimit = 100

type DeskHandler struct {
	registry session.Registry
	journal  repository.ScanJournal // nil when no database is configured
	ttl      time.Duration
}

func NewDeskHandler(registry session.Registry, journal repository.ScanJournal, ttl time.Duration) *DeskHandler {
	return &DeskHandler{
		registry: registry,
		journal:  journal,
		ttl:      ttl,
	}
}

type credentialsRequest struct {
	DeskID    string `json:"deskId"`
	Signature string `json:"signature"`
}

type sessionData struct {
	DeskID    string `json:"deskId"`
	Signature string `json:"signature"`
	ExpiresIn int    `json:"expiresIn"`
}

// POST /desk/create
func (h *DeskHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	deskSession, err := h.registry.Create(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to create desk session")
		httputil.WriteError(w, apperrors.Internal("Failed to create desk session"))
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:   audit.EventSessionCreate,
		DeskID: util.MaskToken(deskSession.ID),
	})

	writeSuccess(w, "", sessionData{
		DeskID:    deskSession.ID,
		Signature: deskSession.Signature,
		ExpiresIn: int(h.ttl.Seconds()),
	})
}

// POST /desk/refresh
func (h *DeskHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	if !h.registry.Refresh(r.Context(), req.DeskID, req.Signature) {
		audit.LogFromRequest(r, audit.Event{
			Type:   audit.EventAuthFailure,
			DeskID: util.MaskToken(req.DeskID),
		})
		httputil.WriteError(w, apperrors.Unauthorized("Invalid or expired desk session"))
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:   audit.EventSessionRefresh,
		DeskID: util.MaskToken(req.DeskID),
	})

	writeSuccess(w, "Desk session refreshed", map[string]int{
		"expiresIn": int(h.ttl.Seconds()),
	})
}

// POST /desk/disable
func (h *DeskHandler) Disable(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	if !h.registry.Disable(r.Context(), req.DeskID, req.Signature) {
		audit.LogFromRequest(r, audit.Event{
			Type:   audit.EventAuthFailure,
			DeskID: util.MaskToken(req.DeskID),
		})
		httputil.WriteError(w, apperrors.Unauthorized("Invalid or expired desk session"))
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:   audit.EventSessionDisable,
		DeskID: util.MaskToken(req.DeskID),
	})

	writeSuccess(w, "Desk session disabled", nil)
}

// POST /desk/scans
func (h *DeskHandler) Scans(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	if !h.registry.Validate(r.Context(), req.DeskID, req.Signature) {
		audit.LogFromRequest(r, audit.Event{
			Type:   audit.EventAuthFailure,
			DeskID: util.MaskToken(req.DeskID),
		})
		httputil.WriteError(w, apperrors.Unauthorized("Invalid or expired desk session"))
		return
	}

	if h.journal == nil {
		httputil.WriteError(w, apperrors.NotFound("Scan journal"))
		return
	}

	records, err := h.journal.FindByDeskID(r.Context(), req.DeskID, scanHistoryLimit)
	if err != nil {
		log.Error().Err(err).Str("deskId", util.MaskToken(req.DeskID)).Msg("failed to read scan journal")
		httputil.WriteError(w, apperrors.Database(err))
		return
	}

	writeSuccess(w, "", map[string]any{"scans": records})
}

func (h *DeskHandler) decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.ValidationError("Request body must be JSON"))
		return req, false
	}
	if req.DeskID == "" {
		httputil.WriteError(w, apperrors.MissingRequired("deskId"))
		return req, false
	}
	if req.Signature == "" {
		httputil.WriteError(w, apperrors.MissingRequired("signature"))
		return req, false
	}
	return req, true
}

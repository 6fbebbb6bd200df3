package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hosteldesk/desk-relay-go/internal/model"
	"github.com/hosteldesk/desk-relay-go/internal/util"
)

// MemoryRegistry keeps sessions in a process-local map. Room and session
// state are scoped to one server instance, so this is the default backend.
type MemoryRegistry struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]*model.DeskSession
}

func NewMemoryRegistry(ttl time.Duration) *MemoryRegistry {
	return &MemoryRegistry{
		ttl:      ttl,
		sessions: make(map[string]*model.DeskSession),
	}
}

func (r *MemoryRegistry) Create(ctx context.Context) (*model.DeskSession, error) {
	id, err := util.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("generate desk id: %w", err)
	}
	signature, err := util.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("generate signature: %w", err)
	}

	now := time.Now()
	session := &model.DeskSession{
		ID:        id,
		Signature: signature,
		CreatedAt: now,
		ExpiresAt: now.Add(r.ttl),
	}

	r.mu.Lock()
	r.sessions[id] = session
	r.mu.Unlock()

	log.Info().
		Str("deskId", util.MaskToken(id)).
		Time("expiresAt", session.ExpiresAt).
		Msg("desk session created")

	return session, nil
}

func (r *MemoryRegistry) Validate(ctx context.Context, id, signature string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.validateLocked(id, signature)
}

func (r *MemoryRegistry) Refresh(ctx context.Context, id, signature string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.validateLocked(id, signature) {
		return false
	}

	session := r.sessions[id]
	session.ExpiresAt = time.Now().Add(r.ttl)

	log.Info().
		Str("deskId", util.MaskToken(id)).
		Time("expiresAt", session.ExpiresAt).
		Msg("desk session refreshed")

	return true
}

func (r *MemoryRegistry) Disable(ctx context.Context, id, signature string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.validateLocked(id, signature) {
		return false
	}

	delete(r.sessions, id)

	log.Info().
		Str("deskId", util.MaskToken(id)).
		Msg("desk session disabled")

	return true
}

func (r *MemoryRegistry) DeleteExpired(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var removed int64
	for id, session := range r.sessions {
		if session.Expired(now) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed, nil
}

func (r *MemoryRegistry) Count(ctx context.Context) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// validateLocked checks existence, expiry at call time and signature match.
// Callers must hold r.mu.
func (r *MemoryRegistry) validateLocked(id, signature string) bool {
	session, ok := r.sessions[id]
	if !ok {
		return false
	}

	if session.Expired(time.Now()) {
		// Lazy eviction: the sweep has not run yet but the session is gone
		// for all purposes.
		delete(r.sessions, id)
		return false
	}

	return util.ConstantTimeEqual(session.Signature, signature)
}

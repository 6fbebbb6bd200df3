// Package session is the authoritative source of desk pairing sessions:
// which exist, and whether a given (id, signature) pair is currently valid.
package session

import (
	"context"

	"github.com/hosteldesk/desk-relay-go/internal/model"
)

// Registry issues, validates, refreshes and expires desk pairing sessions.
//
// Validation failures are expected traffic (links expire, users retry), so
// Validate/Refresh/Disable report them as false rather than errors.
type Registry interface {
	// Create issues a session with fresh CSPRNG id and signature.
	Create(ctx context.Context) (*model.DeskSession, error)

	// Validate reports whether a session with the given id exists, has not
	// expired, and stores exactly the given signature. A session that is
	// found but expired is evicted as a side effect.
	Validate(ctx context.Context, id, signature string) bool

	// Refresh extends a valid session's expiry by the registry TTL. Invalid
	// or expired credentials leave the registry unchanged.
	Refresh(ctx context.Context, id, signature string) bool

	// Disable validates and then removes the session.
	Disable(ctx context.Context, id, signature string) bool

	// DeleteExpired removes all sessions past their expiry.
	DeleteExpired(ctx context.Context) (int64, error)

	// Count returns the number of live sessions.
	Count(ctx context.Context) int
}

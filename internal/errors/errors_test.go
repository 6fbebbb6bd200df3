package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError(t *testing.T) {
	t.Run("formats code and message", func(t *testing.T) {
		err := New(ErrCodeUnauthorized, "Invalid or expired desk session")
		assert.Equal(t, "UNAUTHORIZED: Invalid or expired desk session", err.Error())
	})

	t.Run("includes cause when wrapped", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Wrap(ErrCodeDatabase, "Database error", cause)

		assert.Contains(t, err.Error(), "connection refused")
		assert.ErrorIs(t, err, cause)
	})

	t.Run("WithDetails attaches structured details", func(t *testing.T) {
		err := ValidationError("bad input").WithDetails(map[string]string{"field": "deskId"})
		assert.NotNil(t, err.Details)
	})
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		code ErrorCode
	}{
		{"Unauthorized", Unauthorized("nope"), ErrCodeUnauthorized},
		{"SessionExpired", SessionExpired(), ErrCodeSessionExpired},
		{"NotFound", NotFound("Desk session"), ErrCodeNotFound},
		{"MissingRequired", MissingRequired("deskId"), ErrCodeMissingRequired},
		{"ProtocolViolation", ProtocolViolation("bad event"), ErrCodeProtocolViolation},
		{"PeerUnavailable", PeerUnavailable("scanner"), ErrCodePeerUnavailable},
		{"RoomNotFound", RoomNotFound(), ErrCodeRoomNotFound},
		{"RateLimitExceeded", RateLimitExceeded(), ErrCodeRateLimitExceeded},
		{"Internal", Internal("boom"), ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.NotEmpty(t, tt.err.Message)
		})
	}
}

func TestPeerUnavailableNamesRole(t *testing.T) {
	assert.Equal(t, "No scanner connected for this session", PeerUnavailable("scanner").Message)
	assert.Equal(t, "No desk connected for this session", PeerUnavailable("desk").Message)
}

func TestAsAppError(t *testing.T) {
	t.Run("unwraps through fmt.Errorf", func(t *testing.T) {
		wrapped := fmt.Errorf("handler: %w", Unauthorized("nope"))

		appErr, ok := AsAppError(wrapped)
		require.True(t, ok)
		assert.Equal(t, ErrCodeUnauthorized, appErr.Code)
	})

	t.Run("plain errors are not app errors", func(t *testing.T) {
		_, ok := AsAppError(errors.New("plain"))
		assert.False(t, ok)
		assert.False(t, IsAppError(errors.New("plain")))
	})
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeRoomNotFound, GetCode(RoomNotFound()))
	assert.Equal(t, ErrCodeInternal, GetCode(errors.New("plain")))
}

package model

import "time"

// DeskSession is the credential pair authorizing one desk/scanner pairing.
// The signature is a shared secret: it is returned to the desk that created
// the session and travels to the scanner only inside the pairing link.
type DeskSession struct {
	ID        string    `json:"deskId"`
	Signature string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *DeskSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

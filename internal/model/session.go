package model

import "time"

// Session is a server-side login record. IDHash is a digest of the session id
// carried in the client's token; the raw id is never stored.
type Session struct {
	IDHash    string    `db:"id_hash"`
	UserID    string    `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
	ExpiresAt time.Time `db:"expires_at"`
}

// Expired reports whether the session is no longer usable at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

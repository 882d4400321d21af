package auth

import (
	"encoding/hex"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// NewSessionID returns a fresh random session id (UUIDv4).
func NewSessionID() string {
	return uuid.NewString()
}

// HashSessionID is the form a session id takes at rest. The sessions table
// only ever sees this digest, so a leaked table cannot be replayed as tokens.
func HashSessionID(id string) string {
	sum := blake2b.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}

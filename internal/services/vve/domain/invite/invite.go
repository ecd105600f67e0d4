// Package invite implements the invitation workflow that brings new users
// into an association.
package invite

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/association"
)

// DefaultTTL is how long an invite link stays valid.
const DefaultTTL = 7 * 24 * time.Hour

const tokenBytes = 32

// Status is the lifecycle state of an invite.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRevoked  Status = "revoked"
	StatusExpired  Status = "expired"
)

// Invite grants a role in an association to whoever holds the token sent to
// Email.
type Invite struct {
	ID             string
	AssociationID  string
	Email          string
	Role           association.Role
	Locale         string
	TokenHash      string
	Status         Status
	InvitedBy      string
	ExpiresAt      time.Time
	AcceptedAt     *time.Time
	AcceptedUserID string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EffectiveStatus reports a pending invite past its expiry as expired.
func (i Invite) EffectiveStatus(now time.Time) Status {
	if i.Status == StatusPending && !now.Before(i.ExpiresAt) {
		return StatusExpired
	}
	return i.Status
}

// NewToken returns a random URL-safe token and the hash stored for it.
func NewToken() (token, hash string, err error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate invite token: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(raw)
	return token, HashToken(token), nil
}

// HashToken returns the hex SHA-256 of token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(token)))
	return hex.EncodeToString(sum[:])
}

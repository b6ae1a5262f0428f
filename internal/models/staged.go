package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MutationKind enumerates the privileged directory mutations.
type MutationKind string

const (
	MutationCreate MutationKind = "CREATE"
	MutationUpdate MutationKind = "UPDATE"
	MutationDelete MutationKind = "DELETE"
)

// StagedMutation is a fully validated mutation held server-side between the
// staging and PIN-confirmation phases. The password is hashed before staging so
// plaintext never rests in the store. Fields are still re-validated at
// execution time because uniqueness state can change between phases.
type StagedMutation struct {
	ID           string       `json:"id"`
	Kind         MutationKind `json:"kind"`
	ActorID      string       `json:"actor_id"`
	TargetID     string       `json:"target_id,omitempty"`
	Username     string       `json:"username,omitempty"`
	PasswordHash string       `json:"password_hash,omitempty"`
	Role         Role         `json:"role,omitempty"`
	Active       *bool        `json:"active,omitempty"`
	Details      RoleDetails  `json:"details,omitempty"`
	NewPinHash   string       `json:"new_pin_hash,omitempty"`
	StagedAt     time.Time    `json:"staged_at"`
}

// TransferClaims is the payload of the signed token handed to the client
// between the two phases. It references the server-held record only.
type TransferClaims struct {
	StagingID string `json:"staging_id"`
	jwt.RegisteredClaims
}

package models

import "time"

// LoginRequest holds credentials for authenticating a directory account. Pin is
// required when Role is ADMIN and is checked before the password.
type LoginRequest struct {
	Username  string `json:"username" validate:"required"`
	Password  string `json:"password" validate:"required"`
	Role      Role   `json:"role" validate:"required,oneof=ADMIN STAFF STUDENT"`
	Pin       string `json:"pin,omitempty"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the rotated session identifier and identity view.
type LoginResponse struct {
	SessionID string    `json:"session_id"`
	ExpiresIn int64     `json:"expires_in"`
	User      Principal `json:"user"`
	IssuedAt  time.Time `json:"issued_at"`
}

// RegisterRequest is the public self-registration payload; the resulting
// identity is created inactive pending admin approval.
type RegisterRequest struct {
	Username string      `json:"username" validate:"required"`
	Password string      `json:"password" validate:"required"`
	Role     Role        `json:"role" validate:"required,oneof=STAFF STUDENT"`
	Details  RoleDetails `json:"details"`
}

// ForgotPasswordRequest initiates the reset flow.
type ForgotPasswordRequest struct {
	UsernameOrEmail string `json:"username_or_email" validate:"required"`
}

// ResetPasswordRequest consumes a reset token.
type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

// ChangePinRequest rotates an admin's PIN; the old PIN passes through the same
// lockout gate as privileged mutations.
type ChangePinRequest struct {
	OldPin     string `json:"old_pin" validate:"required"`
	NewPin     string `json:"new_pin" validate:"required"`
	ConfirmPin string `json:"confirm_pin" validate:"required"`
}

// StageAccountRequest is the payload for staging an account create or update.
// Updates are full replacements, so Details always carries the complete
// variant for the staged role. Password is required on create and optional on
// update (empty keeps the stored hash). NewPin is required for ADMIN creates
// and for promotions to ADMIN; on an existing admin it re-keys the PIN.
type StageAccountRequest struct {
	Username string      `json:"username" validate:"required"`
	Password string      `json:"password,omitempty"`
	Role     Role        `json:"role" validate:"required,oneof=ADMIN STAFF STUDENT"`
	Active   *bool       `json:"active,omitempty"`
	Details  RoleDetails `json:"details"`
	NewPin   string      `json:"new_pin,omitempty"`
}

// ConfirmMutationRequest executes a staged mutation after PIN confirmation.
type ConfirmMutationRequest struct {
	TransferToken string `json:"transfer_token" validate:"required"`
	Pin           string `json:"pin" validate:"required"`
}

// StageResponse hands the signed transfer token back to the client.
type StageResponse struct {
	TransferToken string `json:"transfer_token"`
	ExpiresIn     int64  `json:"expires_in"`
}

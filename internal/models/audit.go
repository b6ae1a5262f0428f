package models

import "time"

// Audit action labels for security-relevant events.
const (
	AuditActionLogin          = "LOGIN"
	AuditActionLoginFailed    = "LOGIN_FAILED"
	AuditActionLogout         = "LOGOUT"
	AuditActionUserCreate     = "USER_CREATE"
	AuditActionUserUpdate     = "USER_UPDATE"
	AuditActionUserDelete     = "USER_DELETE"
	AuditActionUserApprove    = "USER_APPROVE"
	AuditActionUserDeactivate = "USER_DEACTIVATE"
	AuditActionPinFailed      = "PIN_FAILED"
	AuditActionPinLocked      = "PIN_LOCKED"
	AuditActionPinVerified    = "PIN_VERIFIED"
	AuditActionPinChanged     = "PIN_CHANGED"
	AuditActionPinMissing     = "PIN_CONFIG_MISSING"
	AuditActionResetIssued    = "RESET_ISSUED"
	AuditActionResetConsumed  = "RESET_CONSUMED"
	AuditActionMutationStaged = "MUTATION_STAGED"
	AuditActionMutationDenied = "MUTATION_DENIED"
	AuditActionMutationFailed = "MUTATION_FAILED"
)

// AuditEvent is an append-only record of a security-relevant event. ActorID is
// nil for system actions with no acting identity.
type AuditEvent struct {
	ID        string    `db:"id" json:"id"`
	ActorID   *string   `db:"actor_id" json:"actor_id,omitempty"`
	Action    string    `db:"action" json:"action"`
	TableName *string   `db:"table_name" json:"table_name,omitempty"`
	RowID     *string   `db:"row_id" json:"row_id,omitempty"`
	Detail    string    `db:"detail" json:"detail"`
	IPAddress string    `db:"ip_address" json:"ip_address"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// LoginAttempt is one row of the login ledger, kept separate from the audit
// trail. UserID is nil when the username did not resolve to an identity.
type LoginAttempt struct {
	ID          string    `db:"id" json:"id"`
	UserID      *string   `db:"user_id" json:"user_id,omitempty"`
	Success     bool      `db:"success" json:"success"`
	AttemptedAt time.Time `db:"attempted_at" json:"attempted_at"`
}

// AuditFilter constrains audit trail listings for export.
type AuditFilter struct {
	ActorID string
	Action  string
	From    *time.Time
	To      *time.Time
	Limit   int
}

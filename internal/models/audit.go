package models

import (
	"encoding/json"
	"time"
)

// Audit actions recorded by the services.
const (
	AuditActionLogin          = "LOGIN"
	AuditActionRefresh        = "TOKEN_REFRESH"
	AuditActionLogout         = "LOGOUT"
	AuditActionPasswordChange = "PASSWORD_CHANGE"
	AuditActionUserCreate     = "USER_CREATE"
	AuditActionUserUpdate     = "USER_UPDATE"
	AuditActionUserDelete     = "USER_DELETE"

	AuditActionCreate   = "CREATE"
	AuditActionUpdate   = "UPDATE"
	AuditActionDelete   = "DELETE"
	AuditActionActivate = "ACTIVATE"

	AuditActionEnroll   = "ENROLL"
	AuditActionTransfer = "TRANSFER"
	AuditActionWithdraw = "WITHDRAW"

	AuditActionScoreCreate = "SCORE_CREATE"
	AuditActionScoreUpdate = "SCORE_UPDATE"
	AuditActionScoreDelete = "SCORE_DELETE"

	AuditActionInvoiceCreate = "INVOICE_CREATE"
	AuditActionInvoiceBulk   = "INVOICE_BULK_CREATE"
	AuditActionInvoicePay    = "INVOICE_PAY"
	AuditActionInvoiceCancel = "INVOICE_CANCEL"

	AuditActionDocumentUpload = "DOCUMENT_UPLOAD"
	AuditActionDocumentDelete = "DOCUMENT_DELETE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string          `db:"id" json:"id"`
	UserID     *string         `db:"user_id" json:"user_id,omitempty"`
	Action     string          `db:"action" json:"action"`
	Resource   string          `db:"resource" json:"resource"`
	ResourceID *string         `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  json.RawMessage `db:"old_values" json:"old_values,omitempty" swaggertype:"object"`
	NewValues  json.RawMessage `db:"new_values" json:"new_values,omitempty" swaggertype:"object"`
	IPAddress  string          `db:"ip_address" json:"ip_address"`
	UserAgent  string          `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// AuditLogFilter narrows audit log listings.
type AuditLogFilter struct {
	UserID   string
	Resource string
	Action   string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// RequestMeta identifies who performed a write and from where.
type RequestMeta struct {
	ActorID   string
	IP        string
	UserAgent string
}

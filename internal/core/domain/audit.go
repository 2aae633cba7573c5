package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionAccountCreate AuditAction = "ACCOUNT_CREATE"
	AuditActionTransfer      AuditAction = "TRANSFER"
)

// AuditLog records a single audited write request.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	ClientKey    string      `json:"client_key"`
	StatusCode   int         `json:"status_code"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}

package auditlog

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Entry is one row of the append-only audit log.
type Entry struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	UserID       *uuid.UUID      `db:"user_id" json:"user_id,omitempty"`
	Action       string          `db:"action" json:"action"`
	ResourceType string          `db:"resource_type" json:"resource_type"`
	ResourceID   *string         `db:"resource_id" json:"resource_id,omitempty"`
	OldValues    json.RawMessage `db:"old_values" json:"old_values,omitempty"`
	NewValues    json.RawMessage `db:"new_values" json:"new_values,omitempty"`
	IPAddress    *string         `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent    *string         `db:"user_agent" json:"user_agent,omitempty"`
	RequestID    *string         `db:"request_id" json:"request_id,omitempty"`
	Method       *string         `db:"method" json:"method,omitempty"`
	Path         *string         `db:"path" json:"path,omitempty"`
	StatusCode   *int            `db:"status_code" json:"status_code,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

var validActions = map[string]bool{
	"create": true, "read": true, "update": true, "delete": true, "login": true,
}

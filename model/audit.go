package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog is one mutating request against a profile. Code holds the error
// code of a failed request and is empty on success.
type AuditLog struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID    string         `gorm:"index:idx_audit_trace;size:64;not null" json:"trace_id"`
	OrgID      string         `gorm:"index:idx_audit_subject,priority:1;size:64" json:"org_id"`
	UserID     string         `gorm:"index:idx_audit_subject,priority:2;size:64" json:"user_id"`
	Action     string         `gorm:"index:idx_audit_action;size:64;not null" json:"action"`
	Status     int            `json:"status"`
	Code       string         `gorm:"size:64" json:"code,omitempty"`
	Request    datatypes.JSON `json:"request,omitempty"`
	Response   datatypes.JSON `json:"response,omitempty"`
	IP         string         `gorm:"size:45" json:"ip"`
	DurationMs int            `json:"duration_ms"`
	CreatedAt  time.Time      `gorm:"index:idx_audit_created;autoCreateTime:milli" json:"created_at"`
}

// Failed reports whether the audited request was rejected.
func (a AuditLog) Failed() bool { return a.Code != "" || a.Status >= 400 }

// ABOUTME: AuditStore interface and data types for the operation audit trail
// ABOUTME: Defines AuditEntry, AuditFilter, and the no-op store used when audit is off

package store

import (
	"context"
	"time"
)

// AuditOp identifies the audited operation.
type AuditOp string

const (
	AuditOpen          AuditOp = "open"
	AuditRead          AuditOp = "read"
	AuditWrite         AuditOp = "write"
	AuditClose         AuditOp = "close"
	AuditReadReject    AuditOp = "read_reject"
	AuditWriteReject   AuditOp = "write_reject"
	AuditSessionDenied AuditOp = "session_denied"
)

// ValidAuditOps lists all valid audit operations.
var ValidAuditOps = []AuditOp{
	AuditOpen,
	AuditRead,
	AuditWrite,
	AuditClose,
	AuditReadReject,
	AuditWriteReject,
	AuditSessionDenied,
}

// AuditEntry is one recorded operation. Only sizes and outcomes are recorded,
// never secret content, so nothing of the cell's state survives a restart.
type AuditEntry struct {
	ID        string  // UUID, generated on append if empty
	Op        AuditOp // what happened
	Handle    string  // session handle, empty for pre-open rejections
	Bytes     int     // payload size for reads/writes, 0 otherwise
	Error     string  // rejection reason, empty on success
	Timestamp time.Time
}

// AuditFilter specifies filtering options for listing audit entries.
type AuditFilter struct {
	Since  *time.Time // entries after this time
	Op     *AuditOp   // filter by operation
	Handle *string    // filter by session handle
	Limit  int        // max results (default 100, max 1000)
}

// AuditStore records and lists operation audit entries.
type AuditStore interface {
	AppendAudit(ctx context.Context, e *AuditEntry) error
	ListAudit(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error)
	Close() error
}

// NopStore is the AuditStore used when auditing is disabled. Appends vanish
// and listings are empty.
type NopStore struct{}

func (NopStore) AppendAudit(ctx context.Context, e *AuditEntry) error { return nil }

func (NopStore) ListAudit(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error) {
	return nil, nil
}

func (NopStore) Close() error { return nil }

package domain

import "time"

// AuditOperation describes a persisted audit operation for a work item.
type AuditOperation string

// AuditOperation values used by the audit ledger.
const (
	AuditOperationReassign         AuditOperation = "reassign"
	AuditOperationDependencyAdd    AuditOperation = "dependency_add"
	AuditOperationDependencyRemove AuditOperation = "dependency_remove"
	AuditOperationRebalance        AuditOperation = "rebalance"
)

// AuditEvent represents a single audit-trail entry for an engine mutation.
type AuditEvent struct {
	ID         int64
	TeamID     string
	ItemID     string
	Operation  AuditOperation
	ActorID    string
	Metadata   map[string]string
	OccurredAt time.Time
}

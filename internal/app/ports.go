package app

import (
	"context"
	"time"

	"github.com/tillerhq/tiller/internal/domain"
)

// Repository represents repository data used by this package.
type Repository interface {
	CreateWorkItem(context.Context, domain.WorkItem) error
	UpdateWorkItem(context.Context, domain.WorkItem) error
	GetWorkItem(context.Context, string) (domain.WorkItem, error)
	ListWorkItemsByProject(context.Context, string) ([]domain.WorkItem, error)
	ListWorkItemsByParent(context.Context, string) ([]domain.WorkItem, error)
	ListWorkItemsByAssignees(context.Context, []string) ([]domain.WorkItem, error)

	CreateTeam(context.Context, domain.Team) error
	GetTeam(context.Context, string) (domain.Team, error)
	ListTeams(context.Context) ([]domain.Team, error)

	CreateMember(context.Context, domain.Member) error
	GetMember(context.Context, string) (domain.Member, error)
	ListMembersByTeam(context.Context, string) ([]domain.Member, error)

	CreateSprint(context.Context, domain.Sprint) error
	GetSprint(context.Context, string) (domain.Sprint, error)

	CreateCapacityAdjustment(context.Context, domain.CapacityAdjustment) error
	ListCapacityAdjustmentsByMembers(context.Context, []string) ([]domain.CapacityAdjustment, error)

	CreateCalendarEvent(context.Context, domain.CalendarEvent) error
	ListCalendarEventsByMembers(context.Context, []string) ([]domain.CalendarEvent, error)

	CreateRebalanceRecord(context.Context, domain.RebalanceRecord) error
	ListRebalanceRecordsByTeam(context.Context, string, int) ([]domain.RebalanceRecord, error)
}

// AuditSink receives mutation events for the audit trail. Record is
// fire-and-forget: implementations return an error for logging only and
// callers never abort an operation on sink failure.
type AuditSink interface {
	Record(context.Context, domain.AuditEvent) error
}

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

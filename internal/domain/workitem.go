package domain

import (
	"slices"
	"strings"
	"time"
)

// Status represents canonical work-item lifecycle status values.
type Status string

// Canonical statuses.
const (
	StatusTodo     Status = "todo"
	StatusProgress Status = "progress"
	StatusDone     Status = "done"
	StatusBlocked  Status = "blocked"
)

var validStatuses = []Status{StatusTodo, StatusProgress, StatusDone, StatusBlocked}

// WorkItemKind distinguishes stories from the tasks nested under them.
type WorkItemKind string

// WorkItemKind values.
const (
	KindTask  WorkItemKind = "task"
	KindStory WorkItemKind = "story"
)

var validKinds = []WorkItemKind{KindTask, KindStory}

// Priority represents a selectable priority.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

var validPriorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

// hoursPerPoint converts hour estimates into point-equivalents when an
// item carries hours but no points.
const hoursPerPoint = 2.0

// WorkItem is a task or story with dependency references and an optional assignee.
type WorkItem struct {
	ID             string
	ProjectID      string
	ParentID       string
	Kind           WorkItemKind
	Title          string
	Description    string
	Status         Status
	Priority       Priority
	Points         *float64
	EstimatedHours *float64
	Assignee       string
	Dependencies   []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ArchivedAt     *time.Time
}

// WorkItemInput holds input values for new work items.
type WorkItemInput struct {
	ID             string
	ProjectID      string
	ParentID       string
	Kind           WorkItemKind
	Title          string
	Description    string
	Status         Status
	Priority       Priority
	Points         *float64
	EstimatedHours *float64
	Assignee       string
	Dependencies   []string
}

// NewWorkItem constructs a normalized work item.
func NewWorkItem(in WorkItemInput, now time.Time) (WorkItem, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	in.ParentID = strings.TrimSpace(in.ParentID)
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Assignee = strings.TrimSpace(in.Assignee)

	if in.ID == "" {
		return WorkItem{}, ErrInvalidID
	}
	if in.ProjectID == "" {
		return WorkItem{}, ErrInvalidID
	}
	if in.Title == "" {
		return WorkItem{}, ErrInvalidTitle
	}

	if in.Kind == "" {
		in.Kind = KindTask
	}
	if !slices.Contains(validKinds, in.Kind) {
		return WorkItem{}, ErrInvalidKind
	}

	status := NormalizeStatus(in.Status)
	if status == "" {
		status = StatusTodo
	}
	if !slices.Contains(validStatuses, status) {
		return WorkItem{}, ErrInvalidStatus
	}

	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	if !slices.Contains(validPriorities, in.Priority) {
		return WorkItem{}, ErrInvalidPriority
	}

	return WorkItem{
		ID:             in.ID,
		ProjectID:      in.ProjectID,
		ParentID:       in.ParentID,
		Kind:           in.Kind,
		Title:          in.Title,
		Description:    in.Description,
		Status:         status,
		Priority:       in.Priority,
		Points:         normalizeEstimate(in.Points),
		EstimatedHours: normalizeEstimate(in.EstimatedHours),
		Assignee:       in.Assignee,
		Dependencies:   NormalizeIDList(in.Dependencies),
		CreatedAt:      now.UTC(),
		UpdatedAt:      now.UTC(),
	}, nil
}

// SetStatus updates lifecycle status.
func (w *WorkItem) SetStatus(status Status, now time.Time) error {
	status = NormalizeStatus(status)
	if !slices.Contains(validStatuses, status) {
		return ErrInvalidStatus
	}
	w.Status = status
	w.UpdatedAt = now.UTC()
	return nil
}

// Assign sets or clears the assignee.
func (w *WorkItem) Assign(memberID string, now time.Time) {
	w.Assignee = strings.TrimSpace(memberID)
	w.UpdatedAt = now.UTC()
}

// AddDependency appends a dependency reference. Cycle policy is enforced by
// the application layer before this mutation is reached.
func (w *WorkItem) AddDependency(dependsOnID string, now time.Time) error {
	dependsOnID = strings.TrimSpace(dependsOnID)
	if dependsOnID == "" {
		return ErrInvalidID
	}
	if dependsOnID == w.ID {
		return ErrSelfDependency
	}
	if slices.Contains(w.Dependencies, dependsOnID) {
		return ErrDependencyExists
	}
	w.Dependencies = append(w.Dependencies, dependsOnID)
	w.UpdatedAt = now.UTC()
	return nil
}

// RemoveDependency removes a dependency reference.
func (w *WorkItem) RemoveDependency(dependsOnID string, now time.Time) error {
	dependsOnID = strings.TrimSpace(dependsOnID)
	idx := slices.Index(w.Dependencies, dependsOnID)
	if idx < 0 {
		return ErrDependencyNotFound
	}
	w.Dependencies = slices.Delete(w.Dependencies, idx, idx+1)
	w.UpdatedAt = now.UTC()
	return nil
}

// Archive marks the item archived.
func (w *WorkItem) Archive(now time.Time) {
	ts := now.UTC()
	w.ArchivedAt = &ts
	w.UpdatedAt = ts
}

// IsDone reports whether the item is complete.
func (w WorkItem) IsDone() bool {
	return w.Status == StatusDone
}

// IsOpen reports whether the item still counts toward workload.
func (w WorkItem) IsOpen() bool {
	return w.Status != StatusDone && w.ArchivedAt == nil
}

// PointEquivalent returns the item's own workload in points, converting
// hour estimates at the hours/2 heuristic when points are absent.
func (w WorkItem) PointEquivalent() float64 {
	if w.Points != nil {
		return *w.Points
	}
	if w.EstimatedHours != nil {
		return *w.EstimatedHours / hoursPerPoint
	}
	return 0
}

// NormalizeStatus canonicalizes status aliases.
func NormalizeStatus(status Status) Status {
	switch strings.TrimSpace(strings.ToLower(string(status))) {
	case "to-do", "todo", "backlog":
		return StatusTodo
	case "in-progress", "progress", "doing":
		return StatusProgress
	case "done", "complete", "completed":
		return StatusDone
	case "blocked":
		return StatusBlocked
	default:
		return Status(strings.TrimSpace(strings.ToLower(string(status))))
	}
}

// NormalizeIDList trims and de-duplicates ids while preserving order.
func NormalizeIDList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, raw := range in {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// normalizeEstimate drops nil and negative estimates.
func normalizeEstimate(v *float64) *float64 {
	if v == nil || *v < 0 {
		return nil
	}
	value := *v
	return &value
}

// Package app implements the engine's use cases over storage and audit
// ports: dependency mutation with synchronous cycle checks, graph and
// impact queries, capacity snapshots, and rebalance planning/execution.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/tillerhq/tiller/internal/capacity"
	"github.com/tillerhq/tiller/internal/domain"
	"github.com/tillerhq/tiller/internal/graph"
	"github.com/tillerhq/tiller/internal/rebalance"
)

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	DefaultWindowDays int
	HistoryLimit      int
}

const (
	defaultWindowDays   = 14
	defaultHistoryLimit = 20
)

// Service represents service data used by this package.
type Service struct {
	repo         Repository
	audit        AuditSink
	idGen        IDGenerator
	clock        Clock
	windowDays   int
	historyLimit int
}

// NewService constructs a new value for this package.
func NewService(repo Repository, audit AuditSink, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	if cfg.DefaultWindowDays <= 0 {
		cfg.DefaultWindowDays = defaultWindowDays
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}

	return &Service{
		repo:         repo,
		audit:        audit,
		idGen:        idGen,
		clock:        clock,
		windowDays:   cfg.DefaultWindowDays,
		historyLimit: cfg.HistoryLimit,
	}
}

// recordAudit forwards an event to the sink. Sink failures are dropped:
// audit is fire-and-forget and must never abort the triggering operation.
func (s *Service) recordAudit(ctx context.Context, event domain.AuditEvent) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, event)
}

// CreateTeam creates team.
func (s *Service) CreateTeam(ctx context.Context, name, description string) (domain.Team, error) {
	team, err := domain.NewTeam(s.idGen(), name, description, s.clock())
	if err != nil {
		return domain.Team{}, err
	}
	if err := s.repo.CreateTeam(ctx, team); err != nil {
		return domain.Team{}, err
	}
	return team, nil
}

// AddMember adds a member to an existing team.
func (s *Service) AddMember(ctx context.Context, teamID, name string, baseCapacity float64) (domain.Member, error) {
	if _, err := s.repo.GetTeam(ctx, teamID); err != nil {
		return domain.Member{}, err
	}
	member, err := domain.NewMember(s.idGen(), teamID, name, baseCapacity, s.clock())
	if err != nil {
		return domain.Member{}, err
	}
	if err := s.repo.CreateMember(ctx, member); err != nil {
		return domain.Member{}, err
	}
	return member, nil
}

// CreateSprint creates sprint.
func (s *Service) CreateSprint(ctx context.Context, teamID, name string, startAt, endAt time.Time) (domain.Sprint, error) {
	if _, err := s.repo.GetTeam(ctx, teamID); err != nil {
		return domain.Sprint{}, err
	}
	sprint, err := domain.NewSprint(s.idGen(), teamID, name, startAt, endAt, s.clock())
	if err != nil {
		return domain.Sprint{}, err
	}
	if err := s.repo.CreateSprint(ctx, sprint); err != nil {
		return domain.Sprint{}, err
	}
	return sprint, nil
}

// CreateWorkItemInput holds input values for create work item operations.
type CreateWorkItemInput struct {
	ProjectID      string
	ParentID       string
	Kind           domain.WorkItemKind
	Title          string
	Description    string
	Status         domain.Status
	Priority       domain.Priority
	Points         *float64
	EstimatedHours *float64
	Assignee       string
	Dependencies   []string
}

// CreateWorkItem creates work item.
func (s *Service) CreateWorkItem(ctx context.Context, in CreateWorkItemInput) (domain.WorkItem, error) {
	if in.ParentID != "" {
		if _, err := s.repo.GetWorkItem(ctx, in.ParentID); err != nil {
			return domain.WorkItem{}, err
		}
	}

	item, err := domain.NewWorkItem(domain.WorkItemInput{
		ID:             s.idGen(),
		ProjectID:      in.ProjectID,
		ParentID:       in.ParentID,
		Kind:           in.Kind,
		Title:          in.Title,
		Description:    in.Description,
		Status:         in.Status,
		Priority:       in.Priority,
		Points:         in.Points,
		EstimatedHours: in.EstimatedHours,
		Assignee:       in.Assignee,
		Dependencies:   in.Dependencies,
	}, s.clock())
	if err != nil {
		return domain.WorkItem{}, err
	}
	if err := s.repo.CreateWorkItem(ctx, item); err != nil {
		return domain.WorkItem{}, err
	}
	return item, nil
}

// GetWorkItem gets work item.
func (s *Service) GetWorkItem(ctx context.Context, itemID string) (domain.WorkItem, error) {
	return s.repo.GetWorkItem(ctx, itemID)
}

// ListWorkItems lists the work items of one project.
func (s *Service) ListWorkItems(ctx context.Context, projectID string) ([]domain.WorkItem, error) {
	return s.repo.ListWorkItemsByProject(ctx, projectID)
}

// AssignWorkItem sets or clears the item's assignee.
func (s *Service) AssignWorkItem(ctx context.Context, itemID, memberID string) (domain.WorkItem, error) {
	item, err := s.repo.GetWorkItem(ctx, itemID)
	if err != nil {
		return domain.WorkItem{}, err
	}
	var teamID string
	if memberID != "" {
		member, err := s.repo.GetMember(ctx, memberID)
		if err != nil {
			return domain.WorkItem{}, err
		}
		teamID = member.TeamID
	}

	now := s.clock()
	item.Assign(memberID, now)
	if err := s.repo.UpdateWorkItem(ctx, item); err != nil {
		return domain.WorkItem{}, err
	}
	s.recordAudit(ctx, domain.AuditEvent{
		TeamID:     teamID,
		ItemID:     item.ID,
		Operation:  domain.AuditOperationReassign,
		Metadata:   map[string]string{"assignee": memberID},
		OccurredAt: now,
	})
	return item, nil
}

// SetWorkItemStatus updates the item's lifecycle status.
func (s *Service) SetWorkItemStatus(ctx context.Context, itemID string, status domain.Status) (domain.WorkItem, error) {
	item, err := s.repo.GetWorkItem(ctx, itemID)
	if err != nil {
		return domain.WorkItem{}, err
	}
	if err := item.SetStatus(status, s.clock()); err != nil {
		return domain.WorkItem{}, err
	}
	if err := s.repo.UpdateWorkItem(ctx, item); err != nil {
		return domain.WorkItem{}, err
	}
	return item, nil
}

// AddCapacityAdjustment records a time-bounded capacity override.
func (s *Service) AddCapacityAdjustment(ctx context.Context, memberID string, startAt, endAt time.Time, adjustedCapacity float64, reason string) (domain.CapacityAdjustment, error) {
	if _, err := s.repo.GetMember(ctx, memberID); err != nil {
		return domain.CapacityAdjustment{}, err
	}
	adjustment, err := domain.NewCapacityAdjustment(s.idGen(), memberID, startAt, endAt, adjustedCapacity, reason, s.clock())
	if err != nil {
		return domain.CapacityAdjustment{}, err
	}
	if err := s.repo.CreateCapacityAdjustment(ctx, adjustment); err != nil {
		return domain.CapacityAdjustment{}, err
	}
	return adjustment, nil
}

// AddCalendarEvent records a percentage-impact calendar event.
func (s *Service) AddCalendarEvent(ctx context.Context, memberID, title string, startAt, endAt time.Time, impactPercent float64) (domain.CalendarEvent, error) {
	if _, err := s.repo.GetMember(ctx, memberID); err != nil {
		return domain.CalendarEvent{}, err
	}
	event, err := domain.NewCalendarEvent(s.idGen(), memberID, title, startAt, endAt, impactPercent, s.clock())
	if err != nil {
		return domain.CalendarEvent{}, err
	}
	if err := s.repo.CreateCalendarEvent(ctx, event); err != nil {
		return domain.CalendarEvent{}, err
	}
	return event, nil
}

// AddDependency records that itemID depends on dependsOnID. The cycle
// check runs synchronously against the surrounding project scope before
// anything is persisted; deferring it would let the read-side analyzers
// see a cyclic graph.
func (s *Service) AddDependency(ctx context.Context, itemID, dependsOnID string) (domain.WorkItem, error) {
	item, err := s.repo.GetWorkItem(ctx, itemID)
	if err != nil {
		return domain.WorkItem{}, err
	}
	dependsOn, err := s.repo.GetWorkItem(ctx, dependsOnID)
	if err != nil {
		return domain.WorkItem{}, err
	}

	items, err := s.repo.ListWorkItemsByProject(ctx, item.ProjectID)
	if err != nil {
		return domain.WorkItem{}, err
	}
	if dependsOn.ProjectID != item.ProjectID {
		more, err := s.repo.ListWorkItemsByProject(ctx, dependsOn.ProjectID)
		if err != nil {
			return domain.WorkItem{}, err
		}
		items = append(items, more...)
	}
	if graph.WouldCreateCycle(graph.Build(items), dependsOnID, itemID) {
		return domain.WorkItem{}, ErrCycleDetected
	}

	now := s.clock()
	if err := item.AddDependency(dependsOnID, now); err != nil {
		return domain.WorkItem{}, err
	}
	if err := s.repo.UpdateWorkItem(ctx, item); err != nil {
		return domain.WorkItem{}, err
	}
	s.recordAudit(ctx, domain.AuditEvent{
		ItemID:     item.ID,
		Operation:  domain.AuditOperationDependencyAdd,
		Metadata:   map[string]string{"depends_on": dependsOnID},
		OccurredAt: now,
	})
	return item, nil
}

// RemoveDependency removes a dependency reference from an item.
func (s *Service) RemoveDependency(ctx context.Context, itemID, dependsOnID string) (domain.WorkItem, error) {
	item, err := s.repo.GetWorkItem(ctx, itemID)
	if err != nil {
		return domain.WorkItem{}, err
	}
	now := s.clock()
	if err := item.RemoveDependency(dependsOnID, now); err != nil {
		return domain.WorkItem{}, err
	}
	if err := s.repo.UpdateWorkItem(ctx, item); err != nil {
		return domain.WorkItem{}, err
	}
	s.recordAudit(ctx, domain.AuditEvent{
		ItemID:     item.ID,
		Operation:  domain.AuditOperationDependencyRemove,
		Metadata:   map[string]string{"depends_on": dependsOnID},
		OccurredAt: now,
	})
	return item, nil
}

// GraphNode is one work item rendered into a dependency-graph result.
type GraphNode struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Kind         string   `json:"kind"`
	Status       string   `json:"status"`
	Assignee     string   `json:"assignee,omitempty"`
	Dependencies []string `json:"dependencies"`
}

// DependencyGraphResult is the JSON-serializable graph query response.
type DependencyGraphResult struct {
	ScopeID string      `json:"scope_id"`
	Nodes   []GraphNode `json:"nodes"`
	graph.Analysis
}

// GetDependencyGraph builds and analyzes the dependency graph for a
// scope. A story scope resolves to its child tasks; any other scope is
// treated as a project and resolves to that project's items. An unknown
// or empty scope yields an empty result, not an error.
func (s *Service) GetDependencyGraph(ctx context.Context, scopeID string) (DependencyGraphResult, error) {
	items, err := s.scopeItems(ctx, scopeID)
	if err != nil {
		return DependencyGraphResult{}, err
	}

	g := graph.Build(items)
	result := DependencyGraphResult{
		ScopeID:  scopeID,
		Nodes:    make([]GraphNode, 0, g.Len()),
		Analysis: graph.Analyze(g),
	}
	for _, id := range g.IDs() {
		node := g.Nodes[id]
		deps := node.Dependencies
		if deps == nil {
			deps = []string{}
		}
		result.Nodes = append(result.Nodes, GraphNode{
			ID:           node.ID,
			Title:        node.Title,
			Kind:         string(node.Kind),
			Status:       string(node.Status),
			Assignee:     node.Assignee,
			Dependencies: deps,
		})
	}
	return result, nil
}

// scopeItems resolves a scope id to its work items: story id first, then
// project id.
func (s *Service) scopeItems(ctx context.Context, scopeID string) ([]domain.WorkItem, error) {
	item, err := s.repo.GetWorkItem(ctx, scopeID)
	switch {
	case err == nil:
		if item.Kind == domain.KindStory {
			return s.repo.ListWorkItemsByParent(ctx, scopeID)
		}
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}
	return s.repo.ListWorkItemsByProject(ctx, scopeID)
}

// GetImpact computes the blocker and impact sets of one work item over
// its project scope.
func (s *Service) GetImpact(ctx context.Context, itemID string) (graph.Impact, error) {
	item, err := s.repo.GetWorkItem(ctx, itemID)
	if err != nil {
		return graph.Impact{}, err
	}
	items, err := s.repo.ListWorkItemsByProject(ctx, item.ProjectID)
	if err != nil {
		return graph.Impact{}, err
	}
	return graph.ImpactOf(graph.Build(items), itemID), nil
}

// GetCapacitySnapshot builds the capacity read model for a team. Zero
// start or end bounds fall back to the default planning window.
func (s *Service) GetCapacitySnapshot(ctx context.Context, teamID string, start, end time.Time) (capacity.TeamSnapshot, error) {
	window, err := s.resolveWindow(start, end)
	if err != nil {
		return capacity.TeamSnapshot{}, err
	}
	members, adjustments, events, items, err := s.loadTeamContext(ctx, teamID)
	if err != nil {
		return capacity.TeamSnapshot{}, err
	}
	return capacity.BuildSnapshot(teamID, members, adjustments, events, items, window), nil
}

func (s *Service) resolveWindow(start, end time.Time) (capacity.Window, error) {
	if start.IsZero() || end.IsZero() {
		now := s.clock()
		return capacity.Window{Start: now, End: now.AddDate(0, 0, s.windowDays)}, nil
	}
	window := capacity.Window{Start: start.UTC(), End: end.UTC()}
	if !window.Valid() {
		return capacity.Window{}, domain.ErrInvalidWindow
	}
	return window, nil
}

// loadTeamContext loads everything a capacity snapshot needs: members,
// their adjustments and calendar events, their assigned work items, and
// the parent stories of those items (needed for story-split attribution
// even when the story itself is unassigned).
func (s *Service) loadTeamContext(ctx context.Context, teamID string) ([]domain.Member, []domain.CapacityAdjustment, []domain.CalendarEvent, []domain.WorkItem, error) {
	if _, err := s.repo.GetTeam(ctx, teamID); err != nil {
		return nil, nil, nil, nil, err
	}
	members, err := s.repo.ListMembersByTeam(ctx, teamID)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	memberIDs := make([]string, 0, len(members))
	for _, member := range members {
		memberIDs = append(memberIDs, member.ID)
	}

	adjustments, err := s.repo.ListCapacityAdjustmentsByMembers(ctx, memberIDs)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	events, err := s.repo.ListCalendarEventsByMembers(ctx, memberIDs)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	items, err := s.repo.ListWorkItemsByAssignees(ctx, memberIDs)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	present := make(map[string]struct{}, len(items))
	for _, item := range items {
		present[item.ID] = struct{}{}
	}
	for _, item := range items {
		if item.ParentID == "" {
			continue
		}
		if _, ok := present[item.ParentID]; ok {
			continue
		}
		parent, err := s.repo.GetWorkItem(ctx, item.ParentID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, nil, nil, nil, err
		}
		present[parent.ID] = struct{}{}
		items = append(items, parent)
	}

	return members, adjustments, events, items, nil
}

// GenerateRebalancePlan builds a greedy rebalance plan for a team. A
// sprint id scopes the planning window to that sprint; otherwise the
// default window applies.
func (s *Service) GenerateRebalancePlan(ctx context.Context, teamID, sprintID string) (domain.RebalancePlan, error) {
	var window capacity.Window
	if sprintID != "" {
		sprint, err := s.repo.GetSprint(ctx, sprintID)
		if err != nil {
			return domain.RebalancePlan{}, err
		}
		window.Start, window.End = sprint.Window()
	} else {
		now := s.clock()
		window = capacity.Window{Start: now, End: now.AddDate(0, 0, s.windowDays)}
	}

	members, adjustments, events, items, err := s.loadTeamContext(ctx, teamID)
	if err != nil {
		return domain.RebalancePlan{}, err
	}
	snapshot := capacity.BuildSnapshot(teamID, members, adjustments, events, items, window)

	shares := capacity.ItemShares(items)
	movable := make(map[string][]rebalance.MovableItem)
	for _, item := range items {
		if item.Assignee == "" || !item.IsOpen() {
			continue
		}
		points := shares[item.ID]
		if points <= 0 {
			continue
		}
		movable[item.Assignee] = append(movable[item.Assignee], rebalance.MovableItem{
			ID:     item.ID,
			Title:  item.Title,
			Points: points,
		})
	}

	return rebalance.BuildPlan(snapshot, movable, sprintID, s.clock()), nil
}

// GetRebalanceHistory returns a team's rebalance records newest first.
func (s *Service) GetRebalanceHistory(ctx context.Context, teamID string, limit int) ([]domain.RebalanceRecord, error) {
	if _, err := s.repo.GetTeam(ctx, teamID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.historyLimit
	}
	return s.repo.ListRebalanceRecordsByTeam(ctx, teamID, limit)
}

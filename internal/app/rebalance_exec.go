package app

import (
	"context"
	"errors"
	"strconv"

	"github.com/tillerhq/tiller/internal/domain"
)

// Per-move skip reasons surfaced in rebalance records.
const (
	skipAssignmentChanged = "assignment changed since plan was generated"
	skipItemMissing       = "work item no longer exists"
	skipTargetMissing     = "target member no longer exists"
)

// ApplyRebalancePlan executes an accepted plan move by move. Moves run
// strictly sequentially; a failed or stale move is recorded as skipped
// and never aborts the rest of the plan. The staleness guard is the sole
// concurrency mechanism: a move whose source assignment changed since
// the plan was generated silently no-ops instead of clobbering the
// concurrent change. A RebalanceRecord is always persisted, partial
// outcomes included.
func (s *Service) ApplyRebalancePlan(ctx context.Context, teamID string, plan domain.RebalancePlan, triggeredBy, sprintID string) (domain.RebalanceRecord, error) {
	if err := validatePlan(teamID, plan); err != nil {
		return domain.RebalanceRecord{}, err
	}
	if _, err := s.repo.GetTeam(ctx, teamID); err != nil {
		return domain.RebalanceRecord{}, err
	}

	outcomes := make([]domain.MoveOutcome, 0, len(plan.Moves))
	for _, move := range plan.Moves {
		outcomes = append(outcomes, s.applyMove(ctx, teamID, move, triggeredBy))
	}

	applied, skipped, status := domain.SummarizeOutcomes(outcomes)
	record := domain.RebalanceRecord{
		ID:           s.idGen(),
		TeamID:       teamID,
		SprintID:     sprintID,
		TriggeredBy:  triggeredBy,
		Plan:         plan,
		Outcomes:     outcomes,
		AppliedCount: applied,
		SkippedCount: skipped,
		Status:       status,
		CreatedAt:    s.clock().UTC(),
	}
	if err := s.repo.CreateRebalanceRecord(ctx, record); err != nil {
		return domain.RebalanceRecord{}, err
	}

	s.recordAudit(ctx, domain.AuditEvent{
		TeamID:    teamID,
		Operation: domain.AuditOperationRebalance,
		ActorID:   triggeredBy,
		Metadata: map[string]string{
			"record_id": record.ID,
			"applied":   strconv.Itoa(applied),
			"skipped":   strconv.Itoa(skipped),
			"status":    string(status),
		},
		OccurredAt: record.CreatedAt,
	})
	return record, nil
}

// applyMove executes one move with a fresh read of the work item. Any
// store error converts to a skip with the underlying message.
func (s *Service) applyMove(ctx context.Context, teamID string, move domain.RebalanceMove, triggeredBy string) domain.MoveOutcome {
	outcome := domain.MoveOutcome{Move: move, Status: domain.MoveSkipped}

	item, err := s.repo.GetWorkItem(ctx, move.ItemID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			outcome.Reason = skipItemMissing
		} else {
			outcome.Reason = err.Error()
		}
		return outcome
	}
	if item.Assignee != move.FromMemberID {
		outcome.Reason = skipAssignmentChanged
		return outcome
	}
	if _, err := s.repo.GetMember(ctx, move.ToMemberID); err != nil {
		if errors.Is(err, ErrNotFound) {
			outcome.Reason = skipTargetMissing
		} else {
			outcome.Reason = err.Error()
		}
		return outcome
	}

	now := s.clock()
	item.Assign(move.ToMemberID, now)
	if err := s.repo.UpdateWorkItem(ctx, item); err != nil {
		outcome.Reason = err.Error()
		return outcome
	}

	outcome.Status = domain.MoveApplied
	outcome.Reason = ""
	s.recordAudit(ctx, domain.AuditEvent{
		TeamID:    teamID,
		ItemID:    item.ID,
		Operation: domain.AuditOperationReassign,
		ActorID:   triggeredBy,
		Metadata: map[string]string{
			"from": move.FromMemberID,
			"to":   move.ToMemberID,
		},
		OccurredAt: now,
	})
	return outcome
}

// validatePlan rejects empty or malformed plans before any mutation.
func validatePlan(teamID string, plan domain.RebalancePlan) error {
	if teamID == "" {
		return ErrInvalidPlan
	}
	if plan.TeamID != "" && plan.TeamID != teamID {
		return ErrInvalidPlan
	}
	if len(plan.Moves) == 0 {
		return ErrInvalidPlan
	}
	for _, move := range plan.Moves {
		if move.ItemID == "" || move.FromMemberID == "" || move.ToMemberID == "" {
			return ErrInvalidPlan
		}
	}
	return nil
}

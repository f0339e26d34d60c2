package domain

import "time"

// PlanSuggestion classifies a generated plan.
type PlanSuggestion string

// PlanSuggestion values.
const (
	SuggestionBalanced             PlanSuggestion = "balanced"
	SuggestionInsufficientCapacity PlanSuggestion = "insufficient_capacity"
	SuggestionRebalancePlan        PlanSuggestion = "rebalance_plan"
)

// RebalanceMove proposes moving one work item between members.
type RebalanceMove struct {
	ItemID                  string  `json:"item_id"`
	ItemTitle               string  `json:"item_title"`
	FromMemberID            string  `json:"from_member_id"`
	ToMemberID              string  `json:"to_member_id"`
	Points                  float64 `json:"points"`
	SourceUtilizationBefore float64 `json:"source_utilization_before"`
	SourceUtilizationAfter  float64 `json:"source_utilization_after"`
	TargetUtilizationBefore float64 `json:"target_utilization_before"`
	TargetUtilizationAfter  float64 `json:"target_utilization_after"`
	Reason                  string  `json:"reason"`
}

// RebalancePlan is an ordered list of proposed moves plus plan-level metrics.
// ImbalanceScore is the aggregate overload before any move was simulated.
type RebalancePlan struct {
	TeamID         string          `json:"team_id"`
	SprintID       string          `json:"sprint_id,omitempty"`
	GeneratedAt    time.Time       `json:"generated_at"`
	ImbalanceScore float64         `json:"imbalance_score"`
	Suggestion     PlanSuggestion  `json:"suggestion"`
	Moves          []RebalanceMove `json:"moves"`
}

// MoveStatus describes one move's execution outcome.
type MoveStatus string

// MoveStatus values.
const (
	MoveApplied MoveStatus = "applied"
	MoveSkipped MoveStatus = "skipped"
)

// MoveOutcome records one executed or skipped move.
type MoveOutcome struct {
	Move   RebalanceMove `json:"move"`
	Status MoveStatus    `json:"status"`
	Reason string        `json:"reason,omitempty"`
}

// RecordStatus summarizes a whole rebalance execution.
type RecordStatus string

// RecordStatus values.
const (
	RecordApplied RecordStatus = "applied"
	RecordPartial RecordStatus = "partial"
	RecordFailed  RecordStatus = "failed"
)

// RebalanceRecord is the immutable audit record of one plan execution.
type RebalanceRecord struct {
	ID           string        `json:"id"`
	TeamID       string        `json:"team_id"`
	SprintID     string        `json:"sprint_id,omitempty"`
	TriggeredBy  string        `json:"triggered_by"`
	Plan         RebalancePlan `json:"plan"`
	Outcomes     []MoveOutcome `json:"outcomes"`
	AppliedCount int           `json:"applied_count"`
	SkippedCount int           `json:"skipped_count"`
	Status       RecordStatus  `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
}

// SummarizeOutcomes derives counts and overall status from per-move outcomes.
func SummarizeOutcomes(outcomes []MoveOutcome) (applied, skipped int, status RecordStatus) {
	for _, outcome := range outcomes {
		if outcome.Status == MoveApplied {
			applied++
		} else {
			skipped++
		}
	}
	switch {
	case applied > 0 && skipped == 0:
		status = RecordApplied
	case applied > 0:
		status = RecordPartial
	default:
		status = RecordFailed
	}
	return applied, skipped, status
}

// Package rebalance contains the greedy workload-rebalancing planner.
// The planner is deliberately greedy rather than optimal: every move it
// proposes carries a one-line human rationale, and the move ordering is
// deterministic so plans are explainable and repeatable. It works purely
// on in-memory capacity snapshots and never touches a store.
package rebalance

import (
	"fmt"
	"sort"
	"time"

	"github.com/tillerhq/tiller/internal/capacity"
	"github.com/tillerhq/tiller/internal/domain"
)

// Policy thresholds for classifying move targets. A member absorbs work
// only when comfortably below capacity, not merely slightly under it.
const (
	underutilizedThreshold = 0.80
	minAvailablePoints     = 2.0
)

// MovableItem is one not-done work item a source member could give up.
type MovableItem struct {
	ID     string
	Title  string
	Points float64
}

// memberState is the planner's local mutable copy of one member snapshot.
type memberState struct {
	id        string
	effective float64
	workload  float64
	available float64
}

func (m *memberState) utilization() float64 {
	if m.effective <= 0 {
		return 0
	}
	return m.workload / m.effective
}

// BuildPlan produces a rebalance plan for the team snapshot. Items in
// movableByMember are the assigned, not-done work items eligible to move,
// keyed by member id.
//
// Sources are processed in snapshot order, not sorted by overload
// severity. Each source's items move largest first; each item goes to
// whichever target currently has the most available points. A single
// item is never split across targets. All mutation happens on local
// copies of the snapshot numbers.
func BuildPlan(snapshot capacity.TeamSnapshot, movableByMember map[string][]MovableItem, sprintID string, now time.Time) domain.RebalancePlan {
	plan := domain.RebalancePlan{
		TeamID:      snapshot.TeamID,
		SprintID:    sprintID,
		GeneratedAt: now,
		Moves:       []domain.RebalanceMove{},
	}

	var sources []*memberState
	var targets []*memberState
	for _, ms := range snapshot.Members {
		state := &memberState{
			id:        ms.ID,
			effective: ms.EffectiveCapacity,
			workload:  ms.CurrentWorkload,
			available: ms.AvailablePoints,
		}
		if ms.IsOverloaded {
			sources = append(sources, state)
			plan.ImbalanceScore += ms.CurrentWorkload - ms.EffectiveCapacity
		} else if ms.Utilization < underutilizedThreshold && ms.AvailablePoints > minAvailablePoints {
			targets = append(targets, state)
		}
	}

	if len(sources) == 0 {
		plan.Suggestion = domain.SuggestionBalanced
		return plan
	}

	for _, source := range sources {
		items := append([]MovableItem(nil), movableByMember[source.id]...)
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].Points > items[j].Points
		})

		for _, item := range items {
			if source.workload <= source.effective {
				break
			}
			if item.Points <= 0 {
				continue
			}

			sort.SliceStable(targets, func(i, j int) bool {
				return targets[i].available > targets[j].available
			})
			var target *memberState
			for _, candidate := range targets {
				if candidate.available > 0 {
					target = candidate
					break
				}
			}
			if target == nil {
				break
			}

			move := domain.RebalanceMove{
				ItemID:                  item.ID,
				ItemTitle:               item.Title,
				FromMemberID:            source.id,
				ToMemberID:              target.id,
				Points:                  item.Points,
				SourceUtilizationBefore: source.utilization(),
				TargetUtilizationBefore: target.utilization(),
			}

			source.workload -= item.Points
			target.workload += item.Points
			target.available -= item.Points
			if target.available < 0 {
				target.available = 0
			}

			move.SourceUtilizationAfter = source.utilization()
			move.TargetUtilizationAfter = target.utilization()
			move.Reason = fmt.Sprintf(
				"move %q (%.1f pts) from %s (%.0f%% -> %.0f%% utilization) to %s (%.0f%% -> %.0f%%)",
				item.Title, item.Points,
				source.id, move.SourceUtilizationBefore*100, move.SourceUtilizationAfter*100,
				target.id, move.TargetUtilizationBefore*100, move.TargetUtilizationAfter*100,
			)
			plan.Moves = append(plan.Moves, move)
		}
	}

	if len(plan.Moves) == 0 {
		plan.Suggestion = domain.SuggestionInsufficientCapacity
	} else {
		plan.Suggestion = domain.SuggestionRebalancePlan
	}
	return plan
}

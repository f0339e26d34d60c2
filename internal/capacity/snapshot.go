// Package capacity computes per-member effective capacity and workload
// snapshots over a planning window. Snapshots are ephemeral read models:
// built fresh per request from store data, consumed by the rebalance
// planner, never persisted.
package capacity

import (
	"time"

	"github.com/tillerhq/tiller/internal/domain"
)

// defaultWindowDays is the planning horizon used when the caller supplies
// no explicit bounds.
const defaultWindowDays = 14

// Window is a half-open planning interval [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DefaultWindow returns the standard planning window anchored at now.
func DefaultWindow(now time.Time) Window {
	return Window{Start: now, End: now.AddDate(0, 0, defaultWindowDays)}
}

// Valid reports whether the window spans a positive duration.
func (w Window) Valid() bool {
	return w.End.After(w.Start)
}

// overlapFraction returns the fraction of the window covered by
// [start, end), clamped to [0, 1]. A zero-length window overlaps nothing.
func (w Window) overlapFraction(start, end time.Time) float64 {
	total := w.End.Sub(w.Start)
	if total <= 0 {
		return 0
	}
	lo := start
	if w.Start.After(lo) {
		lo = w.Start
	}
	hi := end
	if w.End.Before(hi) {
		hi = w.End
	}
	overlap := hi.Sub(lo)
	if overlap <= 0 {
		return 0
	}
	frac := float64(overlap) / float64(total)
	if frac > 1 {
		return 1
	}
	return frac
}

// MemberSnapshot is one member's capacity picture for the window.
type MemberSnapshot struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	BaseCapacity      float64 `json:"base_capacity"`
	EffectiveCapacity float64 `json:"effective_capacity"`
	CurrentWorkload   float64 `json:"current_workload"`
	Utilization       float64 `json:"utilization"`
	IsOverloaded      bool    `json:"is_overloaded"`
	AvailablePoints   float64 `json:"available_points"`
}

// Totals aggregates the member snapshots.
type Totals struct {
	TotalCapacity     float64 `json:"total_capacity"`
	TotalWorkload     float64 `json:"total_workload"`
	AvailableCapacity float64 `json:"available_capacity"`
}

// TeamSnapshot is the full capacity read model for one team and window.
type TeamSnapshot struct {
	TeamID  string           `json:"team_id"`
	Window  Window           `json:"window"`
	Members []MemberSnapshot `json:"members"`
	Totals  Totals           `json:"totals"`
}

// BuildSnapshot assembles a TeamSnapshot from store data. Members are
// emitted in input order; the planner depends on that ordering.
//
// Effective capacity composes multiplicatively: each overlapping
// adjustment contributes a factor 1 - f*(1 - adjusted/base) and each
// calendar event a factor 1 - f*impact/100, where f is the fraction of
// the window the record covers. Composition by multiplication rather
// than subtraction keeps stacked absences from driving capacity
// negative; the result is still floored at zero.
func BuildSnapshot(teamID string, members []domain.Member, adjustments []domain.CapacityAdjustment, events []domain.CalendarEvent, items []domain.WorkItem, window Window) TeamSnapshot {
	snapshot := TeamSnapshot{
		TeamID:  teamID,
		Window:  window,
		Members: make([]MemberSnapshot, 0, len(members)),
	}

	adjustmentsByMember := make(map[string][]domain.CapacityAdjustment)
	for _, adj := range adjustments {
		adjustmentsByMember[adj.MemberID] = append(adjustmentsByMember[adj.MemberID], adj)
	}
	eventsByMember := make(map[string][]domain.CalendarEvent)
	for _, ev := range events {
		eventsByMember[ev.MemberID] = append(eventsByMember[ev.MemberID], ev)
	}
	workloads := workloadByAssignee(items)

	for _, member := range members {
		effective := effectiveCapacity(member, adjustmentsByMember[member.ID], eventsByMember[member.ID], window)
		load := workloads[member.ID]

		ms := MemberSnapshot{
			ID:                member.ID,
			Name:              member.Name,
			BaseCapacity:      member.BaseCapacity,
			EffectiveCapacity: effective,
			CurrentWorkload:   load,
			IsOverloaded:      load > effective,
		}
		if effective > 0 {
			ms.Utilization = load / effective
		}
		if avail := effective - load; avail > 0 {
			ms.AvailablePoints = avail
		}

		snapshot.Members = append(snapshot.Members, ms)
		snapshot.Totals.TotalCapacity += effective
		snapshot.Totals.TotalWorkload += load
		snapshot.Totals.AvailableCapacity += ms.AvailablePoints
	}

	return snapshot
}

// effectiveCapacity applies every overlapping adjustment and calendar
// event to the member's base capacity for the window.
func effectiveCapacity(member domain.Member, adjustments []domain.CapacityAdjustment, events []domain.CalendarEvent, window Window) float64 {
	base := member.BaseCapacity
	if base <= 0 {
		return 0
	}

	effective := base
	for _, adj := range adjustments {
		frac := window.overlapFraction(adj.StartAt, adj.EndAt)
		if frac == 0 {
			continue
		}
		effective *= 1 - frac*(1-adj.AdjustedCapacity/base)
	}
	for _, ev := range events {
		frac := window.overlapFraction(ev.StartAt, ev.EndAt)
		if frac == 0 {
			continue
		}
		effective *= 1 - frac*ev.ImpactPercent/100
	}

	if effective < 0 {
		return 0
	}
	return effective
}

// ItemShares returns each open item's point contribution under the
// story-split attribution: a task inherits an even share of its parent
// story's points split over that story's open tasks, the parent story
// itself contributes nothing while open children remain, and items with
// only an hour estimate fall back to hours/2. Closed and archived items
// are absent from the result.
func ItemShares(items []domain.WorkItem) map[string]float64 {
	byID := make(map[string]domain.WorkItem, len(items))
	openChildren := make(map[string]int)
	for _, item := range items {
		byID[item.ID] = item
		if item.Kind == domain.KindTask && item.ParentID != "" && item.IsOpen() {
			openChildren[item.ParentID]++
		}
	}

	shares := make(map[string]float64, len(items))
	for _, item := range items {
		if !item.IsOpen() {
			continue
		}
		shares[item.ID] = pointContribution(item, byID, openChildren)
	}
	return shares
}

// workloadByAssignee sums ItemShares per assignee.
func workloadByAssignee(items []domain.WorkItem) map[string]float64 {
	shares := ItemShares(items)
	loads := make(map[string]float64)
	for _, item := range items {
		if item.Assignee == "" || !item.IsOpen() {
			continue
		}
		loads[item.Assignee] += shares[item.ID]
	}
	return loads
}

func pointContribution(item domain.WorkItem, byID map[string]domain.WorkItem, openChildren map[string]int) float64 {
	switch item.Kind {
	case domain.KindStory:
		// Open children carry the story's estimate instead.
		if openChildren[item.ID] > 0 {
			return 0
		}
		return item.PointEquivalent()
	default:
		if item.ParentID != "" {
			if parent, ok := byID[item.ParentID]; ok && parent.Points != nil {
				if siblings := openChildren[item.ParentID]; siblings > 0 {
					return *parent.Points / float64(siblings)
				}
			}
		}
		return item.PointEquivalent()
	}
}

package domain

import (
	"strings"
	"time"
)

// Team groups members whose workload is balanced together.
type Team struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ArchivedAt  *time.Time
}

// NewTeam constructs a normalized team.
func NewTeam(id, name, description string, now time.Time) (Team, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)

	if id == "" {
		return Team{}, ErrInvalidID
	}
	if name == "" {
		return Team{}, ErrInvalidName
	}

	return Team{
		ID:          id,
		Name:        name,
		Description: description,
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}, nil
}

// Member is one capacity-bearing team member.
type Member struct {
	ID           string
	TeamID       string
	Name         string
	BaseCapacity float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ArchivedAt   *time.Time
}

// NewMember constructs a normalized member.
func NewMember(id, teamID, name string, baseCapacity float64, now time.Time) (Member, error) {
	id = strings.TrimSpace(id)
	teamID = strings.TrimSpace(teamID)
	name = strings.TrimSpace(name)

	if id == "" || teamID == "" {
		return Member{}, ErrInvalidID
	}
	if name == "" {
		return Member{}, ErrInvalidName
	}
	if baseCapacity < 0 {
		return Member{}, ErrInvalidCapacity
	}

	return Member{
		ID:           id,
		TeamID:       teamID,
		Name:         name,
		BaseCapacity: baseCapacity,
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}, nil
}

// CapacityAdjustment reduces a member's capacity over a date range
// (leave, partial availability). AdjustedCapacity is the capacity that
// remains in effect for the covered days; zero removes them entirely.
type CapacityAdjustment struct {
	ID               string
	MemberID         string
	StartAt          time.Time
	EndAt            time.Time
	AdjustedCapacity float64
	Reason           string
	CreatedAt        time.Time
}

// NewCapacityAdjustment constructs a normalized adjustment.
func NewCapacityAdjustment(id, memberID string, startAt, endAt time.Time, adjustedCapacity float64, reason string, now time.Time) (CapacityAdjustment, error) {
	id = strings.TrimSpace(id)
	memberID = strings.TrimSpace(memberID)
	if id == "" || memberID == "" {
		return CapacityAdjustment{}, ErrInvalidID
	}
	if !endAt.After(startAt) {
		return CapacityAdjustment{}, ErrInvalidWindow
	}
	if adjustedCapacity < 0 {
		return CapacityAdjustment{}, ErrInvalidCapacity
	}
	return CapacityAdjustment{
		ID:               id,
		MemberID:         memberID,
		StartAt:          startAt.UTC(),
		EndAt:            endAt.UTC(),
		AdjustedCapacity: adjustedCapacity,
		Reason:           strings.TrimSpace(reason),
		CreatedAt:        now.UTC(),
	}, nil
}

// CalendarEvent reduces a member's capacity by a percentage over a date
// range (holidays, ceremonies, training).
type CalendarEvent struct {
	ID            string
	MemberID      string
	Title         string
	StartAt       time.Time
	EndAt         time.Time
	ImpactPercent float64
	CreatedAt     time.Time
}

// NewCalendarEvent constructs a normalized calendar event.
func NewCalendarEvent(id, memberID, title string, startAt, endAt time.Time, impactPercent float64, now time.Time) (CalendarEvent, error) {
	id = strings.TrimSpace(id)
	memberID = strings.TrimSpace(memberID)
	title = strings.TrimSpace(title)
	if id == "" || memberID == "" {
		return CalendarEvent{}, ErrInvalidID
	}
	if title == "" {
		return CalendarEvent{}, ErrInvalidTitle
	}
	if !endAt.After(startAt) {
		return CalendarEvent{}, ErrInvalidWindow
	}
	if impactPercent < 0 || impactPercent > 100 {
		return CalendarEvent{}, ErrInvalidImpact
	}
	return CalendarEvent{
		ID:            id,
		MemberID:      memberID,
		Title:         title,
		StartAt:       startAt.UTC(),
		EndAt:         endAt.UTC(),
		ImpactPercent: impactPercent,
		CreatedAt:     now.UTC(),
	}, nil
}

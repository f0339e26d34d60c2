package domain

import (
	"strings"
	"time"
)

// Sprint is a planning window rebalance operations can be scoped to.
type Sprint struct {
	ID        string
	TeamID    string
	Name      string
	StartAt   time.Time
	EndAt     time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSprint constructs a normalized sprint.
func NewSprint(id, teamID, name string, startAt, endAt time.Time, now time.Time) (Sprint, error) {
	id = strings.TrimSpace(id)
	teamID = strings.TrimSpace(teamID)
	name = strings.TrimSpace(name)

	if id == "" || teamID == "" {
		return Sprint{}, ErrInvalidID
	}
	if name == "" {
		return Sprint{}, ErrInvalidName
	}
	if !endAt.After(startAt) {
		return Sprint{}, ErrInvalidWindow
	}

	return Sprint{
		ID:        id,
		TeamID:    teamID,
		Name:      name,
		StartAt:   startAt.UTC(),
		EndAt:     endAt.UTC(),
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}, nil
}

// Window returns the sprint's planning window bounds.
func (s Sprint) Window() (time.Time, time.Time) {
	return s.StartAt, s.EndAt
}

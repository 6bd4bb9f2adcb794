package models

import "time"

// CompetitionStatus представляет производное состояние соревнования.
// It is never stored; it is derived from is_running/finished_at.
type CompetitionStatus string

const (
	StatusScheduled CompetitionStatus = "scheduled"
	StatusRunning   CompetitionStatus = "running"
	StatusFinished  CompetitionStatus = "finished"
)

// Competition представляет одно соревнование (забег).
type Competition struct {
	ID          int        `json:"id" db:"id"`
	Name        string     `json:"name" db:"name"`
	ScheduledAt time.Time  `json:"scheduled_at" db:"scheduled_at"`
	Category    string     `json:"category,omitempty" db:"category"`
	IsActive    bool       `json:"is_active" db:"is_active"`
	IsRunning   bool       `json:"is_running" db:"is_running"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty" db:"finished_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	LogoKey     *string    `json:"-" db:"logo_key"`
	LogoURL     *string    `json:"logo_url,omitempty" db:"-"`

	// Опциональные связанные сущности (не мапятся напрямую)
	Teams []Team `json:"teams,omitempty" db:"-"`
}

// Status derives the lifecycle state: a competition that was stopped after
// running is "finished", one that never started is "scheduled".
func (c *Competition) Status() CompetitionStatus {
	switch {
	case c.IsRunning:
		return StatusRunning
	case c.FinishedAt != nil:
		return StatusFinished
	default:
		return StatusScheduled
	}
}

package models

import "time"

// MaxRecordsPerTeam — фиксированный размер состава команды.
const MaxRecordsPerTeam = 15

// TimeRecord представляет одно зарегистрированное время участника.
// RecordID is the client-supplied idempotency key; the total and the
// H/M/S/ms components are kept consistent by Normalize.
type TimeRecord struct {
	ID           int       `json:"id" db:"id"`
	RecordID     string    `json:"record_id" db:"record_id"`
	TeamID       int       `json:"team_id" db:"team_id"`
	TimeMS       int64     `json:"time_ms" db:"time_ms"`
	Hours        int       `json:"hours" db:"hours"`
	Minutes      int       `json:"minutes" db:"minutes"`
	Seconds      int       `json:"seconds" db:"seconds"`
	Milliseconds int       `json:"milliseconds" db:"milliseconds"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`

	Team *Team `json:"team,omitempty" db:"-"`
}

// IsAbsent reports the "team member absent" sentinel. A total of exactly 0
// is not a valid race time; it marks the member as absent and disqualifies
// the team.
func (r *TimeRecord) IsAbsent() bool {
	return r.TimeMS == 0
}

// Normalize keeps TimeMS consistent with the granular fields. If any
// component is non-zero the components win and the total is recomputed from
// them; otherwise the components are derived from the total.
func (r *TimeRecord) Normalize() {
	if r.Hours != 0 || r.Minutes != 0 || r.Seconds != 0 || r.Milliseconds != 0 {
		r.TimeMS = ComposeTimeMS(r.Hours, r.Minutes, r.Seconds, r.Milliseconds)
		return
	}
	r.Hours, r.Minutes, r.Seconds, r.Milliseconds = DecomposeTimeMS(r.TimeMS)
}

// ComposeTimeMS converts H/M/S/ms components into total milliseconds.
func ComposeTimeMS(hours, minutes, seconds, milliseconds int) int64 {
	return (int64(hours)*3600+int64(minutes)*60+int64(seconds))*1000 + int64(milliseconds)
}

// DecomposeTimeMS splits total milliseconds into H/M/S/ms components.
func DecomposeTimeMS(totalMS int64) (hours, minutes, seconds, milliseconds int) {
	if totalMS < 0 {
		totalMS = 0
	}
	milliseconds = int(totalMS % 1000)
	totalSeconds := totalMS / 1000
	seconds = int(totalSeconds % 60)
	totalMinutes := totalSeconds / 60
	minutes = int(totalMinutes % 60)
	hours = int(totalMinutes / 60)
	return hours, minutes, seconds, milliseconds
}

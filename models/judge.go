package models

import "time"

// Judge представляет судью, закреплённого за командами.
// A judge is globally scoped; its competition is derived through the teams
// it owns.
type Judge struct {
	ID           int        `json:"id" db:"id"`
	Username     string     `json:"username" db:"username"`
	PasswordHash string     `json:"-" db:"password_hash"`
	FirstName    string     `json:"first_name" db:"first_name"`
	LastName     string     `json:"last_name" db:"last_name"`
	Email        string     `json:"email,omitempty" db:"email"`
	Phone        string     `json:"phone,omitempty" db:"phone"`
	IsActive     bool       `json:"is_active" db:"is_active"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty" db:"last_login"`

	Teams []Team `json:"teams,omitempty" db:"-"`
}

func (j *Judge) FullName() string {
	if j.FirstName == "" {
		return j.LastName
	}
	if j.LastName == "" {
		return j.FirstName
	}
	return j.FirstName + " " + j.LastName
}

package models

import "time"

// Категории команд, соответствующие ENUM в БД.
const (
	CategoryStudents     = "estudiantes"
	CategoryInterfaculty = "interfacultades"
)

type Team struct {
	ID            int       `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	BibNumber     int       `json:"bib_number" db:"bib_number"`
	Category      string    `json:"category" db:"category"`
	CompetitionID int       `json:"competition_id" db:"competition_id"`
	JudgeID       *int      `json:"judge_id,omitempty" db:"judge_id"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`

	Competition *Competition `json:"competition,omitempty" db:"-"`
	Judge       *Judge       `json:"judge,omitempty" db:"-"`
	Records     []TimeRecord `json:"records,omitempty" db:"-"`
}

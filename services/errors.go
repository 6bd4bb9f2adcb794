package services

import (
	"errors"
	"fmt"

	"github.com/unl5k/race-timing-system/models"
)

// Общие ошибки, используемые в разных сервисах и маппинге HTTP.
var (
	// Ресурс не найден
	ErrCompetitionNotFound = errors.New("competition not found")
	ErrTeamNotFound        = errors.New("team not found")
	ErrJudgeNotFound       = errors.New("judge not found")

	// Ошибки валидации
	ErrValidationFailed = errors.New("validation failed")
	ErrTimeRequired     = errors.New("time value is required")
	ErrNegativeTime     = errors.New("time value cannot be negative")
	ErrEmptyBatch       = errors.New("no records submitted")

	// Ошибки аутентификации и авторизации
	ErrAuthInvalidCredentials = errors.New("invalid username or password")
	ErrJudgeInactive          = errors.New("judge account is inactive")
	ErrTeamNotOwned           = errors.New("team is not assigned to this judge")
	ErrNoTeamAssigned         = errors.New("judge has no teams assigned")

	// Конфликты состояния (бизнес-правила)
	ErrCompetitionNotActive       = errors.New("competition is not active")
	ErrCompetitionAlreadyRunning  = errors.New("competition is already running")
	ErrCompetitionNotRunning      = errors.New("competition is not running")
	ErrAnotherCompetitionRunning  = errors.New("another competition is already running")
	ErrRecordLimitExceeded        = fmt.Errorf("team already has the maximum of %d records", models.MaxRecordsPerTeam)

	// Хранилище файлов
	ErrUploaderNotConfigured = errors.New("file storage is not configured")
	ErrUnsupportedImageType  = errors.New("unsupported image content type")
)

// ConflictingCompetitionError сообщает, какое именно другое соревнование
// уже запущено. Unwraps to ErrAnotherCompetitionRunning.
type ConflictingCompetitionError struct {
	Other *models.Competition
}

func (e *ConflictingCompetitionError) Error() string {
	return fmt.Sprintf("cannot start: competition %q (id %d) is already running, stop it first",
		e.Other.Name, e.Other.ID)
}

func (e *ConflictingCompetitionError) Unwrap() error {
	return ErrAnotherCompetitionRunning
}

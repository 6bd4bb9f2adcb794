package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/unl5k/race-timing-system/live"
	"github.com/unl5k/race-timing-system/models"
	"github.com/unl5k/race-timing-system/repositories"
)

// RecordInput — один регистрируемый результат. RecordID is the optional
// client-supplied idempotency key; TimeMS may be omitted when the granular
// components are supplied.
type RecordInput struct {
	RecordID     string `json:"record_id,omitempty"`
	TimeMS       *int64 `json:"time_ms"`
	Hours        int    `json:"hours"`
	Minutes      int    `json:"minutes"`
	Seconds      int    `json:"seconds"`
	Milliseconds int    `json:"milliseconds"`
}

// RegisterResult — результат регистрации одного времени.
type RegisterResult struct {
	Record    *models.TimeRecord `json:"record"`
	Duplicate bool               `json:"duplicate"`
}

// BatchItemResult — итог обработки одной позиции батча. Exactly one of
// Saved/Duplicate/Failed applies; Error is set only for failed items.
type BatchItemResult struct {
	Index     int                `json:"index"`
	Saved     bool               `json:"saved"`
	Duplicate bool               `json:"duplicate"`
	Failed    bool               `json:"failed"`
	Error     string             `json:"error,omitempty"`
	Record    *models.TimeRecord `json:"record,omitempty"`
}

// BatchResult — постатейный итог батч-регистрации; частичный успех ожидаем.
type BatchResult struct {
	Team           *models.Team      `json:"team"`
	TotalSubmitted int               `json:"total_submitted"`
	TotalSaved     int               `json:"total_saved"`
	TotalFailed    int               `json:"total_failed"`
	Items          []BatchItemResult `json:"items"`
}

// TeamRecordsStatus — состояние регистраций команды для судьи.
type TeamRecordsStatus struct {
	Team       *models.Team        `json:"team"`
	Count      int                 `json:"count"`
	MaxRecords int                 `json:"max_records"`
	CanSubmit  bool                `json:"can_submit"`
	Records    []models.TimeRecord `json:"records"`
}

type RegistrationService interface {
	// Register сохраняет одно время. Идемпотентно по record_id: повторная
	// отправка возвращает существующую запись с duplicate=true.
	Register(ctx context.Context, judgeID, teamID int, input RecordInput) (*RegisterResult, error)
	// RegisterBatch сохраняет пачку времён одной транзакцией. Проверки
	// судьи/соревнования/команды выполняются один раз; итог по каждой
	// позиции возвращается отдельно.
	RegisterBatch(ctx context.Context, judgeID, teamID int, inputs []RecordInput) (*BatchResult, error)
	Status(ctx context.Context, judgeID, teamID int) (*TeamRecordsStatus, error)
}

type registrationService struct {
	tx              repositories.TxManager
	teamRepo        repositories.TeamRepository
	competitionRepo repositories.CompetitionRepository
	recordRepo      repositories.TimeRecordRepository
	notifier        Notifier
	logger          *slog.Logger
}

func NewRegistrationService(
	tx repositories.TxManager,
	teamRepo repositories.TeamRepository,
	competitionRepo repositories.CompetitionRepository,
	recordRepo repositories.TimeRecordRepository,
	notifier Notifier,
	logger *slog.Logger,
) RegistrationService {
	return &registrationService{
		tx:              tx,
		teamRepo:        teamRepo,
		competitionRepo: competitionRepo,
		recordRepo:      recordRepo,
		notifier:        notifier,
		logger:          logger,
	}
}

// resolveTeamForJudge performs the shared steps of every registration call:
// resolve the judge's competition through its teams, require it to be
// running, lock the target team row and check ownership.
func (s *registrationService) resolveTeamForJudge(ctx context.Context, exec repositories.SQLExecutor, judgeID, teamID int) (*models.Team, error) {
	owned, err := s.teamRepo.ListByJudge(ctx, exec, judgeID)
	if err != nil {
		return nil, err
	}
	if len(owned) == 0 {
		return nil, ErrNoTeamAssigned
	}

	competition, err := s.competitionRepo.GetByID(ctx, exec, owned[0].CompetitionID)
	if err != nil {
		if errors.Is(err, repositories.ErrCompetitionNotFound) {
			return nil, ErrCompetitionNotFound
		}
		return nil, err
	}
	if !competition.IsRunning {
		return nil, ErrCompetitionNotRunning
	}

	team, err := s.teamRepo.GetByIDForUpdate(ctx, exec, teamID)
	if err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return nil, ErrTeamNotFound
		}
		return nil, err
	}
	if team.JudgeID == nil || *team.JudgeID != judgeID {
		return nil, ErrTeamNotOwned
	}
	return team, nil
}

func buildRecord(teamID int, input RecordInput) (*models.TimeRecord, error) {
	hasComponents := input.Hours != 0 || input.Minutes != 0 || input.Seconds != 0 || input.Milliseconds != 0
	if input.TimeMS == nil && !hasComponents {
		return nil, ErrTimeRequired
	}
	if input.Hours < 0 || input.Minutes < 0 || input.Seconds < 0 || input.Milliseconds < 0 {
		return nil, ErrNegativeTime
	}
	if input.TimeMS != nil && *input.TimeMS < 0 {
		return nil, ErrNegativeTime
	}

	rec := &models.TimeRecord{
		RecordID:     input.RecordID,
		TeamID:       teamID,
		Hours:        input.Hours,
		Minutes:      input.Minutes,
		Seconds:      input.Seconds,
		Milliseconds: input.Milliseconds,
	}
	if input.TimeMS != nil {
		rec.TimeMS = *input.TimeMS
	}
	rec.Normalize()
	if rec.RecordID == "" {
		rec.RecordID = uuid.NewString()
	}
	return rec, nil
}

func (s *registrationService) Register(ctx context.Context, judgeID, teamID int, input RecordInput) (*RegisterResult, error) {
	var result RegisterResult
	var team *models.Team

	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		t, err := s.resolveTeamForJudge(ctx, exec, judgeID, teamID)
		if err != nil {
			return err
		}
		team = t

		if input.RecordID != "" {
			existing, err := s.recordRepo.GetByRecordID(ctx, exec, input.RecordID)
			if err != nil && !errors.Is(err, repositories.ErrTimeRecordNotFound) {
				return err
			}
			if existing != nil {
				// Идемпотентный повтор: возвращаем сохранённое, ничего не пишем.
				result = RegisterResult{Record: existing, Duplicate: true}
				return nil
			}
		}

		count, err := s.recordRepo.CountByTeam(ctx, exec, teamID)
		if err != nil {
			return err
		}
		if count >= models.MaxRecordsPerTeam {
			return ErrRecordLimitExceeded
		}

		rec, err := buildRecord(teamID, input)
		if err != nil {
			return err
		}
		if err := s.recordRepo.Create(ctx, exec, rec); err != nil {
			return fmt.Errorf("failed to create time record: %w", err)
		}
		result = RegisterResult{Record: rec, Duplicate: false}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Duplicate {
		s.notifyRecordsUpdated(ctx, team, 1, result.Record.TimeMS)
	}
	return &result, nil
}

func (s *registrationService) RegisterBatch(ctx context.Context, judgeID, teamID int, inputs []RecordInput) (*BatchResult, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptyBatch
	}

	result := &BatchResult{
		TotalSubmitted: len(inputs),
		Items:          make([]BatchItemResult, len(inputs)),
	}

	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		team, err := s.resolveTeamForJudge(ctx, exec, judgeID, teamID)
		if err != nil {
			return err
		}
		result.Team = team

		count, err := s.recordRepo.CountByTeam(ctx, exec, teamID)
		if err != nil {
			return err
		}

		// Сначала собираем кандидатов и ищем уже существующие record_id,
		// пока строка команды заблокирована.
		suppliedIDs := make([]string, 0, len(inputs))
		for _, in := range inputs {
			if in.RecordID != "" {
				suppliedIDs = append(suppliedIDs, in.RecordID)
			}
		}
		existing, err := s.recordRepo.ListExistingRecordIDs(ctx, exec, suppliedIDs)
		if err != nil {
			return err
		}

		toInsert := make([]*models.TimeRecord, 0, len(inputs))
		insertIndex := make(map[string]int, len(inputs))
		seen := make(map[string]bool, len(inputs))
		for i, in := range inputs {
			item := BatchItemResult{Index: i}

			if in.RecordID != "" {
				if prior, ok := existing[in.RecordID]; ok {
					item.Duplicate = true
					item.Record = prior
					result.Items[i] = item
					continue
				}
				// Повтор record_id внутри одного батча.
				if seen[in.RecordID] {
					item.Duplicate = true
					result.Items[i] = item
					continue
				}
				seen[in.RecordID] = true
			}

			rec, err := buildRecord(teamID, in)
			if err != nil {
				item.Failed = true
				item.Error = err.Error()
				result.Items[i] = item
				continue
			}

			// Виртуально инкрементируем счётчик: батч не может перешагнуть
			// лимит, хотя вставка выполняется одним запросом.
			if count >= models.MaxRecordsPerTeam {
				item.Failed = true
				item.Error = ErrRecordLimitExceeded.Error()
				result.Items[i] = item
				continue
			}
			count++

			toInsert = append(toInsert, rec)
			insertIndex[rec.RecordID] = i
			item.Record = rec
			result.Items[i] = item
		}

		inserted, err := s.recordRepo.CreateBatch(ctx, exec, toInsert)
		if err != nil {
			return fmt.Errorf("failed to insert time records batch: %w", err)
		}
		for _, rec := range toInsert {
			i := insertIndex[rec.RecordID]
			if inserted[rec.RecordID] {
				result.Items[i].Saved = true
			} else {
				// Конфликт по record_id, проглоченный ON CONFLICT DO NOTHING.
				result.Items[i].Duplicate = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var savedTotalMS int64
	for _, item := range result.Items {
		switch {
		case item.Saved:
			result.TotalSaved++
			savedTotalMS += item.Record.TimeMS
		case item.Failed:
			result.TotalFailed++
		}
	}

	s.logger.InfoContext(ctx, "batch registration processed",
		slog.Int("judge_id", judgeID),
		slog.Int("team_id", teamID),
		slog.Int("saved", result.TotalSaved),
		slog.Int("failed", result.TotalFailed),
	)
	if result.TotalSaved > 0 {
		s.notifyRecordsUpdated(ctx, result.Team, result.TotalSaved, savedTotalMS)
	}
	return result, nil
}

func (s *registrationService) Status(ctx context.Context, judgeID, teamID int) (*TeamRecordsStatus, error) {
	team, err := s.teamRepo.GetByID(ctx, nil, teamID)
	if err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return nil, ErrTeamNotFound
		}
		return nil, err
	}
	if team.JudgeID == nil || *team.JudgeID != judgeID {
		return nil, ErrTeamNotOwned
	}

	records, err := s.recordRepo.ListByTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	return &TeamRecordsStatus{
		Team:       team,
		Count:      len(records),
		MaxRecords: models.MaxRecordsPerTeam,
		CanSubmit:  len(records) < models.MaxRecordsPerTeam,
		Records:    records,
	}, nil
}

// notifyRecordsUpdated публикуется после commit — никогда под блокировкой.
func (s *registrationService) notifyRecordsUpdated(ctx context.Context, team *models.Team, savedCount int, savedTotalMS int64) {
	if team == nil {
		return
	}
	s.notifier.BroadcastToRoom(live.CompetitionRoom(team.CompetitionID), live.Message{
		Type: live.EventRecordsUpdated,
		Payload: map[string]interface{}{
			"team_id":       team.ID,
			"team_name":     team.Name,
			"bib_number":    team.BibNumber,
			"saved_records": savedCount,
			"saved_time_ms": savedTotalMS,
		},
	})
}

package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/unl5k/race-timing-system/live"
	"github.com/unl5k/race-timing-system/models"
	"github.com/unl5k/race-timing-system/repositories"
	"github.com/unl5k/race-timing-system/storage"
)

// Notifier — точка публикации событий живого канала.
// *live.Hub satisfies it; tests substitute a fake.
type Notifier interface {
	BroadcastToRoom(roomID string, message interface{})
}

// CompetitionStatusView — снимок состояния соревнования для клиентов.
type CompetitionStatusView struct {
	ID         int                      `json:"id"`
	Name       string                   `json:"name"`
	IsActive   bool                     `json:"is_active"`
	IsRunning  bool                     `json:"is_running"`
	Status     models.CompetitionStatus `json:"status"`
	StartedAt  *time.Time               `json:"started_at,omitempty"`
	FinishedAt *time.Time               `json:"finished_at,omitempty"`
	LogoURL    *string                  `json:"logo_url,omitempty"`
}

type CompetitionService interface {
	// Start переводит соревнование в состояние "в процессе".
	// At most one competition may be running system-wide; the check and the
	// state write happen in one advisory-locked transaction, the publish
	// strictly after commit.
	Start(ctx context.Context, competitionID int) (*models.Competition, error)
	Stop(ctx context.Context, competitionID int) (*models.Competition, error)
	GetStatus(ctx context.Context, competitionID int) (*CompetitionStatusView, error)
	// StatusForJudge разрешает соревнование судьи через его команды.
	StatusForJudge(ctx context.Context, judgeID int) (*CompetitionStatusView, error)
	ListActive(ctx context.Context) ([]models.Competition, error)
	UploadLogo(ctx context.Context, competitionID int, contentType string, r io.Reader) (*models.Competition, error)
}

type competitionService struct {
	tx              repositories.TxManager
	competitionRepo repositories.CompetitionRepository
	teamRepo        repositories.TeamRepository
	notifier        Notifier
	uploader        storage.FileUploader
	logger          *slog.Logger
}

func NewCompetitionService(
	tx repositories.TxManager,
	competitionRepo repositories.CompetitionRepository,
	teamRepo repositories.TeamRepository,
	notifier Notifier,
	uploader storage.FileUploader,
	logger *slog.Logger,
) CompetitionService {
	return &competitionService{
		tx:              tx,
		competitionRepo: competitionRepo,
		teamRepo:        teamRepo,
		notifier:        notifier,
		uploader:        uploader,
		logger:          logger,
	}
}

func (s *competitionService) Start(ctx context.Context, competitionID int) (*models.Competition, error) {
	var competition *models.Competition

	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		// Сериализуем все start/stop между собой: блокировки строк не
		// упорядочивают две транзакции, трогающие разные строки.
		if err := s.competitionRepo.AcquireLifecycleLock(ctx, exec); err != nil {
			return err
		}

		c, err := s.competitionRepo.GetByIDForUpdate(ctx, exec, competitionID)
		if err != nil {
			if errors.Is(err, repositories.ErrCompetitionNotFound) {
				return ErrCompetitionNotFound
			}
			return fmt.Errorf("failed to load competition %d: %w", competitionID, err)
		}
		if !c.IsActive {
			return ErrCompetitionNotActive
		}
		if c.IsRunning {
			return ErrCompetitionAlreadyRunning
		}

		other, err := s.competitionRepo.FindRunningExcept(ctx, exec, competitionID)
		if err != nil {
			return fmt.Errorf("failed to check for running competitions: %w", err)
		}
		if other != nil {
			return &ConflictingCompetitionError{Other: other}
		}

		now := time.Now().UTC()
		// Повторный запуск после финиша разрешён: finished_at сбрасывается,
		// производный статус снова становится "running".
		if err := s.competitionRepo.UpdateRunningState(ctx, exec, c.ID, true, &now, nil); err != nil {
			if errors.Is(err, repositories.ErrCompetitionRunningConflict) {
				return ErrAnotherCompetitionRunning
			}
			return fmt.Errorf("failed to mark competition %d as running: %w", c.ID, err)
		}
		c.IsRunning = true
		c.StartedAt = &now
		c.FinishedAt = nil
		competition = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "competition started",
		slog.Int("competition_id", competition.ID),
		slog.String("name", competition.Name),
	)
	s.notifier.BroadcastToRoom(live.CompetitionRoom(competition.ID), live.Message{
		Type:    live.EventCompetitionStarted,
		Message: "La competencia ha iniciado",
		Payload: s.statusView(competition),
	})
	return competition, nil
}

func (s *competitionService) Stop(ctx context.Context, competitionID int) (*models.Competition, error) {
	var competition *models.Competition

	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.competitionRepo.AcquireLifecycleLock(ctx, exec); err != nil {
			return err
		}

		c, err := s.competitionRepo.GetByIDForUpdate(ctx, exec, competitionID)
		if err != nil {
			if errors.Is(err, repositories.ErrCompetitionNotFound) {
				return ErrCompetitionNotFound
			}
			return fmt.Errorf("failed to load competition %d: %w", competitionID, err)
		}
		if !c.IsRunning {
			return ErrCompetitionNotRunning
		}

		now := time.Now().UTC()
		if err := s.competitionRepo.UpdateRunningState(ctx, exec, c.ID, false, nil, &now); err != nil {
			return fmt.Errorf("failed to mark competition %d as stopped: %w", c.ID, err)
		}
		c.IsRunning = false
		c.FinishedAt = &now
		competition = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "competition stopped",
		slog.Int("competition_id", competition.ID),
		slog.String("name", competition.Name),
	)
	s.notifier.BroadcastToRoom(live.CompetitionRoom(competition.ID), live.Message{
		Type:    live.EventCompetitionStopped,
		Message: "La competencia ha finalizado",
		Payload: s.statusView(competition),
	})
	return competition, nil
}

func (s *competitionService) GetStatus(ctx context.Context, competitionID int) (*CompetitionStatusView, error) {
	c, err := s.competitionRepo.GetByID(ctx, nil, competitionID)
	if err != nil {
		if errors.Is(err, repositories.ErrCompetitionNotFound) {
			return nil, ErrCompetitionNotFound
		}
		return nil, err
	}
	view := s.statusView(c)
	return &view, nil
}

func (s *competitionService) StatusForJudge(ctx context.Context, judgeID int) (*CompetitionStatusView, error) {
	teams, err := s.teamRepo.ListByJudge(ctx, nil, judgeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load teams for judge %d: %w", judgeID, err)
	}
	if len(teams) == 0 {
		return nil, ErrNoTeamAssigned
	}
	return s.GetStatus(ctx, teams[0].CompetitionID)
}

func (s *competitionService) ListActive(ctx context.Context) ([]models.Competition, error) {
	competitions, err := s.competitionRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list competitions: %w", err)
	}
	for i := range competitions {
		s.populateLogoURL(&competitions[i])
	}
	return competitions, nil
}

func (s *competitionService) UploadLogo(ctx context.Context, competitionID int, contentType string, r io.Reader) (*models.Competition, error) {
	if s.uploader == nil {
		return nil, ErrUploaderNotConfigured
	}

	c, err := s.competitionRepo.GetByID(ctx, nil, competitionID)
	if err != nil {
		if errors.Is(err, repositories.ErrCompetitionNotFound) {
			return nil, ErrCompetitionNotFound
		}
		return nil, err
	}

	ext, err := extensionFromContentType(contentType)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("competitions/%d/logo%s", c.ID, ext)
	result, err := s.uploader.Upload(ctx, key, contentType, r)
	if err != nil {
		return nil, fmt.Errorf("failed to upload competition logo: %w", err)
	}

	oldKey := c.LogoKey
	if err := s.competitionRepo.UpdateLogoKey(ctx, c.ID, &result.Key); err != nil {
		return nil, err
	}
	if oldKey != nil && *oldKey != result.Key {
		if delErr := s.uploader.Delete(ctx, *oldKey); delErr != nil {
			s.logger.WarnContext(ctx, "failed to delete previous competition logo",
				slog.String("key", *oldKey), slog.Any("error", delErr))
		}
	}

	c.LogoKey = &result.Key
	s.populateLogoURL(c)
	return c, nil
}

func (s *competitionService) populateLogoURL(c *models.Competition) {
	if c == nil || s.uploader == nil || c.LogoKey == nil || *c.LogoKey == "" {
		return
	}
	if url := s.uploader.GetPublicURL(*c.LogoKey); url != "" {
		c.LogoURL = &url
	}
}

func (s *competitionService) statusView(c *models.Competition) CompetitionStatusView {
	s.populateLogoURL(c)
	return CompetitionStatusView{
		ID:         c.ID,
		Name:       c.Name,
		IsActive:   c.IsActive,
		IsRunning:  c.IsRunning,
		Status:     c.Status(),
		StartedAt:  c.StartedAt,
		FinishedAt: c.FinishedAt,
		LogoURL:    c.LogoURL,
	}
}

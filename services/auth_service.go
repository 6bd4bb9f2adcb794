package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/unl5k/race-timing-system/models"
	"github.com/unl5k/race-timing-system/repositories"
	"golang.org/x/crypto/bcrypt"
)

// dummyHash выравнивает время ответа при неизвестном username, чтобы по
// таймингу нельзя было перечислять учётные записи.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

type LoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthService interface {
	// Login проверяет учётные данные судьи (username или email).
	Login(ctx context.Context, input LoginInput) (*models.Judge, error)
	// Me возвращает профиль судьи с его командами.
	Me(ctx context.Context, judgeID int) (*models.Judge, error)
	// ActiveJudge загружает судью и требует, чтобы он был активен.
	ActiveJudge(ctx context.Context, judgeID int) (*models.Judge, error)
}

type authService struct {
	judgeRepo repositories.JudgeRepository
	teamRepo  repositories.TeamRepository
	logger    *slog.Logger
}

func NewAuthService(judgeRepo repositories.JudgeRepository, teamRepo repositories.TeamRepository, logger *slog.Logger) AuthService {
	return &authService{judgeRepo: judgeRepo, teamRepo: teamRepo, logger: logger}
}

func (s *authService) Login(ctx context.Context, input LoginInput) (*models.Judge, error) {
	judge, err := s.judgeRepo.GetActiveByLogin(ctx, input.Username)
	if err != nil && !errors.Is(err, repositories.ErrJudgeNotFound) {
		return nil, fmt.Errorf("failed to find judge by login: %w", err)
	}

	if judge == nil {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(input.Password))
		return nil, ErrAuthInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(judge.PasswordHash), []byte(input.Password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrAuthInvalidCredentials
		}
		return nil, fmt.Errorf("failed to compare password hash: %w", err)
	}

	now := time.Now().UTC()
	if err := s.judgeRepo.UpdateLastLogin(ctx, judge.ID, now); err != nil {
		// Не фатально для логина.
		s.logger.WarnContext(ctx, "failed to update last login",
			slog.Int("judge_id", judge.ID), slog.Any("error", err))
	}
	judge.LastLogin = &now
	judge.PasswordHash = ""
	return judge, nil
}

func (s *authService) Me(ctx context.Context, judgeID int) (*models.Judge, error) {
	judge, err := s.ActiveJudge(ctx, judgeID)
	if err != nil {
		return nil, err
	}
	teams, err := s.teamRepo.ListByJudge(ctx, nil, judgeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load teams for judge %d: %w", judgeID, err)
	}
	judge.Teams = teams
	return judge, nil
}

func (s *authService) ActiveJudge(ctx context.Context, judgeID int) (*models.Judge, error) {
	judge, err := s.judgeRepo.GetByID(ctx, nil, judgeID)
	if err != nil {
		if errors.Is(err, repositories.ErrJudgeNotFound) {
			return nil, ErrJudgeNotFound
		}
		return nil, err
	}
	if !judge.IsActive {
		return nil, ErrJudgeInactive
	}
	judge.PasswordHash = ""
	return judge, nil
}

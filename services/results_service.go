package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/unl5k/race-timing-system/models"
	"github.com/unl5k/race-timing-system/repositories"
	"golang.org/x/sync/errgroup"
)

// TeamStanding — агрегированный результат одной команды.
// A single zero-time record disqualifies the team; disqualified teams are
// listed after every qualified team regardless of their own total.
type TeamStanding struct {
	Team           models.Team `json:"team"`
	Position       int         `json:"position,omitempty"`
	TotalTimeMS    int64       `json:"total_time_ms"`
	BestTimeMS     int64       `json:"best_time_ms"`
	TotalFormatted string      `json:"total_formatted"`
	BestFormatted  string      `json:"best_formatted"`
	RecordCount    int         `json:"record_count"`
	CompletedCount int         `json:"completed_count"`
	AbsentCount    int         `json:"absent_count"`
	Disqualified   bool        `json:"disqualified"`
}

// CompetitionResults — таблица результатов соревнования.
type CompetitionResults struct {
	Competition       CompetitionStatusView `json:"competition"`
	Category          string                `json:"category,omitempty"`
	Standings         []TeamStanding        `json:"standings"`
	QualifiedCount    int                   `json:"qualified_count"`
	DisqualifiedCount int                   `json:"disqualified_count"`
}

// TeamDetail — детальная карточка команды с её регистрациями.
type TeamDetail struct {
	Team           models.Team         `json:"team"`
	Records        []models.TimeRecord `json:"records"`
	TotalTimeMS    int64               `json:"total_time_ms"`
	BestTimeMS     int64               `json:"best_time_ms"`
	WorstTimeMS    int64               `json:"worst_time_ms"`
	TotalFormatted string              `json:"total_formatted"`
	BestFormatted  string              `json:"best_formatted"`
	WorstFormatted string              `json:"worst_formatted"`
	AbsentCount    int                 `json:"absent_count"`
	Disqualified   bool                `json:"disqualified"`
}

type ResultsService interface {
	CompetitionResults(ctx context.Context, competitionID int, category string) (*CompetitionResults, error)
	TeamDetail(ctx context.Context, teamID int) (*TeamDetail, error)
}

type resultsService struct {
	competitionRepo repositories.CompetitionRepository
	teamRepo        repositories.TeamRepository
	recordRepo      repositories.TimeRecordRepository
}

func NewResultsService(
	competitionRepo repositories.CompetitionRepository,
	teamRepo repositories.TeamRepository,
	recordRepo repositories.TimeRecordRepository,
) ResultsService {
	return &resultsService{
		competitionRepo: competitionRepo,
		teamRepo:        teamRepo,
		recordRepo:      recordRepo,
	}
}

func (s *resultsService) CompetitionResults(ctx context.Context, competitionID int, category string) (*CompetitionResults, error) {
	competition, err := s.competitionRepo.GetByID(ctx, nil, competitionID)
	if err != nil {
		if errors.Is(err, repositories.ErrCompetitionNotFound) {
			return nil, ErrCompetitionNotFound
		}
		return nil, err
	}

	var (
		teams   []models.Team
		records []models.TimeRecord
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var catFilter *string
		if category != "" {
			catFilter = &category
		}
		t, err := s.teamRepo.ListByCompetition(gCtx, competitionID, catFilter)
		if err != nil {
			return fmt.Errorf("failed to load teams for competition %d: %w", competitionID, err)
		}
		teams = t
		return nil
	})
	g.Go(func() error {
		r, err := s.recordRepo.ListByCompetition(gCtx, competitionID)
		if err != nil {
			return fmt.Errorf("failed to load records for competition %d: %w", competitionID, err)
		}
		records = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	recordsByTeam := make(map[int][]models.TimeRecord, len(teams))
	for _, rec := range records {
		recordsByTeam[rec.TeamID] = append(recordsByTeam[rec.TeamID], rec)
	}

	qualified := make([]TeamStanding, 0, len(teams))
	disqualified := make([]TeamStanding, 0)
	for _, team := range teams {
		standing := buildStanding(team, recordsByTeam[team.ID])
		if standing.Disqualified {
			disqualified = append(disqualified, standing)
		} else {
			qualified = append(qualified, standing)
		}
	}

	// Команды без единого результата опускаются в конец квалифицированных;
	// при равенстве сумм сохраняется порядок по номеру нагрудного знака.
	sort.SliceStable(qualified, func(i, j int) bool {
		return rankKey(qualified[i]) < rankKey(qualified[j])
	})
	sort.SliceStable(disqualified, func(i, j int) bool {
		return disqualified[i].TotalTimeMS < disqualified[j].TotalTimeMS
	})
	for i := range qualified {
		qualified[i].Position = i + 1
	}

	statusView := CompetitionStatusView{
		ID:         competition.ID,
		Name:       competition.Name,
		IsActive:   competition.IsActive,
		IsRunning:  competition.IsRunning,
		Status:     competition.Status(),
		StartedAt:  competition.StartedAt,
		FinishedAt: competition.FinishedAt,
	}
	return &CompetitionResults{
		Competition:       statusView,
		Category:          category,
		Standings:         append(qualified, disqualified...),
		QualifiedCount:    len(qualified),
		DisqualifiedCount: len(disqualified),
	}, nil
}

func (s *resultsService) TeamDetail(ctx context.Context, teamID int) (*TeamDetail, error) {
	team, err := s.teamRepo.GetByID(ctx, nil, teamID)
	if err != nil {
		if errors.Is(err, repositories.ErrTeamNotFound) {
			return nil, ErrTeamNotFound
		}
		return nil, err
	}

	records, err := s.recordRepo.ListByTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}

	detail := &TeamDetail{Team: *team, Records: records}
	var best, worst int64
	for _, rec := range records {
		detail.TotalTimeMS += rec.TimeMS
		if rec.IsAbsent() {
			detail.AbsentCount++
			continue
		}
		if best == 0 || rec.TimeMS < best {
			best = rec.TimeMS
		}
		if rec.TimeMS > worst {
			worst = rec.TimeMS
		}
	}
	detail.BestTimeMS = best
	detail.WorstTimeMS = worst
	detail.Disqualified = detail.AbsentCount > 0
	detail.TotalFormatted = FormatClock(detail.TotalTimeMS)
	detail.BestFormatted = FormatClock(best)
	detail.WorstFormatted = FormatClock(worst)
	return detail, nil
}

func buildStanding(team models.Team, records []models.TimeRecord) TeamStanding {
	standing := TeamStanding{Team: team, RecordCount: len(records)}
	var best int64
	for _, rec := range records {
		standing.TotalTimeMS += rec.TimeMS
		if rec.IsAbsent() {
			standing.AbsentCount++
			continue
		}
		if best == 0 || rec.TimeMS < best {
			best = rec.TimeMS
		}
	}
	standing.BestTimeMS = best
	standing.CompletedCount = standing.RecordCount - standing.AbsentCount
	standing.Disqualified = standing.AbsentCount > 0
	standing.TotalFormatted = FormatClock(standing.TotalTimeMS)
	standing.BestFormatted = FormatClock(best)
	return standing
}

func rankKey(s TeamStanding) int64 {
	if s.TotalTimeMS <= 0 {
		return math.MaxInt64
	}
	return s.TotalTimeMS
}

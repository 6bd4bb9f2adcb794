package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/unl5k/race-timing-system/models"
)

var ErrTeamNotFound = errors.New("team not found")

const teamColumns = `
	id, name, bib_number, category, competition_id, judge_id, created_at`

type TeamRepository interface {
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Team, error)
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Team, error)
	ListByJudge(ctx context.Context, exec SQLExecutor, judgeID int) ([]models.Team, error)
	ListByCompetition(ctx context.Context, competitionID int, category *string) ([]models.Team, error)
}

type postgresTeamRepository struct {
	db *sql.DB
}

func NewPostgresTeamRepository(db *sql.DB) TeamRepository {
	return &postgresTeamRepository{db: db}
}

func (r *postgresTeamRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func scanTeam(row *sql.Row) (*models.Team, error) {
	t := &models.Team{}
	err := row.Scan(
		&t.ID, &t.Name, &t.BibNumber, &t.Category, &t.CompetitionID, &t.JudgeID, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, err
	}
	return t, nil
}

func (r *postgresTeamRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Team, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + teamColumns + ` FROM teams WHERE id = $1`
	return scanTeam(executor.QueryRowContext(ctx, query, id))
}

// GetByIDForUpdate locks the team row for the rest of the transaction. The
// lock serializes concurrent record submissions against the per-team cap.
func (r *postgresTeamRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Team, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + teamColumns + ` FROM teams WHERE id = $1 FOR UPDATE`
	return scanTeam(executor.QueryRowContext(ctx, query, id))
}

func (r *postgresTeamRepository) ListByJudge(ctx context.Context, exec SQLExecutor, judgeID int) ([]models.Team, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + teamColumns + ` FROM teams WHERE judge_id = $1 ORDER BY bib_number`

	rows, err := executor.QueryContext(ctx, query, judgeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams for judge %d: %w", judgeID, err)
	}
	defer rows.Close()
	return collectTeams(rows)
}

func (r *postgresTeamRepository) ListByCompetition(ctx context.Context, competitionID int, category *string) ([]models.Team, error) {
	query := `SELECT` + teamColumns + ` FROM teams WHERE competition_id = $1`
	args := []interface{}{competitionID}
	if category != nil && *category != "" {
		query += ` AND category = $2`
		args = append(args, *category)
	}
	query += ` ORDER BY bib_number`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams for competition %d: %w", competitionID, err)
	}
	defer rows.Close()
	return collectTeams(rows)
}

func collectTeams(rows *sql.Rows) ([]models.Team, error) {
	teams := make([]models.Team, 0)
	for rows.Next() {
		var t models.Team
		if err := rows.Scan(
			&t.ID, &t.Name, &t.BibNumber, &t.Category, &t.CompetitionID, &t.JudgeID, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

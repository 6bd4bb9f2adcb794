package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/unl5k/race-timing-system/models"
)

var (
	ErrCompetitionNotFound     = errors.New("competition not found")
	ErrCompetitionNameConflict = errors.New("competition name conflict")
	// Нарушение частичного уникального индекса competitions_one_running_key.
	ErrCompetitionRunningConflict = errors.New("another competition is already marked as running")
)

// lifecycleLockKey — ключ для pg_advisory_xact_lock, сериализующий
// одновременные start() по разным строкам competitions. Row locks alone
// cannot order two transactions that touch different rows.
const lifecycleLockKey = 490217

const competitionColumns = `
	id, name, scheduled_at, category, is_active, is_running,
	started_at, finished_at, created_at, logo_key`

type CompetitionRepository interface {
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Competition, error)
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Competition, error)
	ListActive(ctx context.Context) ([]models.Competition, error)
	FindRunningExcept(ctx context.Context, exec SQLExecutor, excludeID int) (*models.Competition, error)
	UpdateRunningState(ctx context.Context, exec SQLExecutor, id int, isRunning bool, startedAt, finishedAt *time.Time) error
	AcquireLifecycleLock(ctx context.Context, exec SQLExecutor) error
	UpdateLogoKey(ctx context.Context, id int, logoKey *string) error
}

type postgresCompetitionRepository struct {
	db *sql.DB
}

func NewPostgresCompetitionRepository(db *sql.DB) CompetitionRepository {
	return &postgresCompetitionRepository{db: db}
}

func (r *postgresCompetitionRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func scanCompetition(row *sql.Row) (*models.Competition, error) {
	c := &models.Competition{}
	err := row.Scan(
		&c.ID, &c.Name, &c.ScheduledAt, &c.Category, &c.IsActive, &c.IsRunning,
		&c.StartedAt, &c.FinishedAt, &c.CreatedAt, &c.LogoKey,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCompetitionNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *postgresCompetitionRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Competition, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + competitionColumns + ` FROM competitions WHERE id = $1`
	return scanCompetition(executor.QueryRowContext(ctx, query, id))
}

// GetByIDForUpdate locks the competition row for the rest of the transaction.
func (r *postgresCompetitionRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Competition, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + competitionColumns + ` FROM competitions WHERE id = $1 FOR UPDATE`
	return scanCompetition(executor.QueryRowContext(ctx, query, id))
}

func (r *postgresCompetitionRepository) ListActive(ctx context.Context) ([]models.Competition, error) {
	query := `SELECT` + competitionColumns + `
		FROM competitions
		WHERE is_active = TRUE
		ORDER BY scheduled_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	competitions := make([]models.Competition, 0)
	for rows.Next() {
		var c models.Competition
		if scanErr := rows.Scan(
			&c.ID, &c.Name, &c.ScheduledAt, &c.Category, &c.IsActive, &c.IsRunning,
			&c.StartedAt, &c.FinishedAt, &c.CreatedAt, &c.LogoKey,
		); scanErr != nil {
			return nil, scanErr
		}
		competitions = append(competitions, c)
	}
	return competitions, rows.Err()
}

// FindRunningExcept returns the competition (other than excludeID) currently
// marked as running, or nil when there is none.
func (r *postgresCompetitionRepository) FindRunningExcept(ctx context.Context, exec SQLExecutor, excludeID int) (*models.Competition, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + competitionColumns + `
		FROM competitions
		WHERE is_running = TRUE AND id <> $1
		LIMIT 1`

	c, err := scanCompetition(executor.QueryRowContext(ctx, query, excludeID))
	if errors.Is(err, ErrCompetitionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *postgresCompetitionRepository) UpdateRunningState(ctx context.Context, exec SQLExecutor, id int, isRunning bool, startedAt, finishedAt *time.Time) error {
	executor := r.getExecutor(exec)
	query := `
		UPDATE competitions
		SET is_running = $1,
			started_at = COALESCE($2, started_at),
			finished_at = $3
		WHERE id = $4`

	result, err := executor.ExecContext(ctx, query, isRunning, startedAt, finishedAt, id)
	if err != nil {
		return r.handleCompetitionError(err)
	}
	return checkAffectedRows(result, ErrCompetitionNotFound)
}

// AcquireLifecycleLock takes a transaction-scoped advisory lock; it is
// released automatically at commit/rollback.
func (r *postgresCompetitionRepository) AcquireLifecycleLock(ctx context.Context, exec SQLExecutor) error {
	executor := r.getExecutor(exec)
	if _, err := executor.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, lifecycleLockKey); err != nil {
		return fmt.Errorf("failed to acquire competition lifecycle lock: %w", err)
	}
	return nil
}

func (r *postgresCompetitionRepository) UpdateLogoKey(ctx context.Context, id int, logoKey *string) error {
	query := `UPDATE competitions SET logo_key = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, logoKey, id)
	if err != nil {
		return fmt.Errorf("failed to update competition logo key: %w", err)
	}
	return checkAffectedRows(result, ErrCompetitionNotFound)
}

func (r *postgresCompetitionRepository) handleCompetitionError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "23505":
			switch pqErr.Constraint {
			case "competitions_one_running_key":
				return ErrCompetitionRunningConflict
			case "competitions_name_key":
				return ErrCompetitionNameConflict
			}
		}
	}
	return err
}

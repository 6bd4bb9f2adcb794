package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/unl5k/race-timing-system/models"
)

var ErrJudgeNotFound = errors.New("judge not found")

const judgeColumns = `
	id, username, password_hash, first_name, last_name, email, phone,
	is_active, created_at, last_login`

type JudgeRepository interface {
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Judge, error)
	GetActiveByLogin(ctx context.Context, login string) (*models.Judge, error)
	UpdateLastLogin(ctx context.Context, id int, at time.Time) error
}

type postgresJudgeRepository struct {
	db *sql.DB
}

func NewPostgresJudgeRepository(db *sql.DB) JudgeRepository {
	return &postgresJudgeRepository{db: db}
}

func (r *postgresJudgeRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func scanJudge(row *sql.Row) (*models.Judge, error) {
	j := &models.Judge{}
	err := row.Scan(
		&j.ID, &j.Username, &j.PasswordHash, &j.FirstName, &j.LastName, &j.Email,
		&j.Phone, &j.IsActive, &j.CreatedAt, &j.LastLogin,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJudgeNotFound
		}
		return nil, err
	}
	return j, nil
}

func (r *postgresJudgeRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Judge, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + judgeColumns + ` FROM judges WHERE id = $1`
	return scanJudge(executor.QueryRowContext(ctx, query, id))
}

// GetActiveByLogin resolves a login form identifier: username or email,
// case-insensitive, active judges only.
func (r *postgresJudgeRepository) GetActiveByLogin(ctx context.Context, login string) (*models.Judge, error) {
	query := `SELECT` + judgeColumns + `
		FROM judges
		WHERE is_active = TRUE AND (LOWER(username) = LOWER($1) OR LOWER(email) = LOWER($1))
		LIMIT 1`
	return scanJudge(r.db.QueryRowContext(ctx, query, login))
}

func (r *postgresJudgeRepository) UpdateLastLogin(ctx context.Context, id int, at time.Time) error {
	query := `UPDATE judges SET last_login = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrJudgeNotFound)
}

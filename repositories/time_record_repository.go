package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/unl5k/race-timing-system/models"
)

var (
	ErrTimeRecordNotFound    = errors.New("time record not found")
	ErrTimeRecordIDConflict  = errors.New("time record id already exists")
	ErrTimeRecordInvalidTeam = errors.New("invalid team reference")
)

const timeRecordColumns = `
	id, record_id, team_id, time_ms, hours, minutes, seconds, milliseconds, created_at`

type TimeRecordRepository interface {
	Create(ctx context.Context, exec SQLExecutor, record *models.TimeRecord) error
	// CreateBatch inserts the records in one statement with
	// ON CONFLICT (record_id) DO NOTHING and reports which record ids were
	// actually inserted.
	CreateBatch(ctx context.Context, exec SQLExecutor, records []*models.TimeRecord) (inserted map[string]bool, err error)
	GetByRecordID(ctx context.Context, exec SQLExecutor, recordID string) (*models.TimeRecord, error)
	ListExistingRecordIDs(ctx context.Context, exec SQLExecutor, recordIDs []string) (map[string]*models.TimeRecord, error)
	CountByTeam(ctx context.Context, exec SQLExecutor, teamID int) (int, error)
	ListByTeam(ctx context.Context, teamID int) ([]models.TimeRecord, error)
	ListByCompetition(ctx context.Context, competitionID int) ([]models.TimeRecord, error)
}

type postgresTimeRecordRepository struct {
	db *sql.DB
}

func NewPostgresTimeRecordRepository(db *sql.DB) TimeRecordRepository {
	return &postgresTimeRecordRepository{db: db}
}

func (r *postgresTimeRecordRepository) getExecutor(exec SQLExecutor) SQLExecutor {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *postgresTimeRecordRepository) Create(ctx context.Context, exec SQLExecutor, record *models.TimeRecord) error {
	executor := r.getExecutor(exec)
	query := `
		INSERT INTO time_records (record_id, team_id, time_ms, hours, minutes, seconds, milliseconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := executor.QueryRowContext(ctx, query,
		record.RecordID, record.TeamID, record.TimeMS,
		record.Hours, record.Minutes, record.Seconds, record.Milliseconds,
	).Scan(&record.ID, &record.CreatedAt)

	return r.handleTimeRecordError(err)
}

func (r *postgresTimeRecordRepository) CreateBatch(ctx context.Context, exec SQLExecutor, records []*models.TimeRecord) (map[string]bool, error) {
	executor := r.getExecutor(exec)
	inserted := make(map[string]bool, len(records))
	if len(records) == 0 {
		return inserted, nil
	}

	args := make([]interface{}, 0, len(records)*7)
	values := ""
	for i, rec := range records {
		if i > 0 {
			values += ", "
		}
		base := i * 7
		values += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7)
		args = append(args,
			rec.RecordID, rec.TeamID, rec.TimeMS,
			rec.Hours, rec.Minutes, rec.Seconds, rec.Milliseconds,
		)
	}

	query := `
		INSERT INTO time_records (record_id, team_id, time_ms, hours, minutes, seconds, milliseconds)
		VALUES ` + values + `
		ON CONFLICT (record_id) DO NOTHING
		RETURNING id, record_id, created_at`

	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.handleTimeRecordError(err)
	}
	defer rows.Close()

	byRecordID := make(map[string]*models.TimeRecord, len(records))
	for _, rec := range records {
		byRecordID[rec.RecordID] = rec
	}
	for rows.Next() {
		var id int
		var recordID string
		var createdAt sql.NullTime
		if scanErr := rows.Scan(&id, &recordID, &createdAt); scanErr != nil {
			return nil, scanErr
		}
		if rec, ok := byRecordID[recordID]; ok {
			rec.ID = id
			if createdAt.Valid {
				rec.CreatedAt = createdAt.Time
			}
		}
		inserted[recordID] = true
	}
	return inserted, rows.Err()
}

func (r *postgresTimeRecordRepository) GetByRecordID(ctx context.Context, exec SQLExecutor, recordID string) (*models.TimeRecord, error) {
	executor := r.getExecutor(exec)
	query := `SELECT` + timeRecordColumns + ` FROM time_records WHERE record_id = $1`

	rec := &models.TimeRecord{}
	err := executor.QueryRowContext(ctx, query, recordID).Scan(
		&rec.ID, &rec.RecordID, &rec.TeamID, &rec.TimeMS,
		&rec.Hours, &rec.Minutes, &rec.Seconds, &rec.Milliseconds, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTimeRecordNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (r *postgresTimeRecordRepository) ListExistingRecordIDs(ctx context.Context, exec SQLExecutor, recordIDs []string) (map[string]*models.TimeRecord, error) {
	existing := make(map[string]*models.TimeRecord, len(recordIDs))
	if len(recordIDs) == 0 {
		return existing, nil
	}
	executor := r.getExecutor(exec)
	query := `SELECT` + timeRecordColumns + ` FROM time_records WHERE record_id = ANY($1)`

	rows, err := executor.QueryContext(ctx, query, pq.Array(recordIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query existing record ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec := &models.TimeRecord{}
		if scanErr := rows.Scan(
			&rec.ID, &rec.RecordID, &rec.TeamID, &rec.TimeMS,
			&rec.Hours, &rec.Minutes, &rec.Seconds, &rec.Milliseconds, &rec.CreatedAt,
		); scanErr != nil {
			return nil, scanErr
		}
		existing[rec.RecordID] = rec
	}
	return existing, rows.Err()
}

func (r *postgresTimeRecordRepository) CountByTeam(ctx context.Context, exec SQLExecutor, teamID int) (int, error) {
	executor := r.getExecutor(exec)
	var count int
	err := executor.QueryRowContext(ctx, `SELECT COUNT(*) FROM time_records WHERE team_id = $1`, teamID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count time records for team %d: %w", teamID, err)
	}
	return count, nil
}

func (r *postgresTimeRecordRepository) ListByTeam(ctx context.Context, teamID int) ([]models.TimeRecord, error) {
	query := `SELECT` + timeRecordColumns + ` FROM time_records WHERE team_id = $1 ORDER BY time_ms`

	rows, err := r.db.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list time records for team %d: %w", teamID, err)
	}
	defer rows.Close()
	return collectTimeRecords(rows)
}

func (r *postgresTimeRecordRepository) ListByCompetition(ctx context.Context, competitionID int) ([]models.TimeRecord, error) {
	query := `
		SELECT tr.id, tr.record_id, tr.team_id, tr.time_ms, tr.hours, tr.minutes,
			   tr.seconds, tr.milliseconds, tr.created_at
		FROM time_records tr
		JOIN teams t ON t.id = tr.team_id
		WHERE t.competition_id = $1
		ORDER BY tr.time_ms`

	rows, err := r.db.QueryContext(ctx, query, competitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list time records for competition %d: %w", competitionID, err)
	}
	defer rows.Close()
	return collectTimeRecords(rows)
}

func collectTimeRecords(rows *sql.Rows) ([]models.TimeRecord, error) {
	records := make([]models.TimeRecord, 0)
	for rows.Next() {
		var rec models.TimeRecord
		if err := rows.Scan(
			&rec.ID, &rec.RecordID, &rec.TeamID, &rec.TimeMS,
			&rec.Hours, &rec.Minutes, &rec.Seconds, &rec.Milliseconds, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *postgresTimeRecordRepository) handleTimeRecordError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "23505":
			if pqErr.Constraint == "time_records_record_id_key" {
				return ErrTimeRecordIDConflict
			}
		case "23503":
			if pqErr.Constraint == "time_records_team_id_fkey" {
				return ErrTimeRecordInvalidTeam
			}
		}
	}
	return err
}

package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/unl5k/race-timing-system/live"
	"github.com/unl5k/race-timing-system/models"
	"github.com/unl5k/race-timing-system/repositories"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTxManager исполняет функцию без настоящей транзакции.
type fakeTxManager struct{}

func (fakeTxManager) WithinTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	return fn(nil)
}

type broadcastCall struct {
	room    string
	message live.Message
}

type fakeNotifier struct {
	broadcasts []broadcastCall
}

func (n *fakeNotifier) BroadcastToRoom(roomID string, message interface{}) {
	msg, _ := message.(live.Message)
	n.broadcasts = append(n.broadcasts, broadcastCall{room: roomID, message: msg})
}

type fakeCompetitionRepo struct {
	competitions map[int]*models.Competition
	lockCalls    int
}

func newFakeCompetitionRepo(competitions ...*models.Competition) *fakeCompetitionRepo {
	repo := &fakeCompetitionRepo{competitions: make(map[int]*models.Competition)}
	for _, c := range competitions {
		repo.competitions[c.ID] = c
	}
	return repo
}

func (r *fakeCompetitionRepo) GetByID(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Competition, error) {
	c, ok := r.competitions[id]
	if !ok {
		return nil, repositories.ErrCompetitionNotFound
	}
	return c, nil
}

func (r *fakeCompetitionRepo) GetByIDForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Competition, error) {
	return r.GetByID(ctx, exec, id)
}

func (r *fakeCompetitionRepo) ListActive(ctx context.Context) ([]models.Competition, error) {
	out := make([]models.Competition, 0, len(r.competitions))
	for _, c := range r.competitions {
		if c.IsActive {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeCompetitionRepo) FindRunningExcept(ctx context.Context, exec repositories.SQLExecutor, excludeID int) (*models.Competition, error) {
	for _, c := range r.competitions {
		if c.IsRunning && c.ID != excludeID {
			return c, nil
		}
	}
	return nil, nil
}

func (r *fakeCompetitionRepo) UpdateRunningState(ctx context.Context, exec repositories.SQLExecutor, id int, isRunning bool, startedAt, finishedAt *time.Time) error {
	c, ok := r.competitions[id]
	if !ok {
		return repositories.ErrCompetitionNotFound
	}
	c.IsRunning = isRunning
	if startedAt != nil {
		c.StartedAt = startedAt
	}
	c.FinishedAt = finishedAt
	return nil
}

func (r *fakeCompetitionRepo) AcquireLifecycleLock(ctx context.Context, exec repositories.SQLExecutor) error {
	r.lockCalls++
	return nil
}

func (r *fakeCompetitionRepo) UpdateLogoKey(ctx context.Context, id int, logoKey *string) error {
	c, ok := r.competitions[id]
	if !ok {
		return repositories.ErrCompetitionNotFound
	}
	c.LogoKey = logoKey
	return nil
}

type fakeTeamRepo struct {
	teams map[int]*models.Team
}

func newFakeTeamRepo(teams ...*models.Team) *fakeTeamRepo {
	repo := &fakeTeamRepo{teams: make(map[int]*models.Team)}
	for _, t := range teams {
		repo.teams[t.ID] = t
	}
	return repo
}

func (r *fakeTeamRepo) GetByID(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Team, error) {
	t, ok := r.teams[id]
	if !ok {
		return nil, repositories.ErrTeamNotFound
	}
	return t, nil
}

func (r *fakeTeamRepo) GetByIDForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Team, error) {
	return r.GetByID(ctx, exec, id)
}

func (r *fakeTeamRepo) ListByJudge(ctx context.Context, exec repositories.SQLExecutor, judgeID int) ([]models.Team, error) {
	out := make([]models.Team, 0)
	for _, t := range r.teams {
		if t.JudgeID != nil && *t.JudgeID == judgeID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BibNumber < out[j].BibNumber })
	return out, nil
}

func (r *fakeTeamRepo) ListByCompetition(ctx context.Context, competitionID int, category *string) ([]models.Team, error) {
	out := make([]models.Team, 0)
	for _, t := range r.teams {
		if t.CompetitionID != competitionID {
			continue
		}
		if category != nil && t.Category != *category {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BibNumber < out[j].BibNumber })
	return out, nil
}

type fakeRecordRepo struct {
	records []*models.TimeRecord
	// teamCompetitions нужен для ListByCompetition без join-а.
	teamCompetitions map[int]int
	nextID           int
}

func newFakeRecordRepo(teamCompetitions map[int]int) *fakeRecordRepo {
	if teamCompetitions == nil {
		teamCompetitions = make(map[int]int)
	}
	return &fakeRecordRepo{teamCompetitions: teamCompetitions, nextID: 1}
}

func (r *fakeRecordRepo) findByRecordID(recordID string) *models.TimeRecord {
	for _, rec := range r.records {
		if rec.RecordID == recordID {
			return rec
		}
	}
	return nil
}

func (r *fakeRecordRepo) insert(rec *models.TimeRecord) {
	rec.ID = r.nextID
	r.nextID++
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	r.records = append(r.records, rec)
}

func (r *fakeRecordRepo) Create(ctx context.Context, exec repositories.SQLExecutor, record *models.TimeRecord) error {
	if r.findByRecordID(record.RecordID) != nil {
		return repositories.ErrTimeRecordIDConflict
	}
	r.insert(record)
	return nil
}

func (r *fakeRecordRepo) CreateBatch(ctx context.Context, exec repositories.SQLExecutor, records []*models.TimeRecord) (map[string]bool, error) {
	inserted := make(map[string]bool, len(records))
	for _, rec := range records {
		if r.findByRecordID(rec.RecordID) != nil {
			continue
		}
		r.insert(rec)
		inserted[rec.RecordID] = true
	}
	return inserted, nil
}

func (r *fakeRecordRepo) GetByRecordID(ctx context.Context, exec repositories.SQLExecutor, recordID string) (*models.TimeRecord, error) {
	if rec := r.findByRecordID(recordID); rec != nil {
		return rec, nil
	}
	return nil, repositories.ErrTimeRecordNotFound
}

func (r *fakeRecordRepo) ListExistingRecordIDs(ctx context.Context, exec repositories.SQLExecutor, recordIDs []string) (map[string]*models.TimeRecord, error) {
	out := make(map[string]*models.TimeRecord)
	for _, id := range recordIDs {
		if rec := r.findByRecordID(id); rec != nil {
			out[id] = rec
		}
	}
	return out, nil
}

func (r *fakeRecordRepo) CountByTeam(ctx context.Context, exec repositories.SQLExecutor, teamID int) (int, error) {
	count := 0
	for _, rec := range r.records {
		if rec.TeamID == teamID {
			count++
		}
	}
	return count, nil
}

func (r *fakeRecordRepo) ListByTeam(ctx context.Context, teamID int) ([]models.TimeRecord, error) {
	out := make([]models.TimeRecord, 0)
	for _, rec := range r.records {
		if rec.TeamID == teamID {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimeMS < out[j].TimeMS })
	return out, nil
}

func (r *fakeRecordRepo) ListByCompetition(ctx context.Context, competitionID int) ([]models.TimeRecord, error) {
	out := make([]models.TimeRecord, 0)
	for _, rec := range r.records {
		if r.teamCompetitions[rec.TeamID] == competitionID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

type fakeJudgeRepo struct {
	judges     map[int]*models.Judge
	lastLogins map[int]time.Time
}

func newFakeJudgeRepo(judges ...*models.Judge) *fakeJudgeRepo {
	repo := &fakeJudgeRepo{
		judges:     make(map[int]*models.Judge),
		lastLogins: make(map[int]time.Time),
	}
	for _, j := range judges {
		repo.judges[j.ID] = j
	}
	return repo
}

func (r *fakeJudgeRepo) GetByID(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Judge, error) {
	j, ok := r.judges[id]
	if !ok {
		return nil, repositories.ErrJudgeNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *fakeJudgeRepo) GetActiveByLogin(ctx context.Context, login string) (*models.Judge, error) {
	for _, j := range r.judges {
		if !j.IsActive {
			continue
		}
		if j.Username == login || j.Email == login {
			cp := *j
			return &cp, nil
		}
	}
	return nil, repositories.ErrJudgeNotFound
}

func (r *fakeJudgeRepo) UpdateLastLogin(ctx context.Context, id int, at time.Time) error {
	if _, ok := r.judges[id]; !ok {
		return repositories.ErrJudgeNotFound
	}
	r.lastLogins[id] = at
	return nil
}

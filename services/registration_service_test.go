package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unl5k/race-timing-system/live"
	"github.com/unl5k/race-timing-system/models"
)

type registrationFixture struct {
	svc        RegistrationService
	recordRepo *fakeRecordRepo
	notifier   *fakeNotifier
	judgeID    int
	teamID     int
}

func newRegistrationFixture(t *testing.T, running bool) *registrationFixture {
	t.Helper()

	judgeID := 7
	competitionRepo := newFakeCompetitionRepo(
		&models.Competition{ID: 3, Name: "Carrera 5K", IsActive: true, IsRunning: running},
	)
	teamRepo := newFakeTeamRepo(
		&models.Team{ID: 10, Name: "Halcones", BibNumber: 4, CompetitionID: 3, JudgeID: &judgeID},
		&models.Team{ID: 11, Name: "Pumas", BibNumber: 5, CompetitionID: 3},
	)
	recordRepo := newFakeRecordRepo(map[int]int{10: 3, 11: 3})
	notifier := &fakeNotifier{}

	svc := NewRegistrationService(fakeTxManager{}, teamRepo, competitionRepo, recordRepo, notifier, testLogger())
	return &registrationFixture{
		svc:        svc,
		recordRepo: recordRepo,
		notifier:   notifier,
		judgeID:    judgeID,
		teamID:     10,
	}
}

func ms(v int64) *int64 { return &v }

func TestRegisterSingleRecord(t *testing.T) {
	f := newRegistrationFixture(t, true)

	result, err := f.svc.Register(context.Background(), f.judgeID, f.teamID, RecordInput{
		RecordID: "rec-1",
		TimeMS:   ms(125000),
	})
	require.NoError(t, err)

	assert.False(t, result.Duplicate)
	assert.Equal(t, int64(125000), result.Record.TimeMS)
	// Компоненты восстановлены из суммы
	assert.Equal(t, 2, result.Record.Minutes)
	assert.Equal(t, 5, result.Record.Seconds)

	require.Len(t, f.notifier.broadcasts, 1)
	assert.Equal(t, live.CompetitionRoom(3), f.notifier.broadcasts[0].room)
	assert.Equal(t, live.EventRecordsUpdated, f.notifier.broadcasts[0].message.Type)
}

func TestRegisterIsIdempotentByRecordID(t *testing.T) {
	f := newRegistrationFixture(t, true)
	ctx := context.Background()
	input := RecordInput{RecordID: "rec-1", TimeMS: ms(125000)}

	first, err := f.svc.Register(ctx, f.judgeID, f.teamID, input)
	require.NoError(t, err)
	require.False(t, first.Duplicate)

	second, err := f.svc.Register(ctx, f.judgeID, f.teamID, input)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Record.ID, second.Record.ID)

	count, err := f.recordRepo.CountByTeam(ctx, nil, f.teamID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Повтор не публикуется
	assert.Len(t, f.notifier.broadcasts, 1)
}

func TestRegisterGeneratesRecordIDWhenOmitted(t *testing.T) {
	f := newRegistrationFixture(t, true)

	result, err := f.svc.Register(context.Background(), f.judgeID, f.teamID, RecordInput{
		Minutes: 2, Seconds: 5,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Record.RecordID)
	assert.Equal(t, int64(125000), result.Record.TimeMS)
}

func TestRegisterRejectsWhenCompetitionNotRunning(t *testing.T) {
	f := newRegistrationFixture(t, false)

	_, err := f.svc.Register(context.Background(), f.judgeID, f.teamID, RecordInput{TimeMS: ms(1000)})
	assert.ErrorIs(t, err, ErrCompetitionNotRunning)
	assert.Empty(t, f.notifier.broadcasts)
}

func TestRegisterRejectsForeignTeam(t *testing.T) {
	f := newRegistrationFixture(t, true)

	_, err := f.svc.Register(context.Background(), f.judgeID, 11, RecordInput{TimeMS: ms(1000)})
	assert.ErrorIs(t, err, ErrTeamNotOwned)
}

func TestRegisterRejectsJudgeWithoutTeams(t *testing.T) {
	f := newRegistrationFixture(t, true)

	_, err := f.svc.Register(context.Background(), 999, f.teamID, RecordInput{TimeMS: ms(1000)})
	assert.ErrorIs(t, err, ErrNoTeamAssigned)
}

func TestRegisterValidatesTime(t *testing.T) {
	f := newRegistrationFixture(t, true)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, f.judgeID, f.teamID, RecordInput{})
	assert.ErrorIs(t, err, ErrTimeRequired)

	_, err = f.svc.Register(ctx, f.judgeID, f.teamID, RecordInput{TimeMS: ms(-5)})
	assert.ErrorIs(t, err, ErrNegativeTime)

	_, err = f.svc.Register(ctx, f.judgeID, f.teamID, RecordInput{Minutes: -1, Seconds: 10})
	assert.ErrorIs(t, err, ErrNegativeTime)
}

func TestRegisterZeroTimeMarksAbsent(t *testing.T) {
	f := newRegistrationFixture(t, true)

	result, err := f.svc.Register(context.Background(), f.judgeID, f.teamID, RecordInput{
		RecordID: "absent-1",
		TimeMS:   ms(0),
	})
	require.NoError(t, err)
	assert.True(t, result.Record.IsAbsent())
}

func TestRegisterEnforcesTeamCap(t *testing.T) {
	f := newRegistrationFixture(t, true)
	ctx := context.Background()

	for i := 0; i < models.MaxRecordsPerTeam; i++ {
		_, err := f.svc.Register(ctx, f.judgeID, f.teamID, RecordInput{
			RecordID: fmt.Sprintf("rec-%d", i),
			TimeMS:   ms(int64(60000 + i)),
		})
		require.NoError(t, err)
	}

	_, err := f.svc.Register(ctx, f.judgeID, f.teamID, RecordInput{
		RecordID: "rec-overflow",
		TimeMS:   ms(60000),
	})
	assert.ErrorIs(t, err, ErrRecordLimitExceeded)

	// Повтор уже сохранённого record_id проходит и при полном составе.
	result, err := f.svc.Register(ctx, f.judgeID, f.teamID, RecordInput{
		RecordID: "rec-0",
		TimeMS:   ms(60000),
	})
	require.NoError(t, err)
	assert.True(t, result.Duplicate)
}

func TestRegisterBatch(t *testing.T) {
	f := newRegistrationFixture(t, true)
	ctx := context.Background()

	inputs := make([]RecordInput, 0, models.MaxRecordsPerTeam)
	for i := 0; i < models.MaxRecordsPerTeam; i++ {
		inputs = append(inputs, RecordInput{
			RecordID: fmt.Sprintf("rec-%d", i),
			TimeMS:   ms(int64(60000 + i*1000)),
		})
	}

	result, err := f.svc.RegisterBatch(ctx, f.judgeID, f.teamID, inputs)
	require.NoError(t, err)

	assert.Equal(t, models.MaxRecordsPerTeam, result.TotalSubmitted)
	assert.Equal(t, models.MaxRecordsPerTeam, result.TotalSaved)
	assert.Zero(t, result.TotalFailed)
	for i, item := range result.Items {
		assert.True(t, item.Saved, "item %d", i)
		assert.Equal(t, i, item.Index)
	}

	require.Len(t, f.notifier.broadcasts, 1)
	assert.Equal(t, live.EventRecordsUpdated, f.notifier.broadcasts[0].message.Type)
}

func TestRegisterBatchEmpty(t *testing.T) {
	f := newRegistrationFixture(t, true)

	_, err := f.svc.RegisterBatch(context.Background(), f.judgeID, f.teamID, nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestRegisterBatchItemizesPartialSuccess(t *testing.T) {
	f := newRegistrationFixture(t, true)
	ctx := context.Background()

	// Одна запись уже существует до батча.
	_, err := f.svc.Register(ctx, f.judgeID, f.teamID, RecordInput{
		RecordID: "rec-existing",
		TimeMS:   ms(61000),
	})
	require.NoError(t, err)

	inputs := []RecordInput{
		{RecordID: "rec-existing", TimeMS: ms(61000)}, // дубликат
		{RecordID: "rec-new", TimeMS: ms(62000)},      // сохраняется
		{RecordID: "rec-bad"},                         // нет времени
		{RecordID: "rec-new", TimeMS: ms(62000)},      // повтор внутри батча
	}

	result, err := f.svc.RegisterBatch(ctx, f.judgeID, f.teamID, inputs)
	require.NoError(t, err)

	assert.Equal(t, 4, result.TotalSubmitted)
	assert.Equal(t, 1, result.TotalSaved)
	assert.Equal(t, 1, result.TotalFailed)

	assert.True(t, result.Items[0].Duplicate)
	assert.True(t, result.Items[1].Saved)
	assert.True(t, result.Items[2].Failed)
	assert.Equal(t, ErrTimeRequired.Error(), result.Items[2].Error)
	assert.True(t, result.Items[3].Duplicate)

	count, err := f.recordRepo.CountByTeam(ctx, nil, f.teamID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRegisterBatchRespectsCapWithinBatch(t *testing.T) {
	f := newRegistrationFixture(t, true)
	ctx := context.Background()

	// 14 уже записано, в батче две новых: вторая упирается в лимит.
	for i := 0; i < models.MaxRecordsPerTeam-1; i++ {
		_, err := f.svc.Register(ctx, f.judgeID, f.teamID, RecordInput{
			RecordID: fmt.Sprintf("rec-%d", i),
			TimeMS:   ms(int64(60000 + i)),
		})
		require.NoError(t, err)
	}
	f.notifier.broadcasts = nil

	result, err := f.svc.RegisterBatch(ctx, f.judgeID, f.teamID, []RecordInput{
		{RecordID: "rec-14", TimeMS: ms(74000)},
		{RecordID: "rec-15", TimeMS: ms(75000)},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.TotalSaved)
	assert.Equal(t, 1, result.TotalFailed)
	assert.True(t, result.Items[0].Saved)
	assert.True(t, result.Items[1].Failed)
	assert.Equal(t, ErrRecordLimitExceeded.Error(), result.Items[1].Error)

	count, err := f.recordRepo.CountByTeam(ctx, nil, f.teamID)
	require.NoError(t, err)
	assert.Equal(t, models.MaxRecordsPerTeam, count)
}

func TestRegisterBatchAllDuplicatesDoesNotPublish(t *testing.T) {
	f := newRegistrationFixture(t, true)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, f.judgeID, f.teamID, RecordInput{
		RecordID: "rec-1",
		TimeMS:   ms(61000),
	})
	require.NoError(t, err)
	f.notifier.broadcasts = nil

	result, err := f.svc.RegisterBatch(ctx, f.judgeID, f.teamID, []RecordInput{
		{RecordID: "rec-1", TimeMS: ms(61000)},
	})
	require.NoError(t, err)
	assert.Zero(t, result.TotalSaved)
	assert.Empty(t, f.notifier.broadcasts)
}

func TestRecordsStatus(t *testing.T) {
	f := newRegistrationFixture(t, true)
	ctx := context.Background()

	status, err := f.svc.Status(ctx, f.judgeID, f.teamID)
	require.NoError(t, err)
	assert.Zero(t, status.Count)
	assert.Equal(t, models.MaxRecordsPerTeam, status.MaxRecords)
	assert.True(t, status.CanSubmit)

	for i := 0; i < models.MaxRecordsPerTeam; i++ {
		_, err := f.svc.Register(ctx, f.judgeID, f.teamID, RecordInput{
			RecordID: fmt.Sprintf("rec-%d", i),
			TimeMS:   ms(int64(60000 + i)),
		})
		require.NoError(t, err)
	}

	status, err = f.svc.Status(ctx, f.judgeID, f.teamID)
	require.NoError(t, err)
	assert.Equal(t, models.MaxRecordsPerTeam, status.Count)
	assert.False(t, status.CanSubmit)

	_, err = f.svc.Status(ctx, f.judgeID, 11)
	assert.ErrorIs(t, err, ErrTeamNotOwned)
}

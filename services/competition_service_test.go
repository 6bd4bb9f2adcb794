package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unl5k/race-timing-system/live"
	"github.com/unl5k/race-timing-system/models"
)

func newCompetitionServiceForTest(competitions ...*models.Competition) (CompetitionService, *fakeCompetitionRepo, *fakeNotifier) {
	repo := newFakeCompetitionRepo(competitions...)
	notifier := &fakeNotifier{}
	svc := NewCompetitionService(fakeTxManager{}, repo, newFakeTeamRepo(), notifier, nil, testLogger())
	return svc, repo, notifier
}

func TestStartCompetition(t *testing.T) {
	svc, repo, notifier := newCompetitionServiceForTest(
		&models.Competition{ID: 1, Name: "Carrera 5K", IsActive: true},
	)

	competition, err := svc.Start(context.Background(), 1)
	require.NoError(t, err)

	assert.True(t, competition.IsRunning)
	require.NotNil(t, competition.StartedAt)
	assert.Nil(t, competition.FinishedAt)
	assert.Equal(t, models.StatusRunning, competition.Status())
	assert.Equal(t, 1, repo.lockCalls)

	require.Len(t, notifier.broadcasts, 1)
	assert.Equal(t, live.CompetitionRoom(1), notifier.broadcasts[0].room)
	assert.Equal(t, live.EventCompetitionStarted, notifier.broadcasts[0].message.Type)
}

func TestStartCompetitionNotFound(t *testing.T) {
	svc, _, notifier := newCompetitionServiceForTest()

	_, err := svc.Start(context.Background(), 42)
	assert.ErrorIs(t, err, ErrCompetitionNotFound)
	assert.Empty(t, notifier.broadcasts)
}

func TestStartCompetitionInactive(t *testing.T) {
	svc, _, _ := newCompetitionServiceForTest(
		&models.Competition{ID: 1, Name: "Carrera 5K", IsActive: false},
	)

	_, err := svc.Start(context.Background(), 1)
	assert.ErrorIs(t, err, ErrCompetitionNotActive)
}

func TestStartCompetitionAlreadyRunning(t *testing.T) {
	svc, _, notifier := newCompetitionServiceForTest(
		&models.Competition{ID: 1, Name: "Carrera 5K", IsActive: true, IsRunning: true},
	)

	_, err := svc.Start(context.Background(), 1)
	assert.ErrorIs(t, err, ErrCompetitionAlreadyRunning)
	assert.Empty(t, notifier.broadcasts)
}

func TestStartCompetitionConflictsWithOtherRunning(t *testing.T) {
	svc, _, notifier := newCompetitionServiceForTest(
		&models.Competition{ID: 1, Name: "Carrera 5K", IsActive: true},
		&models.Competition{ID: 2, Name: "Relevos", IsActive: true, IsRunning: true},
	)

	_, err := svc.Start(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAnotherCompetitionRunning)

	var conflict *ConflictingCompetitionError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 2, conflict.Other.ID)
	assert.Equal(t, "Relevos", conflict.Other.Name)

	assert.Empty(t, notifier.broadcasts)
}

func TestStopCompetition(t *testing.T) {
	started := time.Now().UTC().Add(-time.Hour)
	svc, _, notifier := newCompetitionServiceForTest(
		&models.Competition{ID: 1, Name: "Carrera 5K", IsActive: true, IsRunning: true, StartedAt: &started},
	)

	competition, err := svc.Stop(context.Background(), 1)
	require.NoError(t, err)

	assert.False(t, competition.IsRunning)
	require.NotNil(t, competition.FinishedAt)
	assert.Equal(t, models.StatusFinished, competition.Status())

	require.Len(t, notifier.broadcasts, 1)
	assert.Equal(t, live.EventCompetitionStopped, notifier.broadcasts[0].message.Type)
}

func TestStopCompetitionNotRunning(t *testing.T) {
	svc, _, notifier := newCompetitionServiceForTest(
		&models.Competition{ID: 1, Name: "Carrera 5K", IsActive: true},
	)

	_, err := svc.Stop(context.Background(), 1)
	assert.ErrorIs(t, err, ErrCompetitionNotRunning)
	assert.Empty(t, notifier.broadcasts)
}

// Повторный запуск после финиша: finished_at сбрасывается и статус снова
// становится running.
func TestRestartAfterFinish(t *testing.T) {
	svc, repo, _ := newCompetitionServiceForTest(
		&models.Competition{ID: 1, Name: "Carrera 5K", IsActive: true},
	)
	ctx := context.Background()

	_, err := svc.Start(ctx, 1)
	require.NoError(t, err)
	_, err = svc.Stop(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, models.StatusFinished, repo.competitions[1].Status())

	competition, err := svc.Start(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, competition.FinishedAt)
	assert.Equal(t, models.StatusRunning, competition.Status())
}

func TestGetStatusDerivesLifecycle(t *testing.T) {
	finished := time.Now().UTC()
	svc, _, _ := newCompetitionServiceForTest(
		&models.Competition{ID: 1, Name: "Scheduled", IsActive: true},
		&models.Competition{ID: 2, Name: "Finished", IsActive: true, FinishedAt: &finished},
	)
	ctx := context.Background()

	status, err := svc.GetStatus(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusScheduled, status.Status)

	status, err = svc.GetStatus(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, status.Status)

	_, err = svc.GetStatus(ctx, 99)
	assert.ErrorIs(t, err, ErrCompetitionNotFound)
}

func TestStatusForJudge(t *testing.T) {
	judgeID := 7
	repo := newFakeCompetitionRepo(
		&models.Competition{ID: 3, Name: "Carrera 5K", IsActive: true, IsRunning: true},
	)
	teamRepo := newFakeTeamRepo(
		&models.Team{ID: 10, Name: "Halcones", BibNumber: 4, CompetitionID: 3, JudgeID: &judgeID},
	)
	svc := NewCompetitionService(fakeTxManager{}, repo, teamRepo, &fakeNotifier{}, nil, testLogger())

	status, err := svc.StatusForJudge(context.Background(), judgeID)
	require.NoError(t, err)
	assert.Equal(t, 3, status.ID)
	assert.True(t, status.IsRunning)

	_, err = svc.StatusForJudge(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNoTeamAssigned)
}

func TestUploadLogoWithoutUploader(t *testing.T) {
	svc, _, _ := newCompetitionServiceForTest(
		&models.Competition{ID: 1, Name: "Carrera 5K", IsActive: true},
	)

	_, err := svc.UploadLogo(context.Background(), 1, "image/png", nil)
	assert.ErrorIs(t, err, ErrUploaderNotConfigured)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"royal-decrees/internal/model"
	"royal-decrees/internal/repository"
	"royal-decrees/internal/state"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (n *recordingNotifier) Notify(_ context.Context, _ model.Monarch, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
	return n.err
}

type memorySnapshots struct {
	mu      sync.Mutex
	saved   map[uint][]model.Decree
	history []int
}

func (m *memorySnapshots) Save(monarchID uint, decrees []model.Decree) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = make(map[uint][]model.Decree)
	}
	m.saved[monarchID] = append([]model.Decree(nil), decrees...)
	m.history = append(m.history, len(decrees))
	return nil
}

type fixture struct {
	svc       *DecreeService
	decrees   *repository.DecreeRepository
	monarchs  *repository.MonarchRepository
	notifier  *recordingNotifier
	snapshots *memorySnapshots
	monarch   *model.Monarch
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := repository.NewDB(fmt.Sprintf("file:%s?mode=memory&cache=shared", name), zap.NewNop())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	f := &fixture{
		decrees:   repository.NewDecreeRepository(db),
		monarchs:  repository.NewMonarchRepository(db),
		notifier:  &recordingNotifier{},
		snapshots: &memorySnapshots{},
	}
	f.svc = NewDecreeService(f.decrees, f.monarchs, f.snapshots, f.notifier, zap.NewNop())
	f.svc.now = func() time.Time { return time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC) }

	f.monarch, err = f.monarchs.UpsertFromTelegram(context.Background(), 42, "Matilda", "", "matilda")
	require.NoError(t, err)
	return f
}

func TestIssuePersistsAndNormalizes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.Issue(ctx, f.monarch, DecreeInput{
		Title:          "  Train the guard ",
		Type:           model.TypeBarracks,
		TargetQuantity: 3,
		Recurrence:     &model.Recurrence{IsRepetitive: true, Frequency: model.FrequencyWeekly, Days: []int{5, 1, 5, 9}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Train the guard", d.Title)
	assert.Equal(t, model.UnitSessions, d.Unit)
	assert.Equal(t, []int{1, 5}, d.Recurrence.Days)
	assert.Equal(t, f.monarch.ID, d.UserID)

	stored, err := f.decrees.FindByID(ctx, f.monarch.ID, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, stored.Status)
	assert.Equal(t, []int{1, 5}, stored.Recurrence.Days)

	assert.Len(t, f.snapshots.saved[f.monarch.ID], 1)
}

func TestIssueValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Issue(ctx, f.monarch, DecreeInput{Title: "   "})
	assert.ErrorIs(t, err, ErrTitleRequired)

	_, err = f.svc.Issue(ctx, f.monarch, DecreeInput{
		Title:      "Custom without days",
		Recurrence: &model.Recurrence{IsRepetitive: true, Frequency: model.FrequencyCustom},
	})
	assert.ErrorIs(t, err, model.ErrMissingDays)

	_, err = f.svc.Issue(ctx, f.monarch, DecreeInput{
		Title:      "Odd",
		Recurrence: &model.Recurrence{IsRepetitive: true, Frequency: "YEARLY"},
	})
	assert.ErrorIs(t, err, model.ErrUnknownFrequency)

	decrees, err := f.svc.List(ctx, f.monarch)
	require.NoError(t, err)
	assert.Empty(t, decrees)
}

func TestProgressCompletesAndGrantsRenown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.Issue(ctx, f.monarch, DecreeInput{Title: "Read", Type: model.TypeLibrary, TargetQuantity: 30, Unit: model.UnitPages})
	require.NoError(t, err)

	d, err = f.svc.RecordProgress(ctx, f.monarch, d.ID, 20)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, d.Status)
	assert.Empty(t, f.notifier.messages)

	d, err = f.svc.RecordProgress(ctx, f.monarch, d.ID, 15)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, d.Status)
	assert.Equal(t, 35, d.CurrentQuantity)
	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "Read")

	m, err := f.monarchs.FindByID(ctx, f.monarch.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, m.Renown)

	stored, err := f.decrees.FindByID(ctx, f.monarch.ID, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)

	_, err = f.svc.Complete(ctx, f.monarch, d.ID)
	assert.ErrorIs(t, err, state.ErrDecreeClosed)
}

func TestNotifierFailureDoesNotFailCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.notifier.err = errors.New("telegram is down")

	d, err := f.svc.Issue(ctx, f.monarch, DecreeInput{Title: "Exam", Type: model.TypeExam})
	require.NoError(t, err)

	done, err := f.svc.Complete(ctx, f.monarch, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, done.Status)
}

func TestAbandonAndRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.Issue(ctx, f.monarch, DecreeInput{Title: "Visit the theatre", Type: model.TypeTheatre})
	require.NoError(t, err)

	abandoned, err := f.svc.Abandon(ctx, f.monarch, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAbandoned, abandoned.Status)

	revoked, err := f.svc.Revoke(ctx, f.monarch, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, revoked.ID)

	rows, err := f.decrees.ListByUser(ctx, f.monarch.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = f.svc.Revoke(ctx, f.monarch, d.ID)
	assert.ErrorIs(t, err, state.ErrDecreeNotFound)
}

func TestStateIsReloadedAfterRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	decrees, err := f.svc.List(ctx, f.monarch)
	require.NoError(t, err)
	require.Empty(t, decrees)

	// A row written behind the service's back is invisible until refresh.
	require.NoError(t, f.decrees.Create(ctx, &model.Decree{UserID: f.monarch.ID, Title: "external"}))
	decrees, err = f.svc.List(ctx, f.monarch)
	require.NoError(t, err)
	assert.Empty(t, decrees)

	f.svc.Refresh(f.monarch.ID)
	decrees, err = f.svc.List(ctx, f.monarch)
	require.NoError(t, err)
	require.Len(t, decrees, 1)
	assert.Equal(t, "external", decrees[0].Title)
}

func TestFailedCommandDropsCachedState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.Issue(ctx, f.monarch, DecreeInput{Title: "Vanishing"})
	require.NoError(t, err)

	// Delete directly so the next save finds no row.
	require.NoError(t, f.decrees.Delete(ctx, f.monarch.ID, d.ID))

	_, err = f.svc.Abandon(ctx, f.monarch, d.ID)
	require.Error(t, err)

	_, err = f.svc.Get(ctx, f.monarch, d.ID)
	assert.ErrorIs(t, err, state.ErrDecreeNotFound, "state was reloaded from the database")
}

func TestResolveID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.Issue(ctx, f.monarch, DecreeInput{Title: "Find me"})
	require.NoError(t, err)

	got, err := f.svc.ResolveID(ctx, f.monarch, strings.ToUpper(ShortID(d.ID)))
	require.NoError(t, err)
	assert.Equal(t, d.ID, got)

	_, err = f.svc.ResolveID(ctx, f.monarch, "zzzz")
	assert.ErrorIs(t, err, state.ErrDecreeNotFound)

	_, err = f.svc.ResolveID(ctx, f.monarch, "")
	assert.ErrorIs(t, err, state.ErrDecreeNotFound)
}

func TestConcurrentIssuesKeepSnapshotsInOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Issue(ctx, f.monarch, DecreeInput{Title: fmt.Sprintf("Decree %d", i)})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	want := make([]int, 0, n+1)
	for i := 0; i <= n; i++ {
		want = append(want, i)
	}
	assert.Equal(t, want, f.snapshots.history)
	assert.Len(t, f.snapshots.saved[f.monarch.ID], n)

	rows, err := f.decrees.ListByUser(ctx, f.monarch.ID)
	require.NoError(t, err)
	assert.Len(t, rows, n)
}

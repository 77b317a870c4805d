package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"royal-decrees/internal/model"
)

var now = time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)

func seeded() State {
	return State{MonarchID: 7, Decrees: []model.Decree{
		{ID: "read", UserID: 7, Title: "Read the chronicles", Type: model.TypeLibrary, Unit: model.UnitPages, TargetQuantity: 50, Status: model.StatusPending},
		{ID: "drill", UserID: 7, Title: "Drill", Type: model.TypeBarracks, Unit: model.UnitSessions, TargetQuantity: 3, Status: model.StatusPending},
		{ID: "done", UserID: 7, Title: "Old war", Status: model.StatusCompleted},
	}}
}

func TestIssuedAppendsPendingDecree(t *testing.T) {
	s := seeded()

	next, cmds, err := Reduce(s, Issued{Decree: model.Decree{ID: "new", Title: "Study", CurrentQuantity: 9, Status: model.StatusCompleted}})
	require.NoError(t, err)

	require.Len(t, next.Decrees, 4)
	got, ok := next.Find("new")
	require.True(t, ok)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Equal(t, 0, got.CurrentQuantity)
	assert.Equal(t, uint(7), got.UserID)

	require.Len(t, cmds, 2)
	assert.Equal(t, SaveDecree{Decree: got, New: true}, cmds[0])
	assert.IsType(t, WriteSnapshot{}, cmds[1])
	assert.Len(t, s.Decrees, 3, "input state is untouched")
}

func TestIssuedRejectsDuplicateAndMissingID(t *testing.T) {
	s := seeded()

	_, _, err := Reduce(s, Issued{Decree: model.Decree{ID: "read"}})
	assert.Error(t, err)

	_, _, err = Reduce(s, Issued{Decree: model.Decree{Title: "no id"}})
	assert.Error(t, err)
}

func TestProgressBelowTarget(t *testing.T) {
	s := seeded()

	next, cmds, err := Reduce(s, ProgressRecorded{ID: "read", Amount: 20, At: now})
	require.NoError(t, err)

	got, _ := next.Find("read")
	assert.Equal(t, 20, got.CurrentQuantity)
	assert.Equal(t, model.StatusPending, got.Status)
	require.Len(t, cmds, 2)
	assert.Equal(t, SaveDecree{Decree: got}, cmds[0])

	before, _ := s.Find("read")
	assert.Equal(t, 0, before.CurrentQuantity)
}

func TestProgressReachingTargetCompletes(t *testing.T) {
	s := seeded()

	next, cmds, err := Reduce(s, ProgressRecorded{ID: "drill", Amount: 5, At: now})
	require.NoError(t, err)

	got, _ := next.Find("drill")
	assert.Equal(t, 5, got.CurrentQuantity)
	assert.Equal(t, model.StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, now, *got.CompletedAt)

	require.Len(t, cmds, 4)
	assert.Equal(t, SaveDecree{Decree: got}, cmds[0])
	assert.Equal(t, GrantRenown{Points: 10}, cmds[1])
	assert.IsType(t, Announce{}, cmds[2])
	assert.Equal(t, WriteSnapshot{State: next}, cmds[3])
}

func TestProgressRejectsNonPositiveAmount(t *testing.T) {
	for _, amount := range []int{0, -3} {
		_, cmds, err := Reduce(seeded(), ProgressRecorded{ID: "read", Amount: amount, At: now})
		assert.ErrorIs(t, err, ErrInvalidAmount)
		assert.Nil(t, cmds)
	}
}

func TestCompletedGrantsRenownByType(t *testing.T) {
	s := State{MonarchID: 1, Decrees: []model.Decree{{ID: "exam", Type: model.TypeExam, Status: model.StatusPending}}}

	_, cmds, err := Reduce(s, Completed{ID: "exam", At: now})
	require.NoError(t, err)

	assert.Contains(t, cmds, Command(GrantRenown{Points: 25}))
}

func TestTerminalStatusesCannotTransition(t *testing.T) {
	s := State{Decrees: []model.Decree{
		{ID: "c", Status: model.StatusCompleted},
		{ID: "a", Status: model.StatusAbandoned},
	}}

	for _, id := range []string{"c", "a"} {
		for _, action := range []Action{
			Completed{ID: id, At: now},
			Abandoned{ID: id},
			ProgressRecorded{ID: id, Amount: 1, At: now},
		} {
			next, cmds, err := Reduce(s, action)
			assert.ErrorIs(t, err, ErrDecreeClosed, "%s %T", id, action)
			assert.Nil(t, cmds)
			assert.Equal(t, s, next)
		}
	}
}

func TestAbandoned(t *testing.T) {
	next, cmds, err := Reduce(seeded(), Abandoned{ID: "drill"})
	require.NoError(t, err)

	got, _ := next.Find("drill")
	assert.Equal(t, model.StatusAbandoned, got.Status)
	assert.Nil(t, got.CompletedAt)
	require.Len(t, cmds, 2)
	assert.Equal(t, SaveDecree{Decree: got}, cmds[0])
}

func TestRevoked(t *testing.T) {
	s := seeded()

	next, cmds, err := Reduce(s, Revoked{ID: "drill"})
	require.NoError(t, err)

	_, ok := next.Find("drill")
	assert.False(t, ok)
	assert.Len(t, next.Decrees, 2)
	assert.Equal(t, DeleteDecree{ID: "drill"}, cmds[0])
	assert.Len(t, s.Decrees, 3)

	_, _, err = Reduce(next, Revoked{ID: "drill"})
	assert.ErrorIs(t, err, ErrDecreeNotFound)
}

func TestUnknownDecree(t *testing.T) {
	for _, action := range []Action{
		Completed{ID: "nope", At: now},
		Abandoned{ID: "nope"},
		ProgressRecorded{ID: "nope", Amount: 1},
	} {
		_, _, err := Reduce(seeded(), action)
		assert.ErrorIs(t, err, ErrDecreeNotFound)
	}
}

func TestLoadedReplacesDecrees(t *testing.T) {
	rows := []model.Decree{{ID: "x"}}

	next, cmds, err := Reduce(seeded(), Loaded{Decrees: rows})
	require.NoError(t, err)

	assert.Equal(t, uint(7), next.MonarchID)
	assert.Equal(t, rows, next.Decrees)
	assert.Equal(t, []Command{WriteSnapshot{State: next}}, cmds)

	rows[0].ID = "mutated"
	assert.Equal(t, "x", next.Decrees[0].ID)
}

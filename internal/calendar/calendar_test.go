package calendar

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"royal-decrees/internal/model"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func TestProjectEmptyList(t *testing.T) {
	for _, window := range []int{0, 1, DefaultWindowDays, -3} {
		got := Project(nil, day(2024, 5, 1), window)
		require.NotNil(t, got)
		assert.Empty(t, got)
	}
}

func TestProjectOneShotAndDaily(t *testing.T) {
	decrees := []model.Decree{
		{ID: "a", Status: model.StatusPending, CreatedAt: day(2024, 1, 1), DueDate: ptr(day(2024, 1, 4))},
		{
			ID:         "b",
			Status:     model.StatusCompleted,
			CreatedAt:  day(2024, 1, 2),
			DueDate:    ptr(day(2024, 1, 5)),
			Recurrence: &model.Recurrence{IsRepetitive: true, Frequency: model.FrequencyDaily, Interval: 1},
		},
	}

	got := Project(decrees, day(2024, 1, 3), 3)

	want := map[string]Marker{
		"2024-01-02": {HasOnlyCompleted: true, Total: 1},
		"2024-01-03": {HasOnlyCompleted: true, Total: 1},
		"2024-01-04": {HasPending: true, Total: 2},
		"2024-01-05": {HasOnlyCompleted: true, Total: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Project() mismatch (-want +got):\n%s", diff)
	}
}

func TestProjectPendingDominatesCompleted(t *testing.T) {
	decrees := []model.Decree{
		{ID: "done-1", Status: model.StatusCompleted, CreatedAt: day(2024, 2, 10)},
		{ID: "done-2", Status: model.StatusCompleted, CreatedAt: day(2024, 2, 10)},
		{ID: "done-3", Status: model.StatusCompleted, CreatedAt: day(2024, 2, 10)},
		{ID: "open", Status: model.StatusPending, CreatedAt: day(2024, 2, 10)},
	}

	got := Project(decrees, day(2024, 2, 10), 0)

	require.Len(t, got, 1)
	assert.Equal(t, Marker{HasPending: true, Total: 4}, got["2024-02-10"])
}

func TestProjectAbandonedIsNeitherPendingNorCompleted(t *testing.T) {
	decrees := []model.Decree{
		{ID: "done", Status: model.StatusCompleted, CreatedAt: day(2024, 2, 10)},
		{ID: "dropped", Status: model.StatusAbandoned, CreatedAt: day(2024, 2, 10)},
	}

	got := Project(decrees, day(2024, 2, 10), 2)

	assert.Equal(t, map[string]Marker{"2024-02-10": {Total: 2}}, got)
}

func TestProjectWindowBounds(t *testing.T) {
	decrees := []model.Decree{{
		ID:         "daily",
		Status:     model.StatusPending,
		CreatedAt:  day(2023, 1, 1),
		Recurrence: &model.Recurrence{IsRepetitive: true, Frequency: model.FrequencyDaily, Interval: 1},
	}}

	got := Project(decrees, time.Date(2024, 6, 15, 13, 45, 0, 0, time.UTC), DefaultWindowDays)

	assert.Len(t, got, 2*DefaultWindowDays+1)
	assert.Contains(t, got, DateKey(day(2024, 6, 15).AddDate(0, 0, -DefaultWindowDays)))
	assert.Contains(t, got, DateKey(day(2024, 6, 15).AddDate(0, 0, DefaultWindowDays)))
	assert.NotContains(t, got, DateKey(day(2024, 6, 15).AddDate(0, 0, DefaultWindowDays+1)))
}

func TestProjectDoesNotMutateInput(t *testing.T) {
	decrees := []model.Decree{{ID: "x", Status: model.StatusPending, CreatedAt: day(2024, 1, 1)}}
	before := append([]model.Decree(nil), decrees...)

	Project(decrees, day(2024, 1, 1), 5)

	if diff := cmp.Diff(before, decrees); diff != "" {
		t.Fatalf("input changed (-before +after):\n%s", diff)
	}
}

func TestMonthGrid(t *testing.T) {
	// February 2024 starts on a Thursday and has 29 days.
	markers := map[string]Marker{"2024-02-14": {HasPending: true, Total: 1}}

	weeks := MonthGrid(day(2024, 2, 14), markers)

	require.Len(t, weeks, 5)
	for _, w := range weeks {
		require.Len(t, w, 7)
	}
	assert.Equal(t, 0, weeks[0][3].Day)
	assert.Equal(t, 1, weeks[0][4].Day)
	assert.Equal(t, 29, weeks[4][4].Day)
	assert.Equal(t, 0, weeks[4][5].Day)

	cell := weeks[2][3]
	assert.Equal(t, 14, cell.Day)
	require.NotNil(t, cell.Marker)
	assert.True(t, cell.Marker.HasPending)
	assert.Nil(t, weeks[2][4].Marker)
}

func TestParseDateKey(t *testing.T) {
	got, err := ParseDateKey("2024-07-04", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, day(2024, 7, 4), got)

	_, err = ParseDateKey("04.07.2024", time.UTC)
	assert.Error(t, err)
}

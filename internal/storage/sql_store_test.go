package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhima/schedule-reconciler/internal/models"
	"github.com/dhima/schedule-reconciler/pkg/clock"
)

func newSQLiteStore(t *testing.T) (*SQLStore, *clock.Manual) {
	t.Helper()
	db, dialect, err := Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clk := clock.NewManualUnix(1_000)
	store := NewSQLStore(db, dialect, clk)
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store, clk
}

func pendingEvent(scheduleID string, planStart int64) *models.Event {
	return &models.Event{
		ScheduleID: stringPtr(scheduleID),
		PlanStart:  planStart,
		Status:     models.EventStatusPending,
	}
}

func TestSQLStore_InsertAndGetSchedule_WhenOptionalFieldsSet_ThenRoundTrips(t *testing.T) {
	// Arrange
	store, _ := newSQLiteStore(t)
	ctx := context.Background()
	s := &models.Schedule{
		Cron: "@hourly", Timezone: "UTC", StartAt: 1000, EndAt: int64Ptr(9000),
		DurationSec: int64Ptr(60), UserID: stringPtr("u1"), Meta: json.RawMessage(`{"a":1}`),
	}

	// Act
	require.NoError(t, store.InsertSchedule(ctx, s))
	got, err := store.GetSchedule(ctx, s.ID)

	// Assert
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "@hourly", got.Cron)
	assert.Equal(t, int64(9000), *got.EndAt)
	assert.Equal(t, int64(60), *got.DurationSec)
	assert.Equal(t, "u1", *got.UserID)
	assert.Nil(t, got.ObjectID)
	assert.JSONEq(t, `{"a":1}`, string(got.Meta))
	assert.Equal(t, int64(1000), got.CreatedAt.Unix())
}

func TestSQLStore_GetSchedule_WhenMissing_ThenErrScheduleNotFound(t *testing.T) {
	// Arrange
	store, _ := newSQLiteStore(t)

	// Act
	_, err := store.GetSchedule(context.Background(), "nope")

	// Assert
	assert.ErrorIs(t, err, ErrScheduleNotFound)
}

func TestSQLStore_UpdateSchedule_WhenClearEndAt_ThenNullsColumn(t *testing.T) {
	// Arrange
	store, clk := newSQLiteStore(t)
	ctx := context.Background()
	s := &models.Schedule{Cron: "@hourly", StartAt: 1000, EndAt: int64Ptr(9000)}
	require.NoError(t, store.InsertSchedule(ctx, s))
	clk.Set(2_000)

	// Act
	n, err := store.UpdateSchedule(ctx, s.ID, SchedulePatch{Cron: stringPtr("@daily"), ClearEndAt: true})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	got, err := store.GetSchedule(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "@daily", got.Cron)
	assert.Nil(t, got.EndAt)
	assert.Equal(t, int64(2_000), got.UpdatedAt.Unix())
}

func TestSQLStore_DeleteSchedule_WhenMissing_ThenZeroAffected(t *testing.T) {
	// Arrange
	store, _ := newSQLiteStore(t)

	// Act
	n, err := store.DeleteSchedule(context.Background(), "nope")

	// Assert
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLStore_ListSchedules_WhenFilteredByUser_ThenOnlyMatching(t *testing.T) {
	// Arrange
	store, clk := newSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, store.InsertSchedule(ctx, &models.Schedule{Cron: "@hourly", StartAt: 1, UserID: stringPtr("u1")}))
	clk.Advance(time.Second)
	require.NoError(t, store.InsertSchedule(ctx, &models.Schedule{Cron: "@daily", StartAt: 1, UserID: stringPtr("u2")}))

	// Act
	all, err := store.ListSchedules(ctx, ScheduleFilter{})
	require.NoError(t, err)
	mine, err := store.ListSchedules(ctx, ScheduleFilter{UserID: stringPtr("u1")})
	require.NoError(t, err)

	// Assert
	require.Len(t, all, 2)
	assert.Equal(t, "@daily", all[0].Cron, "newest first")
	require.Len(t, mine, 1)
	assert.Equal(t, "@hourly", mine[0].Cron)
}

func TestSQLStore_ListEvents_WhenFiltered_ThenOrderedByPlanStart(t *testing.T) {
	// Arrange
	store, _ := newSQLiteStore(t)
	ctx := context.Background()
	for _, ps := range []int64{3000, 1000, 2000} {
		require.NoError(t, store.InsertEvent(ctx, pendingEvent("s1", ps)))
	}
	require.NoError(t, store.InsertEvent(ctx, pendingEvent("s2", 500)))

	// Act
	asc, err := store.ListEvents(ctx, EventFilter{ScheduleID: stringPtr("s1")})
	require.NoError(t, err)
	desc, err := store.ListEvents(ctx, EventFilter{ScheduleID: stringPtr("s1"), Descending: true, Limit: 1})
	require.NoError(t, err)
	after, err := store.ListEvents(ctx, EventFilter{ScheduleID: stringPtr("s1"), PlanStartAfter: int64Ptr(1000)})
	require.NoError(t, err)

	// Assert
	require.Len(t, asc, 3)
	assert.Equal(t, []int64{1000, 2000, 3000}, []int64{asc[0].PlanStart, asc[1].PlanStart, asc[2].PlanStart})
	require.Len(t, desc, 1)
	assert.Equal(t, int64(3000), desc[0].PlanStart)
	assert.Len(t, after, 2)
}

func TestSQLStore_UpdateEvents_WhenGuardNoLongerMatches_ThenZeroAffected(t *testing.T) {
	// Arrange
	store, _ := newSQLiteStore(t)
	ctx := context.Background()
	e := pendingEvent("s1", 5000)
	require.NoError(t, store.InsertEvent(ctx, e))
	oneOff := "ext-1"
	first, err := store.UpdateEvents(ctx,
		EventFilter{ID: e.ID, Statuses: []models.EventStatus{models.EventStatusPending}, OneOffIsNull: true},
		EventPatch{OneOffID: &oneOff})
	require.NoError(t, err)

	// Act
	second, err := store.UpdateEvents(ctx,
		EventFilter{ID: e.ID, Statuses: []models.EventStatus{models.EventStatusPending}, OneOffIsNull: true},
		EventPatch{OneOffID: stringPtr("ext-2")})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(0), second)
	got, err := store.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "ext-1", *got.OneOffID)
}

func TestSQLStore_UpdateEvents_WhenStatusAndClearOneOff_ThenApplied(t *testing.T) {
	// Arrange
	store, _ := newSQLiteStore(t)
	ctx := context.Background()
	e := pendingEvent("s1", 5000)
	e.OneOffID = stringPtr("ext-1")
	require.NoError(t, store.InsertEvent(ctx, e))
	inProgress := models.EventStatusInProgress

	// Act
	n, err := store.UpdateEvents(ctx,
		EventFilter{ID: e.ID, Statuses: []models.EventStatus{models.EventStatusPending}},
		EventPatch{Status: &inProgress, ActualStart: int64Ptr(5001), ClearOneOffID: true})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	got, err := store.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusInProgress, got.Status)
	assert.Equal(t, int64(5001), *got.ActualStart)
	assert.Nil(t, got.OneOffID)
}

func TestSQLStore_WriteEvents_WhenFilterEmpty_ThenRejected(t *testing.T) {
	// Arrange
	store, _ := newSQLiteStore(t)
	ctx := context.Background()

	// Act
	_, updErr := store.UpdateEvents(ctx, EventFilter{}, EventPatch{ClearOneOffID: true})
	_, delErr := store.DeleteEvents(ctx, EventFilter{Limit: 5})

	// Assert
	assert.ErrorIs(t, updErr, ErrUnboundedFilter)
	assert.ErrorIs(t, delErr, ErrUnboundedFilter)
}

func TestSQLStore_DeleteEvents_WhenStatusGuard_ThenOnlyPendingRemoved(t *testing.T) {
	// Arrange
	store, _ := newSQLiteStore(t)
	ctx := context.Background()
	pending := pendingEvent("s1", 1000)
	running := pendingEvent("s1", 2000)
	running.Status = models.EventStatusInProgress
	require.NoError(t, store.InsertEvent(ctx, pending))
	require.NoError(t, store.InsertEvent(ctx, running))

	// Act
	n, err := store.DeleteEvents(ctx, EventFilter{
		ScheduleID: stringPtr("s1"),
		Statuses:   []models.EventStatus{models.EventStatusPending},
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = store.GetEvent(ctx, pending.ID)
	assert.ErrorIs(t, err, ErrEventNotFound)
	_, err = store.GetEvent(ctx, running.ID)
	assert.NoError(t, err)
}

func TestEventFilter_Matches_WhenComparedWithSQL_ThenSameRows(t *testing.T) {
	// Arrange
	store, _ := newSQLiteStore(t)
	ctx := context.Background()
	withTrigger := pendingEvent("s1", 100)
	withTrigger.OneOffID = stringPtr("x")
	standalone := &models.Event{PlanStart: 200, Status: models.EventStatusCompleted}
	for _, e := range []*models.Event{withTrigger, standalone, pendingEvent("s1", 300)} {
		require.NoError(t, store.InsertEvent(ctx, e))
	}
	all, err := store.ListEvents(ctx, EventFilter{})
	require.NoError(t, err)

	filters := []EventFilter{
		{ScheduleID: stringPtr("s1")},
		{OneOffIsNull: true},
		{HasOneOff: true},
		{PlanStartAtOrBefore: int64Ptr(200)},
		{Statuses: []models.EventStatus{models.EventStatusCompleted, models.EventStatusCancelled}},
		{OneOffID: stringPtr("x"), PlanStart: int64Ptr(100)},
	}

	for _, f := range filters {
		// Act
		fromSQL, err := store.ListEvents(ctx, f)
		require.NoError(t, err)
		var inMemory []string
		for _, e := range all {
			if f.Matches(e) {
				inMemory = append(inMemory, e.ID)
			}
		}

		// Assert
		var sqlIDs []string
		for _, e := range fromSQL {
			sqlIDs = append(sqlIDs, e.ID)
		}
		assert.Equal(t, inMemory, sqlIDs, "%+v", f)
	}
}

func TestSQLStore_ListEvents_WhenSamePlanStartInSameInstant_ThenInsertOrder(t *testing.T) {
	// Arrange
	store, _ := newSQLiteStore(t)
	ctx := context.Background()
	var inserted []string
	for i := 0; i < 5; i++ {
		e := pendingEvent("s1", 4000)
		require.NoError(t, store.InsertEvent(ctx, e))
		inserted = append(inserted, e.ID)
	}

	// Act
	asc, err := store.ListEvents(ctx, EventFilter{ScheduleID: stringPtr("s1")})
	require.NoError(t, err)
	latest, err := store.ListEvents(ctx, EventFilter{ScheduleID: stringPtr("s1"), Descending: true, Limit: 1})
	require.NoError(t, err)

	// Assert
	var got []string
	for _, e := range asc {
		got = append(got, e.ID)
	}
	assert.Equal(t, inserted, got)
	require.Len(t, latest, 1)
	assert.Equal(t, inserted[4], latest[0].ID)
	assert.True(t, asc[1].CreatedAt.After(asc[0].CreatedAt))
}

func TestSQLStore_UpdateEvents_WhenFailureReasonSet_ThenPersisted(t *testing.T) {
	// Arrange
	store, _ := newSQLiteStore(t)
	ctx := context.Background()
	e := pendingEvent("s1", 5000)
	e.Status = models.EventStatusInProgress
	require.NoError(t, store.InsertEvent(ctx, e))

	// Act
	n, err := store.UpdateEvents(ctx,
		EventFilter{ID: e.ID, Statuses: []models.EventStatus{models.EventStatusInProgress}},
		EventPatch{FailureReason: stringPtr("webhook returned 502")})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	got, err := store.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got.FailureReason)
	assert.Equal(t, "webhook returned 502", *got.FailureReason)
	assert.Equal(t, models.EventStatusInProgress, got.Status)
}

package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dhima/schedule-reconciler/internal/logging"
	"github.com/dhima/schedule-reconciler/internal/models"
	"github.com/dhima/schedule-reconciler/internal/oneoff"
	"github.com/dhima/schedule-reconciler/internal/recurrence"
	"github.com/dhima/schedule-reconciler/internal/storage"
	"github.com/dhima/schedule-reconciler/internal/testutil/fakes"
	"github.com/dhima/schedule-reconciler/pkg/clock"
)

type harness struct {
	clock    *clock.Manual
	inner    *fakes.FakeStore
	store    *storage.ObservedStore
	client   *fakes.FakeOneOffClient
	callback *fakes.FakeCallback
	ctrl     *Controller
	logs     *observer.ObservedLogs
}

func newHarness(t *testing.T, now int64) *harness {
	t.Helper()
	clk := clock.NewManualUnix(now)
	inner := fakes.NewFakeStore(clk)
	observed := storage.NewObservedStore(inner)
	client := fakes.NewFakeOneOffClient()
	logger, logs := logging.NewObserved(zapcore.DebugLevel)
	callback := &fakes.FakeCallback{}

	ctrl := New(observed, oneoff.NewBridge(client, clk, logger, nil), recurrence.NewComputer(), callback, clk, logger, nil)
	observed.Observe(ctrl)

	return &harness{clock: clk, inner: inner, store: observed, client: client, callback: callback, ctrl: ctrl, logs: logs}
}

func (h *harness) createSchedule(t *testing.T, cron string, startAt int64, endAt *int64) models.Schedule {
	t.Helper()
	s := models.Schedule{Cron: cron, Timezone: "UTC", StartAt: startAt, EndAt: endAt}
	require.NoError(t, h.store.InsertSchedule(context.Background(), &s))
	return s
}

func (h *harness) pending(t *testing.T, scheduleID string) []models.Event {
	t.Helper()
	events, err := h.inner.ListEvents(context.Background(), storage.EventFilter{
		ScheduleID: &scheduleID,
		Statuses:   []models.EventStatus{models.EventStatusPending},
	})
	require.NoError(t, err)
	return events
}

func (h *harness) event(t *testing.T, id string) models.Event {
	t.Helper()
	e, err := h.inner.GetEvent(context.Background(), id)
	require.NoError(t, err)
	return *e
}

// fire simulates the one-off scheduler calling back for e at its plan_start.
func (h *harness) fire(t *testing.T, e models.Event) (FireResult, error) {
	t.Helper()
	h.clock.Set(e.PlanStart)
	if e.OneOffID != nil {
		h.client.Fire(*e.OneOffID)
	}
	return h.ctrl.OnOneOffFired(context.Background(), e.ID, e.ScheduleID, models.FiredKindStart)
}

func ptr[T any](v T) *T {
	return &v
}

func TestController_WhenScheduleInserted_ThenFirstEventMaterializedAndRegistered(t *testing.T) {
	// Arrange
	h := newHarness(t, 500)

	// Act
	s := h.createSchedule(t, "@every 1h", 1000, ptr(int64(4000)))

	// Assert
	pending := h.pending(t, s.ID)
	require.Len(t, pending, 1)
	e1 := pending[0]
	assert.Equal(t, int64(1000), e1.PlanStart)
	require.True(t, e1.HasTrigger())
	assert.Equal(t, []string{*e1.OneOffID}, h.client.LiveFor(e1.ID))
	assert.Equal(t, int64(1000), h.client.Created[0].FireAt.Unix())
}

func TestController_WhenOnlyOccurrenceFires_ThenExecutedAndScheduleExhausted(t *testing.T) {
	// Arrange
	h := newHarness(t, 500)
	s := h.createSchedule(t, "@every 1h", 1000, ptr(int64(4000)))
	e1 := h.pending(t, s.ID)[0]

	// Act
	result, err := h.fire(t, e1)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, FireExecuted, result)
	assert.Equal(t, 1, h.callback.CallCount())
	require.NotNil(t, h.callback.Schedules[0])
	assert.Equal(t, s.ID, h.callback.Schedules[0].ID)

	fired := h.event(t, e1.ID)
	assert.Equal(t, models.EventStatusInProgress, fired.Status)
	assert.Equal(t, int64(1000), *fired.ActualStart)
	assert.Nil(t, fired.OneOffID)
	assert.Empty(t, h.pending(t, s.ID), "next occurrence 4600 is past end_at")
	assert.Equal(t, 0, h.client.LiveCount())
}

func TestController_WhenEventsFire_ThenScheduleChainsOneAtATime(t *testing.T) {
	// Arrange
	h := newHarness(t, 500)
	s := h.createSchedule(t, "@every 1h", 1000, nil)

	// Act
	var starts []int64
	for i := 0; i < 3; i++ {
		pending := h.pending(t, s.ID)
		require.Len(t, pending, 1)
		starts = append(starts, pending[0].PlanStart)
		result, err := h.fire(t, pending[0])
		require.NoError(t, err)
		require.Equal(t, FireExecuted, result)
	}

	// Assert
	assert.Equal(t, []int64{1000, 4600, 8200}, starts)
	next := h.pending(t, s.ID)
	require.Len(t, next, 1)
	assert.Equal(t, int64(11800), next[0].PlanStart)
	assert.Equal(t, 1, h.client.LiveCount())
	assert.Equal(t, 3, h.callback.CallCount())
}

func TestController_WhenScheduleDeletedWithPendingEvent_ThenEventRemovedAndTriggerCancelled(t *testing.T) {
	// Arrange
	h := newHarness(t, 500)
	s := h.createSchedule(t, "@every 1h", 1000, ptr(int64(4000)))
	e1 := h.pending(t, s.ID)[0]

	// Act
	n, err := h.store.DeleteSchedule(context.Background(), s.ID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = h.inner.GetEvent(context.Background(), e1.ID)
	assert.ErrorIs(t, err, storage.ErrEventNotFound)
	assert.Equal(t, 0, h.client.LiveCount())
	assert.Equal(t, []string{*e1.OneOffID}, h.client.Deleted)
}

func TestController_WhenScheduleDeletedWithInProgressEvent_ThenEventUntouched(t *testing.T) {
	// Arrange
	h := newHarness(t, 500)
	s := h.createSchedule(t, "@every 1h", 1000, ptr(int64(4000)))
	e1 := h.pending(t, s.ID)[0]
	_, err := h.fire(t, e1)
	require.NoError(t, err)

	// Act
	_, err = h.store.DeleteSchedule(context.Background(), s.ID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusInProgress, h.event(t, e1.ID).Status)
}

func TestController_WhenRecurrenceUpdatedRepeatedly_ThenSinglePendingEventAndTrigger(t *testing.T) {
	// Arrange
	h := newHarness(t, 500)
	s := h.createSchedule(t, "@every 1h", 1000, nil)

	// Act
	for _, cron := range []string{"@every 2h", "@every 30m", "0 0 * * *"} {
		_, err := h.store.UpdateSchedule(context.Background(), s.ID, storage.SchedulePatch{Cron: ptr(cron)})
		require.NoError(t, err)
	}

	// Assert
	pending := h.pending(t, s.ID)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(86400), pending[0].PlanStart)
	assert.Equal(t, 1, h.client.LiveCount())
	assert.Equal(t, []string{*pending[0].OneOffID}, h.client.LiveFor(pending[0].ID))
}

func TestController_WhenNonRecurrenceFieldUpdated_ThenPendingEventKept(t *testing.T) {
	// Arrange
	h := newHarness(t, 500)
	s := h.createSchedule(t, "@every 1h", 1000, nil)
	before := h.pending(t, s.ID)[0]

	// Act
	_, err := h.store.UpdateSchedule(context.Background(), s.ID, storage.SchedulePatch{Meta: []byte(`{"room":"b"}`)})

	// Assert
	require.NoError(t, err)
	after := h.pending(t, s.ID)
	require.Len(t, after, 1)
	assert.Equal(t, before.ID, after[0].ID)
	assert.Len(t, h.client.Created, 1)
}

func TestController_WhenRecurrenceUpdatedWithOverduePending_ThenOverdueEventLeftToFire(t *testing.T) {
	// Arrange
	h := newHarness(t, 500)
	s := h.createSchedule(t, "@every 1h", 1000, nil)
	e1 := h.pending(t, s.ID)[0]
	h.clock.Set(2000)

	// Act
	_, err := h.store.UpdateSchedule(context.Background(), s.ID, storage.SchedulePatch{Cron: ptr("@every 2h")})

	// Assert
	require.NoError(t, err)
	pending := h.pending(t, s.ID)
	require.Len(t, pending, 1)
	assert.Equal(t, e1.ID, pending[0].ID)
}

func TestController_WhenRecurrenceUpdatedAfterFiring_ThenNextAnchoredOnLatestEvent(t *testing.T) {
	// Arrange
	h := newHarness(t, 500)
	s := h.createSchedule(t, "@every 1h", 1000, nil)
	_, err := h.fire(t, h.pending(t, s.ID)[0])
	require.NoError(t, err)

	// Act
	_, err = h.store.UpdateSchedule(context.Background(), s.ID, storage.SchedulePatch{Cron: ptr("@every 2h")})

	// Assert
	require.NoError(t, err)
	pending := h.pending(t, s.ID)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(1000+7200), pending[0].PlanStart)
}

func TestController_WhenSameFiringDeliveredTwice_ThenExecutedOnce(t *testing.T) {
	// Arrange
	h := newHarness(t, 500)
	s := h.createSchedule(t, "@every 1h", 1000, nil)
	e1 := h.pending(t, s.ID)[0]
	_, err := h.fire(t, e1)
	require.NoError(t, err)

	// Act
	result, err := h.ctrl.OnOneOffFired(context.Background(), e1.ID, e1.ScheduleID, models.FiredKindStart)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, FireStale, result)
	assert.Equal(t, 1, h.callback.CallCount())
	assert.Len(t, h.pending(t, s.ID), 1, "chain must not advance twice")
}

func TestController_WhenFiringForUnknownEvent_ThenStale(t *testing.T) {
	// Arrange
	h := newHarness(t, 500)

	// Act
	result, err := h.ctrl.OnOneOffFired(context.Background(), "missing", nil, models.FiredKindStart)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, FireStale, result)
	assert.Zero(t, h.callback.CallCount())
}

func TestController_WhenFiringArrivesEarly_ThenStale(t *testing.T) {
	// Arrange
	h := newHarness(t, 500)
	s := h.createSchedule(t, "@every 1h", 1000, nil)
	e1 := h.pending(t, s.ID)[0]

	// Act
	result, err := h.ctrl.OnOneOffFired(context.Background(), e1.ID, e1.ScheduleID, models.FiredKindStart)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, FireStale, result)
	assert.Equal(t, models.EventStatusPending, h.event(t, e1.ID).Status)
}

func TestController_WhenFiringWithinTolerance_ThenExecuted(t *testing.T) {
	// Arrange
	h := newHarness(t, 500)
	s := h.createSchedule(t, "@every 1h", 1000, nil)
	e1 := h.pending(t, s.ID)[0]
	h.clock.Set(997)

	// Act
	result, err := h.ctrl.OnOneOffFired(context.Background(), e1.ID, e1.ScheduleID, models.FiredKindStart)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, FireExecuted, result)
}

func TestController_WhenFiringKindUnknown_ThenStale(t *testing.T) {
	// Arrange
	h := newHarness(t, 500)
	s := h.createSchedule(t, "@every 1h", 1000, nil)
	e1 := h.pending(t, s.ID)[0]
	h.clock.Set(1000)

	// Act
	result, err := h.ctrl.OnOneOffFired(context.Background(), e1.ID, e1.ScheduleID, models.FiredKind("end"))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, FireStale, result)
	assert.Equal(t, models.EventStatusPending, h.event(t, e1.ID).Status)
}

func TestController_WhenCallbackFails_ThenEventStaysInProgressWithoutChain(t *testing.T) {
	// Arrange
	h := newHarness(t, 500)
	s := h.createSchedule(t, "@every 1h", 1000, nil)
	e1 := h.pending(t, s.ID)[0]
	h.callback.FailNext = true
	h.callback.FailError = errors.New("downstream 503")

	// Act
	result, err := h.fire(t, e1)

	// Assert
	assert.Equal(t, FireCallbackFailed, result)
	var cbErr *CallbackError
	require.ErrorAs(t, err, &cbErr)
	assert.Equal(t, e1.ID, cbErr.EventID)
	assert.Equal(t, s.ID, cbErr.ScheduleID)
	assert.ErrorContains(t, err, "downstream 503")

	failed := h.event(t, e1.ID)
	assert.Equal(t, models.EventStatusInProgress, failed.Status)
	require.NotNil(t, failed.FailureReason)
	assert.Equal(t, "downstream 503", *failed.FailureReason)
	assert.Empty(t, h.pending(t, s.ID))

	errorsLogged := h.logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, errorsLogged, 1)
	fields := errorsLogged[0].ContextMap()
	assert.Equal(t, "callback", fields[logging.KeyFailureKind])
	assert.Equal(t, e1.ID, fields[logging.KeyEventID])
}

func TestController_WhenAutoCompleteEnabled_ThenFiredEventCompleted(t *testing.T) {
	// Arrange
	h := newHarness(t, 500)
	h.ctrl.WithOptions(Options{AutoComplete: true, EarlyFireTolerance: DefaultEarlyFireTolerance})
	s := h.createSchedule(t, "@every 1h", 1000, nil)
	e1 := h.pending(t, s.ID)[0]

	// Act
	_, err := h.fire(t, e1)

	// Assert
	require.NoError(t, err)
	fired := h.event(t, e1.ID)
	assert.Equal(t, models.EventStatusCompleted, fired.Status)
	require.NotNil(t, fired.ActualEnd)
	assert.Equal(t, int64(1000), *fired.ActualEnd)
}

func TestController_WhenFiringScheduleIDMismatch_ThenEventScheduleUsed(t *testing.T) {
	// Arrange
	h := newHarness(t, 500)
	s := h.createSchedule(t, "@every 1h", 1000, nil)
	e1 := h.pending(t, s.ID)[0]
	h.clock.Set(1000)

	// Act
	result, err := h.ctrl.OnOneOffFired(context.Background(), e1.ID, ptr("other"), models.FiredKindStart)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, FireExecuted, result)
	assert.Equal(t, s.ID, h.callback.Schedules[0].ID)
	assert.NotEmpty(t, h.logs.FilterMessageSnippet("does not match").All())
	assert.Len(t, h.pending(t, s.ID), 1)
}

func TestController_WhenStandaloneEventInsertedAndFired_ThenExecutedWithoutSchedule(t *testing.T) {
	// Arrange
	h := newHarness(t, 500)
	e := models.Event{PlanStart: 3000}
	require.NoError(t, h.store.InsertEvent(context.Background(), &e))
	registered := h.event(t, e.ID)
	require.True(t, registered.HasTrigger())

	// Act
	result, err := h.fire(t, registered)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, FireExecuted, result)
	assert.Nil(t, h.callback.Schedules[0])
	assert.Len(t, h.inner.Events(), 1)
}

func TestController_WhenPendingEventRescheduled_ThenTriggerReplaced(t *testing.T) {
	// Arrange
	h := newHarness(t, 500)
	e := models.Event{PlanStart: 3000}
	require.NoError(t, h.store.InsertEvent(context.Background(), &e))
	oldID := *h.event(t, e.ID).OneOffID

	// Act
	_, err := h.store.UpdateEvents(context.Background(),
		storage.EventFilter{ID: e.ID, Statuses: []models.EventStatus{models.EventStatusPending}},
		storage.EventPatch{PlanStart: ptr(int64(6000))},
	)

	// Assert
	require.NoError(t, err)
	moved := h.event(t, e.ID)
	require.True(t, moved.HasTrigger())
	assert.NotEqual(t, oldID, *moved.OneOffID)
	assert.Equal(t, []string{oldID}, h.client.Deleted)
	assert.Equal(t, []string{*moved.OneOffID}, h.client.LiveFor(e.ID))
	assert.Equal(t, int64(6000), h.client.Created[1].FireAt.Unix())
}

func TestController_WhenScheduledEventCancelled_ThenTriggerCancelledAndNextOccurrenceChained(t *testing.T) {
	// Arrange
	h := newHarness(t, 500)
	s := h.createSchedule(t, "@every 1h", 1000, nil)
	e1 := h.pending(t, s.ID)[0]
	cancelled := models.EventStatusCancelled

	// Act
	_, err := h.store.UpdateEvents(context.Background(),
		storage.EventFilter{ID: e1.ID, Statuses: []models.EventStatus{models.EventStatusPending}},
		storage.EventPatch{Status: &cancelled},
	)

	// Assert
	require.NoError(t, err)
	skipped := h.event(t, e1.ID)
	assert.Equal(t, models.EventStatusCancelled, skipped.Status)
	assert.Nil(t, skipped.OneOffID)
	assert.Empty(t, h.client.LiveFor(e1.ID))

	pending := h.pending(t, s.ID)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(4600), pending[0].PlanStart)
	assert.True(t, pending[0].HasTrigger())
}

func TestController_WhenRegistrationFails_ThenEventStaysPendingWithoutTrigger(t *testing.T) {
	// Arrange
	h := newHarness(t, 500)
	h.client.FailCreate = true

	// Act
	s := h.createSchedule(t, "@every 1h", 1000, nil)

	// Assert
	pending := h.pending(t, s.ID)
	require.Len(t, pending, 1)
	assert.False(t, pending[0].HasTrigger())
	assert.Zero(t, h.client.LiveCount())
}

func TestController_WhenStoringTriggerIDFails_ThenRegistrationRolledBack(t *testing.T) {
	// Arrange
	h := newHarness(t, 500)
	h.inner.FailUpdateEvents = 1

	// Act
	s := models.Schedule{Cron: "@every 1h", Timezone: "UTC", StartAt: 1000}
	err := h.store.InsertSchedule(context.Background(), &s)

	// Assert
	assert.ErrorIs(t, err, fakes.ErrInjected)
	assert.Zero(t, h.client.LiveCount())
	pending := h.pending(t, s.ID)
	require.Len(t, pending, 1)
	assert.False(t, pending[0].HasTrigger())
}

func TestController_WhenInsertingSecondPendingEvent_ThenDuplicateCollapsed(t *testing.T) {
	// Arrange
	h := newHarness(t, 500)
	s := h.createSchedule(t, "@every 1h", 1000, nil)
	original := h.pending(t, s.ID)[0]
	h.inner.PutEvent(models.Event{ID: "dup", ScheduleID: &s.ID, PlanStart: 1000, Status: models.EventStatusPending})

	// Act
	require.NoError(t, h.ctrl.dedupePending(context.Background(), s.ID))

	// Assert
	pending := h.pending(t, s.ID)
	require.Len(t, pending, 1)
	assert.Equal(t, original.ID, pending[0].ID)
	assert.True(t, pending[0].HasTrigger())
}

func TestController_WhenScheduleExhaustedAtCreation_ThenNoEvent(t *testing.T) {
	// Arrange
	h := newHarness(t, 500)

	// Act
	s := h.createSchedule(t, "0 0 1 1 *", 1000, ptr(int64(2000)))

	// Assert
	assert.Empty(t, h.pending(t, s.ID))
	assert.NotEmpty(t, h.logs.FilterMessage("schedule exhausted").All())
}

func TestController_WhenPendingEventDeleted_ThenTriggerCancelled(t *testing.T) {
	// Arrange
	h := newHarness(t, 500)
	e := models.Event{PlanStart: 3000}
	require.NoError(t, h.store.InsertEvent(context.Background(), &e))

	// Act
	_, err := h.store.DeleteEvents(context.Background(), storage.EventFilter{ID: e.ID})

	// Assert
	require.NoError(t, err)
	assert.Zero(t, h.client.LiveCount())
}

func TestController_WhenTimeAdvancesPastFiring_ThenActualStartIsFiringTime(t *testing.T) {
	// Arrange
	h := newHarness(t, 500)
	e := models.Event{PlanStart: 3000}
	require.NoError(t, h.store.InsertEvent(context.Background(), &e))
	h.clock.Set(3000)
	h.clock.Advance(2 * time.Second)

	// Act
	result, err := h.ctrl.OnOneOffFired(context.Background(), e.ID, nil, models.FiredKindStart)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, FireExecuted, result)
	assert.Equal(t, int64(3002), *h.event(t, e.ID).ActualStart)
}

func TestController_WhenChainingInsertFails_ThenRedeliveryStaleAndRepairChains(t *testing.T) {
	// Arrange
	h := newHarness(t, 500)
	s := h.createSchedule(t, "@every 1h", 1000, nil)
	e1 := h.pending(t, s.ID)[0]
	h.inner.FailInsertEvent = 1
	result, fireErr := h.fire(t, e1)
	redelivered, redeliverErr := h.ctrl.OnOneOffFired(context.Background(), e1.ID, e1.ScheduleID, models.FiredKindStart)
	h.clock.Set(1000 + 120)

	// Act
	repaired, err := h.ctrl.RepairSchedule(context.Background(), s, 1000+60)

	// Assert
	assert.Equal(t, FireExecuted, result)
	assert.ErrorIs(t, fireErr, fakes.ErrInjected)
	require.NoError(t, redeliverErr)
	assert.Equal(t, FireStale, redelivered)

	require.NoError(t, err)
	assert.True(t, repaired)
	pending := h.pending(t, s.ID)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(4600), pending[0].PlanStart)
	assert.True(t, pending[0].HasTrigger())
	assert.Equal(t, 1, h.callback.CallCount())
	assert.NotEmpty(t, h.logs.FilterMessage("schedule repaired").All())
}

func TestController_WhenLatestEventSettledRecently_ThenRepairWaits(t *testing.T) {
	// Arrange
	h := newHarness(t, 500)
	s := h.createSchedule(t, "@every 1h", 1000, nil)
	e1 := h.pending(t, s.ID)[0]
	h.inner.FailInsertEvent = 1
	_, _ = h.fire(t, e1)

	// Act
	repaired, err := h.ctrl.RepairSchedule(context.Background(), s, 1000-60)

	// Assert
	require.NoError(t, err)
	assert.False(t, repaired)
	assert.Empty(t, h.pending(t, s.ID))
}

func TestController_WhenScheduleReadFailsDuringFiring_ThenEventStaysPendingForRedelivery(t *testing.T) {
	// Arrange
	h := newHarness(t, 500)
	s := h.createSchedule(t, "@every 1h", 1000, nil)
	e1 := h.pending(t, s.ID)[0]
	h.inner.FailGetSchedule = 1
	_, fireErr := h.fire(t, e1)

	// Act
	result, err := h.ctrl.OnOneOffFired(context.Background(), e1.ID, e1.ScheduleID, models.FiredKindStart)

	// Assert
	assert.ErrorIs(t, fireErr, fakes.ErrInjected)
	require.NoError(t, err)
	assert.Equal(t, FireExecuted, result)
	assert.Equal(t, 1, h.callback.CallCount())
	assert.Equal(t, models.EventStatusInProgress, h.event(t, e1.ID).Status)
	pending := h.pending(t, s.ID)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(4600), pending[0].PlanStart)
}

func TestController_WhenFirstMaterializationFailed_ThenRepairCreatesFirstEvent(t *testing.T) {
	// Arrange
	h := newHarness(t, 500)
	h.inner.FailInsertEvent = 1
	s := models.Schedule{Cron: "@every 1h", Timezone: "UTC", StartAt: 1000}
	require.Error(t, h.store.InsertSchedule(context.Background(), &s))
	require.Empty(t, h.pending(t, s.ID))

	// Act
	early, earlyErr := h.ctrl.RepairSchedule(context.Background(), s, 499)
	repaired, err := h.ctrl.RepairSchedule(context.Background(), s, 500)

	// Assert
	require.NoError(t, earlyErr)
	assert.False(t, early)
	require.NoError(t, err)
	assert.True(t, repaired)
	pending := h.pending(t, s.ID)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(1000), pending[0].PlanStart)
}

func TestController_WhenLatestEventCallbackFailed_ThenRepairSkipped(t *testing.T) {
	// Arrange
	h := newHarness(t, 500)
	s := h.createSchedule(t, "@every 1h", 1000, nil)
	e1 := h.pending(t, s.ID)[0]
	h.callback.FailNext = true
	_, _ = h.fire(t, e1)
	h.clock.Set(1_000_000)

	// Act
	repaired, err := h.ctrl.RepairSchedule(context.Background(), s, 1_000_000)

	// Assert
	require.NoError(t, err)
	assert.False(t, repaired)
	assert.Empty(t, h.pending(t, s.ID))
}

func TestController_WhenRepairingExhaustedSchedule_ThenNothingInsertedOrLogged(t *testing.T) {
	// Arrange
	h := newHarness(t, 500)
	s := h.createSchedule(t, "@every 1h", 1000, ptr(int64(4000)))
	_, err := h.fire(t, h.pending(t, s.ID)[0])
	require.NoError(t, err)
	exhaustedLogs := h.logs.FilterMessage("schedule exhausted").Len()
	h.clock.Set(10_000)

	// Act
	repaired, err := h.ctrl.RepairSchedule(context.Background(), s, 10_000)

	// Assert
	require.NoError(t, err)
	assert.False(t, repaired)
	assert.Empty(t, h.pending(t, s.ID))
	assert.Equal(t, exhaustedLogs, h.logs.FilterMessage("schedule exhausted").Len())
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dhima/schedule-reconciler/internal/models"
	"github.com/dhima/schedule-reconciler/pkg/clock"
)

// SQLStore implements Store with parameterized SQL valid on MySQL and SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	clock   clock.Clock

	stampMu   sync.Mutex
	lastStamp time.Time
}

// NewSQLStore wires a sql.DB; pass a configured instance from main.
func NewSQLStore(db *sql.DB, dialect Dialect, clk clock.Clock) *SQLStore {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &SQLStore{db: db, dialect: dialect, clock: clk}
}

// stamp returns a creation time strictly after every previous one issued by
// this store, so rows inserted within the same clock tick keep insert order.
func (c *SQLStore) stamp() time.Time {
	now := c.clock.Now().UTC().Truncate(time.Microsecond)
	c.stampMu.Lock()
	defer c.stampMu.Unlock()
	if !now.After(c.lastStamp) {
		now = c.lastStamp.Add(time.Microsecond)
	}
	c.lastStamp = now
	return now
}

// Ping verifies the database connection.
func (c *SQLStore) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

const scheduleColumns = `id, cron, timezone, start_at, end_at, duration_sec, user_id, object_id, meta, created_at, updated_at`

const eventColumns = `id, schedule_id, plan_start, plan_end, actual_start, actual_end, status, one_off_id, user_id, object_id, meta, failure_reason, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// InsertSchedule persists a new schedule.
func (c *SQLStore) InsertSchedule(ctx context.Context, s *models.Schedule) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	now := c.stamp()
	s.CreatedAt, s.UpdatedAt = now, now

	if _, err := c.db.ExecContext(
		ctx,
		`INSERT INTO schedules (`+scheduleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID,
		s.Cron,
		s.Timezone,
		s.StartAt,
		nullInt64(s.EndAt),
		nullInt64(s.DurationSec),
		nullString(s.UserID),
		nullString(s.ObjectID),
		nullJSON(s.Meta),
		now.UnixMicro(),
		now.UnixMicro(),
	); err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

// GetSchedule fetches a schedule by id.
func (c *SQLStore) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	s, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("scan schedule: %w", err)
	}
	return s, nil
}

// ListSchedules returns schedules newest first.
func (c *SQLStore) ListSchedules(ctx context.Context, filter ScheduleFilter) ([]models.Schedule, error) {
	criteria := make([]string, 0, 2)
	args := make([]any, 0, 4)
	if filter.UserID != nil {
		criteria = append(criteria, "user_id = ?")
		args = append(args, *filter.UserID)
	}
	if filter.ObjectID != nil {
		criteria = append(criteria, "object_id = ?")
		args = append(args, *filter.ObjectID)
	}

	query := `SELECT ` + scheduleColumns + ` FROM schedules`
	if len(criteria) > 0 {
		query += " WHERE " + strings.Join(criteria, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}
	defer rows.Close()

	schedules := make([]models.Schedule, 0)
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule row: %w", err)
		}
		schedules = append(schedules, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedules: %w", err)
	}
	return schedules, nil
}

// UpdateSchedule applies patch to one schedule and returns the affected count.
func (c *SQLStore) UpdateSchedule(ctx context.Context, id string, patch SchedulePatch) (int64, error) {
	setParts := make([]string, 0, 8)
	args := make([]any, 0, 9)
	add := func(column string, value any) {
		setParts = append(setParts, column+" = ?")
		args = append(args, value)
	}

	if patch.Cron != nil {
		add("cron", *patch.Cron)
	}
	if patch.Timezone != nil {
		add("timezone", *patch.Timezone)
	}
	if patch.StartAt != nil {
		add("start_at", *patch.StartAt)
	}
	if patch.ClearEndAt {
		add("end_at", nil)
	} else if patch.EndAt != nil {
		add("end_at", *patch.EndAt)
	}
	if patch.DurationSec != nil {
		add("duration_sec", *patch.DurationSec)
	}
	if patch.Meta != nil {
		add("meta", nullJSON(patch.Meta))
	}
	add("updated_at", c.clock.Now().UnixMicro())
	args = append(args, id)

	query := fmt.Sprintf("UPDATE schedules SET %s WHERE id = ?", strings.Join(setParts, ", "))
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update schedule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// DeleteSchedule removes a schedule row. Its events are left to the caller.
func (c *SQLStore) DeleteSchedule(ctx context.Context, id string) (int64, error) {
	res, err := c.db.ExecContext(ctx, "DELETE FROM schedules WHERE id = ?", id)
	if err != nil {
		return 0, fmt.Errorf("delete schedule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// InsertEvent persists a new event.
func (c *SQLStore) InsertEvent(ctx context.Context, e *models.Event) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Status == "" {
		e.Status = models.EventStatusPending
	}
	now := c.stamp()
	e.CreatedAt, e.UpdatedAt = now, now

	if _, err := c.db.ExecContext(
		ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		nullString(e.ScheduleID),
		e.PlanStart,
		nullInt64(e.PlanEnd),
		nullInt64(e.ActualStart),
		nullInt64(e.ActualEnd),
		e.Status,
		nullString(e.OneOffID),
		nullString(e.UserID),
		nullString(e.ObjectID),
		nullJSON(e.Meta),
		nullString(e.FailureReason),
		now.UnixMicro(),
		now.UnixMicro(),
	); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetEvent fetches an event by id.
func (c *SQLStore) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	return e, nil
}

// ListEvents returns events matching filter ordered by plan_start then creation.
func (c *SQLStore) ListEvents(ctx context.Context, filter EventFilter) ([]models.Event, error) {
	where, args := eventWhere(filter)
	query := `SELECT ` + eventColumns + ` FROM events` + where
	if filter.Descending {
		query += " ORDER BY plan_start DESC, created_at DESC, id DESC"
	} else {
		query += " ORDER BY plan_start ASC, created_at ASC, id ASC"
	}
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := make([]models.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// UpdateEvents applies patch to every matching row. The filter doubles as
// a compare-and-set guard: a row that no longer matches is not touched.
func (c *SQLStore) UpdateEvents(ctx context.Context, filter EventFilter, patch EventPatch) (int64, error) {
	if filter.IsEmpty() {
		return 0, ErrUnboundedFilter
	}
	if patch.IsEmpty() {
		return 0, nil
	}

	setParts := make([]string, 0, 8)
	args := make([]any, 0, 16)
	add := func(column string, value any) {
		setParts = append(setParts, column+" = ?")
		args = append(args, value)
	}

	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.PlanStart != nil {
		add("plan_start", *patch.PlanStart)
	}
	if patch.ClearPlanEnd {
		add("plan_end", nil)
	} else if patch.PlanEnd != nil {
		add("plan_end", *patch.PlanEnd)
	}
	if patch.ActualStart != nil {
		add("actual_start", *patch.ActualStart)
	}
	if patch.ActualEnd != nil {
		add("actual_end", *patch.ActualEnd)
	}
	if patch.ClearOneOffID {
		add("one_off_id", nil)
	} else if patch.OneOffID != nil {
		add("one_off_id", *patch.OneOffID)
	}
	if patch.FailureReason != nil {
		add("failure_reason", *patch.FailureReason)
	}
	if patch.Meta != nil {
		add("meta", nullJSON(patch.Meta))
	}
	add("updated_at", c.clock.Now().UnixMicro())

	where, whereArgs := eventWhere(filter)
	args = append(args, whereArgs...)

	res, err := c.db.ExecContext(ctx, "UPDATE events SET "+strings.Join(setParts, ", ")+where, args...)
	if err != nil {
		return 0, fmt.Errorf("update events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// DeleteEvents removes every matching row.
func (c *SQLStore) DeleteEvents(ctx context.Context, filter EventFilter) (int64, error) {
	if filter.IsEmpty() {
		return 0, ErrUnboundedFilter
	}
	where, args := eventWhere(filter)
	res, err := c.db.ExecContext(ctx, "DELETE FROM events"+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func eventWhere(f EventFilter) (string, []any) {
	criteria := make([]string, 0, 8)
	args := make([]any, 0, 8)

	if f.ID != "" {
		criteria = append(criteria, "id = ?")
		args = append(args, f.ID)
	}
	if f.ScheduleID != nil {
		criteria = append(criteria, "schedule_id = ?")
		args = append(args, *f.ScheduleID)
	}
	if len(f.Statuses) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(f.Statuses)), ", ")
		criteria = append(criteria, "status IN ("+placeholders+")")
		for _, s := range f.Statuses {
			args = append(args, s)
		}
	}
	if f.PlanStart != nil {
		criteria = append(criteria, "plan_start = ?")
		args = append(args, *f.PlanStart)
	}
	if f.PlanStartAfter != nil {
		criteria = append(criteria, "plan_start > ?")
		args = append(args, *f.PlanStartAfter)
	}
	if f.PlanStartAtOrBefore != nil {
		criteria = append(criteria, "plan_start <= ?")
		args = append(args, *f.PlanStartAtOrBefore)
	}
	if f.OneOffID != nil {
		criteria = append(criteria, "one_off_id = ?")
		args = append(args, *f.OneOffID)
	}
	if f.OneOffIsNull {
		criteria = append(criteria, "one_off_id IS NULL")
	}
	if f.HasOneOff {
		criteria = append(criteria, "one_off_id IS NOT NULL")
	}

	if len(criteria) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(criteria, " AND "), args
}

func scanSchedule(row rowScanner) (*models.Schedule, error) {
	var s models.Schedule
	var endAt, durationSec sql.NullInt64
	var userID, objectID, meta sql.NullString
	var createdAt, updatedAt int64
	if err := row.Scan(&s.ID, &s.Cron, &s.Timezone, &s.StartAt, &endAt, &durationSec,
		&userID, &objectID, &meta, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	s.EndAt = fromNullInt64(endAt)
	s.DurationSec = fromNullInt64(durationSec)
	s.UserID = fromNullString(userID)
	s.ObjectID = fromNullString(objectID)
	s.Meta = jsonRawMessage(meta)
	s.CreatedAt = time.UnixMicro(createdAt).UTC()
	s.UpdatedAt = time.UnixMicro(updatedAt).UTC()
	return &s, nil
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var e models.Event
	var scheduleID, oneOffID, userID, objectID, meta, failureReason sql.NullString
	var planEnd, actualStart, actualEnd sql.NullInt64
	var createdAt, updatedAt int64
	if err := row.Scan(&e.ID, &scheduleID, &e.PlanStart, &planEnd, &actualStart, &actualEnd,
		&e.Status, &oneOffID, &userID, &objectID, &meta, &failureReason, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	e.ScheduleID = fromNullString(scheduleID)
	e.PlanEnd = fromNullInt64(planEnd)
	e.ActualStart = fromNullInt64(actualStart)
	e.ActualEnd = fromNullInt64(actualEnd)
	e.OneOffID = fromNullString(oneOffID)
	e.UserID = fromNullString(userID)
	e.ObjectID = fromNullString(objectID)
	e.Meta = jsonRawMessage(meta)
	e.FailureReason = fromNullString(failureReason)
	e.CreatedAt = time.UnixMicro(createdAt).UTC()
	e.UpdatedAt = time.UnixMicro(updatedAt).UTC()
	return &e, nil
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func fromNullInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return int64Ptr(v.Int64)
}

func fromNullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return stringPtr(v.String)
}

func jsonRawMessage(v sql.NullString) json.RawMessage {
	if !v.Valid || v.String == "" {
		return nil
	}
	return json.RawMessage(v.String)
}

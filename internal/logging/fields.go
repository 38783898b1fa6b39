package logging

import "go.uber.org/zap"

// Field keys shared by every component that logs about reconciliation.
const (
	KeyEventID     = "event_id"
	KeyScheduleID  = "schedule_id"
	KeyOneOffID    = "one_off_id"
	KeyFailureKind = "failure_kind"
)

func EventID(id string) zap.Field    { return zap.String(KeyEventID, id) }
func ScheduleID(id string) zap.Field { return zap.String(KeyScheduleID, id) }
func OneOffID(id string) zap.Field   { return zap.String(KeyOneOffID, id) }

// OptionalScheduleID logs an empty string for standalone events.
func OptionalScheduleID(id *string) zap.Field {
	if id == nil {
		return zap.String(KeyScheduleID, "")
	}
	return zap.String(KeyScheduleID, *id)
}

// FailureKind tags an error log with the subsystem that failed
// ("oneoff", "store", "callback", "compute").
func FailureKind(kind string) zap.Field { return zap.String(KeyFailureKind, kind) }

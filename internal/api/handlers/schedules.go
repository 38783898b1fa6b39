package handlers

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dhima/schedule-reconciler/internal/api/response"
	"github.com/dhima/schedule-reconciler/internal/logging"
	"github.com/dhima/schedule-reconciler/internal/models"
)

// ScheduleService is the schedule business logic the handler needs.
type ScheduleService interface {
	CreateSchedule(ctx context.Context, req models.CreateScheduleRequest) (*models.ScheduleResponse, error)
	GetSchedule(ctx context.Context, id string) (*models.ScheduleResponse, error)
	ListSchedules(ctx context.Context, query models.ListSchedulesQuery) (models.ScheduleListResponse, error)
	UpdateSchedule(ctx context.Context, id string, req models.UpdateScheduleRequest) (*models.ScheduleResponse, error)
	DeleteSchedule(ctx context.Context, id string) error
	ListScheduleEvents(ctx context.Context, id string, status string, limit int) (models.EventListResponse, error)
}

// ScheduleHandler handles schedule management requests.
type ScheduleHandler struct {
	logger  logging.Logger
	service ScheduleService
}

// NewScheduleHandler creates a new schedule handler.
func NewScheduleHandler(logger logging.Logger, service ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{
		logger:  logger.With(zap.String("handler", "schedule")),
		service: service,
	}
}

// CreateSchedule godoc
// @Summary Create a schedule
// @Description Creates a recurring schedule. Its first event is materialized and registered with the one-off scheduler.
// @Tags Schedules
// @Accept json
// @Produce json
// @Param schedule body models.CreateScheduleRequest true "Schedule definition"
// @Success 201 {object} models.ScheduleResponse
// @Failure 400 {object} response.ErrorResponse "Invalid request"
// @Failure 500 {object} response.ErrorResponse "Internal server error"
// @Router /api/v1/schedules [post]
func (h *ScheduleHandler) CreateSchedule(c *gin.Context) {
	var req models.CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid create schedule request",
			zap.Error(err),
			zap.String("request_id", response.GetRequestID(c)),
		)
		response.BadRequest(c, "invalid request body", err.Error())
		return
	}

	result, err := h.service.CreateSchedule(c.Request.Context(), req)
	if handleServiceError(c, h.logger, err, "create schedule") {
		return
	}

	response.Created(c, result, "schedule created successfully")
}

// ListSchedules godoc
// @Summary List schedules
// @Tags Schedules
// @Produce json
// @Param user_id query string false "Filter by user"
// @Param object_id query string false "Filter by object"
// @Param page query int false "Page number" default(1) minimum(1)
// @Param limit query int false "Items per page" default(20) minimum(1) maximum(100)
// @Success 200 {object} models.ScheduleListResponse
// @Failure 400 {object} response.ErrorResponse "Invalid query parameters"
// @Failure 500 {object} response.ErrorResponse "Internal server error"
// @Router /api/v1/schedules [get]
func (h *ScheduleHandler) ListSchedules(c *gin.Context) {
	var query models.ListSchedulesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.BadRequest(c, "invalid query parameters", err.Error())
		return
	}

	result, err := h.service.ListSchedules(c.Request.Context(), query)
	if handleServiceError(c, h.logger, err, "list schedules") {
		return
	}
	response.OK(c, result)
}

// GetSchedule godoc
// @Summary Get a schedule
// @Description Returns a schedule together with its next pending event.
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} models.ScheduleResponse
// @Failure 404 {object} response.ErrorResponse "Schedule not found"
// @Failure 500 {object} response.ErrorResponse "Internal server error"
// @Router /api/v1/schedules/{id} [get]
func (h *ScheduleHandler) GetSchedule(c *gin.Context) {
	result, err := h.service.GetSchedule(c.Request.Context(), c.Param("id"))
	if handleServiceError(c, h.logger, err, "get schedule") {
		return
	}
	response.OK(c, result)
}

// UpdateSchedule godoc
// @Summary Update a schedule
// @Description Partially updates a schedule. Changing cron, timezone, start_at or end_at replaces the pending event.
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param schedule body models.UpdateScheduleRequest true "Fields to change"
// @Success 200 {object} models.ScheduleResponse
// @Failure 400 {object} response.ErrorResponse "Invalid request"
// @Failure 404 {object} response.ErrorResponse "Schedule not found"
// @Failure 500 {object} response.ErrorResponse "Internal server error"
// @Router /api/v1/schedules/{id} [patch]
func (h *ScheduleHandler) UpdateSchedule(c *gin.Context) {
	scheduleID := c.Param("id")

	var req models.UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid update schedule request",
			zap.Error(err),
			zap.String("schedule_id", scheduleID),
			zap.String("request_id", response.GetRequestID(c)),
		)
		response.BadRequest(c, "invalid request body", err.Error())
		return
	}

	result, err := h.service.UpdateSchedule(c.Request.Context(), scheduleID, req)
	if handleServiceError(c, h.logger, err, "update schedule") {
		return
	}
	response.OK(c, result)
}

// DeleteSchedule godoc
// @Summary Delete a schedule
// @Description Deletes a schedule and its pending event. Fired events are kept.
// @Tags Schedules
// @Param id path string true "Schedule ID"
// @Success 204 "Schedule deleted successfully"
// @Failure 404 {object} response.ErrorResponse "Schedule not found"
// @Failure 500 {object} response.ErrorResponse "Internal server error"
// @Router /api/v1/schedules/{id} [delete]
func (h *ScheduleHandler) DeleteSchedule(c *gin.Context) {
	if handleServiceError(c, h.logger, h.service.DeleteSchedule(c.Request.Context(), c.Param("id")), "delete schedule") {
		return
	}
	response.NoContent(c)
}

// ListScheduleEvents godoc
// @Summary List events of a schedule
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Param status query string false "Filter by status" Enums(pending, in_progress, completed, cancelled)
// @Param limit query int false "Maximum events" default(100)
// @Success 200 {object} models.EventListResponse
// @Failure 404 {object} response.ErrorResponse "Schedule not found"
// @Failure 500 {object} response.ErrorResponse "Internal server error"
// @Router /api/v1/schedules/{id}/events [get]
func (h *ScheduleHandler) ListScheduleEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	result, err := h.service.ListScheduleEvents(c.Request.Context(), c.Param("id"), c.Query("status"), limit)
	if handleServiceError(c, h.logger, err, "list schedule events") {
		return
	}
	response.OK(c, result)
}

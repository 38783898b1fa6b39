package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dhima/schedule-reconciler/internal/api/response"
	"github.com/dhima/schedule-reconciler/internal/logging"
	"github.com/dhima/schedule-reconciler/internal/models"
)

// EventService is the event lifecycle logic the handler needs.
type EventService interface {
	CreateEvent(ctx context.Context, req models.CreateEventRequest) (*models.Event, error)
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	ListEvents(ctx context.Context, query models.ListEventsQuery) (models.EventListResponse, error)
	RescheduleEvent(ctx context.Context, id string, req models.RescheduleEventRequest) (*models.Event, error)
	CancelEvent(ctx context.Context, id string) (*models.Event, error)
	CompleteEvent(ctx context.Context, id string) (*models.Event, error)
	DeleteEvent(ctx context.Context, id string) error
}

// EventHandler handles event requests.
type EventHandler struct {
	logger  logging.Logger
	service EventService
}

// NewEventHandler creates a new event handler.
func NewEventHandler(logger logging.Logger, service EventService) *EventHandler {
	return &EventHandler{
		logger:  logger.With(zap.String("handler", "event")),
		service: service,
	}
}

// CreateEvent godoc
// @Summary Create a standalone event
// @Description Creates a one-time event that belongs to no schedule.
// @Tags Events
// @Accept json
// @Produce json
// @Param event body models.CreateEventRequest true "Event definition"
// @Success 201 {object} models.Event
// @Failure 400 {object} response.ErrorResponse "Invalid request"
// @Failure 500 {object} response.ErrorResponse "Internal server error"
// @Router /api/v1/events [post]
func (h *EventHandler) CreateEvent(c *gin.Context) {
	var req models.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid create event request",
			zap.Error(err),
			zap.String("request_id", response.GetRequestID(c)),
		)
		response.BadRequest(c, "invalid request body", err.Error())
		return
	}

	result, err := h.service.CreateEvent(c.Request.Context(), req)
	if handleServiceError(c, h.logger, err, "create event") {
		return
	}
	response.Created(c, result, "event created successfully")
}

// ListEvents godoc
// @Summary List events
// @Tags Events
// @Produce json
// @Param schedule_id query string false "Filter by schedule"
// @Param status query string false "Filter by status" Enums(pending, in_progress, completed, cancelled)
// @Param limit query int false "Maximum events" default(100) minimum(1) maximum(500)
// @Success 200 {object} models.EventListResponse
// @Failure 400 {object} response.ErrorResponse "Invalid query parameters"
// @Failure 500 {object} response.ErrorResponse "Internal server error"
// @Router /api/v1/events [get]
func (h *EventHandler) ListEvents(c *gin.Context) {
	var query models.ListEventsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.logger.Warn("invalid list events query",
			zap.Error(err),
			zap.String("request_id", response.GetRequestID(c)),
		)
		response.BadRequest(c, "invalid query parameters", err.Error())
		return
	}

	result, err := h.service.ListEvents(c.Request.Context(), query)
	if handleServiceError(c, h.logger, err, "list events") {
		return
	}
	response.OK(c, result)
}

// GetEvent godoc
// @Summary Get an event
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} models.Event
// @Failure 404 {object} response.ErrorResponse "Event not found"
// @Failure 500 {object} response.ErrorResponse "Internal server error"
// @Router /api/v1/events/{id} [get]
func (h *EventHandler) GetEvent(c *gin.Context) {
	result, err := h.service.GetEvent(c.Request.Context(), c.Param("id"))
	if handleServiceError(c, h.logger, err, "get event") {
		return
	}
	response.OK(c, result)
}

// RescheduleEvent godoc
// @Summary Reschedule a pending event
// @Description Moves a pending event; its one-off trigger is replaced.
// @Tags Events
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param event body models.RescheduleEventRequest true "New plan"
// @Success 200 {object} models.Event
// @Failure 400 {object} response.ErrorResponse "Invalid request"
// @Failure 404 {object} response.ErrorResponse "Event not found"
// @Failure 409 {object} response.ErrorResponse "Event is not pending"
// @Failure 500 {object} response.ErrorResponse "Internal server error"
// @Router /api/v1/events/{id}/reschedule [post]
func (h *EventHandler) RescheduleEvent(c *gin.Context) {
	var req models.RescheduleEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body", err.Error())
		return
	}

	result, err := h.service.RescheduleEvent(c.Request.Context(), c.Param("id"), req)
	if handleServiceError(c, h.logger, err, "reschedule event") {
		return
	}
	response.OK(c, result)
}

// CancelEvent godoc
// @Summary Cancel a pending event
// @Description Cancels a pending event. A scheduled event is skipped and the next occurrence is materialized.
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} models.Event
// @Failure 404 {object} response.ErrorResponse "Event not found"
// @Failure 409 {object} response.ErrorResponse "Event is not pending"
// @Failure 500 {object} response.ErrorResponse "Internal server error"
// @Router /api/v1/events/{id}/cancel [post]
func (h *EventHandler) CancelEvent(c *gin.Context) {
	result, err := h.service.CancelEvent(c.Request.Context(), c.Param("id"))
	if handleServiceError(c, h.logger, err, "cancel event") {
		return
	}
	response.OK(c, result)
}

// CompleteEvent godoc
// @Summary Complete an in-progress event
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} models.Event
// @Failure 404 {object} response.ErrorResponse "Event not found"
// @Failure 409 {object} response.ErrorResponse "Event is not in progress"
// @Failure 500 {object} response.ErrorResponse "Internal server error"
// @Router /api/v1/events/{id}/complete [post]
func (h *EventHandler) CompleteEvent(c *gin.Context) {
	result, err := h.service.CompleteEvent(c.Request.Context(), c.Param("id"))
	if handleServiceError(c, h.logger, err, "complete event") {
		return
	}
	response.OK(c, result)
}

// DeleteEvent godoc
// @Summary Delete an event
// @Tags Events
// @Param id path string true "Event ID"
// @Success 204 "Event deleted successfully"
// @Failure 404 {object} response.ErrorResponse "Event not found"
// @Failure 500 {object} response.ErrorResponse "Internal server error"
// @Router /api/v1/events/{id} [delete]
func (h *EventHandler) DeleteEvent(c *gin.Context) {
	if handleServiceError(c, h.logger, h.service.DeleteEvent(c.Request.Context(), c.Param("id")), "delete event") {
		return
	}
	response.NoContent(c)
}

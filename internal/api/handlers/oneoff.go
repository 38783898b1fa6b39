package handlers

import (
	"context"
	"crypto/subtle"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/dhima/schedule-reconciler/internal/api/response"
	"github.com/dhima/schedule-reconciler/internal/guard"
	"github.com/dhima/schedule-reconciler/internal/logging"
	"github.com/dhima/schedule-reconciler/internal/models"
	"github.com/dhima/schedule-reconciler/internal/reconcile"
	"github.com/dhima/schedule-reconciler/internal/tracing"
)

//go:embed schemas/fired_payload.json
var firedPayloadSchema string

// maxFiredBodyBytes bounds the webhook body; a payload is three short strings.
const maxFiredBodyBytes = 64 << 10

// FiringReconciler reacts to a one-shot trigger reaching its time.
type FiringReconciler interface {
	OnOneOffFired(ctx context.Context, eventID string, scheduleID *string, kind models.FiredKind) (reconcile.FireResult, error)
}

// FiredConfig configures the one-off webhook.
type FiredConfig struct {
	// Secret is compared against SecretHeader. Empty disables the check.
	Secret       string
	SecretHeader string
	GuardTTL     time.Duration
}

// FiredResponse is returned to the one-off scheduler.
type FiredResponse struct {
	EventID string `json:"event_id" example:"660e8400-e29b-41d4-a716-446655440000"`
	Result  string `json:"result" example:"executed"`
} // @name FiredResponse

// ResultDuplicate is reported when another delivery of the same event holds the guard.
const ResultDuplicate = "duplicate"

// FiredHandler receives one-shot trigger deliveries.
type FiredHandler struct {
	logger     logging.Logger
	reconciler FiringReconciler
	guard      guard.Guard
	schema     *gojsonschema.Schema
	cfg        FiredConfig
}

// NewFiredHandler creates the webhook handler. A nil guard disables
// duplicate-delivery locking.
func NewFiredHandler(logger logging.Logger, reconciler FiringReconciler, g guard.Guard, cfg FiredConfig) (*FiredHandler, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(firedPayloadSchema))
	if err != nil {
		return nil, fmt.Errorf("compile fired payload schema: %w", err)
	}
	if g == nil {
		g = guard.NopGuard{}
	}
	if cfg.SecretHeader == "" {
		cfg.SecretHeader = "X-Webhook-Secret"
	}
	if cfg.GuardTTL <= 0 {
		cfg.GuardTTL = time.Minute
	}
	return &FiredHandler{
		logger:     logger.With(zap.String("handler", "oneoff_fired")),
		reconciler: reconciler,
		guard:      g,
		schema:     schema,
		cfg:        cfg,
	}, nil
}

// Fired godoc
// @Summary One-off trigger delivery
// @Description Called by the one-off scheduler when a trigger reaches its time. Stale or duplicate deliveries are acknowledged without effect.
// @Tags OneOff
// @Accept json
// @Produce json
// @Param X-Webhook-Secret header string false "Shared webhook secret"
// @Param payload body models.OneOffPayload true "Trigger payload, optionally wrapped in {\"payload\": ...}"
// @Success 200 {object} FiredResponse
// @Failure 400 {object} response.ErrorResponse "Invalid payload"
// @Failure 401 {object} response.ErrorResponse "Invalid secret"
// @Failure 500 {object} response.ErrorResponse "Store failure, retry"
// @Router /api/v1/oneoff/fired [post]
func (h *FiredHandler) Fired(c *gin.Context) {
	requestID := response.GetRequestID(c)

	if !h.authorized(c.GetHeader(h.cfg.SecretHeader)) {
		h.logger.Warn("webhook secret mismatch", zap.String("request_id", requestID))
		response.Unauthorized(c, "invalid webhook secret")
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxFiredBodyBytes))
	if err != nil {
		response.BadRequest(c, "failed to read request body", err.Error())
		return
	}

	payload, err := h.decode(body)
	if err != nil {
		h.logger.Warn("invalid fired payload",
			zap.Error(err),
			zap.String("request_id", requestID),
		)
		response.BadRequest(c, "invalid payload", err.Error())
		return
	}

	ctx := tracing.ExtractHeaders(c.Request.Context(), c.Request.Header)

	acquired, err := h.guard.Acquire(ctx, payload.EventID, h.cfg.GuardTTL)
	if err != nil {
		// The store compare-and-set still rejects a second execution.
		h.logger.Warn("firing guard unavailable, proceeding",
			zap.Error(err),
			logging.EventID(payload.EventID),
		)
		acquired = true
	}
	if !acquired {
		h.logger.Info("duplicate delivery ignored",
			logging.EventID(payload.EventID),
			zap.String("request_id", requestID),
		)
		response.OK(c, FiredResponse{EventID: payload.EventID, Result: ResultDuplicate})
		return
	}

	result, err := h.reconciler.OnOneOffFired(ctx, payload.EventID, payload.ScheduleID, payload.Kind)
	var callbackErr *reconcile.CallbackError
	switch {
	case errors.As(err, &callbackErr):
		// The event already left pending; a redelivery would be stale.
		response.OK(c, FiredResponse{EventID: payload.EventID, Result: string(result)})
	case err != nil:
		if relErr := h.guard.Release(ctx, payload.EventID); relErr != nil {
			h.logger.Warn("failed to release firing guard", zap.Error(relErr), logging.EventID(payload.EventID))
		}
		h.logger.Error("firing failed",
			zap.Error(err),
			logging.EventID(payload.EventID),
			zap.String("request_id", requestID),
		)
		response.InternalServerError(c, "failed to process firing")
	default:
		response.OK(c, FiredResponse{EventID: payload.EventID, Result: string(result)})
	}
}

func (h *FiredHandler) authorized(got string) bool {
	if h.cfg.Secret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.cfg.Secret)) == 1
}

// decode unwraps an optional {"payload": {...}} envelope and validates the
// payload against the embedded schema.
func (h *FiredHandler) decode(body []byte) (models.OneOffPayload, error) {
	var payload models.OneOffPayload

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return payload, fmt.Errorf("body is not a JSON object: %w", err)
	}
	if inner, ok := envelope["payload"]; ok {
		body = inner
	}

	result, err := h.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return payload, fmt.Errorf("validate payload: %w", err)
	}
	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}
		return payload, fmt.Errorf("schema validation errors: %v", messages)
	}

	if err := json.Unmarshal(body, &payload); err != nil {
		return payload, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}


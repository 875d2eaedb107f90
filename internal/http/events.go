package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Thetimii/dashboard-sub001/internal/model"
	"github.com/Thetimii/dashboard-sub001/internal/util"
)

type handlers struct {
	deps Deps
	log  *zap.Logger
}

type eventReq struct {
	Kind          string         `json:"kind"`
	OccurredAt    time.Time      `json:"occurred_at"`
	Subject       model.Subject  `json:"subject"`
	Payload       map[string]any `json:"payload"`
	TestEventCode string         `json:"test_event_code"`
}

// bindEvent decodes and validates the request body.
func bindEvent(c echo.Context) (model.LifecycleEvent, error) {
	var req eventReq
	if err := c.Bind(&req); err != nil {
		return model.LifecycleEvent{}, &model.ValidationError{Field: "body", Reason: "malformed json"}
	}

	kind, ok := model.ParseEventKind(req.Kind)
	if !ok {
		return model.LifecycleEvent{}, &model.ValidationError{Field: "kind", Reason: "unknown event kind " + req.Kind}
	}

	ev := model.NewLifecycleEvent(kind, req.OccurredAt, req.Subject, req.Payload)
	if req.TestEventCode != "" {
		ev = ev.WithTestEventCode(req.TestEventCode)
	}

	if err := ev.Validate(); err != nil {
		return ev, err
	}
	return ev, ev.RequireStableKey(!req.OccurredAt.IsZero())
}

func badRequest(c echo.Context, err error) error {
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "validation", "field": ve.Field, "reason": ve.Reason})
	}
	return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
}

// dispatch runs the event synchronously. Sub-dispatch failures still answer 200;
// the outcome carries them.
func (h *handlers) dispatch(c echo.Context) error {
	ev, err := bindEvent(c)
	if err != nil {
		return badRequest(c, err)
	}

	out, err := h.deps.Router.Dispatch(c.Request().Context(), ev)
	if err != nil {
		if model.IsValidation(err) {
			return badRequest(c, err)
		}
		h.log.Error("dispatch failed", zap.String("kind", ev.Kind.String()), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "dispatch error"})
	}

	return c.JSON(http.StatusOK, out)
}

// enqueue publishes the event for the worker.
func (h *handlers) enqueue(c echo.Context) error {
	if h.deps.Publisher == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "async ingest not configured"})
	}

	ev, err := bindEvent(c)
	if err != nil {
		return badRequest(c, err)
	}

	env := model.Envelope{ID: util.NewID(), Event: ev}
	b, err := json.Marshal(env)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "encode error"})
	}

	key := []byte(string(ev.Kind) + ":" + ev.DedupKey())
	if err := h.deps.Publisher.Publish(c.Request().Context(), key, b); err != nil {
		h.log.Error("publish failed", zap.String("envelope_id", env.ID), zap.Error(err))
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "queue unavailable"})
	}

	return c.JSON(http.StatusAccepted, map[string]any{
		"enqueued": true,
		"id":       env.ID,
		"kind":     ev.Kind.String(),
	})
}

type providersResp struct {
	Email      any   `json:"email"`
	Conversion *bool `json:"conversion_configured,omitempty"`
}

func (h *handlers) providers(c echo.Context) error {
	var resp providersResp
	if h.deps.Providers != nil {
		resp.Email = h.deps.Providers.Status()
	}
	if h.deps.Conversion != nil {
		ok := h.deps.Conversion.Configured()
		resp.Conversion = &ok
	}
	return c.JSON(http.StatusOK, resp)
}

package events

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"shopnav/internal/app/server/api/http/middleware/auth"
	"shopnav/internal/domain/event"
)

type Handler struct {
	service    event.Servicer
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(service event.Servicer, log *slog.Logger, middleware huma.Middlewares) *Handler {
	return &Handler{
		service:    service,
		log:        log,
		middleware: middleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.ingestOp(), h.ingest)
}

func (h *Handler) ingest(ctx context.Context, input *ingestInput) (*ingestOutput, error) {
	userID, ok := auth.GetUserID(ctx)
	if !ok {
		return nil, huma.Error401Unauthorized("Unauthorized")
	}

	resp, err := h.service.Ingest(ctx, userID, input.Body.Events)
	if err != nil {
		if errors.Is(err, event.ErrEmptyBatch) || errors.Is(err, event.ErrBatchTooLarge) {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		h.log.Error("failed to ingest events",
			slog.Int("principal_id", userID),
			slog.Int("events", len(input.Body.Events)),
			slog.String("error", err.Error()),
		)
		return nil, huma.Error500InternalServerError("failed to ingest events")
	}

	return &ingestOutput{Body: resp}, nil
}

package pack

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"shopnav/internal/domain/pack"
)

type Handler struct {
	service    pack.Servicer
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(service pack.Servicer, log *slog.Logger, middleware huma.Middlewares) *Handler {
	return &Handler{
		service:    service,
		log:        log,
		middleware: middleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.getPackOp(), h.getPack)
}

func (h *Handler) getPack(ctx context.Context, input *getPackInput) (*getPackOutput, error) {
	delta, err := h.service.GetDelta(ctx, input.StoreID, input.Since)
	if err != nil {
		switch {
		case errors.Is(err, pack.ErrStoreNotFound):
			return nil, huma.Error404NotFound("store not found")
		case errors.Is(err, pack.ErrInvalidStoreID):
			return nil, huma.Error422UnprocessableEntity(err.Error())
		default:
			h.log.Error("failed to build pack delta",
				slog.Int64("store_id", input.StoreID),
				slog.String("error", err.Error()),
			)
			return nil, huma.Error500InternalServerError("failed to build pack")
		}
	}

	return &getPackOutput{Body: delta}, nil
}

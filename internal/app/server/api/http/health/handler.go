package health

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"
)

// Pinger проверяет доступность хранилища
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	db         Pinger
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(db Pinger, log *slog.Logger, middleware huma.Middlewares) *Handler {
	return &Handler{
		db:         db,
		log:        log,
		middleware: middleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.healthCheckOp(), h.healthCheck)
}

func (h *Handler) healthCheck(ctx context.Context, _ *Input) (*Output, error) {
	database := "unchecked"
	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			h.log.Error("database is unavailable", slog.String("error", err.Error()))
			return nil, huma.Error503ServiceUnavailable("database is unavailable")
		}
		database = "up"
	}

	return &Output{
		Body: Response{
			Status:     "OK",
			Database:   database,
			ServerTime: time.Now().UTC(),
		},
	}, nil
}

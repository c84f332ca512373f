// GET  /api/v1/health  # Проверка живости (публичный)
// GET  /pack           # Дельта справочников магазина (auth)
// POST /events         # Прием пользовательских событий (auth)

package api

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"golang.org/x/exp/slog"

	"shopnav/internal/app/server/api/http/events"
	healthAPI "shopnav/internal/app/server/api/http/health"
	"shopnav/internal/app/server/api/http/middleware"
	"shopnav/internal/app/server/api/http/middleware/auth"
	"shopnav/internal/app/server/api/http/middleware/logger"
	packAPI "shopnav/internal/app/server/api/http/pack"
	"shopnav/internal/app/server/config"
	"shopnav/internal/domain/event"
	"shopnav/internal/domain/pack"
	"shopnav/internal/domain/session"
	"shopnav/internal/infrastructure/storage/postgres"
)

// Services доменные сервисы, которые обслуживает API
type Services struct {
	Pack    pack.Servicer
	Event   event.Servicer
	Session session.Servicer
	Health  healthAPI.Pinger
}

// NewServices собирает сервисы поверх хранилища PostgreSQL
func NewServices(storage *postgres.Storage, cfg *config.Config, log *slog.Logger) *Services {
	return &Services{
		Pack: pack.NewService(postgres.NewPackRepository(storage, log), log),
		Event: event.NewService(postgres.NewEventRepository(storage, log), log, &event.ServiceConfig{
			MaxBatchSize: cfg.Events.MaxBatchSize,
		}),
		Session: session.NewService(postgres.NewSessionRepository(storage, log), log),
		Health:  storage.Pool(),
	}
}

// New создает *chi.Mux с ВСЕМИ операциями через huma.Register
func New(services *Services, log *slog.Logger) *chi.Mux {
	mux := chi.NewMux()

	cfg := huma.DefaultConfig("Shopnav Sync API", "1.0.0")
	cfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {Type: "http", Scheme: "bearer"},
	}

	API := humachi.New(mux, cfg)
	register(API, services, log)

	return mux
}

func register(api huma.API, services *Services, log *slog.Logger) {
	authMW := auth.New(api, services.Session, log)
	loggerMW := logger.New(log)
	middlewares := middleware.NewContainer(loggerMW.Middleware())

	healthAPI.NewHandler(services.Health, log, middlewares.Chain()).SetupRoutes(api)
	packAPI.NewHandler(services.Pack, log, middlewares.Chain(authMW.Middleware())).SetupRoutes(api)
	events.NewHandler(services.Event, log, middlewares.Chain(authMW.Middleware())).SetupRoutes(api)
}

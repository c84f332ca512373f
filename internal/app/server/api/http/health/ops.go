package health

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (h *Handler) healthCheckOp() huma.Operation {
	return huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/v1/health",
		Summary:     "Liveness and database check",
		Description: "Pings PostgreSQL; 503 if the database is unreachable. Used by the client `token check` command.",
		Tags:        []string{"health"},
		Middlewares: h.middleware,
	}
}

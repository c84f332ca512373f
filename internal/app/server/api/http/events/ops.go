package events

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (h *Handler) ingestOp() huma.Operation {
	return huma.Operation{
		OperationID: "events-ingest",
		Method:      http.MethodPost,
		Path:        "/events",
		Summary:     "Прием пакета пользовательских событий",
		Description: "Идемпотентно по id события. Отклоненные события перечислены в rejected и не должны отправляться повторно.",
		Tags:        []string{"events"},
		Security:    []map[string][]string{{"bearer": {}}},
		Errors:      []int{http.StatusUnauthorized, http.StatusUnprocessableEntity},
		Middlewares: h.middleware,
	}
}

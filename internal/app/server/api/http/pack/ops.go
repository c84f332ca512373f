package pack

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (h *Handler) getPackOp() huma.Operation {
	return huma.Operation{
		OperationID: "pack-get",
		Method:      http.MethodGet,
		Path:        "/pack",
		Summary:     "Дельта справочников магазина",
		Description: "Возвращает изменения с версии since или полный снимок, если версия пустая или неизвестна.",
		Tags:        []string{"pack"},
		Security:    []map[string][]string{{"bearer": {}}},
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
		Middlewares: h.middleware,
	}
}

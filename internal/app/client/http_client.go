package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/exp/slog"

	"shopnav/internal/app/client/config"
	"shopnav/internal/domain/event"
	"shopnav/internal/domain/pack"
)

var (
	// ErrUnauthorized сервер не принял токен, повтор не поможет
	ErrUnauthorized = errors.New("требуется повторная авторизация")
	// ErrRejected сервер счел содержимое запроса некорректным (400, 422)
	ErrRejected = errors.New("запрос отклонен сервером")
	// ErrRefused сервер отказал по причине, не связанной с содержимым (404, 413 и прочие 4xx).
	// События при этом остаются в очереди.
	ErrRefused = errors.New("сервер отказал в обработке запроса")
)

const maxErrorBody = 4 << 10

// StatusError ответ сервера с неуспешным статусом
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return "сервер вернул статус " + strconv.Itoa(e.Code)
	}
	return fmt.Sprintf("сервер вернул статус %d: %s", e.Code, e.Body)
}

type httpClient struct {
	client    *http.Client
	log       *slog.Logger
	baseURL   string
	userAgent string

	mu    sync.RWMutex
	token string
}

func NewHTTPClient(cfg *config.Config, log *slog.Logger) *httpClient {
	client := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			MaxIdleConnsPerHost: 2,
		},
	}

	return &httpClient{
		client:    client,
		log:       log.With(slog.String("component", "http_client")),
		baseURL:   cfg.BaseURL(),
		userAgent: "Shopnav-Client/1.0",
	}
}

// SetToken устанавливает токен аутентификации
func (h *httpClient) SetToken(token string) {
	h.mu.Lock()
	h.token = token
	h.mu.Unlock()
}

// HealthCheck проверяет доступность сервера
func (h *httpClient) HealthCheck(ctx context.Context) error {
	resp, err := h.doRequest(ctx, http.MethodGet, "/api/v1/health", nil)
	if err != nil {
		return err
	}
	return h.parseResponse(resp, nil)
}

// GetDelta запрашивает дельту пакета с версии since
func (h *httpClient) GetDelta(ctx context.Context, storeID int64, since string) (*pack.Delta, error) {
	q := url.Values{}
	q.Set("storeId", strconv.FormatInt(storeID, 10))
	if since != "" {
		q.Set("since", since)
	}

	resp, err := h.doRequest(ctx, http.MethodGet, "/pack?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	delta := pack.NewDelta()
	if err := h.parseResponse(resp, delta); err != nil {
		return nil, err
	}
	if delta.Version == "" {
		return nil, fmt.Errorf("некорректный ответ сервера: пустая версия пакета")
	}
	return delta, nil
}

// PostEvents отправляет пакет событий
func (h *httpClient) PostEvents(ctx context.Context, events []event.Wire) (*event.IngestResponse, error) {
	resp, err := h.doRequest(ctx, http.MethodPost, "/events", event.IngestRequest{Events: events})
	if err != nil {
		return nil, err
	}

	var out event.IngestResponse
	if err := h.parseResponse(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (h *httpClient) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("ошибка маршалинга тела запроса: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания запроса: %w", err)
	}

	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	h.mu.RLock()
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	h.mu.RUnlock()

	h.log.Debug("Отправка запроса",
		slog.String("method", method),
		slog.String("path", path),
	)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка выполнения запроса: %w", err)
	}

	return resp, nil
}

// parseResponse классифицирует ответ: 401/403 дают ErrUnauthorized, 400/422 дают ErrRejected,
// прочие 4xx кроме 408/429 дают ErrRefused. 5xx, 408, 429 и битое тело считаются временными ошибками
func (h *httpClient) parseResponse(resp *http.Response, result any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{Code: resp.StatusCode, Body: problemDetail(raw)}

		h.log.Debug("Получен ответ с ошибкой", slog.Int("status", resp.StatusCode))

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %w", ErrUnauthorized, statusErr)
		case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
			return fmt.Errorf("%w: %w", ErrRejected, statusErr)
		case resp.StatusCode < http.StatusInternalServerError &&
			resp.StatusCode != http.StatusRequestTimeout &&
			resp.StatusCode != http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", ErrRefused, statusErr)
		default:
			return statusErr
		}
	}

	if result == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("ошибка парсинга ответа: %w", err)
	}
	return nil
}

// problemDetail достает detail из application/problem+json, иначе возвращает тело как есть
func problemDetail(raw []byte) string {
	var problem struct {
		Detail string `json:"detail"`
		Title  string `json:"title"`
	}
	if err := json.Unmarshal(raw, &problem); err == nil {
		if problem.Detail != "" {
			return problem.Detail
		}
		if problem.Title != "" {
			return problem.Title
		}
	}
	return string(bytes.TrimSpace(raw))
}

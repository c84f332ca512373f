package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"shopnav/internal/app/client/config"
	"shopnav/internal/domain/event"
	"shopnav/internal/domain/pack"
)

// ErrNoStore магазин не выбран в конфигурации
var ErrNoStore = errors.New("магазин не выбран: задайте STORE_ID")

type App struct {
	config     *config.Config
	log        *slog.Logger
	httpClient *httpClient
	replica    *Replica
	sync       *SyncService
	now        func() time.Time
}

// New собирает клиент: реплику, транспорт и оркестратор синхронизации
func New(cfg *config.Config, log *slog.Logger) (*App, error) {
	replica, err := OpenReplica(cfg.DataPath, log)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации хранилища: %w", err)
	}

	httpCl := NewHTTPClient(cfg, log)

	app := &App{
		config:     cfg,
		log:        log,
		httpClient: httpCl,
		replica:    replica,
		now:        time.Now,
	}

	app.sync = NewSyncService(replica, httpCl, SyncConfig{
		StoreID:     cfg.StoreID,
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		BatchSize:   cfg.BatchSize,
		Retention:   time.Duration(cfg.RetentionDays) * 24 * time.Hour,
	}, log)

	// Загружаем токен если он есть
	if token, err := app.GetToken(); err == nil {
		httpCl.SetToken(token)
		log.Debug("Токен загружен из файла")
	}

	return app, nil
}

func (a *App) Close() error {
	return a.replica.Close()
}

// Sync запускает синхронизацию вручную
func (a *App) Sync(ctx context.Context) (*SyncStats, error) {
	if a.config.StoreID <= 0 {
		return nil, ErrNoStore
	}
	return a.sync.Sync(ctx)
}

// Run синхронизирует по расписанию до отмены ctx
func (a *App) Run(ctx context.Context) error {
	if a.config.StoreID <= 0 {
		return ErrNoStore
	}

	a.log.Info("Клиент запущен",
		slog.String("server", a.config.ServerAddress),
		slog.Int64("store_id", a.config.StoreID),
		slog.Duration("interval", a.config.SyncInterval),
	)
	a.sync.Run(ctx, a.config.SyncInterval)
	return nil
}

// Status последний сохраненный итог синхронизации и состояние outbox
func (a *App) Status(ctx context.Context) (SyncStatus, OutboxCounts, string, error) {
	st, err := a.replica.LoadSyncStatus(ctx)
	if err != nil {
		return SyncStatus{}, OutboxCounts{}, "", err
	}
	if a.sync.State() == StateSyncing {
		st.State = StateSyncing
	}

	counts, err := a.replica.OutboxCounts(ctx)
	if err != nil {
		return SyncStatus{}, OutboxCounts{}, "", err
	}

	version, err := a.replica.PackVersion(ctx)
	if err != nil {
		return SyncStatus{}, OutboxCounts{}, "", err
	}
	return st, counts, version, nil
}

// RecordFound пользователь нашел товар в зоне
func (a *App) RecordFound(ctx context.Context, productID, zoneID int64) (string, error) {
	if a.config.StoreID <= 0 {
		return "", ErrNoStore
	}
	return a.enqueue(ctx, event.Found{ProductID: productID, StoreID: a.config.StoreID, ZoneID: zoneID})
}

// RecordNotFound пользователь не нашел товар
func (a *App) RecordNotFound(ctx context.Context, productID int64) (string, error) {
	if a.config.StoreID <= 0 {
		return "", ErrNoStore
	}
	return a.enqueue(ctx, event.NotFound{ProductID: productID, StoreID: a.config.StoreID})
}

// RecordScan пользователь отсканировал штрихкод в зоне
func (a *App) RecordScan(ctx context.Context, ean string, zoneID int64) (string, error) {
	if a.config.StoreID <= 0 {
		return "", ErrNoStore
	}
	return a.enqueue(ctx, event.ScannedEAN{EAN: ean, StoreID: a.config.StoreID, ZoneID: zoneID})
}

// enqueue пишет событие только в outbox, без обращения к сети
func (a *App) enqueue(ctx context.Context, payload event.Payload) (string, error) {
	ev, err := event.New(uuid.NewString(), a.now().UTC(), payload)
	if err != nil {
		return "", err
	}
	if err := a.replica.EnqueueEvent(ctx, ev); err != nil {
		return "", err
	}

	a.log.Debug("Событие добавлено в outbox",
		slog.String("event_id", ev.ID),
		slog.String("type", string(ev.Type())),
	)
	return ev.ID, nil
}

// Quarantined события, отклоненные сервером
func (a *App) Quarantined(ctx context.Context, limit int) ([]OutboxEntry, error) {
	return a.replica.ListQuarantined(ctx, limit)
}

// Pending события, ожидающие отправки
func (a *App) Pending(ctx context.Context, limit int) ([]OutboxEntry, error) {
	return a.replica.ListPending(ctx, limit)
}

// Location предполагаемая зона товара в выбранном магазине
func (a *App) Location(ctx context.Context, productID int64) (*pack.ProductLocation, error) {
	if a.config.StoreID <= 0 {
		return nil, ErrNoStore
	}
	return a.replica.GetLocation(ctx, productID, a.config.StoreID)
}

// Zones зоны выбранного магазина
func (a *App) Zones(ctx context.Context) ([]pack.Zone, error) {
	if a.config.StoreID <= 0 {
		return nil, ErrNoStore
	}
	return a.replica.ListZones(ctx, a.config.StoreID)
}

// ProductByEAN товар из локальной реплики
func (a *App) ProductByEAN(ctx context.Context, ean string) (*pack.Product, error) {
	return a.replica.FindProductByEAN(ctx, ean)
}

// CheckConnection проверяет соединение с сервером
func (a *App) CheckConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return a.httpClient.HealthCheck(ctx)
}

// GetToken возвращает сохраненный токен
func (a *App) GetToken() (string, error) {
	tokenBytes, err := os.ReadFile(a.config.TokenPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("токен не найден. Выполните: shopnav token set")
		}
		return "", fmt.Errorf("ошибка чтения токена: %w", err)
	}
	token := strings.TrimSpace(string(tokenBytes))
	if token == "" {
		return "", fmt.Errorf("токен пуст. Выполните: shopnav token set")
	}
	return token, nil
}

// SaveToken сохраняет токен аутентификации
func (a *App) SaveToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("токен не может быть пустым")
	}
	if err := os.WriteFile(a.config.TokenPath, []byte(token), 0600); err != nil {
		return fmt.Errorf("ошибка сохранения токена: %w", err)
	}

	a.httpClient.SetToken(token)
	return nil
}

// ClearToken удаляет токен
func (a *App) ClearToken() error {
	if err := os.Remove(a.config.TokenPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления токена: %w", err)
	}
	a.httpClient.SetToken("")
	return nil
}

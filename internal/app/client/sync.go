package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/exp/slog"

	"shopnav/internal/domain/event"
	"shopnav/internal/domain/pack"
)

var (
	// ErrSyncInProgress синхронизация уже идет, новый запуск проигнорирован
	ErrSyncInProgress = errors.New("синхронизация уже выполняется")
	// ErrLocalStorage ошибка локальной базы; цикл прерывается без повторов
	ErrLocalStorage = errors.New("ошибка локального хранилища")
	// ErrNoProgress сервер ответил успехом, но не принял и не отклонил ни одного события
	ErrNoProgress = errors.New("сервер не принял ни одного события")
)

// SyncState состояние синхронизации
type SyncState string

const (
	StateIdle    SyncState = "idle"
	StateSyncing SyncState = "syncing"
	StateOK      SyncState = "ok"
	StateFailed  SyncState = "failed"
)

// SyncStats статистика одной синхронизации
type SyncStats struct {
	Tables     map[string]pack.TableCounts `json:"tables"`
	Accepted   int                         `json:"accepted"`
	Rejected   int                         `json:"rejected"`
	Attempts   int                         `json:"attempts"`
	DurationMS int64                       `json:"duration_ms"`
	Version    string                      `json:"version"`
}

// SyncStatus итог последней синхронизации, доступен для показа пользователю
type SyncStatus struct {
	State       SyncState  `json:"state"`
	LastAttempt time.Time  `json:"last_attempt"`
	LastSuccess time.Time  `json:"last_success"`
	LastError   string     `json:"last_error,omitempty"`
	Stats       *SyncStats `json:"stats,omitempty"`
}

// Transport сетевая часть синхронизации
type Transport interface {
	GetDelta(ctx context.Context, storeID int64, since string) (*pack.Delta, error)
	PostEvents(ctx context.Context, events []event.Wire) (*event.IngestResponse, error)
}

// LocalStore локальная часть синхронизации
type LocalStore interface {
	PackVersion(ctx context.Context) (string, error)
	SetPackVersion(ctx context.Context, version string) error
	ApplyDelta(ctx context.Context, d *pack.Delta) error
	ListPending(ctx context.Context, limit int) ([]OutboxEntry, error)
	MarkSent(ctx context.Context, ids []string, at time.Time) error
	Quarantine(ctx context.Context, id, reason string, at time.Time) error
	PruneSent(ctx context.Context, before time.Time) (int64, error)
	MarkSyncStarted(ctx context.Context, at time.Time) error
	SaveSyncStatus(ctx context.Context, st SyncStatus) error
}

// SyncConfig конфигурация синхронизации
type SyncConfig struct {
	StoreID     int64         `json:"store_id"`
	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay"`
	BatchSize   int           `json:"batch_size"`
	Retention   time.Duration `json:"retention"`
}

// SyncService оркестратор: pull дельты, применение, отправка outbox, продвижение курсора
type SyncService struct {
	store     LocalStore
	transport Transport
	log       *slog.Logger
	config    SyncConfig

	running sync.Mutex

	mu    sync.RWMutex
	state SyncState

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSyncService создает оркестратор синхронизации
func NewSyncService(store LocalStore, transport Transport, cfg SyncConfig, log *slog.Logger) *SyncService {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 100
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}

	return &SyncService{
		store:     store,
		transport: transport,
		log:       log.With(slog.String("component", "sync")),
		config:    cfg,
		state:     StateIdle,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// State текущее состояние
func (s *SyncService) State() SyncState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *SyncService) setState(st SyncState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Sync выполняет одну синхронизацию с повторами. Пока она идет,
// повторный вызов сразу возвращает ErrSyncInProgress.
func (s *SyncService) Sync(ctx context.Context) (*SyncStats, error) {
	if !s.running.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer s.running.Unlock()

	start := s.now()
	s.setState(StateSyncing)
	if err := s.store.MarkSyncStarted(ctx, start); err != nil {
		err = localErr(err)
		s.finish(ctx, start, nil, err)
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		stats, err := s.cycle(ctx)
		if err == nil {
			stats.Attempts = attempt
			stats.DurationMS = s.now().Sub(start).Milliseconds()
			s.finish(ctx, start, stats, nil)
			return stats, nil
		}
		lastErr = err

		if !retryable(ctx, err) || attempt == s.config.MaxAttempts {
			break
		}

		delay := time.Duration(attempt) * s.config.BaseDelay
		s.log.Warn("sync attempt failed, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		if err := s.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	s.finish(ctx, start, nil, lastErr)
	return nil, lastErr
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	for _, fatal := range []error{ErrUnauthorized, ErrRejected, ErrRefused, ErrLocalStorage} {
		if errors.Is(err, fatal) {
			return false
		}
	}
	return true
}

func (s *SyncService) finish(ctx context.Context, start time.Time, stats *SyncStats, err error) {
	st := SyncStatus{LastAttempt: start, Stats: stats}
	if err != nil {
		st.State = StateFailed
		st.LastError = err.Error()
		s.log.Error("sync failed", slog.String("error", err.Error()))
	} else {
		st.State = StateOK
		st.LastSuccess = s.now()
		s.log.Info("sync finished",
			slog.String("version", stats.Version),
			slog.Int("attempts", stats.Attempts),
			slog.Int("accepted", stats.Accepted),
			slog.Int("rejected", stats.Rejected),
			slog.Int64("duration_ms", stats.DurationMS),
			slog.Any("tables", stats.Tables),
		)
	}
	s.setState(st.State)

	// статус пишется и после отмены контекста, иначе последняя ошибка потеряется
	saveCtx := context.WithoutCancel(ctx)
	if err := s.store.SaveSyncStatus(saveCtx, st); err != nil {
		s.log.Error("failed to save sync status", slog.String("error", err.Error()))
	}
}

// cycle один полный проход. Курсор сохраняется только после того, как outbox опустошен.
func (s *SyncService) cycle(ctx context.Context) (*SyncStats, error) {
	since, err := s.store.PackVersion(ctx)
	if err != nil {
		return nil, localErr(err)
	}

	delta, err := s.transport.GetDelta(ctx, s.config.StoreID, since)
	if err != nil {
		return nil, fmt.Errorf("получение пакета: %w", err)
	}

	if err := s.store.ApplyDelta(ctx, delta); err != nil {
		return nil, localErr(err)
	}

	accepted, rejected, err := s.drain(ctx)
	if err != nil {
		return nil, err
	}

	version := delta.Version
	if s.cursorRegresses(since, delta) {
		s.log.Warn("incremental pack is older than local cursor, keeping cursor",
			slog.String("since", since),
			slog.String("version", delta.Version),
		)
		version = since
	} else if err := s.store.SetPackVersion(ctx, version); err != nil {
		return nil, localErr(err)
	}

	s.prune(ctx)

	return &SyncStats{
		Tables:   delta.Counts(),
		Accepted: accepted,
		Rejected: rejected,
		Version:  version,
	}, nil
}

// cursorRegresses true, если инкрементальная дельта несет версию старше сохраненной.
// Снимок может откатить курсор: реплика им полностью заменена.
func (s *SyncService) cursorRegresses(since string, delta *pack.Delta) bool {
	if delta.Full || since == "" {
		return false
	}
	prev, err := pack.ParseVersion(since)
	if err != nil {
		return false
	}
	next, err := pack.ParseVersion(delta.Version)
	if err != nil {
		return false
	}
	return prev.StoreID == next.StoreID && !next.Covers(prev)
}

// drain отправляет outbox пачками, пока в нем есть события
func (s *SyncService) drain(ctx context.Context) (accepted, rejected int, err error) {
	for {
		pending, err := s.store.ListPending(ctx, s.config.BatchSize)
		if err != nil {
			return accepted, rejected, localErr(err)
		}
		if len(pending) == 0 {
			return accepted, rejected, nil
		}

		a, r, err := s.send(ctx, pending)
		accepted += a
		rejected += r
		if err != nil {
			return accepted, rejected, err
		}
		if a == 0 && r == 0 {
			return accepted, rejected, ErrNoProgress
		}
	}
}

func (s *SyncService) send(ctx context.Context, batch []OutboxEntry) (accepted, rejected int, err error) {
	wires := make([]event.Wire, len(batch))
	for i, e := range batch {
		wires[i] = e.Wire
	}

	resp, err := s.transport.PostEvents(ctx, wires)
	if err != nil {
		if errors.Is(err, ErrRejected) && len(batch) > 1 {
			// сервер отверг пачку целиком: ищем виновника поштучно
			return s.sendOneByOne(ctx, batch)
		}
		if errors.Is(err, ErrRejected) {
			if qerr := s.store.Quarantine(ctx, batch[0].Wire.ID, err.Error(), s.now()); qerr != nil {
				return 0, 0, localErr(qerr)
			}
			s.log.Warn("event quarantined", slog.String("event_id", batch[0].Wire.ID), slog.String("reason", err.Error()))
			return 0, 1, nil
		}
		return 0, 0, fmt.Errorf("отправка событий: %w", err)
	}

	return s.handleResponse(ctx, batch, resp)
}

func (s *SyncService) sendOneByOne(ctx context.Context, batch []OutboxEntry) (accepted, rejected int, err error) {
	for _, e := range batch {
		a, r, err := s.send(ctx, []OutboxEntry{e})
		accepted += a
		rejected += r
		if err != nil {
			return accepted, rejected, err
		}
	}
	return accepted, rejected, nil
}

// handleResponse отмечает принятые события и помещает отклоненные в карантин.
// Если сервер не прислал accepted_ids, принятыми считаются первые accepted неотклоненных событий.
func (s *SyncService) handleResponse(ctx context.Context, batch []OutboxEntry, resp *event.IngestResponse) (int, int, error) {
	rejectedIDs := make(map[string]string, len(resp.Rejected))
	for _, r := range resp.Rejected {
		rejectedIDs[r.ID] = r.Reason
	}

	ids := resp.AcceptedIDs
	if len(ids) == 0 && resp.Accepted > 0 {
		for _, e := range batch {
			if len(ids) == resp.Accepted {
				break
			}
			if _, ok := rejectedIDs[e.Wire.ID]; !ok {
				ids = append(ids, e.Wire.ID)
			}
		}
	}

	now := s.now()
	if err := s.store.MarkSent(ctx, ids, now); err != nil {
		return 0, 0, localErr(err)
	}

	quarantined := 0
	for _, e := range batch {
		reason, ok := rejectedIDs[e.Wire.ID]
		if !ok {
			continue
		}
		if err := s.store.Quarantine(ctx, e.Wire.ID, reason, now); err != nil {
			return len(ids), quarantined, localErr(err)
		}
		s.log.Warn("event quarantined", slog.String("event_id", e.Wire.ID), slog.String("reason", reason))
		quarantined++
	}

	return len(ids), quarantined, nil
}

func (s *SyncService) prune(ctx context.Context) {
	if s.config.Retention <= 0 {
		return
	}
	n, err := s.store.PruneSent(ctx, s.now().Add(-s.config.Retention))
	if err != nil {
		s.log.Warn("failed to prune outbox", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		s.log.Debug("outbox pruned", slog.Int64("removed", n))
	}
}

// Run запускает синхронизацию сразу и затем с интервалом interval, пока ctx не отменен
func (s *SyncService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduled sync stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *SyncService) runOnce(ctx context.Context) {
	if _, err := s.Sync(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
		s.log.Debug("scheduled sync failed", slog.String("error", err.Error()))
	}
}

func localErr(err error) error {
	if errors.Is(err, ErrLocalStorage) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrLocalStorage, err)
}

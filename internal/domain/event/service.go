package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/exp/slog"

	"shopnav/internal/domain/confidence"
)

const defaultMaxBatchSize = 500

// Servicer интерфейс сервиса приема событий
type Servicer interface {
	// Ingest принимает пакет событий от пользователя principalID
	Ingest(ctx context.Context, principalID int, events []Wire) (*IngestResponse, error)
}

// ServiceConfig конфигурация сервиса приема событий
type ServiceConfig struct {
	MaxBatchSize int `json:"max_batch_size"`
}

// Service реализация сервиса приема событий
type Service struct {
	repo   Repository
	log    *slog.Logger
	config *ServiceConfig
	now    func() time.Time
}

// NewService создает новый сервис приема событий
func NewService(repo Repository, log *slog.Logger, config *ServiceConfig) *Service {
	if config == nil {
		config = &ServiceConfig{MaxBatchSize: defaultMaxBatchSize}
	}
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = defaultMaxBatchSize
	}

	return &Service{
		repo:   repo,
		log:    log.With(slog.String("component", "event_service")),
		config: config,
		now:    time.Now,
	}
}

type outcome int

const (
	outcomeApplied outcome = iota
	outcomeDuplicate
	outcomeUnresolved
)

// Ingest обрабатывает события по порядку, каждое в своей транзакции.
//
// Отклоненные события пропускаются и попадают в Rejected. Ошибка хранилища
// останавливает обработку: если ничего еще не принято, возвращается ошибка,
// иначе возвращается принятый префикс, остаток клиент отправит повторно.
func (s *Service) Ingest(ctx context.Context, principalID int, events []Wire) (*IngestResponse, error) {
	if len(events) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(events) > s.config.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(events), s.config.MaxBatchSize)
	}

	resp := &IngestResponse{
		AcceptedIDs: make([]string, 0, len(events)),
		Rejected:    []Rejection{},
	}
	var applied, duplicates, unresolved int

	for _, w := range events {
		ev, err := Parse(w)
		if err != nil {
			resp.Rejected = append(resp.Rejected, Rejection{ID: w.ID, Reason: err.Error()})
			continue
		}

		out, err := s.ingestOne(ctx, principalID, ev)
		if err != nil {
			if errors.Is(err, ErrInvalidEvent) {
				resp.Rejected = append(resp.Rejected, Rejection{ID: ev.ID, Reason: err.Error()})
				continue
			}
			if resp.Accepted == 0 {
				return nil, fmt.Errorf("failed to ingest event %s: %w", ev.ID, err)
			}
			s.log.Warn("ingest stopped, returning accepted prefix",
				slog.String("event_id", ev.ID),
				slog.Int("accepted", resp.Accepted),
				slog.String("error", err.Error()),
			)
			break
		}

		switch out {
		case outcomeApplied:
			applied++
		case outcomeDuplicate:
			duplicates++
		case outcomeUnresolved:
			unresolved++
		}
		resp.Accepted++
		resp.AcceptedIDs = append(resp.AcceptedIDs, ev.ID)
	}

	s.log.Info("events ingested",
		slog.Int("principal_id", principalID),
		slog.Int("submitted", len(events)),
		slog.Int("accepted", resp.Accepted),
		slog.Int("applied", applied),
		slog.Int("duplicates", duplicates),
		slog.Int("unresolved_ean", unresolved),
		slog.Int("rejected", len(resp.Rejected)),
	)

	return resp, nil
}

func (s *Service) ingestOne(ctx context.Context, principalID int, ev Event) (outcome, error) {
	var out outcome

	err := s.repo.InTx(ctx, func(tx Tx) error {
		target, err := s.resolve(ctx, tx, ev)
		if err != nil {
			return err
		}

		rec := Record{Event: ev, PrincipalID: principalID, ReceivedAt: s.now().UTC()}
		if target.resolved {
			rec.ProductID = &target.productID
		}

		inserted, err := tx.Insert(ctx, rec)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		if !inserted {
			out = outcomeDuplicate
			return nil
		}
		if !target.resolved {
			// событие сохраняется для аудита, но расположение не меняет
			out = outcomeUnresolved
			return nil
		}

		if err := tx.CheckTarget(ctx, target.productID, target.storeID, target.zoneID); err != nil {
			if isTargetError(err) {
				return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
			}
			return fmt.Errorf("check target: %w", err)
		}

		prior, err := tx.Location(ctx, target.productID, target.storeID)
		if err != nil {
			return fmt.Errorf("load location: %w", err)
		}

		next := confidence.Fold(prior, target.signal)

		revision, err := tx.BumpStoreVersion(ctx, target.storeID)
		if err != nil {
			return fmt.Errorf("bump store version: %w", err)
		}

		if err := tx.UpsertLocation(ctx, target.productID, target.storeID, next, revision); err != nil {
			return fmt.Errorf("upsert location: %w", err)
		}

		out = outcomeApplied
		return nil
	})

	return out, err
}

type target struct {
	resolved  bool
	productID int64
	storeID   int64
	zoneID    *int64
	signal    confidence.Signal
}

func (s *Service) resolve(ctx context.Context, tx Tx, ev Event) (target, error) {
	switch p := ev.Payload.(type) {
	case Found:
		zone := p.ZoneID
		return target{
			resolved:  true,
			productID: p.ProductID,
			storeID:   p.StoreID,
			zoneID:    &zone,
			signal:    confidence.Signal{Kind: confidence.Found, ZoneID: p.ZoneID},
		}, nil
	case NotFound:
		return target{
			resolved:  true,
			productID: p.ProductID,
			storeID:   p.StoreID,
			signal:    confidence.Signal{Kind: confidence.NotFound},
		}, nil
	case ScannedEAN:
		productID, ok, err := tx.ProductByEAN(ctx, p.EAN)
		if err != nil {
			return target{}, fmt.Errorf("resolve ean: %w", err)
		}
		zone := p.ZoneID
		return target{
			resolved:  ok,
			productID: productID,
			storeID:   p.StoreID,
			zoneID:    &zone,
			signal:    confidence.Signal{Kind: confidence.Found, ZoneID: p.ZoneID},
		}, nil
	default:
		return target{}, fmt.Errorf("%w: %w", ErrInvalidEvent, ErrUnknownType)
	}
}

func isTargetError(err error) bool {
	return errors.Is(err, ErrUnknownProduct) ||
		errors.Is(err, ErrUnknownStore) ||
		errors.Is(err, ErrUnknownZone)
}

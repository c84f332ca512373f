package pack

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/exp/slog"
)

// Servicer интерфейс сервиса пакетов
type Servicer interface {
	// GetDelta возвращает изменения справочников магазина с версии since.
	// Пустой или нераспознанный since означает полный снимок.
	GetDelta(ctx context.Context, storeID int64, since string) (*Delta, error)
}

// Service реализация сервиса пакетов
type Service struct {
	repo Repository
	log  *slog.Logger
}

// NewService создает новый сервис пакетов
func NewService(repo Repository, log *slog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With(slog.String("component", "pack_service")),
	}
}

// GetDelta возвращает дельту для магазина
func (s *Service) GetDelta(ctx context.Context, storeID int64, since string) (*Delta, error) {
	if storeID <= 0 {
		return nil, ErrInvalidStoreID
	}

	delta := NewDelta()
	err := s.repo.ReadSnapshot(ctx, func(r Reader) error {
		head, err := r.Head(ctx, storeID)
		if err != nil {
			return err
		}

		base, full := s.resolveSince(storeID, since, head)
		if err := s.collect(ctx, r, storeID, base, full, delta); err != nil {
			return err
		}

		delta.Version = head.String()
		delta.Full = full
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read pack delta: %w", err)
	}

	s.log.Debug("pack delta built",
		slog.Int64("store_id", storeID),
		slog.String("since", since),
		slog.String("version", delta.Version),
		slog.Bool("full", delta.Full),
	)

	return delta, nil
}

// resolveSince решает, можно ли отдать инкрементальную дельту.
// Токен чужого магазина или токен, опережающий сервер (например, после восстановления БД),
// считается нераспознанным.
func (s *Service) resolveSince(storeID int64, since string, head Version) (Version, bool) {
	if since == "" {
		return Version{}, true
	}

	v, err := ParseVersion(since)
	if err != nil {
		s.log.Info("unrecognized pack version, sending snapshot", slog.String("since", since))
		return Version{}, true
	}
	if v.StoreID != storeID || !head.Covers(v) {
		s.log.Info("stale or foreign pack version, sending snapshot",
			slog.String("since", since),
			slog.String("head", head.String()),
		)
		return Version{}, true
	}

	return v, false
}

func (s *Service) collect(ctx context.Context, r Reader, storeID int64, base Version, full bool, delta *Delta) error {
	var err error

	if delta.Stores.Upserts, err = r.Stores(ctx, base.Global); err != nil {
		return fmt.Errorf("stores: %w", err)
	}
	if delta.Zones.Upserts, err = r.Zones(ctx, storeID, base.Global); err != nil {
		return fmt.Errorf("zones: %w", err)
	}
	if delta.Products.Upserts, err = r.Products(ctx, base.Global); err != nil {
		return fmt.Errorf("products: %w", err)
	}
	if delta.ProductLocations.Upserts, err = r.Locations(ctx, storeID, base.Store); err != nil {
		return fmt.Errorf("product locations: %w", err)
	}
	normalize(delta)

	if full {
		return nil
	}

	tombstones, err := r.Tombstones(ctx, storeID, base)
	if err != nil {
		return fmt.Errorf("tombstones: %w", err)
	}
	return applyTombstones(delta, tombstones)
}

func applyTombstones(delta *Delta, tombstones []Tombstone) error {
	for _, t := range tombstones {
		if t.Table == TableProductLocations {
			delta.ProductLocations.Deletes = append(delta.ProductLocations.Deletes, t.Key)
			continue
		}

		id, err := strconv.ParseInt(t.Key, 10, 64)
		if err != nil {
			return fmt.Errorf("tombstone %s/%s: %w", t.Table, t.Key, err)
		}

		switch t.Table {
		case TableStores:
			delta.Stores.Deletes = append(delta.Stores.Deletes, id)
		case TableZones:
			delta.Zones.Deletes = append(delta.Zones.Deletes, id)
		case TableProducts:
			delta.Products.Deletes = append(delta.Products.Deletes, id)
		default:
			return fmt.Errorf("tombstone for unknown table %q", t.Table)
		}
	}
	return nil
}

// normalize заменяет nil-срезы пустыми
func normalize(d *Delta) {
	if d.Stores.Upserts == nil {
		d.Stores.Upserts = []Store{}
	}
	if d.Zones.Upserts == nil {
		d.Zones.Upserts = []Zone{}
	}
	if d.Products.Upserts == nil {
		d.Products.Upserts = []Product{}
	}
	if d.ProductLocations.Upserts == nil {
		d.ProductLocations.Upserts = []ProductLocation{}
	}
}

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"golang.org/x/exp/slog"

	"shopnav/internal/domain/confidence"
	"shopnav/internal/domain/event"
)

// EventRepository сохраняет принятые события и применяет их к product_locations
type EventRepository struct {
	db  *Storage
	log *slog.Logger
}

func NewEventRepository(db *Storage, log *slog.Logger) *EventRepository {
	return &EventRepository{
		db:  db,
		log: log,
	}
}

// InTx выполняет fn в отдельной транзакции READ COMMITTED.
// Ошибка fn откатывает все, что успело записаться, включая само событие.
func (r *EventRepository) InTx(ctx context.Context, fn func(tx event.Tx) error) error {
	return pgx.BeginFunc(ctx, r.db.Pool(), func(tx pgx.Tx) error {
		return fn(&eventTx{tx: tx})
	})
}

type eventTx struct {
	tx pgx.Tx
}

func (t *eventTx) Insert(ctx context.Context, rec event.Record) (bool, error) {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return false, fmt.Errorf("marshal payload: %w", err)
	}

	tag, err := t.tx.Exec(ctx, `
		INSERT INTO events (id, type, principal_id, store_id, product_id, payload, created_at, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, string(rec.Type()), rec.PrincipalID, rec.Payload.StoreRef(), rec.ProductID,
		payload, rec.CreatedAt, rec.ReceivedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *eventTx) ProductByEAN(ctx context.Context, ean string) (int64, bool, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `SELECT id FROM products WHERE ean = $1`, ean).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return id, true, nil
}

func (t *eventTx) CheckTarget(ctx context.Context, productID, storeID int64, zoneID *int64) error {
	var productOK, storeOK, zoneOK bool
	err := t.tx.QueryRow(ctx, `
		SELECT
			EXISTS (SELECT 1 FROM products WHERE id = $1),
			EXISTS (SELECT 1 FROM stores WHERE id = $2),
			$3::BIGINT IS NULL OR EXISTS (SELECT 1 FROM zones WHERE id = $3 AND store_id = $2)`,
		productID, storeID, zoneID,
	).Scan(&productOK, &storeOK, &zoneOK)
	if err != nil {
		return err
	}

	switch {
	case !productOK:
		return fmt.Errorf("%w: %d", event.ErrUnknownProduct, productID)
	case !storeOK:
		return fmt.Errorf("%w: %d", event.ErrUnknownStore, storeID)
	case !zoneOK:
		return fmt.Errorf("%w: zone %d, store %d", event.ErrUnknownZone, *zoneID, storeID)
	}
	return nil
}

// Location читает запись без блокировки: параллельные события по одному ключу
// разрешаются по принципу "последняя запись побеждает"
func (t *eventTx) Location(ctx context.Context, productID, storeID int64) (*confidence.Location, error) {
	var loc confidence.Location
	err := t.tx.QueryRow(ctx, `
		SELECT zone_id, confidence FROM product_locations
		WHERE product_id = $1 AND store_id = $2`,
		productID, storeID,
	).Scan(&loc.ZoneID, &loc.Confidence)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &loc, nil
}

func (t *eventTx) BumpStoreVersion(ctx context.Context, storeID int64) (int64, error) {
	var revision int64
	err := t.tx.QueryRow(ctx, `
		UPDATE store_versions SET revision = revision + 1
		WHERE store_id = $1
		RETURNING revision`, storeID,
	).Scan(&revision)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: %d", event.ErrUnknownStore, storeID)
		}
		return 0, err
	}
	return revision, nil
}

func (t *eventTx) UpsertLocation(ctx context.Context, productID, storeID int64, loc confidence.Location, revision int64) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO product_locations (product_id, store_id, zone_id, confidence, revision, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (product_id, store_id) DO UPDATE SET
			zone_id    = EXCLUDED.zone_id,
			confidence = EXCLUDED.confidence,
			revision   = EXCLUDED.revision,
			updated_at = EXCLUDED.updated_at`,
		productID, storeID, loc.ZoneID, loc.Confidence, revision,
	)
	return err
}

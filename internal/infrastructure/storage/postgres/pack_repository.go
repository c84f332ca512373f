package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"golang.org/x/exp/slog"

	"shopnav/internal/domain/pack"
)

// PackRepository читает справочники для дельт пакета
type PackRepository struct {
	db  *Storage
	log *slog.Logger
}

func NewPackRepository(db *Storage, log *slog.Logger) *PackRepository {
	return &PackRepository{
		db:  db,
		log: log,
	}
}

// ReadSnapshot выполняет fn в транзакции REPEATABLE READ только для чтения,
// так что курсор и строки дельты берутся из одного снимка
func (r *PackRepository) ReadSnapshot(ctx context.Context, fn func(r pack.Reader) error) error {
	tx, err := r.db.Pool().BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return fmt.Errorf("failed to begin snapshot: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(&packReader{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type packReader struct {
	tx pgx.Tx
}

func (r *packReader) Head(ctx context.Context, storeID int64) (pack.Version, error) {
	v := pack.Version{StoreID: storeID}

	err := r.tx.QueryRow(ctx,
		`SELECT revision FROM store_versions WHERE store_id = $1`, storeID).Scan(&v.Store)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pack.Version{}, pack.ErrStoreNotFound
		}
		return pack.Version{}, fmt.Errorf("failed to read store version: %w", err)
	}

	err = r.tx.QueryRow(ctx, `
		SELECT GREATEST(
			COALESCE((SELECT MAX(rev) FROM stores), 0),
			COALESCE((SELECT MAX(rev) FROM zones), 0),
			COALESCE((SELECT MAX(rev) FROM products), 0),
			COALESCE((SELECT MAX(global_rev) FROM pack_tombstones), 0)
		)`).Scan(&v.Global)
	if err != nil {
		return pack.Version{}, fmt.Errorf("failed to read global revision: %w", err)
	}

	return v, nil
}

func (r *packReader) Stores(ctx context.Context, sinceGlobal int64) ([]pack.Store, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT id, name, address, updated_at
		FROM stores
		WHERE rev > $1
		ORDER BY id`, sinceGlobal)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[pack.Store])
}

func (r *packReader) Zones(ctx context.Context, storeID, sinceGlobal int64) ([]pack.Zone, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT id, store_id, name, aisle, updated_at
		FROM zones
		WHERE store_id = $1 AND rev > $2
		ORDER BY id`, storeID, sinceGlobal)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[pack.Zone])
}

func (r *packReader) Products(ctx context.Context, sinceGlobal int64) ([]pack.Product, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT id, name, brand, COALESCE(ean, ''), updated_at
		FROM products
		WHERE rev > $1
		ORDER BY id`, sinceGlobal)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[pack.Product])
}

func (r *packReader) Locations(ctx context.Context, storeID, sinceStore int64) ([]pack.ProductLocation, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT product_id, store_id, zone_id, confidence, updated_at
		FROM product_locations
		WHERE store_id = $1 AND revision > $2
		ORDER BY product_id`, storeID, sinceStore)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[pack.ProductLocation])
}

func (r *packReader) Tombstones(ctx context.Context, storeID int64, since pack.Version) ([]pack.Tombstone, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT table_name, entity_key, COALESCE(global_rev, store_rev)
		FROM pack_tombstones
		WHERE (table_name IN ('stores', 'products') AND global_rev > $2)
		   OR (table_name = 'zones' AND store_id = $1 AND global_rev > $2)
		   OR (table_name = 'product_locations' AND store_id = $1 AND store_rev > $3)
		ORDER BY id`, storeID, since.Global, since.Store)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[pack.Tombstone])
}

package client

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/exp/slog"

	"shopnav/internal/app/client/migrations"
	"shopnav/internal/domain/event"
	"shopnav/internal/domain/pack"
)

const (
	metaPackVersion     = "pack_version"
	metaSyncState       = "sync_last_status"
	metaSyncLastAttempt = "sync_last_attempt"
	metaSyncLastAt      = "sync_last_at"
	metaSyncLastError   = "sync_last_error"
	metaSyncLastStats   = "sync_last_stats"
)

var ErrNotFound = errors.New("не найдено")

// Replica локальная реплика справочников и outbox событий поверх SQLite
type Replica struct {
	db  *sql.DB
	log *slog.Logger
}

// OutboxEntry событие в очереди на отправку
type OutboxEntry struct {
	Seq          int64
	Wire         event.Wire
	CreatedAt    time.Time
	SentAt       *time.Time
	RejectedAt   *time.Time
	RejectReason string
}

// OutboxCounts состояние очереди
type OutboxCounts struct {
	Pending     int `json:"pending"`
	Sent        int `json:"sent"`
	Quarantined int `json:"quarantined"`
}

// OpenReplica открывает (или создает) базу реплики и накатывает схему.
// Одно соединение: SQLite все равно сериализует запись, а так транзакции не ловят SQLITE_BUSY.
func OpenReplica(path string, log *slog.Logger) (*Replica, error) {
	if err := migrateReplica(path); err != nil {
		return nil, fmt.Errorf("ошибка миграции реплики: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия базы данных: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка открытия базы данных: %w", err)
	}

	return &Replica{
		db:  db,
		log: log.With(slog.String("component", "replica")),
	}, nil
}

func dsn(path string) string {
	return "file:" + path + "?_foreign_keys=on&_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000&_txlock=immediate"
}

func migrateReplica(path string) (err error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, "sqlite3://"+path+"?_foreign_keys=on")
	if err != nil {
		return err
	}
	defer func() {
		serr, dberr := m.Close()
		err = errors.Join(err, serr, dberr)
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (r *Replica) Close() error {
	return r.db.Close()
}

// ApplyDelta применяет дельту одной транзакцией: сначала удаления от зависимых таблиц
// к родительским, затем upsert от родительских к зависимым. Полный снимок сначала очищает
// справочники реплики. Повторное применение той же дельты не меняет состояние.
func (r *Replica) ApplyDelta(ctx context.Context, d *pack.Delta) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if d.Full {
		if err = clearReplica(ctx, tx); err != nil {
			return err
		}
	}
	if err = applyDeletes(ctx, tx, d); err != nil {
		return err
	}
	if err = applyUpserts(ctx, tx, d); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации дельты: %w", err)
	}
	return nil
}

// clearReplica удаляет все строки справочников. Outbox и meta не трогаются.
func clearReplica(ctx context.Context, tx *sql.Tx) error {
	for _, table := range []string{pack.TableProductLocations, pack.TableZones, pack.TableProducts, pack.TableStores} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("ошибка очистки %s: %w", table, err)
		}
	}
	return nil
}

func applyDeletes(ctx context.Context, tx *sql.Tx, d *pack.Delta) error {
	for _, key := range d.ProductLocations.Deletes {
		productID, storeID, err := pack.ParseLocationKey(key)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM product_locations WHERE product_id = ? AND store_id = ?`, productID, storeID); err != nil {
			return fmt.Errorf("ошибка удаления локации %s: %w", key, err)
		}
	}

	deletes := []struct {
		table string
		ids   []int64
	}{
		{pack.TableProducts, d.Products.Deletes},
		{pack.TableZones, d.Zones.Deletes},
		{pack.TableStores, d.Stores.Deletes},
	}
	for _, del := range deletes {
		for _, id := range del.ids {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+del.table+` WHERE id = ?`, id); err != nil {
				return fmt.Errorf("ошибка удаления %s/%d: %w", del.table, id, err)
			}
		}
	}
	return nil
}

// upsert через ON CONFLICT DO UPDATE: INSERT OR REPLACE удалил бы строку и каскадом ее детей
func applyUpserts(ctx context.Context, tx *sql.Tx, d *pack.Delta) error {
	for _, s := range d.Stores.Upserts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stores (id, name, address, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				name = excluded.name, address = excluded.address, updated_at = excluded.updated_at`,
			s.ID, s.Name, s.Address, s.UpdatedAt.UTC()); err != nil {
			return fmt.Errorf("ошибка сохранения магазина %d: %w", s.ID, err)
		}
	}

	for _, z := range d.Zones.Upserts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO zones (id, store_id, name, aisle, updated_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				store_id = excluded.store_id, name = excluded.name,
				aisle = excluded.aisle, updated_at = excluded.updated_at`,
			z.ID, z.StoreID, z.Name, z.Aisle, z.UpdatedAt.UTC()); err != nil {
			return fmt.Errorf("ошибка сохранения зоны %d: %w", z.ID, err)
		}
	}

	for _, p := range d.Products.Upserts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO products (id, name, brand, ean, updated_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				name = excluded.name, brand = excluded.brand,
				ean = excluded.ean, updated_at = excluded.updated_at`,
			p.ID, p.Name, p.Brand, p.EAN, p.UpdatedAt.UTC()); err != nil {
			return fmt.Errorf("ошибка сохранения товара %d: %w", p.ID, err)
		}
	}

	for _, l := range d.ProductLocations.Upserts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO product_locations (product_id, store_id, zone_id, confidence, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (product_id, store_id) DO UPDATE SET
				zone_id = excluded.zone_id, confidence = excluded.confidence,
				updated_at = excluded.updated_at`,
			l.ProductID, l.StoreID, l.ZoneID, l.Confidence, l.UpdatedAt.UTC()); err != nil {
			return fmt.Errorf("ошибка сохранения локации %s: %w", l.Key(), err)
		}
	}
	return nil
}

// PackVersion курсор последней успешной синхронизации, "" если ее не было
func (r *Replica) PackVersion(ctx context.Context) (string, error) {
	v, _, err := r.getMeta(ctx, metaPackVersion)
	return v, err
}

func (r *Replica) SetPackVersion(ctx context.Context, version string) error {
	return r.setMeta(ctx, map[string]string{metaPackVersion: version})
}

// EnqueueEvent кладет событие в outbox. Событие с уже известным id игнорируется.
func (r *Replica) EnqueueEvent(ctx context.Context, ev event.Event) error {
	w, err := ev.ToWire()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO outbox (id, type, payload, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		w.ID, w.Type, string(w.Payload), ev.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("ошибка записи события в outbox: %w", err)
	}
	return nil
}

// ListPending события, еще не отправленные и не помещенные в карантин, в порядке создания
func (r *Replica) ListPending(ctx context.Context, limit int) ([]OutboxEntry, error) {
	return r.listOutbox(ctx, `
		SELECT seq, id, type, payload, created_at, sent_at, rejected_at, COALESCE(reject_reason, '')
		FROM outbox
		WHERE sent_at IS NULL AND rejected_at IS NULL
		ORDER BY created_at, seq
		LIMIT ?`, limit)
}

// ListQuarantined события, которые сервер отказался принимать
func (r *Replica) ListQuarantined(ctx context.Context, limit int) ([]OutboxEntry, error) {
	return r.listOutbox(ctx, `
		SELECT seq, id, type, payload, created_at, sent_at, rejected_at, COALESCE(reject_reason, '')
		FROM outbox
		WHERE rejected_at IS NOT NULL
		ORDER BY rejected_at DESC, seq DESC
		LIMIT ?`, limit)
}

func (r *Replica) listOutbox(ctx context.Context, query string, limit int) ([]OutboxEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения outbox: %w", err)
	}
	defer rows.Close()

	var out []OutboxEntry
	for rows.Next() {
		var (
			e                  OutboxEntry
			payload            string
			sentAt, rejectedAt sql.NullTime
		)
		if err := rows.Scan(&e.Seq, &e.Wire.ID, &e.Wire.Type, &payload, &e.CreatedAt,
			&sentAt, &rejectedAt, &e.RejectReason); err != nil {
			return nil, fmt.Errorf("ошибка чтения outbox: %w", err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		e.Wire.Payload = json.RawMessage(payload)
		e.Wire.CreatedAt = e.CreatedAt.Format(time.RFC3339Nano)
		if sentAt.Valid {
			t := sentAt.Time.UTC()
			e.SentAt = &t
		}
		if rejectedAt.Valid {
			t := rejectedAt.Time.UTC()
			e.RejectedAt = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkSent отмечает события отправленными. Уже отмеченные сохраняют первое время отправки.
func (r *Replica) MarkSent(ctx context.Context, ids []string, at time.Time) (err error) {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, id := range ids {
		if _, err = tx.ExecContext(ctx,
			`UPDATE outbox SET sent_at = ? WHERE id = ? AND sent_at IS NULL`, at.UTC(), id); err != nil {
			return fmt.Errorf("ошибка отметки события %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// Quarantine выводит событие из очереди: сервер его никогда не примет
func (r *Replica) Quarantine(ctx context.Context, id, reason string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox SET rejected_at = ?, reject_reason = ?
		WHERE id = ? AND sent_at IS NULL AND rejected_at IS NULL`,
		at.UTC(), reason, id)
	if err != nil {
		return fmt.Errorf("ошибка карантина события %s: %w", id, err)
	}
	return nil
}

// PruneSent удаляет отправленные события старше before
func (r *Replica) PruneSent(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM outbox WHERE sent_at IS NOT NULL AND sent_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("ошибка очистки outbox: %w", err)
	}
	return res.RowsAffected()
}

func (r *Replica) OutboxCounts(ctx context.Context) (OutboxCounts, error) {
	var c OutboxCounts
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN sent_at IS NULL AND rejected_at IS NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN sent_at IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN rejected_at IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM outbox`).Scan(&c.Pending, &c.Sent, &c.Quarantined)
	if err != nil {
		return OutboxCounts{}, fmt.Errorf("ошибка подсчета outbox: %w", err)
	}
	return c, nil
}

// GetLocation предполагаемая зона товара в магазине
func (r *Replica) GetLocation(ctx context.Context, productID, storeID int64) (*pack.ProductLocation, error) {
	l := pack.ProductLocation{ProductID: productID, StoreID: storeID}
	var zoneID sql.NullInt64
	var conf sql.NullFloat64

	err := r.db.QueryRowContext(ctx, `
		SELECT zone_id, confidence, updated_at FROM product_locations
		WHERE product_id = ? AND store_id = ?`, productID, storeID,
	).Scan(&zoneID, &conf, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения локации: %w", err)
	}

	if zoneID.Valid {
		l.ZoneID = &zoneID.Int64
	}
	if conf.Valid {
		l.Confidence = &conf.Float64
	}
	return &l, nil
}

// ListZones зоны магазина
func (r *Replica) ListZones(ctx context.Context, storeID int64) ([]pack.Zone, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, store_id, name, aisle, updated_at FROM zones
		WHERE store_id = ? ORDER BY id`, storeID)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения зон: %w", err)
	}
	defer rows.Close()

	var out []pack.Zone
	for rows.Next() {
		var z pack.Zone
		if err := rows.Scan(&z.ID, &z.StoreID, &z.Name, &z.Aisle, &z.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ошибка чтения зон: %w", err)
		}
		out = append(out, z)
	}
	return out, rows.Err()
}

// FindProductByEAN ищет товар по штрихкоду
func (r *Replica) FindProductByEAN(ctx context.Context, ean string) (*pack.Product, error) {
	var p pack.Product
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, brand, ean, updated_at FROM products WHERE ean = ? ORDER BY id LIMIT 1`, ean,
	).Scan(&p.ID, &p.Name, &p.Brand, &p.EAN, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска товара: %w", err)
	}
	return &p, nil
}

// MarkSyncStarted фиксирует время попытки, не трогая итог предыдущей синхронизации.
// Состояние syncing живет только в памяти процесса.
func (r *Replica) MarkSyncStarted(ctx context.Context, at time.Time) error {
	return r.setMeta(ctx, map[string]string{metaSyncLastAttempt: formatTime(at)})
}

// SaveSyncStatus сохраняет итог последней синхронизации. Нулевое время последнего успеха
// и пустая статистика не затирают сохраненные ранее значения.
func (r *Replica) SaveSyncStatus(ctx context.Context, st SyncStatus) error {
	kv := map[string]string{
		metaSyncState:     string(st.State),
		metaSyncLastError: st.LastError,
	}
	if !st.LastAttempt.IsZero() {
		kv[metaSyncLastAttempt] = formatTime(st.LastAttempt)
	}
	if !st.LastSuccess.IsZero() {
		kv[metaSyncLastAt] = formatTime(st.LastSuccess)
	}
	if st.Stats != nil {
		raw, err := json.Marshal(st.Stats)
		if err != nil {
			return fmt.Errorf("ошибка сериализации статистики: %w", err)
		}
		kv[metaSyncLastStats] = string(raw)
	}
	return r.setMeta(ctx, kv)
}

// LoadSyncStatus читает итог последней синхронизации
func (r *Replica) LoadSyncStatus(ctx context.Context) (SyncStatus, error) {
	st := SyncStatus{State: StateIdle}

	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM meta WHERE key LIKE 'sync_%'`)
	if err != nil {
		return st, fmt.Errorf("ошибка чтения статуса: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return st, fmt.Errorf("ошибка чтения статуса: %w", err)
		}
		switch k {
		case metaSyncState:
			if v != "" {
				st.State = SyncState(v)
			}
		case metaSyncLastAttempt:
			st.LastAttempt = parseTime(v)
		case metaSyncLastAt:
			st.LastSuccess = parseTime(v)
		case metaSyncLastError:
			st.LastError = v
		case metaSyncLastStats:
			var stats SyncStats
			if err := json.Unmarshal([]byte(v), &stats); err == nil {
				st.Stats = &stats
			}
		}
	}
	return st, rows.Err()
}

func (r *Replica) getMeta(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("ошибка чтения %s: %w", key, err)
	}
	return v, true, nil
}

func (r *Replica) setMeta(ctx context.Context, kv map[string]string) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for k, v := range kv {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO meta (key, value) VALUES (?, ?)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value`, k, v); err != nil {
			return fmt.Errorf("ошибка записи %s: %w", k, err)
		}
	}
	return tx.Commit()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseTime(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

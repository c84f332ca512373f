package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"shopnav/internal/domain/confidence"
)

type locKey struct {
	productID, storeID int64
}

// memRepository хранилище в памяти с откатом транзакций
type memRepository struct {
	events    map[string]Record
	eans      map[string]int64
	products  map[int64]bool
	zones     map[int64]int64
	locations map[locKey]confidence.Location
	revisions map[int64]int64

	failInsertOn string
}

func newMemRepository() *memRepository {
	return &memRepository{
		events:    map[string]Record{},
		eans:      map[string]int64{"4006381333931": 10},
		products:  map[int64]bool{10: true, 11: true},
		zones:     map[int64]int64{1: 1, 2: 1, 3: 2},
		locations: map[locKey]confidence.Location{},
		revisions: map[int64]int64{1: 0, 2: 0},
	}
}

func (m *memRepository) InTx(_ context.Context, fn func(tx Tx) error) error {
	tx := &memTx{
		repo:      m,
		events:    map[string]Record{},
		locations: map[locKey]confidence.Location{},
		revisions: map[int64]int64{},
	}
	if err := fn(tx); err != nil {
		return err
	}
	for k, v := range tx.events {
		m.events[k] = v
	}
	for k, v := range tx.locations {
		m.locations[k] = v
	}
	for k, v := range tx.revisions {
		m.revisions[k] = v
	}
	return nil
}

type memTx struct {
	repo      *memRepository
	events    map[string]Record
	locations map[locKey]confidence.Location
	revisions map[int64]int64
}

func (t *memTx) Insert(_ context.Context, rec Record) (bool, error) {
	if rec.ID == t.repo.failInsertOn {
		return false, errors.New("connection reset")
	}
	if _, ok := t.repo.events[rec.ID]; ok {
		return false, nil
	}
	t.events[rec.ID] = rec
	return true, nil
}

func (t *memTx) ProductByEAN(_ context.Context, ean string) (int64, bool, error) {
	id, ok := t.repo.eans[ean]
	return id, ok, nil
}

func (t *memTx) CheckTarget(_ context.Context, productID, storeID int64, zoneID *int64) error {
	if !t.repo.products[productID] {
		return ErrUnknownProduct
	}
	if _, ok := t.repo.revisions[storeID]; !ok {
		return ErrUnknownStore
	}
	if zoneID != nil && t.repo.zones[*zoneID] != storeID {
		return ErrUnknownZone
	}
	return nil
}

func (t *memTx) Location(_ context.Context, productID, storeID int64) (*confidence.Location, error) {
	loc, ok := t.repo.locations[locKey{productID, storeID}]
	if !ok {
		return nil, nil
	}
	return &loc, nil
}

func (t *memTx) BumpStoreVersion(_ context.Context, storeID int64) (int64, error) {
	rev := t.repo.revisions[storeID] + 1
	t.revisions[storeID] = rev
	return rev, nil
}

func (t *memTx) UpsertLocation(_ context.Context, productID, storeID int64, loc confidence.Location, _ int64) error {
	t.locations[locKey{productID, storeID}] = loc
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func wire(t *testing.T, id string, typ Type, payload any) Wire {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return Wire{ID: id, Type: string(typ), CreatedAt: "2026-03-01T10:00:00Z", Payload: raw}
}

func TestService_Ingest_FoundCreatesLocation(t *testing.T) {
	repo := newMemRepository()
	svc := NewService(repo, testLogger(), nil)

	resp, err := svc.Ingest(context.Background(), 7, []Wire{
		wire(t, "e1", TypeFound, Found{ProductID: 10, StoreID: 1, ZoneID: 2}),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Accepted)
	assert.Equal(t, []string{"e1"}, resp.AcceptedIDs)
	assert.Empty(t, resp.Rejected)

	loc := repo.locations[locKey{10, 1}]
	require.NotNil(t, loc.ZoneID)
	assert.Equal(t, int64(2), *loc.ZoneID)
	assert.InDelta(t, confidence.FoundInitial, *loc.Confidence, 1e-9)
	assert.Equal(t, int64(1), repo.revisions[1])
	assert.Equal(t, 7, repo.events["e1"].PrincipalID)
}

func TestService_Ingest_DuplicateAcrossCallsAppliedOnce(t *testing.T) {
	repo := newMemRepository()
	svc := NewService(repo, testLogger(), nil)
	ev := wire(t, "dup", TypeFound, Found{ProductID: 10, StoreID: 1, ZoneID: 2})

	first, err := svc.Ingest(context.Background(), 1, []Wire{ev})
	require.NoError(t, err)
	second, err := svc.Ingest(context.Background(), 1, []Wire{ev})
	require.NoError(t, err)

	assert.Equal(t, []string{"dup"}, first.AcceptedIDs)
	assert.Equal(t, []string{"dup"}, second.AcceptedIDs)

	loc := repo.locations[locKey{10, 1}]
	assert.InDelta(t, confidence.FoundInitial, *loc.Confidence, 1e-9)
	assert.Equal(t, int64(1), repo.revisions[1])
}

func TestService_Ingest_DuplicateWithinBatch(t *testing.T) {
	repo := newMemRepository()
	svc := NewService(repo, testLogger(), nil)
	ev := wire(t, "dup", TypeNotFound, NotFound{ProductID: 10, StoreID: 1})

	resp, err := svc.Ingest(context.Background(), 1, []Wire{ev, ev})
	require.NoError(t, err)

	assert.Equal(t, 2, resp.Accepted)
	assert.Equal(t, []string{"dup", "dup"}, resp.AcceptedIDs)
	loc := repo.locations[locKey{10, 1}]
	assert.InDelta(t, confidence.NotFoundInitial, *loc.Confidence, 1e-9)
}

func TestService_Ingest_RejectsAndContinues(t *testing.T) {
	repo := newMemRepository()
	svc := NewService(repo, testLogger(), nil)

	resp, err := svc.Ingest(context.Background(), 1, []Wire{
		wire(t, "bad-type", "LOST", map[string]int{"product_id": 10}),
		wire(t, "foreign-zone", TypeFound, Found{ProductID: 10, StoreID: 1, ZoneID: 3}),
		wire(t, "no-product", TypeNotFound, NotFound{ProductID: 99, StoreID: 1}),
		wire(t, "no-store", TypeNotFound, NotFound{ProductID: 10, StoreID: 42}),
		wire(t, "ok", TypeFound, Found{ProductID: 11, StoreID: 2, ZoneID: 3}),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Accepted)
	assert.Equal(t, []string{"ok"}, resp.AcceptedIDs)
	require.Len(t, resp.Rejected, 4)

	ids := make([]string, 0, len(resp.Rejected))
	for _, r := range resp.Rejected {
		ids = append(ids, r.ID)
		assert.NotEmpty(t, r.Reason)
	}
	assert.Equal(t, []string{"bad-type", "foreign-zone", "no-product", "no-store"}, ids)

	// отклоненные события не сохраняются и ничего не меняют
	assert.NotContains(t, repo.events, "foreign-zone")
	assert.NotContains(t, repo.locations, locKey{10, 1})
	assert.Equal(t, int64(0), repo.revisions[1])
	assert.Equal(t, int64(1), repo.revisions[2])
}

func TestService_Ingest_UnresolvedEANStoredWithoutEffect(t *testing.T) {
	repo := newMemRepository()
	svc := NewService(repo, testLogger(), nil)

	resp, err := svc.Ingest(context.Background(), 1, []Wire{
		wire(t, "scan-unknown", TypeScannedEAN, ScannedEAN{EAN: "00000000", StoreID: 1, ZoneID: 1}),
		wire(t, "scan-known", TypeScannedEAN, ScannedEAN{EAN: "4006381333931", StoreID: 1, ZoneID: 1}),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"scan-unknown", "scan-known"}, resp.AcceptedIDs)
	require.Contains(t, repo.events, "scan-unknown")
	assert.Nil(t, repo.events["scan-unknown"].ProductID)
	require.NotNil(t, repo.events["scan-known"].ProductID)
	assert.Equal(t, int64(10), *repo.events["scan-known"].ProductID)

	loc := repo.locations[locKey{10, 1}]
	assert.Equal(t, int64(1), *loc.ZoneID)
	assert.Equal(t, int64(1), repo.revisions[1])
}

func TestService_Ingest_StorageFailure(t *testing.T) {
	t.Run("nothing accepted returns error", func(t *testing.T) {
		repo := newMemRepository()
		repo.failInsertOn = "e1"
		svc := NewService(repo, testLogger(), nil)

		resp, err := svc.Ingest(context.Background(), 1, []Wire{
			wire(t, "e1", TypeNotFound, NotFound{ProductID: 10, StoreID: 1}),
			wire(t, "e2", TypeNotFound, NotFound{ProductID: 11, StoreID: 1}),
		})
		require.Error(t, err)
		assert.Nil(t, resp)
		assert.NotErrorIs(t, err, ErrInvalidEvent)
		assert.Empty(t, repo.events)
	})

	t.Run("accepted prefix returned", func(t *testing.T) {
		repo := newMemRepository()
		repo.failInsertOn = "e2"
		svc := NewService(repo, testLogger(), nil)

		resp, err := svc.Ingest(context.Background(), 1, []Wire{
			wire(t, "e1", TypeNotFound, NotFound{ProductID: 10, StoreID: 1}),
			wire(t, "e2", TypeNotFound, NotFound{ProductID: 11, StoreID: 1}),
			wire(t, "e3", TypeNotFound, NotFound{ProductID: 11, StoreID: 2}),
		})
		require.NoError(t, err)
		assert.Equal(t, 1, resp.Accepted)
		assert.Equal(t, []string{"e1"}, resp.AcceptedIDs)
		assert.NotContains(t, repo.events, "e3")
	})
}

func TestService_Ingest_BatchLimits(t *testing.T) {
	svc := NewService(newMemRepository(), testLogger(), &ServiceConfig{MaxBatchSize: 2})

	_, err := svc.Ingest(context.Background(), 1, nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	batch := make([]Wire, 3)
	for i := range batch {
		batch[i] = wire(t, fmt.Sprintf("e%d", i), TypeNotFound, NotFound{ProductID: 10, StoreID: 1})
	}
	_, err = svc.Ingest(context.Background(), 1, batch)
	assert.ErrorIs(t, err, ErrBatchTooLarge)

	resp, err := svc.Ingest(context.Background(), 1, batch[:2])
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Accepted)
}

func TestService_Ingest_ConfidenceSequence(t *testing.T) {
	repo := newMemRepository()
	svc := NewService(repo, testLogger(), nil)

	_, err := svc.Ingest(context.Background(), 1, []Wire{
		wire(t, "a", TypeFound, Found{ProductID: 10, StoreID: 1, ZoneID: 1}),
		wire(t, "b", TypeFound, Found{ProductID: 10, StoreID: 1, ZoneID: 1}),
		wire(t, "c", TypeNotFound, NotFound{ProductID: 10, StoreID: 1}),
		wire(t, "d", TypeNotFound, NotFound{ProductID: 10, StoreID: 1}),
	})
	require.NoError(t, err)

	// 0.7 -> 0.8 -> 0.6 -> 0.4
	loc := repo.locations[locKey{10, 1}]
	require.NotNil(t, loc.ZoneID)
	assert.InDelta(t, 0.4, *loc.Confidence, 1e-6)
	assert.Equal(t, int64(4), repo.revisions[1])
}

package pack

import "context"

// Reader чтение справочников в рамках одного согласованного снимка БД
type Reader interface {
	// Head текущие счетчики ревизий для магазина. ErrStoreNotFound, если магазина нет.
	Head(ctx context.Context, storeID int64) (Version, error)

	Stores(ctx context.Context, sinceGlobal int64) ([]Store, error)
	Zones(ctx context.Context, storeID, sinceGlobal int64) ([]Zone, error)
	Products(ctx context.Context, sinceGlobal int64) ([]Product, error)
	Locations(ctx context.Context, storeID, sinceStore int64) ([]ProductLocation, error)

	// Tombstones удаления новее курсора, относящиеся к магазину (или глобальные)
	Tombstones(ctx context.Context, storeID int64, since Version) ([]Tombstone, error)
}

// Repository открывает снимок только для чтения
type Repository interface {
	ReadSnapshot(ctx context.Context, fn func(r Reader) error) error
}

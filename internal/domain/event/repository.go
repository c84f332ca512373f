package event

import (
	"context"
	"time"

	"shopnav/internal/domain/confidence"
)

// Record принятое событие в том виде, в каком оно сохраняется
type Record struct {
	Event
	PrincipalID int
	ProductID   *int64
	ReceivedAt  time.Time
}

// Tx операции внутри транзакции обработки одного события
type Tx interface {
	// Insert сохраняет событие; false, если событие с таким id уже было принято
	Insert(ctx context.Context, rec Record) (bool, error)

	// ProductByEAN ищет товар по штрихкоду
	ProductByEAN(ctx context.Context, ean string) (int64, bool, error)

	// CheckTarget проверяет, что товар и магазин существуют, а зона (если задана) принадлежит магазину
	CheckTarget(ctx context.Context, productID, storeID int64, zoneID *int64) error

	// Location текущая запись уверенности, nil если записи нет. Строка не блокируется.
	Location(ctx context.Context, productID, storeID int64) (*confidence.Location, error)

	// BumpStoreVersion продвигает версию магазина и возвращает новое значение
	BumpStoreVersion(ctx context.Context, storeID int64) (int64, error)

	UpsertLocation(ctx context.Context, productID, storeID int64, loc confidence.Location, revision int64) error
}

// Repository хранилище событий
type Repository interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

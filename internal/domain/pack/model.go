package pack

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Имена таблиц пакета, они же ключи в статистике синхронизации
const (
	TableStores           = "stores"
	TableZones            = "zones"
	TableProducts         = "products"
	TableProductLocations = "product_locations"
)

// Store магазин
type Store struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Zone зона (отдел, ряд) внутри магазина
type Zone struct {
	ID        int64     `json:"id"`
	StoreID   int64     `json:"store_id"`
	Name      string    `json:"name"`
	Aisle     string    `json:"aisle,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Product товар, общий для всех магазинов
type Product struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Brand     string    `json:"brand,omitempty"`
	EAN       string    `json:"ean,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProductLocation предполагаемое расположение товара в магазине.
// ZoneID == nil: зона неизвестна, Confidence == nil: сигналов ещё не было.
type ProductLocation struct {
	ProductID  int64     `json:"product_id"`
	StoreID    int64     `json:"store_id"`
	ZoneID     *int64    `json:"zone_id"`
	Confidence *float64  `json:"confidence"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Key составной ключ в виде, который используется в deletes
func (l ProductLocation) Key() string {
	return LocationKey(l.ProductID, l.StoreID)
}

type StoreTable struct {
	Upserts []Store `json:"upserts"`
	Deletes []int64 `json:"deletes"`
}

type ZoneTable struct {
	Upserts []Zone  `json:"upserts"`
	Deletes []int64 `json:"deletes"`
}

type ProductTable struct {
	Upserts []Product `json:"upserts"`
	Deletes []int64   `json:"deletes"`
}

type LocationTable struct {
	Upserts []ProductLocation `json:"upserts"`
	Deletes []string          `json:"deletes"`
}

// Delta изменения пакета с момента версии клиента.
// Full означает полный снимок: клиент заменяет им реплику, а Version может оказаться
// старше курсора клиента (курсор не распознан или опережает сервер).
type Delta struct {
	Version          string        `json:"version"`
	Full             bool          `json:"full,omitempty"`
	Stores           StoreTable    `json:"stores"`
	Zones            ZoneTable     `json:"zones"`
	Products         ProductTable  `json:"products"`
	ProductLocations LocationTable `json:"product_locations"`
}

// NewDelta создает пустую дельту с непустыми срезами, чтобы в JSON были [] вместо null
func NewDelta() *Delta {
	return &Delta{
		Stores:           StoreTable{Upserts: []Store{}, Deletes: []int64{}},
		Zones:            ZoneTable{Upserts: []Zone{}, Deletes: []int64{}},
		Products:         ProductTable{Upserts: []Product{}, Deletes: []int64{}},
		ProductLocations: LocationTable{Upserts: []ProductLocation{}, Deletes: []string{}},
	}
}

// TableCounts количество изменений одной таблицы
type TableCounts struct {
	Upserts int `json:"upserts"`
	Deletes int `json:"deletes"`
}

// Counts возвращает количество upsert/delete по каждой таблице
func (d *Delta) Counts() map[string]TableCounts {
	return map[string]TableCounts{
		TableStores:           {Upserts: len(d.Stores.Upserts), Deletes: len(d.Stores.Deletes)},
		TableZones:            {Upserts: len(d.Zones.Upserts), Deletes: len(d.Zones.Deletes)},
		TableProducts:         {Upserts: len(d.Products.Upserts), Deletes: len(d.Products.Deletes)},
		TableProductLocations: {Upserts: len(d.ProductLocations.Upserts), Deletes: len(d.ProductLocations.Deletes)},
	}
}

// Empty true, если дельта ничего не меняет
func (d *Delta) Empty() bool {
	for _, c := range d.Counts() {
		if c.Upserts > 0 || c.Deletes > 0 {
			return false
		}
	}
	return true
}

// Tombstone след удаленной строки справочника
type Tombstone struct {
	Table    string
	Key      string
	Revision int64
}

// LocationKey кодирует составной ключ product_locations как "<product_id>:<store_id>"
func LocationKey(productID, storeID int64) string {
	return strconv.FormatInt(productID, 10) + ":" + strconv.FormatInt(storeID, 10)
}

// ParseLocationKey обратная операция к LocationKey
func ParseLocationKey(key string) (productID, storeID int64, err error) {
	p, s, ok := strings.Cut(key, ":")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if productID, err = strconv.ParseInt(p, 10, 64); err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if storeID, err = strconv.ParseInt(s, 10, 64); err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return productID, storeID, nil
}

package pack

import (
	"fmt"
	"strconv"
	"strings"
)

const versionPrefix = "v1"

// Version курсор пакета. Клиент хранит его строковое представление как есть.
//
// Global упорядочивает stores, zones и products (общая последовательность ревизий),
// Store упорядочивает product_locations конкретного магазина.
type Version struct {
	StoreID int64
	Global  int64
	Store   int64
}

func (v Version) String() string {
	return fmt.Sprintf("%s.%d.%d.%d", versionPrefix, v.StoreID, v.Global, v.Store)
}

// ParseVersion разбирает токен, выданный GetDelta
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 || parts[0] != versionPrefix {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}

	var nums [3]int64
	for i, p := range parts[1:] {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
		}
		nums[i] = n
	}

	return Version{StoreID: nums[0], Global: nums[1], Store: nums[2]}, nil
}

// Compare упорядочивает версии одного магазина: сначала Global, затем Store.
// Возвращает -1, 0 или 1.
func (v Version) Compare(o Version) int {
	switch {
	case v.Global < o.Global:
		return -1
	case v.Global > o.Global:
		return 1
	case v.Store < o.Store:
		return -1
	case v.Store > o.Store:
		return 1
	default:
		return 0
	}
}

// Covers true, если v не старше o ни по одному счетчику
func (v Version) Covers(o Version) bool {
	return v.Global >= o.Global && v.Store >= o.Store
}

package pack

import "errors"

var (
	ErrStoreNotFound  = errors.New("store not found")
	ErrInvalidStoreID = errors.New("invalid store id")
	ErrInvalidVersion = errors.New("invalid pack version")
	ErrInvalidKey     = errors.New("invalid product location key")
)

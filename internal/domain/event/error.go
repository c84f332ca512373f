package event

import "errors"

var (
	ErrInvalidEvent   = errors.New("invalid event")
	ErrUnknownType    = errors.New("unknown event type")
	ErrUnknownProduct = errors.New("unknown product")
	ErrUnknownStore   = errors.New("unknown store")
	ErrUnknownZone    = errors.New("zone does not belong to store")
	ErrBatchTooLarge  = errors.New("event batch too large")
	ErrEmptyBatch     = errors.New("event batch is empty")
)

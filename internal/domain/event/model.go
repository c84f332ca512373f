package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Type тип пользовательского события
type Type string

const (
	TypeFound      Type = "FOUND"
	TypeNotFound   Type = "NOT_FOUND"
	TypeScannedEAN Type = "SCANNED_EAN"
)

const maxIDLength = 128

// ParseType проверяет строковый тип события
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeFound, TypeNotFound, TypeScannedEAN:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
}

// Payload полезная нагрузка события. Реализации: Found, NotFound, ScannedEAN.
type Payload interface {
	Type() Type
	StoreRef() int64
	validate() error
}

// Found пользователь нашел товар в зоне
type Found struct {
	ProductID int64 `json:"product_id"`
	StoreID   int64 `json:"store_id"`
	ZoneID    int64 `json:"zone_id"`
}

func (Found) Type() Type        { return TypeFound }
func (p Found) StoreRef() int64 { return p.StoreID }

func (p Found) validate() error {
	if p.ProductID <= 0 || p.StoreID <= 0 || p.ZoneID <= 0 {
		return fmt.Errorf("product_id, store_id and zone_id must be positive")
	}
	return nil
}

// NotFound пользователь не нашел товар там, где его предлагали искать
type NotFound struct {
	ProductID int64 `json:"product_id"`
	StoreID   int64 `json:"store_id"`
}

func (NotFound) Type() Type        { return TypeNotFound }
func (p NotFound) StoreRef() int64 { return p.StoreID }

func (p NotFound) validate() error {
	if p.ProductID <= 0 || p.StoreID <= 0 {
		return fmt.Errorf("product_id and store_id must be positive")
	}
	return nil
}

// ScannedEAN пользователь отсканировал штрихкод в зоне
type ScannedEAN struct {
	EAN     string `json:"ean"`
	StoreID int64  `json:"store_id"`
	ZoneID  int64  `json:"zone_id"`
}

func (ScannedEAN) Type() Type        { return TypeScannedEAN }
func (p ScannedEAN) StoreRef() int64 { return p.StoreID }

func (p ScannedEAN) validate() error {
	if p.StoreID <= 0 || p.ZoneID <= 0 {
		return fmt.Errorf("store_id and zone_id must be positive")
	}
	if n := len(p.EAN); n < 8 || n > 14 {
		return fmt.Errorf("ean must have 8 to 14 digits")
	}
	for _, r := range p.EAN {
		if !unicode.IsDigit(r) {
			return fmt.Errorf("ean must contain digits only")
		}
	}
	return nil
}

// Event провалидированное событие
type Event struct {
	ID        string
	CreatedAt time.Time
	Payload   Payload
}

func (e Event) Type() Type {
	return e.Payload.Type()
}

// Wire событие в том виде, в каком оно передается по сети и лежит в outbox
type Wire struct {
	ID        string          `json:"id" minLength:"1" maxLength:"128"`
	Type      string          `json:"type" doc:"FOUND, NOT_FOUND or SCANNED_EAN"`
	CreatedAt string          `json:"created_at" doc:"ISO-8601 timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// New собирает событие из уже провалидированной нагрузки
func New(id string, createdAt time.Time, payload Payload) (Event, error) {
	e := Event{ID: id, CreatedAt: createdAt, Payload: payload}
	if err := validateID(id); err != nil {
		return Event{}, err
	}
	if payload == nil {
		return Event{}, fmt.Errorf("%w: payload is required", ErrInvalidEvent)
	}
	if err := payload.validate(); err != nil {
		return Event{}, fmt.Errorf("%w: %s", ErrInvalidEvent, err.Error())
	}
	return e, nil
}

// Parse превращает сетевое представление в типизированное событие.
// Все ошибки оборачивают ErrInvalidEvent.
func Parse(w Wire) (Event, error) {
	if err := validateID(w.ID); err != nil {
		return Event{}, err
	}

	t, err := ParseType(w.Type)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %s", ErrInvalidEvent, err.Error())
	}

	createdAt, err := time.Parse(time.RFC3339Nano, w.CreatedAt)
	if err != nil {
		return Event{}, fmt.Errorf("%w: created_at is not ISO-8601", ErrInvalidEvent)
	}

	payload, err := DecodePayload(t, w.Payload)
	if err != nil {
		return Event{}, err
	}

	return Event{ID: w.ID, CreatedAt: createdAt.UTC(), Payload: payload}, nil
}

// DecodePayload строго разбирает нагрузку указанного типа
func DecodePayload(t Type, raw json.RawMessage) (Payload, error) {
	var p Payload
	switch t {
	case TypeFound:
		var v Found
		if err := decodeStrict(raw, &v); err != nil {
			return nil, err
		}
		p = v
	case TypeNotFound:
		var v NotFound
		if err := decodeStrict(raw, &v); err != nil {
			return nil, err
		}
		p = v
	case TypeScannedEAN:
		var v ScannedEAN
		if err := decodeStrict(raw, &v); err != nil {
			return nil, err
		}
		p = v
	default:
		return nil, fmt.Errorf("%w: %w", ErrInvalidEvent, ErrUnknownType)
	}

	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEvent, err.Error())
	}
	return p, nil
}

// ToWire кодирует событие для отправки
func (e Event) ToWire() (Wire, error) {
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return Wire{}, fmt.Errorf("marshal payload: %w", err)
	}
	return Wire{
		ID:        e.ID,
		Type:      string(e.Type()),
		CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339Nano),
		Payload:   raw,
	}, nil
}

func decodeStrict(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return fmt.Errorf("%w: payload is required", ErrInvalidEvent)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed payload: %s", ErrInvalidEvent, err.Error())
	}
	return nil
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidEvent)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%w: id is too long", ErrInvalidEvent)
	}
	return nil
}

// Package confidence сворачивает пользовательские сигналы FOUND/NOT_FOUND
// в запись уверенности о расположении товара в зоне магазина.
package confidence

import "math"

const (
	// FoundInitial уверенность новой записи после первого FOUND
	FoundInitial = 0.7
	// NotFoundInitial уверенность новой записи после первого NOT_FOUND
	NotFoundInitial = 0.2
	// NeutralPrior используется, когда запись есть, но сигналов ещё не было
	NeutralPrior = 0.5
	FoundStep    = 0.1
	NotFoundStep = 0.2
	// ForgetThreshold ниже этого значения зона сбрасывается
	ForgetThreshold = 0.3

	precision = 1e6
)

// Kind вид сигнала
type Kind int

const (
	Found Kind = iota + 1
	NotFound
)

func (k Kind) String() string {
	switch k {
	case Found:
		return "FOUND"
	case NotFound:
		return "NOT_FOUND"
	default:
		return "UNKNOWN"
	}
}

// Signal один пользовательский сигнал по ключу (product, store).
// ZoneID используется только для Found.
type Signal struct {
	Kind   Kind
	ZoneID int64
}

// Location текущее состояние записи. nil Confidence значит "сигналов не было".
type Location struct {
	ZoneID     *int64
	Confidence *float64
}

// Fold применяет сигнал к записи prior (nil, если записи нет) и возвращает новое состояние.
// Функция чистая: результат зависит только от prior и sig.
func Fold(prior *Location, sig Signal) Location {
	switch sig.Kind {
	case Found:
		return foldFound(prior, sig.ZoneID)
	case NotFound:
		return foldNotFound(prior)
	default:
		if prior == nil {
			return Location{}
		}
		return *prior
	}
}

func foldFound(prior *Location, zoneID int64) Location {
	zone := zoneID
	if prior == nil {
		return Location{ZoneID: &zone, Confidence: ptr(FoundInitial)}
	}

	next := math.Min(1, priorOrNeutral(prior)+FoundStep)
	return Location{ZoneID: &zone, Confidence: ptr(round(next))}
}

func foldNotFound(prior *Location) Location {
	if prior == nil {
		return Location{ZoneID: nil, Confidence: ptr(NotFoundInitial)}
	}

	next := round(math.Max(0, priorOrNeutral(prior)-NotFoundStep))
	out := Location{Confidence: ptr(next)}
	if next >= ForgetThreshold && prior.ZoneID != nil {
		zone := *prior.ZoneID
		out.ZoneID = &zone
	}
	return out
}

func priorOrNeutral(l *Location) float64 {
	if l.Confidence == nil {
		return NeutralPrior
	}
	return *l.Confidence
}

// round убирает накопление ошибки двоичного представления (0.7+0.1 -> 0.8)
func round(v float64) float64 {
	return math.Round(v*precision) / precision
}

func ptr(v float64) *float64 {
	return &v
}

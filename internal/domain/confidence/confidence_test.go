package confidence

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zone(v int64) *int64 { return &v }

func conf(v float64) *float64 { return &v }

func TestFold_FoundReinforces(t *testing.T) {
	first := Fold(nil, Signal{Kind: Found, ZoneID: 3})
	require.NotNil(t, first.Confidence)
	require.NotNil(t, first.ZoneID)
	assert.Equal(t, 0.7, *first.Confidence)
	assert.Equal(t, int64(3), *first.ZoneID)

	second := Fold(&first, Signal{Kind: Found, ZoneID: 3})
	assert.Equal(t, 0.8, *second.Confidence)
	assert.Equal(t, int64(3), *second.ZoneID)
}

func TestFold_FoundMovesZone(t *testing.T) {
	prior := Location{ZoneID: zone(3), Confidence: conf(0.5)}

	next := Fold(&prior, Signal{Kind: Found, ZoneID: 9})

	assert.Equal(t, int64(9), *next.ZoneID)
	assert.Equal(t, 0.6, *next.Confidence)
	assert.Equal(t, int64(3), *prior.ZoneID, "prior must not be mutated")
}

func TestFold_FoundCapsAtOne(t *testing.T) {
	prior := Location{ZoneID: zone(1), Confidence: conf(0.95)}

	next := Fold(&prior, Signal{Kind: Found, ZoneID: 1})

	assert.Equal(t, 1.0, *next.Confidence)
}

func TestFold_NullConfidenceUsesNeutralPrior(t *testing.T) {
	prior := Location{ZoneID: zone(4)}

	found := Fold(&prior, Signal{Kind: Found, ZoneID: 4})
	assert.Equal(t, 0.6, *found.Confidence)

	notFound := Fold(&prior, Signal{Kind: NotFound})
	assert.Equal(t, 0.3, *notFound.Confidence)
	require.NotNil(t, notFound.ZoneID, "0.3 is not below the threshold")
	assert.Equal(t, int64(4), *notFound.ZoneID)
}

func TestFold_NotFound(t *testing.T) {
	tests := []struct {
		name     string
		prior    *Location
		wantConf float64
		wantZone *int64
	}{
		{
			name:     "no record",
			prior:    nil,
			wantConf: 0.2,
			wantZone: nil,
		},
		{
			name:     "forget on doubt",
			prior:    &Location{ZoneID: zone(5), Confidence: conf(0.4)},
			wantConf: 0.2,
			wantZone: nil,
		},
		{
			name:     "keeps zone above threshold",
			prior:    &Location{ZoneID: zone(5), Confidence: conf(0.9)},
			wantConf: 0.7,
			wantZone: zone(5),
		},
		{
			name:     "floors at zero",
			prior:    &Location{Confidence: conf(0.1)},
			wantConf: 0,
			wantZone: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fold(tt.prior, Signal{Kind: NotFound})

			require.NotNil(t, got.Confidence)
			assert.InDelta(t, tt.wantConf, *got.Confidence, 1e-9)
			assert.Equal(t, tt.wantZone, got.ZoneID)
		})
	}
}

func TestFold_ConfidenceStaysBounded(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))

	for run := 0; run < 200; run++ {
		var loc *Location
		for step := 0; step < 50; step++ {
			sig := Signal{Kind: NotFound}
			if rnd.Intn(2) == 0 {
				sig = Signal{Kind: Found, ZoneID: int64(rnd.Intn(4) + 1)}
			}
			next := Fold(loc, sig)
			require.NotNil(t, next.Confidence)
			require.GreaterOrEqual(t, *next.Confidence, 0.0)
			require.LessOrEqual(t, *next.Confidence, 1.0)
			if sig.Kind == NotFound && *next.Confidence < ForgetThreshold {
				require.Nil(t, next.ZoneID)
			}
			loc = &next
		}
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "FOUND", Found.String())
	assert.Equal(t, "NOT_FOUND", NotFound.String())
	assert.Equal(t, "UNKNOWN", Kind(0).String())
}

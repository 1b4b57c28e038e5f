package tracking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeQuality(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		planes   int
		duration time.Duration
		want     Quality
	}{
		{"normal rich scene", Normal(), 5, 11 * time.Second, QualityExcellent},
		{"normal just below excellent duration", Normal(), 5, 10 * time.Second, QualityGood},
		{"normal good", Normal(), 3, 6 * time.Second, QualityGood},
		{"normal few planes", Normal(), 1, 3 * time.Second, QualityFair},
		{"normal nothing yet", Normal(), 0, time.Second, QualityFair},
		{"limited initializing", Limited(ReasonInitializing), 10, time.Minute, QualityFair},
		{"limited excessive motion", Limited(ReasonExcessiveMotion), 10, time.Minute, QualityPoor},
		{"limited insufficient features", Limited(ReasonInsufficientFeatures), 0, 0, QualityPoor},
		{"limited relocalizing", Limited(ReasonRelocalizing), 4, time.Minute, QualityPoor},
		{"not available", NotAvailable(), 8, time.Hour, QualityUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeQuality(tt.state, tt.planes, tt.duration))
		})
	}
}

func TestComputeQualityIsReproducible(t *testing.T) {
	for range 3 {
		assert.Equal(t, QualityGood, ComputeQuality(Normal(), 4, 8*time.Second))
	}
}

func TestUnknownEnumeratorPanicsUnderTest(t *testing.T) {
	assert.Panics(t, func() { ComputeQuality(State{Kind: Kind(99)}, 0, 0) })
	assert.Panics(t, func() { ComputeQuality(State{Kind: KindLimited, Reason: LimitedReason(42)}, 0, 0) })
}

func TestQualityOrdering(t *testing.T) {
	ordered := []Quality{QualityExcellent, QualityGood, QualityFair, QualityPoor, QualityUnavailable}
	for i := 1; i < len(ordered); i++ {
		assert.True(t, ordered[i-1].Better(ordered[i]), "%s should rank above %s", ordered[i-1], ordered[i])
	}
	assert.InDelta(t, 0.8, QualityGood.Score(), 1e-9)
	assert.True(t, QualityPoor.NeedsCoaching())
	assert.False(t, QualityFair.NeedsCoaching())
}

func TestParseStateRoundTrip(t *testing.T) {
	for _, s := range []State{Normal(), NotAvailable(), Limited(ReasonExcessiveMotion), Limited(ReasonRelocalizing)} {
		text, err := s.MarshalText()
		require.NoError(t, err)
		var back State
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, s, back)
	}
	_, err := ParseState("limited:sleepy")
	assert.Error(t, err)
}

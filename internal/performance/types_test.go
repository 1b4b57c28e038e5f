package performance

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectiveSetCanonicalOrder(t *testing.T) {
	s := NewDirectiveSet(LimitConcurrentOperations, ClearCaches, ReduceFrameRate, ClearCaches)

	assert.Equal(t, 3, s.Len())
	if diff := cmp.Diff([]Directive{ReduceFrameRate, ClearCaches, LimitConcurrentOperations}, s.Items()); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "reduce_frame_rate,clear_caches,limit_concurrent_operations", s.String())
}

func TestDirectiveSetOperations(t *testing.T) {
	a := NewDirectiveSet(ClearCaches, PauseBackgroundTasks)
	b := NewDirectiveSet(PauseBackgroundTasks, DisableAnimations)

	assert.Equal(t, NewDirectiveSet(ClearCaches, PauseBackgroundTasks, DisableAnimations), a.Union(b))
	assert.Equal(t, NewDirectiveSet(PauseBackgroundTasks), a.Intersect(b))
	assert.Equal(t, NewDirectiveSet(ClearCaches), a.Minus(b))
	assert.True(t, DirectiveSet{}.Empty())
	assert.Equal(t, "none", DirectiveSet{}.String())
	assert.False(t, a.Has(Directive("bogus")))

	// value semantics: With never changes the receiver
	c := a.With(ReduceFrameRate)
	assert.False(t, a.Has(ReduceFrameRate))
	assert.True(t, c.Has(ReduceFrameRate))
}

func TestParseDirectiveSet(t *testing.T) {
	s := ParseDirectiveSet([]string{" clear_caches", "unknown", "disable_animations"})
	assert.Equal(t, []string{"clear_caches", "disable_animations"}, s.Strings())
}

func TestDirectiveSetMarshalJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Active DirectiveSet `json:"active"`
	}{NewDirectiveSet(DisableAnimations, ReduceFrameRate)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"active":["reduce_frame_rate","disable_animations"]}`, string(data))

	data, err = json.Marshal(DirectiveSet{})
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestStateMax(t *testing.T) {
	assert.Equal(t, StateDegraded, StateOptimal.Max(StateDegraded))
	assert.Equal(t, StateCritical, StateCritical.Max(StateDegraded))
	assert.Equal(t, StateDegraded, StateDegraded.Max(StateOptimal))
}

func TestParseThermal(t *testing.T) {
	assert.Equal(t, ThermalSerious, ParseThermal(" Serious "))
	assert.Equal(t, ThermalNominal, ParseThermal("lava"))
}

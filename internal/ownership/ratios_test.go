package ownership

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaura24/regaudit/internal/types"
)

func f(v float64) *float64 { return &v }

func TestEffectiveRatiosFromDeclaredTotal(t *testing.T) {
	shareholders := []types.NormalizedShareholder{
		{Name: "Alpha Holdings", Shares: f(6000)},
		{Name: "Beta Partners", Shares: f(4000)},
	}
	props := types.DocumentProperties{TotalShares: f(10000)}

	out := EffectiveRatios(shareholders, props)

	require.Len(t, out, 2)
	require.NotNil(t, out[0].Ratio)
	require.NotNil(t, out[1].Ratio)
	assert.InDelta(t, 60.0, *out[0].Ratio, 1e-9)
	assert.InDelta(t, 40.0, *out[1].Ratio, 1e-9)
}

func TestEffectiveRatiosFromSummedShares(t *testing.T) {
	// No declared total: the complete sum of shares is the denominator.
	shareholders := []types.NormalizedShareholder{
		{Name: "A", Shares: f(750)},
		{Name: "B", Shares: f(250)},
	}
	out := EffectiveRatios(shareholders, types.DocumentProperties{})

	require.NotNil(t, out[0].Ratio)
	assert.InDelta(t, 75.0, *out[0].Ratio, 1e-9)
	assert.InDelta(t, 25.0, *out[1].Ratio, 1e-9)
}

func TestEffectiveRatiosPartialSharesNoFallback(t *testing.T) {
	// One shareholder without a share count: summing would bias the
	// denominator, so no ratio is derived from shares at all.
	shareholders := []types.NormalizedShareholder{
		{Name: "A", Shares: f(750)},
		{Name: "B"},
	}
	out := EffectiveRatios(shareholders, types.DocumentProperties{})

	assert.Nil(t, out[0].Ratio)
	assert.Nil(t, out[1].Ratio)
}

func TestEffectiveRatiosKeepsDeclaredRatio(t *testing.T) {
	shareholders := []types.NormalizedShareholder{
		{Name: "A", Ratio: f(51), Shares: f(100)},
		{Name: "B", Shares: f(100)},
	}
	props := types.DocumentProperties{TotalShares: f(200)}

	out := EffectiveRatios(shareholders, props)

	// The declared 51% wins over the computable 50%.
	assert.InDelta(t, 51.0, *out[0].Ratio, 1e-9)
	assert.InDelta(t, 50.0, *out[1].Ratio, 1e-9)
}

func TestEffectiveRatiosFallsBackToCapital(t *testing.T) {
	shareholders := []types.NormalizedShareholder{
		{Name: "A", Amount: f(3_000_000)},
		{Name: "B", Amount: f(1_000_000)},
	}
	props := types.DocumentProperties{TotalCapital: f(4_000_000)}

	out := EffectiveRatios(shareholders, props)

	require.NotNil(t, out[0].Ratio)
	assert.InDelta(t, 75.0, *out[0].Ratio, 1e-9)
	assert.InDelta(t, 25.0, *out[1].Ratio, 1e-9)
}

func TestEffectiveRatiosPrefersSharesOverCapital(t *testing.T) {
	shareholders := []types.NormalizedShareholder{
		{Name: "A", Shares: f(90), Amount: f(500)},
		{Name: "B", Shares: f(10), Amount: f(500)},
	}
	props := types.DocumentProperties{TotalShares: f(100), TotalCapital: f(1000)}

	out := EffectiveRatios(shareholders, props)

	assert.InDelta(t, 90.0, *out[0].Ratio, 1e-9)
	assert.InDelta(t, 10.0, *out[1].Ratio, 1e-9)
}

func TestEffectiveRatiosDoesNotMutateInput(t *testing.T) {
	shareholders := []types.NormalizedShareholder{
		{Name: "A", Shares: f(100)},
	}
	props := types.DocumentProperties{TotalShares: f(100)}

	_ = EffectiveRatios(shareholders, props)

	assert.Nil(t, shareholders[0].Ratio)
}

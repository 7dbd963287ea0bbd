// Package ownership derives effective ownership ratios and applies the
// beneficial-owner disclosure tiering. All functions are pure.
package ownership

import (
	"github.com/kaura24/regaudit/internal/types"
)

// EffectiveRatios resolves each shareholder's ownership ratio without ever
// inventing a value. Resolution priority per shareholder:
//
//  1. keep an already-declared ratio
//  2. shares / reference total shares x 100
//  3. amount / reference total capital x 100
//  4. nil
//
// A reference total is the document's declared total when positive; otherwise
// the arithmetic sum across shareholders, but only when every shareholder has
// a non-nil value for that metric. A partial list never produces a biased
// denominator.
func EffectiveRatios(shareholders []types.NormalizedShareholder, props types.DocumentProperties) []types.NormalizedShareholder {
	out := make([]types.NormalizedShareholder, len(shareholders))
	copy(out, shareholders)

	refShares := referenceTotal(props.TotalShares, out, func(s types.NormalizedShareholder) *float64 { return s.Shares })
	refCapital := referenceTotal(props.TotalCapital, out, func(s types.NormalizedShareholder) *float64 { return s.Amount })

	for i := range out {
		s := &out[i]
		if s.Ratio != nil {
			continue
		}
		if s.Shares != nil && refShares != nil && *refShares > 0 {
			ratio := *s.Shares / *refShares * 100
			s.Ratio = &ratio
			continue
		}
		if s.Amount != nil && refCapital != nil && *refCapital > 0 {
			ratio := *s.Amount / *refCapital * 100
			s.Ratio = &ratio
		}
	}
	return out
}

// referenceTotal picks the denominator for one metric: the declared total
// when positive, else the complete sum, else nil.
func referenceTotal(declared *float64, shareholders []types.NormalizedShareholder, metric func(types.NormalizedShareholder) *float64) *float64 {
	if declared != nil && *declared > 0 {
		return declared
	}
	if len(shareholders) == 0 {
		return nil
	}
	sum := 0.0
	for _, s := range shareholders {
		v := metric(s)
		if v == nil {
			return nil
		}
		sum += *v
	}
	return &sum
}

package ownership

import (
	"sort"

	"github.com/kaura24/regaudit/internal/types"
)

// SelectOwners applies the disclosure tiering: every holder whose effective
// ratio crosses the threshold is a beneficial owner; when nobody crosses it,
// the single highest-ratio holder is reported instead (marked as a
// fallback). The principal owner is the highest-ratio holder overall.
//
// Holders without a determinable ratio never qualify; an unknown ratio is
// not guessed to be above or below the threshold.
func SelectOwners(shareholders []types.NormalizedShareholder) (principal *types.OwnerEntry, beneficial []types.OwnerEntry) {
	ranked := make([]types.NormalizedShareholder, 0, len(shareholders))
	for _, s := range shareholders {
		if s.Ratio != nil {
			ranked = append(ranked, s)
		}
	}
	if len(ranked) == 0 {
		return nil, nil
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return *ranked[i].Ratio > *ranked[j].Ratio
	})

	top := toOwnerEntry(ranked[0])
	principal = &top

	for _, s := range ranked {
		if *s.Ratio >= types.BeneficialOwnerThreshold {
			beneficial = append(beneficial, toOwnerEntry(s))
		}
	}
	if len(beneficial) == 0 {
		fallback := toOwnerEntry(ranked[0])
		fallback.FallbackHighest = true
		beneficial = []types.OwnerEntry{fallback}
	}
	return principal, beneficial
}

func toOwnerEntry(s types.NormalizedShareholder) types.OwnerEntry {
	return types.OwnerEntry{
		Name:           s.Name,
		EntityType:     s.EntityType,
		Identifier:     s.Identifier,
		IdentifierType: s.IdentifierType,
		Ratio:          s.Ratio,
		Shares:         s.Shares,
	}
}

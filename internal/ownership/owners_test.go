package ownership

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaura24/regaudit/internal/types"
)

func TestSelectOwnersTiering(t *testing.T) {
	shareholders := []types.NormalizedShareholder{
		{Name: "A", Ratio: f(40)},
		{Name: "B", Ratio: f(35)},
		{Name: "C", Ratio: f(25)},
	}

	principal, beneficial := SelectOwners(shareholders)

	require.NotNil(t, principal)
	assert.Equal(t, "A", principal.Name)

	// All three cross the 25% threshold (inclusive), ranked descending.
	require.Len(t, beneficial, 3)
	assert.Equal(t, "A", beneficial[0].Name)
	assert.Equal(t, "B", beneficial[1].Name)
	assert.Equal(t, "C", beneficial[2].Name)
	for _, o := range beneficial {
		assert.False(t, o.FallbackHighest)
	}
}

func TestSelectOwnersFallbackHighest(t *testing.T) {
	// Nobody crosses the threshold: report the single highest holder,
	// flagged so the reader knows it is below the disclosure bar.
	shareholders := []types.NormalizedShareholder{
		{Name: "A", Ratio: f(20)},
		{Name: "B", Ratio: f(15)},
		{Name: "C", Ratio: f(10)},
	}

	principal, beneficial := SelectOwners(shareholders)

	require.NotNil(t, principal)
	assert.Equal(t, "A", principal.Name)
	require.Len(t, beneficial, 1)
	assert.Equal(t, "A", beneficial[0].Name)
	assert.True(t, beneficial[0].FallbackHighest)
}

func TestSelectOwnersIgnoresUnknownRatios(t *testing.T) {
	shareholders := []types.NormalizedShareholder{
		{Name: "Known", Ratio: f(30)},
		{Name: "Unknown"},
	}

	principal, beneficial := SelectOwners(shareholders)

	require.NotNil(t, principal)
	assert.Equal(t, "Known", principal.Name)
	require.Len(t, beneficial, 1)
	assert.Equal(t, "Known", beneficial[0].Name)
}

func TestSelectOwnersNoDeterminableRatios(t *testing.T) {
	shareholders := []types.NormalizedShareholder{
		{Name: "A"},
		{Name: "B"},
	}

	principal, beneficial := SelectOwners(shareholders)

	assert.Nil(t, principal)
	assert.Nil(t, beneficial)
}

func TestSelectOwnersStableOrderOnTies(t *testing.T) {
	shareholders := []types.NormalizedShareholder{
		{Name: "First", Ratio: f(50)},
		{Name: "Second", Ratio: f(50)},
	}

	principal, beneficial := SelectOwners(shareholders)

	require.NotNil(t, principal)
	assert.Equal(t, "First", principal.Name)
	require.Len(t, beneficial, 2)
	assert.Equal(t, "First", beneficial[0].Name)
	assert.Equal(t, "Second", beneficial[1].Name)
}

package bicos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestArgminHammingFirstSeenWins(t *testing.T) {
	// Three exact ties at distance 0: row[1], row[2] and row[3] all equal d.
	row := []uint32{0b101, 0b111, 0b111, 0b111}
	d := uint32(0b111)

	best, ok := argminHamming32(d, row, false)
	require.True(t, ok)
	assert.Equal(t, 1, best, "first-seen minimum must win when duplicates are allowed")

	_, ok = argminHamming32(d, row, true)
	assert.False(t, ok, "duplicate minima must be rejected when NoDupes is set")
}

func TestArgminHammingNoDupesSingleMinimum(t *testing.T) {
	row := []uint32{0b000, 0b001, 0b111}
	d := uint32(0b000)
	best, ok := argminHamming32(d, row, true)
	require.True(t, ok)
	assert.Equal(t, 0, best)
}

func TestResolveDisparityNoConsistency(t *testing.T) {
	out := make([]int16, 4)
	row0 := []uint32{1, 2, 3, 4}
	row1 := []uint32{1, 2, 3, 4}
	resolveDisparity32(row0, row1, 3, 1, NoConsistency{NoDupes: true}, out)
	assert.Equal(t, int16(2), out[3])
}

func TestResolveDisparityConsistencyAccepts(t *testing.T) {
	// Identical rows: forward argmin(col0) finds col0 itself (distance 0),
	// reverse argmin(col0) from row1[col0] finds col0 back. Consistent at
	// the same column, so the disparity should be 0.
	row0 := []uint32{0b0001, 0b0010, 0b0100, 0b1000}
	row1 := []uint32{0b0001, 0b0010, 0b0100, 0b1000}
	out := make([]int16, 4)
	resolveDisparity32(row0, row1, 2, 2, Consistency{MaxLRDiff: 0, NoDupes: false}, out)
	assert.Equal(t, int16(0), out[2])
}

func TestResolveDisparityConsistencyRejectsOnLargeRoundTrip(t *testing.T) {
	row0 := []uint32{0b0001, 0b0010, 0b0100, 0b1000}
	// row1[3] is an exact match for row0[2], not row0[0]: the reverse
	// search lands two columns away from col0, which MaxLRDiff=0 rejects.
	row1 := []uint32{0b1110, 0b1101, 0b1011, 0b0100}
	out := make([]int16, 4)
	resolveDisparity32(row0, row1, 0, 3, Consistency{MaxLRDiff: 0, NoDupes: false}, out)
	assert.Equal(t, InvalidDisp, out[0])
}

func TestSearchGridNoSentinelsWithoutNoDupes(t *testing.T) {
	width, height := 3, 2
	desc0 := make([]uint32, width*height)
	desc1 := make([]uint32, width*height)
	for i := range desc0 {
		desc0[i] = uint32(i)
		desc1[i] = uint32(i + 100) // never an exact match; some distances tie
	}
	m, err := searchGrid32(width, height, desc0, desc1, NoConsistency{NoDupes: false}, 2)
	require.NoError(t, err)
	// Every pixel must get *some* disparity since NoDupes is off and
	// there's always an argmin, never InvalidDisp here.
	for _, v := range m.Data {
		assert.NotEqual(t, InvalidDisp, v)
	}
}

func TestArgminHammingSingleCandidateEitherDirection(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.Uint32().Draw(t, "a")
		b := rapid.Uint32().Draw(t, "b")
		d1, _ := argminHamming32(a, []uint32{b}, false)
		d2, _ := argminHamming32(b, []uint32{a}, false)
		assert.Equal(t, 0, d1)
		assert.Equal(t, 0, d2)
	})
}

func TestConsistencyIsAtLeastAsStrictAsNoConsistency(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 6).Draw(t, "n")
		row0 := rapid.SliceOfN(rapid.Uint32(), n, n).Draw(t, "row0")
		row1 := rapid.SliceOfN(rapid.Uint32(), n, n).Draw(t, "row1")
		col0 := rapid.IntRange(0, n-1).Draw(t, "col0")

		best, ok := argminHamming32(row0[col0], row1, false)
		if !ok {
			return
		}

		outNone := make([]int16, n)
		outCons := make([]int16, n)
		resolveDisparity32(row0, row1, col0, best, NoConsistency{}, outNone)
		resolveDisparity32(row0, row1, col0, best, Consistency{MaxLRDiff: 0}, outCons)

		if outCons[col0] != InvalidDisp {
			assert.NotEqual(t, InvalidDisp, outNone[col0], "a disparity accepted under strict consistency must also be produced without it")
		}
	})
}

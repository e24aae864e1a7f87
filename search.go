package bicos

import "math/bits"

/*------------------------------------------------------------------
 *
 * Purpose:	Row-parallel Hamming minimisation (BICOS search).
 *
 * Description:	Ported directly from impl/cpu/bicos.hpp's
 *		bicos_search<T,FLAGS>/bicos<T,FLAGS> template pair: for
 *		each column in view 0, the forward argmin over view 1's
 *		row minimises Hamming distance, with duplicate-minimum
 *		rejection and left-right consistency as optional passes.
 *		Strict '<' on cost updates preserves "first-seen wins";
 *		the duplicate counter only increments on exact ties with
 *		the current minimum, matching the original bit-for-bit.
 *
 *------------------------------------------------------------------*/

const invalidCol = -1

// searchRow32 runs the forward (and, if consistency is requested,
// reverse) argmin for one row of 32-bit descriptors.
func searchRow32(row0, row1 []uint32, variant Variant, out []int16) {
	for col0 := range row0 {
		best, ok := argminHamming32(row0[col0], row1, variantNoDupes(variant))
		if !ok {
			out[col0] = InvalidDisp
			continue
		}
		resolveDisparity32(row0, row1, col0, best, variant, out)
	}
}

func argminHamming32(d uint32, row []uint32, noDupes bool) (int, bool) {
	best := invalidCol
	minCost := int(^uint(0) >> 1)
	dupes := 0
	for c1, d1 := range row {
		cost := bits.OnesCount32(d ^ d1)
		if cost < minCost {
			minCost = cost
			best = c1
			dupes = 0
		} else if noDupes && cost == minCost {
			dupes++
		}
	}
	if noDupes && dupes > 0 {
		return invalidCol, false
	}
	return best, best != invalidCol
}

func resolveDisparity32(row0, row1 []uint32, col0, col1 int, variant Variant, out []int16) {
	switch v := variant.(type) {
	case Consistency:
		reverse, ok := argminHamming32(row1[col1], row0, v.NoDupes)
		if !ok || absInt(col0-reverse) > int(v.MaxLRDiff) {
			out[col0] = InvalidDisp
			return
		}
		out[col0] = int16((col0+reverse)/2 - col1)
	default:
		out[col0] = int16(col0 - col1)
	}
}

// searchRow64 is searchRow32's twin for 64-bit descriptors.
func searchRow64(row0, row1 []uint64, variant Variant, out []int16) {
	for col0 := range row0 {
		best, ok := argminHamming64(row0[col0], row1, variantNoDupes(variant))
		if !ok {
			out[col0] = InvalidDisp
			continue
		}
		resolveDisparity64(row0, row1, col0, best, variant, out)
	}
}

func argminHamming64(d uint64, row []uint64, noDupes bool) (int, bool) {
	best := invalidCol
	minCost := int(^uint(0) >> 1)
	dupes := 0
	for c1, d1 := range row {
		cost := bits.OnesCount64(d ^ d1)
		if cost < minCost {
			minCost = cost
			best = c1
			dupes = 0
		} else if noDupes && cost == minCost {
			dupes++
		}
	}
	if noDupes && dupes > 0 {
		return invalidCol, false
	}
	return best, best != invalidCol
}

func resolveDisparity64(row0, row1 []uint64, col0, col1 int, variant Variant, out []int16) {
	switch v := variant.(type) {
	case Consistency:
		reverse, ok := argminHamming64(row1[col1], row0, v.NoDupes)
		if !ok || absInt(col0-reverse) > int(v.MaxLRDiff) {
			out[col0] = InvalidDisp
			return
		}
		out[col0] = int16((col0+reverse)/2 - col1)
	default:
		out[col0] = int16(col0 - col1)
	}
}

// searchRow128 is searchRow32's twin for 128-bit descriptors.
func searchRow128(row0, row1 []Uint128, variant Variant, out []int16) {
	for col0 := range row0 {
		best, ok := argminHamming128(row0[col0], row1, variantNoDupes(variant))
		if !ok {
			out[col0] = InvalidDisp
			continue
		}
		resolveDisparity128(row0, row1, col0, best, variant, out)
	}
}

func argminHamming128(d Uint128, row []Uint128, noDupes bool) (int, bool) {
	best := invalidCol
	minCost := int(^uint(0) >> 1)
	dupes := 0
	for c1, d1 := range row {
		cost := popcount128(xor128(d, d1))
		if cost < minCost {
			minCost = cost
			best = c1
			dupes = 0
		} else if noDupes && cost == minCost {
			dupes++
		}
	}
	if noDupes && dupes > 0 {
		return invalidCol, false
	}
	return best, best != invalidCol
}

func resolveDisparity128(row0, row1 []Uint128, col0, col1 int, variant Variant, out []int16) {
	switch v := variant.(type) {
	case Consistency:
		reverse, ok := argminHamming128(row1[col1], row0, v.NoDupes)
		if !ok || absInt(col0-reverse) > int(v.MaxLRDiff) {
			out[col0] = InvalidDisp
			return
		}
		out[col0] = int16((col0+reverse)/2 - col1)
	default:
		out[col0] = int16(col0 - col1)
	}
}

// variantNoDupes extracts the NoDupes flag regardless of variant kind.
func variantNoDupes(variant Variant) bool {
	switch v := variant.(type) {
	case Consistency:
		return v.NoDupes
	case NoConsistency:
		return v.NoDupes
	default:
		return false
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func searchGrid32(width, height int, desc0, desc1 []uint32, variant Variant, bands int) (IntDispMap, error) {
	out := newIntDispMap(width, height)
	err := forEachRowBand(height, bands, func(rs, re int) error {
		for r := rs; r < re; r++ {
			row0 := desc0[r*width : (r+1)*width]
			row1 := desc1[r*width : (r+1)*width]
			searchRow32(row0, row1, variant, out.Data[r*width:(r+1)*width])
		}
		return nil
	})
	return out, err
}

func searchGrid64(width, height int, desc0, desc1 []uint64, variant Variant, bands int) (IntDispMap, error) {
	out := newIntDispMap(width, height)
	err := forEachRowBand(height, bands, func(rs, re int) error {
		for r := rs; r < re; r++ {
			row0 := desc0[r*width : (r+1)*width]
			row1 := desc1[r*width : (r+1)*width]
			searchRow64(row0, row1, variant, out.Data[r*width:(r+1)*width])
		}
		return nil
	})
	return out, err
}

func searchGrid128(width, height int, desc0, desc1 []Uint128, variant Variant, bands int) (IntDispMap, error) {
	out := newIntDispMap(width, height)
	err := forEachRowBand(height, bands, func(rs, re int) error {
		for r := rs; r < re; r++ {
			row0 := desc0[r*width : (r+1)*width]
			row1 := desc1[r*width : (r+1)*width]
			searchRow128(row0, row1, variant, out.Data[r*width:(r+1)*width])
		}
		return nil
	})
	return out, err
}

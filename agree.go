package bicos

import "math"

/*------------------------------------------------------------------
 *
 * Purpose:	NXC agreement: temporal Pearson-correlation rescoring of
 *		the integer disparities produced by BICOS search, with
 *		optional subpixel refinement.
 *
 * Description:	Follows the same row-banded errgroup shape already
 *		established in descriptor.go/search.go: an integer pass,
 *		then an optional subpixel pass that replaces the output map
 *		wholesale rather than mutating it in place.
 *
 *------------------------------------------------------------------*/

// pearson computes the Pearson correlation coefficient between two
// equal-length temporal sample vectors, along with their raw (not
// N-normalised) variances Σ(x-x̄)².
func pearson(a, b []float64) (rho, varA, varB float64) {
	n := len(a)
	var sumA, sumB float64
	for i := 0; i < n; i++ {
		sumA += a[i]
		sumB += b[i]
	}
	meanA := sumA / float64(n)
	meanB := sumB / float64(n)

	var cov float64
	for i := 0; i < n; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}

	denom := math.Sqrt(varA * varB)
	if denom == 0 {
		return 0, varA, varB
	}
	return cov / denom, varA, varB
}

func toFloat64[U Pixel](seq []U, out []float64) {
	for i, v := range seq {
		out[i] = float64(v)
	}
}

// agreeParams bundles the options shared by the integer and subpixel
// NXC passes.
type agreeParams struct {
	threshold   float64
	minVarScale *float64 // config.MinVariance * N
	wantCorr    bool
	bands       int
}

// agree runs the non-subpixel NXC agreement pass: it rescores disp in
// place (writing InvalidDisp where rejected) and, if requested,
// populates a CorrMap.
func agree[U Pixel](disp *IntDispMap, stack0, stack1 *Stack[U], p agreeParams) (CorrMap, error) {
	corr := newCorrMap(disp.Width, disp.Height)

	err := forEachRowBand(disp.Height, p.bands, func(rs, re int) error {
		a := make([]float64, stack0.N)
		b := make([]float64, stack0.N)
		aSeq := make([]U, stack0.N)
		bSeq := make([]U, stack0.N)

		for r := rs; r < re; r++ {
			for c := 0; c < disp.Width; c++ {
				idx := r*disp.Width + c
				d := disp.Data[idx]
				if d == InvalidDisp {
					continue
				}
				col1 := c - int(d)
				if col1 < 0 || col1 >= stack1.Width {
					disp.Data[idx] = InvalidDisp
					continue
				}

				extractSequence(stack0, r, c, aSeq)
				extractSequence(stack1, r, col1, bSeq)
				toFloat64(aSeq, a)
				toFloat64(bSeq, b)

				rho, varA, varB := pearson(a, b)

				if rejectedByVariance(varA, varB, p.minVarScale) || rho < p.threshold {
					disp.Data[idx] = InvalidDisp
					continue
				}

				if p.wantCorr {
					corr.Data[idx] = float32(rho)
				}
			}
		}
		return nil
	})

	return corr, err
}

func rejectedByVariance(varA, varB float64, minVarScale *float64) bool {
	if minVarScale == nil {
		return false
	}
	return varA < *minVarScale || varB < *minVarScale
}

// subpixelOffsets returns the scanned δ values: all multiples of step
// strictly inside (-1, 1), i.e. -1+step, -1+2*step, ..., 1-step.
func subpixelOffsets(step float64) []float64 {
	var offsets []float64
	for k := 1; ; k++ {
		delta := -1 + float64(k)*step
		if delta >= 1-step/2 {
			break
		}
		offsets = append(offsets, delta)
	}
	return offsets
}

// interpFrame linearly interpolates frame values at fractional column
// col. Returns (value, ok); ok is false if col falls outside [0, width-1].
func interpFrame[U Pixel](frame []U, width int, col float64) (float64, bool) {
	if col < 0 || col > float64(width-1) {
		return 0, false
	}
	lo := int(math.Floor(col))
	frac := col - float64(lo)
	if lo == width-1 {
		return float64(frame[lo]), true
	}
	v0 := float64(frame[lo])
	v1 := float64(frame[lo+1])
	return v0 + frac*(v1-v0), true
}

// agreeSubpixel runs the subpixel-refinement NXC pass, producing a
// FloatDispMap in place of the integer map.
func agreeSubpixel[U Pixel](disp *IntDispMap, stack0, stack1 *Stack[U], step float64, p agreeParams) (FloatDispMap, CorrMap, error) {
	out := newFloatDispMap(disp.Width, disp.Height)
	corr := newCorrMap(disp.Width, disp.Height)
	offsets := subpixelOffsets(step)

	err := forEachRowBand(disp.Height, p.bands, func(rs, re int) error {
		a := make([]float64, stack0.N)
		aSeq := make([]U, stack0.N)
		b := make([]float64, stack0.N)

		for r := rs; r < re; r++ {
			for c := 0; c < disp.Width; c++ {
				idx := r*disp.Width + c
				d := disp.Data[idx]
				if d == InvalidDisp {
					continue
				}

				col1 := c - int(d)
				extractSequence(stack0, r, c, aSeq)
				toFloat64(aSeq, a)

				bestK := -1
				bestRho := math.Inf(-1)
				bestVarA, bestVarB := 0.0, 0.0
				rhos := make([]float64, len(offsets))
				valid := make([]bool, len(offsets))

				for k, delta := range offsets {
					target := float64(col1) + delta
					if !fillInterpolated(stack1, r, target, b) {
						valid[k] = false
						continue
					}
					rho, varA, varB := pearson(a, b)
					rhos[k] = rho
					valid[k] = true
					if rho > bestRho {
						bestRho = rho
						bestK = k
						bestVarA, bestVarB = varA, varB
					}
				}

				if bestK < 0 || rejectedByVariance(bestVarA, bestVarB, p.minVarScale) || bestRho < p.threshold {
					continue
				}

				vertex := 0.0
				if bestK > 0 && bestK < len(offsets)-1 && valid[bestK-1] && valid[bestK+1] {
					vertex = quadraticVertex(step, rhos[bestK-1], rhos[bestK], rhos[bestK+1])
				}

				out.Data[idx] = float32(float64(d) - (offsets[bestK] + vertex))
				if p.wantCorr {
					corr.Data[idx] = float32(bestRho)
				}
			}
		}
		return nil
	})

	return out, corr, err
}

// fillInterpolated fills b with stack1's per-frame values linearly
// interpolated at column target, row r. Returns false if target falls
// outside the image.
func fillInterpolated[U Pixel](stack1 *Stack[U], r int, target float64, b []float64) bool {
	if target < 0 || target > float64(stack1.Width-1) {
		return false
	}
	for k := 0; k < stack1.N; k++ {
		frame := stack1.Frame(k)
		row := frame[r*stack1.Width : (r+1)*stack1.Width]
		v, ok := interpFrame(row, stack1.Width, target)
		if !ok {
			return false
		}
		b[k] = v
	}
	return true
}

// quadraticVertex fits a parabola through three equally spaced (step
// apart) correlation samples centred on the peak and returns the
// vertex's offset from the centre sample, clamped to ±step. Callers
// only invoke this when both neighbours exist; when the peak sits at
// either end of the scanned range and has only one neighbour, the
// caller falls back to a vertex offset of 0, keeping the integer/peak
// disparity rather than extrapolating past the last sample.
func quadraticVertex(step, yMinus, yMid, yPlus float64) float64 {
	denom := yMinus - 2*yMid + yPlus
	if denom == 0 {
		return 0
	}
	offset := 0.5 * step * (yMinus - yPlus) / denom
	if offset > step {
		offset = step
	} else if offset < -step {
		offset = -step
	}
	return offset
}

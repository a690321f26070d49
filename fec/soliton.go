package fec

import "math"

// Robust soliton parameters.
const (
	SolitonC     = 0.1
	SolitonDelta = 0.5
)

// RobustSolitonCDF returns the cumulative robust soliton distribution over
// degrees 1..k. cdf[0] is 0 and cdf[k] is forced to exactly 1.0 to absorb
// floating point drift. The summation order is fixed; do not reorder it.
func RobustSolitonCDF(k int) []float64 {
	if k < 1 {
		k = 1
	}
	fk := float64(k)
	r := int(SolitonC * math.Log(fk/SolitonDelta) * math.Sqrt(fk))
	if r < 1 {
		r = 1
	}
	fr := float64(r)
	cut := k / r
	if cut < 1 {
		cut = 1
	}

	tau := make([]float64, k+1)
	for d := 1; d < k; d++ {
		switch {
		case d < cut:
			tau[d] = fr / (float64(d) * fk)
		case d == cut:
			tau[d] = fr * math.Log(fr/SolitonDelta) / fk
		}
	}
	rho := make([]float64, k+1)
	rho[1] = 1.0 / fk
	for d := 2; d <= k; d++ {
		rho[d] = 1.0 / float64(d*(d-1))
	}

	var sumRho, sumTau float64
	for d := 1; d <= k; d++ {
		sumRho += rho[d]
	}
	for d := 1; d <= k; d++ {
		sumTau += tau[d]
	}
	z := sumRho + sumTau

	cdf := make([]float64, k+1)
	var s float64
	for d := 1; d <= k; d++ {
		s += (rho[d] + tau[d]) / z
		cdf[d] = s
	}
	cdf[k] = 1.0
	return cdf
}

// SampleDegree draws one uniform value from rng and returns the smallest d
// in [1, len(cdf)-1] with cdf[d] >= u.
func SampleDegree(cdf []float64, rng *XorShift32) int {
	u := rng.Uniform()
	lo, hi := 1, len(cdf)-1
	for lo < hi {
		mid := (lo + hi) / 2
		if cdf[mid] >= u {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

package detector

// SizingPolicy decides the trade amount for a candidate pair given the
// configured maximum and the reported 24h volumes of both sides. Returning
// a value below the caller's minimum floor discards the pair.
//
// The default volume-fraction heuristic is an admitted placeholder for real
// order-book depth analysis, which is why this is a swappable function
// rather than a constant.
type SizingPolicy func(maxAmount, buyVolume, sellVolume float64) float64

// VolumeFractionSizing sizes trades as a flat fraction of the smaller
// side's reported volume, capped at maxAmount.
func VolumeFractionSizing(fraction float64) SizingPolicy {
	return func(maxAmount, buyVolume, sellVolume float64) float64 {
		minVol := buyVolume
		if sellVolume < minVol {
			minVol = sellVolume
		}
		amount := fraction * minVol
		if amount > maxAmount {
			amount = maxAmount
		}
		return amount
	}
}

// FixedSizing always trades the configured maximum, ignoring volume. Useful
// for simulation runs and tests.
func FixedSizing() SizingPolicy {
	return func(maxAmount, _, _ float64) float64 {
		return maxAmount
	}
}

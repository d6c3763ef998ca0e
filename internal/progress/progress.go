package progress

import "math"

// Band boundaries for a single addon. Summing bands across addons lets the
// aggregate be computed without knowing how many sub-steps each addon has.
const (
	BandStart      = 0
	BandFetched    = 100
	BandDownloaded = 200
	BandValidated  = 250
	BandExtracted  = 300

	// BandWidth is the value of one fully finished addon
	BandWidth = BandExtracted
)

// Percent returns round(100*value/max) clamped to [0,100]. A zero max yields 0.
func Percent(value, max uint64) int {
	if max == 0 {
		return 0
	}
	p := math.Round(float64(value) * 100 / float64(max))
	return clamp(int(p), 0, 100)
}

// Aggregate converts the sum of all addon band values into one percentage.
func Aggregate(sum, addons int) int {
	if sum <= 0 || addons <= 0 {
		return 0
	}
	return Percent(uint64(sum), uint64(addons)*BandWidth)
}

// Band offsets base by a sub-percentage clamped to [0,100].
func Band(base, sub int) int {
	return base + clamp(sub, 0, 100)
}

// Download maps received/total bytes into the 100-200 band.
func Download(received, total uint64) int {
	return Band(BandFetched, Percent(received, total))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

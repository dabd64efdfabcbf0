package compute

// MAWindows are the moving-average windows tracked on summary rows.
var MAWindows = []int{8, 21, 50, 200}

// SMA calculates the simple moving average of the last n values.
// Returns 0 when there is not enough history.
func SMA(values []float64, n int) float64 {
	if len(values) < n || n <= 0 {
		return 0
	}
	sum := 0.0
	for i := len(values) - n; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(n)
}

// MAPositions reports, per window, whether the latest close sits above
// its SMA. Windows without enough history yield nil.
type MAPositions struct {
	Above8   *bool
	Above21  *bool
	Above50  *bool
	Above200 *bool
}

// Positions evaluates the latest close against each tracked window.
func Positions(closes []float64) MAPositions {
	var pos MAPositions
	if len(closes) == 0 {
		return pos
	}
	last := closes[len(closes)-1]
	for _, window := range MAWindows {
		if len(closes) < window {
			continue
		}
		above := last > SMA(closes, window)
		switch window {
		case 8:
			pos.Above8 = &above
		case 21:
			pos.Above21 = &above
		case 50:
			pos.Above50 = &above
		case 200:
			pos.Above200 = &above
		}
	}
	return pos
}

// AboveValue reports whether the latest close is above an externally
// computed moving-average value (from the indicator endpoint).
func AboveValue(latestClose, maValue float64) *bool {
	if maValue == 0 {
		return nil
	}
	above := latestClose > maValue
	return &above
}

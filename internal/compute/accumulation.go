package compute

// Accumulation-zone detection parameters. A zone is a tight price range
// holding elevated volume: supply being absorbed without price discovery.
const (
	// accumulationWindow is the number of trailing sessions inspected.
	accumulationWindow = 14

	// maxRangeRatio is the widest (high-low)/avgClose range that still
	// counts as "tight".
	maxRangeRatio = 0.06

	// minVolumeRatio is the minimum trailing-vs-prior volume ratio.
	minVolumeRatio = 1.25
)

// AccumulationZone describes a detected zone.
type AccumulationZone struct {
	StartDate   string
	EndDate     string
	Low         float64
	High        float64
	VolumeRatio float64
}

// DetectAccumulation inspects the trailing window for a tight range with
// building volume. Returns nil when no zone is present or history is
// insufficient.
func DetectAccumulation(points []DailyPoint) *AccumulationZone {
	if len(points) < 2*accumulationWindow {
		return nil
	}

	window := points[len(points)-accumulationWindow:]
	prior := points[len(points)-2*accumulationWindow : len(points)-accumulationWindow]

	low, high, closeSum := window[0].Low, window[0].High, 0.0
	for _, p := range window {
		if p.Low > 0 && p.Low < low {
			low = p.Low
		}
		if p.High > high {
			high = p.High
		}
		closeSum += p.Close
	}
	avgClose := closeSum / float64(len(window))
	if avgClose == 0 {
		return nil
	}

	rangeRatio := (high - low) / avgClose
	if rangeRatio > maxRangeRatio {
		return nil
	}

	priorVol := avgVolume(prior)
	if priorVol == 0 {
		return nil
	}
	volumeRatio := avgVolume(window) / priorVol
	if volumeRatio < minVolumeRatio {
		return nil
	}

	return &AccumulationZone{
		StartDate:   window[0].TradeDate,
		EndDate:     window[len(window)-1].TradeDate,
		Low:         low,
		High:        high,
		VolumeRatio: volumeRatio,
	}
}

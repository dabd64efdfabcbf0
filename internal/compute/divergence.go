package compute

import (
	"github.com/ternarybob/speculor/internal/models"
)

// driftThreshold is the relative price change below which price is
// considered flat for divergence purposes.
const driftThreshold = 0.002

// Classify returns the divergence class over the trailing lookback
// window: bullish when volume builds under flat-to-falling price
// (accumulation), bearish when volume drains under rising price (a rally
// without participation), otherwise neutral. Insufficient history is
// neutral.
func Classify(points []DailyPoint, lookbackDays int) string {
	// Need the window plus an equally sized prior window for the volume
	// baseline.
	if lookbackDays <= 0 || len(points) < 2*lookbackDays+1 {
		return models.StateNeutral
	}

	last := points[len(points)-1].Close
	ref := points[len(points)-1-lookbackDays].Close
	if ref == 0 {
		return models.StateNeutral
	}
	priceChange := (last - ref) / ref

	volDelta := VolumeDelta(points, lookbackDays)

	switch {
	case volDelta > 0 && priceChange <= driftThreshold:
		return models.StateBullish
	case volDelta < 0 && priceChange >= -driftThreshold:
		return models.StateBearish
	default:
		return models.StateNeutral
	}
}

// VolumeDelta is the difference between the average volume of the
// trailing window and the window before it, normalised by the baseline.
// Positive values mean volume is building.
func VolumeDelta(points []DailyPoint, lookbackDays int) float64 {
	if lookbackDays <= 0 || len(points) < 2*lookbackDays {
		return 0
	}
	recent := avgVolume(points[len(points)-lookbackDays:])
	prior := avgVolume(points[len(points)-2*lookbackDays : len(points)-lookbackDays])
	if prior == 0 {
		return 0
	}
	return (recent - prior) / prior
}

// States classifies every standard lookback window. Every field is
// populated; windows without history come back neutral.
func States(points []DailyPoint) models.DivergenceStates {
	states := models.AllNeutral()
	for _, window := range models.LookbackWindows {
		class := Classify(points, window)
		switch window {
		case 1:
			states.State1D = class
		case 3:
			states.State3D = class
		case 7:
			states.State7D = class
		case 14:
			states.State14D = class
		case 28:
			states.State28D = class
		}
	}
	return states
}

func avgVolume(points []DailyPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range points {
		sum += p.Volume
	}
	return sum / float64(len(points))
}

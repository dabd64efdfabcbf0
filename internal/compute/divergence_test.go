package compute

import (
	"fmt"
	"testing"

	"github.com/ternarybob/speculor/internal/models"
)

// series builds daily points from parallel close and volume values.
func series(closes, volumes []float64) []DailyPoint {
	points := make([]DailyPoint, len(closes))
	for i := range closes {
		points[i] = DailyPoint{
			TradeDate: fmt.Sprintf("2026-08-%02d", i+1),
			Close:     closes[i],
			Volume:    volumes[i],
		}
	}
	return points
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		closes   []float64
		volumes  []float64
		lookback int
		expected string
	}{
		{
			name:     "Volume building under flat price is bullish",
			closes:   []float64{100, 100, 100},
			volumes:  []float64{100, 100, 150},
			lookback: 1,
			expected: models.StateBullish,
		},
		{
			name:     "Volume draining under rising price is bearish",
			closes:   []float64{100, 100, 102},
			volumes:  []float64{100, 100, 50},
			lookback: 1,
			expected: models.StateBearish,
		},
		{
			name:     "Volume building under rising price is neutral",
			closes:   []float64{100, 100, 105},
			volumes:  []float64{100, 100, 150},
			lookback: 1,
			expected: models.StateNeutral,
		},
		{
			name:     "Insufficient history is neutral",
			closes:   []float64{100, 100},
			volumes:  []float64{100, 150},
			lookback: 1,
			expected: models.StateNeutral,
		},
		{
			name:     "Zero lookback is neutral",
			closes:   []float64{100, 100, 100},
			volumes:  []float64{100, 100, 150},
			lookback: 0,
			expected: models.StateNeutral,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(series(tt.closes, tt.volumes), tt.lookback)
			if got != tt.expected {
				t.Errorf("Classify() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestVolumeDelta(t *testing.T) {
	points := series(
		[]float64{100, 100, 100, 100},
		[]float64{100, 100, 150, 150},
	)
	// Trailing window [150 150] vs prior [100 100] is +50%.
	if got := VolumeDelta(points, 2); got != 0.5 {
		t.Errorf("VolumeDelta = %v, want 0.5", got)
	}

	if got := VolumeDelta(points, 3); got != 0 {
		t.Errorf("VolumeDelta with short history = %v, want 0", got)
	}
}

func TestStates_PopulatesEveryWindow(t *testing.T) {
	points := series(
		[]float64{100, 100, 100},
		[]float64{100, 100, 150},
	)

	states := States(points)
	if states.State1D != models.StateBullish {
		t.Errorf("State1D = %q, want bullish", states.State1D)
	}
	// Longer windows lack history and settle neutral.
	for name, class := range map[string]string{
		"State3D":  states.State3D,
		"State7D":  states.State7D,
		"State14D": states.State14D,
		"State28D": states.State28D,
	} {
		if class != models.StateNeutral {
			t.Errorf("%s = %q, want neutral", name, class)
		}
	}
}

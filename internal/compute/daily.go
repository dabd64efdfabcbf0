// Package compute holds the pure per-ticker computations driven by the
// scan programs: daily aggregation of raw bars, price/volume divergence
// classification, moving-average positions and accumulation detection.
package compute

import (
	"sort"
	"time"

	"github.com/ternarybob/speculor/internal/models"
)

// DailyPoint is one trading session reduced from raw bars: last close and
// total volume for the session.
type DailyPoint struct {
	TradeDate string
	Close     float64
	Volume    float64
	High      float64
	Low       float64
}

// AggregateDaily reduces ordered raw bars to one point per trade date in
// the given zone. Input order does not matter; output is date-ascending.
func AggregateDaily(bars []models.Bar, loc *time.Location) []DailyPoint {
	byDate := make(map[string]*DailyPoint)
	for _, bar := range bars {
		date := bar.Timestamp.In(loc).Format("2006-01-02")
		p, ok := byDate[date]
		if !ok {
			p = &DailyPoint{TradeDate: date, High: bar.High, Low: bar.Low}
			byDate[date] = p
		}
		// Bars arrive time-ascending per date, so the last close wins.
		p.Close = bar.Close
		p.Volume += bar.Volume
		if bar.High > p.High {
			p.High = bar.High
		}
		if p.Low == 0 || (bar.Low > 0 && bar.Low < p.Low) {
			p.Low = bar.Low
		}
	}

	points := make([]DailyPoint, 0, len(byDate))
	for _, p := range byDate {
		points = append(points, *p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].TradeDate < points[j].TradeDate })
	return points
}

// Closes extracts the close series from daily points.
func Closes(points []DailyPoint) []float64 {
	closes := make([]float64, len(points))
	for i, p := range points {
		closes[i] = p.Close
	}
	return closes
}

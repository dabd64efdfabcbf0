package compute

import (
	"fmt"
	"testing"
)

// accumulationSeries builds 28 sessions: a prior window followed by the
// trailing window under test.
func accumulationSeries(priorVol, windowVol, windowHigh, windowLow float64) []DailyPoint {
	points := make([]DailyPoint, 0, 2*accumulationWindow)
	for i := 0; i < accumulationWindow; i++ {
		points = append(points, DailyPoint{
			TradeDate: fmt.Sprintf("2026-07-%02d", i+1),
			Close:     100,
			High:      101,
			Low:       99,
			Volume:    priorVol,
		})
	}
	for i := 0; i < accumulationWindow; i++ {
		points = append(points, DailyPoint{
			TradeDate: fmt.Sprintf("2026-08-%02d", i+1),
			Close:     100,
			High:      windowHigh,
			Low:       windowLow,
			Volume:    windowVol,
		})
	}
	return points
}

func TestDetectAccumulation_Zone(t *testing.T) {
	// Tight 1.5% range with 50% volume build.
	points := accumulationSeries(100, 150, 101, 99.5)

	zone := DetectAccumulation(points)
	if zone == nil {
		t.Fatal("expected a zone")
	}
	if zone.StartDate != "2026-08-01" || zone.EndDate != "2026-08-14" {
		t.Errorf("zone span = %s..%s", zone.StartDate, zone.EndDate)
	}
	if zone.VolumeRatio != 1.5 {
		t.Errorf("volume ratio = %v, want 1.5", zone.VolumeRatio)
	}
	if zone.Low != 99.5 || zone.High != 101 {
		t.Errorf("zone range = [%v, %v]", zone.Low, zone.High)
	}
}

func TestDetectAccumulation_WideRange(t *testing.T) {
	// 11% range breaks the tightness bound even with volume building.
	if zone := DetectAccumulation(accumulationSeries(100, 150, 106, 95)); zone != nil {
		t.Errorf("expected no zone for a wide range, got %+v", zone)
	}
}

func TestDetectAccumulation_FlatVolume(t *testing.T) {
	if zone := DetectAccumulation(accumulationSeries(100, 110, 101, 99.5)); zone != nil {
		t.Errorf("expected no zone without a volume build, got %+v", zone)
	}
}

func TestDetectAccumulation_ShortHistory(t *testing.T) {
	points := accumulationSeries(100, 150, 101, 99.5)
	if zone := DetectAccumulation(points[:accumulationWindow+1]); zone != nil {
		t.Error("expected no zone with insufficient history")
	}
}

package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/speculor/internal/common"
	"github.com/ternarybob/speculor/internal/compute"
	"github.com/ternarybob/speculor/internal/models"
)

// workUnit runs one per-ticker computation under the ticker timeout.
func (o *Orchestrator) workUnit(ctx context.Context, rs *runState, ticker string) (TickerOutcome, error) {
	label := fmt.Sprintf("%s:%s", rs.program, ticker)
	return RunWithAbortAndTimeout(ctx, o.cfg.Scan.TickerTimeout, label,
		func(ctx context.Context) (TickerOutcome, error) {
			switch rs.program {
			case ProgramFetchWeekly:
				return o.fetchWeeklyTicker(ctx, rs, ticker)
			case ProgramAccumulation:
				return o.accumulationTicker(ctx, rs, ticker)
			case ProgramDetector:
				return o.detectorTicker(ctx, rs, ticker)
			default:
				return o.fetchDailyTicker(ctx, rs, ticker)
			}
		})
}

// fetchDailyTicker is the fetch-daily work unit: intraday bars reduced
// to daily points, divergence states, MA positions from local history,
// per-day backfill rows and a one-day-timeframe signal.
func (o *Orchestrator) fetchDailyTicker(ctx context.Context, rs *runState, ticker string) (TickerOutcome, error) {
	from, err := common.LookbackStart(rs.asOf, rs.lookbackDays*2)
	if err != nil {
		return TickerOutcome{}, err
	}

	bars, err := o.provider.FetchAggs(ctx, ticker, rs.interval, from, rs.asOf)
	if err != nil {
		return TickerOutcome{}, err
	}

	points := compute.AggregateDaily(bars, common.Eastern())
	if len(points) == 0 {
		return TickerOutcome{Ticker: ticker, Skipped: true}, nil
	}

	return o.buildDailyOutcome(rs, ticker, points, rs.interval), nil
}

// fetchWeeklyTicker aggregates two years of daily bars into weekly
// points and classifies divergence at weekly lookbacks.
func (o *Orchestrator) fetchWeeklyTicker(ctx context.Context, rs *runState, ticker string) (TickerOutcome, error) {
	from, err := common.LookbackStart(rs.asOf, 730)
	if err != nil {
		return TickerOutcome{}, err
	}

	bars, err := o.provider.FetchAggs(ctx, ticker, models.Interval1Day, from, rs.asOf)
	if err != nil {
		return TickerOutcome{}, err
	}

	daily := compute.AggregateDaily(bars, common.Eastern())
	points := aggregateWeekly(daily)
	if len(points) == 0 {
		return TickerOutcome{Ticker: ticker, Skipped: true}, nil
	}

	latest := points[len(points)-1]
	var prevClose float64
	if len(points) > 1 {
		prevClose = points[len(points)-2].Close
	}

	states := compute.States(points)
	summary := models.Summary{
		Ticker:         ticker,
		SourceInterval: models.Interval1Week,
		TradeDate:      latest.TradeDate,
		States:         states,
		ScanJobID:      rs.jobID,
		UpdatedAt:      time.Now(),
	}

	outcome := TickerOutcome{
		Ticker:          ticker,
		LatestTradeDate: latest.TradeDate,
		Summary:         &summary,
		Seed: &MASeed{
			Ticker:      ticker,
			LatestClose: latest.Close,
			Summary:     summary,
		},
	}

	class := compute.Classify(points, 1)
	if class == models.StateNeutral {
		outcome.Neutral = &models.NeutralMarker{
			Ticker:         ticker,
			TradeDate:      latest.TradeDate,
			Timeframe:      models.Timeframe1W,
			SourceInterval: models.Interval1Week,
		}
	} else {
		outcome.Signal = &models.Signal{
			Ticker:         ticker,
			SignalType:     class,
			TradeDate:      latest.TradeDate,
			Price:          latest.Close,
			PrevClose:      prevClose,
			VolumeDelta:    compute.VolumeDelta(points, 1),
			Timeframe:      models.Timeframe1W,
			SourceInterval: models.Interval1Week,
			Timestamp:      time.Now(),
			ScanJobID:      rs.jobID,
		}
	}
	return outcome, nil
}

// accumulationTicker writes daily history rows and flags tight-range
// volume build-ups. Summary rows for this program are rebuilt from the
// persisted daily rows at publish time.
func (o *Orchestrator) accumulationTicker(ctx context.Context, rs *runState, ticker string) (TickerOutcome, error) {
	from, err := common.LookbackStart(rs.asOf, rs.lookbackDays*2)
	if err != nil {
		return TickerOutcome{}, err
	}

	bars, err := o.provider.FetchAggs(ctx, ticker, models.Interval1Day, from, rs.asOf)
	if err != nil {
		return TickerOutcome{}, err
	}

	points := compute.AggregateDaily(bars, common.Eastern())
	if len(points) == 0 {
		return TickerOutcome{Ticker: ticker, Skipped: true}, nil
	}

	latest := points[len(points)-1]
	outcome := TickerOutcome{
		Ticker:          ticker,
		LatestTradeDate: latest.TradeDate,
		Bars:            dailyRows(rs, ticker, points, models.Interval1Day),
	}

	if zone := compute.DetectAccumulation(points); zone != nil {
		outcome.Signal = &models.Signal{
			Ticker:         ticker,
			SignalType:     models.StateBullish,
			TradeDate:      latest.TradeDate,
			Price:          latest.Close,
			PrevClose:      zone.Low,
			VolumeDelta:    zone.VolumeRatio - 1,
			Timeframe:      models.Timeframe1D,
			SourceInterval: models.Interval1Day,
			Timestamp:      time.Now(),
			ScanJobID:      rs.jobID,
		}
	}
	return outcome, nil
}

// detectorTicker is the heavy program: full intraday history per ticker,
// daily divergence plus accumulation screening in one unit.
func (o *Orchestrator) detectorTicker(ctx context.Context, rs *runState, ticker string) (TickerOutcome, error) {
	from, err := common.LookbackStart(rs.asOf, rs.lookbackDays*2)
	if err != nil {
		return TickerOutcome{}, err
	}

	bars, err := o.provider.FetchAggs(ctx, ticker, rs.interval, from, rs.asOf)
	if err != nil {
		return TickerOutcome{}, err
	}

	points := compute.AggregateDaily(bars, common.Eastern())
	if len(points) == 0 {
		return TickerOutcome{Ticker: ticker, Skipped: true}, nil
	}

	outcome := o.buildDailyOutcome(rs, ticker, points, rs.interval)

	// The detector keeps a divergence signal only when the accumulation
	// screen agrees; everything else settles to neutral.
	if outcome.Signal != nil && outcome.Signal.SignalType == models.StateBullish {
		if zone := compute.DetectAccumulation(points); zone == nil {
			latest := points[len(points)-1]
			outcome.Signal = nil
			outcome.Neutral = &models.NeutralMarker{
				Ticker:         ticker,
				TradeDate:      latest.TradeDate,
				Timeframe:      models.Timeframe1D,
				SourceInterval: rs.interval,
			}
		}
	}
	return outcome, nil
}

// buildDailyOutcome derives the shared daily artefacts: summary row with
// divergence states and locally computable MA positions, per-day history
// rows, the one-day signal or neutral marker, and the MA seed.
func (o *Orchestrator) buildDailyOutcome(rs *runState, ticker string, points []compute.DailyPoint, interval models.SourceInterval) TickerOutcome {
	latest := points[len(points)-1]
	var prevClose float64
	if len(points) > 1 {
		prevClose = points[len(points)-2].Close
	}

	closes := compute.Closes(points)
	positions := compute.Positions(closes)

	summary := models.Summary{
		Ticker:         ticker,
		SourceInterval: interval,
		TradeDate:      latest.TradeDate,
		States:         compute.States(points),
		MA8Above:       positions.Above8,
		MA21Above:      positions.Above21,
		ScanJobID:      rs.jobID,
		UpdatedAt:      time.Now(),
	}

	outcome := TickerOutcome{
		Ticker:          ticker,
		LatestTradeDate: latest.TradeDate,
		Bars:            dailyRows(rs, ticker, points, interval),
		Summary:         &summary,
		Seed: &MASeed{
			Ticker:      ticker,
			LatestClose: latest.Close,
			Summary:     summary,
		},
	}

	class := summary.States.State1D
	if class == models.StateNeutral {
		outcome.Neutral = &models.NeutralMarker{
			Ticker:         ticker,
			TradeDate:      latest.TradeDate,
			Timeframe:      models.Timeframe1D,
			SourceInterval: interval,
		}
	} else {
		outcome.Signal = &models.Signal{
			Ticker:         ticker,
			SignalType:     class,
			TradeDate:      latest.TradeDate,
			Price:          latest.Close,
			PrevClose:      prevClose,
			VolumeDelta:    compute.VolumeDelta(points, 1),
			Timeframe:      models.Timeframe1D,
			SourceInterval: interval,
			Timestamp:      time.Now(),
			ScanJobID:      rs.jobID,
		}
	}
	return outcome
}

// dailyRows converts daily points to persisted history rows.
func dailyRows(rs *runState, ticker string, points []compute.DailyPoint, interval models.SourceInterval) []models.DailyBar {
	rows := make([]models.DailyBar, 0, len(points))
	for i, p := range points {
		var prevClose, volumeDelta float64
		if i > 0 {
			prevClose = points[i-1].Close
			if points[i-1].Volume > 0 {
				volumeDelta = (p.Volume - points[i-1].Volume) / points[i-1].Volume
			}
		}
		rows = append(rows, models.DailyBar{
			Ticker:         ticker,
			TradeDate:      p.TradeDate,
			SourceInterval: interval,
			Close:          p.Close,
			PrevClose:      prevClose,
			VolumeDelta:    volumeDelta,
			ScanJobID:      rs.jobID,
			UpdatedAt:      time.Now(),
		})
	}
	return rows
}

// aggregateWeekly reduces daily points to one per ISO week: last close
// wins, volume sums, trade date is the week's last session.
func aggregateWeekly(daily []compute.DailyPoint) []compute.DailyPoint {
	var weekly []compute.DailyPoint
	lastKey := ""
	for _, p := range daily {
		t, err := time.Parse(common.TradeDateLayout, p.TradeDate)
		if err != nil {
			continue
		}
		year, week := t.ISOWeek()
		key := fmt.Sprintf("%d-%02d", year, week)
		if key != lastKey {
			weekly = append(weekly, p)
			lastKey = key
			continue
		}
		w := &weekly[len(weekly)-1]
		w.TradeDate = p.TradeDate
		w.Close = p.Close
		w.Volume += p.Volume
		if p.High > w.High {
			w.High = p.High
		}
		if p.Low > 0 && (w.Low == 0 || p.Low < w.Low) {
			w.Low = p.Low
		}
	}
	return weekly
}

// maEnrichTicker fetches the indicator-endpoint moving averages for one
// seed and re-upserts its summary with the MA columns filled. Windows
// already decided from local history are kept.
func (o *Orchestrator) maEnrichTicker(ctx context.Context, rs *runState, seed MASeed) (models.Summary, error) {
	label := fmt.Sprintf("%s:ma:%s", rs.program, seed.Ticker)
	return RunWithAbortAndTimeout(ctx, o.cfg.Scan.MATimeout, label,
		func(ctx context.Context) (models.Summary, error) {
			enriched := seed.Summary
			windows := []struct {
				n      int
				target **bool
			}{
				{8, &enriched.MA8Above},
				{21, &enriched.MA21Above},
				{50, &enriched.MA50Above},
				{200, &enriched.MA200Above},
			}
			for _, w := range windows {
				if *w.target != nil {
					continue
				}
				value, err := o.provider.FetchMovingAverage(ctx, seed.Ticker, "sma", w.n)
				if err != nil {
					return models.Summary{}, err
				}
				*w.target = compute.AboveValue(seed.LatestClose, value)
			}
			enriched.ScanJobID = rs.jobID
			enriched.UpdatedAt = time.Now()
			return enriched, nil
		})
}

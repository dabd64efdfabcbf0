// Package scan is the bulk scan engine: bounded fan-out over the ticker
// universe, per-program controllers with stop/pause/resume, a serialised
// batched flusher and the run orchestrator that sequences the phases.
package scan

import (
	"fmt"

	"github.com/ternarybob/speculor/internal/common"
)

// Program identifies a scan program. Programs differ in per-ticker work
// and which output buffers they populate; orchestration is identical.
type Program string

const (
	ProgramFetchDaily   Program = "fetch-daily"
	ProgramFetchWeekly  Program = "fetch-weekly"
	ProgramAccumulation Program = "accumulation-scan"
	ProgramDetector     Program = "detector-scan"
)

// MemoryClass describes a program's per-ticker memory appetite.
// Heavy programs get their concurrency hard-clamped.
type MemoryClass int

const (
	MemoryLight MemoryClass = iota
	MemoryHeavy
)

// memoryHeavyCeiling caps concurrency for heavy programs regardless of
// the adaptive calculation.
const memoryHeavyCeiling = 3

// Programs lists every known program.
var Programs = []Program{ProgramFetchDaily, ProgramFetchWeekly, ProgramAccumulation, ProgramDetector}

// IsValid reports whether the program is known.
func (p Program) IsValid() bool {
	switch p {
	case ProgramFetchDaily, ProgramFetchWeekly, ProgramAccumulation, ProgramDetector:
		return true
	}
	return false
}

// APICallsPerTicker is the estimated provider call count per work unit,
// used to size adaptive concurrency against the rate limit.
func (p Program) APICallsPerTicker() int {
	switch p {
	case ProgramFetchWeekly:
		return 10
	default:
		return 8
	}
}

// Memory returns the program's memory class. The detector scan holds a
// full intraday history per in-flight ticker.
func (p Program) Memory() MemoryClass {
	if p == ProgramDetector {
		return MemoryHeavy
	}
	return MemoryLight
}

// configuredConcurrency is the per-program ceiling from config.
func (p Program) configuredConcurrency(cfg *common.ScanConfig) int {
	switch p {
	case ProgramFetchWeekly:
		return cfg.WeeklyConcurrency
	case ProgramDetector, ProgramAccumulation:
		return cfg.DetectorConcurrency
	default:
		return cfg.FetchConcurrency
	}
}

// ResolveAdaptiveConcurrency sizes the fan-out for a program against the
// provider rate limit. target_tps is how many tickers per second the
// limit sustains; the fan-out runs at 4x that to keep the bucket busy
// through per-ticker latency, floored at the configured minimum and
// clamped to the configured ceiling.
func ResolveAdaptiveConcurrency(p Program, cfg *common.ScanConfig, maxRPS int) int {
	if maxRPS < 1 {
		maxRPS = 1
	}
	targetTPS := maxRPS / p.APICallsPerTicker()
	adaptive := targetTPS * 4
	if adaptive < cfg.AdaptiveMinConcurrency {
		adaptive = cfg.AdaptiveMinConcurrency
	}

	configured := p.configuredConcurrency(cfg)
	if adaptive > configured {
		adaptive = configured
	}
	if adaptive < 1 {
		adaptive = 1
	}
	if p.Memory() == MemoryHeavy && adaptive > memoryHeavyCeiling {
		adaptive = memoryHeavyCeiling
	}
	return adaptive
}

// ParseProgram validates a program name from an external caller.
func ParseProgram(name string) (Program, error) {
	p := Program(name)
	if !p.IsValid() {
		return "", fmt.Errorf("unknown scan program: %q", name)
	}
	return p, nil
}

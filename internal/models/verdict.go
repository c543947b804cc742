package models

import "time"

type VerdictCategory string

const (
	VerdictRainLikely      VerdictCategory = "rain-likely"
	VerdictShowersPossible VerdictCategory = "showers-possible"
	VerdictDry             VerdictCategory = "dry"
)

// Verdict is the rain/no-rain conclusion for a single check. It is derived
// from a ForecastSeries, never persisted, and recomputed on every fetch.
type Verdict struct {
	IsRainLikely    bool            `json:"isRainLikely"`
	HeadlineSummary string          `json:"headlineSummary"`
	DetailLine      string          `json:"detailLine,omitempty"`
	ReferenceTime   time.Time       `json:"referenceTime"`
	Category        VerdictCategory `json:"category"`
}

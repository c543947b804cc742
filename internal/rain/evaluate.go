// Package rain turns a forecast series into a human-facing verdict. Evaluate
// is pure: no clock reads, no I/O, the same series and evaluation time always
// produce the same verdict.
package rain

import (
	"fmt"
	"math"
	"time"

	"github.com/rainwatch/rainwatch/internal/models"
)

// Decision thresholds applied to each hourly point.
const (
	rainLikelyProbability = 50.0
	rainLikelyAmountMm    = 0.1

	showersProbability = 20.0
	showersAmountMm    = 0.05
)

const headlineTimeLayout = "Mon 15:04"

// Evaluate derives a verdict from the series. The candidate lists are tried
// in order (window, next 24h, all points) and the first qualifying point
// wins, so a risk visible only outside the narrow lookahead window still
// surfaces. The evaluation time `at` anchors dry verdicts.
func Evaluate(series *models.ForecastSeries, at time.Time) models.Verdict {
	cascade := [][]models.ForecastPoint{
		series.WindowPoints,
		series.Next24HourPoints,
		series.AllPoints,
	}

	detail := detailLine(series)

	if point, ok := firstMatch(cascade, rainLikelyProbability, rainLikelyAmountMm); ok {
		return models.Verdict{
			IsRainLikely: true,
			HeadlineSummary: fmt.Sprintf("Rain likely around %s (%d%%)",
				formatIn(point.Timestamp, series.Timezone), roundPercent(point.ProbabilityPercent)),
			DetailLine:    detail,
			ReferenceTime: point.Timestamp,
			Category:      models.VerdictRainLikely,
		}
	}

	if point, ok := firstMatch(cascade, showersProbability, showersAmountMm); ok {
		return models.Verdict{
			IsRainLikely: false,
			HeadlineSummary: fmt.Sprintf("Showers possible around %s (%d%%)",
				formatIn(point.Timestamp, series.Timezone), roundPercent(point.ProbabilityPercent)),
			DetailLine:    detail,
			ReferenceTime: point.Timestamp,
			Category:      models.VerdictShowersPossible,
		}
	}

	return models.Verdict{
		IsRainLikely:    false,
		HeadlineSummary: fmt.Sprintf("No rain expected in the next %dh", series.LookaheadHours),
		DetailLine:      detail,
		ReferenceTime:   at,
		Category:        models.VerdictDry,
	}
}

// firstMatch returns the first point, in cascade order, exceeding either
// threshold. Within one list the first qualifying point is the one with the
// lowest timestamp, even if a later point scores higher.
func firstMatch(cascade [][]models.ForecastPoint, minProbability, minAmountMm float64) (models.ForecastPoint, bool) {
	for _, points := range cascade {
		for _, p := range points {
			if p.ProbabilityPercent >= minProbability || p.RainfallMm > minAmountMm {
				return p, true
			}
		}
	}
	return models.ForecastPoint{}, false
}

// detailLine reports the series-wide peak probability, ties broken by the
// earliest timestamp.
func detailLine(series *models.ForecastSeries) string {
	peak, ok := series.MaxProbabilityPoint()
	if !ok {
		return ""
	}
	return fmt.Sprintf("Peak chance reaches %d%% around %s",
		roundPercent(peak.ProbabilityPercent), formatIn(peak.Timestamp, series.Timezone))
}

// formatIn renders the time in the series' resolved timezone, never the
// evaluator's local zone.
func formatIn(t time.Time, location *time.Location) string {
	if location != nil {
		t = t.In(location)
	}
	return t.Format(headlineTimeLayout)
}

func roundPercent(p float64) int {
	return int(math.Round(p))
}

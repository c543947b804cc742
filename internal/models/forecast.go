package models

import (
	"fmt"
	"time"
)

// ForecastPoint is one hourly sample of the decoded forecast series. Identity
// is structural: the timestamp. A well-formed series never repeats one.
type ForecastPoint struct {
	Timestamp          time.Time `json:"timestamp"`
	ProbabilityPercent float64   `json:"probabilityPercent"`
	RainfallMm         float64   `json:"rainfallMm"`
}

// ForecastSeries is a decoded hourly forecast plus the two time-windowed
// subsequences the evaluator works over. Points are ascending by timestamp,
// one per hour in a well-formed provider response.
type ForecastSeries struct {
	AllPoints        []ForecastPoint `json:"allPoints"`
	Timezone         *time.Location  `json:"-"`
	LookaheadHours   int             `json:"lookaheadHours"`
	WindowPoints     []ForecastPoint `json:"windowPoints"`
	Next24HourPoints []ForecastPoint `json:"next24HourPoints"`
}

// Validate checks the series invariants: both subsequences are non-decreasing
// in timestamp and every subsequence element also appears in AllPoints. It is
// wired behind the strict-validation config flag and never runs on the
// production path.
func (s *ForecastSeries) Validate() error {
	if s.Timezone == nil {
		return fmt.Errorf("series has no resolved timezone")
	}

	index := make(map[int64]struct{}, len(s.AllPoints))
	var prev time.Time
	for i, p := range s.AllPoints {
		if i > 0 && p.Timestamp.Before(prev) {
			return fmt.Errorf("allPoints out of order at index %d", i)
		}
		prev = p.Timestamp
		index[p.Timestamp.Unix()] = struct{}{}
	}

	if err := validateSubsequence("windowPoints", s.WindowPoints, index); err != nil {
		return err
	}
	return validateSubsequence("next24HourPoints", s.Next24HourPoints, index)
}

func validateSubsequence(name string, points []ForecastPoint, index map[int64]struct{}) error {
	var prev time.Time
	for i, p := range points {
		if i > 0 && p.Timestamp.Before(prev) {
			return fmt.Errorf("%s out of order at index %d", name, i)
		}
		prev = p.Timestamp
		if _, ok := index[p.Timestamp.Unix()]; !ok {
			return fmt.Errorf("%s contains timestamp %s missing from allPoints", name, p.Timestamp)
		}
	}
	return nil
}

// MaxProbabilityPoint returns the point with the highest precipitation
// probability across AllPoints, ties broken by earliest timestamp. The second
// return is false for an empty series.
func (s *ForecastSeries) MaxProbabilityPoint() (ForecastPoint, bool) {
	if len(s.AllPoints) == 0 {
		return ForecastPoint{}, false
	}
	best := s.AllPoints[0]
	for _, p := range s.AllPoints[1:] {
		if p.ProbabilityPercent > best.ProbabilityPercent {
			best = p
		}
	}
	return best, true
}

// Package agent owns the active/inactive state machine, the periodic check
// timer, in-flight de-duplication, and notification dispatch.
//
// Concurrency model: triggers (manual call, timer fire, activation) run the
// check body in the caller's goroutine. One mutex guards all mutable state
// and is never held across an I/O call; the in-flight flag guarantees no two
// check bodies overlap. Disabling stops the pending timer but does not cancel
// an in-flight fetch; a completed round trip is still applied.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rainwatch/rainwatch/internal/forecast"
	"github.com/rainwatch/rainwatch/internal/geocode"
	"github.com/rainwatch/rainwatch/internal/models"
	"github.com/rainwatch/rainwatch/internal/notify"
	"github.com/rainwatch/rainwatch/internal/rain"
	"github.com/rainwatch/rainwatch/internal/settings"
)

var (
	// ErrInactive is returned when a check is requested while the agent is off.
	ErrInactive = errors.New("agent is not active")
	// ErrCheckInFlight is returned when a check is already running. The second
	// trigger is a no-op, not queued.
	ErrCheckInFlight = errors.New("a check is already in flight")
	// ErrEmptyLocation blocks activation until a location query is set.
	ErrEmptyLocation = errors.New("location query is empty")
)

// Agent is the scheduling agent. Construct with New; all methods are safe for
// concurrent use.
type Agent struct {
	store    settings.Store
	fetcher  forecast.Fetcher
	notifier notify.Notifier
	now      func() time.Time

	mu      sync.Mutex
	cfg     settings.AgentConfig
	state   State
	timer   *time.Timer
	granted bool

	inFlight               bool
	nextScheduledCheckAt   *time.Time
	lastCheckedAt          *time.Time
	lastVerdict            *models.Verdict
	lastForecast           *models.ForecastSeries
	lastResolvedCoordinate *models.Coordinate
	locationDisplayName    string
	statusMessage          string
}

func New(store settings.Store, fetcher forecast.Fetcher, notifier notify.Notifier, cfg settings.AgentConfig) *Agent {
	return &Agent{
		store:    store,
		fetcher:  fetcher,
		notifier: notifier,
		now:      time.Now,
		cfg:      cfg,
		state:    StateInactive,
	}
}

// WithClock overrides the agent's clock. Tests use it for deterministic
// schedule assertions.
func (a *Agent) WithClock(now func() time.Time) *Agent {
	a.now = now
	return a
}

// Enable transitions inactive → active-idle and runs an immediate check.
// Precondition: a non-empty location query. On failure the agent stays
// inactive (a true revert, no flicker into the active state) and no
// permission request is issued. Permission denial degrades alerting but
// never blocks activation.
func (a *Agent) Enable(ctx context.Context) error {
	a.mu.Lock()
	if a.state != StateInactive {
		a.mu.Unlock()
		return nil
	}
	if a.cfg.LocationQuery == "" {
		a.statusMessage = "Set a location before enabling rain watch"
		a.mu.Unlock()
		return ErrEmptyLocation
	}
	a.mu.Unlock()

	granted := a.notifier.RequestPermission(ctx)
	if !granted {
		log.Warn().Msg("Notification permission denied, running with alerts suppressed")
	}

	a.mu.Lock()
	a.granted = granted
	a.state = StateActiveIdle
	a.statusMessage = ""
	a.cfg.IsActive = true
	a.saveConfigLocked()
	query := a.cfg.LocationQuery
	a.mu.Unlock()

	log.Info().Str("query", query).Msg("Rain watch enabled")

	// Immediate check upon activation; its completion arms the timer.
	if err := a.Check(ctx); err != nil && !errors.Is(err, ErrCheckInFlight) {
		return err
	}
	return nil
}

// Disable transitions to inactive, cancels the pending timer, and clears the
// next scheduled check. An in-flight fetch is allowed to complete and its
// result is still applied.
func (a *Agent) Disable() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateInactive {
		return
	}

	a.stopTimerLocked()
	a.state = StateInactive
	a.cfg.IsActive = false
	a.saveConfigLocked()

	log.Info().Msg("Rain watch disabled")
}

// Check runs one fetch-evaluate-notify cycle in the caller's goroutine.
// Returns ErrInactive when the agent is off and ErrCheckInFlight when another
// check is already running (the trigger is dropped, not queued).
func (a *Agent) Check(ctx context.Context) error {
	checkID := uuid.NewString()
	logger := log.With().Str("check_id", checkID).Logger()

	a.mu.Lock()
	if a.state == StateInactive {
		a.mu.Unlock()
		return ErrInactive
	}
	if a.inFlight {
		a.mu.Unlock()
		logger.Debug().Msg("Check already in flight, ignoring trigger")
		return ErrCheckInFlight
	}
	a.inFlight = true
	a.state = StateActiveChecking
	a.stopTimerLocked()
	query := a.cfg.LocationQuery
	lookahead := a.cfg.LookaheadHours
	a.mu.Unlock()

	logger.Info().Str("query", query).Int("lookahead_hours", lookahead).Msg("Starting forecast check")

	series, place, fetchErr := a.fetcher.Fetch(ctx, query, lookahead)
	completedAt := a.now()

	var verdict models.Verdict
	if fetchErr == nil {
		verdict = rain.Evaluate(series, completedAt)
	}

	a.mu.Lock()
	checkedAt := completedAt
	a.lastCheckedAt = &checkedAt
	a.inFlight = false

	if fetchErr != nil {
		// Transient failure: keep the last good verdict and forecast.
		a.statusMessage = statusForError(fetchErr, query)
		logger.Error().Err(fetchErr).Msg("Forecast check failed")
	} else {
		coord := place.Coordinate
		a.lastVerdict = &verdict
		a.lastForecast = series
		a.lastResolvedCoordinate = &coord
		a.locationDisplayName = place.DisplayName
		a.statusMessage = ""
		logger.Info().Str("category", string(verdict.Category)).
			Str("headline", verdict.HeadlineSummary).Msg("Forecast check complete")
	}

	notifyOnDry := a.cfg.NotifyOnDryResult
	// Re-arm unless the agent ended up inactive while the check ran. A
	// disable-then-enable interleaving leaves it active-idle with no timer,
	// and this completion is the only place that can arm one. The next fire
	// is computed from now, never from the last fire time, so coalesced or
	// delayed fires do not accumulate drift.
	if a.state != StateInactive {
		a.state = StateActiveIdle
		a.stopTimerLocked()
		a.armTimerLocked(completedAt)
	} else {
		a.nextScheduledCheckAt = nil
	}
	a.mu.Unlock()

	if fetchErr == nil {
		a.dispatch(ctx, verdict, query, notifyOnDry)
	}
	return nil
}

// SetLocationQuery updates and persists the query, invalidating the resolved
// coordinate, pending disambiguation candidates, and the last forecast and
// verdict: stale results must never show against a changed query.
func (a *Agent) SetLocationQuery(query string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cfg.LocationQuery == query {
		return
	}

	a.cfg.LocationQuery = query
	a.saveConfigLocked()
	a.fetcher.Invalidate()
	a.lastVerdict = nil
	a.lastForecast = nil
	a.lastResolvedCoordinate = nil
	a.locationDisplayName = ""
	a.statusMessage = ""
}

// SetPollInterval updates and persists the poll cadence. While active the
// timer is cancelled and re-armed immediately with the new interval, computed
// from now.
func (a *Agent) SetPollInterval(seconds int) error {
	if !settings.ValidPollInterval(seconds) {
		return fmt.Errorf("poll interval %ds is not one of the allowed choices", seconds)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.cfg.PollIntervalSeconds = seconds
	a.saveConfigLocked()

	if a.state == StateActiveIdle {
		a.stopTimerLocked()
		a.armTimerLocked(a.now())
	}
	return nil
}

// SetLookaheadHours updates and persists the lookahead horizon. The next
// check picks it up.
func (a *Agent) SetLookaheadHours(hours int) error {
	if !settings.ValidLookahead(hours) {
		return fmt.Errorf("lookahead of %dh is not one of the allowed choices", hours)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg.LookaheadHours = hours
	a.saveConfigLocked()
	return nil
}

// SetNotifyOnDryResult updates and persists the dry-result alert flag.
func (a *Agent) SetNotifyOnDryResult(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg.NotifyOnDryResult = enabled
	a.saveConfigLocked()
}

// Snapshot returns a copy of the agent's observable state.
func (a *Agent) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	return Snapshot{
		State:                  a.state,
		IsCheckInFlight:        a.inFlight,
		NextScheduledCheckAt:   copyTime(a.nextScheduledCheckAt),
		LastCheckedAt:          copyTime(a.lastCheckedAt),
		LastVerdict:            a.lastVerdict,
		LastForecast:           a.lastForecast,
		LastResolvedCoordinate: a.lastResolvedCoordinate,
		LocationDisplayName:    a.locationDisplayName,
		StatusMessage:          a.statusMessage,
		PermissionGranted:      a.granted,
		Config:                 a.cfg,
	}
}

// dispatch applies the notification policy: rain-likely always alerts; a dry
// or showers result alerts only when the dry-result flag is set. "All clear"
// is reserved for a dry verdict. Delivery is fire-and-forget.
func (a *Agent) dispatch(ctx context.Context, verdict models.Verdict, query string, notifyOnDry bool) {
	switch {
	case verdict.IsRainLikely:
		go a.notifier.Send(context.WithoutCancel(ctx), "Rain expected", verdict.HeadlineSummary)
	case notifyOnDry:
		title := "Rain watch update"
		if verdict.Category == models.VerdictDry {
			title = "All clear"
		}
		body := fmt.Sprintf("%s for %s", verdict.HeadlineSummary, query)
		go a.notifier.Send(context.WithoutCancel(ctx), title, body)
	}
}

// armTimerLocked schedules the next check at from+interval. Caller holds mu.
func (a *Agent) armTimerLocked(from time.Time) {
	interval := time.Duration(a.cfg.PollIntervalSeconds) * time.Second
	next := from.Add(interval)
	a.nextScheduledCheckAt = &next
	a.timer = time.AfterFunc(interval, func() {
		if err := a.Check(context.Background()); err != nil {
			log.Debug().Err(err).Msg("Scheduled check skipped")
		}
	})
}

// stopTimerLocked cancels any pending timer. Caller holds mu.
func (a *Agent) stopTimerLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.nextScheduledCheckAt = nil
}

// saveConfigLocked re-saves the whole configuration synchronously. A storage
// failure is logged and surfaced as a status message, never fatal.
func (a *Agent) saveConfigLocked() {
	if err := a.cfg.Save(a.store); err != nil {
		log.Error().Err(err).Msg("Persisting agent configuration failed")
		a.statusMessage = "Could not save settings"
	}
}

// statusForError maps a check failure to a short human-readable status
// string. Raw error chains never reach the user.
func statusForError(err error, query string) string {
	var notFound *geocode.LocationNotFoundError
	if errors.As(err, &notFound) {
		return fmt.Sprintf("Location not found: %s", query)
	}
	var provider *forecast.ProviderError
	if errors.As(err, &provider) {
		return "Weather service unavailable, will retry at the next check"
	}
	return "Check failed, will retry at the next check"
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

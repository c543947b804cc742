package settings

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
)

// Persisted configuration keys.
const (
	KeyLocationQuery       = "location_query"
	KeyPollIntervalSeconds = "poll_interval_seconds"
	KeyLookaheadHours      = "lookahead_hours"
	KeyNotifyOnDryResult   = "notify_on_dry_result"
	KeyIsActive            = "is_active"
)

const (
	DefaultPollIntervalSeconds = 3600
	DefaultLookaheadHours      = 12
)

// PollIntervalChoices are the only accepted poll cadences, in seconds.
var PollIntervalChoices = []int{1800, 3600, 10800, 21600}

// LookaheadChoices are the only accepted lookahead horizons, in hours.
var LookaheadChoices = []int{6, 12, 24, 48}

// AgentConfig is the persisted agent configuration. It is loaded once at
// process start; every field mutation triggers a synchronous re-save.
type AgentConfig struct {
	LocationQuery       string `json:"locationQuery"`
	PollIntervalSeconds int    `json:"pollIntervalSeconds"`
	LookaheadHours      int    `json:"lookaheadHours"`
	NotifyOnDryResult   bool   `json:"notifyOnDryResult"`
	IsActive            bool   `json:"isActive"`
}

// ValidPollInterval reports whether seconds is one of the enumerated choices.
func ValidPollInterval(seconds int) bool {
	return containsInt(PollIntervalChoices, seconds)
}

// ValidLookahead reports whether hours is one of the enumerated choices.
func ValidLookahead(hours int) bool {
	return containsInt(LookaheadChoices, hours)
}

// LoadAgentConfig reads the persisted configuration. Missing keys and values
// outside the enumerated sets fall back to defaults rather than failing.
func LoadAgentConfig(store Store) (AgentConfig, error) {
	cfg := AgentConfig{
		PollIntervalSeconds: DefaultPollIntervalSeconds,
		LookaheadHours:      DefaultLookaheadHours,
	}

	var err error
	if cfg.LocationQuery, err = store.Get(KeyLocationQuery, ""); err != nil {
		return cfg, err
	}

	interval, err := getInt(store, KeyPollIntervalSeconds, DefaultPollIntervalSeconds)
	if err != nil {
		return cfg, err
	}
	if ValidPollInterval(interval) {
		cfg.PollIntervalSeconds = interval
	} else {
		log.Warn().Int("poll_interval_seconds", interval).
			Msg("Stored poll interval outside allowed set, using default")
	}

	lookahead, err := getInt(store, KeyLookaheadHours, DefaultLookaheadHours)
	if err != nil {
		return cfg, err
	}
	if ValidLookahead(lookahead) {
		cfg.LookaheadHours = lookahead
	} else {
		log.Warn().Int("lookahead_hours", lookahead).
			Msg("Stored lookahead outside allowed set, using default")
	}

	if cfg.NotifyOnDryResult, err = getBool(store, KeyNotifyOnDryResult, false); err != nil {
		return cfg, err
	}
	if cfg.IsActive, err = getBool(store, KeyIsActive, false); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Save persists every field of the configuration.
func (c AgentConfig) Save(store Store) error {
	if err := store.Set(KeyLocationQuery, c.LocationQuery); err != nil {
		return err
	}
	if err := store.Set(KeyPollIntervalSeconds, strconv.Itoa(c.PollIntervalSeconds)); err != nil {
		return err
	}
	if err := store.Set(KeyLookaheadHours, strconv.Itoa(c.LookaheadHours)); err != nil {
		return err
	}
	if err := store.Set(KeyNotifyOnDryResult, strconv.FormatBool(c.NotifyOnDryResult)); err != nil {
		return err
	}
	return store.Set(KeyIsActive, strconv.FormatBool(c.IsActive))
}

func getInt(store Store, key string, defaultValue int) (int, error) {
	raw, err := store.Get(key, strconv.Itoa(defaultValue))
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("setting %s is not an integer: %w", key, err)
	}
	return v, nil
}

func getBool(store Store, key string, defaultValue bool) (bool, error) {
	raw, err := store.Get(key, strconv.FormatBool(defaultValue))
	if err != nil {
		return false, err
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("setting %s is not a boolean: %w", key, err)
	}
	return v, nil
}

func containsInt(values []int, v int) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

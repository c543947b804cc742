package agent

import (
	"time"

	"github.com/rainwatch/rainwatch/internal/models"
	"github.com/rainwatch/rainwatch/internal/settings"
)

// State is the agent's lifecycle state.
type State string

const (
	StateInactive       State = "inactive"
	StateActiveIdle     State = "active-idle"
	StateActiveChecking State = "active-checking"
)

// Snapshot is a point-in-time copy of the agent's observable state. It is
// rebuilt on every check and never persisted.
type Snapshot struct {
	State                  State                   `json:"state"`
	IsCheckInFlight        bool                    `json:"isCheckInFlight"`
	NextScheduledCheckAt   *time.Time              `json:"nextScheduledCheckAt,omitempty"`
	LastCheckedAt          *time.Time              `json:"lastCheckedAt,omitempty"`
	LastVerdict            *models.Verdict         `json:"lastVerdict,omitempty"`
	LastForecast           *models.ForecastSeries  `json:"lastForecast,omitempty"`
	LastResolvedCoordinate *models.Coordinate      `json:"lastResolvedCoordinate,omitempty"`
	LocationDisplayName    string                  `json:"locationDisplayName,omitempty"`
	StatusMessage          string                  `json:"statusMessage,omitempty"`
	PermissionGranted      bool                    `json:"permissionGranted"`
	Config                 settings.AgentConfig    `json:"config"`
}

package notify

import (
	"context"

	"github.com/rs/zerolog/log"
)

// LogNotifier writes alerts to the process log. It is the fallback channel
// when no webhook is configured, keeping the agent fully functional.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) RequestPermission(_ context.Context) bool {
	return true
}

func (n *LogNotifier) Send(_ context.Context, title, body string) {
	log.Info().Str("title", title).Str("body", body).Msg("Alert")
}

// Package notify delivers user-visible alerts. Delivery is fire-and-forget
// from the agent's view: Send never blocks the check cycle on display
// confirmation, and a denied permission degrades sends to silent no-ops.
package notify

import "context"

// Notifier raises a user-visible alert.
type Notifier interface {
	// RequestPermission asks for delivery permission. A false result does not
	// block agent activation; it only degrades alerting.
	RequestPermission(ctx context.Context) bool
	// Send delivers a best-effort alert. Errors are logged, never returned.
	Send(ctx context.Context, title, body string)
}

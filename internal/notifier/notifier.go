// Package notifier adapts the alert fan-out manager to core.INotifier, the
// narrow two-method surface the orchestrator and strategy runners depend on.
package notifier

import (
	"context"

	"gridcore/internal/alert"
)

// Notifier adapts an alert.AlertManager to core.INotifier. errorKey is
// carried as a field so downstream channels can dedup or route on it.
type Notifier struct {
	manager *alert.AlertManager
}

// New wraps an AlertManager as a core.INotifier.
func New(manager *alert.AlertManager) *Notifier {
	return &Notifier{manager: manager}
}

// Alert implements core.INotifier.
func (n *Notifier) Alert(message, errorKey string) {
	n.manager.Alert(context.Background(), errorKey, message, alert.Warning, map[string]string{"error_key": errorKey})
}

// AlertException implements core.INotifier.
func (n *Notifier) AlertException(ctx string, err error, errorKey string) {
	n.manager.Alert(context.Background(), errorKey, ctx+": "+err.Error(), alert.Error, map[string]string{
		"error_key": errorKey,
		"context":   ctx,
	})
}

// Package notify is the boundary to the notification collaborator. The
// lifecycle engine only needs a fire-and-forget Notify; delivery (email to
// both parties) belongs to the host application.
package notify

import (
	"context"
	"log/slog"
)

// LogNotifier records notification intents in the service log. It stands in
// for the email sender in development and tests.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) Notify(_ context.Context, contractID, eventKind string) {
	n.Logger.Info("notify",
		"contract_id", contractID,
		"event", eventKind,
	)
}

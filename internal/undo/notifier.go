package undo

import "github.com/flowapp/flowsync/internal/logging"

// Notifier is the presentation hook for the undo affordance. The real
// UI lives outside the sync core; the default implementation just logs.
type Notifier interface {
	// ShowUndo presents the undo affordance with a kind-specific message.
	ShowUndo(message string)

	// DismissUndo hides the affordance (window expired or superseded).
	DismissUndo()

	// Notify reports a completed reversal ("Task restored").
	Notify(message string)

	// NotifyError reports a failed reversal.
	NotifyError(message string)
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct{}

func (LogNotifier) ShowUndo(message string) {
	logging.Info("Undo available", map[string]interface{}{"message": message})
}

func (LogNotifier) DismissUndo() {
	logging.Debug("Undo dismissed", nil)
}

func (LogNotifier) Notify(message string) {
	logging.Info("Undo applied", map[string]interface{}{"message": message})
}

func (LogNotifier) NotifyError(message string) {
	logging.Warn("Undo failed", map[string]interface{}{"message": message})
}

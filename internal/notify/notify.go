// Package notify delivers fire-and-forget domain notifications. A failed
// delivery never rolls back the operation that produced it.
package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Notification kinds emitted by the engine.
const (
	KindRegistrationCreated   = "registration.created"
	KindRegistrationCancelled = "registration.cancelled"
	KindAttendanceMarked      = "attendance.marked"
	KindEventSubmitted        = "event.submitted"
	KindEventDecided          = "event.decided"
	KindEditRequestCreated    = "edit_request.created"
	KindEditRequestProcessed  = "edit_request.processed"
)

// Notifier is the outbound notification sink.
type Notifier interface {
	Notify(ctx context.Context, kind string, payload any)
}

// LogNotifier writes notifications to the log. Used when no broker is
// configured.
type LogNotifier struct {
	Log *logrus.Logger
}

func (n *LogNotifier) Notify(ctx context.Context, kind string, payload any) {
	n.Log.WithFields(logrus.Fields{"kind": kind, "payload": payload}).Info("notification")
}

package feed

import (
	"context"
	"fmt"

	"neuromail-go/internal/events"
	"neuromail-go/internal/mailbox"

	"github.com/gen2brain/beeep"
	log "github.com/sirupsen/logrus"
)

// NotifyFunc shows a desktop notification.
type NotifyFunc func(title, message string) error

// DesktopNotifier raises a desktop notification for each new email.
type DesktopNotifier struct {
	notify NotifyFunc
}

// NewDesktopNotifier uses beeep when notify is nil.
func NewDesktopNotifier(notify NotifyFunc) *DesktopNotifier {
	if notify == nil {
		notify = func(title, message string) error {
			return beeep.Notify(title, message, "")
		}
	}
	return &DesktopNotifier{notify: notify}
}

// Attach subscribes to new-email events.
func (n *DesktopNotifier) Attach(sub events.Subscriber) func() {
	return sub.Subscribe(events.TopicNewEmail, func(_ context.Context, evt events.Event) {
		payload, ok := evt.Payload.(mailbox.NewEmailEvent)
		if !ok {
			return
		}
		title, body := describe(payload)
		if err := n.notify(title, body); err != nil {
			log.WithError(err).Debug("desktop notification failed")
		}
	})
}

func describe(evt mailbox.NewEmailEvent) (string, string) {
	subject := evt.Email.Subject
	if subject == "" {
		subject = "(no subject)"
	}
	from := evt.Email.From
	if from == "" {
		from = "unknown sender"
	}
	return fmt.Sprintf("New email: %s", subject), fmt.Sprintf("From %s", from)
}

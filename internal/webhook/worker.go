package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"html"

	"github.com/marzbot/marzbot/internal/metrics"
	"github.com/marzbot/marzbot/internal/notifications"
	"github.com/marzbot/marzbot/pkg/marzneshin"
	"github.com/rs/zerolog/log"
)

// actionUserDeactivated is the only actionable event kind; everything else
// is silently discarded.
const actionUserDeactivated = "user_deactivated"

// RecipientResolver maps a panel owner username to operator chat IDs.
type RecipientResolver interface {
	RecipientsForOwner(owner string) []int64
}

// Notifier fans a message out to recipients.
type Notifier interface {
	Notify(ctx context.Context, recipients []int64, msg notifications.Message)
}

// Worker drains the event queue indefinitely and notifies the owning admin
// about deactivated users.
type Worker struct {
	queue    *Queue
	resolver RecipientResolver
	notifier Notifier
}

// NewWorker creates a worker over the given queue.
func NewWorker(queue *Queue, resolver RecipientResolver, notifier Notifier) *Worker {
	return &Worker{queue: queue, resolver: resolver, notifier: notifier}
}

// Run consumes events one at a time until ctx is cancelled. A fault while
// processing one event never blocks the next.
func (w *Worker) Run(ctx context.Context) {
	log.Info().Msg("Webhook event worker started")

	for {
		event, err := w.queue.Pop(ctx)
		if err != nil {
			log.Info().Msg("Webhook event worker stopped")
			return
		}
		w.processEvent(ctx, event)
	}
}

func (w *Worker) processEvent(ctx context.Context, event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("eventID", event.ID).Msg("Recovered from panic while processing webhook event")
		}
	}()

	if event.Action != actionUserDeactivated || len(event.User) == 0 {
		metrics.RecordWebhookEvent("discarded")
		return
	}

	var user marzneshin.User
	if err := json.Unmarshal(event.User, &user); err != nil {
		metrics.RecordWebhookEvent("discarded")
		log.Warn().Err(err).Str("eventID", event.ID).Msg("Discarding event with malformed user snapshot")
		return
	}

	if user.OwnerUsername == "" {
		metrics.RecordWebhookEvent("discarded")
		log.Warn().Str("eventID", event.ID).Str("user", user.Username).Msg("User deactivated but has no owner, cannot route alert")
		return
	}

	recipients := w.resolver.RecipientsForOwner(user.OwnerUsername)
	if len(recipients) == 0 {
		metrics.RecordWebhookEvent("discarded")
		log.Warn().
			Str("eventID", event.ID).
			Str("user", user.Username).
			Str("owner", user.OwnerUsername).
			Msg("No chat recipients configured for owner, dropping event")
		return
	}

	text := deactivationMessage(user)
	if text == "" {
		// Neither expired nor limited: nothing worth paging about.
		metrics.RecordWebhookEvent("discarded")
		return
	}

	w.notifier.Notify(ctx, recipients, notifications.Message{
		Text:      text,
		ParseMode: notifications.ParseModeHTML,
	})
	metrics.RecordWebhookEvent("notified")
}

// deactivationMessage renders the operator message for a deactivated user.
// The expired and data-limit causes are mutually exclusive in panel data.
func deactivationMessage(user marzneshin.User) string {
	switch {
	case user.Expired:
		return fmt.Sprintf("🕔 #Expired\n━━━━━━━━━━━━━━\n👤 User: <code>%s</code>", html.EscapeString(user.Username))
	case user.DataLimitReached:
		return fmt.Sprintf("🪫 #Limited\n━━━━━━━━━━━━━━\n👤 User: <code>%s</code>", html.EscapeString(user.Username))
	default:
		return ""
	}
}

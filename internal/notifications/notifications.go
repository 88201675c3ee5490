// Package notifications delivers alert messages to operator chat recipients.
//
// Delivery is best-effort and independent per recipient: a failure for one
// recipient is logged and never prevents the others or reaches the caller.
// There is no retry and no queueing; a dropped alert is dropped.
package notifications

import (
	"context"

	"github.com/marzbot/marzbot/internal/metrics"
	"github.com/rs/zerolog/log"
)

// ParseMode selects how the delivery channel renders the message text.
type ParseMode string

const (
	ParseModeMarkdown ParseMode = "Markdown"
	ParseModeHTML     ParseMode = "HTML"
)

// Message is a renderable alert payload.
type Message struct {
	Text      string
	ParseMode ParseMode
}

// Sender pushes one message to one recipient identity. Any push-notification
// channel satisfies the contract.
type Sender interface {
	Send(ctx context.Context, chatID int64, msg Message) error
}

// Dispatcher fans a message out to a set of recipients via a Sender.
type Dispatcher struct {
	sender Sender
}

// NewDispatcher creates a dispatcher over the given delivery channel.
func NewDispatcher(sender Sender) *Dispatcher {
	return &Dispatcher{sender: sender}
}

// Notify sends msg to every recipient. Failures are logged per recipient and
// swallowed.
func (d *Dispatcher) Notify(ctx context.Context, recipients []int64, msg Message) {
	for _, chatID := range recipients {
		if err := d.sender.Send(ctx, chatID, msg); err != nil {
			metrics.RecordDelivery("failed")
			log.Warn().Err(err).Int64("chatID", chatID).Msg("Failed to deliver alert")
			continue
		}
		metrics.RecordDelivery("sent")
	}
}

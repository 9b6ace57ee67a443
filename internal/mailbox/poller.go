// Package mailbox polls the inbox collaborator, normalizes inbound mail and
// publishes one analysis request per message. Unread state is the delivery
// acknowledgment: a message stays unread until its request is published, so a
// crashed poll is retried on the next cycle.
package mailbox

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	gmail "google.golang.org/api/gmail/v1"

	"mailcal/internal/database"
	"mailcal/internal/events"
	"mailcal/internal/models"
)

// publisher is the slice of the bus client the poller needs
type publisher interface {
	Publish(ctx context.Context, topic, key string, payload interface{}) error
}

// Poller reads unread mail and feeds the analysis pipeline
type Poller struct {
	svc        *gmail.Service
	store      *database.EmailStore
	publisher  publisher
	maxResults int64
	logger     zerolog.Logger
}

// NewPoller authenticates against Gmail and creates an inbox poller
func NewPoller(ctx context.Context, credentialsPath string, store *database.EmailStore, pub publisher, maxResults int, logger zerolog.Logger) (*Poller, error) {
	svc, err := loadGmailService(ctx, credentialsPath)
	if err != nil {
		return nil, err
	}
	return &Poller{
		svc:        svc,
		store:      store,
		publisher:  pub,
		maxResults: int64(maxResults),
		logger:     logger,
	}, nil
}

// Run polls the inbox on the given interval until the context is cancelled
func (p *Poller) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.logger.Info().Dur("interval", interval).Msg("Inbox polling started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Inbox polling stopped")
			return
		case <-ticker.C:
			if _, err := p.CheckInbox(ctx); err != nil {
				p.logger.Error().Err(err).Msg("Inbox check failed")
			}
		}
	}
}

// CheckInbox processes unread messages once and returns how many analysis
// requests were published. Also serves the manual "check inbox now" trigger.
func (p *Poller) CheckInbox(ctx context.Context) (int, error) {
	resp, err := p.svc.Users.Messages.List("me").
		Q("is:unread").
		MaxResults(p.maxResults).
		Context(ctx).
		Do()
	if err != nil {
		return 0, err
	}

	published := 0
	for _, msg := range resp.Messages {
		if err := p.processMessage(ctx, msg.Id); err != nil {
			p.logger.Error().Err(err).Str("message_id", msg.Id).Msg("Failed to process inbound message")
			continue
		}
		published++
	}

	if published > 0 {
		p.logger.Info().Int("published", published).Msg("Analysis requests published")
	}
	return published, nil
}

// processMessage normalizes one message, stores it and publishes its request.
// The message is marked read only after the request is on the bus.
func (p *Poller) processMessage(ctx context.Context, messageID string) error {
	full, err := p.svc.Users.Messages.Get("me", messageID).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		return err
	}

	headers := headerMap(full.Payload.Headers)
	senderName, senderEmail := splitAddress(decodeHeader(headers["From"]))

	email := &models.InboundEmail{
		MessageID:   full.Id,
		Subject:     decodeHeader(headers["Subject"]),
		SenderName:  senderName,
		SenderEmail: senderEmail,
		To:          decodeHeader(headers["To"]),
		CC:          decodeHeader(headers["Cc"]),
		Body:        extractBody(full.Payload),
		Date:        headers["Date"],
	}

	// Save assigns the numeric id and deduplicates repeated polls of the
	// same message; the request itself may still be republished, which is
	// covered by the idempotent consumers downstream.
	if _, err := p.store.Save(ctx, email); err != nil {
		return err
	}

	request := events.EmailAnalysisRequest{
		EmailID:     email.ID,
		Subject:     email.Subject,
		Body:        email.Body,
		SenderName:  email.SenderName,
		SenderEmail: email.SenderEmail,
		To:          email.To,
		CC:          email.CC,
		Date:        email.Date,
	}
	key := strconv.FormatInt(email.ID, 10)
	if err := p.publisher.Publish(ctx, events.TopicEmailAnalysisRequest, key, request); err != nil {
		return err
	}

	// Best-effort acknowledgment; a failure here only means one redundant
	// republish on the next poll.
	if err := p.markRead(ctx, messageID); err != nil {
		p.logger.Warn().Err(err).Str("message_id", messageID).Msg("Could not mark message as read")
	}
	return nil
}

func (p *Poller) markRead(ctx context.Context, messageID string) error {
	_, err := p.svc.Users.Messages.Modify("me", messageID, &gmail.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD"},
	}).Context(ctx).Do()
	return err
}

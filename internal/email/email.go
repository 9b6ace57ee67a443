package email

import (
	"encoding/base64"
	"fmt"
	"regexp"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// Dispatcher sends calendar invitations via SendGrid. From the choreography's
// perspective the send is fire-and-forget: callers log failures and move on.
type Dispatcher struct {
	apiKey      string
	senderEmail string
}

// NewDispatcher creates a new mail dispatcher
func NewDispatcher(apiKey, senderEmail string) *Dispatcher {
	if senderEmail == "" {
		senderEmail = "noreply@mailcal.app"
	}
	return &Dispatcher{
		apiKey:      apiKey,
		senderEmail: senderEmail,
	}
}

// SendSchedule sends one multi-part message: the human-readable summary plus
// the calendar file as an attachment.
func (d *Dispatcher) SendSchedule(recipient, subject, summary string, attachment []byte, filename string) error {
	if d.apiKey == "" {
		return fmt.Errorf("SendGrid API key not configured")
	}
	if !emailRegex.MatchString(recipient) {
		return fmt.Errorf("invalid recipient address %q", recipient)
	}

	from := mail.NewEmail("mailcal", d.senderEmail)
	to := mail.NewEmail("", recipient)
	message := mail.NewSingleEmail(from, subject, to, summary, summary)

	att := mail.NewAttachment()
	att.SetContent(base64.StdEncoding.EncodeToString(attachment))
	att.SetType("text/calendar")
	att.SetFilename(filename)
	att.SetDisposition("attachment")
	message.AddAttachment(att)

	client := sendgrid.NewSendClient(d.apiKey)
	response, err := client.Send(message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("SendGrid API error: status %d, body: %s", response.StatusCode, response.Body)
	}

	return nil
}

package deliver

import (
	"bytes"
	"context"
	"fmt"

	"github.com/wneessen/go-mail"

	"gaceta/internal/core"
)

func init() {
	Register("smtp", func(name string, settings Settings) (core.Deliverer, error) {
		return NewSMTPDeliverer(name, settings)
	})
}

// SMTPDeliverer submits each payload as a mail attachment to a fixed
// recipient, the way a send-to-Kindle address expects it. One message per
// item; the message body is a short fixed text.
type SMTPDeliverer struct {
	name    string
	from    string
	to      string
	subject string
	body    string
	client  *mail.Client
}

func NewSMTPDeliverer(name string, settings Settings) (*SMTPDeliverer, error) {
	if settings.Host == "" {
		return nil, fmt.Errorf("smtp delivery %s: host is required", name)
	}
	if settings.From == "" {
		return nil, fmt.Errorf("smtp delivery %s: sender address is required", name)
	}

	port := settings.Port
	if port == 0 {
		port = 587
	}

	client, err := mail.NewClient(settings.Host,
		mail.WithPort(port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(settings.From),
		mail.WithPassword(settings.Password),
		mail.WithTLSPortPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return nil, fmt.Errorf("smtp delivery %s: %w", name, err)
	}

	subject := settings.Subject
	if subject == "" {
		subject = "New issue"
	}
	body := settings.Body
	if body == "" {
		body = "Here is the latest issue."
	}

	return &SMTPDeliverer{
		name:    name,
		from:    settings.From,
		to:      settings.To,
		subject: subject,
		body:    body,
		client:  client,
	}, nil
}

func (d *SMTPDeliverer) Name() string {
	return d.name
}

func (d *SMTPDeliverer) Deliver(ctx context.Context, id string, payload []byte) error {
	msg := mail.NewMsg()

	if err := msg.From(d.from); err != nil {
		return &core.DeliveryError{Target: d.name, ID: id, Err: err}
	}
	if err := msg.To(d.to); err != nil {
		return &core.DeliveryError{Target: d.name, ID: id, Err: err}
	}

	msg.Subject(d.subject)
	msg.SetBodyString(mail.TypeTextPlain, d.body)

	if err := msg.AttachReader(id, bytes.NewReader(payload)); err != nil {
		return &core.DeliveryError{Target: d.name, ID: id, Err: err}
	}

	if err := d.client.DialAndSendWithContext(ctx, msg); err != nil {
		return &core.DeliveryError{Target: d.name, ID: id, Err: err}
	}

	return nil
}

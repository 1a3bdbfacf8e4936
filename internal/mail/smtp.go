package mail

import (
	"context"
	"log/slog"

	gomail "github.com/wneessen/go-mail"
)

// SMTPTransport sends through a real SMTP relay via go-mail.
type SMTPTransport struct {
	client *gomail.Client
	from   string
	log    *slog.Logger
}

func NewSMTPTransport(host string, port int, user, pass, from string, log *slog.Logger) (*SMTPTransport, error) {
	opts := []gomail.Option{
		gomail.WithPort(port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if user != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(user),
			gomail.WithPassword(pass),
		)
	}
	client, err := gomail.NewClient(host, opts...)
	if err != nil {
		return nil, err
	}
	return &SMTPTransport{client: client, from: from, log: log}, nil
}

func (t *SMTPTransport) Send(ctx context.Context, to string, msg Rendered) SendResult {
	m := gomail.NewMsg()
	if err := m.From(t.from); err != nil {
		return SendResult{Err: err}
	}
	if err := m.To(to); err != nil {
		return SendResult{Err: err}
	}
	m.Subject(msg.Subject)
	m.SetMessageID()
	m.SetBodyString(gomail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		m.AddAlternativeString(gomail.TypeTextHTML, msg.HTML)
	}

	if err := t.client.DialAndSendWithContext(ctx, m); err != nil {
		t.log.Warn("smtp send failed", "to", to, "error", err)
		return SendResult{Err: err}
	}
	return SendResult{Success: true, MessageID: m.GetMessageID()}
}

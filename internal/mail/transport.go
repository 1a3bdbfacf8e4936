package mail

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Rendered is one fully-built outbound email.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

type SendResult struct {
	Success   bool
	MessageID string
	Err       error
}

// Transport delivers a single email. Implementations decide nothing about
// who gets what; that is the digest engine's job.
type Transport interface {
	Send(ctx context.Context, to string, msg Rendered) SendResult
}

// NoopTransport stands in when SMTP is unconfigured. Every send succeeds and
// the content is logged, so watermark advancement and job completion follow
// the exact same code paths as production.
type NoopTransport struct {
	Log *slog.Logger
}

func (t *NoopTransport) Send(ctx context.Context, to string, msg Rendered) SendResult {
	t.Log.Info("simulated email send",
		"to", to,
		"subject", msg.Subject,
		"text_bytes", len(msg.Text),
	)
	return SendResult{Success: true, MessageID: "simulated-" + uuid.NewString()}
}

package digest

import (
	"context"
	"sync"

	"beacon/internal/mail"
)

// DefaultConcurrency caps simultaneous transport calls per chunk. Providers
// rate-limit; this is the system's one explicit concurrency control.
const DefaultConcurrency = 5

type Recipient struct {
	SubscriptionID uint64
	Email          string
}

// SendBatch fans a batch of recipients out to the transport in fixed-size
// chunks, waiting for each chunk to finish before starting the next. One
// recipient failing never aborts the batch: every recipient gets an
// independent attempt and an independent result, keyed by subscription id.
//
// renderFor builds the message for a single recipient; a render error is
// recorded as that recipient's failure without touching the transport.
func SendBatch(ctx context.Context, transport mail.Transport, recipients []Recipient, renderFor func(Recipient) (mail.Rendered, error), concurrency int) map[uint64]mail.SendResult {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	results := make(map[uint64]mail.SendResult, len(recipients))
	var mu sync.Mutex

	for start := 0; start < len(recipients); start += concurrency {
		end := start + concurrency
		if end > len(recipients) {
			end = len(recipients)
		}

		var wg sync.WaitGroup
		for _, rec := range recipients[start:end] {
			wg.Add(1)
			go func(rec Recipient) {
				defer wg.Done()

				var res mail.SendResult
				msg, err := renderFor(rec)
				if err != nil {
					res = mail.SendResult{Err: err}
				} else {
					res = transport.Send(ctx, rec.Email, msg)
				}

				mu.Lock()
				results[rec.SubscriptionID] = res
				mu.Unlock()
			}(rec)
		}
		wg.Wait()
	}

	return results
}

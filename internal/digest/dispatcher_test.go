package digest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"beacon/internal/mail"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendBatchBoundedConcurrency(t *testing.T) {
	transport := &fakeTransport{failFor: map[string]bool{}}

	var recipients []Recipient
	for i := 0; i < 13; i++ {
		recipients = append(recipients, Recipient{SubscriptionID: uint64(i + 1), Email: fmt.Sprintf("u%d@x.com", i)})
	}

	results := SendBatch(context.Background(), transport, recipients, func(Recipient) (mail.Rendered, error) {
		return mail.Rendered{Subject: "hi"}, nil
	}, 5)

	require.Len(t, results, 13)
	for _, res := range results {
		assert.True(t, res.Success)
	}
	assert.LessOrEqual(t, transport.maxSeen, 5, "never more than one chunk in flight")
}

func TestSendBatchFailureDoesNotAbortBatch(t *testing.T) {
	transport := &fakeTransport{failFor: map[string]bool{"u2@x.com": true}}

	recipients := []Recipient{
		{SubscriptionID: 1, Email: "u1@x.com"},
		{SubscriptionID: 2, Email: "u2@x.com"},
		{SubscriptionID: 3, Email: "u3@x.com"},
	}

	results := SendBatch(context.Background(), transport, recipients, func(Recipient) (mail.Rendered, error) {
		return mail.Rendered{Subject: "hi"}, nil
	}, 2)

	require.Len(t, results, 3)
	assert.True(t, results[1].Success)
	assert.False(t, results[2].Success)
	assert.Error(t, results[2].Err)
	assert.True(t, results[3].Success)
}

func TestSendBatchRenderErrorIsRecipientFailure(t *testing.T) {
	transport := &fakeTransport{failFor: map[string]bool{}}

	recipients := []Recipient{
		{SubscriptionID: 1, Email: "ok@x.com"},
		{SubscriptionID: 2, Email: "broken@x.com"},
	}

	results := SendBatch(context.Background(), transport, recipients, func(r Recipient) (mail.Rendered, error) {
		if r.Email == "broken@x.com" {
			return mail.Rendered{}, errors.New("template blew up")
		}
		return mail.Rendered{Subject: "hi"}, nil
	}, 0)

	assert.True(t, results[1].Success)
	assert.False(t, results[2].Success)
	assert.Len(t, transport.sends(), 1, "failed render never reaches the transport")
}

func TestSendBatchEmptyRecipients(t *testing.T) {
	transport := &fakeTransport{failFor: map[string]bool{}}
	results := SendBatch(context.Background(), transport, nil, func(Recipient) (mail.Rendered, error) {
		return mail.Rendered{}, nil
	}, 5)
	assert.Empty(t, results)
}

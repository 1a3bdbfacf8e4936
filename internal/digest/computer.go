package digest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"beacon/internal/jobs"
	"beacon/internal/mail"
	"beacon/internal/project"
	"beacon/internal/subscription"
)

// ContentStore is the read-only slice of project data the digest engine
// needs. *project.Store satisfies it.
type ContentStore interface {
	ProjectByID(ctx context.Context, id uint64) (project.Project, error)
	UpdateWithMedia(ctx context.Context, updateID uint64) (project.UpdateWithMedia, error)
	UpdatesSince(ctx context.Context, projectID uint64, after time.Time) ([]project.UpdateWithMedia, error)
}

// SubscriberStore is satisfied by *subscription.Store. The digest engine is
// the only writer of the watermark.
type SubscriberStore interface {
	ByProjectAndFrequency(ctx context.Context, projectID uint64, freq subscription.Frequency) ([]subscription.Subscription, error)
	ByIDs(ctx context.Context, ids []uint64) ([]subscription.Subscription, error)
	AdvanceWatermark(ctx context.Context, ids []uint64, sentAt time.Time) error
}

// Queue is the enqueue-only surface of the job store.
type Queue interface {
	Enqueue(ctx context.Context, jobType string, payload any, scheduledFor time.Time) (jobs.Job, error)
}

// Renderer produces the outbound message bodies. *mail.Renderer satisfies it.
type Renderer interface {
	InstantUpdate(p project.Project, u project.UpdateWithMedia) (mail.Rendered, error)
	DailyDigest(p project.Project, updates []project.UpdateWithMedia) (mail.Rendered, error)
	WeeklyDigest(p project.Project, updates []project.UpdateWithMedia, from, to time.Time) (mail.Rendered, error)
}

// Computer turns "a cadence fired for a project" into rendered, delivered
// emails and watermark advances.
type Computer struct {
	Content   ContentStore
	Subs      SubscriberStore
	Queue     Queue
	Transport mail.Transport
	Renderer  Renderer

	// Concurrency is the dispatcher chunk size; zero means DefaultConcurrency.
	Concurrency int

	Log *slog.Logger
}

// TriggerInstant is the update-created hook. It snapshots the current instant
// subscribers into the payload and enqueues; delivery happens on a later
// scheduler tick, so the creating request is never blocked on the fan-out.
// No instant subscribers is a no-op, not an error.
func (c *Computer) TriggerInstant(ctx context.Context, projectID, updateID uint64) error {
	subs, err := c.Subs.ByProjectAndFrequency(ctx, projectID, subscription.FrequencyInstant)
	if err != nil {
		return fmt.Errorf("resolve instant subscribers: %w", err)
	}
	if len(subs) == 0 {
		c.Log.Debug("no instant subscribers, skipping enqueue", "project_id", projectID, "update_id", updateID)
		return nil
	}

	ids := make([]uint64, 0, len(subs))
	for _, s := range subs {
		ids = append(ids, s.ID)
	}

	_, err = c.Queue.Enqueue(ctx, jobs.TypeInstantDigest, jobs.InstantPayload{
		ProjectID:     projectID,
		UpdateID:      updateID,
		SubscriberIDs: ids,
	}, time.Now())
	if err != nil {
		return fmt.Errorf("enqueue instant digest: %w", err)
	}

	c.Log.Info("instant digest enqueued", "project_id", projectID, "update_id", updateID, "subscribers", len(ids))
	return nil
}

// ProcessInstant delivers one update to the subscriber set snapshotted at
// enqueue time. Emails are re-fetched by id: a subscriber who unsubscribed
// since enqueue simply no longer resolves and is skipped.
func (c *Computer) ProcessInstant(ctx context.Context, payload jobs.InstantPayload) error {
	p, err := c.Content.ProjectByID(ctx, payload.ProjectID)
	if err != nil {
		return fmt.Errorf("load project %d: %w", payload.ProjectID, err)
	}
	u, err := c.Content.UpdateWithMedia(ctx, payload.UpdateID)
	if err != nil {
		return fmt.Errorf("load update %d: %w", payload.UpdateID, err)
	}

	subs, err := c.Subs.ByIDs(ctx, payload.SubscriberIDs)
	if err != nil {
		return fmt.Errorf("load subscribers: %w", err)
	}
	if len(subs) == 0 {
		c.Log.Info("instant digest has no remaining subscribers", "project_id", p.ID, "update_id", u.Update.ID)
		return nil
	}

	msg, err := c.Renderer.InstantUpdate(p, u)
	if err != nil {
		return fmt.Errorf("render instant update: %w", err)
	}

	recipients := make([]Recipient, 0, len(subs))
	for _, s := range subs {
		recipients = append(recipients, Recipient{SubscriptionID: s.ID, Email: s.Email})
	}

	results := SendBatch(ctx, c.Transport, recipients, func(Recipient) (mail.Rendered, error) {
		return msg, nil
	}, c.Concurrency)

	c.advance(ctx, p.ID, results, time.Now())
	return nil
}

// ProcessScheduled runs one daily or weekly digest for one project. Unlike
// the instant path the subscriber set is resolved live, and each subscriber
// gets exactly the updates newer than their own watermark. Subscribers with
// nothing new get no email and keep their watermark.
func (c *Computer) ProcessScheduled(ctx context.Context, payload jobs.ScheduledPayload, freq subscription.Frequency) error {
	p, err := c.Content.ProjectByID(ctx, payload.ProjectID)
	if err != nil {
		return fmt.Errorf("load project %d: %w", payload.ProjectID, err)
	}

	subs, err := c.Subs.ByProjectAndFrequency(ctx, p.ID, freq)
	if err != nil {
		return fmt.Errorf("resolve %s subscribers: %w", freq, err)
	}
	if len(subs) == 0 {
		c.Log.Info("scheduled digest has no subscribers", "project_id", p.ID, "frequency", freq)
		return nil
	}

	now := time.Now()

	// Per-subscriber content, computed up front so the whole set can go
	// through one dispatcher batch.
	messages := make(map[uint64]mail.Rendered, len(subs))
	recipients := make([]Recipient, 0, len(subs))

	for _, sub := range subs {
		var since time.Time
		if sub.LastSentAt != nil {
			since = *sub.LastSentAt
		}

		updates, err := c.Content.UpdatesSince(ctx, p.ID, since)
		if err != nil {
			return fmt.Errorf("load updates for subscription %d: %w", sub.ID, err)
		}
		if len(updates) == 0 {
			continue
		}

		var msg mail.Rendered
		if freq == subscription.FrequencyWeekly {
			// display label only; the content window is the watermark
			msg, err = c.Renderer.WeeklyDigest(p, updates, now.AddDate(0, 0, -7), now)
		} else {
			msg, err = c.Renderer.DailyDigest(p, updates)
		}
		if err != nil {
			c.Log.Error("render digest failed", "subscription_id", sub.ID, "error", err)
			continue
		}

		messages[sub.ID] = msg
		recipients = append(recipients, Recipient{SubscriptionID: sub.ID, Email: sub.Email})
	}

	if len(recipients) == 0 {
		c.Log.Info("scheduled digest had nothing new for anyone", "project_id", p.ID, "frequency", freq)
		return nil
	}

	results := SendBatch(ctx, c.Transport, recipients, func(rec Recipient) (mail.Rendered, error) {
		return messages[rec.SubscriptionID], nil
	}, c.Concurrency)

	c.advance(ctx, p.ID, results, now)
	return nil
}

// advance moves watermarks for the successful subset only. Failed recipients
// stay where they were and are folded into the next run, which is the
// self-healing path for partial batch failures.
func (c *Computer) advance(ctx context.Context, projectID uint64, results map[uint64]mail.SendResult, sentAt time.Time) {
	var ok []uint64
	for id, res := range results {
		if res.Success {
			ok = append(ok, id)
			continue
		}
		c.Log.Warn("digest send failed",
			"project_id", projectID,
			"subscription_id", id,
			"error", res.Err,
		)
	}

	if len(ok) == 0 {
		return
	}
	if err := c.Subs.AdvanceWatermark(ctx, ok, sentAt); err != nil {
		// The sends went out; on the next run these subscribers get a
		// duplicate rather than a gap.
		c.Log.Error("advance watermark failed", "project_id", projectID, "error", err)
		return
	}
	c.Log.Info("digest delivered",
		"project_id", projectID,
		"sent", len(ok),
		"failed", len(results)-len(ok),
	)
}

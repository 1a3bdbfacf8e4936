package digest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"beacon/internal/jobs"
	"beacon/internal/project"
	"beacon/internal/subscription"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture() (*Computer, *fakeContent, *fakeSubs, *fakeQueue, *fakeTransport, *fakeRenderer) {
	content := &fakeContent{
		projects: map[uint64]project.Project{
			1: {ID: 1, OwnerID: 7, Name: "Acme Redesign", BrandColor: "#ff0000", PublicToken: "tok-1"},
		},
		timeline: map[uint64][]project.UpdateWithMedia{},
	}
	subs := &fakeSubs{subs: map[uint64]*subscription.Subscription{}}
	queue := &fakeQueue{}
	transport := &fakeTransport{failFor: map[string]bool{}}
	renderer := &fakeRenderer{}

	c := &Computer{
		Content:   content,
		Subs:      subs,
		Queue:     queue,
		Transport: transport,
		Renderer:  renderer,
		Log:       testLogger(),
	}
	return c, content, subs, queue, transport, renderer
}

func addUpdate(content *fakeContent, projectID, updateID uint64, body string, createdAt time.Time) {
	content.timeline[projectID] = append(content.timeline[projectID], project.UpdateWithMedia{
		Update: project.Update{ID: updateID, ProjectID: projectID, Body: body, CreatedAt: createdAt},
	})
}

func addSub(subs *fakeSubs, id, projectID uint64, email string, freq subscription.Frequency, lastSent *time.Time) {
	subs.subs[id] = &subscription.Subscription{
		ID: id, ProjectID: projectID, Email: email, Frequency: freq, LastSentAt: lastSent,
	}
}

func TestTriggerInstantSnapshotsOnlyInstantSubscribers(t *testing.T) {
	c, content, subs, queue, _, _ := newFixture()
	addUpdate(content, 1, 100, "shipped the header", time.Now())
	addSub(subs, 10, 1, "a@x.com", subscription.FrequencyInstant, nil)
	addSub(subs, 11, 1, "b@x.com", subscription.FrequencyDaily, nil)

	require.NoError(t, c.TriggerInstant(context.Background(), 1, 100))

	require.Len(t, queue.enqueued, 1)
	j := queue.enqueued[0]
	assert.Equal(t, jobs.TypeInstantDigest, j.Type)

	var p jobs.InstantPayload
	require.NoError(t, json.Unmarshal(j.Payload, &p))
	assert.Equal(t, uint64(1), p.ProjectID)
	assert.Equal(t, uint64(100), p.UpdateID)
	assert.Equal(t, []uint64{10}, p.SubscriberIDs)
}

func TestTriggerInstantNoSubscribersIsNoop(t *testing.T) {
	c, content, _, queue, _, _ := newFixture()
	addUpdate(content, 1, 100, "quiet update", time.Now())

	require.NoError(t, c.TriggerInstant(context.Background(), 1, 100))
	assert.Empty(t, queue.enqueued)
}

func TestProcessInstantAdvancesOnlySuccessfulWatermarks(t *testing.T) {
	c, content, subs, _, transport, _ := newFixture()
	addUpdate(content, 1, 100, "shipped the header", time.Now())
	addSub(subs, 10, 1, "a@x.com", subscription.FrequencyInstant, nil)
	addSub(subs, 11, 1, "b@x.com", subscription.FrequencyInstant, nil)
	transport.failFor["b@x.com"] = true

	before := time.Now()
	require.NoError(t, c.ProcessInstant(context.Background(), jobs.InstantPayload{
		ProjectID: 1, UpdateID: 100, SubscriberIDs: []uint64{10, 11},
	}))

	require.NotNil(t, subs.watermark(10))
	assert.False(t, subs.watermark(10).Before(before))
	assert.Nil(t, subs.watermark(11))

	sends := transport.sends()
	require.Len(t, sends, 1)
	assert.Equal(t, "a@x.com", sends[0].To)
}

func TestProcessInstantSkipsVanishedSubscribers(t *testing.T) {
	c, content, subs, _, transport, _ := newFixture()
	addUpdate(content, 1, 100, "shipped", time.Now())
	addSub(subs, 10, 1, "a@x.com", subscription.FrequencyInstant, nil)

	// id 99 unsubscribed between enqueue and processing
	require.NoError(t, c.ProcessInstant(context.Background(), jobs.InstantPayload{
		ProjectID: 1, UpdateID: 100, SubscriberIDs: []uint64{10, 99},
	}))

	assert.Len(t, transport.sends(), 1)
}

func TestProcessScheduledSkipsSubscribersWithNothingNew(t *testing.T) {
	c, content, subs, _, transport, _ := newFixture()
	old := time.Now().Add(-48 * time.Hour)
	addUpdate(content, 1, 100, "old news", old)

	recent := time.Now().Add(-time.Hour)
	addSub(subs, 10, 1, "c@x.com", subscription.FrequencyDaily, &recent)

	require.NoError(t, c.ProcessScheduled(context.Background(), jobs.ScheduledPayload{ProjectID: 1}, subscription.FrequencyDaily))

	assert.Empty(t, transport.sends(), "no email for an empty digest")
	assert.True(t, subs.watermark(10).Equal(recent), "watermark must not move without a send")
}

func TestProcessScheduledCatchUpSpansFullWatermarkWindow(t *testing.T) {
	c, content, subs, _, transport, renderer := newFixture()

	tenDaysAgo := time.Now().AddDate(0, 0, -10)
	for i := 0; i < 12; i++ {
		addUpdate(content, 1, uint64(100+i), "progress", tenDaysAgo.Add(time.Duration(i+1)*time.Hour))
	}
	addSub(subs, 10, 1, "c@x.com", subscription.FrequencyDaily, &tenDaysAgo)

	before := time.Now()
	require.NoError(t, c.ProcessScheduled(context.Background(), jobs.ScheduledPayload{ProjectID: 1}, subscription.FrequencyDaily))

	require.Len(t, transport.sends(), 1, "one digest, not twelve emails")
	require.Len(t, renderer.digestSizes, 1)
	assert.Equal(t, 12, renderer.digestSizes[0], "every update since the true last send, in one digest")

	wm := subs.watermark(10)
	require.NotNil(t, wm)
	assert.False(t, wm.Before(before), "watermark jumps to now, not to watermark+1d")
}

func TestProcessScheduledNeverSentGetsFullHistory(t *testing.T) {
	c, content, subs, _, transport, renderer := newFixture()
	base := time.Now().AddDate(0, 0, -30)
	for i := 0; i < 3; i++ {
		addUpdate(content, 1, uint64(100+i), "ancient", base.AddDate(0, 0, i))
	}
	addSub(subs, 10, 1, "new@x.com", subscription.FrequencyWeekly, nil)

	require.NoError(t, c.ProcessScheduled(context.Background(), jobs.ScheduledPayload{ProjectID: 1}, subscription.FrequencyWeekly))

	require.Len(t, transport.sends(), 1)
	assert.Equal(t, []int{3}, renderer.digestSizes)
	assert.NotNil(t, subs.watermark(10))
}

func TestProcessScheduledPartialFailureIsolation(t *testing.T) {
	c, content, subs, _, transport, _ := newFixture()
	addUpdate(content, 1, 100, "fresh", time.Now().Add(-time.Hour))
	addSub(subs, 10, 1, "ok1@x.com", subscription.FrequencyDaily, nil)
	addSub(subs, 11, 1, "bad@x.com", subscription.FrequencyDaily, nil)
	addSub(subs, 12, 1, "ok2@x.com", subscription.FrequencyDaily, nil)
	transport.failFor["bad@x.com"] = true

	err := c.ProcessScheduled(context.Background(), jobs.ScheduledPayload{ProjectID: 1}, subscription.FrequencyDaily)
	require.NoError(t, err, "partial recipient failure is not a job failure")

	assert.NotNil(t, subs.watermark(10))
	assert.Nil(t, subs.watermark(11))
	assert.NotNil(t, subs.watermark(12))
}

func TestWatermarkNeverDecreases(t *testing.T) {
	c, content, subs, _, _, _ := newFixture()
	addUpdate(content, 1, 100, "one", time.Now().Add(-2*time.Hour))
	addSub(subs, 10, 1, "c@x.com", subscription.FrequencyDaily, nil)

	require.NoError(t, c.ProcessScheduled(context.Background(), jobs.ScheduledPayload{ProjectID: 1}, subscription.FrequencyDaily))
	first := subs.watermark(10)
	require.NotNil(t, first)

	// a stale report from the past must not move the watermark back
	require.NoError(t, subs.AdvanceWatermark(context.Background(), []uint64{10}, first.Add(-time.Hour)))
	assert.True(t, subs.watermark(10).Equal(*first))

	addUpdate(content, 1, 101, "two", time.Now())
	require.NoError(t, c.ProcessScheduled(context.Background(), jobs.ScheduledPayload{ProjectID: 1}, subscription.FrequencyDaily))
	second := subs.watermark(10)
	assert.False(t, second.Before(*first))
}

func TestProcessInstantMissingProjectFailsJob(t *testing.T) {
	c, _, _, _, _, _ := newFixture()
	err := c.ProcessInstant(context.Background(), jobs.InstantPayload{ProjectID: 42, UpdateID: 1})
	assert.Error(t, err, "deleted project mid-flight is a retryable job failure")
}

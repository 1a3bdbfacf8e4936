package digest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"beacon/internal/jobs"
	"beacon/internal/mail"
	"beacon/internal/project"
	"beacon/internal/subscription"
)

type fakeContent struct {
	projects map[uint64]project.Project
	timeline map[uint64][]project.UpdateWithMedia // per project, oldest first
}

func (f *fakeContent) ProjectByID(_ context.Context, id uint64) (project.Project, error) {
	p, ok := f.projects[id]
	if !ok {
		return project.Project{}, project.ErrNotFound
	}
	return p, nil
}

func (f *fakeContent) UpdateWithMedia(_ context.Context, updateID uint64) (project.UpdateWithMedia, error) {
	for _, rows := range f.timeline {
		for _, m := range rows {
			if m.Update.ID == updateID {
				return m, nil
			}
		}
	}
	return project.UpdateWithMedia{}, project.ErrNotFound
}

func (f *fakeContent) UpdatesSince(_ context.Context, projectID uint64, after time.Time) ([]project.UpdateWithMedia, error) {
	var out []project.UpdateWithMedia
	for _, m := range f.timeline[projectID] {
		if m.Update.CreatedAt.After(after) {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeSubs struct {
	mu   sync.Mutex
	subs map[uint64]*subscription.Subscription
}

func (f *fakeSubs) ByProjectAndFrequency(_ context.Context, projectID uint64, freq subscription.Frequency) ([]subscription.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []subscription.Subscription
	for _, s := range f.subs {
		if s.ProjectID == projectID && s.Frequency == freq {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSubs) ByIDs(_ context.Context, ids []uint64) ([]subscription.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []subscription.Subscription
	for _, id := range ids {
		if s, ok := f.subs[id]; ok {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSubs) AdvanceWatermark(_ context.Context, ids []uint64, sentAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		s, ok := f.subs[id]
		if !ok {
			continue
		}
		if s.LastSentAt == nil || s.LastSentAt.Before(sentAt) {
			t := sentAt
			s.LastSentAt = &t
		}
	}
	return nil
}

func (f *fakeSubs) ProjectIDsWithFrequency(_ context.Context, freq subscription.Frequency) ([]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[uint64]struct{}{}
	var out []uint64
	for _, s := range f.subs {
		if s.Frequency != freq {
			continue
		}
		if _, ok := seen[s.ProjectID]; ok {
			continue
		}
		seen[s.ProjectID] = struct{}{}
		out = append(out, s.ProjectID)
	}
	return out, nil
}

func (f *fakeSubs) watermark(id uint64) *time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[id].LastSentAt
}

type fakeQueue struct {
	mu       sync.Mutex
	nextID   uint64
	enqueued []jobs.Job
	failWith error
}

func (f *fakeQueue) Enqueue(_ context.Context, jobType string, payload any, scheduledFor time.Time) (jobs.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return jobs.Job{}, f.failWith
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return jobs.Job{}, err
	}
	f.nextID++
	j := jobs.Job{
		ID:           f.nextID,
		Type:         jobType,
		Payload:      b,
		Status:       jobs.StatusPending,
		ScheduledFor: scheduledFor,
		CreatedAt:    time.Now(),
	}
	f.enqueued = append(f.enqueued, j)
	return j, nil
}

// fakeTransport records every send and fails for addresses in failFor.
type fakeTransport struct {
	mu       sync.Mutex
	sent     []sentMail
	failFor  map[string]bool
	inFlight int
	maxSeen  int
}

type sentMail struct {
	To  string
	Msg mail.Rendered
}

func (t *fakeTransport) Send(_ context.Context, to string, msg mail.Rendered) mail.SendResult {
	t.mu.Lock()
	t.inFlight++
	if t.inFlight > t.maxSeen {
		t.maxSeen = t.inFlight
	}
	t.mu.Unlock()

	time.Sleep(time.Millisecond)

	t.mu.Lock()
	t.inFlight--
	fail := t.failFor[to]
	if !fail {
		t.sent = append(t.sent, sentMail{To: to, Msg: msg})
	}
	t.mu.Unlock()

	if fail {
		return mail.SendResult{Err: fmt.Errorf("smtp rejected %s", to)}
	}
	return mail.SendResult{Success: true, MessageID: "test-" + to}
}

func (t *fakeTransport) sends() []sentMail {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]sentMail, len(t.sent))
	copy(out, t.sent)
	return out
}

// fakeRenderer records how many updates each rendered digest carried.
type fakeRenderer struct {
	mu          sync.Mutex
	digestSizes []int
}

func (r *fakeRenderer) InstantUpdate(p project.Project, u project.UpdateWithMedia) (mail.Rendered, error) {
	return mail.Rendered{Subject: "instant:" + p.Name, Text: u.Update.Body}, nil
}

func (r *fakeRenderer) DailyDigest(p project.Project, updates []project.UpdateWithMedia) (mail.Rendered, error) {
	r.mu.Lock()
	r.digestSizes = append(r.digestSizes, len(updates))
	r.mu.Unlock()
	return mail.Rendered{Subject: "daily:" + p.Name, Text: fmt.Sprintf("%d updates", len(updates))}, nil
}

func (r *fakeRenderer) WeeklyDigest(p project.Project, updates []project.UpdateWithMedia, from, to time.Time) (mail.Rendered, error) {
	r.mu.Lock()
	r.digestSizes = append(r.digestSizes, len(updates))
	r.mu.Unlock()
	return mail.Rendered{Subject: "weekly:" + p.Name, Text: fmt.Sprintf("%d updates", len(updates))}, nil
}

package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"beacon/internal/digest"
	"beacon/internal/jobs"

	"github.com/go-chi/chi/v5"
)

// AdminHandler exposes queue internals to project owners: stuck jobs are
// inspected, retried, or deleted here, and cadences can be fired by hand.
type AdminHandler struct {
	Jobs      *jobs.Store
	Scheduler *digest.Scheduler
}

type jobDTO struct {
	ID           uint64          `json:"id"`
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	Status       string          `json:"status"`
	Attempts     int             `json:"attempts"`
	LastError    *string         `json:"last_error"`
	ScheduledFor time.Time       `json:"scheduled_for"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (h *AdminHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	rows, err := h.Jobs.List(r.Context(), status, limit)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	out := make([]jobDTO, 0, len(rows))
	for _, j := range rows {
		out = append(out, jobDTO{
			ID:           j.ID,
			Type:         j.Type,
			Payload:      json.RawMessage(j.Payload),
			Status:       j.Status,
			Attempts:     j.Attempts,
			LastError:    j.LastError,
			ScheduledFor: j.ScheduledFor,
			CreatedAt:    j.CreatedAt,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (h *AdminHandler) JobStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Jobs.Stats(r.Context())
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}

func (h *AdminHandler) RetryJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := h.Jobs.Retry(r.Context(), id); err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			http.Error(w, "no failed job with that id", http.StatusNotFound)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := h.Jobs.Delete(r.Context(), id); err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) SchedulerState(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Scheduler.Snapshot(r.Context())
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snap)
}

// TriggerCadence enqueues a cadence's jobs immediately. The scheduled run is
// untouched: last_run stays where it was.
func (h *AdminHandler) TriggerCadence(w http.ResponseWriter, r *http.Request) {
	cadence := chi.URLParam(r, "cadence")
	if err := h.Scheduler.TriggerCadence(r.Context(), cadence); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

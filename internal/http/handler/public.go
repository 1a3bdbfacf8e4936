package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"beacon/internal/project"
	"beacon/internal/subscription"

	mailx "beacon/internal/mail"

	"github.com/go-chi/chi/v5"
)

// PublicHandler serves the tokenized surface clients use: the timeline plus
// subscribe/unsubscribe. No auth; holding the magic-link token is the grant.
type PublicHandler struct {
	Projects  *project.Store
	Subs      *subscription.Store
	Transport mailx.Transport
	Renderer  *mailx.Renderer
	Log       *slog.Logger
}

type timelineDTO struct {
	Project struct {
		Name       string `json:"name"`
		BrandColor string `json:"brand_color"`
		LogoURL    string `json:"logo_url"`
	} `json:"project"`
	Updates []updateDTO `json:"updates"`
}

func (h *PublicHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	p, ok := h.tokenProject(w, r)
	if !ok {
		return
	}

	tag := strings.TrimSpace(strings.ToLower(r.URL.Query().Get("tag")))
	rows, err := h.Projects.ListUpdates(r.Context(), p.ID, tag, 50)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	var out timelineDTO
	out.Project.Name = p.Name
	out.Project.BrandColor = p.BrandColor
	out.Project.LogoURL = p.LogoURL
	out.Updates = make([]updateDTO, 0, len(rows))
	for _, m := range rows {
		out.Updates = append(out.Updates, toUpdateDTO(m))
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

type subscribeReq struct {
	Email     string `json:"email"`
	Frequency string `json:"frequency"`
}

func (h *PublicHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	p, ok := h.tokenProject(w, r)
	if !ok {
		return
	}

	var req subscribeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if _, err := mail.ParseAddress(req.Email); err != nil {
		http.Error(w, "invalid email", http.StatusBadRequest)
		return
	}
	freq, ok2 := subscription.ParseFrequency(strings.TrimSpace(strings.ToLower(req.Frequency)))
	if !ok2 {
		http.Error(w, "invalid frequency", http.StatusBadRequest)
		return
	}

	sub, err := h.Subs.Subscribe(r.Context(), p.ID, req.Email, freq)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	// confirmation email is best-effort; the subscription stands either way
	if msg, err := h.Renderer.SubscriptionConfirmed(p, string(freq)); err == nil {
		if res := h.Transport.Send(r.Context(), sub.Email, msg); !res.Success {
			h.Log.Warn("confirmation email failed", "email", sub.Email, "error", res.Err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":        sub.ID,
		"frequency": sub.Frequency,
	})
}

type unsubscribeReq struct {
	Email string `json:"email"`
}

func (h *PublicHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	p, ok := h.tokenProject(w, r)
	if !ok {
		return
	}

	var req unsubscribeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	err := h.Subs.Unsubscribe(r.Context(), p.ID, req.Email)
	if err != nil {
		if errors.Is(err, subscription.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PublicHandler) tokenProject(w http.ResponseWriter, r *http.Request) (project.Project, bool) {
	token := chi.URLParam(r, "token")
	p, err := h.Projects.ProjectByToken(r.Context(), token)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return project.Project{}, false
	}
	return p, true
}

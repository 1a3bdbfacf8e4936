package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"beacon/internal/auth"
	"beacon/internal/project"
	"beacon/internal/subscription"

	"github.com/go-chi/chi/v5"
)

type ProjectHandler struct {
	Projects *project.Store
	Subs     *subscription.Store
}

type projectDTO struct {
	ID          uint64    `json:"id"`
	Name        string    `json:"name"`
	BrandColor  string    `json:"brand_color"`
	LogoURL     string    `json:"logo_url"`
	PublicToken string    `json:"public_token"`
	CreatedAt   time.Time `json:"created_at"`
}

func toProjectDTO(p project.Project) projectDTO {
	return projectDTO{
		ID:          p.ID,
		Name:        p.Name,
		BrandColor:  p.BrandColor,
		LogoURL:     p.LogoURL,
		PublicToken: p.PublicToken,
		CreatedAt:   p.CreatedAt,
	}
}

type createProjectReq struct {
	Name       string `json:"name"`
	BrandColor string `json:"brand_color"`
	LogoURL    string `json:"logo_url"`
}

func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var req createProjectReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}

	p, err := h.Projects.CreateProject(r.Context(), uid, project.CreateProjectInput{
		Name:       req.Name,
		BrandColor: strings.TrimSpace(req.BrandColor),
		LogoURL:    strings.TrimSpace(req.LogoURL),
	})
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(toProjectDTO(p))
}

func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	rows, err := h.Projects.ProjectsByOwner(r.Context(), uid)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	out := make([]projectDTO, 0, len(rows))
	for _, p := range rows {
		out = append(out, toProjectDTO(p))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownedProject(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toProjectDTO(p))
}

type brandingReq struct {
	Name       string `json:"name"`
	BrandColor string `json:"brand_color"`
	LogoURL    string `json:"logo_url"`
}

func (h *ProjectHandler) UpdateBranding(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	p, ok := h.ownedProject(w, r)
	if !ok {
		return
	}

	var req brandingReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		req.Name = p.Name
	}

	err := h.Projects.UpdateBranding(r.Context(), uid, p.ID, req.Name, strings.TrimSpace(req.BrandColor), strings.TrimSpace(req.LogoURL))
	if err != nil {
		if errors.Is(err, project.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type subscriberDTO struct {
	ID         uint64     `json:"id"`
	Email      string     `json:"email"`
	Frequency  string     `json:"frequency"`
	LastSentAt *time.Time `json:"last_sent_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (h *ProjectHandler) Subscribers(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownedProject(w, r)
	if !ok {
		return
	}

	subs, err := h.Subs.ByProject(r.Context(), p.ID)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	out := make([]subscriberDTO, 0, len(subs))
	for _, s := range subs {
		out = append(out, subscriberDTO{
			ID:         s.ID,
			Email:      s.Email,
			Frequency:  string(s.Frequency),
			LastSentAt: s.LastSentAt,
			CreatedAt:  s.CreatedAt,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// ownedProject loads the {id} project and checks it belongs to the caller.
func (h *ProjectHandler) ownedProject(w http.ResponseWriter, r *http.Request) (project.Project, bool) {
	uid, _ := auth.UserIDFromContext(r.Context())

	id64, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return project.Project{}, false
	}

	p, err := h.Projects.ProjectByID(r.Context(), id64)
	if err != nil || p.OwnerID != uid {
		http.Error(w, "not found", http.StatusNotFound)
		return project.Project{}, false
	}
	return p, true
}

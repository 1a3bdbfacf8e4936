package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"beacon/internal/auth"
	"beacon/internal/digest"
	"beacon/internal/project"

	"github.com/go-chi/chi/v5"
)

type UpdateHandler struct {
	Projects *project.Store
	Digest   *digest.Computer
	Log      *slog.Logger
}

type linkReq struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type createUpdateReq struct {
	Body      string   `json:"body"`
	ImageURLs []string `json:"image_urls"`
	Link      *linkReq `json:"link"`
}

type updateDTO struct {
	ID        uint64     `json:"id"`
	ProjectID uint64     `json:"project_id"`
	Body      string     `json:"body"`
	Tags      []string   `json:"tags"`
	Images    []imageDTO `json:"images"`
	Link      *linkDTO   `json:"link"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type imageDTO struct {
	URL      string `json:"url"`
	Position int    `json:"position"`
}

type linkDTO struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

func toUpdateDTO(m project.UpdateWithMedia) updateDTO {
	d := updateDTO{
		ID:        m.Update.ID,
		ProjectID: m.Update.ProjectID,
		Body:      m.Update.Body,
		Tags:      []string(m.Update.Tags),
		Images:    make([]imageDTO, 0, len(m.Images)),
		CreatedAt: m.Update.CreatedAt,
		UpdatedAt: m.Update.UpdatedAt,
	}
	for _, img := range m.Images {
		d.Images = append(d.Images, imageDTO{URL: img.URL, Position: img.Position})
	}
	if m.Link != nil {
		d.Link = &linkDTO{URL: m.Link.URL, Title: m.Link.Title, Description: m.Link.Description}
	}
	return d
}

func (h *UpdateHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownedProject(w, r)
	if !ok {
		return
	}

	var req createUpdateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	req.Body = strings.TrimSpace(req.Body)
	if req.Body == "" {
		http.Error(w, "body required", http.StatusBadRequest)
		return
	}

	in := project.CreateUpdateInput{Body: req.Body, ImageURLs: req.ImageURLs}
	if req.Link != nil && strings.TrimSpace(req.Link.URL) != "" {
		in.Link = &project.LinkInput{
			URL:         strings.TrimSpace(req.Link.URL),
			Title:       strings.TrimSpace(req.Link.Title),
			Description: strings.TrimSpace(req.Link.Description),
		}
	}

	u, err := h.Projects.CreateUpdate(r.Context(), p.ID, in)
	if err != nil {
		if errors.Is(err, project.ErrTooManyImages) {
			http.Error(w, "too many images", http.StatusBadRequest)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	// fire-and-forget: notification enqueue failures never fail the request
	if err := h.Digest.TriggerInstant(r.Context(), p.ID, u.ID); err != nil {
		h.Log.Error("instant digest trigger failed", "project_id", p.ID, "update_id", u.ID, "error", err)
	}

	m, err := h.Projects.UpdateWithMedia(r.Context(), u.ID)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(toUpdateDTO(m))
}

type editUpdateReq struct {
	Body string `json:"body"`
}

func (h *UpdateHandler) Edit(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownedProject(w, r)
	if !ok {
		return
	}
	updateID, err := strconv.ParseUint(chi.URLParam(r, "updateID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req editUpdateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	req.Body = strings.TrimSpace(req.Body)
	if req.Body == "" {
		http.Error(w, "body required", http.StatusBadRequest)
		return
	}

	if err := h.Projects.EditUpdateBody(r.Context(), p.ID, updateID, req.Body); err != nil {
		if errors.Is(err, project.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UpdateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownedProject(w, r)
	if !ok {
		return
	}
	updateID, err := strconv.ParseUint(chi.URLParam(r, "updateID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	if err := h.Projects.DeleteUpdate(r.Context(), p.ID, updateID); err != nil {
		if errors.Is(err, project.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UpdateHandler) ownedProject(w http.ResponseWriter, r *http.Request) (project.Project, bool) {
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

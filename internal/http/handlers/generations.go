package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"charagen/internal/domain"
	"charagen/internal/generation"
	"charagen/internal/i18n"
	"charagen/internal/middleware"
)

const maxRequestBody = 64 << 10

type generationResponse struct {
	IsGenerating bool             `json:"is_generating"`
	Status       domain.JobStatus `json:"status"`
	OutputURL    string           `json:"output_url"`
	OutputURLs   []string         `json:"output_urls"`
	Error        string           `json:"error"`
	JobID        string           `json:"job_id"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

func toResponse(r *http.Request, s generation.State) generationResponse {
	urls := s.OutputURLs
	if urls == nil {
		urls = []string{}
	}
	resp := generationResponse{
		IsGenerating: s.IsGenerating,
		Status:       s.Status,
		OutputURL:    s.OutputURL,
		OutputURLs:   urls,
		JobID:        s.JobID,
		UpdatedAt:    s.UpdatedAt,
	}
	if s.Error != "" {
		resp.Error = i18n.Translate(middleware.LocaleFromContext(r.Context()), s.Error)
	}
	return resp
}

// CreateGeneration submits a job for the caller. It answers 202 with the
// in-flight state, or 200 with the terminal state when ?wait=true.
func (a *App) CreateGeneration(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.Unauthorized(w, r)
		return
	}
	var req domain.GenerationRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		a.error(w, r, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	privileged := middleware.RoleFromContext(r.Context()).IsPrivileged()
	session := a.sessions.Session(userID)
	if _, err := session.Generate(r.Context(), privileged, req); err != nil {
		a.writeDomainError(w, r, err)
		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		ctx, cancel := context.WithTimeout(r.Context(), a.waitTimeout)
		defer cancel()
		if err := session.Wait(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			// Client went away; the job keeps running.
			return
		}
		state := session.Snapshot()
		status := http.StatusOK
		if state.IsGenerating {
			status = http.StatusAccepted
		}
		a.json(w, status, toResponse(r, state))
		return
	}
	a.json(w, http.StatusAccepted, toResponse(r, session.Snapshot()))
}

// CurrentGeneration reports the caller's current or last job.
func (a *App) CurrentGeneration(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.Unauthorized(w, r)
		return
	}
	session, ok := a.sessions.Lookup(userID)
	if !ok {
		a.json(w, http.StatusOK, toResponse(r, generation.State{Status: domain.JobStatusIdle}))
		return
	}
	a.json(w, http.StatusOK, toResponse(r, session.Snapshot()))
}

// CancelGeneration cancels the caller's job. Canceling with nothing in flight
// is not an error.
func (a *App) CancelGeneration(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.Unauthorized(w, r)
		return
	}
	session, ok := a.sessions.Lookup(userID)
	if !ok {
		a.json(w, http.StatusOK, toResponse(r, generation.State{Status: domain.JobStatusIdle}))
		return
	}
	session.Cancel(r.Context())
	a.json(w, http.StatusOK, toResponse(r, session.Snapshot()))
}

// DiscardGeneration clears a finished job.
func (a *App) DiscardGeneration(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.Unauthorized(w, r)
		return
	}
	if session, ok := a.sessions.Lookup(userID); ok {
		if err := session.Discard(); err != nil {
			a.writeDomainError(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListGenerations returns the caller's recorded jobs, newest first.
func (a *App) ListGenerations(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.Unauthorized(w, r)
		return
	}
	if a.history == nil {
		a.json(w, http.StatusOK, map[string]any{"items": []domain.GenerationRecord{}})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	records, err := a.history.ListRecent(r.Context(), userID, limit)
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	if records == nil {
		records = []domain.GenerationRecord{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": records})
}

package handlers

import (
	"errors"
	"net/http"

	"charagen/internal/domain"
	"charagen/internal/middleware"
)

type creditsResponse struct {
	Credits   int  `json:"credits"`
	Unlimited bool `json:"unlimited"`
}

func (a *App) Credits(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.Unauthorized(w, r)
		return
	}
	if middleware.RoleFromContext(r.Context()).IsPrivileged() {
		a.json(w, http.StatusOK, creditsResponse{Unlimited: true})
		return
	}
	if a.credits == nil {
		a.json(w, http.StatusOK, creditsResponse{})
		return
	}
	balance, err := a.credits.Balance(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.json(w, http.StatusOK, creditsResponse{})
			return
		}
		a.writeDomainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, creditsResponse{Credits: balance})
}

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"charagen/internal/domain"
	"charagen/internal/generation"
	"charagen/internal/i18n"
	"charagen/internal/infra"
	"charagen/internal/middleware"
)

// CreditReader reports a caller's balance.
type CreditReader interface {
	Balance(ctx context.Context, userID string) (int, error)
}

// HistoryReader lists recorded generations.
type HistoryReader interface {
	ListRecent(ctx context.Context, userID string, limit int) ([]domain.GenerationRecord, error)
}

// Options wires an App. Only Sessions is required.
type Options struct {
	Sessions *generation.Manager
	Credits  CreditReader
	History  HistoryReader
	// Ready reports whether backing stores are reachable.
	Ready  func(ctx context.Context) error
	Logger *infra.Logger
	// WaitTimeout caps ?wait=true on submissions. Defaults to 2 minutes.
	WaitTimeout time.Duration
}

type App struct {
	sessions    *generation.Manager
	credits     CreditReader
	history     HistoryReader
	ready       func(ctx context.Context) error
	logger      infra.Logger
	waitTimeout time.Duration
}

func NewApp(opts Options) *App {
	wait := opts.WaitTimeout
	if wait <= 0 {
		wait = 2 * time.Minute
	}
	return &App{
		sessions:    opts.Sessions,
		credits:     opts.Credits,
		history:     opts.History,
		ready:       opts.Ready,
		logger:      infra.LoggerOrDiscard(opts.Logger),
		waitTimeout: wait,
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error     errorBody `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// error writes the error envelope with message localized for the caller.
func (a *App) error(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	a.json(w, status, errorResponse{
		Error:     errorBody{Code: code, Message: i18n.Translate(middleware.LocaleFromContext(r.Context()), message)},
		RequestID: middleware.RequestIDFromContext(r.Context()),
	})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// Unauthorized is used by the auth middleware for rejected tokens.
func (a *App) Unauthorized(w http.ResponseWriter, r *http.Request) {
	a.error(w, r, http.StatusUnauthorized, "unauthorized", "unauthorized")
}

// TooManyRequests is used by the rate limiter.
func (a *App) TooManyRequests(w http.ResponseWriter, r *http.Request) {
	a.error(w, r, http.StatusTooManyRequests, "rate_limited", "too many requests")
}

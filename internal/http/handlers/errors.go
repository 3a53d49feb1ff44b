package handlers

import (
	"errors"
	"net/http"

	"charagen/internal/domain"
	"charagen/internal/generation"
	"charagen/internal/middleware"
)

// writeDomainError maps a tagged lifecycle error onto an HTTP status. The
// body message is the normalized error, localized.
func (a *App) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch domain.KindOf(err) {
	case domain.KindValidation:
		status, code = http.StatusBadRequest, "invalid_request"
		if errors.Is(err, domain.ErrAlreadyGenerating) {
			status, code = http.StatusConflict, "generation_in_progress"
		}
	case domain.KindCredit:
		status, code = http.StatusPaymentRequired, "insufficient_credits"
		if errors.Is(err, domain.ErrUnauthorized) {
			status, code = http.StatusUnauthorized, "unauthorized"
		}
	case domain.KindProvider, domain.KindCancellation:
		status, code = http.StatusBadGateway, "provider_error"
	case domain.KindNetwork:
		status, code = http.StatusBadGateway, "provider_unreachable"
	}
	if status == http.StatusInternalServerError {
		a.logger.Error().Err(err).Str("request_id", middleware.RequestIDFromContext(r.Context())).Msg("http: unexpected error")
		a.error(w, r, status, code, "internal error")
		return
	}
	a.error(w, r, status, code, generation.NormalizeError(err))
}

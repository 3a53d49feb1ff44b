package generation

import (
	"context"
	"errors"
	"strings"

	"charagen/internal/domain"
)

// UnknownErrorMessage is used when a failure carries no readable message.
const UnknownErrorMessage = "unknown error"

var kindFallbacks = map[domain.ErrorKind]string{
	domain.KindValidation:   "invalid generation request",
	domain.KindCredit:       "Not enough credits",
	domain.KindProvider:     "the generation provider reported an error",
	domain.KindNetwork:      "could not reach the generation provider",
	domain.KindCancellation: "the provider did not acknowledge the cancellation",
}

// NormalizeError turns any failure into the single user-facing string shown
// and logged for it. It never returns an empty string.
func NormalizeError(err error) string {
	if err == nil {
		return UnknownErrorMessage
	}
	var tagged *domain.Error
	if errors.As(err, &tagged) {
		switch tagged.Kind {
		case domain.KindValidation, domain.KindCredit, domain.KindProvider, domain.KindNetwork, domain.KindCancellation:
			if msg := strings.TrimSpace(tagged.Message); msg != "" {
				return msg
			}
			return kindFallbacks[tagged.Kind]
		}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "the request timed out"
	case errors.Is(err, context.Canceled):
		return "the request was canceled"
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return UnknownErrorMessage
}

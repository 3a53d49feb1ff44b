// Package credits gates generation on the caller's credit balance.
package credits

import (
	"context"
	"errors"
	"strings"

	"charagen/internal/domain"
	"charagen/internal/infra"
)

// NotEnoughCredits is the user-facing message for every denied reservation.
const NotEnoughCredits = "Not enough credits"

// Gate checks and debits one credit per non-privileged generation.
type Gate struct {
	ledger  domain.CreditLedger
	logger  infra.Logger
	observe func(outcome string)
}

// NewGate constructs a Gate over the given ledger. A nil logger discards output.
func NewGate(ledger domain.CreditLedger, logger *infra.Logger) *Gate {
	return &Gate{ledger: ledger, logger: infra.LoggerOrDiscard(logger), observe: func(string) {}}
}

// OnDecision registers fn to receive every outcome: "privileged", "reserved",
// "denied" or "error".
func (g *Gate) OnDecision(fn func(outcome string)) *Gate {
	if fn != nil {
		g.observe = fn
	}
	return g
}

// CheckAndReserve returns true when the caller may start a generation. For
// non-privileged callers exactly one credit has been debited when it returns
// true, and none when it returns false. Denials carry a tagged error whose
// message is NotEnoughCredits.
func (g *Gate) CheckAndReserve(ctx context.Context, userID string, privileged bool) (bool, error) {
	if privileged {
		g.decide("privileged")
		return true, nil
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, domain.CreditError(NotEnoughCredits, domain.ErrUnauthorized)
	}
	if g == nil || g.ledger == nil {
		return false, domain.CreditError(NotEnoughCredits, errors.New("credits: no ledger configured"))
	}

	balance, err := g.ledger.Balance(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		// No credit row yet: treated as an empty balance.
		g.decide("denied")
		return false, domain.CreditError(NotEnoughCredits, err)
	}
	if err != nil {
		g.logger.Warn().Err(err).Str("user_id", userID).Msg("credits: balance lookup failed")
		g.decide("error")
		return false, domain.NetworkError(NotEnoughCredits, err)
	}
	if balance < 1 {
		g.decide("denied")
		return false, domain.CreditError(NotEnoughCredits, domain.ErrInsufficientCredit)
	}

	remaining, applied, err := g.ledger.DebitOne(ctx, userID)
	if err != nil {
		g.logger.Error().Err(err).Str("user_id", userID).Msg("credits: debit failed")
		g.decide("error")
		return false, domain.CreditError(NotEnoughCredits, err)
	}
	if !applied {
		// Drained between the read and the guarded write.
		g.decide("denied")
		return false, domain.CreditError(NotEnoughCredits, domain.ErrInsufficientCredit)
	}
	g.logger.Debug().Str("user_id", userID).Int("remaining", remaining).Msg("credits: reserved one credit")
	g.decide("reserved")
	return true, nil
}

func (g *Gate) decide(outcome string) {
	if g != nil && g.observe != nil {
		g.observe(outcome)
	}
}

// Balance returns the caller's current balance.
func (g *Gate) Balance(ctx context.Context, userID string) (int, error) {
	if g == nil || g.ledger == nil {
		return 0, errors.New("credits: no ledger configured")
	}
	return g.ledger.Balance(ctx, userID)
}

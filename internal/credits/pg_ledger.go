package credits

import (
	"context"
	"fmt"

	"charagen/internal/domain"
	"charagen/internal/infra"
	"charagen/internal/sqlinline"
)

// PGLedger keeps balances in users.credits.
type PGLedger struct {
	sql infra.SQLExecutor
}

func NewPGLedger(sql infra.SQLExecutor) *PGLedger {
	return &PGLedger{sql: sql}
}

func (l *PGLedger) Balance(ctx context.Context, userID string) (int, error) {
	var balance int
	if err := l.sql.QueryRow(ctx, sqlinline.QSelectCreditBalance, userID).Scan(&balance); err != nil {
		if infra.IsNoRows(err) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("credits: read balance: %w", err)
	}
	return balance, nil
}

func (l *PGLedger) DebitOne(ctx context.Context, userID string) (int, bool, error) {
	var remaining int
	if err := l.sql.QueryRow(ctx, sqlinline.QDebitOneCredit, userID).Scan(&remaining); err != nil {
		if infra.IsNoRows(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("credits: debit: %w", err)
	}
	return remaining, true, nil
}

var _ domain.CreditLedger = (*PGLedger)(nil)

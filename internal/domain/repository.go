package domain

import "context"

// CreditLedger reads and debits generation credits. DebitOne must apply the
// balance >= 1 guard and the decrement as a single operation.
type CreditLedger interface {
	Balance(ctx context.Context, userID string) (int, error)
	DebitOne(ctx context.Context, userID string) (remaining int, applied bool, err error)
}

// GenerationRepository records terminal generation jobs for a user.
type GenerationRepository interface {
	Record(ctx context.Context, userID string, job GenerationJob) error
	ListRecent(ctx context.Context, userID string, limit int) ([]GenerationRecord, error)
}

package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"charagen/internal/domain"
	"charagen/internal/infra"
	"charagen/internal/sqlinline"
)

const maxHistoryLimit = 100

// GenerationRepositoryPG implements domain.GenerationRepository.
type GenerationRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewGenerationRepository(sql infra.SQLExecutor) *GenerationRepositoryPG {
	return &GenerationRepositoryPG{sql: sql}
}

// Record stores a terminal job once; repeated calls for the same provider job
// id are ignored.
func (r *GenerationRepositoryPG) Record(ctx context.Context, userID string, job domain.GenerationJob) error {
	if strings.TrimSpace(job.ID) == "" {
		return errors.New("repo: generation job id is required")
	}
	if !job.Status.Terminal() {
		return fmt.Errorf("repo: refusing to record non-terminal status %q", job.Status)
	}
	outputs := job.OutputURLs
	if outputs == nil {
		outputs = []string{}
	}
	raw, err := json.Marshal(outputs)
	if err != nil {
		return err
	}
	if _, err := r.sql.Exec(ctx, sqlinline.QInsertGeneration, userID, job.ID, string(job.Status), raw, job.ErrorMessage); err != nil {
		return fmt.Errorf("repo: record generation %s: %w", job.ID, err)
	}
	return nil
}

// ListRecent returns the newest records first.
func (r *GenerationRepositoryPG) ListRecent(ctx context.Context, userID string, limit int) ([]domain.GenerationRecord, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	rows, err := r.sql.Query(ctx, sqlinline.QSelectRecentGenerations, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("repo: list generations: %w", err)
	}
	defer rows.Close()

	records := make([]domain.GenerationRecord, 0, limit)
	for rows.Next() {
		var (
			rec    domain.GenerationRecord
			status string
			raw    []byte
		)
		if err := rows.Scan(&rec.JobID, &rec.UserID, &status, &raw, &rec.ErrorMessage, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Status = domain.JobStatus(status)
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &rec.OutputURLs); err != nil {
				return nil, fmt.Errorf("repo: decode output urls: %w", err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

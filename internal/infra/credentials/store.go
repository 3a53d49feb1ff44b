// Package credentials keeps provider API keys in the integration_tokens table
// so operators can rotate them without a redeploy.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"charagen/internal/infra"
	"charagen/internal/sqlinline"
)

const ProviderInference = "inference"

var ErrEmptyKey = errors.New("credentials: api key is required")

// Token is a stored provider secret.
type Token struct {
	Value     string
	UpdatedAt time.Time
}

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// InferenceAPIKey returns the stored inference key, or "" when none is set.
func (s *Store) InferenceAPIKey(ctx context.Context) (string, error) {
	tok, err := s.Token(ctx, ProviderInference)
	if err != nil {
		return "", err
	}
	return tok.Value, nil
}

// ResolveInferenceAPIKey prefers the stored key and falls back to fallback,
// usually the INFERENCE_API_KEY environment value.
func (s *Store) ResolveInferenceAPIKey(ctx context.Context, fallback string) (string, error) {
	key, err := s.InferenceAPIKey(ctx)
	if err != nil {
		return strings.TrimSpace(fallback), err
	}
	if key != "" {
		return key, nil
	}
	return strings.TrimSpace(fallback), nil
}

func (s *Store) Token(ctx context.Context, provider string) (Token, error) {
	var tok Token
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	if err := row.Scan(&tok.Value, &tok.UpdatedAt); err != nil {
		if infra.IsNoRows(err) {
			return Token{}, nil
		}
		return Token{}, fmt.Errorf("credentials: load %s token: %w", provider, err)
	}
	tok.Value = strings.TrimSpace(tok.Value)
	return tok, nil
}

// SetInferenceAPIKey stores key. The base URL it was issued for is kept in
// the row properties when given.
func (s *Store) SetInferenceAPIKey(ctx context.Context, key, baseURL string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyKey
	}
	props := map[string]any{}
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		props["base_url"] = baseURL
	}
	return s.upsert(ctx, ProviderInference, key, props)
}

func (s *Store) DeleteInferenceAPIKey(ctx context.Context) error {
	if _, err := s.sql.Exec(ctx, sqlinline.QDeleteIntegrationToken, ProviderInference); err != nil {
		return fmt.Errorf("credentials: delete %s token: %w", ProviderInference, err)
	}
	return nil
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	raw, err := json.Marshal(props)
	if err != nil {
		return err
	}
	if _, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw); err != nil {
		return fmt.Errorf("credentials: store %s token: %w", provider, err)
	}
	return nil
}

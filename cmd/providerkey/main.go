// Command providerkey manages the inference API key stored in
// integration_tokens.
//
//	providerkey set [-key K] [-base-url U]
//	providerkey show
//	providerkey delete
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"charagen/internal/infra"
	"charagen/internal/infra/credentials"
)

type keyStore interface {
	Token(ctx context.Context, provider string) (credentials.Token, error)
	SetInferenceAPIKey(ctx context.Context, key, baseURL string) error
	DeleteInferenceAPIKey(ctx context.Context) error
}

var errUsage = errors.New("usage: providerkey set|show|delete [flags]")

func main() {
	_ = godotenv.Load()

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := infra.NewDBPool(ctx, &infra.Config{DatabaseURL: dbURL, DBMaxConns: 1, DBMinConns: 0})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLoggerTo(os.Stderr, "cli", os.Getenv("LOG_LEVEL")).With().Str("cmd", "providerkey").Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))

	if err := run(ctx, os.Args[1:], store, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, store keyStore, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "set":
		fs := flag.NewFlagSet("set", flag.ContinueOnError)
		key := fs.String("key", "", "inference API key (falls back to INFERENCE_API_KEY)")
		baseURL := fs.String("base-url", os.Getenv("INFERENCE_BASE_URL"), "inference endpoint the key belongs to")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		k := strings.TrimSpace(*key)
		if k == "" {
			k = strings.TrimSpace(os.Getenv("INFERENCE_API_KEY"))
		}
		if err := store.SetInferenceAPIKey(ctx, k, *baseURL); err != nil {
			return fmt.Errorf("store inference key: %w", err)
		}
		fmt.Fprintf(out, "inference key %s stored\n", mask(k))
	case "show":
		tok, err := store.Token(ctx, credentials.ProviderInference)
		if err != nil {
			return err
		}
		if tok.Value == "" {
			fmt.Fprintln(out, "no stored inference key, INFERENCE_API_KEY is used")
			return nil
		}
		fmt.Fprintf(out, "inference key %s updated %s\n", mask(tok.Value), tok.UpdatedAt.UTC().Format(time.RFC3339))
	case "delete":
		if err := store.DeleteInferenceAPIKey(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "stored inference key removed")
	default:
		return errUsage
	}
	return nil
}

// mask keeps the last four characters of a secret.
func mask(secret string) string {
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", 8) + secret[len(secret)-4:]
}

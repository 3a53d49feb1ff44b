package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"charagen/internal/credits"
	"charagen/internal/domain"
	"charagen/internal/infra"
	"charagen/internal/sqlinline"
)

func main() {
	_ = godotenv.Load()

	var (
		idFlag     string
		emailFlag  string
		setFlag    int
		grantFlag  int
		roleFlag   string
		ledgerFlag string
	)
	flag.StringVar(&idFlag, "id", "", "user ID to update (UUID)")
	flag.StringVar(&emailFlag, "email", "", "user email to update")
	flag.IntVar(&setFlag, "set", -1, "set the credit balance to this value (ignored when negative)")
	flag.IntVar(&grantFlag, "grant", 0, "add (or with a negative value remove) credits")
	flag.StringVar(&roleFlag, "role", "", "assign a role (user or admin)")
	flag.StringVar(&ledgerFlag, "ledger", os.Getenv("CREDIT_LEDGER"), "ledger to write (postgres or redis)")
	flag.Parse()

	userID := strings.TrimSpace(idFlag)
	email := strings.TrimSpace(emailFlag)
	if userID == "" && email == "" {
		exitWithError(errors.New("either -id or -email must be provided"))
	}
	if setFlag >= 0 && grantFlag != 0 {
		exitWithError(errors.New("-set and -grant are mutually exclusive"))
	}
	role := domain.UserRole(strings.ToLower(strings.TrimSpace(roleFlag)))
	switch role {
	case "", domain.UserRoleUser, domain.UserRoleAdmin:
	default:
		exitWithError(fmt.Errorf("unsupported role %q", roleFlag))
	}
	ledger := strings.ToLower(strings.TrimSpace(ledgerFlag))
	if ledger == "" {
		ledger = infra.LedgerPostgres
	}
	if ledger != infra.LedgerPostgres && ledger != infra.LedgerRedis {
		exitWithError(fmt.Errorf("unsupported ledger %q", ledgerFlag))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := infra.NewDBPool(ctx, &infra.Config{DatabaseURL: dbURL, DBMaxConns: 2, DBMinConns: 0})
	if err != nil {
		exitWithError(err)
	}
	defer pool.Close()

	logger := infra.NewLoggerTo(os.Stderr, "cli", os.Getenv("LOG_LEVEL")).With().Str("cmd", "credits").Logger()
	runner := infra.NewSQLRunner(pool, logger)

	if userID == "" {
		if err := runner.QueryRow(ctx, sqlinline.QSelectUserIDByEmail, email).Scan(&userID); err != nil {
			exitWithError(fmt.Errorf("failed to find user %s: %w", email, err))
		}
	}

	if role != "" {
		var gotID, gotEmail, gotRole string
		if err := runner.QueryRow(ctx, sqlinline.QSetUserRole, userID, string(role)).Scan(&gotID, &gotEmail, &gotRole); err != nil {
			exitWithError(fmt.Errorf("failed to update role: %w", err))
		}
		fmt.Printf("User %s (%s) role=%s\n", gotID, gotEmail, gotRole)
	}

	switch ledger {
	case infra.LedgerRedis:
		runRedis(ctx, userID, setFlag, grantFlag)
	default:
		runPostgres(ctx, runner, userID, setFlag, grantFlag)
	}
}

func runPostgres(ctx context.Context, runner *infra.SQLRunner, userID string, set, grant int) {
	var (
		query string
		arg   int
	)
	switch {
	case set >= 0:
		query, arg = sqlinline.QSetCreditBalance, set
	case grant != 0:
		query, arg = sqlinline.QGrantCredits, grant
	default:
		balance, err := credits.NewPGLedger(runner).Balance(ctx, userID)
		if err != nil {
			exitWithError(fmt.Errorf("failed to read balance: %w", err))
		}
		printRole(ctx, runner, userID)
		fmt.Printf("credits=%d\n", balance)
		return
	}

	var id, email string
	var balance int
	if err := runner.QueryRow(ctx, query, userID, arg).Scan(&id, &email, &balance); err != nil {
		exitWithError(fmt.Errorf("failed to update credits: %w", err))
	}
	fmt.Printf("User %s (%s) credits=%d\n", id, email, balance)
}

func printRole(ctx context.Context, runner *infra.SQLRunner, userID string) {
	var role string
	if err := runner.QueryRow(ctx, sqlinline.QSelectUserRole, userID).Scan(&role); err == nil {
		fmt.Printf("role=%s\n", role)
	}
}

func runRedis(ctx context.Context, userID string, set, grant int) {
	client, err := infra.NewRedisClient(ctx, &infra.Config{RedisURL: os.Getenv("REDIS_URL")})
	if err != nil {
		exitWithError(err)
	}
	defer client.Close()

	ledger := credits.NewRedisLedger(client)
	balance, err := ledger.Balance(ctx, userID)
	if err != nil {
		exitWithError(fmt.Errorf("failed to read balance: %w", err))
	}
	switch {
	case set >= 0:
		balance = set
	case grant != 0:
		balance = max(balance+grant, 0)
	default:
		fmt.Printf("credits=%d\n", balance)
		return
	}
	if err := ledger.Set(ctx, userID, balance); err != nil {
		exitWithError(fmt.Errorf("failed to update credits: %w", err))
	}
	fmt.Printf("User %s credits=%d\n", userID, balance)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

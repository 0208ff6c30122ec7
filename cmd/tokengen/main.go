// Command tokengen mints approver tokens and API key hashes.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/it-request-service/internal/auth"
	"github.com/spec-kit/it-request-service/internal/config"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "tokengen: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		email  string
		role   string
		ttl    time.Duration
		apiKey string
	)
	flagSet := pflag.NewFlagSet("tokengen", pflag.ContinueOnError)
	flagSet.StringVarP(&email, "email", "e", "", "approver email address")
	flagSet.StringVar(&role, "role", string(auth.RoleApprover), "token role (approver or service)")
	flagSet.DurationVar(&ttl, "ttl", 0, "token lifetime (default AUTH_APPROVER_TOKEN_TTL_MINUTES)")
	flagSet.StringVar(&apiKey, "hash-api-key", "", "print the bcrypt hash of this API key instead of a token")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if apiKey != "" {
		hash, err := auth.HashAPIKey(apiKey, bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash api key: %w", err)
		}
		fmt.Println(hash)
		return nil
	}

	if email == "" {
		return errors.New("--email is required")
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if ttl <= 0 {
		ttl = cfg.Auth.ApproverTokenTTL()
	}

	token, expiresAt, err := auth.NewTokenManager(cfg.Auth.JWTSecret, ttl).GenerateToken(email, auth.Role(role))
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires at %s\n", expiresAt.Format(time.RFC3339))
	return nil
}

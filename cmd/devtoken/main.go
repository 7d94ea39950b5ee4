// Command devtoken mints an access token for a local storefront, signed with
// the configured secret, so checkout can be exercised without the account service.
package main

import (
	"encoding/json"
	"flag"
	"os"

	"go.uber.org/zap"

	"github.com/example/storefront/internal/auth"
	"github.com/example/storefront/internal/config"
	"github.com/example/storefront/internal/logger"
)

func main() {
	userID := flag.String("user", "dev-user", "user id carried in the token")
	email := flag.String("email", "dev@example.com", "customer email")
	name := flag.String("name", "", "customer display name")
	flag.Parse()

	// stdout carries the token
	log := logger.New(&logger.Config{Level: "info", Format: "console", Output: "stderr"}).Named("devtoken")
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to mint tokens in production", zap.String("env", cfg.App.Env))
	}

	tok, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.TokenTTL, auth.WithIssuer(cfg.JWT.Issuer)).Issue(*userID, *email, *name)
	if err != nil {
		log.Fatal("Failed to issue token", zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(tok); err != nil {
		log.Fatal("Failed to write token", zap.Error(err))
	}
}

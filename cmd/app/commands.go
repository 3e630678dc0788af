// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/urfave/cli/v3"

	"codeberg.org/oliverandrich/go-admin-auth/internal/config"
	"codeberg.org/oliverandrich/go-admin-auth/internal/database"
	"codeberg.org/oliverandrich/go-admin-auth/internal/i18n"
	"codeberg.org/oliverandrich/go-admin-auth/internal/repository"
	"codeberg.org/oliverandrich/go-admin-auth/internal/server"
	"codeberg.org/oliverandrich/go-admin-auth/internal/services/auth"
	"codeberg.org/oliverandrich/go-admin-auth/internal/services/authtoken"
	"codeberg.org/oliverandrich/go-admin-auth/internal/services/lostpassword"
)

// withRepository sets up logging and the database for a maintenance command
// and hands the repository to fn.
func withRepository(ctx context.Context, cmd *cli.Command, fn func(*config.Config, *repository.Repository) error) error {
	cfg := config.NewFromCLI(cmd)
	flush := server.SetupLogger(&cfg.Log, &cfg.Sentry)
	defer flush()

	db, err := database.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	return fn(cfg, repository.New(db))
}

func userCommand() *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "Manage admin accounts",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create an admin account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Usage: "Login name", Required: true},
					&cli.StringFlag{Name: "email", Usage: "Email address", Required: true},
					&cli.StringFlag{Name: "password", Usage: "Initial password", Required: true},
					&cli.StringFlag{Name: "display-name", Usage: "Name shown in the interface"},
				},
				Action: createUser,
			},
		},
	}
}

func createUser(ctx context.Context, cmd *cli.Command) error {
	return withRepository(ctx, cmd, func(cfg *config.Config, repo *repository.Repository) error {
		users := auth.NewService(repo, &cfg.Auth)
		user, err := users.CreateUser(ctx, auth.CreateUserParams{
			Username:    cmd.String("username"),
			Email:       cmd.String("email"),
			DisplayName: cmd.String("display-name"),
			Password:    cmd.String("password"),
		})
		var policy *auth.PolicyError
		if errors.As(err, &policy) {
			return fmt.Errorf("password rejected: %s", strings.Join(policyMessages(ctx, users, policy), " "))
		}
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.Root().Writer, "created user %s (%s)\n", user.Username, user.ID)
		return err
	})
}

// policyMessages renders each violated password rule from the message
// catalogue.
func policyMessages(ctx context.Context, users *auth.Service, policy *auth.PolicyError) []string {
	if err := i18n.Init(); err != nil {
		return policy.Codes()
	}
	data := map[string]any{"MinLength": users.PasswordValidator().MinLength}
	messages := make([]string, 0, len(policy.Violations))
	for _, code := range policy.Codes() {
		messages = append(messages, i18n.TData(ctx, code, data))
	}
	return messages
}

func tokensCommand() *cli.Command {
	return &cli.Command{
		Name:  "tokens",
		Usage: "Maintain login and lost-password tokens",
		Commands: []*cli.Command{
			{
				Name:   "purge",
				Usage:  "Delete expired tokens",
				Action: purgeTokens,
			},
		},
	}
}

func purgeTokens(ctx context.Context, cmd *cli.Command) error {
	return withRepository(ctx, cmd, func(cfg *config.Config, repo *repository.Repository) error {
		authTokens, err := authtoken.NewService(repo, &cfg.Auth).PurgeExpired(ctx)
		if err != nil {
			return fmt.Errorf("failed to purge auth tokens: %w", err)
		}
		resetTokens, err := lostpassword.NewService(repo, &cfg.Auth).PurgeExpired(ctx)
		if err != nil {
			return fmt.Errorf("failed to purge lost password tokens: %w", err)
		}

		slog.Info("tokens_purged", "auth_tokens", authTokens, "lost_password_tokens", resetTokens)
		_, err = fmt.Fprintf(cmd.Root().Writer, "purged %d auth tokens and %d lost password tokens\n", authTokens, resetTokens)
		return err
	})
}

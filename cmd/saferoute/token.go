package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/saferoute/saferoute/internal/auth"
)

var (
	tokenSubject string
	tokenRole    string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for the admin API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		svc := auth.NewJWTService(auth.JWTConfig{
			SigningKey: cfg.Auth.JWTSigningKey,
			Issuer:     cfg.Auth.Issuer,
		})

		ttl := tokenTTL
		if ttl <= 0 {
			ttl = cfg.Auth.TokenTTL
		}

		token, expiresAt, err := svc.GenerateToken(tokenSubject, tokenRole, ttl)
		if err != nil {
			return fmt.Errorf("mint token: %w", err)
		}

		log.Info().
			Str("subject", tokenSubject).
			Str("role", tokenRole).
			Time("expires_at", expiresAt).
			Msg("token issued")

		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "token subject, e.g. an operator email (required)")
	tokenCmd.Flags().StringVar(&tokenRole, "role", auth.RoleAdmin, "role claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default: auth.token_ttl)")
	_ = tokenCmd.MarkFlagRequired("subject")
	rootCmd.AddCommand(tokenCmd)
}

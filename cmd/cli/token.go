package main

import (
	"fmt"
	"time"

	"pulseguard/internal/auth"
	"pulseguard/internal/config"

	"github.com/spf13/cobra"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an operator JWT for the API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if cfg.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret is not configured")
		}

		ttl := tokenTTL
		if ttl <= 0 {
			ttl = cfg.Auth.TokenTTL
		}

		token, err := auth.GenerateToken(cfg.Auth.JWTSecret, tokenSubject, ttl)
		if err != nil {
			return fmt.Errorf("generate token: %w", err)
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVarP(&tokenSubject, "subject", "s", "operator", "subject claim for the token")
	tokenCmd.Flags().DurationVarP(&tokenTTL, "ttl", "t", 0, "token lifetime (defaults to auth.token_ttl)")
	rootCmd.AddCommand(tokenCmd)
}

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/leca/imagehost/internal/api"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issues a bearer token for an owner, signed with IMAGEHOST_JWT_SECRET",
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := cmd.Flags().GetString("owner")
		if err != nil {
			return err
		}
		ttl, err := cmd.Flags().GetDuration("ttl")
		if err != nil {
			return err
		}
		if cfg.JWTSecret == "" {
			return errors.New("IMAGEHOST_JWT_SECRET is not set")
		}

		token, err := api.IssueToken(cfg.JWTSecret, owner, ttl)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("owner", "", "owner identity to embed as the token subject")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("owner")
}

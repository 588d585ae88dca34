package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"genqueue/internal/middleware"
)

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var (
		userFlag   string
		localeFlag string
		ttlFlag    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API bearer token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := strings.TrimSpace(userFlag)
			if userID == "" {
				return errors.New("--user is required")
			}
			cfg, err := ctx.config()
			if err != nil {
				return err
			}
			token, err := middleware.SignJWT(cfg.JWTSecret, middleware.TokenClaims{
				Sub:    userID,
				Locale: localeFlag,
				Exp:    time.Now().Add(ttlFlag).Unix(),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userFlag, "user", "", "user id placed in the sub claim")
	cmd.Flags().StringVar(&localeFlag, "locale", "", "optional locale claim (en, id)")
	cmd.Flags().DurationVar(&ttlFlag, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

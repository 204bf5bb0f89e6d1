package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/batch-admission/internal/auth"
	"github.com/iliyamo/batch-admission/internal/config"
)

var (
	tokenUser uint64
	tokenRole string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Sign an access token with the configured JWT secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		tok, err := auth.NewAccessToken(cfg.JWT.Secret, tokenUser, strings.ToUpper(tokenRole), tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok.Token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().Uint64Var(&tokenUser, "user", 0, "Subject user id")
	tokenCmd.Flags().StringVar(&tokenRole, "role", "ADMIN", "APPLICANT or ADMIN")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "Token lifetime")
}

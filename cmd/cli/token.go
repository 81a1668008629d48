package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zfogg/listingboard/internal/auth"
	"github.com/zfogg/listingboard/internal/config"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <user-id> [username]",
	Short: "Mint a token for a user (needs JWT_SECRET)",
	Long: `Sign a token locally with the server's JWT_SECRET and JWT_ISSUER, read
from the environment or .env. Intended for development and operations.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadForTool()
		if err != nil {
			return err
		}
		if cfg.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is not set")
		}

		username := args[0]
		if len(args) > 1 {
			username = args[1]
		}
		resp, err := auth.NewService([]byte(cfg.JWTSecret), cfg.JWTIssuer).WithTTL(tokenTTL).GenerateToken(args[0], username)
		if err != nil {
			return err
		}

		if output == "json" {
			raw, _ := json.Marshal(resp)
			fmt.Println(string(raw))
			return nil
		}
		fmt.Println(resp.Token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", auth.DefaultTokenTTL, "Token lifetime")
}

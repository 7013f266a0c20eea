package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adiwibowo/perkaya/internal/server"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an admin bearer token",
	Long:  "Issue a signed JWT for the admin HTTP surface using the configured secret.",
	RunE:  runToken,
}

var tokenSubject string

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "admin", "Token subject")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	a, err := newApp(context.Background(), false)
	if err != nil {
		return err
	}
	defer a.close()

	svc, err := server.NewJWTService(a.cfg.Server.JWTSecret, 0)
	if err != nil {
		return err
	}
	token, err := svc.GenerateToken(tokenSubject)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

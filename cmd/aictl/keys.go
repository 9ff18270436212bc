package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/auswanderer-plattform/backend/internal/encryption"
)

func genkeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "genkey",
		Short: "Generate a random encryption secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := encryption.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}

func encryptCmd() *cobra.Command {
	var secret string

	cmd := &cobra.Command{
		Use:   "encrypt <api-key>",
		Short: "Encrypt a provider API key with AI_KEY_ENCRYPTION_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("AI_KEY_ENCRYPTION_SECRET")
			}
			enc := encryption.New(secret)
			if !enc.Configured() {
				return errors.New("no secret: pass --secret or set AI_KEY_ENCRYPTION_SECRET")
			}

			out, err := enc.Encrypt(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "encryption secret (default $AI_KEY_ENCRYPTION_SECRET)")
	return cmd
}

func maskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mask <api-key>",
		Short: "Print the masked form of an API key",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), encryption.MaskAPIKey(args[0]))
		},
	}
}

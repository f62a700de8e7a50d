package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var showSecrets bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		effective := *cfg
		if !showSecrets {
			effective.Telegram.BotToken = mask(effective.Telegram.BotToken)
			effective.Redis.Password = mask(effective.Redis.Password)
		}

		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		if err := enc.Encode(effective); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		return nil
	},
}

func init() {
	configCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "print tokens and passwords unmasked")
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

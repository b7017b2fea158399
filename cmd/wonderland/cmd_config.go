package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/wonderland/internal/config"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configListCmd, configGetCmd, configSetCmd, configRosterCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configuration values (secrets masked)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		values, err := config.ListValues(loadConfig(), true)
		if err != nil {
			return fmt.Errorf("list config: %w", err)
		}
		for _, k := range config.SortedKeys(values) {
			fmt.Fprintf(os.Stdout, "%s = %v\n", keyColor.Sprint(k), values[k])
		}
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		val, err := config.GetValue(cfgPath, args[0])
		if err != nil {
			return err
		}
		if config.IsSecretKey(args[0]) {
			val = config.MaskSecrets(map[string]any{args[0]: val})[args[0]]
		}
		fmt.Fprintln(os.Stdout, val)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetValue(cfgPath, args[0], args[1]); err != nil {
			return err
		}
		display := args[1]
		if config.IsSecretKey(args[0]) {
			display = "***"
		}
		fmt.Fprintf(os.Stdout, "%s %s = %s\n", okColor.Sprint("Set"), args[0], display)
		return nil
	},
}

var configRosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Validate the citizens roster and list its citizens",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		roster, err := config.LoadRoster(cfg.CitizensFile)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%s (%d citizens, %d extra news sources)\n",
			cfg.CitizensFile, len(roster.Citizens), len(roster.NewsSources))
		for _, c := range roster.Citizens {
			fmt.Fprintf(os.Stdout, "  %s  owner=%s topics=%v approval=%t\n",
				keyColor.Sprint(c.Seed.SeedID), c.OwnerID, c.WorldFeedTopics, c.RequireApproval)
		}
		return nil
	},
}

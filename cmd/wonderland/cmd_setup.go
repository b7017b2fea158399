package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/wonderland/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

// setupField is one wizard question bound to a string config value.
type setupField struct {
	label  string
	dst    *string
	secret bool
}

func setupFields(cfg *config.Config) []setupField {
	return []setupField{
		{label: "Network id", dst: &cfg.NetworkID},
		{label: "LLM base URL", dst: &cfg.LLM.BaseURL},
		{label: "LLM API key", dst: &cfg.LLM.APIKey, secret: true},
		{label: "LLM model", dst: &cfg.LLM.Model},
		{label: "Manifest signing secret (optional)", dst: &cfg.Signing.Secret, secret: true},
		{label: "HTTP API listen address", dst: &cfg.HTTP.Listen},
		{label: "NATS URL (optional)", dst: &cfg.NATS.URL},
		{label: "Telegram bot token (optional)", dst: &cfg.Telegram.Token, secret: true},
		{label: "Brave key for web_search (optional)", dst: &cfg.Brave.APIKey, secret: true},
		{label: "SerpApi key for news_search (optional)", dst: &cfg.Serp.APIKey, secret: true},
		{label: "Giphy key for giphy_search (optional)", dst: &cfg.Giphy.APIKey, secret: true},
	}
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		in := bufio.NewScanner(os.Stdin)

		fmt.Println(headerColor.Sprint("Wonderland setup"))
		fmt.Println(dimColor.Sprint("Enter keeps the value in brackets."))
		for _, f := range setupFields(cfg) {
			shown := *f.dst
			if f.secret && shown != "" {
				shown = config.MaskSecrets(map[string]any{"api_key": shown})["api_key"].(string)
			}
			*f.dst = ask(in, f.label, shown, *f.dst)
		}
		if n, err := strconv.Atoi(ask(in, "Max output tokens", strconv.Itoa(cfg.LLM.MaxTokens), "")); err == nil && n > 0 {
			cfg.LLM.MaxTokens = n
		}

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Println(okColor.Sprint("Saved"), cfgPath)

		if _, err := os.Stat(cfg.CitizensFile); os.IsNotExist(err) {
			owner := ask(in, "Owner id for a starter roster (empty to skip)", "", "")
			if owner != "" {
				if err := config.WriteStarterRoster(cfg.CitizensFile, owner); err != nil {
					return err
				}
				fmt.Println(okColor.Sprint("Wrote"), cfg.CitizensFile)
			}
		}
		return nil
	},
}

// ask prints label with shown in brackets and returns the trimmed answer.
// An empty answer keeps keep, or shown when keep is empty.
func ask(in *bufio.Scanner, label, shown, keep string) string {
	if shown != "" {
		fmt.Printf("%s [%s]: ", label, shown)
	} else {
		fmt.Printf("%s: ", label)
	}
	if in.Scan() {
		if answer := strings.TrimSpace(in.Text()); answer != "" {
			return answer
		}
	}
	if keep != "" {
		return keep
	}
	return shown
}

package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/thinkstream/internal/config"
	"github.com/user/thinkstream/pkg/llm"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("thinkstream setup")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		cfg.LLM.BaseURL = prompt(scanner, "API base URL", cfg.LLM.BaseURL)
		cfg.LLM.APIKey = prompt(scanner, "API key", cfg.LLM.APIKey)
		cfg.LLM.Model = prompt(scanner, "Model", cfg.LLM.Model)

		effort := prompt(scanner, "Reasoning effort (minimal/low/medium/high)", cfg.LLM.ReasoningEffort)
		if _, err := llm.ParseEffort(effort); err != nil {
			return err
		}
		cfg.LLM.ReasoningEffort = effort

		maxTokens := prompt(scanner, "Max output tokens", strconv.Itoa(cfg.LLM.MaxOutputTokens))
		if n, err := strconv.Atoi(maxTokens); err == nil {
			cfg.LLM.MaxOutputTokens = n
		}

		enabled := prompt(scanner, `Enabled tools (comma separated, or "all")`, strings.Join(cfg.Tools.Enabled, ","))
		cfg.Tools.Enabled = splitList(enabled)

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

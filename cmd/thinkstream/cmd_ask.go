package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	askFlags  turnFlags
	askFile   string
	askOutput string
)

func init() {
	rootCmd.AddCommand(askCmd)
	askFlags.register(askCmd)
	askCmd.Flags().StringVarP(&askFile, "file", "f", "", "read the prompt from a file")
	askCmd.Flags().StringVarP(&askOutput, "output", "o", "", "also write the final answer to a file")
}

var askCmd = &cobra.Command{
	Use:   "ask [prompt]",
	Short: "Send a single request and stream the answer",
	Args:  cobra.ArbitraryArgs,
	RunE:  runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	input, err := askInput(args)
	if err != nil {
		return err
	}

	cfg := loadConfig()
	setupLogging(cfg)

	s, err := newSession(cfg, &askFlags)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	last := s.turn(ctx, input, nil)

	err = turnError(last)
	if ctx.Err() != nil {
		err = context.Canceled
	}
	s.close(err)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return errors.New("interrupted")
		}
		return err
	}

	if askOutput != "" {
		if err := os.WriteFile(askOutput, []byte(last.Content), 0644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	return nil
}

func askInput(args []string) (string, error) {
	if askFile != "" {
		data, err := os.ReadFile(askFile)
		if err != nil {
			return "", fmt.Errorf("read prompt file: %w", err)
		}
		input := strings.TrimSpace(string(data))
		if len(args) > 0 {
			input = strings.Join(args, " ") + "\n\n" + input
		}
		return input, nil
	}
	input := strings.TrimSpace(strings.Join(args, " "))
	if input == "" {
		return "", errors.New("a prompt is required (pass it as arguments or use --file)")
	}
	return input, nil
}

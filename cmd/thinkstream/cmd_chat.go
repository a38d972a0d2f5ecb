package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/thinkstream/internal/types"
)

var chatFlags turnFlags

func init() {
	rootCmd.AddCommand(chatCmd)
	chatFlags.register(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive multi-turn conversation",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	s, err := newSession(cfg, &chatFlags)
	if err != nil {
		return err
	}
	defer s.close(nil)

	ctx := cmd.Context()
	fmt.Printf("thinkstream chat (%s, effort %s). Type /exit to quit.\n", s.model, s.effort)
	fmt.Println("Session log:", s.log.Dir())

	lines := readLines(os.Stdin)
	var conv []types.Message
	for {
		fmt.Print("\n> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Println()
				return nil
			}
			line = l
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "/exit" || input == "/quit" {
			return nil
		}

		last := s.turn(ctx, input, conv)
		if ctx.Err() != nil {
			return nil
		}
		if last.Kind != types.EventComplete {
			// Failed turns are not added to the conversation.
			continue
		}
		now := time.Now()
		conv = append(conv,
			types.Message{Role: types.RoleUser, Content: input, Timestamp: now},
			types.Message{Role: types.RoleAssistant, Content: last.Content, Timestamp: now},
		)
	}
}

// readLines delivers stdin lines on a channel so the prompt loop can also
// watch for interrupts. The channel closes on EOF.
func readLines(f *os.File) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			ch <- scanner.Text()
		}
	}()
	return ch
}

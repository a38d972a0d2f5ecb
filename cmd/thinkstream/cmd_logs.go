package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.AddCommand(logsListCmd, logsShowCmd)
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Inspect session logs",
}

var logsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List session log directories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		sessions, err := listSessions(cfg.LogDir)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SESSION\tTURNS\tFINALIZED")
		for _, s := range sessions {
			final := "no"
			if s.finalized {
				final = "yes"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\n", s.name, s.turns, final)
		}
		return w.Flush()
	},
}

var logsShowCmd = &cobra.Command{
	Use:   "show [session]",
	Short: "Print a session's consolidated log (latest by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		name := ""
		if len(args) == 1 {
			name = args[0]
		} else {
			sessions, err := listSessions(cfg.LogDir)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				return fmt.Errorf("no sessions in %s", cfg.LogDir)
			}
			name = sessions[len(sessions)-1].name
		}

		dir := filepath.Join(cfg.LogDir, name)
		data, err := os.ReadFile(filepath.Join(dir, "session.md"))
		if os.IsNotExist(err) {
			data, err = os.ReadFile(filepath.Join(dir, "stats.md"))
		}
		if err != nil {
			return fmt.Errorf("read session log: %w", err)
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

type sessionInfo struct {
	name      string
	turns     int
	finalized bool
}

// listSessions returns the session directories under root, oldest first.
func listSessions(root string) ([]sessionInfo, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read log dir: %w", err)
	}

	var out []sessionInfo
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "logs-") {
			continue
		}
		dir := filepath.Join(root, e.Name())
		requests, _ := filepath.Glob(filepath.Join(dir, "*-request.md"))
		_, statErr := os.Stat(filepath.Join(dir, "session.md"))
		out = append(out, sessionInfo{
			name:      e.Name(),
			turns:     len(requests),
			finalized: statErr == nil,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

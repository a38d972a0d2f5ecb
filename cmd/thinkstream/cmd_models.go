package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/thinkstream/internal/runtime"
	"github.com/user/thinkstream/pkg/llm"
	"github.com/user/thinkstream/pkg/llm/openai"
)

func init() {
	rootCmd.AddCommand(modelsCmd)
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models available to the configured API key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		client := openai.New(&llm.Config{BaseURL: cfg.LLM.BaseURL, APIKey: cfg.LLM.APIKey})
		models, err := client.ListModels(cmd.Context())
		if err != nil {
			return err
		}
		sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tOWNER\tCREATED\tFUNCTION TOOLS")
		for _, m := range models {
			tools := "yes"
			if !runtime.SupportsFunctionTools(m.ID) {
				tools = "no"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.ID, m.OwnedBy, m.Created.Format("2006-01-02"), tools)
		}
		return w.Flush()
	},
}

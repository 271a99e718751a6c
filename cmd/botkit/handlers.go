package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/keepmind9/botkit/internal/core"
	"github.com/keepmind9/botkit/internal/plugin"
	"github.com/spf13/cobra"
)

var (
	handlersConfig string
	handlersJSON   bool
	handlersAll    bool
)

// HandlerRow is one line of handlers output
type HandlerRow struct {
	Name     string   `json:"name"`
	Aliases  []string `json:"aliases"`
	Category string   `json:"category"`
	Role     string   `json:"role"`
	Cooldown string   `json:"cooldown,omitempty"`
	Limit    int      `json:"daily_limit,omitempty"`
	Source   string   `json:"source"`
}

var handlersCmd = &cobra.Command{
	Use:   "handlers",
	Short: "List the handlers botkit would load",
	Long:  "Load builtin handlers and the manifests in the configured plugin directories, then list them",
	Run: func(cmd *cobra.Command, args []string) {
		config, err := core.LoadConfig(handlersConfig)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		handlers, err := core.LoadHandlers(cmd.Context(), config)
		if err != nil {
			log.Fatalf("Failed to load handlers: %v", err)
		}

		rows := handlerRows(handlers, handlersAll)
		if handlersJSON {
			output, err := json.MarshalIndent(rows, "", "  ")
			if err != nil {
				fmt.Printf("{\"error\": \"failed to marshal json: %v\"}\n", err)
				return
			}
			fmt.Println(string(output))
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tALIASES\tCATEGORY\tROLE\tCOOLDOWN\tSOURCE")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%v\t%s\t%s\t%s\t%s\n", r.Name, r.Aliases, r.Category, r.Role, r.Cooldown, r.Source)
		}
		w.Flush()
		fmt.Printf("\n%d handler(s)\n", len(rows))
	},
}

// handlerRows sorts handlers by category then name, skipping hidden ones
// unless all is set
func handlerRows(handlers []*plugin.Handler, all bool) []HandlerRow {
	rows := make([]HandlerRow, 0, len(handlers))
	for _, h := range handlers {
		if h.Hidden && !all {
			continue
		}
		row := HandlerRow{
			Name:     h.Name,
			Aliases:  h.Aliases,
			Category: h.Category,
			Role:     string(h.Role),
			Limit:    h.DailyLimit,
			Source:   h.Source,
		}
		if h.Cooldown > 0 {
			row.Cooldown = h.Cooldown.String()
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Category != rows[j].Category {
			return rows[i].Category < rows[j].Category
		}
		return rows[i].Name < rows[j].Name
	})
	return rows
}

func init() {
	handlersCmd.Flags().StringVarP(&handlersConfig, "config", "c", "config.yaml", "Configuration file path")
	handlersCmd.Flags().BoolVar(&handlersJSON, "json", false, "Output in JSON format")
	handlersCmd.Flags().BoolVar(&handlersAll, "all", false, "Include hidden handlers")
}

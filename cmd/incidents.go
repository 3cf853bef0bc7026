package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"trafficcam-capture/internal/client"
	"trafficcam-capture/internal/monitor"
	"trafficcam-capture/pkg/models"
)

var incidentsCrashOnly bool

var incidentsCmd = &cobra.Command{
	Use:   "incidents",
	Short: "Inspect the incident feed",
}

var incidentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List current incidents from the feed",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		feed := client.NewIncidentFeed(cfg.Feed, cfg.Credentials)

		incidents, err := feed.FetchIncidents(context.Background())
		if err != nil {
			if len(incidents) == 0 {
				fmt.Printf("Error fetching incidents: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Warning: feed returned partial results: %v\n", err)
		}

		if incidentsCrashOnly {
			filter := monitor.NewKeywordFilter(cfg.Monitor.CrashKeywords)
			var kept []models.Incident
			for _, inc := range incidents {
				if filter.Match(inc) {
					kept = append(kept, inc)
				}
			}
			incidents = kept
		}

		if jsonOutput {
			b, _ := json.MarshalIndent(incidents, "", "  ")
			fmt.Println(string(b))
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tROADWAY\tDIRECTION\tCOUNTY\tCAMERAS\tDESCRIPTION")
		for _, inc := range incidents {
			desc := []rune(strings.ReplaceAll(inc.Description, "\n", " "))
			if len(desc) > 60 {
				desc = append(desc[:57], []rune("...")...)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n", inc.ID, inc.Type, inc.Roadway, inc.Direction, inc.County, len(inc.Cameras), string(desc))
		}
		w.Flush()
		fmt.Printf("\nTotal: %d incidents\n", len(incidents))
	},
}

func init() {
	rootCmd.AddCommand(incidentsCmd)
	incidentsCmd.AddCommand(incidentsListCmd)
	incidentsListCmd.Flags().BoolVar(&incidentsCrashOnly, "crash-only", false, "Only list incidents matching the crash keywords")
}

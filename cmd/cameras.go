package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	cameraRegion  string
	cameraIDsOnly bool
)

// Parent Command
var camerasCmd = &cobra.Command{
	Use:   "cameras",
	Short: "Inspect the camera catalog",
}

var camerasListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog cameras",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		cat, err := loadCatalog(cfg)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

		if cameraIDsOnly {
			ids := cat.IDs()
			if jsonOutput {
				b, _ := json.MarshalIndent(ids, "", "  ")
				fmt.Println(string(b))
				return
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			return
		}

		cams := cat.All()
		if cameraRegion != "" {
			cams = cat.ByRegion(cameraRegion)
		}

		if jsonOutput {
			b, _ := json.MarshalIndent(cams, "", "  ")
			fmt.Println(string(b))
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tROADWAY\tDIRECTION\tCOUNTY\tREGION\tDESCRIPTION")
		for _, c := range cams {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", c.ID, c.Roadway, c.Direction, c.County, c.Region, c.Description)
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(camerasCmd)
	camerasCmd.AddCommand(camerasListCmd)
	camerasListCmd.Flags().StringVar(&cameraRegion, "region", "", "Only list cameras in this region")
	camerasListCmd.Flags().BoolVar(&cameraIDsOnly, "ids", false, "Print sorted camera ids only")
}

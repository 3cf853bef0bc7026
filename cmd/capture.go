package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"trafficcam-capture/internal/capture"
	"trafficcam-capture/pkg/models"
)

var captureIncidentID int64

var captureCmd = &cobra.Command{
	Use:   "capture <camera-id>...",
	Short: "Capture video from catalog cameras once",
	Long: `Runs a single capture across the given catalog cameras and records the result,
without polling the incident feed.

Example:
  trafficcam capture 673 674 --incident 42`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		cat, err := loadCatalog(cfg)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		var cams []models.CameraTarget
		for _, id := range args {
			cam, ok := cat.Lookup(id)
			if !ok {
				fmt.Printf("Error: camera %q is not in the catalog\n", id)
				os.Exit(1)
			}
			cams = append(cams, cam)
		}

		meta, err := openMetadata(ctx, cfg)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		defer meta.Close()

		orch, err := newOrchestrator(cfg, meta, nil)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		req := capture.Request{Cameras: cams}
		if captureIncidentID != 0 {
			req.Incident = &models.Incident{ID: captureIncidentID}
		}
		res := orch.Capture(ctx, req)
		orch.Close()

		if jsonOutput {
			b, _ := json.MarshalIndent(res, "", "  ")
			fmt.Println(string(b))
		} else {
			printCaptureResult(res)
		}
		if res.CamerasSuccessful == 0 {
			os.Exit(1)
		}
	},
}

func printCaptureResult(res models.CaptureResult) {
	fmt.Printf("Run %s: %d/%d cameras, %d segments, %d bytes in %s\n\n",
		res.RunID, res.CamerasSuccessful, res.CamerasAttempted, res.SegmentsCaptured, res.TotalBytes, res.Elapsed().Round(time.Millisecond))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CAMERA\tRESULT\tSEGMENTS\tFAILED\tERROR")
	for _, c := range res.Cameras {
		result := "ok"
		if !c.Success {
			result = c.FailureKind
		}
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%d\t%s\n", c.CameraID, result, len(c.Segments), c.SegmentsAvailable, c.SegmentsFailed, c.Error)
	}
	w.Flush()
}

func init() {
	rootCmd.AddCommand(captureCmd)
	captureCmd.Flags().Int64Var(&captureIncidentID, "incident", 0, "Incident id to attach the capture to")
}

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"trafficcam-capture/internal/auth"
	"trafficcam-capture/internal/hls"
)

var authResolve bool

// authCmd runs the two-step handshake for one camera.
var authCmd = &cobra.Command{
	Use:   "auth <camera-id>",
	Short: "Obtain a streaming token for a catalog camera",
	Long: `Calls the video info endpoint and the token exchange for the camera and prints
the resulting session. With --resolve the HLS playlist is fetched as well.

Example:
  trafficcam auth 673 --resolve`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Auth.Timeout+cfg.Stream.Timeout)
		defer cancel()

		cat, err := loadCatalog(cfg)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		cam, ok := cat.Lookup(args[0])
		if !ok {
			fmt.Printf("Error: camera %q is not in the catalog\n", args[0])
			os.Exit(1)
		}

		fmt.Printf("Authenticating camera %s (%s)...\n", cam.ID, cam.Description)
		session, err := auth.NewClient(cfg.Auth, cfg.Credentials).Authenticate(ctx, cam)
		if err != nil {
			fmt.Printf("Error: authentication failed: %v\n", err)
			os.Exit(1)
		}

		out := map[string]any{
			"camera_id": session.CameraID,
			"token":     session.Token,
			"issued_at": session.IssuedAt.Format(time.RFC3339),
		}
		if authResolve {
			pl, err := hls.NewResolver(cfg.Stream, cfg.Credentials).Resolve(ctx, session, cam)
			if err != nil && pl == nil {
				fmt.Printf("Error: playlist resolve failed: %v\n", err)
				os.Exit(1)
			}
			out["media_playlist"] = pl.MediaURL
			out["segments"] = len(pl.Segments)
		}

		if jsonOutput {
			b, _ := json.MarshalIndent(out, "", "  ")
			fmt.Println(string(b))
			return
		}
		fmt.Printf("Token:     %s\n", session.Token)
		fmt.Printf("Issued at: %s\n", out["issued_at"])
		if authResolve {
			fmt.Printf("Playlist:  %s\n", out["media_playlist"])
			fmt.Printf("Segments:  %d\n", out["segments"])
		}
	},
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.Flags().BoolVar(&authResolve, "resolve", false, "Also resolve the HLS playlist with the new token")
}

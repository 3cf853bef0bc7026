package hls

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"

	"github.com/go-resty/resty/v2"
	"trafficcam-capture/internal/client"
	"trafficcam-capture/internal/config"
	"trafficcam-capture/pkg/models"
)

// Playlist is the resolved segment list for one camera.
type Playlist struct {
	MasterURL string
	MediaURL  string
	Segments  []models.Segment
}

// Resolver fetches a camera's master and media playlists with a streaming token.
type Resolver struct {
	HTTP   *resty.Client
	Config config.StreamConfig
}

func NewResolver(cfg config.StreamConfig, creds config.Credentials) *Resolver {
	return &Resolver{
		HTTP:   NewStreamClient(cfg, creds),
		Config: cfg,
	}
}

// NewStreamClient builds the HTTP client shared by playlist and segment requests.
func NewStreamClient(cfg config.StreamConfig, creds config.Credentials) *resty.Client {
	return client.New(client.Options{
		Timeout:            cfg.Timeout,
		Credentials:        creds,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})
}

// Resolve fetches the master playlist as a liveness check, then the media playlist,
// and returns its segments in playlist order.
func (r *Resolver) Resolve(ctx context.Context, session *models.AuthSession, cam models.CameraTarget) (*Playlist, error) {
	if session == nil || session.CameraID != cam.ID {
		owner := ""
		if session != nil {
			owner = session.CameraID
		}
		return nil, fmt.Errorf("%w: token issued for camera %q used for camera %q", ErrSessionMismatch, owner, cam.ID)
	}

	masterURL, err := WithToken(cam.VideoURL, session.Token)
	if err != nil {
		return nil, fmt.Errorf("%w: camera %s: bad video url: %v", ErrManifestMalformed, cam.ID, err)
	}
	master, err := r.fetchManifest(ctx, masterURL)
	if err != nil {
		return nil, fmt.Errorf("camera %s master playlist: %w", cam.ID, err)
	}

	pl := &Playlist{MasterURL: masterURL}
	media := master

	switch variant := r.variantURL(cam.VideoURL); {
	case variant != "":
		pl.MediaURL, err = WithToken(variant, session.Token)
		if err != nil {
			return nil, fmt.Errorf("%w: camera %s: bad variant url: %v", ErrManifestMalformed, cam.ID, err)
		}
	case FirstVariant(master, masterURL) != "":
		pl.MediaURL, err = WithToken(FirstVariant(master, masterURL), session.Token)
		if err != nil {
			return nil, fmt.Errorf("%w: camera %s: bad variant url: %v", ErrManifestMalformed, cam.ID, err)
		}
	default:
		// The master already is a media playlist.
		pl.MediaURL = masterURL
	}

	if pl.MediaURL != masterURL {
		media, err = r.fetchManifest(ctx, pl.MediaURL)
		if err != nil {
			return nil, fmt.Errorf("camera %s media playlist: %w", cam.ID, err)
		}
	}

	pl.Segments, err = ParsePlaylist(media, pl.MediaURL, session.Token)
	if err != nil {
		return nil, fmt.Errorf("camera %s: %w", cam.ID, err)
	}
	if len(pl.Segments) == 0 {
		slog.Warn("media playlist has no segments", "camera_id", cam.ID, "playlist", redact(pl.MediaURL))
		return pl, fmt.Errorf("camera %s: %w", cam.ID, ErrNoSegmentsFound)
	}

	slog.Debug("playlist resolved", "camera_id", cam.ID, "segments", len(pl.Segments))
	return pl, nil
}

func (r *Resolver) fetchManifest(ctx context.Context, u string) (string, error) {
	resp, err := r.HTTP.R().
		SetContext(ctx).
		Get(u)

	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrManifestUnreachable, err)
	}
	if err := client.CheckResponse("fetch manifest", resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrManifestUnreachable, err)
	}

	body := resp.String()
	if !HasHeader(body) {
		return "", fmt.Errorf("%w: missing %s header", ErrManifestMalformed, tagHeader)
	}
	return body, nil
}

// variantURL swaps the configured master filename for the variant filename.
// It returns "" when no substitution applies.
func (r *Resolver) variantURL(videoURL string) string {
	if r.Config.VariantFilename == "" || r.Config.MasterFilename == "" {
		return ""
	}
	u, err := url.Parse(videoURL)
	if err != nil {
		return ""
	}
	dir, file := path.Split(u.Path)
	if file != r.Config.MasterFilename || file == r.Config.VariantFilename {
		return ""
	}
	u.Path = dir + r.Config.VariantFilename
	u.RawPath = ""
	return u.String()
}

// WithToken returns raw with any existing token parameter replaced by token.
func WithToken(raw, token string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", raw)
	}
	q := u.Query()
	q.Del("token")
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// redact drops the query string so tokens never reach the logs.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	u.RawQuery = ""
	return u.String()
}

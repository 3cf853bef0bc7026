package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"trafficcam-capture/internal/client"
	"trafficcam-capture/internal/config"
	"trafficcam-capture/pkg/models"
)

var (
	ErrAuthInfoFailed      = errors.New("auth info request failed")
	ErrTokenExchangeFailed = errors.New("token exchange failed")
)

const tokenPrefix = "?token="

// Client runs the two-step handshake that turns a camera image id into a streaming token.
// Nothing is cached: every call performs both steps.
type Client struct {
	HTTP   *resty.Client
	Config config.AuthConfig
	now    func() time.Time
}

func NewClient(cfg config.AuthConfig, creds config.Credentials) *Client {
	r := client.New(client.Options{Timeout: cfg.Timeout, Credentials: creds})
	r.SetHeader("X-Requested-With", "XMLHttpRequest")
	return &Client{HTTP: r, Config: cfg, now: time.Now}
}

// Authenticate performs both handshake steps for cam and returns a session bound to it.
func (c *Client) Authenticate(ctx context.Context, cam models.CameraTarget) (*models.AuthSession, error) {
	info, err := c.FetchVideoInfo(ctx, cam.AuthImageID())
	if err != nil {
		return nil, err
	}

	token, err := c.ExchangeToken(ctx, info)
	if err != nil {
		return nil, err
	}

	slog.Debug("camera authenticated", "camera_id", cam.ID, "image_id", cam.AuthImageID())
	return &models.AuthSession{
		CameraID: cam.ID,
		Token:    token,
		IssuedAt: c.now(),
	}, nil
}

// FetchVideoInfo is step 1: GET the auth-info endpoint for imageID.
func (c *Client) FetchVideoInfo(ctx context.Context, imageID string) (*models.SecureTokenRequest, error) {
	resp, err := c.HTTP.R().
		SetContext(ctx).
		SetQueryParam("imageId", imageID).
		Get(c.Config.InfoURL)

	if err != nil {
		return nil, fmt.Errorf("%w: image %s: %v", ErrAuthInfoFailed, imageID, err)
	}
	if err := client.CheckResponse("auth info", resp); err != nil {
		return nil, fmt.Errorf("%w: image %s: %v", ErrAuthInfoFailed, imageID, err)
	}

	var info models.VideoInfoResponse
	if err := json.Unmarshal(resp.Body(), &info); err != nil {
		return nil, fmt.Errorf("%w: image %s: malformed response: %v", ErrAuthInfoFailed, imageID, err)
	}
	if info.Token == "" || info.SourceID == "" {
		return nil, fmt.Errorf("%w: image %s: response missing token or sourceId", ErrAuthInfoFailed, imageID)
	}

	systemSourceID := string(info.SystemSourceID)
	if systemSourceID == "" {
		systemSourceID = c.Config.DefaultSystemSourceID
	}

	return &models.SecureTokenRequest{
		Token:          string(info.Token),
		SourceID:       string(info.SourceID),
		SystemSourceID: systemSourceID,
	}, nil
}

// ExchangeToken is step 2: POST the step 1 values and extract the streaming token.
func (c *Client) ExchangeToken(ctx context.Context, req *models.SecureTokenRequest) (string, error) {
	resp, err := c.HTTP.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post(c.Config.ExchangeURL)

	if err != nil {
		return "", fmt.Errorf("%w: source %s: %v", ErrTokenExchangeFailed, req.SourceID, err)
	}
	if err := client.CheckResponse("token exchange", resp); err != nil {
		return "", fmt.Errorf("%w: source %s: %v", ErrTokenExchangeFailed, req.SourceID, err)
	}

	reply, err := parseSecureTokenReply(resp.Body())
	if err != nil {
		return "", fmt.Errorf("%w: source %s: %v", ErrTokenExchangeFailed, req.SourceID, err)
	}
	token, err := reply.streamingToken()
	if err != nil {
		return "", fmt.Errorf("%w: source %s: %v", ErrTokenExchangeFailed, req.SourceID, err)
	}
	return token, nil
}

// secureTokenReply is the step 2 response. The endpoint answers either with an
// object carrying secureUri or with a bare "?token=" string.
type secureTokenReply interface {
	streamingToken() (string, error)
}

type secureURIReply struct {
	URI string
}

type bareTokenReply struct {
	Raw string
}

func (r secureURIReply) streamingToken() (string, error) {
	uri := strings.TrimSpace(r.URI)
	if strings.HasPrefix(uri, tokenPrefix) {
		return nonEmpty(uri[len(tokenPrefix):])
	}
	if u, err := url.Parse(uri); err == nil {
		if tok := u.Query().Get("token"); tok != "" {
			return tok, nil
		}
	}
	return nonEmpty(uri)
}

func (r bareTokenReply) streamingToken() (string, error) {
	if !strings.HasPrefix(r.Raw, tokenPrefix) {
		return "", fmt.Errorf("unexpected bare response %q", truncate(r.Raw, 40))
	}
	return nonEmpty(r.Raw[len(tokenPrefix):])
}

func parseSecureTokenReply(body []byte) (secureTokenReply, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty response")
	}

	switch body[0] {
	case '{':
		var obj models.SecureTokenObject
		if err := json.Unmarshal(body, &obj); err != nil {
			return nil, fmt.Errorf("malformed object response: %v", err)
		}
		if obj.SecureURI == "" {
			return nil, errors.New("object response missing secureUri")
		}
		return secureURIReply{URI: obj.SecureURI}, nil
	case '"':
		var s string
		if err := json.Unmarshal(body, &s); err != nil {
			return nil, fmt.Errorf("malformed string response: %v", err)
		}
		return bareTokenReply{Raw: strings.TrimSpace(s)}, nil
	default:
		return bareTokenReply{Raw: string(body)}, nil
	}
}

func nonEmpty(token string) (string, error) {
	if token == "" {
		return "", errors.New("empty streaming token")
	}
	return token, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

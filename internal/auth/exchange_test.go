package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"trafficcam-capture/internal/config"
	"trafficcam-capture/pkg/models"
)

type handshake struct {
	infoStatus int
	infoBody   string

	exchangeStatus int
	exchangeBody   string

	gotImageID string
	gotRequest models.SecureTokenRequest
}

func (h *handshake) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/Camera/GetVideoUrl", func(w http.ResponseWriter, r *http.Request) {
		h.gotImageID = r.URL.Query().Get("imageId")
		w.WriteHeader(h.infoStatus)
		io.WriteString(w, h.infoBody)
	})
	mux.HandleFunc("/SecureTokenUri", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &h.gotRequest)
		w.WriteHeader(h.exchangeStatus)
		io.WriteString(w, h.exchangeBody)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(url string) *Client {
	c := NewClient(config.AuthConfig{
		InfoURL:               url + "/Camera/GetVideoUrl",
		ExchangeURL:           url + "/SecureTokenUri",
		DefaultSystemSourceID: "District 2",
		Timeout:               5 * time.Second,
	}, config.Credentials{})
	c.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return c
}

var camera673 = models.CameraTarget{ID: "673", ImageID: "9001", VideoURL: "https://cdn.example/673/index.m3u8"}

func TestAuthenticate(t *testing.T) {
	tests := []struct {
		description string

		infoStatus     int
		infoBody       string
		exchangeStatus int
		exchangeBody   string

		expectedToken  string
		expectedSystem string
		expectedErr    error
	}{
		{
			description:    "bare json string reply has its prefix stripped",
			infoStatus:     http.StatusOK,
			infoBody:       `{"token":"abc","sourceId":"10"}`,
			exchangeStatus: http.StatusOK,
			exchangeBody:   `"?token=xyz"`,
			expectedToken:  "xyz",
			expectedSystem: "District 2",
		},
		{
			description:    "unquoted bare reply",
			infoStatus:     http.StatusOK,
			infoBody:       `{"token":"abc","sourceId":10,"systemSourceId":"District 4"}`,
			exchangeStatus: http.StatusOK,
			exchangeBody:   `?token=xyz`,
			expectedToken:  "xyz",
			expectedSystem: "District 4",
		},
		{
			description:    "object reply with a token prefix",
			infoStatus:     http.StatusOK,
			infoBody:       `{"token":"abc","sourceId":"10"}`,
			exchangeStatus: http.StatusOK,
			exchangeBody:   `{"secureUri":"?token=obj"}`,
			expectedToken:  "obj",
			expectedSystem: "District 2",
		},
		{
			description:    "object reply with a full url",
			infoStatus:     http.StatusOK,
			infoBody:       `{"token":"abc","sourceId":"10"}`,
			exchangeStatus: http.StatusOK,
			exchangeBody:   `{"secureUri":"https://cdn.example/673/index.m3u8?token=full"}`,
			expectedToken:  "full",
			expectedSystem: "District 2",
		},
		{
			description: "auth info http 500",
			infoStatus:  http.StatusInternalServerError,
			infoBody:    `oops`,
			expectedErr: ErrAuthInfoFailed,
		},
		{
			description: "auth info missing sourceId",
			infoStatus:  http.StatusOK,
			infoBody:    `{"token":"abc"}`,
			expectedErr: ErrAuthInfoFailed,
		},
		{
			description: "auth info malformed json",
			infoStatus:  http.StatusOK,
			infoBody:    `<html>`,
			expectedErr: ErrAuthInfoFailed,
		},
		{
			description:    "exchange http 502",
			infoStatus:     http.StatusOK,
			infoBody:       `{"token":"abc","sourceId":"10"}`,
			exchangeStatus: http.StatusBadGateway,
			expectedErr:    ErrTokenExchangeFailed,
		},
		{
			description:    "exchange object without secureUri",
			infoStatus:     http.StatusOK,
			infoBody:       `{"token":"abc","sourceId":"10"}`,
			exchangeStatus: http.StatusOK,
			exchangeBody:   `{"uri":"?token=xyz"}`,
			expectedErr:    ErrTokenExchangeFailed,
		},
		{
			description:    "exchange string without token prefix",
			infoStatus:     http.StatusOK,
			infoBody:       `{"token":"abc","sourceId":"10"}`,
			exchangeStatus: http.StatusOK,
			exchangeBody:   `"denied"`,
			expectedErr:    ErrTokenExchangeFailed,
		},
		{
			description:    "exchange empty token",
			infoStatus:     http.StatusOK,
			infoBody:       `{"token":"abc","sourceId":"10"}`,
			exchangeStatus: http.StatusOK,
			exchangeBody:   `"?token="`,
			expectedErr:    ErrTokenExchangeFailed,
		},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			h := &handshake{
				infoStatus:     test.infoStatus,
				infoBody:       test.infoBody,
				exchangeStatus: test.exchangeStatus,
				exchangeBody:   test.exchangeBody,
			}
			srv := h.server(t)

			session, err := newTestClient(srv.URL).Authenticate(context.Background(), camera673)
			assert.Equal(t, "9001", h.gotImageID)

			if test.expectedErr != nil {
				require.ErrorIs(t, err, test.expectedErr)
				assert.Nil(t, session)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expectedToken, session.Token)
			assert.Equal(t, "673", session.CameraID)
			assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), session.IssuedAt)

			assert.Equal(t, "abc", h.gotRequest.Token)
			assert.Equal(t, "10", h.gotRequest.SourceID)
			assert.Equal(t, test.expectedSystem, h.gotRequest.SystemSourceID)
		})
	}
}

func TestAuthenticateFallsBackToCameraID(t *testing.T) {
	h := &handshake{
		infoStatus:     http.StatusOK,
		infoBody:       `{"token":"abc","sourceId":"10"}`,
		exchangeStatus: http.StatusOK,
		exchangeBody:   `"?token=xyz"`,
	}
	srv := h.server(t)

	cam := camera673
	cam.ImageID = ""
	_, err := newTestClient(srv.URL).Authenticate(context.Background(), cam)
	require.NoError(t, err)
	assert.Equal(t, "673", h.gotImageID)
}

func TestParseSecureTokenReply(t *testing.T) {
	reply, err := parseSecureTokenReply([]byte(`  {"secureUri":"plain-token"} `))
	require.NoError(t, err)
	assert.IsType(t, secureURIReply{}, reply)
	tok, err := reply.streamingToken()
	require.NoError(t, err)
	assert.Equal(t, "plain-token", tok)

	reply, err = parseSecureTokenReply([]byte(`"?token=xyz"`))
	require.NoError(t, err)
	assert.IsType(t, bareTokenReply{}, reply)

	_, err = parseSecureTokenReply(nil)
	assert.Error(t, err)
}

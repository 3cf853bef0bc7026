package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"trafficcam-capture/internal/config"
	"trafficcam-capture/pkg/models"
)

// feedServer serves total incidents with ids 1..total, honoring the start and length
// encoded in the query parameter.
func feedServer(t *testing.T, total int, failAt int) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/List/GetData/traffic", r.URL.Path)
		assert.Equal(t, "en", r.URL.Query().Get("lang"))

		var q feedQuery
		require.NoError(t, json.Unmarshal([]byte(r.URL.Query().Get("query")), &q))
		if failAt > 0 && int(n) == failAt {
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		page := models.IncidentListResponse{RecordsTotal: total}
		for id := q.Start + 1; id <= total && id <= q.Start+q.Length; id++ {
			page.Data = append(page.Data, models.IncidentRecord{
				ID:          int64(id),
				Type:        "Crash",
				Roadway:     "I-95",
				Description: fmt.Sprintf("incident %d", id),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(page)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestFeed(url string, pageSize int) *IncidentFeed {
	return NewIncidentFeed(config.FeedConfig{
		BaseURL:  url,
		Path:     "/List/GetData/traffic",
		PageSize: pageSize,
	}, config.Credentials{UserAgent: "test-agent"})
}

func TestFetchIncidentsPagination(t *testing.T) {
	tests := []struct {
		description string

		total    int
		pageSize int

		expectedCalls int32
	}{
		{
			description:   "stops on a short page",
			total:         5,
			pageSize:      2,
			expectedCalls: 3,
		},
		{
			description:   "stops once the reported total is reached",
			total:         4,
			pageSize:      2,
			expectedCalls: 2,
		},
		{
			description:   "single page",
			total:         1,
			pageSize:      100,
			expectedCalls: 1,
		},
		{
			description:   "empty feed",
			total:         0,
			pageSize:      100,
			expectedCalls: 1,
		},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			srv, calls := feedServer(t, test.total, 0)

			incidents, err := newTestFeed(srv.URL, test.pageSize).FetchIncidents(context.Background())
			require.NoError(t, err)

			assert.Len(t, incidents, test.total)
			assert.Equal(t, test.expectedCalls, atomic.LoadInt32(calls))
			for i, inc := range incidents {
				assert.Equal(t, int64(i+1), inc.ID)
			}
		})
	}
}

func TestFetchIncidentsPartialFailure(t *testing.T) {
	srv, _ := feedServer(t, 10, 2)

	incidents, err := newTestFeed(srv.URL, 3).FetchIncidents(context.Background())
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
	assert.Len(t, incidents, 3, "first page is kept")
}

func TestFetchPageNonJSONContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `{"data":[{"id":42,"type":"Crash","roadwayName":"I-10","cameras":[{"location":"MM 12","images":[{"id":9001,"cameraSiteId":673,"videoUrl":"https://cdn.example/673/index.m3u8"},{"id":9002,"cameraSiteId":674}]}]}],"recordsTotal":1}`)
	}))
	defer srv.Close()

	page, err := newTestFeed(srv.URL, 100).FetchPage(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, page.Data, 1)

	inc := page.Data[0].ToIncident(time.Now())
	assert.Equal(t, int64(42), inc.ID)
	require.Len(t, inc.Cameras, 1, "images without a video url are skipped")
	assert.Equal(t, "673", inc.Cameras[0].ID)
	assert.Equal(t, "9001", inc.Cameras[0].ImageID)
	assert.Equal(t, "I-10", inc.Cameras[0].Roadway)
}

func TestNewSendsCredentialHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer srv.Close()

	r := New(Options{BaseURL: srv.URL, Credentials: config.Credentials{
		UserAgent:         "agent/1.0",
		Referer:           "https://fl511.com/",
		Cookies:           map[string]string{"b": "2", "a": "1"},
		VerificationToken: "vt",
	}})
	_, err := r.R().Get("/")
	require.NoError(t, err)

	assert.Equal(t, "agent/1.0", got.Get("User-Agent"))
	assert.Equal(t, "https://fl511.com/", got.Get("Referer"))
	assert.Equal(t, "a=1; b=2", got.Get("Cookie"))
	assert.Equal(t, "vt", got.Get("__requestverificationtoken"))
}

func TestNewAlwaysSetsTimeout(t *testing.T) {
	tests := []struct {
		description string

		timeout time.Duration

		expected time.Duration
	}{
		{
			description: "configured timeout is used",
			timeout:     3 * time.Second,
			expected:    3 * time.Second,
		},
		{
			description: "zero falls back to the default",
			expected:    DefaultTimeout,
		},
		{
			description: "negative falls back to the default",
			timeout:     -time.Second,
			expected:    DefaultTimeout,
		},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			r := New(Options{Timeout: test.timeout})
			assert.Equal(t, test.expected, r.GetClient().Timeout)
		})
	}
}

func TestIsAuthError(t *testing.T) {
	assert.True(t, IsAuthError(fmt.Errorf("wrapped: %w", &StatusError{StatusCode: http.StatusForbidden})))
	assert.True(t, IsAuthError(&StatusError{StatusCode: http.StatusUnauthorized}))
	assert.False(t, IsAuthError(&StatusError{StatusCode: http.StatusNotFound}))
	assert.False(t, IsAuthError(fmt.Errorf("plain")))
}

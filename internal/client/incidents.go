package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"trafficcam-capture/internal/config"
	"trafficcam-capture/pkg/models"
)

// IncidentFeed pages through the public traffic incident list.
type IncidentFeed struct {
	HTTP   *resty.Client
	Config config.FeedConfig
	now    func() time.Time
}

func NewIncidentFeed(cfg config.FeedConfig, creds config.Credentials) *IncidentFeed {
	r := New(Options{BaseURL: cfg.BaseURL, Timeout: cfg.Timeout, Credentials: creds})
	r.SetHeader("Accept", "application/json, text/javascript, */*; q=0.01")
	r.SetHeader("X-Requested-With", "XMLHttpRequest")
	return &IncidentFeed{HTTP: r, Config: cfg, now: time.Now}
}

type feedColumn struct {
	Data *int   `json:"data"`
	Name string `json:"name"`
}

type feedOrder struct {
	Column int    `json:"column"`
	Dir    string `json:"dir"`
}

type feedQuery struct {
	Columns []feedColumn      `json:"columns"`
	Order   []feedOrder       `json:"order"`
	Start   int               `json:"start"`
	Length  int               `json:"length"`
	Search  map[string]string `json:"search"`
}

func buildFeedQuery(start, length int) (string, error) {
	last := 10
	q := feedQuery{
		Columns: []feedColumn{
			{Name: ""},
			{Name: "region"},
			{Name: "county"},
			{Name: "roadwayName"},
			{Name: "direction"},
			{Name: "type"},
			{Name: "severity"},
			{Name: "description"},
			{Name: "startDate"},
			{Name: "lastUpdated"},
			{Data: &last, Name: ""},
		},
		Order:  []feedOrder{{Column: 9, Dir: "desc"}}, // newest update first
		Start:  start,
		Length: length,
		Search: map[string]string{"value": ""},
	}
	b, err := json.Marshal(q)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// FetchPage returns one page of incident records starting at offset start.
func (f *IncidentFeed) FetchPage(ctx context.Context, start int) (*models.IncidentListResponse, error) {
	query, err := buildFeedQuery(start, f.Config.PageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to build feed query: %w", err)
	}

	var respData models.IncidentListResponse
	resp, err := f.HTTP.R().
		SetContext(ctx).
		SetQueryParam("query", query).
		SetQueryParam("lang", "en").
		SetResult(&respData).
		Get(f.Config.Path)

	if err != nil {
		return nil, fmt.Errorf("failed to fetch incidents at offset %d: %w", start, err)
	}
	if err := CheckResponse("fetch incidents", resp); err != nil {
		return nil, err
	}
	// Result is only auto-decoded for JSON content types.
	if respData.Data == nil && len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), &respData); err != nil {
			return nil, fmt.Errorf("failed to parse incident page at offset %d: %w", start, err)
		}
	}
	return &respData, nil
}

// FetchIncidents walks every page of the feed. Paging stops on a short page or once
// the reported total is reached. On a mid-walk failure the incidents collected so far
// are returned together with the error.
func (f *IncidentFeed) FetchIncidents(ctx context.Context) ([]models.Incident, error) {
	var incidents []models.Incident
	start := 0
	length := f.Config.PageSize
	seenAt := f.now().UTC()

	for page := 1; ; page++ {
		data, err := f.FetchPage(ctx, start)
		if err != nil {
			return incidents, err
		}
		for _, rec := range data.Data {
			incidents = append(incidents, rec.ToIncident(seenAt))
		}
		slog.Debug("fetched incident page", "page", page, "start", start, "count", len(data.Data), "records_total", data.RecordsTotal)

		if len(data.Data) < length {
			break
		}
		if data.RecordsTotal > 0 && start+length >= data.RecordsTotal {
			break
		}
		start += length

		if f.Config.PageDelay > 0 {
			select {
			case <-ctx.Done():
				return incidents, ctx.Err()
			case <-time.After(f.Config.PageDelay):
			}
		}
	}
	return incidents, nil
}

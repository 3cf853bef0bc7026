package models

import (
	"strconv"
	"time"
)

// IncidentListResponse wraps one page of the traffic incident feed
type IncidentListResponse struct {
	Data         []IncidentRecord `json:"data"`
	RecordsTotal int              `json:"recordsTotal"`
}

// IncidentRecord is the raw feed shape of a single incident.
type IncidentRecord struct {
	ID          int64          `json:"id"`
	RowID       string         `json:"DT_RowId"`
	SourceID    string         `json:"sourceId"`
	Roadway     string         `json:"roadwayName"`
	County      string         `json:"county"`
	Region      string         `json:"region"`
	Type        string         `json:"type"`
	SubType     string         `json:"eventSubType,omitempty"`
	Severity    string         `json:"severity"`
	Direction   string         `json:"direction"`
	Description string         `json:"description"`
	StartDate   string         `json:"startDate"`
	LastUpdated string         `json:"lastUpdated"`
	Source      string         `json:"source"`
	Latitude    float64        `json:"latitude,omitempty"`
	Longitude   float64        `json:"longitude,omitempty"`
	Cameras     []CameraRecord `json:"cameras,omitempty"`
}

// CameraRecord is a camera site embedded in an incident record
type CameraRecord struct {
	Location string        `json:"location"`
	Images   []CameraImage `json:"images"`
}

type CameraImage struct {
	ID                  int64  `json:"id"`
	CameraSiteID        int64  `json:"cameraSiteId"`
	SortOrder           int    `json:"sortOrder"`
	Description         string `json:"description"`
	ImageURL            string `json:"imageUrl"`
	VideoURL            string `json:"videoUrl,omitempty"`
	VideoType           string `json:"videoType,omitempty"`
	IsVideoAuthRequired bool   `json:"isVideoAuthRequired"`
}

// Incident is a traffic incident as used by the poll loop.
type Incident struct {
	ID          int64          `json:"id"`
	SourceID    string         `json:"source_id,omitempty"`
	Type        string         `json:"type"`
	Severity    string         `json:"severity,omitempty"`
	Description string         `json:"description"`
	Roadway     string         `json:"roadway"`
	County      string         `json:"county"`
	Region      string         `json:"region"`
	Direction   string         `json:"direction"`
	StartDate   string         `json:"start_date,omitempty"`
	LastUpdated string         `json:"last_updated,omitempty"`
	Source      string         `json:"source,omitempty"`
	Latitude    float64        `json:"latitude,omitempty"`
	Longitude   float64        `json:"longitude,omitempty"`
	Cameras     []CameraTarget `json:"cameras,omitempty"` // Direct associations from the feed
	SeenAt      time.Time      `json:"seen_at"`
}

// ToIncident flattens a feed record. Only images that carry a video URL become cameras.
func (r IncidentRecord) ToIncident(seenAt time.Time) Incident {
	inc := Incident{
		ID:          r.ID,
		SourceID:    r.SourceID,
		Type:        r.Type,
		Severity:    r.Severity,
		Description: r.Description,
		Roadway:     r.Roadway,
		County:      r.County,
		Region:      r.Region,
		Direction:   r.Direction,
		StartDate:   r.StartDate,
		LastUpdated: r.LastUpdated,
		Source:      r.Source,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		SeenAt:      seenAt,
	}

	for _, cam := range r.Cameras {
		for _, img := range cam.Images {
			if img.VideoURL == "" {
				continue
			}
			inc.Cameras = append(inc.Cameras, CameraTarget{
				ID:          strconv.FormatInt(img.CameraSiteID, 10),
				ImageID:     strconv.FormatInt(img.ID, 10),
				VideoURL:    img.VideoURL,
				Description: img.Description,
				Location:    cam.Location,
				Roadway:     r.Roadway,
				Region:      r.Region,
				County:      r.County,
				Direction:   r.Direction,
			})
		}
	}
	return inc
}

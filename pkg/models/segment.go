package models

import "time"

// Segment is one media chunk referenced by a playlist. Data is filled in by the downloader.
type Segment struct {
	Index           int        `json:"index"`
	URL             string     `json:"url"`
	Filename        string     `json:"filename"`
	Duration        float64    `json:"duration"` // Seconds, from #EXTINF; 0 when absent
	ProgramDateTime *time.Time `json:"program_date_time,omitempty"`
	Data            []byte     `json:"-"`
	Size            int64      `json:"size_bytes"`
}

// StoredSegment is a downloaded segment after it was written to the artifact store.
type StoredSegment struct {
	CameraID        string     `json:"camera_id"`
	IncidentID      int64      `json:"incident_id,omitempty"`
	Filename        string     `json:"filename"`
	Index           int        `json:"segment_index"`
	Bucket          string     `json:"storage_bucket"`
	Path            string     `json:"storage_path"`
	URL             string     `json:"storage_url"`
	Size            int64      `json:"size_bytes"`
	Duration        float64    `json:"duration"`
	ProgramDateTime *time.Time `json:"program_date_time,omitempty"`
	CapturedAt      time.Time  `json:"capture_timestamp"`
}

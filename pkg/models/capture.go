package models

import "time"

// CameraOutcome is the result of one camera's capture attempt.
type CameraOutcome struct {
	CameraID          string          `json:"camera_id"`
	Description       string          `json:"description,omitempty"`
	Success           bool            `json:"success"`
	FailureKind       string          `json:"failure_kind,omitempty"`
	Error             string          `json:"error,omitempty"`
	SegmentsAvailable int             `json:"segments_available"`
	SegmentsFailed    int             `json:"segments_failed"`
	Segments          []StoredSegment `json:"segments"`
	Bytes             int64           `json:"total_size_bytes"`
}

// CaptureResult aggregates one capture run across all targeted cameras.
type CaptureResult struct {
	RunID             string          `json:"run_id"`
	IncidentID        int64           `json:"incident_id,omitempty"`
	CamerasAttempted  int             `json:"cameras_attempted"`
	CamerasSuccessful int             `json:"cameras_successful"`
	CamerasFailed     int             `json:"cameras_failed"`
	SegmentsCaptured  int             `json:"segments_captured"`
	TotalBytes        int64           `json:"total_size_bytes"`
	Cameras           []CameraOutcome `json:"cameras"`
	StartedAt         time.Time       `json:"capture_start"`
	FinishedAt        time.Time       `json:"capture_end"`
}

// Elapsed returns the wall-clock duration of the run.
func (r CaptureResult) Elapsed() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Segments returns every stored segment across cameras, camera order first.
func (r CaptureResult) Segments() []StoredSegment {
	var out []StoredSegment
	for _, c := range r.Cameras {
		out = append(out, c.Segments...)
	}
	return out
}

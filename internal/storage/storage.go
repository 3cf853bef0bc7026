package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trafficcam-capture/pkg/models"
)

// ErrStorageWriteFailed wraps every artifact or metadata write failure.
var ErrStorageWriteFailed = errors.New("storage write failed")

// Location is where an artifact ended up.
type Location struct {
	Bucket string
	Path   string
	URL    string
}

// ArtifactStore is write-once blob storage with descriptive metadata next to each blob.
// Implementations must be safe for concurrent use by capture workers.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte, meta map[string]string) (Location, error)
}

// MetadataStore persists incidents, cameras, capture runs and segment records.
// Writes are upserts keyed by incident id and by (camera id, filename).
type MetadataStore interface {
	SaveIncident(ctx context.Context, inc models.Incident) error
	SaveCamera(ctx context.Context, cam models.CameraTarget) error
	SaveSegment(ctx context.Context, seg models.StoredSegment) error
	SaveCaptureRun(ctx context.Context, res models.CaptureResult) error
	IncidentIDs(ctx context.Context) ([]int64, error)
	Close() error
}

// SegmentKey is the artifact key of a segment: camera_<id>/<yyyymmdd>/<filename>.
func SegmentKey(cameraID string, capturedAt time.Time, filename string) string {
	return fmt.Sprintf("camera_%s/%s/%s", cameraID, capturedAt.UTC().Format("20060102"), filename)
}

func writeFailed(what string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorageWriteFailed, what, err)
}

package storage

import (
	"context"
	"sort"
	"sync"

	"trafficcam-capture/pkg/models"
)

// MemoryStore is a MetadataStore kept in process memory. It is used when no
// database is configured and in tests.
type MemoryStore struct {
	mu        sync.Mutex
	incidents map[int64]models.Incident
	cameras   map[string]models.CameraTarget
	segments  map[string]models.StoredSegment
	runs      map[string]models.CaptureResult
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		incidents: make(map[int64]models.Incident),
		cameras:   make(map[string]models.CameraTarget),
		segments:  make(map[string]models.StoredSegment),
		runs:      make(map[string]models.CaptureResult),
	}
}

func (m *MemoryStore) SaveIncident(_ context.Context, inc models.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incidents[inc.ID] = inc
	return nil
}

func (m *MemoryStore) SaveCamera(_ context.Context, cam models.CameraTarget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cameras[cam.ID] = cam
	return nil
}

func (m *MemoryStore) SaveSegment(_ context.Context, seg models.StoredSegment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.segments[seg.CameraID+"/"+seg.Filename] = seg
	return nil
}

func (m *MemoryStore) SaveCaptureRun(_ context.Context, res models.CaptureResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	res.Cameras = nil
	m.runs[res.RunID] = res
	return nil
}

func (m *MemoryStore) IncidentIDs(_ context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.incidents))
	for id := range m.incidents {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *MemoryStore) Close() error { return nil }

// segmentsOf returns the stored segment records of cameraID sorted by index.
func (m *MemoryStore) segmentsOf(cameraID string) []models.StoredSegment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.StoredSegment
	for _, seg := range m.segments {
		if seg.CameraID == cameraID {
			out = append(out, seg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func (m *MemoryStore) runCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

func (m *MemoryStore) incident(id int64) (models.Incident, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inc, ok := m.incidents[id]
	return inc, ok
}

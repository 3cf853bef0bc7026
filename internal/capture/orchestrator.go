package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"trafficcam-capture/internal/hls"
	"trafficcam-capture/internal/storage"
	"trafficcam-capture/pkg/models"
)

// Authenticator turns a camera into a streaming session.
type Authenticator interface {
	Authenticate(ctx context.Context, cam models.CameraTarget) (*models.AuthSession, error)
}

// PlaylistResolver lists a camera's segments for a session.
type PlaylistResolver interface {
	Resolve(ctx context.Context, session *models.AuthSession, cam models.CameraTarget) (*hls.Playlist, error)
}

// Recorder receives per-camera and per-segment outcomes, typically for metrics.
type Recorder interface {
	CameraFinished(outcome models.CameraOutcome)
	SegmentFailed(cameraID, kind string)
}

type nopRecorder struct{}

func (nopRecorder) CameraFinished(models.CameraOutcome) {}
func (nopRecorder) SegmentFailed(string, string)        {}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Auth      Authenticator
	Playlists PlaylistResolver
	Segments  hls.Fetcher
	Artifacts storage.ArtifactStore
	Metadata  storage.MetadataStore
	Recorder  Recorder
}

// Options bound the work done per capture.
type Options struct {
	Workers            int // concurrent cameras
	SegmentLimit       int // first N segments per camera
	SegmentConcurrency int // in-flight segment downloads per camera
}

// Request asks for one capture run across Cameras.
type Request struct {
	Incident *models.Incident
	Cameras  []models.CameraTarget
}

type job struct {
	ctx      context.Context
	index    int
	camera   models.CameraTarget
	incident *models.Incident
	started  time.Time
	results  chan<- indexedOutcome
}

type indexedOutcome struct {
	index   int
	outcome models.CameraOutcome
}

// Orchestrator drives capture runs on a fixed pool of camera workers. The pool is
// started once and reused by every Capture call until Close.
type Orchestrator struct {
	deps Deps
	opts Options
	now  func() time.Time

	jobs      chan job
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func New(deps Deps, opts Options) *Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.SegmentLimit < 1 {
		opts.SegmentLimit = 1
	}
	if opts.SegmentConcurrency < 1 {
		opts.SegmentConcurrency = 1
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}

	o := &Orchestrator{
		deps: deps,
		opts: opts,
		now:  time.Now,
		jobs: make(chan job),
	}
	for i := 0; i < opts.Workers; i++ {
		o.wg.Add(1)
		go o.worker()
	}
	return o
}

// Close stops the workers after in-flight cameras finish.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		close(o.jobs)
	})
	o.wg.Wait()
}

func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for j := range o.jobs {
		out := o.captureCamera(j.ctx, j.camera, j.incident, j.started)
		o.deps.Recorder.CameraFinished(out)
		j.results <- indexedOutcome{index: j.index, outcome: out}
	}
}

// Capture runs one capture across req.Cameras and blocks until every camera finished.
// Camera failures are recorded in the result, never returned.
func (o *Orchestrator) Capture(ctx context.Context, req Request) models.CaptureResult {
	res := models.CaptureResult{
		RunID:            uuid.New().String(),
		CamerasAttempted: len(req.Cameras),
		StartedAt:        o.now().UTC(),
	}
	if req.Incident != nil {
		res.IncidentID = req.Incident.ID
	}

	results := make(chan indexedOutcome, len(req.Cameras))
	outcomes := make([]models.CameraOutcome, len(req.Cameras))
	submitted := 0

submit:
	for i, cam := range req.Cameras {
		select {
		case o.jobs <- job{ctx: ctx, index: i, camera: cam, incident: req.Incident, started: res.StartedAt, results: results}:
			submitted++
		case <-ctx.Done():
			for k := i; k < len(req.Cameras); k++ {
				outcomes[k] = failed(req.Cameras[k], ctx.Err())
			}
			break submit
		}
	}

	for n := 0; n < submitted; n++ {
		r := <-results
		outcomes[r.index] = r.outcome
	}

	// Reduce after join; workers never touch shared counters.
	for _, out := range outcomes {
		if out.Success {
			res.CamerasSuccessful++
		} else {
			res.CamerasFailed++
		}
		res.SegmentsCaptured += len(out.Segments)
		res.TotalBytes += out.Bytes
	}
	res.Cameras = outcomes
	res.FinishedAt = o.now().UTC()

	if o.deps.Metadata != nil {
		if err := o.deps.Metadata.SaveCaptureRun(ctx, res); err != nil {
			slog.Error("failed to record capture run", "run_id", res.RunID, "kind", FailureKind(err), "error", err)
		}
	}
	return res
}

func failed(cam models.CameraTarget, err error) models.CameraOutcome {
	return models.CameraOutcome{
		CameraID:    cam.ID,
		Description: cam.Description,
		FailureKind: FailureKind(err),
		Error:       err.Error(),
	}
}

// captureCamera runs auth, playlist and segment steps for one camera, strictly in order.
func (o *Orchestrator) captureCamera(ctx context.Context, cam models.CameraTarget, incident *models.Incident, capturedAt time.Time) models.CameraOutcome {
	log := slog.With("camera_id", cam.ID)
	if incident != nil {
		log = log.With("incident_id", incident.ID)
	}

	if !cam.Valid() {
		err := fmt.Errorf("%w: %q", ErrInvalidCamera, cam.ID)
		log.Warn("skipping camera", "kind", KindInvalidCamera, "error", err)
		return failed(cam, err)
	}
	if err := ctx.Err(); err != nil {
		return failed(cam, err)
	}

	if o.deps.Metadata != nil {
		if err := o.deps.Metadata.SaveCamera(ctx, cam); err != nil {
			log.Error("failed to record camera", "kind", FailureKind(err), "error", err)
		}
	}

	session, err := o.deps.Auth.Authenticate(ctx, cam)
	if err != nil {
		log.Warn("camera authentication failed", "kind", FailureKind(err), "error", err)
		return failed(cam, err)
	}

	pl, err := o.deps.Playlists.Resolve(ctx, session, cam)
	if err != nil {
		log.Warn("camera playlist failed", "kind", FailureKind(err), "error", err)
		out := failed(cam, err)
		if pl != nil {
			out.SegmentsAvailable = len(pl.Segments)
		}
		return out
	}

	selected := pl.Segments
	if len(selected) > o.opts.SegmentLimit {
		selected = selected[:o.opts.SegmentLimit]
	}

	out := models.CameraOutcome{
		CameraID:          cam.ID,
		Description:       cam.Description,
		SegmentsAvailable: len(pl.Segments),
	}

	var (
		lastErr      error
		expiryLogged bool
	)
	hls.FetchAll(ctx, o.deps.Segments, selected, o.opts.SegmentConcurrency, func(r hls.Result) {
		if r.Err != nil {
			out.SegmentsFailed++
			lastErr = r.Err
			kind := FailureKind(r.Err)
			o.deps.Recorder.SegmentFailed(cam.ID, kind)
			log.Warn("segment download failed", "segment", r.Segment.Filename, "kind", kind, "error", r.Err)
			if !expiryLogged && hls.IsTokenExpired(r.Err) {
				expiryLogged = true
				log.Warn("streaming token rejected mid-batch", "token_age", session.Age(o.now()).String())
			}
			return
		}

		stored, err := o.store(ctx, cam, incident, r.Segment, capturedAt)
		if err != nil {
			out.SegmentsFailed++
			lastErr = err
			kind := FailureKind(err)
			o.deps.Recorder.SegmentFailed(cam.ID, kind)
			log.Error("segment storage failed", "segment", r.Segment.Filename, "kind", kind, "error", err)
			return
		}
		out.Segments = append(out.Segments, stored)
		out.Bytes += stored.Size
	})

	if len(out.Segments) == 0 {
		if lastErr == nil {
			lastErr = errors.New("no segments stored")
		}
		out.FailureKind = FailureKind(lastErr)
		out.Error = lastErr.Error()
		log.Warn("camera captured no segments", "kind", out.FailureKind, "attempted", len(selected))
		return out
	}

	out.Success = true
	log.Info("camera captured", "segments", len(out.Segments), "failed", out.SegmentsFailed, "bytes", out.Bytes)
	return out
}

func (o *Orchestrator) store(ctx context.Context, cam models.CameraTarget, incident *models.Incident, seg models.Segment, capturedAt time.Time) (models.StoredSegment, error) {
	key := storage.SegmentKey(cam.ID, capturedAt, seg.Filename)
	meta := map[string]string{
		"camera_id":         cam.ID,
		"capture_timestamp": capturedAt.Format(time.RFC3339),
		"segment_index":     strconv.Itoa(seg.Index),
		"content_type":      "video/MP2T",
	}
	if incident != nil {
		meta["incident_id"] = strconv.FormatInt(incident.ID, 10)
		meta["incident_type"] = incident.Type
		meta["roadway"] = incident.Roadway
		meta["description"] = truncate(incident.Description, 200)
	}

	loc, err := o.deps.Artifacts.Put(ctx, key, seg.Data, meta)
	if err != nil {
		return models.StoredSegment{}, err
	}

	stored := models.StoredSegment{
		CameraID:        cam.ID,
		Filename:        seg.Filename,
		Index:           seg.Index,
		Bucket:          loc.Bucket,
		Path:            loc.Path,
		URL:             loc.URL,
		Size:            seg.Size,
		Duration:        seg.Duration,
		ProgramDateTime: seg.ProgramDateTime,
		CapturedAt:      capturedAt,
	}
	if incident != nil {
		stored.IncidentID = incident.ID
	}

	if o.deps.Metadata != nil {
		if err := o.deps.Metadata.SaveSegment(ctx, stored); err != nil {
			return models.StoredSegment{}, err
		}
	}
	return stored, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

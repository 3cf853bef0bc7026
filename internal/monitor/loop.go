package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"trafficcam-capture/internal/capture"
	"trafficcam-capture/pkg/models"
)

// ErrIterationPanic marks a panic recovered from a poll iteration. It stops Run.
var ErrIterationPanic = errors.New("poll iteration panicked")

type IncidentSource interface {
	FetchIncidents(ctx context.Context) ([]models.Incident, error)
}

type CameraResolver interface {
	Resolve(ctx context.Context, inc models.Incident) ([]models.CameraTarget, string)
}

type Capturer interface {
	Capture(ctx context.Context, req capture.Request) models.CaptureResult
}

type IncidentStore interface {
	SaveIncident(ctx context.Context, inc models.Incident) error
}

// Notifier is told about every finished capture run.
type Notifier interface {
	Notify(ctx context.Context, inc models.Incident, res models.CaptureResult) error
}

// Recorder observes finished iterations, typically for metrics.
type Recorder interface {
	IterationFinished(s Summary)
}

// Summary describes one poll iteration.
type Summary struct {
	IncidentsSeen     int
	IncidentsNew      int
	IncidentsMatched  int
	CaptureRuns       int
	CamerasAttempted  int
	CamerasSuccessful int
	CamerasFailed     int
	SegmentsCaptured  int
	TotalBytes        int64
	Processed         int
	FeedError         bool
	Elapsed           time.Duration
}

func (s *Summary) add(res models.CaptureResult) {
	s.CaptureRuns++
	s.CamerasAttempted += res.CamerasAttempted
	s.CamerasSuccessful += res.CamerasSuccessful
	s.CamerasFailed += res.CamerasFailed
	s.SegmentsCaptured += res.SegmentsCaptured
	s.TotalBytes += res.TotalBytes
}

func (s Summary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("incidents_seen", s.IncidentsSeen),
		slog.Int("incidents_new", s.IncidentsNew),
		slog.Int("incidents_matched", s.IncidentsMatched),
		slog.Int("capture_runs", s.CaptureRuns),
		slog.Int("cameras_attempted", s.CamerasAttempted),
		slog.Int("cameras_successful", s.CamerasSuccessful),
		slog.Int("cameras_failed", s.CamerasFailed),
		slog.Int("segments_captured", s.SegmentsCaptured),
		slog.Int64("total_bytes", s.TotalBytes),
		slog.Int("processed_total", s.Processed),
		slog.Duration("elapsed", s.Elapsed),
	)
}

type Deps struct {
	Feed      IncidentSource
	Cameras   CameraResolver
	Capturer  Capturer
	Incidents IncidentStore // optional
	Notifier  Notifier      // optional
	Recorder  Recorder      // optional
}

type Options struct {
	Interval time.Duration
	Filter   KeywordFilter
}

// Monitor polls the incident feed and captures video for new matching incidents.
type Monitor struct {
	deps      Deps
	opts      Options
	processed *ProcessedSet

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(deps Deps, opts Options, processed *ProcessedSet) *Monitor {
	if processed == nil {
		processed = NewProcessedSet()
	}
	return &Monitor{
		deps:      deps,
		opts:      opts,
		processed: processed,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// Processed exposes the set for persistence after Run has returned.
func (m *Monitor) Processed() *ProcessedSet {
	return m.processed
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NextDelay is how long to wait after an iteration that took elapsed. An iteration
// that overran the interval is followed immediately by the next one.
func NextDelay(interval, elapsed time.Duration) time.Duration {
	if d := interval - elapsed; d > 0 {
		return d
	}
	return 0
}

// Run polls until ctx is canceled, which is a clean stop and returns nil.
// A panic inside an iteration is returned as ErrIterationPanic.
func (m *Monitor) Run(ctx context.Context) error {
	slog.Info("monitor started", "interval", m.opts.Interval, "processed", m.processed.Len())
	for {
		if ctx.Err() != nil {
			slog.Info("monitor stopped", "processed", m.processed.Len())
			return nil
		}
		started := m.now()
		if _, err := m.safeRunOnce(ctx); err != nil {
			return err
		}
		delay := NextDelay(m.opts.Interval, m.now().Sub(started))
		slog.Debug("waiting for next poll", "delay", delay)
		if err := m.sleep(ctx, delay); err != nil {
			slog.Info("monitor stopped", "processed", m.processed.Len())
			return nil
		}
	}
}

func (m *Monitor) safeRunOnce(ctx context.Context) (s Summary, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			slog.Error("poll iteration panicked", "panic", r, "stack", stack)
			err = fmt.Errorf("%w: %v\n%s", ErrIterationPanic, r, stack)
		}
	}()
	return m.RunOnce(ctx), nil
}

// RunOnce performs a single poll iteration. Feed and capture failures are logged and
// folded into the summary; they never abort the loop.
func (m *Monitor) RunOnce(ctx context.Context) Summary {
	started := m.now()
	var s Summary

	incidents, err := m.deps.Feed.FetchIncidents(ctx)
	if err != nil {
		s.FeedError = true
		if len(incidents) == 0 {
			slog.Error("failed to fetch incidents", "error", err)
		} else {
			slog.Warn("incident feed returned partial results", "incidents", len(incidents), "error", err)
		}
	}
	s.IncidentsSeen = len(incidents)

	for _, inc := range incidents {
		if ctx.Err() != nil {
			break
		}
		// Marked before capture so a failing incident is never retried.
		if !m.processed.Add(inc.ID) {
			continue
		}
		s.IncidentsNew++
		if !m.opts.Filter.Match(inc) {
			continue
		}
		s.IncidentsMatched++
		m.handle(ctx, inc, &s)
	}

	s.Processed = m.processed.Len()
	s.Elapsed = m.now().Sub(started)
	slog.Info("poll iteration finished", "summary", s)
	if m.deps.Recorder != nil {
		m.deps.Recorder.IterationFinished(s)
	}
	return s
}

func (m *Monitor) handle(ctx context.Context, inc models.Incident, s *Summary) {
	log := slog.With("incident_id", inc.ID, "type", inc.Type, "roadway", inc.Roadway)

	if m.deps.Incidents != nil {
		if err := m.deps.Incidents.SaveIncident(ctx, inc); err != nil {
			log.Error("failed to save incident", "kind", capture.FailureKind(err), "error", err)
		}
	}

	cams, strategy := m.deps.Cameras.Resolve(ctx, inc)
	if len(cams) == 0 {
		log.Warn("no cameras found for incident")
		return
	}
	log.Info("capturing incident", "cameras", len(cams), "strategy", strategy)

	incident := inc
	res := m.deps.Capturer.Capture(ctx, capture.Request{Incident: &incident, Cameras: cams})
	s.add(res)
	log.Info("capture run finished",
		"run_id", res.RunID,
		"cameras_attempted", res.CamerasAttempted,
		"cameras_successful", res.CamerasSuccessful,
		"cameras_failed", res.CamerasFailed,
		"segments_captured", res.SegmentsCaptured,
		"elapsed", res.Elapsed(),
	)

	if m.deps.Notifier != nil {
		if err := m.deps.Notifier.Notify(ctx, inc, res); err != nil {
			log.Warn("failed to publish capture summary", "error", err)
		}
	}
}

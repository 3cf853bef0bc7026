package hls

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"
	"trafficcam-capture/internal/client"
	"trafficcam-capture/internal/config"
	"trafficcam-capture/pkg/models"
)

// Downloader fetches segment bytes. It never retries: a token that expired mid-batch
// fails the remaining segments alike and the caller decides what to do.
type Downloader struct {
	HTTP *resty.Client
}

func NewDownloader(cfg config.StreamConfig, creds config.Credentials) *Downloader {
	return &Downloader{HTTP: NewStreamClient(cfg, creds)}
}

// Fetch downloads one segment and returns a copy with Data and Size set.
func (d *Downloader) Fetch(ctx context.Context, seg models.Segment) (models.Segment, error) {
	resp, err := d.HTTP.R().
		SetContext(ctx).
		Get(seg.URL)

	if err != nil {
		return seg, fmt.Errorf("%w: %s: %v", ErrSegmentDownloadFailed, seg.Filename, err)
	}
	if err := client.CheckResponse("fetch segment", resp); err != nil {
		return seg, fmt.Errorf("%w: %s: %w", ErrSegmentDownloadFailed, seg.Filename, err)
	}

	body := resp.Body()
	if len(body) == 0 {
		return seg, fmt.Errorf("%w: %s: empty body", ErrSegmentDownloadFailed, seg.Filename)
	}

	seg.Data = body
	seg.Size = int64(len(body))
	return seg, nil
}

// Result is the outcome of one segment fetch.
type Result struct {
	Segment models.Segment
	Err     error
}

// Fetcher fetches a single segment.
type Fetcher interface {
	Fetch(ctx context.Context, seg models.Segment) (models.Segment, error)
}

// FetchAll downloads segs with at most concurrency requests in flight and calls fn
// for every segment in playlist order, whatever order the downloads finish in.
// A failed segment is reported to fn and does not stop the others.
func FetchAll(ctx context.Context, f Fetcher, segs []models.Segment, concurrency int, fn func(Result)) {
	if concurrency < 1 {
		concurrency = 1
	}

	slots := make([]chan Result, len(segs))
	for i := range slots {
		slots[i] = make(chan Result, 1)
	}
	sem := make(chan struct{}, concurrency)

	go func() {
		for i, seg := range segs {
			sem <- struct{}{}
			go func(i int, seg models.Segment) {
				out, err := f.Fetch(ctx, seg)
				slots[i] <- Result{Segment: out, Err: err}
			}(i, seg)
		}
	}()

	for i := range slots {
		res := <-slots[i]
		fn(res)
		<-sem
	}
}

// IsTokenExpired reports whether a segment failure looks like an expired streaming token.
func IsTokenExpired(err error) bool {
	return errors.Is(err, ErrSegmentDownloadFailed) && client.IsAuthError(err)
}

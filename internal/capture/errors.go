package capture

import (
	"context"
	"errors"

	"trafficcam-capture/internal/auth"
	"trafficcam-capture/internal/hls"
	"trafficcam-capture/internal/storage"
)

// ErrInvalidCamera is returned for targets without a usable id or video url.
var ErrInvalidCamera = errors.New("invalid camera target")

// Failure kinds used as log attributes and metric labels.
const (
	KindAuthInfoFailed        = "auth_info_failed"
	KindTokenExchangeFailed   = "token_exchange_failed"
	KindManifestUnreachable   = "manifest_unreachable"
	KindManifestMalformed     = "manifest_malformed"
	KindNoSegmentsFound       = "no_segments_found"
	KindSegmentDownloadFailed = "segment_download_failed"
	KindStorageWriteFailed    = "storage_write_failed"
	KindSessionMismatch       = "session_mismatch"
	KindInvalidCamera         = "invalid_camera"
	KindCanceled              = "canceled"
	KindUnknown               = "unknown"
)

// FailureKind maps err onto a stable kind label.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, auth.ErrAuthInfoFailed):
		return KindAuthInfoFailed
	case errors.Is(err, auth.ErrTokenExchangeFailed):
		return KindTokenExchangeFailed
	case errors.Is(err, hls.ErrSessionMismatch):
		return KindSessionMismatch
	case errors.Is(err, hls.ErrManifestUnreachable):
		return KindManifestUnreachable
	case errors.Is(err, hls.ErrManifestMalformed):
		return KindManifestMalformed
	case errors.Is(err, hls.ErrNoSegmentsFound):
		return KindNoSegmentsFound
	case errors.Is(err, hls.ErrSegmentDownloadFailed):
		return KindSegmentDownloadFailed
	case errors.Is(err, storage.ErrStorageWriteFailed):
		return KindStorageWriteFailed
	case errors.Is(err, ErrInvalidCamera):
		return KindInvalidCamera
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindUnknown
	}
}

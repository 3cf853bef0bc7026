package hls

import "errors"

var (
	ErrManifestUnreachable   = errors.New("manifest unreachable")
	ErrManifestMalformed     = errors.New("manifest malformed")
	ErrNoSegmentsFound       = errors.New("no segments found")
	ErrSegmentDownloadFailed = errors.New("segment download failed")

	// ErrSessionMismatch is returned when a streaming token issued for one camera
	// is presented for another camera's manifest.
	ErrSessionMismatch = errors.New("auth session belongs to another camera")
)

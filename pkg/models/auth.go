package models

import "time"

// VideoInfoResponse is the auth-info (step 1) response body.
type VideoInfoResponse struct {
	Token          FlexString `json:"token"`
	SourceID       FlexString `json:"sourceId"`
	SystemSourceID FlexString `json:"systemSourceId,omitempty"`
}

// SecureTokenRequest is the body POSTed to the token-issuing endpoint (step 2).
type SecureTokenRequest struct {
	Token          string `json:"token"`
	SourceID       string `json:"sourceId"`
	SystemSourceID string `json:"systemSourceId"`
}

// SecureTokenObject is the object variant of the step 2 response
type SecureTokenObject struct {
	SecureURI string `json:"secureUri"`
}

// AuthSession is a short-lived streaming authorization bound to one camera.
// It is never persisted and never shared between cameras.
type AuthSession struct {
	CameraID string    `json:"camera_id"`
	Token    string    `json:"token"`
	IssuedAt time.Time `json:"issued_at"`
}

// Age returns how long ago the session was issued.
func (s AuthSession) Age(now time.Time) time.Duration {
	return now.Sub(s.IssuedAt)
}

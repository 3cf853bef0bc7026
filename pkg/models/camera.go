package models

import "strings"

// CameraTarget is one streamable camera from the catalog or an incident feed record.
// Values are treated as immutable after loading.
type CameraTarget struct {
	ID          string  `json:"camera_id" yaml:"camera_id"`
	ImageID     string  `json:"image_id" yaml:"image_id"`   // Only used for the auth-info call
	VideoURL    string  `json:"video_url" yaml:"video_url"` // Base manifest URL (index playlist)
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Location    string  `json:"location,omitempty" yaml:"location,omitempty"`
	Roadway     string  `json:"roadway,omitempty" yaml:"roadway,omitempty"`
	Region      string  `json:"region,omitempty" yaml:"region,omitempty"`
	County      string  `json:"county,omitempty" yaml:"county,omitempty"`
	Direction   string  `json:"direction,omitempty" yaml:"direction,omitempty"`
	Latitude    float64 `json:"latitude,omitempty" yaml:"latitude,omitempty"`
	Longitude   float64 `json:"longitude,omitempty" yaml:"longitude,omitempty"`
}

// Valid reports whether the camera carries enough data to attempt a capture.
func (c CameraTarget) Valid() bool {
	id := strings.TrimSpace(c.ID)
	return id != "" && !strings.EqualFold(id, "unknown") && c.VideoURL != ""
}

// AuthImageID returns the image id for the handshake, falling back to the camera id.
func (c CameraTarget) AuthImageID() string {
	if c.ImageID != "" {
		return c.ImageID
	}
	return c.ID
}

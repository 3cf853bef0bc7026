package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
	"trafficcam-capture/pkg/models"
)

// Catalog is the static set of known cameras, indexed by camera id.
type Catalog struct {
	cameras []models.CameraTarget
	byID    map[string]int
}

type catalogFile struct {
	Cameras []models.CameraTarget `yaml:"cameras"`
}

// New indexes cams. Later duplicates of an id replace earlier ones.
func New(cams []models.CameraTarget) *Catalog {
	c := &Catalog{byID: make(map[string]int, len(cams))}
	for _, cam := range cams {
		cam.ID = strings.TrimSpace(cam.ID)
		if cam.ID == "" {
			continue
		}
		if i, ok := c.byID[cam.ID]; ok {
			c.cameras[i] = cam
			continue
		}
		c.byID[cam.ID] = len(c.cameras)
		c.cameras = append(c.cameras, cam)
	}
	return c
}

// Load reads a catalog file. Both a top-level list and a {cameras: [...]} wrapper are
// accepted, in YAML or JSON.
func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read camera catalog: %w", err)
	}
	return Parse(b)
}

// Parse decodes catalog file contents.
func Parse(b []byte) (*Catalog, error) {
	var wrapped catalogFile
	if err := yaml.Unmarshal(b, &wrapped); err == nil {
		return New(wrapped.Cameras), nil
	}

	var list []models.CameraTarget
	if err := yaml.Unmarshal(b, &list); err != nil {
		return nil, fmt.Errorf("failed to parse camera catalog: %w", err)
	}
	return New(list), nil
}

// Lookup returns the camera with id.
func (c *Catalog) Lookup(id string) (models.CameraTarget, bool) {
	i, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return models.CameraTarget{}, false
	}
	return c.cameras[i], true
}

// All returns every camera in load order.
func (c *Catalog) All() []models.CameraTarget {
	out := make([]models.CameraTarget, len(c.cameras))
	copy(out, c.cameras)
	return out
}

// ByRegion returns cameras in region (case-insensitive); an empty region returns all.
func (c *Catalog) ByRegion(region string) []models.CameraTarget {
	if region == "" {
		return c.All()
	}
	var out []models.CameraTarget
	for _, cam := range c.cameras {
		if strings.EqualFold(cam.Region, region) {
			out = append(out, cam)
		}
	}
	return out
}

// Len returns the number of cameras.
func (c *Catalog) Len() int {
	return len(c.cameras)
}

// IDs returns the sorted camera ids.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

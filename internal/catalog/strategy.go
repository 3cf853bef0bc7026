package catalog

import (
	"context"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"trafficcam-capture/pkg/models"
)

// Strategy associates an incident with camera targets.
type Strategy interface {
	Name() string
	Cameras(ctx context.Context, inc models.Incident) ([]models.CameraTarget, error)
}

// Chain tries strategies in order and keeps the first non-empty answer.
type Chain struct {
	Strategies []Strategy
	Limit      int // max cameras per incident, 0 = unlimited
}

// Resolve returns the cameras for inc and the name of the strategy that produced them.
// Invalid and duplicate cameras are dropped before the limit is applied.
func (c Chain) Resolve(ctx context.Context, inc models.Incident) ([]models.CameraTarget, string) {
	for _, s := range c.Strategies {
		cams, err := s.Cameras(ctx, inc)
		if err != nil {
			slog.Warn("camera strategy failed", "strategy", s.Name(), "incident_id", inc.ID, "error", err)
			continue
		}
		cams = usable(cams)
		if len(cams) == 0 {
			continue
		}
		if c.Limit > 0 && len(cams) > c.Limit {
			cams = cams[:c.Limit]
		}
		return cams, s.Name()
	}
	return nil, ""
}

func usable(cams []models.CameraTarget) []models.CameraTarget {
	seen := make(map[string]bool, len(cams))
	var out []models.CameraTarget
	for _, cam := range cams {
		if !cam.Valid() || seen[cam.ID] {
			continue
		}
		seen[cam.ID] = true
		out = append(out, cam)
	}
	return out
}

// Direct uses the cameras embedded in the incident record, filling gaps from the catalog.
type Direct struct {
	Catalog *Catalog
}

func (Direct) Name() string { return "direct" }

func (d Direct) Cameras(_ context.Context, inc models.Incident) ([]models.CameraTarget, error) {
	out := make([]models.CameraTarget, 0, len(inc.Cameras))
	for _, cam := range inc.Cameras {
		if d.Catalog != nil {
			if known, ok := d.Catalog.Lookup(cam.ID); ok {
				cam = merge(cam, known)
			}
		}
		out = append(out, cam)
	}
	return out, nil
}

// merge fills empty fields of primary from fallback.
func merge(primary, fallback models.CameraTarget) models.CameraTarget {
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&primary.ImageID, fallback.ImageID)
	fill(&primary.VideoURL, fallback.VideoURL)
	fill(&primary.Description, fallback.Description)
	fill(&primary.Location, fallback.Location)
	fill(&primary.Roadway, fallback.Roadway)
	fill(&primary.Region, fallback.Region)
	fill(&primary.County, fallback.County)
	fill(&primary.Direction, fallback.Direction)
	if primary.Latitude == 0 && primary.Longitude == 0 {
		primary.Latitude, primary.Longitude = fallback.Latitude, fallback.Longitude
	}
	return primary
}

// Lookup maps the incident roadway, then county, through a static table of camera ids.
// Keys are matched case-insensitively.
type Lookup struct {
	Catalog *Catalog
	Table   map[string][]string
}

func NewLookup(c *Catalog, table map[string][]string) Lookup {
	norm := make(map[string][]string, len(table))
	for k, ids := range table {
		key := strings.ToLower(strings.TrimSpace(k))
		norm[key] = append(norm[key], ids...)
	}
	return Lookup{Catalog: c, Table: norm}
}

func (Lookup) Name() string { return "lookup" }

func (l Lookup) Cameras(_ context.Context, inc models.Incident) ([]models.CameraTarget, error) {
	if l.Catalog == nil {
		return nil, nil
	}
	for _, key := range []string{inc.Roadway, inc.County} {
		ids := l.Table[strings.ToLower(strings.TrimSpace(key))]
		if key == "" || len(ids) == 0 {
			continue
		}
		var out []models.CameraTarget
		for _, id := range ids {
			if cam, ok := l.Catalog.Lookup(id); ok {
				out = append(out, cam)
			}
		}
		if len(out) > 0 {
			return out, nil
		}
	}
	return nil, nil
}

// Search ranks catalog cameras by how well their location matches the incident.
type Search struct {
	Catalog *Catalog
}

func (Search) Name() string { return "search" }

func (s Search) Cameras(_ context.Context, inc models.Incident) ([]models.CameraTarget, error) {
	if s.Catalog == nil {
		return nil, nil
	}

	type scored struct {
		cam   models.CameraTarget
		score float64
	}
	var ranked []scored
	for _, cam := range s.Catalog.cameras {
		// Region or direction alone is too broad to pick a camera.
		if !eqFold(cam.Roadway, inc.Roadway) && !eqFold(cam.County, inc.County) {
			continue
		}
		if score := Relevance(cam, inc); score > 0 {
			ranked = append(ranked, scored{cam: cam, score: score})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].cam.ID < ranked[j].cam.ID
	})

	out := make([]models.CameraTarget, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, r.cam)
	}
	return out, nil
}

var mileMarkerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)MM\s+(\d+\.?\d*)`),
	regexp.MustCompile(`(?i)Mile\s+(\d+\.?\d*)`),
	regexp.MustCompile(`(?i)@\s+(\d+\.?\d*)`),
}

// MileMarker extracts the first mile marker mentioned in text.
func MileMarker(text string) (float64, bool) {
	for _, re := range mileMarkerPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				return v, true
			}
		}
	}
	return 0, false
}

// Relevance scores how likely cam is to show inc. The roadway weighs most,
// then direction and county, then region and mile-marker proximity.
func Relevance(cam models.CameraTarget, inc models.Incident) float64 {
	score := 0.0
	if eqFold(cam.Roadway, inc.Roadway) {
		score += 5
	}
	if eqFold(cam.Direction, inc.Direction) {
		score += 2
	}
	if eqFold(cam.County, inc.County) {
		score += 2
	}
	if eqFold(cam.Region, inc.Region) {
		score += 1
	}

	camMM, ok1 := MileMarker(cam.Location)
	if !ok1 {
		camMM, ok1 = MileMarker(cam.Description)
	}
	incMM, ok2 := MileMarker(inc.Description)
	if ok1 && ok2 {
		switch d := math.Abs(camMM - incMM); {
		case d <= 1:
			score += 3
		case d <= 3:
			score += 1.5
		case d <= 5:
			score += 0.5
		}
	}
	return score
}

// eqFold is a case-insensitive match that never matches two empty values.
func eqFold(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}

package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"trafficcam-capture/pkg/models"
)

func testCatalog() *Catalog {
	return New([]models.CameraTarget{
		{ID: "673", ImageID: "9001", VideoURL: "https://cdn.example/673/index.m3u8", Location: "I-95 @ MM 12", Roadway: "I-95", Direction: "Northbound", County: "Duval", Region: "Northeast"},
		{ID: "675", ImageID: "9003", VideoURL: "https://cdn.example/675/index.m3u8", Location: "I-95 @ MM 20", Roadway: "I-95", Direction: "Southbound", County: "Duval", Region: "Northeast"},
		{ID: "674", ImageID: "9002", VideoURL: "https://cdn.example/674/index.m3u8", Location: "I-10 @ MM 356", Roadway: "I-10", County: "Duval", Region: "Northeast"},
		{ID: "800", ImageID: "9100", VideoURL: "https://cdn.example/800/index.m3u8", Roadway: "SR-528", County: "Brevard", Region: "Central"},
	})
}

func ids(cams []models.CameraTarget) []string {
	out := make([]string, 0, len(cams))
	for _, c := range cams {
		out = append(out, c.ID)
	}
	return out
}

func TestChainResolve(t *testing.T) {
	cat := testCatalog()
	chain := Chain{
		Strategies: []Strategy{
			Direct{Catalog: cat},
			NewLookup(cat, map[string][]string{"SR-528": {"800"}, "brevard": {"800"}}),
			Search{Catalog: cat},
		},
		Limit: 2,
	}

	tests := []struct {
		description string

		incident models.Incident

		expectedIDs      []string
		expectedStrategy string
	}{
		{
			description: "feed cameras win and are completed from the catalog",
			incident: models.Incident{ID: 1, Roadway: "I-95", Cameras: []models.CameraTarget{
				{ID: "673", VideoURL: "https://feed.example/673/index.m3u8"},
			}},
			expectedIDs:      []string{"673"},
			expectedStrategy: "direct",
		},
		{
			description: "invalid feed cameras fall through to the lookup table",
			incident: models.Incident{ID: 2, Roadway: "sr-528", Cameras: []models.CameraTarget{
				{ID: "unknown", VideoURL: "https://feed.example/x/index.m3u8"},
			}},
			expectedIDs:      []string{"800"},
			expectedStrategy: "lookup",
		},
		{
			description:      "lookup by county when the roadway has no entry",
			incident:         models.Incident{ID: 3, Roadway: "I-95 Express", County: "Brevard"},
			expectedIDs:      []string{"800"},
			expectedStrategy: "lookup",
		},
		{
			description:      "search ranks by roadway, direction and mile marker, capped by the limit",
			incident:         models.Incident{ID: 4, Roadway: "I-95", Direction: "Northbound", County: "Duval", Description: "Crash on I-95 NB at MM 13"},
			expectedIDs:      []string{"673", "675"},
			expectedStrategy: "search",
		},
		{
			description:      "nothing matches",
			incident:         models.Incident{ID: 5, Roadway: "US-1", County: "Monroe", Region: "Northeast"},
			expectedIDs:      []string{},
			expectedStrategy: "",
		},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			cams, strategy := chain.Resolve(context.Background(), test.incident)
			assert.Equal(t, test.expectedIDs, ids(cams))
			assert.Equal(t, test.expectedStrategy, strategy)
		})
	}
}

func TestDirectMergesCatalogFields(t *testing.T) {
	cams, err := Direct{Catalog: testCatalog()}.Cameras(context.Background(), models.Incident{
		Cameras: []models.CameraTarget{{ID: "673", VideoURL: "https://feed.example/673/index.m3u8"}},
	})
	require.NoError(t, err)
	require.Len(t, cams, 1)
	assert.Equal(t, "https://feed.example/673/index.m3u8", cams[0].VideoURL, "feed values take precedence")
	assert.Equal(t, "9001", cams[0].ImageID)
	assert.Equal(t, "Duval", cams[0].County)
}

type failingStrategy struct{}

func (failingStrategy) Name() string { return "failing" }

func (failingStrategy) Cameras(context.Context, models.Incident) ([]models.CameraTarget, error) {
	return nil, errors.New("upstream down")
}

func TestChainSkipsFailingStrategyAndDuplicates(t *testing.T) {
	cat := testCatalog()
	cam, _ := cat.Lookup("673")
	chain := Chain{Strategies: []Strategy{
		failingStrategy{},
		Direct{Catalog: cat},
	}}

	cams, strategy := chain.Resolve(context.Background(), models.Incident{Cameras: []models.CameraTarget{cam, cam}})
	assert.Equal(t, []string{"673"}, ids(cams))
	assert.Equal(t, "direct", strategy)
}

func TestRelevance(t *testing.T) {
	cam := models.CameraTarget{Roadway: "I-95", Direction: "Northbound", County: "Duval", Region: "Northeast", Location: "I-95 @ MM 12"}

	tests := []struct {
		description string

		incident models.Incident

		expected float64
	}{
		{
			description: "every field plus a close mile marker",
			incident:    models.Incident{Roadway: "i-95", Direction: "northbound", County: "Duval", Region: "Northeast", Description: "Crash at MM 12.5"},
			expected:    13,
		},
		{
			description: "roadway and a mile marker within three miles",
			incident:    models.Incident{Roadway: "I-95", Description: "Disabled vehicle Mile 14"},
			expected:    6.5,
		},
		{
			description: "roadway and a mile marker within five miles",
			incident:    models.Incident{Roadway: "I-95", Description: "Debris @ 16"},
			expected:    5.5,
		},
		{
			description: "distant mile marker adds nothing",
			incident:    models.Incident{Roadway: "I-95", Description: "MM 40"},
			expected:    5,
		},
		{
			description: "empty fields never match",
			incident:    models.Incident{},
			expected:    0,
		},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			assert.InDelta(t, test.expected, Relevance(cam, test.incident), 1e-9)
		})
	}
}

func TestMileMarker(t *testing.T) {
	v, ok := MileMarker("Crash I-95 NB mm 101.4")
	require.True(t, ok)
	assert.InDelta(t, 101.4, v, 1e-9)

	_, ok = MileMarker("Crash near downtown")
	assert.False(t, ok)
}

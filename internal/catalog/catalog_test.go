package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogYAML = `
cameras:
  - camera_id: "673"
    image_id: "9001"
    video_url: https://cdn.example/live/673/index.m3u8
    description: I-95 @ MM 12
    roadway: I-95
    direction: Northbound
    county: Duval
    region: Northeast
  - camera_id: "674"
    image_id: "9002"
    video_url: https://cdn.example/live/674/index.m3u8
    description: I-10 @ MM 356
    roadway: I-10
    county: Duval
    region: Northeast
`

func TestParse(t *testing.T) {
	tests := []struct {
		description string

		content string

		expectedIDs []string
	}{
		{
			description: "wrapped yaml",
			content:     catalogYAML,
			expectedIDs: []string{"673", "674"},
		},
		{
			description: "top level json list",
			content:     `[{"camera_id":"700","video_url":"https://cdn.example/700/index.m3u8"},{"camera_id":" 701 "}]`,
			expectedIDs: []string{"700", "701"},
		},
		{
			description: "empty wrapper",
			content:     "cameras: []\n",
			expectedIDs: []string{},
		},
		{
			description: "blank ids are dropped and duplicates replaced",
			content:     "- camera_id: \"\"\n- camera_id: \"1\"\n  description: old\n- camera_id: \"1\"\n  description: new\n",
			expectedIDs: []string{"1"},
		},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			c, err := Parse([]byte(test.content))
			require.NoError(t, err)
			assert.Equal(t, test.expectedIDs, c.IDs())
		})
	}
}

func TestParseDuplicateKeepsLast(t *testing.T) {
	c, err := Parse([]byte("- camera_id: \"1\"\n  description: old\n- camera_id: \"1\"\n  description: new\n"))
	require.NoError(t, err)
	cam, ok := c.Lookup("1")
	require.True(t, ok)
	assert.Equal(t, "new", cam.Description)
	assert.Equal(t, 1, c.Len())
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse([]byte("cameras: {not: [valid"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cameras.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	cam, ok := c.Lookup(" 673 ")
	require.True(t, ok)
	assert.Equal(t, "9001", cam.ImageID)
	assert.Equal(t, "Northbound", cam.Direction)

	assert.Len(t, c.ByRegion("northeast"), 2)
	assert.Empty(t, c.ByRegion("Southwest"))

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

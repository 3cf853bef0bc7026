package monitor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"trafficcam-capture/pkg/models"
)

func TestProcessedSet(t *testing.T) {
	s := NewProcessedSet(3, 1)
	assert.True(t, s.Has(1))
	assert.False(t, s.Has(2))

	assert.True(t, s.Add(2))
	assert.False(t, s.Add(2), "second add reports a known id")
	assert.Equal(t, []int64{1, 2, 3}, s.IDs())

	s.Clear()
	assert.Zero(t, s.Len())
}

func TestProcessedSetStateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "processed.json")

	s := NewProcessedSet()
	require.NoError(t, s.LoadFile(path), "missing state file is not an error")
	assert.Zero(t, s.Len())

	s.Seed([]int64{42, 7})
	require.NoError(t, s.SaveFile(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"processed_incidents":[7,42]}`, string(b))

	loaded := NewProcessedSet(1)
	require.NoError(t, loaded.LoadFile(path))
	assert.Equal(t, []int64{1, 7, 42}, loaded.IDs())
}

func TestProcessedSetCorruptStateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0o644))

	assert.Error(t, NewProcessedSet().LoadFile(path))
}

func TestKeywordFilter(t *testing.T) {
	tests := []struct {
		description string

		keywords []string
		incident models.Incident

		expected bool
	}{
		{
			description: "matches the type case-insensitively",
			keywords:    []string{"crash"},
			incident:    models.Incident{Type: "CRASH"},
			expected:    true,
		},
		{
			description: "matches the description",
			keywords:    []string{"crash", "wreck"},
			incident:    models.Incident{Type: "Incident", Description: "Vehicle wreck blocking left lane"},
			expected:    true,
		},
		{
			description: "no keyword present",
			keywords:    []string{"crash"},
			incident:    models.Incident{Type: "Construction", Description: "Lane closure"},
			expected:    false,
		},
		{
			description: "empty keyword list matches everything",
			keywords:    []string{" ", ""},
			incident:    models.Incident{Type: "Construction"},
			expected:    true,
		},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			assert.Equal(t, test.expected, NewKeywordFilter(test.keywords).Match(test.incident))
		})
	}
}

package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(fileName, title string) MetadataRecord {
	return MetadataRecord{FileName: fileName, Title: title, X: 50, Y: 50}
}

func TestMatchScenesPriorityOrder(t *testing.T) {
	// fileName==name beats fileName==id even when the fileName==id row
	// comes first in the table.
	scene := Scene{ID: "s1", Name: "scene-1"}
	records := []MetadataRecord{rec("s1", "B"), rec("scene-1", "A")}

	matches, warnings := MatchScenes([]Scene{scene}, records)
	require.Len(t, matches, 1)
	require.NotNil(t, matches[0].Record)
	assert.Equal(t, "scene-1", matches[0].Record.FileName)
	assert.Equal(t, "A", matches[0].Record.Title)
	assert.Empty(t, warnings)
}

func TestMatchScenesTitleFallback(t *testing.T) {
	scene := Scene{ID: "s1", Name: "scene-1"}

	byTitleID := []MetadataRecord{rec("other", "s1")}
	matches, _ := MatchScenes([]Scene{scene}, byTitleID)
	require.NotNil(t, matches[0].Record)
	assert.Equal(t, "s1", matches[0].Record.Title)

	byTitleName := []MetadataRecord{rec("other", "scene-1")}
	matches, _ = MatchScenes([]Scene{scene}, byTitleName)
	require.NotNil(t, matches[0].Record)
	assert.Equal(t, "scene-1", matches[0].Record.Title)
}

func TestMatchScenesCaseSensitive(t *testing.T) {
	scene := Scene{ID: "s1", Name: "Scene-1"}
	records := []MetadataRecord{rec("scene-1", "")}

	matches, warnings := MatchScenes([]Scene{scene}, records)
	assert.Nil(t, matches[0].Record)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], `"s1"`)
}

func TestMatchScenesUnmatchedStillProcessed(t *testing.T) {
	scenes := []Scene{
		{ID: "s1", Name: "scene-1"},
		{ID: "s2", Name: "scene-2"},
	}
	records := []MetadataRecord{rec("scene-1", "")}

	matches, warnings := MatchScenes(scenes, records)
	require.Len(t, matches, 2)
	assert.NotNil(t, matches[0].Record)
	assert.Nil(t, matches[1].Record)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], `"s2"`)
}

func TestMatchScenesOutOfRangeCoordinateWarning(t *testing.T) {
	scene := Scene{ID: "s1", Name: "scene-1"}
	r := rec("scene-1", "")
	r.X = 130

	matches, warnings := MatchScenes([]Scene{scene}, []MetadataRecord{r})
	require.NotNil(t, matches[0].Record)
	assert.Equal(t, 130.0, matches[0].Record.X)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "outside [0,100]")
}

func TestMatchScenesEmptyTitleNeverMatches(t *testing.T) {
	// A row with an empty title must not title-match a scene whose id or
	// name is also empty-adjacent; only fileName matching applies.
	scene := Scene{ID: "s1", Name: "scene-1"}
	records := []MetadataRecord{rec("unrelated", "")}

	matches, _ := MatchScenes([]Scene{scene}, records)
	assert.Nil(t, matches[0].Record)
}

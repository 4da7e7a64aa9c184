package ingestion

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSceneGraph = `var APP_DATA = {
  "name": "Office Tour",
  "scenes": [
    {
      "id": "0-entrance",
      "name": "Entrance",
      "initialViewParameters": {"pitch": 0.1, "yaw": -1.2, "fov": 1.4},
      "linkHotspots": [
        {"yaw": 0.5, "pitch": 0.1, "rotation": 0, "target": "1-hallway"}
      ],
      "infoHotspots": [
        {"yaw": -0.3, "pitch": 0.2, "rotation": 0, "target": "", "info_id": "fire-exit"}
      ],
      "levels": [
        {"tileSize": 256, "size": 256, "fallbackOnly": true},
        {"tileSize": 512, "size": 512}
      ],
      "faceSize": 1536
    },
    {
      "id": "1-hallway",
      "name": "Hallway",
      "initialViewParameters": {"pitch": 0, "yaw": 0, "fov": 1.5},
      "linkHotspots": [],
      "infoHotspots": [],
      "levels": [],
      "faceSize": 1536
    }
  ]
};`

func TestParseSceneGraph(t *testing.T) {
	graph, err := ParseSceneGraph(sampleSceneGraph)
	require.NoError(t, err)

	assert.Equal(t, "Office Tour", graph.Name)
	require.Len(t, graph.Scenes, 2)

	first := graph.Scenes[0]
	assert.Equal(t, "0-entrance", first.ID)
	assert.Equal(t, "Entrance", first.Name)
	assert.InDelta(t, -1.2, first.InitialViewParameters.Yaw, 1e-9)
	require.Len(t, first.LinkHotspots, 1)
	assert.Equal(t, "1-hallway", first.LinkHotspots[0].Target)
	require.Len(t, first.InfoHotspots, 1)
	assert.Equal(t, "fire-exit", first.InfoHotspots[0].InfoID)
	assert.Len(t, first.Levels, 2)
	assert.Equal(t, 1536, first.FaceSize)
}

func TestParseSceneGraphNoScenes(t *testing.T) {
	_, err := ParseSceneGraph(`var APP_DATA = {"name": "empty", "scenes": []};`)
	assert.True(t, errors.Is(err, ErrSceneGraphInvalid))

	_, err = ParseSceneGraph(`var APP_DATA = {"name": "empty"};`)
	assert.True(t, errors.Is(err, ErrSceneGraphInvalid))
}

func TestParseSceneGraphUnreadable(t *testing.T) {
	_, err := ParseSceneGraph(`var APP_DATA = not json at all;`)
	assert.True(t, errors.Is(err, ErrSceneGraphInvalid))
}

func TestParseSceneGraphSceneWithoutID(t *testing.T) {
	_, err := ParseSceneGraph(`var APP_DATA = {"scenes": [{"name": "anonymous"}]};`)
	assert.True(t, errors.Is(err, ErrSceneGraphInvalid))
}

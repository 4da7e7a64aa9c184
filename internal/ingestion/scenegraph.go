package ingestion

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/sitetour/backend/internal/storage/models"
)

// Scene is one validated entry of the embedded scene-graph document.
type Scene struct {
	ID                    string                   `json:"id"`
	Name                  string                   `json:"name"`
	InitialViewParameters models.InitialParameters `json:"initialViewParameters"`
	LinkHotspots          []models.LinkHotspot     `json:"linkHotspots"`
	InfoHotspots          []models.InfoHotspot     `json:"infoHotspots"`
	Levels                []map[string]interface{} `json:"levels"`
	FaceSize              int                      `json:"faceSize"`
}

// SceneGraph is the parsed scene-graph document.
type SceneGraph struct {
	Name   string  `json:"name"`
	Scenes []Scene `json:"scenes"`
}

const sceneGraphPrefix = "var APP_DATA ="

// ReadSceneGraph loads the scene-graph script from the extracted archive,
// strips the variable assignment wrapping the JSON object, and parses the
// remainder into a typed document.
func ReadSceneGraph(path string) (*SceneGraph, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read scene-graph script: %v", ErrSceneGraphInvalid, err)
	}
	return ParseSceneGraph(string(raw))
}

// ParseSceneGraph parses the script body. The script is a single assignment
// of a JSON-compatible object terminated by a semicolon.
func ParseSceneGraph(script string) (*SceneGraph, error) {
	body := strings.TrimSpace(script)
	if idx := strings.Index(body, "="); idx >= 0 && strings.HasPrefix(body, "var ") {
		body = body[idx+1:]
	} else if strings.HasPrefix(body, sceneGraphPrefix) {
		body = body[len(sceneGraphPrefix):]
	}
	body = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(body), ";"))

	var graph SceneGraph
	if err := json.Unmarshal([]byte(body), &graph); err != nil {
		return nil, fmt.Errorf("%w: cannot parse scene-graph document: %v", ErrSceneGraphInvalid, err)
	}

	if len(graph.Scenes) == 0 {
		return nil, fmt.Errorf("%w: no scenes declared", ErrSceneGraphInvalid)
	}

	for i, scene := range graph.Scenes {
		if scene.ID == "" {
			return nil, fmt.Errorf("%w: scene %d has no id", ErrSceneGraphInvalid, i)
		}
	}

	return &graph, nil
}

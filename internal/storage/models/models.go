package models

import "time"

// Site is created outside the ingestion pipeline; every other record
// references it by ID.
type Site struct {
	ID        string
	SiteName  string
	Tag       string
	CreatedAt time.Time
}

type InitialParameters struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	FOV   float64 `json:"fov"`
}

type LinkHotspot struct {
	Yaw      float64 `json:"yaw"`
	Pitch    float64 `json:"pitch"`
	Rotation float64 `json:"rotation"`
	Target   string  `json:"target"`
}

type InfoHotspot struct {
	Yaw      float64 `json:"yaw"`
	Pitch    float64 `json:"pitch"`
	Rotation float64 `json:"rotation"`
	Target   string  `json:"target"`
	InfoID   string  `json:"info_id"`
}

// SurveyNode is one rendered scene. Levels stays loosely shaped: the
// tile-pyramid descriptor varies between renderer versions and is only
// passed through to the viewer.
type SurveyNode struct {
	ID                string
	SiteID            string
	NodeNumber        int
	TilesID           string
	TilesName         string
	SurveyName        string
	Date              time.Time
	InitialParameters InitialParameters
	LinkHotspots      []LinkHotspot
	InfoHotspots      []InfoHotspot
	Levels            []map[string]interface{}
	FaceSize          int
	StorageLink       string
	CreatedAt         time.Time
}

// MinimapNode is the floor-plan marker for exactly one SurveyNode.
type MinimapNode struct {
	ID           string
	SiteID       string
	SurveyNodeID string
	NodeNumber   int
	TilesID      string
	TilesName    string
	Floor        int
}

// MinimapConversion locates a MinimapNode on its floor plan. X and Y are
// percentage coordinates; values outside [0,100] are stored as-is and
// surfaced as ingestion warnings.
type MinimapConversion struct {
	ID            string
	SiteID        string
	SurveyNodeID  string
	MinimapNodeID string
	Floor         int
	X             float64
	Y             float64
	XScale        float64
	YScale        float64
	Rotation      float64
}

// MinimapImage is the floor registry entry: one per (site, floor).
type MinimapImage struct {
	ID            string
	SiteID        string
	Floor         int
	FloorName     string
	FloorTag      string
	ImageURL      string
	ImageLargeURL string
	ImgWidth      int
	ImgHeight     int
	XPixelOffset  float64
	YPixelOffset  float64
	XScale        float64
	YScale        float64
	XYFlipped     bool
}

type FeatureToggles struct {
	Timeline      bool `json:"timeline"`
	Rotation      bool `json:"rotation"`
	Media         bool `json:"media"`
	FAQ           bool `json:"faq"`
	Documentation bool `json:"documentation"`
	Floors        bool `json:"floors"`
	About         bool `json:"about"`
	Animations    bool `json:"animations"`
	HotspotsNav   bool `json:"hotspots_nav"`
}

type InitialSettings struct {
	Date           string  `json:"date"`
	Floor          int     `json:"floor"`
	PanoID         string  `json:"pano_id"`
	Yaw            float64 `json:"yaw"`
	Pitch          float64 `json:"pitch"`
	FOV            float64 `json:"fov"`
	RotationOffset float64 `json:"rotation_offset"`
}

// SiteSettings holds the per-site viewer defaults; created at most once per
// site, on first successful ingestion.
type SiteSettings struct {
	ID              string
	SiteID          string
	Enable          FeatureToggles
	InitialSettings InitialSettings
	Title           string
	Subtitle        string
	MouseViewMode   string
	CreatedAt       time.Time
}

// DefaultFeatureToggles is the fixed toggle set applied when SiteSettings is
// bootstrapped by the ingestion pipeline.
func DefaultFeatureToggles() FeatureToggles {
	return FeatureToggles{
		Timeline: true,
		Rotation: true,
		Floors:   true,
	}
}

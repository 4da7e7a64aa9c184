package ingestion

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sitetour/backend/internal/storage/models"
	"github.com/sitetour/backend/internal/storage/sqlite"
	"github.com/sitetour/backend/pkg/logger"
)

// defaultInitialDate is the viewer start date written into a freshly
// bootstrapped site-settings record.
const defaultInitialDate = "2021-11-16T00:00:00.000+10:00"

// Writer persists the node graph: one survey node, minimap node and minimap
// conversion per scene, floor registry entries for every floor written, and
// the one-time site-settings bootstrap. All writes for one ingestion share a
// single transaction.
type Writer struct {
	db *sqlite.Client
}

func NewWriter(db *sqlite.Client) *Writer {
	return &Writer{db: db}
}

type WriteResult struct {
	ScenesWritten   int
	FloorsCreated   int
	SettingsCreated bool
}

// WriteNodeGraph writes every matched pair in scene order. Scenes without a
// metadata record get an empty title and the fallback floor. Any failure
// rolls the whole transaction back: no partial scene set is ever visible.
func (w *Writer) WriteNodeGraph(site *models.Site, matches []Match, fallbackFloor int, storageLink string) (*WriteResult, error) {
	tx, err := w.db.BeginIngestion()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	defer tx.Rollback()

	result := &WriteResult{}
	floorsSeen := make(map[int]bool)

	for i, m := range matches {
		floor := fallbackFloor
		title := ""
		surveyName := ""
		date := defaultSurveyDate
		x, y := 0.0, 0.0

		if m.Record != nil {
			if m.Record.Floor != nil {
				floor = *m.Record.Floor
			}
			title = m.Record.Title
			surveyName = m.Record.SurveyName
			if m.Record.Date != nil {
				date = *m.Record.Date
			}
			x = m.Record.X
			y = m.Record.Y
		}

		tilesName := title
		if m.Record != nil && title == "" {
			tilesName = m.Scene.Name
		}

		surveyNode := &models.SurveyNode{
			SiteID:            site.ID,
			NodeNumber:        i,
			TilesID:           m.Scene.ID,
			TilesName:         tilesName,
			SurveyName:        surveyName,
			Date:              date,
			InitialParameters: m.Scene.InitialViewParameters,
			LinkHotspots:      m.Scene.LinkHotspots,
			InfoHotspots:      m.Scene.InfoHotspots,
			Levels:            m.Scene.Levels,
			FaceSize:          m.Scene.FaceSize,
			StorageLink:       storageLink,
		}
		if err := tx.InsertSurveyNode(surveyNode); err != nil {
			return nil, fmt.Errorf("%w: survey node for scene %s: %v", ErrPersistenceFailed, m.Scene.ID, err)
		}

		minimapNode := &models.MinimapNode{
			SiteID:       site.ID,
			SurveyNodeID: surveyNode.ID,
			NodeNumber:   i,
			TilesID:      m.Scene.ID,
			TilesName:    tilesName,
			Floor:        floor,
		}
		if err := tx.InsertMinimapNode(minimapNode); err != nil {
			return nil, fmt.Errorf("%w: minimap node for scene %s: %v", ErrPersistenceFailed, m.Scene.ID, err)
		}

		conversion := &models.MinimapConversion{
			SiteID:        site.ID,
			SurveyNodeID:  surveyNode.ID,
			MinimapNodeID: minimapNode.ID,
			Floor:         floor,
			X:             x,
			Y:             y,
			XScale:        1,
			YScale:        1,
			Rotation:      0,
		}
		if err := tx.InsertMinimapConversion(conversion); err != nil {
			return nil, fmt.Errorf("%w: minimap conversion for scene %s: %v", ErrPersistenceFailed, m.Scene.ID, err)
		}

		floorsSeen[floor] = true
		result.ScenesWritten++
	}

	// Every floor referenced by a conversion gets a registry entry. The
	// upsert is idempotent, so floors registered by earlier ingestions are
	// left untouched.
	for floor := range floorsSeen {
		created, err := tx.EnsureMinimapImage(site.ID, floor)
		if err != nil {
			return nil, fmt.Errorf("%w: floor registry for floor %d: %v", ErrPersistenceFailed, floor, err)
		}
		if created {
			result.FloorsCreated++
		}
	}

	settings := &models.SiteSettings{
		SiteID: site.ID,
		Enable: models.DefaultFeatureToggles(),
		InitialSettings: models.InitialSettings{
			Date:  defaultInitialDate,
			Floor: lowestFloor(floorsSeen),
		},
		Title:         site.SiteName,
		Subtitle:      site.SiteName,
		MouseViewMode: "drag",
	}
	created, err := tx.EnsureSiteSettings(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: site settings: %v", ErrPersistenceFailed, err)
	}
	result.SettingsCreated = created

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	logger.Info("Node graph written",
		zap.String("site_id", site.ID),
		zap.Int("scenes", result.ScenesWritten),
		zap.Int("floors_created", result.FloorsCreated),
		zap.Bool("settings_created", result.SettingsCreated),
	)

	return result, nil
}

func lowestFloor(floors map[int]bool) int {
	lowest := 0
	first := true
	for floor := range floors {
		if first || floor < lowest {
			lowest = floor
			first = false
		}
	}
	return lowest
}

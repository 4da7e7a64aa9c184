package sqlite

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitetour/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	client, err := NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.InitSchema())

	return client
}

func createTestSite(t *testing.T, c *Client) *models.Site {
	t.Helper()

	site := &models.Site{SiteName: "Test Site", Tag: "test-site"}
	require.NoError(t, c.CreateSite(site))
	return site
}

func TestEnsureMinimapImageIdempotent(t *testing.T) {
	client := newTestClient(t)
	site := createTestSite(t, client)

	created, err := client.EnsureMinimapImage(site.ID, 3)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = client.EnsureMinimapImage(site.ID, 3)
	require.NoError(t, err)
	assert.False(t, created)

	count, err := client.CountMinimapImages(site.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	img, err := client.GetMinimapImage(site.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, "Level 3", img.FloorName)
	assert.Equal(t, "3", img.FloorTag)
	assert.Equal(t, 1.0, img.XScale)
	assert.Equal(t, 1.0, img.YScale)
	assert.False(t, img.XYFlipped)
	assert.Empty(t, img.ImageURL)
}

func TestEnsureMinimapImageConcurrent(t *testing.T) {
	client := newTestClient(t)
	site := createTestSite(t, client)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.EnsureMinimapImage(site.ID, 7)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	count, err := client.CountMinimapImages(site.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEnsureSiteSettingsOnce(t *testing.T) {
	client := newTestClient(t)
	site := createTestSite(t, client)

	settings := &models.SiteSettings{
		SiteID:          site.ID,
		Enable:          models.DefaultFeatureToggles(),
		InitialSettings: models.InitialSettings{Floor: 2},
		Title:           "Test Site",
		MouseViewMode:   "drag",
	}
	created, err := client.EnsureSiteSettings(settings)
	require.NoError(t, err)
	assert.True(t, created)

	again := &models.SiteSettings{
		SiteID:          site.ID,
		Enable:          models.FeatureToggles{},
		InitialSettings: models.InitialSettings{Floor: 9},
	}
	created, err = client.EnsureSiteSettings(again)
	require.NoError(t, err)
	assert.False(t, created)

	stored, err := client.GetSiteSettings(site.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.InitialSettings.Floor)
	assert.True(t, stored.Enable.Timeline)
}

func insertNodeTriple(t *testing.T, c *Client, site *models.Site, floor int, x, y float64) *models.SurveyNode {
	t.Helper()

	tx, err := c.BeginIngestion()
	require.NoError(t, err)

	survey := &models.SurveyNode{
		SiteID:     site.ID,
		NodeNumber: 0,
		TilesID:    "0-scene",
		TilesName:  "Scene",
		Date:       time.Date(2021, 12, 25, 0, 0, 0, 0, time.UTC),
		LinkHotspots: []models.LinkHotspot{
			{Yaw: 0.5, Pitch: 0.1, Target: "1-scene"},
		},
		Levels:      []map[string]interface{}{{"tileSize": 256.0}},
		FaceSize:    1024,
		StorageLink: "https://stor.example.com/tours/test-site/",
	}
	require.NoError(t, tx.InsertSurveyNode(survey))

	minimap := &models.MinimapNode{
		SiteID:       site.ID,
		SurveyNodeID: survey.ID,
		TilesID:      "0-scene",
		TilesName:    "Scene",
		Floor:        floor,
	}
	require.NoError(t, tx.InsertMinimapNode(minimap))

	conv := &models.MinimapConversion{
		SiteID:        site.ID,
		SurveyNodeID:  survey.ID,
		MinimapNodeID: minimap.ID,
		Floor:         floor,
		X:             x,
		Y:             y,
		XScale:        1,
		YScale:        1,
	}
	require.NoError(t, tx.InsertMinimapConversion(conv))
	require.NoError(t, tx.Commit())

	return survey
}

func TestNodeGraphRoundTrip(t *testing.T) {
	client := newTestClient(t)
	site := createTestSite(t, client)

	survey := insertNodeTriple(t, client, site, 1, 42.5, 17.25)

	conv, err := client.GetMinimapConversionBySurveyNode(survey.ID)
	require.NoError(t, err)
	assert.Equal(t, 42.5, conv.X)
	assert.Equal(t, 17.25, conv.Y)
	assert.Equal(t, 1, conv.Floor)
	assert.Equal(t, 0.0, conv.Rotation)

	populated, err := client.SitePopulated(site.ID)
	require.NoError(t, err)
	assert.True(t, populated)
}

func TestIngestionRollback(t *testing.T) {
	client := newTestClient(t)
	site := createTestSite(t, client)

	tx, err := client.BeginIngestion()
	require.NoError(t, err)

	survey := &models.SurveyNode{SiteID: site.ID, TilesID: "0-scene"}
	require.NoError(t, tx.InsertSurveyNode(survey))
	require.NoError(t, tx.Rollback())

	count, err := client.CountSurveyNodes(site.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestUpdateNodeOperations(t *testing.T) {
	client := newTestClient(t)
	site := createTestSite(t, client)
	survey := insertNodeTriple(t, client, site, 1, 10, 20)

	require.NoError(t, client.UpdateNodeCoordinates(survey.ID, 55, 66))
	require.NoError(t, client.UpdateNodeRotation(survey.ID, 1.57))
	require.NoError(t, client.UpdateTileName(survey.ID, "Renamed"))

	conv, err := client.GetMinimapConversionBySurveyNode(survey.ID)
	require.NoError(t, err)
	assert.Equal(t, 55.0, conv.X)
	assert.Equal(t, 66.0, conv.Y)
	assert.Equal(t, 1.57, conv.Rotation)

	assert.Error(t, client.UpdateNodeCoordinates("missing", 1, 2))
	assert.Error(t, client.UpdateNodeRotation("missing", 1))
	assert.Error(t, client.UpdateTileName("missing", "x"))
}

func TestAttachFloorImageUpsert(t *testing.T) {
	client := newTestClient(t)
	site := createTestSite(t, client)

	// Attaching to an unregistered floor creates the registry entry.
	require.NoError(t, client.AttachFloorImage(site.ID, 4, "https://stor.example.com/tours/plan4.png", 800, 600))

	img, err := client.GetMinimapImage(site.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, "https://stor.example.com/tours/plan4.png", img.ImageURL)
	assert.Equal(t, 800, img.ImgWidth)
	assert.Equal(t, "Level 4", img.FloorName)

	// Re-attaching replaces the image but keeps the registry row.
	require.NoError(t, client.AttachFloorImage(site.ID, 4, "https://stor.example.com/tours/plan4-v2.png", 1024, 768))

	img, err = client.GetMinimapImage(site.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, "https://stor.example.com/tours/plan4-v2.png", img.ImageURL)
	assert.Equal(t, 1024, img.ImgWidth)

	count, err := client.CountMinimapImages(site.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUpdateFloorDetails(t *testing.T) {
	client := newTestClient(t)
	site := createTestSite(t, client)

	_, err := client.EnsureMinimapImage(site.ID, 2)
	require.NoError(t, err)

	require.NoError(t, client.UpdateFloorDetails(site.ID, 2, "Mezzanine", "M"))

	img, err := client.GetMinimapImage(site.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, "Mezzanine", img.FloorName)
	assert.Equal(t, "M", img.FloorTag)

	assert.Error(t, client.UpdateFloorDetails(site.ID, 99, "Nope", "N"))
}

func TestGetEmptyFloors(t *testing.T) {
	client := newTestClient(t)
	site := createTestSite(t, client)

	_, err := client.EnsureMinimapImage(site.ID, 1)
	require.NoError(t, err)
	_, err = client.EnsureMinimapImage(site.ID, 2)
	require.NoError(t, err)
	_, err = client.EnsureMinimapImage(site.ID, 3)
	require.NoError(t, err)

	insertNodeTriple(t, client, site, 2, 10, 20)

	floors, err := client.GetEmptyFloors(site.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, floors)
}

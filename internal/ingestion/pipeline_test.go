package ingestion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitetour/backend/internal/locks"
	"github.com/sitetour/backend/internal/storage/models"
	"github.com/sitetour/backend/internal/storage/sqlite"
)

type fakeSyncer struct {
	syncCalls int
	lastTag   string
	failWith  error
}

func (f *fakeSyncer) SyncTiles(ctx context.Context, tilesDir, siteTag string) error {
	f.syncCalls++
	f.lastTag = siteTag
	return f.failWith
}

func (f *fakeSyncer) ObjectBaseURL(tag string) string {
	return "https://stor.example.com/tours/" + tag + "/"
}

const threeSceneGraph = `var APP_DATA = {
  "name": "Warehouse Tour",
  "scenes": [
    {"id": "0-dock", "name": "dock", "initialViewParameters": {"pitch": 0, "yaw": 0, "fov": 1.5}, "linkHotspots": [], "infoHotspots": [], "levels": [], "faceSize": 1024},
    {"id": "1-floor", "name": "floor", "initialViewParameters": {"pitch": 0, "yaw": 0, "fov": 1.5}, "linkHotspots": [], "infoHotspots": [], "levels": [], "faceSize": 1024},
    {"id": "2-office", "name": "office", "initialViewParameters": {"pitch": 0, "yaw": 0, "fov": 1.5}, "linkHotspots": [], "infoHotspots": [], "levels": [], "faceSize": 1024}
  ]
};`

func newTestPipeline(t *testing.T, syncer TileSyncer) (*Pipeline, *sqlite.Client, *models.Site, string) {
	t.Helper()

	dir := t.TempDir()
	db, err := sqlite.NewClient(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema())

	site := &models.Site{SiteName: "Warehouse", Tag: "warehouse #1"}
	require.NoError(t, db.CreateSite(site))

	pipeline := NewPipeline(db, syncer, locks.NewLocalManager(), filepath.Join(dir, "scratch"))
	return pipeline, db, site, dir
}

func writeUpload(t *testing.T, dir, sceneGraph, csv string) (string, string) {
	t.Helper()

	archive := buildTourArchive(t, dir, map[string]string{
		"project/app-files/":                       "",
		"project/app-files/data.js":                sceneGraph,
		"project/app-files/tiles/dock/0/0_0.jpg":   "jpegdata",
		"project/app-files/tiles/floor/0/0_0.jpg":  "jpegdata",
		"project/app-files/tiles/office/0/0_0.jpg": "jpegdata",
	})

	metadataPath := filepath.Join(dir, "properties.csv")
	require.NoError(t, os.WriteFile(metadataPath, []byte(csv), 0o644))

	return archive, metadataPath
}

func TestPipelineEndToEnd(t *testing.T) {
	syncer := &fakeSyncer{}
	pipeline, db, site, dir := newTestPipeline(t, syncer)

	csv := "fileName,x,y,floor,title\n" +
		"dock,10,20,1,Loading Dock\n" +
		"floor,30,40,1,Warehouse Floor\n" +
		"office,50,60,2,Office\n"
	archive, metadata := writeUpload(t, dir, threeSceneGraph, csv)

	result, err := pipeline.Run(context.Background(), Request{
		Site:         site,
		ArchivePath:  archive,
		MetadataPath: metadata,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.ScenesWritten)
	assert.Equal(t, 2, result.FloorsCreated)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, 1, syncer.syncCalls)
	assert.Equal(t, "warehouse #1", syncer.lastTag)

	for name, count := range map[string]func(string) (int, error){
		"survey nodes":        db.CountSurveyNodes,
		"minimap nodes":       db.CountMinimapNodes,
		"minimap conversions": db.CountMinimapConversions,
	} {
		n, err := count(site.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, n, name)
	}

	images, err := db.CountMinimapImages(site.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, images)

	settings, err := db.GetSiteSettings(site.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, settings.InitialSettings.Floor)
	assert.True(t, settings.Enable.Timeline)
	assert.Equal(t, "drag", settings.MouseViewMode)

	// Scratch and spooled uploads are gone.
	_, err = os.Stat(archive)
	assert.True(t, os.IsNotExist(err))
	entries, err := os.ReadDir(filepath.Join(dir, "scratch"))
	if err == nil {
		assert.Empty(t, entries)
	}
}

func TestPipelineSiteSettingsCreatedOnce(t *testing.T) {
	syncer := &fakeSyncer{}
	pipeline, db, site, dir := newTestPipeline(t, syncer)

	csv := "fileName,x,y,floor\ndock,10,20,1\nfloor,30,40,1\noffice,50,60,2\n"

	archive, metadata := writeUpload(t, dir, threeSceneGraph, csv)
	first, err := pipeline.Run(context.Background(), Request{Site: site, ArchivePath: archive, MetadataPath: metadata})
	require.NoError(t, err)
	assert.Equal(t, 2, first.FloorsCreated)

	archive, metadata = writeUpload(t, dir, threeSceneGraph, csv)
	second, err := pipeline.Run(context.Background(), Request{Site: site, ArchivePath: archive, MetadataPath: metadata})
	require.NoError(t, err)
	assert.Equal(t, 0, second.FloorsCreated)

	settings, err := db.GetSiteSettings(site.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, settings.ID)

	nodes, err := db.CountSurveyNodes(site.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, nodes)
}

func TestPipelineStructureInvalidBeforeAnyWrite(t *testing.T) {
	syncer := &fakeSyncer{}
	pipeline, db, site, dir := newTestPipeline(t, syncer)

	csv := "fileName,x,y\nnonexistent-scene,10,20\n"
	archive, metadata := writeUpload(t, dir, threeSceneGraph, csv)

	_, err := pipeline.Run(context.Background(), Request{Site: site, ArchivePath: archive, MetadataPath: metadata})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStructureInvalid))

	assert.Equal(t, 0, syncer.syncCalls)
	nodes, err := db.CountSurveyNodes(site.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, nodes)
}

func TestPipelineUploadFailurePreventsPersistence(t *testing.T) {
	syncer := &fakeSyncer{failWith: fmt.Errorf("storage host unreachable")}
	pipeline, db, site, dir := newTestPipeline(t, syncer)

	csv := "fileName,x,y,floor\ndock,10,20,1\nfloor,30,40,1\noffice,50,60,2\n"
	archive, metadata := writeUpload(t, dir, threeSceneGraph, csv)

	_, err := pipeline.Run(context.Background(), Request{Site: site, ArchivePath: archive, MetadataPath: metadata})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUploadFailed))

	nodes, err := db.CountSurveyNodes(site.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, nodes)
	images, err := db.CountMinimapImages(site.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, images)
	_, err = db.GetSiteSettings(site.ID)
	assert.Error(t, err)
}

func TestPipelineUnmatchedSceneUsesFallbackFloor(t *testing.T) {
	syncer := &fakeSyncer{}
	pipeline, db, site, dir := newTestPipeline(t, syncer)

	// Only the dock scene has a metadata row; the other two fall back.
	csv := "fileName,x,y,floor,title\ndock,10,20,1,Loading Dock\n"
	archive, metadata := writeUpload(t, dir, threeSceneGraph, csv)

	result, err := pipeline.Run(context.Background(), Request{
		Site:          site,
		ArchivePath:   archive,
		MetadataPath:  metadata,
		FallbackFloor: 5,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.ScenesWritten)
	require.Len(t, result.Warnings, 2)
	assert.Contains(t, result.Warnings[0], `"1-floor"`)
	assert.Contains(t, result.Warnings[1], `"2-office"`)

	populated, err := db.FloorPopulated(site.ID, 5)
	require.NoError(t, err)
	assert.True(t, populated)

	img, err := db.GetMinimapImage(site.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, "Level 5", img.FloorName)
}

func TestPipelineCoordinateWarning(t *testing.T) {
	syncer := &fakeSyncer{}
	pipeline, _, site, dir := newTestPipeline(t, syncer)

	csv := "fileName,x,y,floor\ndock,150,20,1\nfloor,30,40,1\noffice,50,60,2\n"
	archive, metadata := writeUpload(t, dir, threeSceneGraph, csv)

	result, err := pipeline.Run(context.Background(), Request{Site: site, ArchivePath: archive, MetadataPath: metadata})
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "outside [0,100]")
}

package ingestion

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitetour/backend/internal/locks"
	"github.com/sitetour/backend/internal/metrics"
	"github.com/sitetour/backend/internal/storage/models"
	"github.com/sitetour/backend/internal/storage/sqlite"
	"github.com/sitetour/backend/internal/uploader"
	"github.com/sitetour/backend/pkg/logger"
)

// Stage names the orchestrator's position in the ingestion state machine.
type Stage string

const (
	StageValidating Stage = "validating"
	StageExtracting Stage = "extracting"
	StageMatching   Stage = "matching"
	StageUploading  Stage = "uploading"
	StagePersisting Stage = "persisting"
	StageFinalizing Stage = "finalizing"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// TileSyncer is the external storage sync utility as seen by the pipeline:
// success or failure, nothing in between.
type TileSyncer interface {
	SyncTiles(ctx context.Context, tilesDir, siteTag string) error
	ObjectBaseURL(tag string) string
}

// Request is one upload to ingest. ArchivePath and MetadataPath point at the
// spooled multipart files; both are removed when the run finishes.
type Request struct {
	Site          *models.Site
	ArchivePath   string
	MetadataPath  string
	FallbackFloor int
}

// Result reports a successful ingestion.
type Result struct {
	ScenesWritten int
	FloorsCreated int
	Warnings      []string
}

// Pipeline sequences validation, extraction, matching, asset upload and
// persistence for one upload. Assets are uploaded before the database commit
// so a record never references tiles that do not exist.
type Pipeline struct {
	inspector *Inspector
	writer    *Writer
	syncer    TileSyncer
	lockMgr   locks.Manager
}

func NewPipeline(db *sqlite.Client, syncer TileSyncer, lockMgr locks.Manager, scratchRoot string) *Pipeline {
	return &Pipeline{
		inspector: NewInspector(scratchRoot),
		writer:    NewWriter(db),
		syncer:    syncer,
		lockMgr:   lockMgr,
	}
}

// Run executes the full ingestion for one site. It runs to completion or
// failure; scratch files are removed on both paths.
func (p *Pipeline) Run(ctx context.Context, req Request) (result *Result, err error) {
	started := time.Now()
	stage := StageValidating

	setStage := func(next Stage) {
		logger.Info("Ingestion stage",
			zap.String("site_id", req.Site.ID),
			zap.String("from", string(stage)),
			zap.String("to", string(next)),
		)
		stage = next
	}

	defer func() {
		status := string(StageDone)
		if err != nil {
			status = string(StageFailed)
			logger.Error("Ingestion failed",
				zap.String("site_id", req.Site.ID),
				zap.String("stage", string(stage)),
				zap.Error(err),
			)
		}
		metrics.IngestionsTotal.WithLabelValues(status).Inc()
		metrics.IngestionDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
	}()

	release, err := p.lockMgr.Acquire(ctx, req.Site.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire site lock: %w", err)
	}
	defer release()

	defer func() {
		if removeErr := os.Remove(req.ArchivePath); removeErr != nil && !os.IsNotExist(removeErr) {
			logger.Warn("Failed to remove uploaded archive", zap.Error(removeErr))
		}
		if removeErr := os.Remove(req.MetadataPath); removeErr != nil && !os.IsNotExist(removeErr) {
			logger.Warn("Failed to remove uploaded metadata table", zap.Error(removeErr))
		}
	}()

	records, err := ParseMetadataFile(req.MetadataPath)
	if err != nil {
		return nil, err
	}

	if err := p.inspector.Inspect(req.ArchivePath, records); err != nil {
		return nil, err
	}

	setStage(StageExtracting)
	extractedDir, err := p.inspector.Extract(req.ArchivePath, uuid.NewString())
	if extractedDir != "" {
		defer func() {
			if removeErr := os.RemoveAll(extractedDir); removeErr != nil {
				logger.Warn("Failed to remove scratch directory",
					zap.String("dir", extractedDir),
					zap.Error(removeErr),
				)
			}
		}()
	}
	if err != nil {
		return nil, err
	}

	sceneGraphPath, err := SceneGraphPath(extractedDir)
	if err != nil {
		return nil, err
	}

	graph, err := ReadSceneGraph(sceneGraphPath)
	if err != nil {
		return nil, err
	}

	setStage(StageMatching)
	matched, warnings := MatchScenes(graph.Scenes, records)

	setStage(StageUploading)
	if err := p.syncer.SyncTiles(ctx, TilesPath(sceneGraphPath), req.Site.Tag); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	setStage(StagePersisting)
	storageLink := p.syncer.ObjectBaseURL(uploader.SanitizeTag(req.Site.Tag))
	written, err := p.writer.WriteNodeGraph(req.Site, matched, req.FallbackFloor, storageLink)
	if err != nil {
		return nil, err
	}

	setStage(StageFinalizing)
	metrics.ScenesWritten.Add(float64(written.ScenesWritten))
	metrics.FloorsCreated.Add(float64(written.FloorsCreated))
	metrics.IngestionWarnings.Add(float64(len(warnings)))

	setStage(StageDone)
	return &Result{
		ScenesWritten: written.ScenesWritten,
		FloorsCreated: written.FloorsCreated,
		Warnings:      warnings,
	}, nil
}

package handlers

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitetour/backend/internal/ingestion"
	"github.com/sitetour/backend/internal/storage/sqlite"
	"github.com/sitetour/backend/pkg/logger"
)

type SurveyHandler struct {
	pipeline    *ingestion.Pipeline
	db          *sqlite.Client
	scratchRoot string
}

func NewSurveyHandler(pipeline *ingestion.Pipeline, db *sqlite.Client, scratchRoot string) *SurveyHandler {
	return &SurveyHandler{
		pipeline:    pipeline,
		db:          db,
		scratchRoot: scratchRoot,
	}
}

// UploadSurvey ingests a tour package: multipart form with the tour archive
// under "zipFile", the properties table under "properties", and an optional
// "floor" fallback id.
func (h *SurveyHandler) UploadSurvey(c *fiber.Ctx) error {
	siteID := c.Params("siteID")

	site, err := h.db.GetSite(siteID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Site not found",
		})
	}

	archive, err := c.FormFile("zipFile")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "zipFile is required",
		})
	}

	metadata, err := c.FormFile("properties")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "properties is required",
		})
	}

	fallbackFloor := 0
	if floorStr := c.FormValue("floor"); floorStr != "" {
		fallbackFloor, err = strconv.Atoi(floorStr)
		if err != nil || fallbackFloor < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "floor must be a non-negative integer",
			})
		}
	}

	uploadDir := filepath.Join(h.scratchRoot, "uploads", uuid.NewString())
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		logger.Error("Failed to create upload directory", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to spool upload",
		})
	}

	archivePath := filepath.Join(uploadDir, filepath.Base(archive.Filename))
	metadataPath := filepath.Join(uploadDir, filepath.Base(metadata.Filename))

	if err := c.SaveFile(archive, archivePath); err != nil {
		logger.Error("Failed to save archive", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to spool upload",
		})
	}
	if err := c.SaveFile(metadata, metadataPath); err != nil {
		logger.Error("Failed to save metadata table", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to spool upload",
		})
	}

	result, err := h.pipeline.Run(c.Context(), ingestion.Request{
		Site:          site,
		ArchivePath:   archivePath,
		MetadataPath:  metadataPath,
		FallbackFloor: fallbackFloor,
	})
	os.RemoveAll(uploadDir)

	if err != nil {
		return c.Status(ingestionStatus(err)).JSON(fiber.Map{
			"success": false,
			"message": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success":        true,
		"message":        "Survey ingested",
		"scenes_written": result.ScenesWritten,
		"floors_created": result.FloorsCreated,
		"warnings":       result.Warnings,
	})
}

func ingestionStatus(err error) int {
	switch {
	case errors.Is(err, ingestion.ErrStructureInvalid),
		errors.Is(err, ingestion.ErrMetadataInvalid),
		errors.Is(err, ingestion.ErrSceneGraphInvalid):
		return fiber.StatusBadRequest
	case errors.Is(err, ingestion.ErrUploadFailed):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

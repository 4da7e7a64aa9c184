package handlers

import (
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitetour/backend/internal/storage/models"
	"github.com/sitetour/backend/internal/storage/sqlite"
	"github.com/sitetour/backend/pkg/logger"
)

// FileUploader is the single-file leg of the object-storage sync utility.
type FileUploader interface {
	PutFile(ctx context.Context, path string) (string, error)
}

type SiteHandler struct {
	db          *sqlite.Client
	uploader    FileUploader
	scratchRoot string
}

func NewSiteHandler(db *sqlite.Client, uploader FileUploader, scratchRoot string) *SiteHandler {
	return &SiteHandler{
		db:          db,
		uploader:    uploader,
		scratchRoot: scratchRoot,
	}
}

func (h *SiteHandler) CreateSite(c *fiber.Ctx) error {
	var req struct {
		SiteName string `json:"site_name"`
		Tag      string `json:"tag"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.SiteName == "" || req.Tag == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "site_name and tag are required",
		})
	}

	site := &models.Site{SiteName: req.SiteName, Tag: req.Tag}
	if err := h.db.CreateSite(site); err != nil {
		logger.Error("Failed to create site", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create site",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":        site.ID,
		"site_name": site.SiteName,
		"tag":       site.Tag,
	})
}

func (h *SiteHandler) GetSite(c *fiber.Ctx) error {
	site, err := h.db.GetSite(c.Params("siteID"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Site not found",
		})
	}

	populated, err := h.db.SitePopulated(site.ID)
	if err != nil {
		logger.Error("Failed to check site population", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read site",
		})
	}

	return c.JSON(fiber.Map{
		"id":        site.ID,
		"site_name": site.SiteName,
		"tag":       site.Tag,
		"populated": populated,
	})
}

// UploadMinimapImage attaches a floor-plan image to the floor registry:
// the image is pushed to object storage first, then the registry row is
// upserted with the resulting URL and pixel dimensions.
func (h *SiteHandler) UploadMinimapImage(c *fiber.Ctx) error {
	siteID := c.Params("siteID")
	if _, err := h.db.GetSite(siteID); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Site not found",
		})
	}

	floor, err := strconv.Atoi(c.FormValue("floor"))
	if err != nil || floor < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "floor must be a non-negative integer",
		})
	}

	file, err := c.FormFile("minimap")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "minimap file is required",
		})
	}

	localPath := filepath.Join(h.scratchRoot, "uploads", uuid.NewString()+"-"+filepath.Base(file.Filename))
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		logger.Error("Failed to create upload directory", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to spool upload",
		})
	}
	if err := c.SaveFile(file, localPath); err != nil {
		logger.Error("Failed to save minimap image", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to spool upload",
		})
	}
	defer os.Remove(localPath)

	width, height, err := imageDimensions(localPath)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "File is not a readable image",
		})
	}

	url, err := h.uploader.PutFile(c.Context(), localPath)
	if err != nil {
		logger.Error("Failed to upload minimap image", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false,
			"message": "Minimap image could not be uploaded",
		})
	}

	if err := h.db.AttachFloorImage(siteID, floor, url, width, height); err != nil {
		logger.Error("Failed to attach floor image", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Minimap image could not be saved",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Site map has been saved",
	})
}

func (h *SiteHandler) UpdateFloorDetails(c *fiber.Ctx) error {
	siteID := c.Params("siteID")
	floor, err := strconv.Atoi(c.Params("floor"))
	if err != nil || floor < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "floor must be a non-negative integer",
		})
	}

	var req struct {
		FloorName string `json:"floor_name"`
		FloorTag  string `json:"floor_tag"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if err := h.db.UpdateFloorDetails(siteID, floor, req.FloorName, req.FloorTag); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Site map / floor combination does not exist",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Site map has been saved",
	})
}

func (h *SiteHandler) GetEmptyFloors(c *fiber.Ctx) error {
	floors, err := h.db.GetEmptyFloors(c.Params("siteID"))
	if err != nil {
		logger.Error("Failed to list empty floors", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to list empty floors",
		})
	}

	if floors == nil {
		floors = []int{}
	}

	return c.JSON(fiber.Map{
		"success":      true,
		"empty_floors": floors,
	})
}

func imageDimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sitetour/backend/internal/storage/sqlite"
	"github.com/sitetour/backend/pkg/logger"
)

// NodeHandler serves the minimap-editing operations: nudging a node's
// placement, rotating its marker and renaming its scene.
type NodeHandler struct {
	db *sqlite.Client
}

func NewNodeHandler(db *sqlite.Client) *NodeHandler {
	return &NodeHandler{db: db}
}

func (h *NodeHandler) UpdateCoordinates(c *fiber.Ctx) error {
	var req struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
	}

	if err := c.BodyParser(&req); err != nil || req.X == nil || req.Y == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "x and y are required",
		})
	}

	nodeID := c.Params("nodeID")
	if err := h.db.UpdateNodeCoordinates(nodeID, *req.X, *req.Y); err != nil {
		logger.Error("Failed to update node coordinates", zap.String("node_id", nodeID), zap.Error(err))
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Node not found",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Coordinates updated",
	})
}

func (h *NodeHandler) UpdateRotation(c *fiber.Ctx) error {
	var req struct {
		Rotation *float64 `json:"rotation"`
	}

	if err := c.BodyParser(&req); err != nil || req.Rotation == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "rotation is required",
		})
	}

	nodeID := c.Params("nodeID")
	if err := h.db.UpdateNodeRotation(nodeID, *req.Rotation); err != nil {
		logger.Error("Failed to update node rotation", zap.String("node_id", nodeID), zap.Error(err))
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Node not found",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Rotation updated",
	})
}

func (h *NodeHandler) UpdateTitle(c *fiber.Ctx) error {
	var req struct {
		Title string `json:"title"`
	}

	if err := c.BodyParser(&req); err != nil || req.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "title is required",
		})
	}

	nodeID := c.Params("nodeID")
	if err := h.db.UpdateTileName(nodeID, req.Title); err != nil {
		logger.Error("Failed to update tile name", zap.String("node_id", nodeID), zap.Error(err))
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Node not found",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Title updated",
	})
}

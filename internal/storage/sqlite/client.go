package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/sitetour/backend/internal/storage/models"
	"github.com/sitetour/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	_, err = db.Exec("PRAGMA busy_timeout = 5000")
	if err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sites (
		id TEXT PRIMARY KEY,
		site_name TEXT NOT NULL,
		tag TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS survey_nodes (
		id TEXT PRIMARY KEY,
		site TEXT NOT NULL,
		node_number INTEGER NOT NULL,
		tiles_id TEXT NOT NULL,
		tiles_name TEXT,
		survey_name TEXT,
		date INTEGER NOT NULL,
		initial_parameters TEXT,
		link_hotspots TEXT,
		info_hotspots TEXT,
		levels TEXT,
		face_size INTEGER,
		storage_link TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (site) REFERENCES sites(id)
	);
	CREATE INDEX IF NOT EXISTS idx_survey_nodes_site ON survey_nodes(site);

	CREATE TABLE IF NOT EXISTS minimap_nodes (
		id TEXT PRIMARY KEY,
		site TEXT NOT NULL,
		survey_node TEXT NOT NULL,
		node_number INTEGER NOT NULL,
		tiles_id TEXT NOT NULL,
		tiles_name TEXT,
		floor INTEGER NOT NULL,
		FOREIGN KEY (site) REFERENCES sites(id),
		FOREIGN KEY (survey_node) REFERENCES survey_nodes(id)
	);
	CREATE INDEX IF NOT EXISTS idx_minimap_nodes_site ON minimap_nodes(site);
	CREATE INDEX IF NOT EXISTS idx_minimap_nodes_floor ON minimap_nodes(site, floor);

	CREATE TABLE IF NOT EXISTS minimap_conversions (
		id TEXT PRIMARY KEY,
		site TEXT NOT NULL,
		survey_node TEXT NOT NULL,
		minimap_node TEXT NOT NULL,
		floor INTEGER NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		x_scale REAL NOT NULL DEFAULT 1,
		y_scale REAL NOT NULL DEFAULT 1,
		rotation REAL NOT NULL DEFAULT 0,
		FOREIGN KEY (site) REFERENCES sites(id),
		FOREIGN KEY (survey_node) REFERENCES survey_nodes(id),
		FOREIGN KEY (minimap_node) REFERENCES minimap_nodes(id)
	);
	CREATE INDEX IF NOT EXISTS idx_conversions_survey_node ON minimap_conversions(survey_node);

	CREATE TABLE IF NOT EXISTS minimap_images (
		id TEXT PRIMARY KEY,
		site TEXT NOT NULL,
		floor INTEGER NOT NULL,
		floor_name TEXT,
		floor_tag TEXT,
		image_url TEXT,
		image_large_url TEXT,
		img_width INTEGER,
		img_height INTEGER,
		x_pixel_offset REAL NOT NULL DEFAULT 0,
		y_pixel_offset REAL NOT NULL DEFAULT 0,
		x_scale REAL NOT NULL DEFAULT 1,
		y_scale REAL NOT NULL DEFAULT 1,
		xy_flipped INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (site) REFERENCES sites(id),
		UNIQUE (site, floor)
	);

	CREATE TABLE IF NOT EXISTS site_settings (
		id TEXT PRIMARY KEY,
		site TEXT NOT NULL UNIQUE,
		enable TEXT NOT NULL,
		initial_settings TEXT NOT NULL,
		title TEXT,
		subtitle TEXT,
		mouse_view_mode TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (site) REFERENCES sites(id)
	);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// execer is satisfied by both *sql.DB and *sql.Tx so the node-graph writes
// can run inside the ingestion transaction while the editing handlers use
// the plain connection.
type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

func (c *Client) CreateSite(site *models.Site) error {
	if site.ID == "" {
		site.ID = uuid.NewString()
	}
	if site.CreatedAt.IsZero() {
		site.CreatedAt = time.Now()
	}

	_, err := c.db.Exec(
		`INSERT INTO sites (id, site_name, tag, created_at) VALUES (?, ?, ?, ?)`,
		site.ID,
		site.SiteName,
		site.Tag,
		site.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert site: %w", err)
	}

	logger.Info("Site created", zap.String("site_id", site.ID), zap.String("tag", site.Tag))
	return nil
}

func (c *Client) GetSite(id string) (*models.Site, error) {
	var site models.Site
	var createdAt int64

	err := c.db.QueryRow(
		`SELECT id, site_name, tag, created_at FROM sites WHERE id = ?`, id,
	).Scan(&site.ID, &site.SiteName, &site.Tag, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get site: %w", err)
	}

	site.CreatedAt = time.Unix(createdAt, 0)
	return &site, nil
}

// IngestionTx wraps one ingestion's node-graph writes in a single SQLite
// transaction so a failed scene never leaves earlier scenes behind.
type IngestionTx struct {
	tx *sql.Tx
}

func (c *Client) BeginIngestion() (*IngestionTx, error) {
	tx, err := c.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &IngestionTx{tx: tx}, nil
}

func (t *IngestionTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ingestion: %w", err)
	}
	return nil
}

func (t *IngestionTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *IngestionTx) InsertSurveyNode(node *models.SurveyNode) error {
	return insertSurveyNode(t.tx, node)
}

func (t *IngestionTx) InsertMinimapNode(node *models.MinimapNode) error {
	return insertMinimapNode(t.tx, node)
}

func (t *IngestionTx) InsertMinimapConversion(conv *models.MinimapConversion) error {
	return insertMinimapConversion(t.tx, conv)
}

func (t *IngestionTx) EnsureMinimapImage(siteID string, floor int) (bool, error) {
	return ensureMinimapImage(t.tx, siteID, floor)
}

func (t *IngestionTx) EnsureSiteSettings(settings *models.SiteSettings) (bool, error) {
	return ensureSiteSettings(t.tx, settings)
}

func insertSurveyNode(e execer, node *models.SurveyNode) error {
	if node.ID == "" {
		node.ID = uuid.NewString()
	}
	if node.CreatedAt.IsZero() {
		node.CreatedAt = time.Now()
	}

	initialJSON, err := json.Marshal(node.InitialParameters)
	if err != nil {
		return fmt.Errorf("failed to marshal initial parameters: %w", err)
	}
	linkJSON, err := json.Marshal(node.LinkHotspots)
	if err != nil {
		return fmt.Errorf("failed to marshal link hotspots: %w", err)
	}
	infoJSON, err := json.Marshal(node.InfoHotspots)
	if err != nil {
		return fmt.Errorf("failed to marshal info hotspots: %w", err)
	}
	levelsJSON, err := json.Marshal(node.Levels)
	if err != nil {
		return fmt.Errorf("failed to marshal levels: %w", err)
	}

	_, err = e.Exec(
		`INSERT INTO survey_nodes (id, site, node_number, tiles_id, tiles_name, survey_name,
			date, initial_parameters, link_hotspots, info_hotspots, levels, face_size,
			storage_link, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		node.ID,
		node.SiteID,
		node.NodeNumber,
		node.TilesID,
		node.TilesName,
		node.SurveyName,
		node.Date.Unix(),
		string(initialJSON),
		string(linkJSON),
		string(infoJSON),
		string(levelsJSON),
		node.FaceSize,
		node.StorageLink,
		node.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert survey node: %w", err)
	}

	return nil
}

func insertMinimapNode(e execer, node *models.MinimapNode) error {
	if node.ID == "" {
		node.ID = uuid.NewString()
	}

	_, err := e.Exec(
		`INSERT INTO minimap_nodes (id, site, survey_node, node_number, tiles_id, tiles_name, floor)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		node.ID,
		node.SiteID,
		node.SurveyNodeID,
		node.NodeNumber,
		node.TilesID,
		node.TilesName,
		node.Floor,
	)
	if err != nil {
		return fmt.Errorf("failed to insert minimap node: %w", err)
	}

	return nil
}

func insertMinimapConversion(e execer, conv *models.MinimapConversion) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}

	_, err := e.Exec(
		`INSERT INTO minimap_conversions (id, site, survey_node, minimap_node, floor, x, y,
			x_scale, y_scale, rotation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conv.ID,
		conv.SiteID,
		conv.SurveyNodeID,
		conv.MinimapNodeID,
		conv.Floor,
		conv.X,
		conv.Y,
		conv.XScale,
		conv.YScale,
		conv.Rotation,
	)
	if err != nil {
		return fmt.Errorf("failed to insert minimap conversion: %w", err)
	}

	return nil
}

func ensureMinimapImage(e execer, siteID string, floor int) (bool, error) {
	res, err := e.Exec(
		`INSERT INTO minimap_images (id, site, floor, floor_name, floor_tag,
			x_pixel_offset, y_pixel_offset, x_scale, y_scale, xy_flipped)
		VALUES (?, ?, ?, ?, ?, 0, 0, 1, 1, 0)
		ON CONFLICT (site, floor) DO NOTHING`,
		uuid.NewString(),
		siteID,
		floor,
		fmt.Sprintf("Level %d", floor),
		fmt.Sprintf("%d", floor),
	)
	if err != nil {
		return false, fmt.Errorf("failed to ensure minimap image: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return rows > 0, nil
}

func ensureSiteSettings(e execer, settings *models.SiteSettings) (bool, error) {
	if settings.ID == "" {
		settings.ID = uuid.NewString()
	}
	if settings.CreatedAt.IsZero() {
		settings.CreatedAt = time.Now()
	}

	enableJSON, err := json.Marshal(settings.Enable)
	if err != nil {
		return false, fmt.Errorf("failed to marshal feature toggles: %w", err)
	}
	initialJSON, err := json.Marshal(settings.InitialSettings)
	if err != nil {
		return false, fmt.Errorf("failed to marshal initial settings: %w", err)
	}

	res, err := e.Exec(
		`INSERT INTO site_settings (id, site, enable, initial_settings, title, subtitle,
			mouse_view_mode, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (site) DO NOTHING`,
		settings.ID,
		settings.SiteID,
		string(enableJSON),
		string(initialJSON),
		settings.Title,
		settings.Subtitle,
		settings.MouseViewMode,
		settings.CreatedAt.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to ensure site settings: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return rows > 0, nil
}

// EnsureMinimapImage creates the floor registry entry for (site, floor) if it
// does not exist yet. Safe to call concurrently: the UNIQUE(site, floor)
// index plus ON CONFLICT DO NOTHING makes the insert atomic.
func (c *Client) EnsureMinimapImage(siteID string, floor int) (bool, error) {
	created, err := ensureMinimapImage(c.db, siteID, floor)
	if err != nil {
		return false, err
	}
	if created {
		logger.Debug("Floor registry entry created",
			zap.String("site_id", siteID),
			zap.Int("floor", floor),
		)
	}
	return created, nil
}

// EnsureSiteSettings inserts the settings record unless one already exists
// for the site.
func (c *Client) EnsureSiteSettings(settings *models.SiteSettings) (bool, error) {
	return ensureSiteSettings(c.db, settings)
}

func (c *Client) GetSiteSettings(siteID string) (*models.SiteSettings, error) {
	var s models.SiteSettings
	var enableJSON, initialJSON string
	var createdAt int64

	err := c.db.QueryRow(
		`SELECT id, site, enable, initial_settings, title, subtitle, mouse_view_mode, created_at
		FROM site_settings WHERE site = ?`, siteID,
	).Scan(&s.ID, &s.SiteID, &enableJSON, &initialJSON, &s.Title, &s.Subtitle, &s.MouseViewMode, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get site settings: %w", err)
	}

	if err := json.Unmarshal([]byte(enableJSON), &s.Enable); err != nil {
		return nil, fmt.Errorf("failed to unmarshal feature toggles: %w", err)
	}
	if err := json.Unmarshal([]byte(initialJSON), &s.InitialSettings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal initial settings: %w", err)
	}

	s.CreatedAt = time.Unix(createdAt, 0)
	return &s, nil
}

func (c *Client) GetMinimapConversionBySurveyNode(surveyNodeID string) (*models.MinimapConversion, error) {
	var conv models.MinimapConversion

	err := c.db.QueryRow(
		`SELECT id, site, survey_node, minimap_node, floor, x, y, x_scale, y_scale, rotation
		FROM minimap_conversions WHERE survey_node = ?`, surveyNodeID,
	).Scan(&conv.ID, &conv.SiteID, &conv.SurveyNodeID, &conv.MinimapNodeID, &conv.Floor,
		&conv.X, &conv.Y, &conv.XScale, &conv.YScale, &conv.Rotation)
	if err != nil {
		return nil, fmt.Errorf("failed to get minimap conversion: %w", err)
	}

	return &conv, nil
}

func (c *Client) CountSurveyNodes(siteID string) (int, error) {
	var count int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM survey_nodes WHERE site = ?`, siteID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count survey nodes: %w", err)
	}
	return count, nil
}

func (c *Client) CountMinimapNodes(siteID string) (int, error) {
	var count int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM minimap_nodes WHERE site = ?`, siteID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count minimap nodes: %w", err)
	}
	return count, nil
}

func (c *Client) CountMinimapConversions(siteID string) (int, error) {
	var count int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM minimap_conversions WHERE site = ?`, siteID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count minimap conversions: %w", err)
	}
	return count, nil
}

func (c *Client) CountMinimapImages(siteID string) (int, error) {
	var count int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM minimap_images WHERE site = ?`, siteID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count minimap images: %w", err)
	}
	return count, nil
}

// FloorPopulated reports whether any minimap node exists on the given floor.
func (c *Client) FloorPopulated(siteID string, floor int) (bool, error) {
	var count int
	err := c.db.QueryRow(
		`SELECT COUNT(*) FROM minimap_nodes WHERE site = ? AND floor = ?`, siteID, floor,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check floor population: %w", err)
	}
	return count > 0, nil
}

// SitePopulated reports whether any survey node has been ingested for the site.
func (c *Client) SitePopulated(siteID string) (bool, error) {
	count, err := c.CountSurveyNodes(siteID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (c *Client) UpdateNodeCoordinates(surveyNodeID string, x, y float64) error {
	res, err := c.db.Exec(
		`UPDATE minimap_conversions SET x = ?, y = ? WHERE survey_node = ?`,
		x, y, surveyNodeID,
	)
	if err != nil {
		return fmt.Errorf("failed to update node coordinates: %w", err)
	}
	return requireRow(res, "minimap conversion", surveyNodeID)
}

func (c *Client) UpdateNodeRotation(surveyNodeID string, rotation float64) error {
	res, err := c.db.Exec(
		`UPDATE minimap_conversions SET rotation = ? WHERE survey_node = ?`,
		rotation, surveyNodeID,
	)
	if err != nil {
		return fmt.Errorf("failed to update node rotation: %w", err)
	}
	return requireRow(res, "minimap conversion", surveyNodeID)
}

func (c *Client) UpdateTileName(surveyNodeID, tileName string) error {
	res, err := c.db.Exec(
		`UPDATE survey_nodes SET tiles_name = ? WHERE id = ?`,
		tileName, surveyNodeID,
	)
	if err != nil {
		return fmt.Errorf("failed to update tile name: %w", err)
	}
	return requireRow(res, "survey node", surveyNodeID)
}

func (c *Client) UpdateFloorDetails(siteID string, floor int, floorName, floorTag string) error {
	res, err := c.db.Exec(
		`UPDATE minimap_images SET floor_name = ?, floor_tag = ? WHERE site = ? AND floor = ?`,
		floorName, floorTag, siteID, floor,
	)
	if err != nil {
		return fmt.Errorf("failed to update floor details: %w", err)
	}
	return requireRow(res, "minimap image", fmt.Sprintf("%s/%d", siteID, floor))
}

// AttachFloorImage records the uploaded floor-plan image on the registry
// entry, creating the entry with registry defaults when it is missing.
func (c *Client) AttachFloorImage(siteID string, floor int, imageURL string, width, height int) error {
	_, err := c.db.Exec(
		`INSERT INTO minimap_images (id, site, floor, floor_name, floor_tag, image_url,
			image_large_url, img_width, img_height, x_pixel_offset, y_pixel_offset,
			x_scale, y_scale, xy_flipped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 1, 1, 0)
		ON CONFLICT (site, floor) DO UPDATE SET
			image_url = excluded.image_url,
			image_large_url = excluded.image_large_url,
			img_width = excluded.img_width,
			img_height = excluded.img_height`,
		uuid.NewString(),
		siteID,
		floor,
		fmt.Sprintf("Level %d", floor),
		fmt.Sprintf("%d", floor),
		imageURL,
		imageURL,
		width,
		height,
	)
	if err != nil {
		return fmt.Errorf("failed to attach floor image: %w", err)
	}

	logger.Info("Floor image attached",
		zap.String("site_id", siteID),
		zap.Int("floor", floor),
		zap.String("image_url", imageURL),
	)
	return nil
}

func (c *Client) GetMinimapImage(siteID string, floor int) (*models.MinimapImage, error) {
	var img models.MinimapImage
	var imageURL, imageLargeURL sql.NullString
	var width, height sql.NullInt64
	var flipped int

	err := c.db.QueryRow(
		`SELECT id, site, floor, floor_name, floor_tag, image_url, image_large_url,
			img_width, img_height, x_pixel_offset, y_pixel_offset, x_scale, y_scale, xy_flipped
		FROM minimap_images WHERE site = ? AND floor = ?`, siteID, floor,
	).Scan(&img.ID, &img.SiteID, &img.Floor, &img.FloorName, &img.FloorTag,
		&imageURL, &imageLargeURL, &width, &height,
		&img.XPixelOffset, &img.YPixelOffset, &img.XScale, &img.YScale, &flipped)
	if err != nil {
		return nil, fmt.Errorf("failed to get minimap image: %w", err)
	}

	img.ImageURL = imageURL.String
	img.ImageLargeURL = imageLargeURL.String
	img.ImgWidth = int(width.Int64)
	img.ImgHeight = int(height.Int64)
	img.XYFlipped = flipped != 0

	return &img, nil
}

// GetEmptyFloors lists registered floors that have no minimap nodes yet.
func (c *Client) GetEmptyFloors(siteID string) ([]int, error) {
	rows, err := c.db.Query(
		`SELECT mi.floor FROM minimap_images mi
		WHERE mi.site = ?
		AND NOT EXISTS (
			SELECT 1 FROM minimap_nodes mn WHERE mn.site = mi.site AND mn.floor = mi.floor
		)
		ORDER BY mi.floor`, siteID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get empty floors: %w", err)
	}
	defer rows.Close()

	var floors []int
	for rows.Next() {
		var floor int
		if err := rows.Scan(&floor); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		floors = append(floors, floor)
	}

	return floors, rows.Err()
}

func requireRow(res sql.Result, kind, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s not found: %s", kind, id)
	}
	return nil
}

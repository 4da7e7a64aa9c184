package ingestion

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/sitetour/backend/pkg/logger"
)

const (
	appFilesDir   = "app-files"
	sceneGraphRel = "app-files/data.js"
	tilesRel      = "app-files/tiles"
)

// Inspector validates the uploaded tour package against the metadata table
// before anything is extracted, then unpacks it into a scratch directory.
type Inspector struct {
	scratchRoot string
}

func NewInspector(scratchRoot string) *Inspector {
	return &Inspector{scratchRoot: scratchRoot}
}

// Inspect lists the archive entries and verifies the expected layout:
// an app-files directory, the scene-graph script inside it, and one entry
// per referenced metadata file name. Nothing is extracted here.
func (i *Inspector) Inspect(archivePath string, records []MetadataRecord) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("%w: cannot open archive: %v", ErrStructureInvalid, err)
	}
	defer r.Close()

	appFilesFound := false
	sceneGraphFound := false
	for _, f := range r.File {
		if f.FileInfo().IsDir() && strings.HasSuffix(strings.TrimSuffix(f.Name, "/"), appFilesDir) {
			appFilesFound = true
		}
		if strings.Contains(f.Name, sceneGraphRel) {
			sceneGraphFound = true
		}
	}

	if !appFilesFound {
		return fmt.Errorf("%w: missing %s directory", ErrStructureInvalid, appFilesDir)
	}
	if !sceneGraphFound {
		return fmt.Errorf("%w: missing scene-graph script %s", ErrStructureInvalid, sceneGraphRel)
	}

	for _, rec := range records {
		found := false
		for _, f := range r.File {
			if strings.Contains(f.Name, rec.FileName) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: referenced image %q not present in archive",
				ErrStructureInvalid, rec.FileName)
		}
	}

	return nil
}

// Extract unpacks the full archive under <scratchRoot>/<uploadID> and
// returns that directory. The caller owns cleanup on every path.
func (i *Inspector) Extract(archivePath, uploadID string) (string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", fmt.Errorf("%w: cannot open archive: %v", ErrStructureInvalid, err)
	}
	defer r.Close()

	dest := filepath.Join(i.scratchRoot, uploadID)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", fmt.Errorf("failed to create scratch directory: %w", err)
	}

	for _, f := range r.File {
		if err := extractEntry(f, dest); err != nil {
			return dest, err
		}
	}

	logger.Info("Archive extracted",
		zap.String("archive", archivePath),
		zap.String("dest", dest),
		zap.Int("entries", len(r.File)),
	)

	return dest, nil
}

func extractEntry(f *zip.File, dest string) error {
	// Reject entries that would escape the scratch directory.
	target := filepath.Join(dest, filepath.Clean(f.Name))
	if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
		return fmt.Errorf("%w: entry %q escapes extraction root", ErrStructureInvalid, f.Name)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", f.Name, err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open archive entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}

	return nil
}

// SceneGraphPath locates the scene-graph script inside an extracted tree.
// Exporters sometimes nest app-files one level down, so both layouts are
// accepted.
func SceneGraphPath(extractedDir string) (string, error) {
	direct := filepath.Join(extractedDir, filepath.FromSlash(sceneGraphRel))
	if _, err := os.Stat(direct); err == nil {
		return direct, nil
	}

	entries, err := os.ReadDir(extractedDir)
	if err != nil {
		return "", fmt.Errorf("%w: cannot read extracted directory: %v", ErrStructureInvalid, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		nested := filepath.Join(extractedDir, entry.Name(), filepath.FromSlash(sceneGraphRel))
		if _, err := os.Stat(nested); err == nil {
			return nested, nil
		}
	}

	return "", fmt.Errorf("%w: scene-graph script not found under %s", ErrStructureInvalid, extractedDir)
}

// TilesPath returns the tile-pyramid directory next to the located
// scene-graph script.
func TilesPath(sceneGraphPath string) string {
	return filepath.Join(filepath.Dir(sceneGraphPath), "tiles")
}

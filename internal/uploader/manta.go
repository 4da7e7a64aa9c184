package uploader

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sitetour/backend/internal/metrics"
	"github.com/sitetour/backend/pkg/circuitbreaker"
	"github.com/sitetour/backend/pkg/logger"
	"github.com/sitetour/backend/pkg/retry"
)

// Config carries everything the sync utility needs. Passed in explicitly:
// the uploader never reads process environment itself.
type Config struct {
	Host        string
	Account     string
	SubUser     string
	Roles       string
	KeyID       string
	RootFolder  string
	Timeout     time.Duration
	MaxAttempts int
}

// Runner abstracts command execution so tests never shell out.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s failed: %w (output: %s)", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

var tagSanitizer = regexp.MustCompile(`[^a-zA-Z0-9-]`)

// SanitizeTag strips everything outside [a-zA-Z0-9-] from a site tag before
// it is used as an object-storage prefix.
func SanitizeTag(tag string) string {
	return tagSanitizer.ReplaceAllString(tag, "")
}

// Syncer drives the external storage-sync utility. The utility reports
// success or failure only; there are no partial-object semantics, which is
// why the pipeline uploads before any database commit.
type Syncer struct {
	cfg     Config
	runner  Runner
	breaker *circuitbreaker.CircuitBreaker
}

func New(cfg Config) *Syncer {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}

	return &Syncer{
		cfg:    cfg,
		runner: execRunner{},
		breaker: circuitbreaker.NewCircuitBreaker("storage-sync", circuitbreaker.Config{
			FailureThreshold: 3,
			Timeout:          2 * time.Minute,
			Logger:           logger.Log,
		}),
	}
}

// NewWithRunner is the test constructor.
func NewWithRunner(cfg Config, runner Runner) *Syncer {
	s := New(cfg)
	s.runner = runner
	return s
}

// ObjectBaseURL is the public base URL tiles are served from after a sync
// for the given (already sanitized) site tag.
func (s *Syncer) ObjectBaseURL(tag string) string {
	return fmt.Sprintf("%s/%s/%s/",
		strings.TrimSuffix(s.cfg.Host, "/"),
		strings.Trim(s.cfg.RootFolder, "/"),
		tag,
	)
}

// SyncTiles pushes the extracted tile tree to object storage under the
// site's sanitized tag. Transient failures are retried with bounded backoff;
// repeated failures open the circuit so a dead storage host fails fast.
func (s *Syncer) SyncTiles(ctx context.Context, tilesDir, siteTag string) error {
	tag := SanitizeTag(siteTag)
	dest := fmt.Sprintf("/%s/%s", strings.Trim(s.cfg.RootFolder, "/"), tag)

	args := []string{
		tilesDir,
		dest,
		"--account=" + s.cfg.Account,
		"--user=" + s.cfg.SubUser,
		"--role=" + s.cfg.Roles,
		"--keyId=" + s.cfg.KeyID,
		"--url=" + s.cfg.Host,
	}

	logger.Info("Syncing tiles to object storage",
		zap.String("source", tilesDir),
		zap.String("dest", dest),
	)

	attempt := 0
	err := retry.Do(ctx, retry.Config{
		MaxAttempts:  s.cfg.MaxAttempts,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Logger:       logger.Log,
	}, func() error {
		attempt++
		if attempt > 1 {
			metrics.UploadRetries.Inc()
		}
		return s.breaker.Execute(ctx, func() error {
			runCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
			defer cancel()
			return s.runner.Run(runCtx, "manta-sync", args...)
		})
	})
	if err != nil {
		return fmt.Errorf("tile sync to %s failed: %w", dest, err)
	}

	logger.Info("Tile sync complete", zap.String("dest", dest))
	return nil
}

// PutFile uploads a single file (the floor-plan image flow) and returns its
// public URL.
func (s *Syncer) PutFile(ctx context.Context, path string) (string, error) {
	dest := fmt.Sprintf("/%s/%s", strings.Trim(s.cfg.RootFolder, "/"), filepath.Base(path))

	args := []string{
		"-f", path,
		dest,
		"--account=" + s.cfg.Account,
		"--user=" + s.cfg.SubUser,
		"--keyId=" + s.cfg.KeyID,
		"--role=" + s.cfg.Roles,
		"--url=" + s.cfg.Host,
	}

	err := retry.Do(ctx, retry.Config{
		MaxAttempts:  s.cfg.MaxAttempts,
		InitialDelay: time.Second,
		MaxDelay:     15 * time.Second,
		Logger:       logger.Log,
	}, func() error {
		return s.breaker.Execute(ctx, func() error {
			runCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
			defer cancel()
			return s.runner.Run(runCtx, "mput", args...)
		})
	})
	if err != nil {
		return "", fmt.Errorf("file upload of %s failed: %w", path, err)
	}

	url := fmt.Sprintf("%s%s", strings.TrimSuffix(s.cfg.Host, "/"), dest)
	logger.Info("File uploaded", zap.String("path", path), zap.String("url", url))
	return url, nil
}

// Package sweeper deletes uploaded objects whose report was never persisted.
//
// Submission records every stored object before attempting the database
// write; the write claims those records when it commits. Records that stay
// behind belong to submissions that died between upload and persistence, so
// after a grace period their objects are garbage.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raahi-app/raahi/internal/metrics"
	"github.com/raahi-app/raahi/internal/repository"
	"github.com/raahi-app/raahi/internal/storage"
)

// AssetStore is the slice of the repository the sweeper needs.
type AssetStore interface {
	ListOrphanedAssets(ctx context.Context, age time.Duration, limit int) ([]repository.UploadedAsset, error)
	DeleteAssetRecord(ctx context.Context, id uuid.UUID) error
}

// Config controls the sweep schedule.
type Config struct {
	PollInterval    time.Duration // How often to look for orphans
	MinAge          time.Duration // Grace period before an unclaimed asset counts as orphaned
	BatchSize       int           // Maximum orphans handled per sweep
	ShutdownTimeout time.Duration // How long Stop waits for an in-flight sweep
}

// Validate checks the configuration for values that would make the sweeper
// spin or never fire.
func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.PollInterval)
	}
	if c.MinAge <= 0 {
		return fmt.Errorf("min age must be positive, got %v", c.MinAge)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got %v", c.ShutdownTimeout)
	}
	return nil
}

// DefaultConfig returns the production schedule: hourly sweeps of assets
// older than 24 hours.
func DefaultConfig() Config {
	return Config{
		PollInterval:    time.Hour,
		MinAge:          24 * time.Hour,
		BatchSize:       100,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Sweeper periodically removes orphaned uploads.
type Sweeper struct {
	store  AssetStore
	files  storage.Storage
	config Config
	logger *slog.Logger

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// New creates a Sweeper. It must be started with Start and stopped with Stop.
func New(store AssetStore, files storage.Storage, config Config, logger *slog.Logger) (*Sweeper, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Sweeper{
		store:  store,
		files:  files,
		config: config,
		logger: logger.With("component", "sweeper"),
		stopCh: make(chan struct{}),
	}, nil
}

// Start launches the sweep loop. An immediate first sweep catches orphans
// left over from before the last restart.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("Sweeper started",
		"poll_interval", s.config.PollInterval,
		"min_age", s.config.MinAge,
	)
}

// Stop signals the loop to exit and waits up to ShutdownTimeout.
func (s *Sweeper) Stop() {
	close(s.stopCh)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Sweeper stopped gracefully")
	case <-time.After(s.config.ShutdownTimeout):
		s.logger.Warn("Sweeper shutdown timeout exceeded")
	}
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	if err := s.Sweep(ctx); err != nil {
		s.logger.Error("Initial sweep failed", "error", err)
	}

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error("Sweep failed", "error", err)
			}
		}
	}
}

// Sweep runs a single pass: list orphans past the grace period, delete each
// object, then drop its record. The record only goes once the object is
// confirmed gone, so a crash mid-sweep leaves the orphan for the next pass.
func (s *Sweeper) Sweep(ctx context.Context) error {
	orphans, err := s.store.ListOrphanedAssets(ctx, s.config.MinAge, s.config.BatchSize)
	if err != nil {
		return fmt.Errorf("list orphaned assets: %w", err)
	}
	if len(orphans) == 0 {
		return nil
	}

	s.logger.Info("Sweeping orphaned assets", "count", len(orphans))

	var swept int
	var errs []error
	for _, orphan := range orphans {
		if err := s.sweepOne(ctx, orphan); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", orphan.StorageKey, err))
			continue
		}
		swept++
		metrics.OrphanedAssetsSwept.Inc()
	}

	if swept > 0 {
		s.logger.Info("Swept orphaned assets", "swept", swept, "failed", len(errs))
	}
	return errors.Join(errs...)
}

func (s *Sweeper) sweepOne(ctx context.Context, orphan repository.UploadedAsset) error {
	err := s.files.Delete(ctx, orphan.StorageKey)
	if err != nil && !storage.IsNotFound(err) {
		return fmt.Errorf("delete object: %w", err)
	}

	if err := s.store.DeleteAssetRecord(ctx, orphan.ID); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}

	s.logger.Debug("Removed orphaned asset",
		"key", orphan.StorageKey,
		"report_id", orphan.ReportID,
		"age", time.Since(orphan.CreatedAt).Round(time.Second),
	)
	return nil
}

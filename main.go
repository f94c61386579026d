package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"olx-scraper/config"
	"olx-scraper/models"
	"olx-scraper/scraper/olx"
	"olx-scraper/services"
	"olx-scraper/storage"
	"olx-scraper/utils"
)

func main() {
	cfg := config.Load()
	runID := uuid.NewString()[:8]
	logger := utils.NewLogger(cfg.LogLevel).With("run", runID)

	logger.Info("=== OLX Apartment Scraper starting ===")
	logger.Info("Config — max pages: %d | delay: %v–%v | retries: %d | concurrency: %d",
		cfg.MaxPages, cfg.MinDelay, cfg.MaxDelay, cfg.MaxRetries, cfg.MaxConcurrency)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache, err := storage.NewCache(cfg.CachePath, logger)
	if err != nil {
		logger.Error("Failed to open cache: %v", err)
		os.Exit(1)
	}

	// The Postgres mirror is optional; the CSV cache is the source of truth,
	// so a missing database degrades to a warning.
	var pgWriter *storage.PostgresWriter
	if cfg.PostgresEnabled {
		pgWriter, err = storage.NewPostgresWriter(cfg.DSN())
		if err != nil {
			logger.Warn("PostgreSQL unavailable, continuing without mirror: %v", err)
			pgWriter = nil
		} else {
			defer pgWriter.Close()
		}
	}

	if cfg.ResetCache {
		if err := cache.Clear(); err != nil {
			logger.Error("Failed to reset cache: %v", err)
			os.Exit(1)
		}
		if pgWriter != nil {
			if err := pgWriter.Clear(); err != nil {
				logger.Warn("Failed to reset PostgreSQL mirror: %v", err)
			}
		}
		logger.Info("Cache reset, starting from an empty set")
	}

	// Snapshot before the run; the final new-record diff goes against this,
	// not against the incrementally updated cache.
	snapshot := cache.Load()
	logger.Info("Loaded %d apartments from cache", len(snapshot))

	scraper := olx.New(cfg, logger)

	sink := olx.PageSinkFunc(func(pageNum int, apartments []*models.Apartment) {
		if err := cache.Save(apartments, true); err != nil {
			logger.Error("Incremental save of page %d failed: %v", pageNum, err)
		} else {
			logger.Debug("Saved page %d apartments incrementally", pageNum)
		}
		if pgWriter != nil {
			if err := pgWriter.Write(apartments); err != nil {
				logger.Error("PostgreSQL mirror write failed: %v", err)
			}
		}
	})

	apartments, err := scraper.Scrape(ctx, sink)
	if err != nil {
		logger.Error("Scrape produced no records: %v", err)
		os.Exit(1)
	}

	insightSvc := services.NewInsightService(logger)

	newApartments := cache.DiffNew(apartments, snapshot)
	logger.Info("Found %d new apartments", len(newApartments))

	if cfg.SaveNewOnly {
		if len(newApartments) > 0 {
			insightSvc.PrintApartments("🆕 NEW APARTMENTS", newApartments)
		} else {
			fmt.Println("\nNo new apartments found")
		}
	} else {
		insightSvc.PrintApartments("🏠 SCRAPED APARTMENTS", apartments)
	}

	if districts := insightSvc.TopDistricts(apartments); len(districts) > 0 {
		logger.Info("Busiest districts this run: %s", strings.Join(districts, ", "))
	}

	// Statistics come from the PostgreSQL mirror when it is around, since
	// that is the queryable copy; otherwise straight from the cache file.
	stats := cache.Stats()
	if pgWriter != nil {
		if mirrored, err := pgWriter.FetchAll(); err != nil {
			logger.Warn("PostgreSQL mirror read failed, using cache statistics: %v", err)
		} else {
			stats = storage.ComputeStatistics(mirrored)
		}
	}
	insightSvc.PrintStatistics(stats)

	exportPath := filepath.Join(cfg.ExportDir,
		fmt.Sprintf("apartments_%s_%s.csv", time.Now().Format("20060102_150405"), runID))
	if err := cache.ExportCSV(exportPath); err != nil {
		logger.Error("Export failed: %v", err)
	}

	fmt.Printf("  Done. Cache → %s | Export → %s\n\n", cfg.CachePath, exportPath)
}

package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"olx-scraper/models"
	"olx-scraper/utils"
)

// Cache persists the full known apartment set as one CSV file keyed by
// post_id. Reads fail soft: a missing or corrupted cache never blocks a
// scrape, it just means "nothing known yet". Writes always go through a
// temp file + rename so a crash cannot leave a half-written cache behind.
type Cache struct {
	mu     sync.Mutex
	path   string
	logger *utils.Logger
}

// Statistics aggregates an apartment dataset. Price stats cover only records
// with a known (non-zero) price.
type Statistics struct {
	Total      int
	AvgPrice   float64
	MinPrice   float64
	MaxPrice   float64
	ByLocation map[string]int
}

// NewCache creates the cache file with its header row if it does not exist
// yet. Intermediate directories are created automatically.
func NewCache(path string, logger *utils.Logger) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("cache: create dir: %w", err)
	}

	c := &Cache{path: path, logger: logger}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := c.write(nil); err != nil {
			return nil, err
		}
		logger.Info("[cache] Created new cache file: %s", path)
	}

	return c, nil
}

// Load returns every cached apartment. Any read or parse error degrades to
// an empty set; individual malformed rows are skipped with a warning.
func (c *Cache) Load() []*models.Apartment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load()
}

func (c *Cache) load() []*models.Apartment {
	f, err := os.Open(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Error("[cache] Open failed, treating cache as empty: %v", err)
		}
		return nil
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		c.logger.Error("[cache] Read failed, treating cache as empty: %v", err)
		return nil
	}
	if len(rows) <= 1 {
		return nil
	}

	apartments := make([]*models.Apartment, 0, len(rows)-1)
	for i, row := range rows[1:] {
		apt, err := models.FromRow(row)
		if err != nil {
			c.logger.Warn("[cache] Skipping malformed row %d: %v", i+2, err)
			continue
		}
		apartments = append(apartments, apt)
	}
	return apartments
}

// Save persists apartments. With appendExisting=false the cache is fully
// replaced. With appendExisting=true the existing set is loaded and each
// incoming apartment overwrites any cached entry with the same post_id
// (last write wins, field for field), then the union is written back.
func (c *Cache) Save(apartments []*models.Apartment, appendExisting bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if appendExisting {
		existing := c.load()
		index := make(map[string]int, len(existing))
		for i, apt := range existing {
			index[apt.PostID] = i
		}

		merged := existing
		for _, apt := range apartments {
			if i, ok := index[apt.PostID]; ok {
				merged[i] = apt
			} else {
				index[apt.PostID] = len(merged)
				merged = append(merged, apt)
			}
		}
		apartments = merged
	}

	if err := c.write(apartments); err != nil {
		return err
	}
	c.logger.Debug("[cache] Saved %d apartments", len(apartments))
	return nil
}

// write replaces the cache file atomically.
func (c *Cache) write(apartments []*models.Apartment) error {
	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, ".cache-*.csv")
	if err != nil {
		return fmt.Errorf("cache: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	w := csv.NewWriter(tmp)
	if err := w.Write(models.CSVHeader); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("cache: write header: %w", err)
	}
	for _, apt := range apartments {
		if err := w.Write(apt.ToRow()); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("cache: write row %q: %w", apt.PostID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("cache: flush: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("cache: close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("cache: replace %q: %w", c.path, err)
	}
	return nil
}

// DiffNew returns the apartments from current whose post_id is absent from
// against. A nil or empty against means nothing is known yet, so every record
// in current is new. This is a pure identity set-difference, not a content
// diff; callers diffing against the persisted set pass Load() explicitly,
// captured before any incremental save mutates the file.
func (c *Cache) DiffNew(current, against []*models.Apartment) []*models.Apartment {
	known := make(map[string]struct{}, len(against))
	for _, apt := range against {
		known[apt.PostID] = struct{}{}
	}

	var fresh []*models.Apartment
	for _, apt := range current {
		if _, ok := known[apt.PostID]; !ok {
			fresh = append(fresh, apt)
		}
	}
	return fresh
}

// Stats computes aggregates over the cached dataset.
func (c *Cache) Stats() *Statistics {
	return ComputeStatistics(c.Load())
}

// ComputeStatistics aggregates any apartment set, whether it came from the
// cache file or the PostgreSQL mirror.
func ComputeStatistics(apartments []*models.Apartment) *Statistics {
	stats := &Statistics{
		Total:      len(apartments),
		ByLocation: make(map[string]int),
	}

	var priced int
	var total float64
	for _, apt := range apartments {
		if apt.Location != "" {
			stats.ByLocation[apt.Location]++
		}
		if apt.Price <= 0 {
			continue
		}
		priced++
		total += apt.Price
		if priced == 1 || apt.Price < stats.MinPrice {
			stats.MinPrice = apt.Price
		}
		if apt.Price > stats.MaxPrice {
			stats.MaxPrice = apt.Price
		}
	}
	if priced > 0 {
		stats.AvgPrice = total / float64(priced)
	}

	return stats
}

// ExportCSV copies the cached dataset to a standalone CSV file.
func (c *Cache) ExportCSV(path string) error {
	apartments := c.Load()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("export: create dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create file %q: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(models.CSVHeader); err != nil {
		return fmt.Errorf("export: write header: %w", err)
	}
	for _, apt := range apartments {
		if err := w.Write(apt.ToRow()); err != nil {
			return fmt.Errorf("export: write row %q: %w", apt.PostID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("export: flush: %w", err)
	}

	c.logger.Info("[cache] Exported %d apartments to %s", len(apartments), path)
	return nil
}

// Clear resets the cache to an empty set. Removal of records is always this
// explicit operation; nothing in the pipeline deletes automatically.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.write(nil)
}

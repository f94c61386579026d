package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"olx-scraper/models"
	"olx-scraper/utils"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache", "apartments_cache.csv")
	c, err := NewCache(path, utils.NewLogger("error"))
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	return c
}

func apt(id, title string, price float64) *models.Apartment {
	return &models.Apartment{
		PostID:    id,
		Title:     title,
		Price:     price,
		Currency:  "UAH",
		Photos:    []string{},
		Tags:      []string{},
		ScrapedAt: time.Date(2025, 10, 1, 10, 0, 0, 0, time.UTC),
	}
}

func ids(apartments []*models.Apartment) []string {
	out := make([]string, len(apartments))
	for i, a := range apartments {
		out[i] = a.PostID
	}
	return out
}

func TestCacheFirstRunIsEmpty(t *testing.T) {
	c := newTestCache(t)
	if got := c.Load(); len(got) != 0 {
		t.Errorf("fresh cache: got %d apartments, want 0", len(got))
	}
}

func TestCacheSaveLoadRoundTrip(t *testing.T) {
	c := newTestCache(t)

	in := []*models.Apartment{apt("1", "One", 100), apt("2", "Two", 200)}
	if err := c.Save(in, false); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got := c.Load()
	if len(got) != 2 {
		t.Fatalf("Load: got %d apartments, want 2", len(got))
	}
	if got[0].PostID != "1" || got[1].PostID != "2" {
		t.Errorf("Load order: got %v, want [1 2]", ids(got))
	}
}

func TestCacheAppendMergesById(t *testing.T) {
	c := newTestCache(t)

	if err := c.Save([]*models.Apartment{apt("1", "One", 100), apt("2", "Two", 200)}, false); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// "2" collides and must be fully replaced; "3" is new.
	update := []*models.Apartment{apt("2", "Two updated", 250), apt("3", "Three", 300)}
	if err := c.Save(update, true); err != nil {
		t.Fatalf("Save append: %v", err)
	}

	got := c.Load()
	if len(got) != 3 {
		t.Fatalf("after append: got %d apartments, want 3", len(got))
	}
	if got[1].Title != "Two updated" || got[1].Price != 250 {
		t.Errorf("collision entry not replaced: %+v", got[1])
	}

	// Idempotence: saving the same batch again changes nothing.
	if err := c.Save(update, true); err != nil {
		t.Fatalf("Save append twice: %v", err)
	}
	again := c.Load()
	if len(again) != 3 {
		t.Errorf("append is not idempotent: got %d apartments, want 3", len(again))
	}
}

func TestCacheIDsStayUnique(t *testing.T) {
	c := newTestCache(t)

	for i := 0; i < 3; i++ {
		if err := c.Save([]*models.Apartment{apt("7", "Seven", 700)}, true); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	got := c.Load()
	seen := make(map[string]struct{})
	for _, a := range got {
		if _, dup := seen[a.PostID]; dup {
			t.Fatalf("duplicate post_id %q in cache", a.PostID)
		}
		seen[a.PostID] = struct{}{}
	}
	if len(seen) != len(got) {
		t.Errorf("distinct ids %d != records %d", len(seen), len(got))
	}
}

func TestCacheDiffNew(t *testing.T) {
	c := newTestCache(t)

	cached := []*models.Apartment{apt("1", "One", 100), apt("2", "Two", 200)}
	batch := []*models.Apartment{apt("2", "Two again", 999), apt("3", "Three", 300)}

	fresh := c.DiffNew(batch, cached)
	if len(fresh) != 1 || fresh[0].PostID != "3" {
		t.Errorf("DiffNew: got %v, want [3]", ids(fresh))
	}

	// Deterministic: same inputs, same output.
	again := c.DiffNew(batch, cached)
	if len(again) != 1 || again[0].PostID != "3" {
		t.Errorf("DiffNew second run: got %v, want [3]", ids(again))
	}
}

func TestCacheDiffNewAgainstPersistedSet(t *testing.T) {
	c := newTestCache(t)

	if err := c.Save([]*models.Apartment{apt("1", "One", 100)}, false); err != nil {
		t.Fatalf("Save: %v", err)
	}

	fresh := c.DiffNew([]*models.Apartment{apt("1", "One", 100), apt("9", "Nine", 900)}, c.Load())
	if len(fresh) != 1 || fresh[0].PostID != "9" {
		t.Errorf("DiffNew against cache: got %v, want [9]", ids(fresh))
	}
}

// On a first run the pre-run snapshot is empty, and incremental saves fill
// the cache before the final diff happens. The diff must still report every
// scraped record as new.
func TestCacheDiffNewFirstRunReportsEverything(t *testing.T) {
	c := newTestCache(t)

	snapshot := c.Load()
	if len(snapshot) != 0 {
		t.Fatalf("fresh cache snapshot: got %d apartments, want 0", len(snapshot))
	}

	batch := []*models.Apartment{apt("1", "One", 100), apt("2", "Two", 200)}
	if err := c.Save(batch, true); err != nil {
		t.Fatalf("Save: %v", err)
	}

	fresh := c.DiffNew(batch, snapshot)
	if len(fresh) != 2 {
		t.Fatalf("got %d new apartments, want 2 (snapshot was empty)", len(fresh))
	}
	if fresh[0].PostID != "1" || fresh[1].PostID != "2" {
		t.Errorf("new apartments: got %v, want [1 2]", ids(fresh))
	}
}

func TestCacheLoadFailsSoftOnCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.csv")
	if err := os.WriteFile(path, []byte("\"unterminated quote\nnot,a,valid,csv"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c, err := NewCache(path, utils.NewLogger("error"))
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	if got := c.Load(); got != nil {
		t.Errorf("corrupt cache: got %d apartments, want empty", len(got))
	}
}

func TestCacheStats(t *testing.T) {
	c := newTestCache(t)

	a1 := apt("1", "One", 100)
	a1.Location = "Дніпро, Центральний"
	a2 := apt("2", "Two", 300)
	a2.Location = "Дніпро, Соборний"
	a3 := apt("3", "Unknown price", 0) // sentinel, excluded from price stats
	a3.Location = "Дніпро, Центральний"

	if err := c.Save([]*models.Apartment{a1, a2, a3}, false); err != nil {
		t.Fatalf("Save: %v", err)
	}

	stats := c.Stats()
	if stats.Total != 3 {
		t.Errorf("Total = %d; want 3", stats.Total)
	}
	if stats.AvgPrice != 200 {
		t.Errorf("AvgPrice = %.2f; want 200", stats.AvgPrice)
	}
	if stats.MinPrice != 100 || stats.MaxPrice != 300 {
		t.Errorf("Min/Max = %.2f/%.2f; want 100/300", stats.MinPrice, stats.MaxPrice)
	}
	if len(stats.ByLocation) != 2 {
		t.Errorf("ByLocation = %v; want 2 distinct locations", stats.ByLocation)
	}
	if stats.ByLocation["Дніпро, Центральний"] != 2 || stats.ByLocation["Дніпро, Соборний"] != 1 {
		t.Errorf("location counts = %v; want Центральний:2 Соборний:1", stats.ByLocation)
	}
}

// The mirror report path aggregates rows fetched from PostgreSQL, not the
// cache file, so the computation must work on any in-memory set.
func TestComputeStatisticsOnInMemorySet(t *testing.T) {
	a1 := apt("1", "One", 400)
	a1.Location = "Дніпро, Амур"
	a2 := apt("2", "Two", 0)
	a2.Location = "Дніпро, Амур"

	stats := ComputeStatistics([]*models.Apartment{a1, a2})
	if stats.Total != 2 {
		t.Errorf("Total = %d; want 2", stats.Total)
	}
	if stats.AvgPrice != 400 || stats.MinPrice != 400 || stats.MaxPrice != 400 {
		t.Errorf("price stats = %.0f/%.0f/%.0f; want 400/400/400",
			stats.AvgPrice, stats.MinPrice, stats.MaxPrice)
	}
	if stats.ByLocation["Дніпро, Амур"] != 2 {
		t.Errorf("ByLocation = %v; want Амур:2", stats.ByLocation)
	}
}

func TestCacheClear(t *testing.T) {
	c := newTestCache(t)

	if err := c.Save([]*models.Apartment{apt("1", "One", 100)}, false); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got := c.Load(); len(got) != 0 {
		t.Errorf("after Clear: got %d apartments, want 0", len(got))
	}
}

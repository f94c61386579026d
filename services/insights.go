package services

import (
	"fmt"
	"sort"
	"strings"

	"olx-scraper/models"
	"olx-scraper/storage"
	"olx-scraper/utils"
)

// InsightService renders human-facing tables over the scraped dataset.
// Output is fire-and-forget: nothing here feeds back into the pipeline.
type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// PrintStatistics renders the cache aggregates.
func (s *InsightService) PrintStatistics(stats *storage.Statistics) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Printf("\n\033[1;35m%s\033[0m\n", sep)
	fmt.Printf("\033[1;35m  📊 CACHE STATISTICS\033[0m\n")
	fmt.Printf("\033[1;35m%s\033[0m\n\n", sep)

	fmt.Printf("\033[1;33m  Overview\033[0m\n")
	fmt.Printf("  %s\n", thin)
	fmt.Printf("  Total apartments  : \033[1m%d\033[0m\n", stats.Total)
	fmt.Printf("  Unique locations  : \033[1m%d\033[0m\n", len(stats.ByLocation))
	fmt.Println()

	fmt.Printf("\033[1;33m  Price Statistics (known prices only)\033[0m\n")
	fmt.Printf("  %s\n", thin)
	if stats.AvgPrice > 0 {
		fmt.Printf("  Average price : \033[1;32m%.2f UAH\033[0m\n", stats.AvgPrice)
		fmt.Printf("  Minimum price : \033[1;32m%.2f UAH\033[0m\n", stats.MinPrice)
		fmt.Printf("  Maximum price : \033[1;32m%.2f UAH\033[0m\n", stats.MaxPrice)
	} else {
		fmt.Printf("  No price data available\n")
	}
	fmt.Println()

	fmt.Printf("\033[1;33m  Apartments by Location\033[0m\n")
	fmt.Printf("  %s\n", thin)
	if len(stats.ByLocation) == 0 {
		fmt.Printf("  No location data\n")
	} else {
		for _, lc := range locationsByCount(stats.ByLocation) {
			bar := strings.Repeat("█", lc.count)
			fmt.Printf("  %-30s %s (%d)\n", truncate(lc.loc, 28), bar, lc.count)
		}
	}

	fmt.Printf("\n\033[1;35m%s\033[0m\n\n", sep)
}

type locCount struct {
	loc   string
	count int
}

// locationsByCount orders locations busiest first, ties alphabetically so
// the rendering is stable between runs.
func locationsByCount(byLocation map[string]int) []locCount {
	locs := make([]locCount, 0, len(byLocation))
	for loc, cnt := range byLocation {
		locs = append(locs, locCount{loc, cnt})
	}
	sort.Slice(locs, func(i, j int) bool {
		if locs[i].count != locs[j].count {
			return locs[i].count > locs[j].count
		}
		return locs[i].loc < locs[j].loc
	})
	return locs
}

// PrintApartments renders up to 20 apartments as a table of the fields a
// human cares about when skimming new results.
func (s *InsightService) PrintApartments(title string, apartments []*models.Apartment) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Printf("\n\033[1;35m%s\033[0m\n", sep)
	fmt.Printf("\033[1;35m  %s\033[0m\n", title)
	fmt.Printf("\033[1;35m%s\033[0m\n\n", sep)

	if len(apartments) == 0 {
		fmt.Printf("  Nothing to show\n\n")
		return
	}

	fmt.Printf("  \033[1m%-11s %-42s %14s  %-24s %9s\033[0m\n",
		"ID", "Title", "Price", "Location", "Area")
	fmt.Printf("  %s\n", thin)

	shown := apartments
	if len(shown) > 20 {
		shown = shown[:20]
	}
	for _, apt := range shown {
		fmt.Printf("  %-11s %-42s %14s  %-24s %9s\n",
			truncate(apt.PostID, 10),
			truncate(apt.Title, 40),
			formatPrice(apt),
			truncate(apt.Location, 22),
			formatArea(apt))
	}
	if len(apartments) > 20 {
		fmt.Printf("  … and %d more\n", len(apartments)-20)
	}
	fmt.Println()
}

// TopDistricts returns districts ordered by how many of the given
// apartments they contain, busiest first.
func (s *InsightService) TopDistricts(apartments []*models.Apartment) []string {
	counts := make(map[string]int)
	for _, apt := range apartments {
		if apt.District != "" {
			counts[apt.District]++
		}
	}

	districts := make([]string, 0, len(counts))
	for d := range counts {
		districts = append(districts, d)
	}
	sort.Slice(districts, func(i, j int) bool {
		if counts[districts[i]] != counts[districts[j]] {
			return counts[districts[i]] > counts[districts[j]]
		}
		return districts[i] < districts[j]
	})
	return districts
}

func formatPrice(apt *models.Apartment) string {
	if apt.Price <= 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.0f %s", apt.Price, apt.Currency)
}

func formatArea(apt *models.Apartment) string {
	if apt.TotalArea == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.1f м²", *apt.TotalArea)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

package olx

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"olx-scraper/models"
)

var (
	// priceRegexp captures the leading numeric run of a price string,
	// thousands separated by spaces.
	priceRegexp = regexp.MustCompile(`[\d\s]+`)
	// areaRegexp captures "54.5 м²" style area values.
	areaRegexp = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*м²`)
)

// PaginationInfo describes where a listing page sits in the result set.
// The zero-information default is "page 1 of 1, no next page": a missing or
// unparseable pagination block ends the walk, it is never an error.
type PaginationInfo struct {
	CurrentPage int
	TotalPages  int
	NextPageURL string
}

// parseListingPage extracts every listing card from one page of markup plus
// the page's pagination info. A card that fails to parse is logged and
// skipped; one bad card never aborts the page.
func (s *Scraper) parseListingPage(html string) ([]*models.Apartment, PaginationInfo, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, PaginationInfo{}, fmt.Errorf("olx: parse listing page: %w", err)
	}

	cards := doc.Find("div[data-cy=l-card]")
	s.logger.Info("[olx] Found %d apartment cards on page", cards.Length())

	var apartments []*models.Apartment
	cards.Each(func(i int, card *goquery.Selection) {
		apt, err := s.parseCard(card)
		if err != nil {
			s.logger.Warn("[olx] Skipping card %d: %v", i, err)
			return
		}
		apartments = append(apartments, apt)
	})

	return apartments, s.extractPagination(doc), nil
}

// parseCard builds a partial record from one listing card. Identity and
// title are required; every other field degrades to its unknown value.
func (s *Scraper) parseCard(card *goquery.Selection) (*models.Apartment, error) {
	postID, ok := card.Attr("id")
	if !ok || postID == "" {
		return nil, fmt.Errorf("card has no id attribute")
	}

	title := strings.TrimSpace(card.Find("h4").First().Text())
	if title == "" {
		return nil, fmt.Errorf("card %s has no title", postID)
	}

	apt := &models.Apartment{
		PostID:    postID,
		Title:     title,
		Currency:  "UAH",
		Photos:    []string{},
		Tags:      []string{},
		ScrapedAt: time.Now(),
	}

	if href, ok := card.Find("a").First().Attr("href"); ok {
		apt.URL = s.resolveURL(href)
	}

	if priceText := card.Find("p[data-testid=ad-price]").First().Text(); priceText != "" {
		apt.Price, apt.Currency = parsePrice(priceText)
	}

	if locText := strings.TrimSpace(card.Find("p[data-testid=location-date]").First().Text()); locText != "" {
		apt.Location, apt.CreatedDate = splitLocationDate(locText, time.Now())
		apt.District = districtOf(apt.Location)
	}

	// Area sits in the text next to the blueprint icon.
	if iconParent := card.Find("svg[data-testid=blueprint-card-param-icon]").First().Parent(); iconParent.Length() > 0 {
		if m := areaRegexp.FindStringSubmatch(iconParent.Text()); m != nil {
			if area, err := strconv.ParseFloat(m[1], 64); err == nil {
				apt.TotalArea = &area
			}
		}
	}

	return apt, nil
}

// parsePrice strips separators, parses the leading numeric run, and infers
// the currency from co-located glyphs (грн before $ before €, defaulting to
// UAH). No digits means price 0, the "unknown" sentinel, never an error.
func parsePrice(text string) (float64, string) {
	currency := "UAH"
	switch {
	case strings.Contains(text, "грн"):
		currency = "UAH"
	case strings.Contains(text, "$"):
		currency = "USD"
	case strings.Contains(text, "€"):
		currency = "EUR"
	}

	cleaned := strings.ReplaceAll(text, " ", " ")
	match := priceRegexp.FindString(cleaned)
	if match == "" {
		return 0, currency
	}

	price, err := strconv.ParseFloat(strings.ReplaceAll(match, " ", ""), 64)
	if err != nil || price < 0 {
		return 0, currency
	}
	return price, currency
}

// splitLocationDate splits a "Дніпро, Центральний - 01 жовтня 2025 р." field
// on its separator. A single segment is location-only and the date defaults
// to today.
func splitLocationDate(text string, now time.Time) (location, createdDate string) {
	parts := strings.SplitN(text, " - ", 2)
	location = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		createdDate = normalizeDate(parts[1], now)
	} else {
		createdDate = normalizeDate("", now)
	}
	return location, createdDate
}

// districtOf derives the district as the second comma-separated segment of
// the location, if present.
func districtOf(location string) string {
	parts := strings.Split(location, ",")
	if len(parts) < 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// extractPagination reads the pagination block. Every lookup falls back to
// the "no more pages" default.
func (s *Scraper) extractPagination(doc *goquery.Document) PaginationInfo {
	info := PaginationInfo{CurrentPage: 1, TotalPages: 1}

	wrapper := doc.Find("div[data-testid=pagination-wrapper]").First()
	if wrapper.Length() == 0 {
		return info
	}

	active := wrapper.Find("li[class*='pagination-item__active']").First()
	if n, err := strconv.Atoi(strings.TrimSpace(active.Text())); err == nil {
		info.CurrentPage = n
	}

	items := wrapper.Find("li[data-testid=pagination-list-item]")
	if items.Length() > 0 {
		last := strings.TrimSpace(items.Last().Text())
		if n, err := strconv.Atoi(last); err == nil {
			info.TotalPages = n
		}
	}

	if href, ok := wrapper.Find("a[data-testid=pagination-forward]").First().Attr("href"); ok {
		info.NextPageURL = s.resolveURL(href)
	}

	return info
}

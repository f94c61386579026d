package olx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"olx-scraper/models"
)

var (
	floorRegexp       = regexp.MustCompile(`Поверх:\s*(\d+)`)
	totalFloorsRegexp = regexp.MustCompile(`Поверховість:\s*(\d+)`)
	digitsRegexp      = regexp.MustCompile(`(\d+)`)
)

// Enrich fills in a partial record from its detail page, plus the contact
// phone when fetchPhones is enabled. Enrichment never fails the record:
// every extraction error degrades to "field left unknown" and is only
// logged. Optional fields are upgraded, never downgraded.
func (s *Scraper) Enrich(ctx context.Context, apt *models.Apartment) {
	if apt.URL != "" {
		markup, err := s.fetchPage(ctx, apt.URL)
		if err != nil {
			s.logger.Warn("[olx] Enrichment fetch failed for %s: %v", apt.PostID, err)
		} else {
			s.parseDetailPage(markup, apt)
		}
	}

	if s.cfg.FetchPhones && apt.PostID != "" {
		if phone := s.fetchContactPhone(ctx, apt.PostID); phone != "" {
			apt.ContactPhone = phone
		}
	}
}

// parseDetailPage extracts description, photos, parameter tags, structural
// parameters and the view counter from detail-page markup. Each extractor
// runs independently so one missing field never blocks the others.
func (s *Scraper) parseDetailPage(markup string, apt *models.Apartment) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		s.logger.Warn("[olx] Detail page of %s did not parse: %v", apt.PostID, err)
		return
	}

	if desc := doc.Find("div.css-19duwlz").First(); desc.Length() > 0 {
		apt.Description = textWithBreaks(desc)
	}

	// Absolute image sources only; duplicates are kept as encountered.
	doc.Find("img[data-testid=swiper-image], img[data-testid=swiper-image-lazy]").
		Each(func(_ int, img *goquery.Selection) {
			if src, ok := img.Attr("src"); ok && strings.HasPrefix(src, "http") {
				apt.Photos = append(apt.Photos, src)
			}
		})

	doc.Find("div[data-testid=ad-parameters-container] p.css-13x8d99").
		Each(func(_ int, param *goquery.Selection) {
			text := strings.TrimSpace(param.Text())
			if text == "" {
				return
			}
			apt.Tags = append(apt.Tags, text)
			s.applyParameterTag(text, apt)
		})

	// The view counter is frequently populated client-side after document
	// load, so static markup often lacks it. That is an expected gap.
	if watch := doc.Find("span.css-16uueru").First(); watch.Length() > 0 {
		if m := digitsRegexp.FindStringSubmatch(watch.Text()); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				apt.WatchCount = &n
			}
		}
	}
}

// applyParameterTag upgrades structural fields from one parameter tag.
func (s *Scraper) applyParameterTag(text string, apt *models.Apartment) {
	if m := floorRegexp.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			apt.Floor = &n
		}
	}
	if m := totalFloorsRegexp.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			apt.TotalFloors = &n
		}
	}
	if strings.Contains(text, "Кількість кімнат:") {
		if m := digitsRegexp.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				apt.Rooms = &n
			}
		}
	}
	if strings.Contains(text, "Меблювання:") {
		furnished := strings.Contains(text, "З меблями")
		apt.Furnished = &furnished
	}
}

// phoneResponse is the shape of the limited-phones endpoint payload.
type phoneResponse struct {
	Data struct {
		Phones []string `json:"phones"`
	} `json:"data"`
}

// fetchContactPhone hits the numeric-identity-keyed phone endpoint. One
// lightweight request, no retries; a missing phone is not an error.
func (s *Scraper) fetchContactPhone(ctx context.Context, postID string) string {
	apiURL := fmt.Sprintf("%s/api/v1/offers/%s/limited-phones/", strings.TrimRight(s.cfg.BaseURL, "/"), postID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		s.logger.Debug("[olx] Could not build phone request for %s: %v", postID, err)
		return ""
	}
	req.Header.Set("X-Client", "DESKTOP")
	req.Header.Set("X-Platform-Type", "mobile-html5")
	req.Header.Set("Version", "v1.19")
	req.Header.Set("Accept", "*/*")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug("[olx] Could not fetch phone for %s: %v", postID, err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Debug("[olx] Phone endpoint returned %d for %s", resp.StatusCode, postID)
		return ""
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ""
	}

	var payload phoneResponse
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Data.Phones) == 0 {
		return ""
	}
	return payload.Data.Phones[0]
}

// textWithBreaks collects the trimmed text nodes under sel joined with
// newlines, preserving the visual line structure of the description.
func textWithBreaks(sel *goquery.Selection) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, "\n")
}

package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Apartment is one listing as persisted in the cache and export files.
// Identity is PostID, assigned by OLX and never regenerated. Optional
// numeric fields use pointers: nil means "not observed", which is distinct
// from a genuine zero. Price 0 is the "unknown" sentinel, not a real price.
type Apartment struct {
	PostID      string
	Title       string
	Price       float64
	Currency    string
	Location    string
	Description string

	ContactPhone string
	Photos       []string
	CreatedDate  string // dd.mm.yyyy
	WatchCount   *int
	Tags         []string
	URL          string

	TotalArea   *float64
	Floor       *int
	TotalFloors *int
	Rooms       *int
	District    string
	Furnished   *bool

	ScrapedAt time.Time
}

// CSVHeader is the durable column contract shared by the cache file and
// every export file. Order matters.
var CSVHeader = []string{
	"post_id", "name", "price", "currency", "location", "description",
	"contact_phone", "photos", "created_date", "watch_count", "tags",
	"url", "total_area", "floor", "total_floors", "rooms", "district",
	"furnished", "scraped_at",
}

// ToRow serializes the apartment into one CSV row. List fields are encoded
// as JSON array strings inside their cell; optional fields serialize to an
// empty cell when unknown.
func (a *Apartment) ToRow() []string {
	return []string{
		a.PostID,
		a.Title,
		strconv.FormatFloat(a.Price, 'f', -1, 64),
		a.Currency,
		a.Location,
		a.Description,
		a.ContactPhone,
		encodeList(a.Photos),
		a.CreatedDate,
		encodeInt(a.WatchCount),
		encodeList(a.Tags),
		a.URL,
		encodeFloat(a.TotalArea),
		encodeInt(a.Floor),
		encodeInt(a.TotalFloors),
		encodeInt(a.Rooms),
		a.District,
		encodeBool(a.Furnished),
		a.ScrapedAt.Format(time.RFC3339),
	}
}

// FromRow reconstructs an apartment from one CSV row written by ToRow.
func FromRow(row []string) (*Apartment, error) {
	if len(row) != len(CSVHeader) {
		return nil, fmt.Errorf("apartment row: got %d columns, want %d", len(row), len(CSVHeader))
	}

	price, err := strconv.ParseFloat(row[2], 64)
	if err != nil {
		return nil, fmt.Errorf("apartment row %q: bad price %q: %w", row[0], row[2], err)
	}

	scrapedAt, err := time.Parse(time.RFC3339, row[18])
	if err != nil {
		scrapedAt = time.Time{}
	}

	return &Apartment{
		PostID:       row[0],
		Title:        row[1],
		Price:        price,
		Currency:     row[3],
		Location:     row[4],
		Description:  row[5],
		ContactPhone: row[6],
		Photos:       DecodeListCell(row[7]),
		CreatedDate:  row[8],
		WatchCount:   decodeInt(row[9]),
		Tags:         DecodeListCell(row[10]),
		URL:          row[11],
		TotalArea:    decodeFloat(row[12]),
		Floor:        decodeInt(row[13]),
		TotalFloors:  decodeInt(row[14]),
		Rooms:        decodeInt(row[15]),
		District:     row[16],
		Furnished:    decodeBool(row[17]),
		ScrapedAt:    scrapedAt,
	}, nil
}

func encodeList(items []string) string {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// DecodeListCell parses a JSON-array CSV cell. Anything that is not a valid
// JSON string array (including an empty cell) decodes to an empty list, never
// nil. This is the one place the list-cell format is defined; storage layers
// reuse it rather than re-parsing.
func DecodeListCell(cell string) []string {
	if cell == "" {
		return []string{}
	}
	var items []string
	if err := json.Unmarshal([]byte(cell), &items); err != nil || items == nil {
		return []string{}
	}
	return items
}

func encodeInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func decodeInt(cell string) *int {
	if cell == "" {
		return nil
	}
	n, err := strconv.Atoi(cell)
	if err != nil {
		return nil
	}
	return &n
}

func encodeFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func decodeFloat(cell string) *float64 {
	if cell == "" {
		return nil
	}
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return nil
	}
	return &f
}

func encodeBool(v *bool) string {
	if v == nil {
		return ""
	}
	return strconv.FormatBool(*v)
}

func decodeBool(cell string) *bool {
	if cell == "" {
		return nil
	}
	b, err := strconv.ParseBool(cell)
	if err != nil {
		return nil
	}
	return &b
}

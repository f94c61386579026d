package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"olx-scraper/models"
)

// PostgresWriter mirrors the apartment cache into PostgreSQL. The CSV cache
// stays the source of truth; this is a queryable copy. Writes upsert by
// post_id so the table carries the same last-write-wins semantics as the
// cache file.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pw := &PostgresWriter{db: db}
	if err := pw.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return pw, nil
}

func (pw *PostgresWriter) migrate() error {
	_, err := pw.db.Exec(`
		CREATE TABLE IF NOT EXISTS apartments (
			post_id       VARCHAR(32)   PRIMARY KEY,
			name          TEXT          NOT NULL,
			price         NUMERIC(12,2) NOT NULL DEFAULT 0,
			currency      VARCHAR(8)    NOT NULL DEFAULT 'UAH',
			location      TEXT          NOT NULL DEFAULT '',
			description   TEXT          NOT NULL DEFAULT '',
			contact_phone TEXT          NOT NULL DEFAULT '',
			photos        TEXT          NOT NULL DEFAULT '[]',
			created_date  VARCHAR(10)   NOT NULL DEFAULT '',
			watch_count   INTEGER,
			tags          TEXT          NOT NULL DEFAULT '[]',
			url           TEXT          NOT NULL DEFAULT '',
			total_area    NUMERIC(8,2),
			floor         INTEGER,
			total_floors  INTEGER,
			rooms         INTEGER,
			district      TEXT          NOT NULL DEFAULT '',
			furnished     BOOLEAN,
			scraped_at    TIMESTAMPTZ   NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_apartments_price    ON apartments(price);
		CREATE INDEX IF NOT EXISTS idx_apartments_location ON apartments(location);
		CREATE INDEX IF NOT EXISTS idx_apartments_district ON apartments(district);
	`)
	return err
}

// Clear deletes all stored apartments.
func (pw *PostgresWriter) Clear() error {
	_, err := pw.db.Exec("DELETE FROM apartments")
	if err != nil {
		return fmt.Errorf("postgres: clear: %w", err)
	}
	return nil
}

// Write upserts apartments in batches, replacing existing rows field for
// field on post_id collision.
func (pw *PostgresWriter) Write(apartments []*models.Apartment) error {
	if len(apartments) == 0 {
		return nil
	}

	const batchSize = 50
	for i := 0; i < len(apartments); i += batchSize {
		end := i + batchSize
		if end > len(apartments) {
			end = len(apartments)
		}
		if err := pw.upsertBatch(apartments[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (pw *PostgresWriter) upsertBatch(batch []*models.Apartment) error {
	const cols = 19
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*cols)

	for idx, apt := range batch {
		base := idx * cols
		placeholders := make([]interface{}, cols)
		for j := range placeholders {
			placeholders[j] = base + j + 1
		}
		valueStrings = append(valueStrings, fmt.Sprintf(
			"($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			placeholders...))

		row := apt.ToRow()
		valueArgs = append(valueArgs,
			apt.PostID, apt.Title, apt.Price, apt.Currency, apt.Location,
			apt.Description, apt.ContactPhone, row[7], apt.CreatedDate,
			apt.WatchCount, row[10], apt.URL, apt.TotalArea, apt.Floor,
			apt.TotalFloors, apt.Rooms, apt.District, apt.Furnished,
			apt.ScrapedAt)
	}

	query := `
		INSERT INTO apartments (
			post_id, name, price, currency, location, description,
			contact_phone, photos, created_date, watch_count, tags, url,
			total_area, floor, total_floors, rooms, district, furnished,
			scraped_at
		)
		VALUES ` + strings.Join(valueStrings, ",") + `
		ON CONFLICT (post_id) DO UPDATE SET
			name          = EXCLUDED.name,
			price         = EXCLUDED.price,
			currency      = EXCLUDED.currency,
			location      = EXCLUDED.location,
			description   = EXCLUDED.description,
			contact_phone = EXCLUDED.contact_phone,
			photos        = EXCLUDED.photos,
			created_date  = EXCLUDED.created_date,
			watch_count   = EXCLUDED.watch_count,
			tags          = EXCLUDED.tags,
			url           = EXCLUDED.url,
			total_area    = EXCLUDED.total_area,
			floor         = EXCLUDED.floor,
			total_floors  = EXCLUDED.total_floors,
			rooms         = EXCLUDED.rooms,
			district      = EXCLUDED.district,
			furnished     = EXCLUDED.furnished,
			scraped_at    = EXCLUDED.scraped_at
	`

	_, err := pw.db.Exec(query, valueArgs...)
	return err
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}

// FetchAll retrieves all stored apartments ordered by scrape time.
func (pw *PostgresWriter) FetchAll() ([]*models.Apartment, error) {
	rows, err := pw.db.Query(`
		SELECT post_id, name, price, currency, location, description,
		       contact_phone, photos, created_date, watch_count, tags, url,
		       total_area, floor, total_floors, rooms, district, furnished,
		       scraped_at
		FROM apartments
		ORDER BY scraped_at
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch all: %w", err)
	}
	defer rows.Close()

	var apartments []*models.Apartment
	for rows.Next() {
		apt := &models.Apartment{}
		var photos, tags string
		if err := rows.Scan(
			&apt.PostID, &apt.Title, &apt.Price, &apt.Currency, &apt.Location,
			&apt.Description, &apt.ContactPhone, &photos, &apt.CreatedDate,
			&apt.WatchCount, &tags, &apt.URL, &apt.TotalArea, &apt.Floor,
			&apt.TotalFloors, &apt.Rooms, &apt.District, &apt.Furnished,
			&apt.ScrapedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		apt.Photos = models.DecodeListCell(photos)
		apt.Tags = models.DecodeListCell(tags)
		apartments = append(apartments, apt)
	}
	return apartments, rows.Err()
}

package storage

import "olx-scraper/models"

// ApartmentWriter is the interface any storage backend must satisfy.
type ApartmentWriter interface {
	Write(apartments []*models.Apartment) error
	Close() error
}

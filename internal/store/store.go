// Package store persists extractions and the local mirrors of records pushed
// to HubSpot. Every backend hands out positive, strictly increasing integer
// ids per entity kind and never reuses them.
package store

import (
	"context"

	"github.com/sells-group/crm-extract/internal/model"
)

// Store defines the persistence interface for extractions and CRM mirrors.
// Get and Update return an apperr.KindNotFound error for unknown ids.
type Store interface {
	// Extractions
	CreateExtraction(ctx context.Context, meetingSummary, extractedData string) (*model.Extraction, error)
	GetExtraction(ctx context.Context, id int64) (*model.Extraction, error)
	UpdateExtraction(ctx context.Context, id int64, upd model.ExtractionUpdate) (*model.Extraction, error)
	// ListExtractions returns every extraction, newest first.
	ListExtractions(ctx context.Context) ([]model.Extraction, error)

	// Mirrors. ID and CreatedAt on the argument are ignored and assigned.
	CreateContact(ctx context.Context, c model.Contact) (*model.Contact, error)
	CreateCompany(ctx context.Context, c model.Company) (*model.Company, error)
	CreateDeal(ctx context.Context, d model.Deal) (*model.Deal, error)
	GetContact(ctx context.Context, id int64) (*model.Contact, error)
	GetCompany(ctx context.Context, id int64) (*model.Company, error)
	GetDeal(ctx context.Context, id int64) (*model.Deal, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crm-extract/internal/apperr"
	"github.com/sells-group/crm-extract/internal/db"
	"github.com/sells-group/crm-extract/internal/model"
)

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres connects to Postgres and returns a PostgresStore.
func NewPostgres(ctx context.Context, connString string, poolCfg db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS extractions (
	id                BIGSERIAL PRIMARY KEY,
	meeting_summary   TEXT NOT NULL,
	extracted_data    TEXT NOT NULL,
	synced_to_hubspot BOOLEAN NOT NULL DEFAULT false,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS companies (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT,
	industry   TEXT,
	size       TEXT,
	website    TEXT,
	confidence INTEGER NOT NULL DEFAULT 0,
	hubspot_id TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS contacts (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT,
	email      TEXT,
	title      TEXT,
	phone      TEXT,
	confidence INTEGER NOT NULL DEFAULT 0,
	hubspot_id TEXT,
	company_id BIGINT REFERENCES companies(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS deals (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT,
	value      DOUBLE PRECISION,
	close_date TEXT,
	stage      TEXT,
	confidence INTEGER NOT NULL DEFAULT 0,
	hubspot_id TEXT,
	contact_id BIGINT REFERENCES contacts(id),
	company_id BIGINT REFERENCES companies(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_extractions_created_at ON extractions(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_contacts_company_id ON contacts(company_id);
CREATE INDEX IF NOT EXISTS idx_deals_contact_id ON deals(contact_id);
CREATE INDEX IF NOT EXISTS idx_deals_company_id ON deals(company_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateExtraction(ctx context.Context, meetingSummary, extractedData string) (*model.Extraction, error) {
	e := model.Extraction{MeetingSummary: meetingSummary, ExtractedData: extractedData}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO extractions (meeting_summary, extracted_data) VALUES ($1, $2) RETURNING id, created_at`,
		meetingSummary, extractedData,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert extraction")
	}
	return &e, nil
}

const pgSelectExtraction = `SELECT id, meeting_summary, extracted_data, synced_to_hubspot, created_at FROM extractions`

func (s *PostgresStore) GetExtraction(ctx context.Context, id int64) (*model.Extraction, error) {
	e, err := scanExtraction(s.pool.QueryRow(ctx, pgSelectExtraction+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("extraction", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get extraction %d", id)
	}
	return e, nil
}

func (s *PostgresStore) UpdateExtraction(ctx context.Context, id int64, upd model.ExtractionUpdate) (*model.Extraction, error) {
	if upd.SyncedToHubspot == nil {
		return s.GetExtraction(ctx, id)
	}
	e, err := scanExtraction(s.pool.QueryRow(ctx,
		`UPDATE extractions SET synced_to_hubspot = $1 WHERE id = $2
		 RETURNING id, meeting_summary, extracted_data, synced_to_hubspot, created_at`,
		*upd.SyncedToHubspot, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("extraction", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update extraction %d", id)
	}
	return e, nil
}

func (s *PostgresStore) ListExtractions(ctx context.Context) ([]model.Extraction, error) {
	rows, err := s.pool.Query(ctx, pgSelectExtraction+` ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list extractions")
	}
	defer rows.Close()

	out := []model.Extraction{}
	for rows.Next() {
		e, err := scanExtraction(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan extraction")
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate extractions")
}

func (s *PostgresStore) CreateContact(ctx context.Context, c model.Contact) (*model.Contact, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO contacts (name, email, title, phone, confidence, hubspot_id, company_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at`,
		c.Name, c.Email, c.Title, c.Phone, c.Confidence, c.HubspotID, c.CompanyID,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert contact")
	}
	return &c, nil
}

func (s *PostgresStore) CreateCompany(ctx context.Context, c model.Company) (*model.Company, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO companies (name, industry, size, website, confidence, hubspot_id)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`,
		c.Name, c.Industry, c.Size, c.Website, c.Confidence, c.HubspotID,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert company")
	}
	return &c, nil
}

func (s *PostgresStore) CreateDeal(ctx context.Context, d model.Deal) (*model.Deal, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO deals (name, value, close_date, stage, confidence, hubspot_id, contact_id, company_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id, created_at`,
		d.Name, d.Value, d.CloseDate, d.Stage, d.Confidence, d.HubspotID, d.ContactID, d.CompanyID,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert deal")
	}
	return &d, nil
}

func (s *PostgresStore) GetContact(ctx context.Context, id int64) (*model.Contact, error) {
	var c model.Contact
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, email, title, phone, confidence, hubspot_id, company_id, created_at FROM contacts WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Email, &c.Title, &c.Phone, &c.Confidence, &c.HubspotID, &c.CompanyID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("contact", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get contact %d", id)
	}
	return &c, nil
}

func (s *PostgresStore) GetCompany(ctx context.Context, id int64) (*model.Company, error) {
	var c model.Company
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, industry, size, website, confidence, hubspot_id, created_at FROM companies WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Industry, &c.Size, &c.Website, &c.Confidence, &c.HubspotID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("company", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get company %d", id)
	}
	return &c, nil
}

func (s *PostgresStore) GetDeal(ctx context.Context, id int64) (*model.Deal, error) {
	var d model.Deal
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, value, close_date, stage, confidence, hubspot_id, contact_id, company_id, created_at FROM deals WHERE id = $1`, id,
	).Scan(&d.ID, &d.Name, &d.Value, &d.CloseDate, &d.Stage, &d.Confidence, &d.HubspotID, &d.ContactID, &d.CompanyID, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("deal", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get deal %d", id)
	}
	return &d, nil
}

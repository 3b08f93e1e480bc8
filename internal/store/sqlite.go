package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/crm-extract/internal/apperr"
	"github.com/sells-group/crm-extract/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS extractions (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	meeting_summary   TEXT NOT NULL,
	extracted_data    TEXT NOT NULL,
	synced_to_hubspot INTEGER NOT NULL DEFAULT 0,
	created_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS companies (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT,
	industry   TEXT,
	size       TEXT,
	website    TEXT,
	confidence INTEGER NOT NULL DEFAULT 0,
	hubspot_id TEXT,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS contacts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT,
	email      TEXT,
	title      TEXT,
	phone      TEXT,
	confidence INTEGER NOT NULL DEFAULT 0,
	hubspot_id TEXT,
	company_id INTEGER REFERENCES companies(id),
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS deals (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT,
	value      REAL,
	close_date TEXT,
	stage      TEXT,
	confidence INTEGER NOT NULL DEFAULT 0,
	hubspot_id TEXT,
	contact_id INTEGER REFERENCES contacts(id),
	company_id INTEGER REFERENCES companies(id),
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_extractions_created_at ON extractions(created_at);
CREATE INDEX IF NOT EXISTS idx_contacts_company_id ON contacts(company_id);
CREATE INDEX IF NOT EXISTS idx_deals_contact_id ON deals(contact_id);
CREATE INDEX IF NOT EXISTS idx_deals_company_id ON deals(company_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateExtraction(ctx context.Context, meetingSummary, extractedData string) (*model.Extraction, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO extractions (meeting_summary, extracted_data, synced_to_hubspot, created_at) VALUES (?, ?, 0, ?)`,
		meetingSummary, extractedData, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert extraction")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: extraction id")
	}
	return &model.Extraction{
		ID:             id,
		MeetingSummary: meetingSummary,
		ExtractedData:  extractedData,
		CreatedAt:      now,
	}, nil
}

const selectExtraction = `SELECT id, meeting_summary, extracted_data, synced_to_hubspot, created_at FROM extractions`

func (s *SQLiteStore) GetExtraction(ctx context.Context, id int64) (*model.Extraction, error) {
	row := s.db.QueryRowContext(ctx, selectExtraction+` WHERE id = ?`, id)
	e, err := scanExtraction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("extraction", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get extraction %d", id)
	}
	return e, nil
}

func (s *SQLiteStore) UpdateExtraction(ctx context.Context, id int64, upd model.ExtractionUpdate) (*model.Extraction, error) {
	if upd.SyncedToHubspot != nil {
		res, err := s.db.ExecContext(ctx,
			`UPDATE extractions SET synced_to_hubspot = ? WHERE id = ?`,
			*upd.SyncedToHubspot, id,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: update extraction %d", id)
		}
		if err := checkRowsAffected(res, "extraction", id); err != nil {
			return nil, err
		}
	}
	return s.GetExtraction(ctx, id)
}

func (s *SQLiteStore) ListExtractions(ctx context.Context) ([]model.Extraction, error) {
	rows, err := s.db.QueryContext(ctx, selectExtraction+` ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list extractions")
	}
	defer rows.Close() //nolint:errcheck

	out := []model.Extraction{}
	for rows.Next() {
		e, err := scanExtraction(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan extraction")
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate extractions")
}

func (s *SQLiteStore) CreateContact(ctx context.Context, c model.Contact) (*model.Contact, error) {
	c.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (name, email, title, phone, confidence, hubspot_id, company_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Name, c.Email, c.Title, c.Phone, c.Confidence, c.HubspotID, c.CompanyID, c.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert contact")
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return nil, eris.Wrap(err, "sqlite: contact id")
	}
	return &c, nil
}

func (s *SQLiteStore) CreateCompany(ctx context.Context, c model.Company) (*model.Company, error) {
	c.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO companies (name, industry, size, website, confidence, hubspot_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.Name, c.Industry, c.Size, c.Website, c.Confidence, c.HubspotID, c.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert company")
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return nil, eris.Wrap(err, "sqlite: company id")
	}
	return &c, nil
}

func (s *SQLiteStore) CreateDeal(ctx context.Context, d model.Deal) (*model.Deal, error) {
	d.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO deals (name, value, close_date, stage, confidence, hubspot_id, contact_id, company_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Name, d.Value, d.CloseDate, d.Stage, d.Confidence, d.HubspotID, d.ContactID, d.CompanyID, d.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert deal")
	}
	if d.ID, err = res.LastInsertId(); err != nil {
		return nil, eris.Wrap(err, "sqlite: deal id")
	}
	return &d, nil
}

func (s *SQLiteStore) GetContact(ctx context.Context, id int64) (*model.Contact, error) {
	var c model.Contact
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, title, phone, confidence, hubspot_id, company_id, created_at FROM contacts WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.Email, &c.Title, &c.Phone, &c.Confidence, &c.HubspotID, &c.CompanyID, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("contact", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get contact %d", id)
	}
	return &c, nil
}

func (s *SQLiteStore) GetCompany(ctx context.Context, id int64) (*model.Company, error) {
	var c model.Company
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, industry, size, website, confidence, hubspot_id, created_at FROM companies WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.Industry, &c.Size, &c.Website, &c.Confidence, &c.HubspotID, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("company", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get company %d", id)
	}
	return &c, nil
}

func (s *SQLiteStore) GetDeal(ctx context.Context, id int64) (*model.Deal, error) {
	var d model.Deal
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, value, close_date, stage, confidence, hubspot_id, contact_id, company_id, created_at FROM deals WHERE id = ?`, id,
	).Scan(&d.ID, &d.Name, &d.Value, &d.CloseDate, &d.Stage, &d.Confidence, &d.HubspotID, &d.ContactID, &d.CompanyID, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("deal", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get deal %d", id)
	}
	return &d, nil
}

func checkRowsAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return apperr.NotFound(entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanExtraction(row scannable) (*model.Extraction, error) {
	var e model.Extraction
	if err := row.Scan(&e.ID, &e.MeetingSummary, &e.ExtractedData, &e.SyncedToHubspot, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

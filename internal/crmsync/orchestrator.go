// Package crmsync pushes a stored extraction's company, contact and deal to
// HubSpot. Steps run in order company, contact, deal so that identifiers
// from earlier steps can be threaded into later ones. A failure in one step
// is recorded and never stops the steps after it.
package crmsync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/crm-extract/internal/model"
	"github.com/sells-group/crm-extract/internal/resilience"
	"github.com/sells-group/crm-extract/pkg/hubspot"
)

// CRM is the subset of the HubSpot client the orchestrator calls.
type CRM interface {
	CreateCompany(ctx context.Context, in hubspot.CompanyInput) (string, error)
	CreateContact(ctx context.Context, in hubspot.ContactInput) (string, error)
	CreateDeal(ctx context.Context, in hubspot.DealInput) (string, error)
}

// Store is the persistence the orchestrator reads from and writes to.
type Store interface {
	GetExtraction(ctx context.Context, id int64) (*model.Extraction, error)
	UpdateExtraction(ctx context.Context, id int64, upd model.ExtractionUpdate) (*model.Extraction, error)
	CreateContact(ctx context.Context, c model.Contact) (*model.Contact, error)
	CreateCompany(ctx context.Context, c model.Company) (*model.Company, error)
	CreateDeal(ctx context.Context, d model.Deal) (*model.Deal, error)
}

// Options selects which entity types a sync creates.
type Options struct {
	CreateContact bool `json:"createContact"`
	CreateCompany bool `json:"createCompany"`
	CreateDeal    bool `json:"createDeal"`
}

// DefaultOptions enables every entity type.
func DefaultOptions() Options {
	return Options{CreateContact: true, CreateCompany: true, CreateDeal: true}
}

// OptionFlags is the wire form of Options where an omitted flag means true.
type OptionFlags struct {
	CreateContact *bool `json:"createContact,omitempty"`
	CreateCompany *bool `json:"createCompany,omitempty"`
	CreateDeal    *bool `json:"createDeal,omitempty"`
}

// Resolve fills omitted flags with their defaults.
func (f *OptionFlags) Resolve() Options {
	opts := DefaultOptions()
	if f == nil {
		return opts
	}
	if f.CreateContact != nil {
		opts.CreateContact = *f.CreateContact
	}
	if f.CreateCompany != nil {
		opts.CreateCompany = *f.CreateCompany
	}
	if f.CreateDeal != nil {
		opts.CreateDeal = *f.CreateDeal
	}
	return opts
}

// Status is the outcome of one entity step.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// EntityResult reports one entity step. ID is the HubSpot object id on
// success; Error is set on failure; Reason explains a skip.
type EntityResult struct {
	Status    Status `json:"status"`
	Success   bool   `json:"success"`
	ID        string `json:"id,omitempty"`
	Error     string `json:"error,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Results groups the per-entity outcomes.
type Results struct {
	Company EntityResult `json:"company"`
	Contact EntityResult `json:"contact"`
	Deal    EntityResult `json:"deal"`
}

// Result is the composite outcome of a sync. Success means the attempt ran
// to completion; inspect Results for what actually landed in HubSpot.
type Result struct {
	Success      bool    `json:"success"`
	RunID        string  `json:"runId"`
	ExtractionID int64   `json:"extractionId"`
	Results      Results `json:"results"`
}

// Orchestrator runs syncs.
type Orchestrator struct {
	crm    CRM
	store  Store
	dedupe bool
	group  singleflight.Group
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDedupe collapses overlapping syncs of the same extraction into one
// run whose result every caller receives. Sequential re-syncs still run.
func WithDedupe(enabled bool) Option {
	return func(o *Orchestrator) {
		o.dedupe = enabled
	}
}

// New creates an Orchestrator.
func New(crm CRM, store Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{crm: crm, store: store}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Sync pushes extraction id to HubSpot. It fails with a not-found error,
// before any external call, when the extraction does not exist.
//
// With dedupe enabled, a call that overlaps an in-flight run with the same
// id and options joins it. The shared run is detached from the caller's
// cancellation so one caller going away does not fail the others; a
// cancelled caller stops waiting and gets its context error.
func (o *Orchestrator) Sync(ctx context.Context, id int64, opts Options) (*Result, error) {
	if !o.dedupe {
		return o.run(ctx, id, opts)
	}

	key := fmt.Sprintf("%d:%t:%t:%t", id, opts.CreateCompany, opts.CreateContact, opts.CreateDeal)
	ch := o.group.DoChan(key, func() (any, error) {
		return o.run(context.WithoutCancel(ctx), id, opts)
	})

	select {
	case <-ctx.Done():
		return nil, eris.Wrapf(ctx.Err(), "sync: extraction %d", id)
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		res := *r.Val.(*Result)
		if r.Shared {
			zap.L().Info("sync: joined in-flight run",
				zap.Int64("extraction_id", id),
				zap.String("run_id", res.RunID),
			)
		}
		return &res, nil
	}
}

func (o *Orchestrator) run(ctx context.Context, id int64, opts Options) (*Result, error) {
	ext, err := o.store.GetExtraction(ctx, id)
	if err != nil {
		return nil, err
	}
	rec, err := ext.Record()
	if err != nil {
		return nil, eris.Wrapf(err, "sync: parse extraction %d", id)
	}

	runID := uuid.New().String()
	log := zap.L().With(zap.Int64("extraction_id", id), zap.String("run_id", runID))
	start := time.Now()

	p := pass{o: o, log: log, rec: rec}
	res := &Result{Success: true, RunID: runID, ExtractionID: id}
	res.Results.Company = p.syncCompany(ctx, opts.CreateCompany)
	res.Results.Contact = p.syncContact(ctx, opts.CreateContact, res.Results.Company)
	res.Results.Deal = p.syncDeal(ctx, opts.CreateDeal)

	synced := true
	if _, err := o.store.UpdateExtraction(ctx, id, model.ExtractionUpdate{SyncedToHubspot: &synced}); err != nil {
		return nil, eris.Wrapf(err, "sync: mark extraction %d synced", id)
	}

	log.Info("sync: complete",
		zap.String("company", string(res.Results.Company.Status)),
		zap.String("contact", string(res.Results.Contact.Status)),
		zap.String("deal", string(res.Results.Deal.Status)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// pass carries identifiers produced by earlier steps of one sync run.
type pass struct {
	o   *Orchestrator
	log *zap.Logger
	rec model.ExtractedRecord

	companyHubspotID string
	contactHubspotID string
	companyLocalID   *int64
	contactLocalID   *int64
}

func (p *pass) syncCompany(ctx context.Context, enabled bool) EntityResult {
	c := p.rec.Company
	if !enabled {
		return skipped("disabled")
	}
	if c.Name == nil {
		return skipped("no company name")
	}

	hsID, err := p.o.crm.CreateCompany(ctx, hubspot.CompanyInput{
		Name:     *c.Name,
		Industry: model.Deref(c.Industry),
		Size:     model.Deref(c.Size),
		Website:  model.Deref(c.Website),
	})
	if err != nil {
		return p.failed("company", err)
	}
	p.companyHubspotID = hsID

	mirror, err := p.o.store.CreateCompany(ctx, model.Company{
		Name:       c.Name,
		Industry:   c.Industry,
		Size:       c.Size,
		Website:    c.Website,
		Confidence: c.Confidence,
		HubspotID:  &hsID,
	})
	if err != nil {
		p.log.Error("sync: store company mirror", zap.String("hubspot_id", hsID), zap.Error(err))
	} else {
		p.companyLocalID = &mirror.ID
	}
	return succeeded(hsID)
}

func (p *pass) syncContact(ctx context.Context, enabled bool, company EntityResult) EntityResult {
	c := p.rec.Contact
	if !enabled {
		return skipped("disabled")
	}
	if c.Email == nil {
		return skipped("no email")
	}

	// The company name is attached unless the company create was attempted
	// and failed.
	var companyName string
	if company.Status != StatusFailed {
		companyName = model.Deref(p.rec.Company.Name)
	}

	hsID, err := p.o.crm.CreateContact(ctx, hubspot.ContactInput{
		Name:        model.Deref(c.Name),
		Email:       *c.Email,
		Title:       model.Deref(c.Title),
		Phone:       model.Deref(c.Phone),
		CompanyName: companyName,
	})
	if err != nil {
		return p.failed("contact", err)
	}
	p.contactHubspotID = hsID

	mirror, err := p.o.store.CreateContact(ctx, model.Contact{
		Name:       c.Name,
		Email:      c.Email,
		Title:      c.Title,
		Phone:      c.Phone,
		Confidence: c.Confidence,
		HubspotID:  &hsID,
		CompanyID:  p.companyLocalID,
	})
	if err != nil {
		p.log.Error("sync: store contact mirror", zap.String("hubspot_id", hsID), zap.Error(err))
	} else {
		p.contactLocalID = &mirror.ID
	}
	return succeeded(hsID)
}

func (p *pass) syncDeal(ctx context.Context, enabled bool) EntityResult {
	d := p.rec.Deal
	if !enabled {
		return skipped("disabled")
	}
	if d.Name == nil {
		return skipped("no deal name")
	}

	hsID, err := p.o.crm.CreateDeal(ctx, hubspot.DealInput{
		Name:      *d.Name,
		Value:     d.Value,
		CloseDate: model.Deref(d.CloseDate),
		Stage:     model.Deref(d.Stage),
		ContactID: p.contactHubspotID,
		CompanyID: p.companyHubspotID,
	})
	if err != nil {
		return p.failed("deal", err)
	}

	if _, err := p.o.store.CreateDeal(ctx, model.Deal{
		Name:       d.Name,
		Value:      d.Value,
		CloseDate:  d.CloseDate,
		Stage:      d.Stage,
		Confidence: d.Confidence,
		HubspotID:  &hsID,
		ContactID:  p.contactLocalID,
		CompanyID:  p.companyLocalID,
	}); err != nil {
		p.log.Error("sync: store deal mirror", zap.String("hubspot_id", hsID), zap.Error(err))
	}
	return succeeded(hsID)
}

func (p *pass) failed(entity string, err error) EntityResult {
	retryable := resilience.IsTransient(err)
	p.log.Warn("sync: create failed",
		zap.String("entity", entity),
		zap.Bool("retryable", retryable),
		zap.Error(err),
	)
	return EntityResult{Status: StatusFailed, Error: err.Error(), Retryable: retryable}
}

func succeeded(id string) EntityResult {
	return EntityResult{Status: StatusSuccess, Success: true, ID: id}
}

func skipped(reason string) EntityResult {
	return EntityResult{Status: StatusSkipped, Reason: reason}
}

package crmsync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crm-extract/internal/apperr"
	"github.com/sells-group/crm-extract/internal/model"
	"github.com/sells-group/crm-extract/internal/store"
	"github.com/sells-group/crm-extract/pkg/hubspot"
)

type mockCRM struct {
	mock.Mock
}

func (m *mockCRM) CreateCompany(ctx context.Context, in hubspot.CompanyInput) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

func (m *mockCRM) CreateContact(ctx context.Context, in hubspot.ContactInput) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

func (m *mockCRM) CreateDeal(ctx context.Context, in hubspot.DealInput) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

func seed(t *testing.T, s *store.MemoryStore, rec model.ExtractedRecord) int64 {
	t.Helper()
	data, err := rec.Marshal()
	require.NoError(t, err)
	ext, err := s.CreateExtraction(context.Background(), "meeting notes", data)
	require.NoError(t, err)
	return ext.ID
}

func fullRecord() model.ExtractedRecord {
	return model.ExtractedRecord{
		Contact: model.ContactData{
			Name:       model.Ptr("Jane Doe"),
			Email:      model.Ptr("jane@acme.com"),
			Title:      model.Ptr("VP Sales"),
			Confidence: 90,
		},
		Company: model.CompanyData{
			Name:       model.Ptr("Acme"),
			Industry:   model.Ptr("Manufacturing"),
			Confidence: 85,
		},
		Deal: model.DealData{
			Name:       model.Ptr("Acme - Support"),
			Value:      model.Ptr(25000.0),
			Stage:      model.Ptr("Proposal"),
			Confidence: 70,
		},
	}
}

func TestSync_AllEntities(t *testing.T) {
	s := store.NewMemory()
	id := seed(t, s, fullRecord())

	crm := new(mockCRM)
	crm.On("CreateCompany", mock.Anything, hubspot.CompanyInput{Name: "Acme", Industry: "Manufacturing"}).Return("co-1", nil)
	crm.On("CreateContact", mock.Anything, hubspot.ContactInput{
		Name: "Jane Doe", Email: "jane@acme.com", Title: "VP Sales", CompanyName: "Acme",
	}).Return("ct-1", nil)
	crm.On("CreateDeal", mock.Anything, mock.MatchedBy(func(in hubspot.DealInput) bool {
		return in.Name == "Acme - Support" && in.Stage == "Proposal" &&
			in.ContactID == "ct-1" && in.CompanyID == "co-1" &&
			in.Value != nil && *in.Value == 25000
	})).Return("d-1", nil)

	res, err := New(crm, s).Sync(context.Background(), id, DefaultOptions())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, id, res.ExtractionID)
	assert.Equal(t, EntityResult{Status: StatusSuccess, Success: true, ID: "co-1"}, res.Results.Company)
	assert.Equal(t, EntityResult{Status: StatusSuccess, Success: true, ID: "ct-1"}, res.Results.Contact)
	assert.Equal(t, EntityResult{Status: StatusSuccess, Success: true, ID: "d-1"}, res.Results.Deal)
	crm.AssertExpectations(t)

	ctx := context.Background()
	company, err := s.GetCompany(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "co-1", model.Deref(company.HubspotID))
	assert.Equal(t, 85, company.Confidence)

	contact, err := s.GetContact(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "ct-1", model.Deref(contact.HubspotID))
	assert.Equal(t, company.ID, model.Deref(contact.CompanyID))

	deal, err := s.GetDeal(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "d-1", model.Deref(deal.HubspotID))
	assert.Equal(t, contact.ID, model.Deref(deal.ContactID))
	assert.Equal(t, company.ID, model.Deref(deal.CompanyID))

	ext, err := s.GetExtraction(ctx, id)
	require.NoError(t, err)
	assert.True(t, ext.SyncedToHubspot)
}

func TestSync_ContactWithoutEmailIsSkipped(t *testing.T) {
	s := store.NewMemory()
	rec := model.ExtractedRecord{
		Contact: model.ContactData{Name: model.Ptr("Bob"), Confidence: 40},
		Company: model.CompanyData{Name: model.Ptr("Acme"), Confidence: 80},
		Deal:    model.DealData{Name: model.Ptr("Acme - Support"), Confidence: 60},
	}
	id := seed(t, s, rec)

	crm := new(mockCRM)
	crm.On("CreateCompany", mock.Anything, mock.Anything).Return("co-9", nil)
	crm.On("CreateDeal", mock.Anything, mock.MatchedBy(func(in hubspot.DealInput) bool {
		return in.CompanyID == "co-9" && in.ContactID == ""
	})).Return("d-9", nil)

	res, err := New(crm, s).Sync(context.Background(), id, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Results.Company.Status)
	assert.Equal(t, "co-9", res.Results.Company.ID)
	assert.Equal(t, StatusSkipped, res.Results.Contact.Status)
	assert.False(t, res.Results.Contact.Success)
	assert.Equal(t, "no email", res.Results.Contact.Reason)
	assert.Equal(t, StatusSuccess, res.Results.Deal.Status)
	crm.AssertExpectations(t)
	crm.AssertNotCalled(t, "CreateContact", mock.Anything, mock.Anything)

	_, err = s.GetContact(context.Background(), 1)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestSync_CompanyFailureDoesNotBlockSiblings(t *testing.T) {
	s := store.NewMemory()
	id := seed(t, s, fullRecord())

	crm := new(mockCRM)
	crm.On("CreateCompany", mock.Anything, mock.Anything).
		Return("", &hubspot.APIError{StatusCode: 400, Body: `{"message":"Property values were not valid"}`})
	crm.On("CreateContact", mock.Anything, mock.MatchedBy(func(in hubspot.ContactInput) bool {
		return in.Email == "jane@acme.com" && in.CompanyName == ""
	})).Return("ct-2", nil)
	crm.On("CreateDeal", mock.Anything, mock.MatchedBy(func(in hubspot.DealInput) bool {
		return in.CompanyID == "" && in.ContactID == "ct-2"
	})).Return("d-2", nil)

	res, err := New(crm, s).Sync(context.Background(), id, DefaultOptions())
	require.NoError(t, err)
	assert.True(t, res.Success)

	assert.Equal(t, StatusFailed, res.Results.Company.Status)
	assert.False(t, res.Results.Company.Success)
	assert.Contains(t, res.Results.Company.Error, "unexpected status 400")
	assert.Contains(t, res.Results.Company.Error, "Property values were not valid")
	assert.False(t, res.Results.Company.Retryable)

	assert.Equal(t, StatusSuccess, res.Results.Contact.Status)
	assert.Equal(t, StatusSuccess, res.Results.Deal.Status)
	crm.AssertExpectations(t)

	contact, err := s.GetContact(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, contact.CompanyID)

	ext, err := s.GetExtraction(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ext.SyncedToHubspot)
}

func TestSync_AllFailStillMarksSynced(t *testing.T) {
	s := store.NewMemory()
	id := seed(t, s, fullRecord())

	crm := new(mockCRM)
	crm.On("CreateCompany", mock.Anything, mock.Anything).Return("", &hubspot.APIError{StatusCode: 503, Body: "unavailable"})
	crm.On("CreateContact", mock.Anything, mock.Anything).Return("", &hubspot.APIError{StatusCode: 429, Body: "slow down"})
	crm.On("CreateDeal", mock.Anything, mock.Anything).Return("", &hubspot.APIError{StatusCode: 401, Body: "bad token"})

	res, err := New(crm, s).Sync(context.Background(), id, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Results.Company.Status)
	assert.True(t, res.Results.Company.Retryable)
	assert.True(t, res.Results.Contact.Retryable)
	assert.False(t, res.Results.Deal.Retryable)

	ext, err := s.GetExtraction(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ext.SyncedToHubspot)
}

func TestSync_NotFound(t *testing.T) {
	crm := new(mockCRM)
	_, err := New(crm, store.NewMemory()).Sync(context.Background(), 77, DefaultOptions())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	crm.AssertNotCalled(t, "CreateCompany", mock.Anything, mock.Anything)
}

func TestSync_DisabledOptionsAreSkipped(t *testing.T) {
	s := store.NewMemory()
	id := seed(t, s, fullRecord())

	crm := new(mockCRM)
	crm.On("CreateContact", mock.Anything, mock.MatchedBy(func(in hubspot.ContactInput) bool {
		// Company skipped with data available still passes the name.
		return in.CompanyName == "Acme"
	})).Return("ct-3", nil)

	res, err := New(crm, s).Sync(context.Background(), id, Options{CreateContact: true})
	require.NoError(t, err)
	assert.Equal(t, EntityResult{Status: StatusSkipped, Reason: "disabled"}, res.Results.Company)
	assert.Equal(t, StatusSuccess, res.Results.Contact.Status)
	assert.Equal(t, EntityResult{Status: StatusSkipped, Reason: "disabled"}, res.Results.Deal)
	crm.AssertExpectations(t)
}

func TestSync_EmptyRecordSkipsEverything(t *testing.T) {
	s := store.NewMemory()
	id := seed(t, s, model.ExtractedRecord{})

	crm := new(mockCRM)
	res, err := New(crm, s).Sync(context.Background(), id, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "no company name", res.Results.Company.Reason)
	assert.Equal(t, "no email", res.Results.Contact.Reason)
	assert.Equal(t, "no deal name", res.Results.Deal.Reason)

	ext, err := s.GetExtraction(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ext.SyncedToHubspot)
}

func TestSync_ResyncCreatesAgain(t *testing.T) {
	s := store.NewMemory()
	id := seed(t, s, fullRecord())

	crm := new(mockCRM)
	crm.On("CreateCompany", mock.Anything, mock.Anything).Return("co-1", nil).Once()
	crm.On("CreateCompany", mock.Anything, mock.Anything).Return("co-2", nil).Once()
	crm.On("CreateContact", mock.Anything, mock.Anything).Return("ct", nil)
	crm.On("CreateDeal", mock.Anything, mock.Anything).Return("d", nil)

	o := New(crm, s, WithDedupe(true))
	first, err := o.Sync(context.Background(), id, DefaultOptions())
	require.NoError(t, err)
	second, err := o.Sync(context.Background(), id, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, "co-1", first.Results.Company.ID)
	assert.Equal(t, "co-2", second.Results.Company.ID)
	assert.NotEqual(t, first.RunID, second.RunID)
	crm.AssertNumberOfCalls(t, "CreateCompany", 2)
	crm.AssertNumberOfCalls(t, "CreateDeal", 2)

	ctx := context.Background()
	c1, err := s.GetCompany(ctx, 1)
	require.NoError(t, err)
	c2, err := s.GetCompany(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "co-1", model.Deref(c1.HubspotID))
	assert.Equal(t, "co-2", model.Deref(c2.HubspotID))
}

func TestSync_CorruptExtractedData(t *testing.T) {
	s := store.NewMemory()
	ext, err := s.CreateExtraction(context.Background(), "notes", "not json")
	require.NoError(t, err)

	_, err = New(new(mockCRM), s).Sync(context.Background(), ext.ID, DefaultOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync: parse extraction")

	got, err := s.GetExtraction(context.Background(), ext.ID)
	require.NoError(t, err)
	assert.False(t, got.SyncedToHubspot)
}

// blockingCRM counts company creates and blocks them until released. Every
// create fails with the context's error once the context is done.
type blockingCRM struct {
	companies atomic.Int32
	entered   chan struct{}
	release   chan struct{}
}

func newBlockingCRM() *blockingCRM {
	return &blockingCRM{entered: make(chan struct{}, 2), release: make(chan struct{})}
}

func (b *blockingCRM) CreateCompany(ctx context.Context, _ hubspot.CompanyInput) (string, error) {
	b.companies.Add(1)
	b.entered <- struct{}{}
	<-b.release
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "co", nil
}

func (b *blockingCRM) CreateContact(ctx context.Context, _ hubspot.ContactInput) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "ct", nil
}

func (b *blockingCRM) CreateDeal(ctx context.Context, _ hubspot.DealInput) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "d", nil
}

func TestSync_DedupeCollapsesOverlappingRuns(t *testing.T) {
	s := store.NewMemory()
	id := seed(t, s, fullRecord())
	crm := newBlockingCRM()
	o := New(crm, s, WithDedupe(true))

	results := make([]*Result, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r, err := o.Sync(context.Background(), id, DefaultOptions())
		assert.NoError(t, err)
		results[0] = r
	}()
	<-crm.entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		r, err := o.Sync(context.Background(), id, DefaultOptions())
		assert.NoError(t, err)
		results[1] = r
	}()
	time.Sleep(50 * time.Millisecond)
	close(crm.release)
	wg.Wait()

	assert.Equal(t, int32(1), crm.companies.Load())
	require.NotNil(t, results[0])
	require.NotNil(t, results[1])
	assert.Equal(t, results[0].RunID, results[1].RunID)
}

func TestSync_DedupeKeepsDifferentOptionsApart(t *testing.T) {
	s := store.NewMemory()
	id := seed(t, s, fullRecord())
	crm := newBlockingCRM()
	o := New(crm, s, WithDedupe(true))

	results := make([]*Result, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r, err := o.Sync(context.Background(), id, Options{CreateCompany: true})
		assert.NoError(t, err)
		results[0] = r
	}()
	<-crm.entered
	go func() {
		defer wg.Done()
		r, err := o.Sync(context.Background(), id, DefaultOptions())
		assert.NoError(t, err)
		results[1] = r
	}()
	<-crm.entered
	close(crm.release)
	wg.Wait()

	assert.Equal(t, int32(2), crm.companies.Load())
	require.NotNil(t, results[0])
	require.NotNil(t, results[1])
	assert.NotEqual(t, results[0].RunID, results[1].RunID)
	assert.Equal(t, StatusSkipped, results[0].Results.Deal.Status)
	assert.Equal(t, StatusSuccess, results[1].Results.Contact.Status)
	assert.Equal(t, StatusSuccess, results[1].Results.Deal.Status)
}

func TestSync_DedupeSurvivesFirstCallerCancel(t *testing.T) {
	s := store.NewMemory()
	id := seed(t, s, fullRecord())
	crm := newBlockingCRM()
	o := New(crm, s, WithDedupe(true))

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := o.Sync(ctx, id, DefaultOptions())
		firstErr <- err
	}()
	<-crm.entered

	joined := make(chan *Result, 1)
	go func() {
		r, err := o.Sync(context.Background(), id, DefaultOptions())
		assert.NoError(t, err)
		joined <- r
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	err := <-firstErr
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	close(crm.release)
	res := <-joined
	require.NotNil(t, res)
	assert.Equal(t, int32(1), crm.companies.Load())
	assert.Equal(t, EntityResult{Status: StatusSuccess, Success: true, ID: "co"}, res.Results.Company)
	assert.Equal(t, StatusSuccess, res.Results.Contact.Status)
	assert.Equal(t, StatusSuccess, res.Results.Deal.Status)

	ext, err := s.GetExtraction(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ext.SyncedToHubspot)
}

// failingStore fails selected writes and delegates everything else.
type failingStore struct {
	*store.MemoryStore
	failCompany bool
	failUpdate  bool
}

func (f *failingStore) CreateCompany(ctx context.Context, c model.Company) (*model.Company, error) {
	if f.failCompany {
		return nil, errors.New("disk full")
	}
	return f.MemoryStore.CreateCompany(ctx, c)
}

func (f *failingStore) UpdateExtraction(ctx context.Context, id int64, upd model.ExtractionUpdate) (*model.Extraction, error) {
	if f.failUpdate {
		return nil, errors.New("database is locked")
	}
	return f.MemoryStore.UpdateExtraction(ctx, id, upd)
}

func allSucceedCRM() *mockCRM {
	crm := new(mockCRM)
	crm.On("CreateCompany", mock.Anything, mock.Anything).Return("co-1", nil)
	crm.On("CreateContact", mock.Anything, mock.Anything).Return("ct-1", nil)
	crm.On("CreateDeal", mock.Anything, mock.MatchedBy(func(in hubspot.DealInput) bool {
		return in.CompanyID == "co-1" && in.ContactID == "ct-1"
	})).Return("d-1", nil)
	return crm
}

func TestSync_MirrorWriteFailureKeepsStepSuccessful(t *testing.T) {
	mem := store.NewMemory()
	id := seed(t, mem, fullRecord())
	st := &failingStore{MemoryStore: mem, failCompany: true}
	crm := allSucceedCRM()

	res, err := New(crm, st).Sync(context.Background(), id, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, EntityResult{Status: StatusSuccess, Success: true, ID: "co-1"}, res.Results.Company)
	assert.Equal(t, StatusSuccess, res.Results.Contact.Status)
	assert.Equal(t, StatusSuccess, res.Results.Deal.Status)
	crm.AssertExpectations(t)

	ctx := context.Background()
	_, err = mem.GetCompany(ctx, 1)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	contact, err := mem.GetContact(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, contact.CompanyID)

	deal, err := mem.GetDeal(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, deal.CompanyID)
	assert.Equal(t, contact.ID, model.Deref(deal.ContactID))

	ext, err := mem.GetExtraction(ctx, id)
	require.NoError(t, err)
	assert.True(t, ext.SyncedToHubspot)
}

func TestSync_MarkSyncedFailure(t *testing.T) {
	mem := store.NewMemory()
	id := seed(t, mem, fullRecord())
	st := &failingStore{MemoryStore: mem, failUpdate: true}
	crm := allSucceedCRM()

	res, err := New(crm, st).Sync(context.Background(), id, DefaultOptions())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "sync: mark extraction")
	assert.Contains(t, err.Error(), "database is locked")
	crm.AssertNumberOfCalls(t, "CreateDeal", 1)

	ext, err := mem.GetExtraction(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, ext.SyncedToHubspot)
}

func TestOptionFlags_Resolve(t *testing.T) {
	var nilFlags *OptionFlags
	assert.Equal(t, DefaultOptions(), nilFlags.Resolve())

	var flags OptionFlags
	require.NoError(t, json.Unmarshal([]byte(`{"createDeal":false}`), &flags))
	assert.Equal(t, Options{CreateContact: true, CreateCompany: true, CreateDeal: false}, flags.Resolve())
}

func TestResult_JSON(t *testing.T) {
	res := Result{
		Success: true,
		RunID:   "run-1",
		Results: Results{
			Company: succeeded("123"),
			Contact: skipped("no email"),
			Deal:    EntityResult{Status: StatusFailed, Error: "boom"},
		},
	}
	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"success": true, "runId": "run-1", "extractionId": 0,
		"results": {
			"company": {"status":"success","success":true,"id":"123"},
			"contact": {"status":"skipped","success":false,"reason":"no email"},
			"deal":    {"status":"failed","success":false,"error":"boom"}
		}}`, string(b))
}

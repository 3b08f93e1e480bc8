package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crm-extract/internal/apperr"
	"github.com/sells-group/crm-extract/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func newTestMemory(t *testing.T) Store {
	t.Helper()
	return NewMemory()
}

func TestMemoryStore(t *testing.T) {
	storeTestSuite(t, newTestMemory)
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndGetExtraction", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		e, err := s.CreateExtraction(ctx, "Met Jane", `{"contact":{"confidence":0}}`)
		require.NoError(t, err)
		assert.Positive(t, e.ID)
		assert.False(t, e.SyncedToHubspot)
		assert.False(t, e.CreatedAt.IsZero())

		got, err := s.GetExtraction(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, e.ID, got.ID)
		assert.Equal(t, "Met Jane", got.MeetingSummary)
		assert.Equal(t, `{"contact":{"confidence":0}}`, got.ExtractedData)
		assert.False(t, got.SyncedToHubspot)
	})

	t.Run("IDsIncrease", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var last int64
		for i := 0; i < 5; i++ {
			e, err := s.CreateExtraction(ctx, "summary", "{}")
			require.NoError(t, err)
			assert.Greater(t, e.ID, last)
			last = e.ID
		}
	})

	t.Run("GetExtractionNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetExtraction(context.Background(), 999)
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})

	t.Run("UpdateExtraction", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		e, err := s.CreateExtraction(ctx, "summary", "{}")
		require.NoError(t, err)

		synced := true
		got, err := s.UpdateExtraction(ctx, e.ID, model.ExtractionUpdate{SyncedToHubspot: &synced})
		require.NoError(t, err)
		assert.True(t, got.SyncedToHubspot)
		assert.Equal(t, "summary", got.MeetingSummary)

		reread, err := s.GetExtraction(ctx, e.ID)
		require.NoError(t, err)
		assert.True(t, reread.SyncedToHubspot)

		unchanged, err := s.UpdateExtraction(ctx, e.ID, model.ExtractionUpdate{})
		require.NoError(t, err)
		assert.True(t, unchanged.SyncedToHubspot)
	})

	t.Run("UpdateExtractionNotFound", func(t *testing.T) {
		s := newStore(t)
		synced := true
		_, err := s.UpdateExtraction(context.Background(), 42, model.ExtractionUpdate{SyncedToHubspot: &synced})
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})

	t.Run("ListExtractionsNewestFirst", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		list, err := s.ListExtractions(ctx)
		require.NoError(t, err)
		assert.Empty(t, list)

		for _, summary := range []string{"first", "second", "third"} {
			_, err := s.CreateExtraction(ctx, summary, "{}")
			require.NoError(t, err)
		}

		list, err = s.ListExtractions(ctx)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "third", list[0].MeetingSummary)
		assert.Equal(t, "second", list[1].MeetingSummary)
		assert.Equal(t, "first", list[2].MeetingSummary)
	})

	t.Run("CompanyMirror", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		c, err := s.CreateCompany(ctx, model.Company{
			Name:       model.Ptr("Acme Corp"),
			Website:    model.Ptr("acme.com"),
			Confidence: 85,
			HubspotID:  model.Ptr("co-1"),
		})
		require.NoError(t, err)
		assert.Positive(t, c.ID)

		got, err := s.GetCompany(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "Acme Corp", model.Deref(got.Name))
		assert.Nil(t, got.Industry)
		assert.Nil(t, got.Size)
		assert.Equal(t, "acme.com", model.Deref(got.Website))
		assert.Equal(t, 85, got.Confidence)
		assert.Equal(t, "co-1", model.Deref(got.HubspotID))
	})

	t.Run("ContactAndDealMirrorsWithLinks", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		co, err := s.CreateCompany(ctx, model.Company{Name: model.Ptr("Acme")})
		require.NoError(t, err)

		ct, err := s.CreateContact(ctx, model.Contact{
			Name:       model.Ptr("Jane Doe"),
			Email:      model.Ptr("jane@acme.com"),
			Confidence: 90,
			HubspotID:  model.Ptr("c-1"),
			CompanyID:  &co.ID,
		})
		require.NoError(t, err)

		d, err := s.CreateDeal(ctx, model.Deal{
			Name:       model.Ptr("Acme - Pilot"),
			Value:      model.Ptr(50000.0),
			Stage:      model.Ptr("Proposal"),
			Confidence: 70,
			HubspotID:  model.Ptr("d-1"),
			ContactID:  &ct.ID,
			CompanyID:  &co.ID,
		})
		require.NoError(t, err)

		gotContact, err := s.GetContact(ctx, ct.ID)
		require.NoError(t, err)
		assert.Equal(t, "jane@acme.com", model.Deref(gotContact.Email))
		assert.Nil(t, gotContact.Phone)
		require.NotNil(t, gotContact.CompanyID)
		assert.Equal(t, co.ID, *gotContact.CompanyID)

		gotDeal, err := s.GetDeal(ctx, d.ID)
		require.NoError(t, err)
		assert.InDelta(t, 50000.0, model.Deref(gotDeal.Value), 0.001)
		assert.Nil(t, gotDeal.CloseDate)
		require.NotNil(t, gotDeal.ContactID)
		assert.Equal(t, ct.ID, *gotDeal.ContactID)
		require.NotNil(t, gotDeal.CompanyID)
		assert.Equal(t, co.ID, *gotDeal.CompanyID)
	})

	t.Run("MirrorWithoutLinks", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		d, err := s.CreateDeal(ctx, model.Deal{Name: model.Ptr("Solo")})
		require.NoError(t, err)

		got, err := s.GetDeal(ctx, d.ID)
		require.NoError(t, err)
		assert.Nil(t, got.ContactID)
		assert.Nil(t, got.CompanyID)
		assert.Nil(t, got.Value)
		assert.Nil(t, got.HubspotID)
	})

	t.Run("MirrorNotFound", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.GetContact(ctx, 7)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
		_, err = s.GetCompany(ctx, 7)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
		_, err = s.GetDeal(ctx, 7)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})
}

package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/comproum/internal/model"
	"github.com/mmeshcher/comproum/internal/repository"
)

func newIntent(t *testing.T, s *Store) *model.Intent {
	t.Helper()
	in := &model.Intent{
		ID:          uuid.Must(uuid.NewV4()),
		UserID:      uuid.Must(uuid.NewV4()),
		Type:        model.IntentTypeBuy,
		Category:    "Eletrônicos & TI",
		ProductName: "MacBook Air",
		Budget:      650000,
		Condition:   model.ConditionBoth,
		Status:      model.IntentStatusOpen,
	}
	require.NoError(t, s.CreateIntent(context.Background(), in))
	return in
}

func newOffer(intentID uuid.UUID) *model.Offer {
	return &model.Offer{
		ID:         uuid.Must(uuid.NewV4()),
		IntentID:   intentID,
		SupplierID: uuid.Must(uuid.NewV4()),
		Price:      640000,
		Condition:  model.ConditionNew,
		Status:     model.OfferStatusPending,
		ValidUntil: time.Now().Add(72 * time.Hour),
	}
}

func TestCreateUser_Uniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, &model.User{
		ID: uuid.Must(uuid.NewV4()), Username: "Maria", Document: "123.456.789-00", Role: model.RoleBuyer,
	}))

	err := s.CreateUser(ctx, &model.User{
		ID: uuid.Must(uuid.NewV4()), Username: "maria", Document: "999", Role: model.RoleBuyer,
	})
	require.ErrorIs(t, err, repository.ErrUserExists)

	err = s.CreateUser(ctx, &model.User{
		ID: uuid.Must(uuid.NewV4()), Username: "joao", Document: "12345678900", Role: model.RoleBuyer,
	})
	require.ErrorIs(t, err, repository.ErrDocumentExists)

	u, err := s.GetUserByDocument(ctx, "123-456-789.00")
	require.NoError(t, err)
	assert.Equal(t, "Maria", u.Username)

	u, err = s.GetUserByUsername(ctx, "MARIA")
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.Version)
}

func TestUpdateUser_VersionConflict(t *testing.T) {
	s := New()
	ctx := context.Background()

	u := &model.User{ID: uuid.Must(uuid.NewV4()), Username: "maria", Document: "1", Role: model.RoleBuyer}
	require.NoError(t, s.CreateUser(ctx, u))

	stale, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)

	u.Name = "Maria Silva"
	require.NoError(t, s.UpdateUser(ctx, u))
	assert.Equal(t, int64(2), u.Version)

	stale.Name = "Outra"
	require.ErrorIs(t, s.UpdateUser(ctx, stale), repository.ErrVersionConflict)

	got, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Maria Silva", got.Name)
}

func TestCreateOffer_IncrementsCount(t *testing.T) {
	s := New()
	ctx := context.Background()
	in := newIntent(t, s)

	require.NoError(t, s.CreateOffer(ctx, newOffer(in.ID)))

	got, err := s.GetIntent(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.OffersCount)
}

func TestCreateOffer_ConcurrentProposals(t *testing.T) {
	s := New()
	ctx := context.Background()
	in := newIntent(t, s)

	const n = 50
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.CreateOffer(ctx, newOffer(in.ID)))
		}()
	}
	wg.Wait()

	got, err := s.GetIntent(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, n, got.OffersCount)

	offers, err := s.ListOffersByIntent(ctx, in.ID)
	require.NoError(t, err)
	assert.Len(t, offers, n)
}

func TestCreateOffer_ClosedOrMissingIntent(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.ErrorIs(t, s.CreateOffer(ctx, newOffer(uuid.Must(uuid.NewV4()))), repository.ErrNotFound)

	in := newIntent(t, s)
	in.Status = model.IntentStatusClosed
	require.NoError(t, s.UpdateIntent(ctx, in))

	require.ErrorIs(t, s.CreateOffer(ctx, newOffer(in.ID)), repository.ErrIntentClosed)
}

func TestAcceptOffer_ClosesIntent(t *testing.T) {
	s := New()
	ctx := context.Background()
	in := newIntent(t, s)

	o := newOffer(in.ID)
	require.NoError(t, s.CreateOffer(ctx, o))

	o.Status = model.OfferStatusAccepted
	require.NoError(t, s.AcceptOffer(ctx, o))
	assert.Equal(t, int64(2), o.Version)

	got, err := s.GetIntent(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, model.IntentStatusClosed, got.Status)

	other := newOffer(in.ID)
	require.ErrorIs(t, s.CreateOffer(ctx, other), repository.ErrIntentClosed)
}

func TestUpdateOpenOffer_RefusesClosedIntent(t *testing.T) {
	s := New()
	ctx := context.Background()
	in := newIntent(t, s)

	accepted := newOffer(in.ID)
	pending := newOffer(in.ID)
	require.NoError(t, s.CreateOffer(ctx, accepted))
	require.NoError(t, s.CreateOffer(ctx, pending))

	pending.Status = model.OfferStatusCounterOffered
	require.NoError(t, s.UpdateOpenOffer(ctx, pending))
	assert.Equal(t, int64(2), pending.Version)

	accepted.Status = model.OfferStatusAccepted
	require.NoError(t, s.AcceptOffer(ctx, accepted))

	pending.Status = model.OfferStatusPending
	require.ErrorIs(t, s.UpdateOpenOffer(ctx, pending), repository.ErrIntentClosed)
	assert.Equal(t, int64(2), pending.Version)

	got, err := s.GetOffer(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OfferStatusCounterOffered, got.Status)
}

func TestUpdateOffer_VersionConflictKeepsStored(t *testing.T) {
	s := New()
	ctx := context.Background()
	in := newIntent(t, s)

	o := newOffer(in.ID)
	require.NoError(t, s.CreateOffer(ctx, o))

	first, err := s.GetOffer(ctx, o.ID)
	require.NoError(t, err)
	second, err := s.GetOffer(ctx, o.ID)
	require.NoError(t, err)

	first.Status = model.OfferStatusRejected
	require.NoError(t, s.UpdateOffer(ctx, first))

	second.Status = model.OfferStatusAccepted
	require.ErrorIs(t, s.UpdateOffer(ctx, second), repository.ErrVersionConflict)

	got, err := s.GetOffer(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OfferStatusRejected, got.Status)

	intent, err := s.GetIntent(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, intent.OffersCount)
}

func TestGetOffer_ReturnsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	in := newIntent(t, s)

	o := newOffer(in.ID)
	o.Images = []string{"a.png"}
	require.NoError(t, s.CreateOffer(ctx, o))

	got, err := s.GetOffer(ctx, o.ID)
	require.NoError(t, err)
	got.Images[0] = "changed.png"

	again, err := s.GetOffer(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png"}, again.Images)
}

func TestListOpenIntents(t *testing.T) {
	s := New()
	ctx := context.Background()

	open := newIntent(t, s)
	closed := newIntent(t, s)
	closed.Status = model.IntentStatusClosed
	require.NoError(t, s.UpdateIntent(ctx, closed))

	got, err := s.ListOpenIntents(ctx, []string{"Eletrônicos & TI"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, open.ID, got[0].ID)

	got, err = s.ListOpenIntents(ctx, []string{"Automotivo"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListAll_OrderedAndCopied(t *testing.T) {
	s := New()
	ctx := context.Background()

	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"b", "a"} {
		require.NoError(t, s.CreateUser(ctx, &model.User{
			ID:        uuid.Must(uuid.NewV4()),
			Username:  name,
			Document:  fmt.Sprintf("%011d", i),
			Role:      model.RoleBuyer,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "b", users[0].Username)

	older := newIntent(t, s)
	newer := &model.Intent{
		ID: uuid.Must(uuid.NewV4()), UserID: older.UserID, Type: model.IntentTypeBuy,
		Category: older.Category, ProductName: "iPad", Budget: 1, Condition: model.ConditionNew,
		Status: model.IntentStatusClosed, CreatedAt: older.CreatedAt.Add(time.Minute),
	}
	require.NoError(t, s.CreateIntent(ctx, newer))

	intents, err := s.ListIntents(ctx)
	require.NoError(t, err)
	require.Len(t, intents, 2)
	assert.Equal(t, newer.ID, intents[0].ID)

	o := newOffer(older.ID)
	o.Images = []string{"a.jpg"}
	require.NoError(t, s.CreateOffer(ctx, o))

	offers, err := s.ListOffers(ctx)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	offers[0].Images[0] = "changed.jpg"

	again, err := s.ListOffers(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a.jpg", again[0].Images[0])
}

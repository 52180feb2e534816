package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/comproum/internal/model"
)

func newRepo(t *testing.T) (*PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	r := NewPostgresRepositoryWithPool(mock)
	r.retryDelays = []time.Duration{time.Millisecond}
	return r, mock
}

func testOffer() *model.Offer {
	return &model.Offer{
		ID:           uuid.Must(uuid.NewV4()),
		IntentID:     uuid.Must(uuid.NewV4()),
		SupplierID:   uuid.Must(uuid.NewV4()),
		SupplierName: "Loja Tech",
		ProductName:  "MacBook Air",
		Price:        640000,
		Condition:    model.ConditionNew,
		Description:  "lacrado",
		Images:       []string{},
		PaymentTerms: "pix",
		Status:       model.OfferStatusPending,
		ValidUntil:   time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC),
	}
}

var offerRowColumns = []string{
	"id", "intent_id", "supplier_id", "supplier_name", "product_name", "price", "counter_price",
	"condition", "description", "images", "payment_terms", "status", "valid_until", "follow_up_at",
	"buyer_feedback", "version", "created_at", "updated_at",
}

func TestCreateOffer_OK(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	o := testOffer()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM intents WHERE id = \$1 FOR UPDATE`).
		WithArgs(o.IntentID).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("OPEN"))
	mock.ExpectExec(`INSERT INTO offers`).
		WithArgs(o.ID, o.IntentID, o.SupplierID, o.SupplierName, o.ProductName, o.Price, o.CounterPrice,
			"NEW", o.Description, []string{}, o.PaymentTerms, "PENDING", o.ValidUntil, o.FollowUpAt, "",
			int64(1), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE intents SET offers_count = offers_count \+ 1`).
		WithArgs(o.IntentID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, r.CreateOffer(context.Background(), o))
	assert.Equal(t, int64(1), o.Version)
	assert.False(t, o.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOffer_ClosedIntent(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	o := testOffer()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM intents WHERE id = \$1 FOR UPDATE`).
		WithArgs(o.IntentID).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("CLOSED"))
	mock.ExpectRollback()

	require.ErrorIs(t, r.CreateOffer(context.Background(), o), ErrIntentClosed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOffer_MissingIntent(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	o := testOffer()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM intents WHERE id = \$1 FOR UPDATE`).
		WithArgs(o.IntentID).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	require.ErrorIs(t, r.CreateOffer(context.Background(), o), ErrNotFound)
}

func TestCreateOffer_RetriesSerializationFailure(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	o := testOffer()

	mock.ExpectBegin().WillReturnError(&pgconn.PgError{Code: pgerrcode.SerializationFailure})
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM intents`).
		WithArgs(o.IntentID).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("OPEN"))
	mock.ExpectExec(`INSERT INTO offers`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE intents SET offers_count`).
		WithArgs(o.IntentID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, r.CreateOffer(context.Background(), o))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOffer_VersionConflict(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	o := testOffer()
	o.Version = 3

	mock.ExpectExec(`UPDATE offers`).
		WithArgs(o.ID, int64(3), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.ErrorIs(t, r.UpdateOffer(context.Background(), o), ErrVersionConflict)
	assert.Equal(t, int64(3), o.Version)
}

func TestAcceptOffer_ClosesIntent(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	o := testOffer()
	o.Version = 2
	o.Status = model.OfferStatusAccepted

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM intents WHERE id = \$1 FOR UPDATE`).
		WithArgs(o.IntentID).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("OPEN"))
	mock.ExpectExec(`UPDATE offers`).
		WithArgs(o.ID, int64(2), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), "ACCEPTED", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE intents SET status = 'CLOSED'`).
		WithArgs(o.IntentID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, r.AcceptOffer(context.Background(), o))
	assert.Equal(t, int64(3), o.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOpenOffer_LocksIntent(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	o := testOffer()
	o.Version = 3
	o.Status = model.OfferStatusPending

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM intents WHERE id = \$1 FOR UPDATE`).
		WithArgs(o.IntentID).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("OPEN"))
	mock.ExpectExec(`UPDATE offers`).
		WithArgs(o.ID, int64(3), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), "PENDING", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, r.UpdateOpenOffer(context.Background(), o))
	assert.Equal(t, int64(4), o.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOpenOffer_ClosedIntent(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	o := testOffer()
	o.Version = 3
	o.Status = model.OfferStatusCounterOffered

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM intents WHERE id = \$1 FOR UPDATE`).
		WithArgs(o.IntentID).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("CLOSED"))
	mock.ExpectRollback()

	err := r.UpdateOpenOffer(context.Background(), o)
	require.ErrorIs(t, err, ErrIntentClosed)
	assert.Equal(t, int64(3), o.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOffer(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	o := testOffer()
	counter := int64(580000)
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .+ FROM offers WHERE id = \$1`).
		WithArgs(o.ID).
		WillReturnRows(pgxmock.NewRows(offerRowColumns).AddRow(
			o.ID, o.IntentID, o.SupplierID, o.SupplierName, o.ProductName, o.Price, &counter,
			"NEW", o.Description, []string{"a.png"}, o.PaymentTerms, "COUNTER_OFFERED", o.ValidUntil,
			(*time.Time)(nil), "too high", int64(2), now, now,
		))

	got, err := r.GetOffer(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OfferStatusCounterOffered, got.Status)
	require.NotNil(t, got.CounterPrice)
	assert.Equal(t, counter, *got.CounterPrice)
	assert.Nil(t, got.FollowUpAt)
	assert.Equal(t, []string{"a.png"}, got.Images)
}

func TestGetOffer_NotFound(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	id := uuid.Must(uuid.NewV4())
	mock.ExpectQuery(`SELECT .+ FROM offers WHERE id = \$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := r.GetOffer(context.Background(), id)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetOffer_UnknownStatus(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	o := testOffer()
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM offers WHERE id = \$1`).
		WithArgs(o.ID).
		WillReturnRows(pgxmock.NewRows(offerRowColumns).AddRow(
			o.ID, o.IntentID, o.SupplierID, o.SupplierName, o.ProductName, o.Price, (*int64)(nil),
			"NEW", o.Description, []string{}, o.PaymentTerms, "WITHDRAWN", o.ValidUntil,
			(*time.Time)(nil), "", int64(1), now, now,
		))

	_, err := r.GetOffer(context.Background(), o.ID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestCreateUser_UniqueViolations(t *testing.T) {
	tests := []struct {
		constraint string
		want       error
	}{
		{"users_username_lower_idx", ErrUserExists},
		{"users_document_digits_idx", ErrDocumentExists},
	}

	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			r, mock := newRepo(t)
			defer mock.Close()

			mock.ExpectExec(`INSERT INTO users`).
				WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: tt.constraint})

			u := &model.User{
				ID:       uuid.Must(uuid.NewV4()),
				Username: "maria",
				Document: "123.456.789-00",
				Role:     model.RoleBuyer,
			}
			require.ErrorIs(t, r.CreateUser(context.Background(), u), tt.want)
		})
	}
}

func TestGetUserByUsername(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	id := uuid.Must(uuid.NewV4())
	addr, err := json.Marshal(addressJSON{Street: "Rua A", Number: "10", City: "São Paulo", State: "SP", Zip: "01001000"})
	require.NoError(t, err)
	pay, err := json.Marshal(paymentJSON{Type: "PIX", Details: "maria@pix"})
	require.NoError(t, err)

	mock.ExpectQuery(`FROM users WHERE lower\(username\) = lower\(\$1\)`).
		WithArgs("MARIA").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "username", "password_hash", "password_salt", "email", "phone", "document", "role",
			"registration_address", "delivery_address", "payment_method", "quick_payment_enabled",
			"business_segments", "version", "created_at",
		}).AddRow(
			id, "Maria", "maria", []byte("hash"), []byte("salt"), "maria@example.com", "11999999999",
			"12345678900", "BUYER", addr, []byte(nil), pay, true, []string{}, int64(1), time.Now(),
		))

	u, err := r.GetUserByUsername(context.Background(), "MARIA")
	require.NoError(t, err)
	assert.Equal(t, model.RoleBuyer, u.Role)
	assert.Equal(t, "Rua A", u.RegistrationAddress.Street)
	assert.Nil(t, u.DeliveryAddress)
	require.NotNil(t, u.PaymentMethod)
	assert.Equal(t, model.PaymentPix, u.PaymentMethod.Type)
}

func TestGetUserByDocument_IgnoresFormatting(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	mock.ExpectQuery(`FROM users WHERE document_digits = \$1`).
		WithArgs("12345678900").
		WillReturnError(pgx.ErrNoRows)

	_, err := r.GetUserByDocument(context.Background(), "123.456.789-00")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateUser_VersionConflict(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	u := &model.User{ID: uuid.Must(uuid.NewV4()), Version: 4, Role: model.RoleBuyer}

	mock.ExpectExec(`UPDATE users`).
		WithArgs(u.ID, int64(4), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.ErrorIs(t, r.UpdateUser(context.Background(), u), ErrVersionConflict)
}

func TestListOpenIntents(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	cats := []string{"Eletrônicos & TI"}
	id := uuid.Must(uuid.NewV4())
	owner := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`WHERE status = 'OPEN' AND category = ANY\(\$1\)`).
		WithArgs(cats).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "user_id", "type", "category", "product_name", "description", "budget", "condition",
			"status", "offers_count", "version", "created_at",
		}).AddRow(id, owner, "BUY", cats[0], "MacBook", "M3", int64(650000), "BOTH", "OPEN", 0, int64(1), time.Now()))

	got, err := r.ListOpenIntents(context.Background(), cats)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.ConditionBoth, got[0].Condition)

	none, err := r.ListOpenIntents(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestWithRetry_StopsOnNonRetryable(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	calls := 0
	err := r.withRetry(context.Background(), func() error {
		calls++
		return ErrNotFound
	})
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, calls)

	calls = 0
	err = r.withRetry(context.Background(), func() error {
		calls++
		return &pgconn.PgError{Code: pgerrcode.DeadlockDetected}
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestListAll(t *testing.T) {
	r, mock := newRepo(t)
	defer mock.Close()

	addr, err := json.Marshal(addressJSON{Street: "Rua B", City: "Recife", Zip: "50000000"})
	require.NoError(t, err)

	mock.ExpectQuery(`FROM users ORDER BY created_at$`).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "username", "password_hash", "password_salt", "email", "phone", "document", "role",
			"registration_address", "delivery_address", "payment_method", "quick_payment_enabled",
			"business_segments", "version", "created_at",
		}).AddRow(
			uuid.Must(uuid.NewV4()), "Loja", "loja", []byte("hash"), []byte("salt"), "loja@example.com", "",
			"12345678000199", "SUPPLIER", addr, []byte(nil), []byte(nil), false,
			[]string{"Automotivo"}, int64(3), time.Now(),
		))

	users, err := r.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.True(t, users[0].HasSegment("Automotivo"))
	assert.Nil(t, users[0].PaymentMethod)

	mock.ExpectQuery(`FROM intents ORDER BY created_at DESC`).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "user_id", "type", "category", "product_name", "description", "budget", "condition",
			"status", "offers_count", "version", "created_at",
		}).AddRow(uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4()), "TRADE", "Automotivo", "Pneu", "", int64(40000),
			"USED", "EXPIRED", 2, int64(4), time.Now()))

	intents, err := r.ListIntents(context.Background())
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, model.IntentStatusExpired, intents[0].Status)

	o := testOffer()
	now := time.Now()
	mock.ExpectQuery(`FROM offers ORDER BY created_at DESC`).
		WillReturnRows(pgxmock.NewRows(offerRowColumns).AddRow(
			o.ID, o.IntentID, o.SupplierID, o.SupplierName, o.ProductName, o.Price, (*int64)(nil),
			"USED", o.Description, []string{}, o.PaymentTerms, "REJECTED", o.ValidUntil,
			&now, "", int64(2), now, now,
		))

	offers, err := r.ListOffers(context.Background())
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, model.OfferStatusRejected, offers[0].Status)
	require.NotNil(t, offers[0].FollowUpAt)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization failure", &pgconn.PgError{Code: pgerrcode.SerializationFailure}, true},
		{"admin shutdown is not a connection exception", &pgconn.PgError{Code: pgerrcode.AdminShutdown}, false},
		{"connection failure", &pgconn.PgError{Code: pgerrcode.ConnectionFailure}, true},
		{"unique violation", &pgconn.PgError{Code: pgerrcode.UniqueViolation}, false},
		{"wrapped deadlock", fmt.Errorf("accept offer: %w", &pgconn.PgError{Code: pgerrcode.DeadlockDetected}), true},
		{"context canceled", context.Canceled, false},
		{"domain error", ErrVersionConflict, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, transient(tc.err))
		})
	}
}

package negotiation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/comproum/internal/model"
)

func TestNext(t *testing.T) {
	tests := []struct {
		from    model.OfferStatus
		ev      Event
		want    model.OfferStatus
		illegal bool
	}{
		{model.OfferStatusPending, EventAccept, model.OfferStatusAccepted, false},
		{model.OfferStatusPending, EventReject, model.OfferStatusRejected, false},
		{model.OfferStatusPending, EventCounter, model.OfferStatusCounterOffered, false},
		{model.OfferStatusPending, EventRepropose, "", true},

		{model.OfferStatusCounterOffered, EventAccept, model.OfferStatusAccepted, false},
		{model.OfferStatusCounterOffered, EventReject, model.OfferStatusRejected, false},
		{model.OfferStatusCounterOffered, EventCounter, "", true},
		{model.OfferStatusCounterOffered, EventRepropose, model.OfferStatusPending, false},

		{model.OfferStatusRejected, EventAccept, "", true},
		{model.OfferStatusRejected, EventReject, "", true},
		{model.OfferStatusRejected, EventCounter, "", true},
		{model.OfferStatusRejected, EventRepropose, model.OfferStatusPending, false},

		{model.OfferStatusAccepted, EventAccept, "", true},
		{model.OfferStatusAccepted, EventReject, "", true},
		{model.OfferStatusAccepted, EventCounter, "", true},
		{model.OfferStatusAccepted, EventRepropose, "", true},

		{model.OfferStatus("BOGUS"), EventAccept, "", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.ev), func(t *testing.T) {
			got, err := Next(tt.from, tt.ev)
			if tt.illegal {
				require.ErrorIs(t, err, ErrIllegalTransition)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCounter_PreservesPrice(t *testing.T) {
	o := &model.Offer{Status: model.OfferStatusPending, Price: 640000}

	require.NoError(t, Counter(o, 580000, "too high"))

	assert.Equal(t, model.OfferStatusCounterOffered, o.Status)
	assert.Equal(t, int64(640000), o.Price)
	require.NotNil(t, o.CounterPrice)
	assert.Equal(t, int64(580000), *o.CounterPrice)
	assert.Equal(t, "too high", o.BuyerFeedback)
}

func TestCounter_OnlyFromPending(t *testing.T) {
	o := &model.Offer{Status: model.OfferStatusCounterOffered, Price: 100}
	err := Counter(o, 90, "")
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
	if o.CounterPrice != nil {
		t.Fatalf("counter price must stay unset on illegal transition")
	}
}

func TestCounter_RejectsNonPositivePrice(t *testing.T) {
	o := &model.Offer{Status: model.OfferStatusPending, Price: 100}
	require.ErrorIs(t, Counter(o, 0, ""), ErrInvalidPrice)
	assert.Equal(t, model.OfferStatusPending, o.Status)
}

func TestRepropose_AlwaysPending(t *testing.T) {
	for _, from := range []model.OfferStatus{model.OfferStatusRejected, model.OfferStatusCounterOffered} {
		counter := int64(580000)
		o := &model.Offer{
			Status:        from,
			Price:         640000,
			CounterPrice:  &counter,
			BuyerFeedback: "too high",
			PaymentTerms:  "pix",
		}
		valid := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)

		err := Repropose(o, Terms{Price: 590000, Description: "new terms", Images: []string{"a.png"}, ValidUntil: valid})
		require.NoError(t, err)

		assert.Equal(t, model.OfferStatusPending, o.Status)
		assert.Equal(t, int64(590000), o.Price)
		assert.Nil(t, o.CounterPrice)
		assert.Empty(t, o.BuyerFeedback)
		assert.Equal(t, "pix", o.PaymentTerms)
		assert.Equal(t, valid, o.ValidUntil)
		assert.Equal(t, []string{"a.png"}, o.Images)
	}
}

func TestAccept_TerminalState(t *testing.T) {
	o := &model.Offer{Status: model.OfferStatusPending}
	require.NoError(t, Accept(o))

	require.ErrorIs(t, Accept(o), ErrIllegalTransition)
	require.ErrorIs(t, Reject(o), ErrIllegalTransition)
	assert.Equal(t, model.OfferStatusAccepted, o.Status)
}

func TestAccept_RejectedOfferRefused(t *testing.T) {
	o := &model.Offer{Status: model.OfferStatusRejected}
	require.ErrorIs(t, Accept(o), ErrIllegalTransition)
	assert.Equal(t, model.OfferStatusRejected, o.Status)
}

func TestResolveCondition(t *testing.T) {
	tests := []struct {
		name    string
		intent  model.Condition
		chosen  model.Condition
		want    model.Condition
		wantErr bool
	}{
		{"both defaults to new", model.ConditionBoth, "", model.ConditionNew, false},
		{"both honours used", model.ConditionBoth, model.ConditionUsed, model.ConditionUsed, false},
		{"fixed intent fills empty choice", model.ConditionUsed, "", model.ConditionUsed, false},
		{"matching choice accepted", model.ConditionNew, model.ConditionNew, model.ConditionNew, false},
		{"conflicting choice rejected", model.ConditionNew, model.ConditionUsed, "", true},
		{"used intent rejects new", model.ConditionUsed, model.ConditionNew, "", true},
		{"supplier cannot pick both", model.ConditionBoth, model.ConditionBoth, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveCondition(tt.intent, tt.chosen)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidCondition)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

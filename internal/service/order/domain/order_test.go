package domain

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCartMergesDuplicates(t *testing.T) {
	lines, err := NormalizeCart([]CartLine{
		{ProductID: "b", Quantity: 1},
		{ProductID: "a", Quantity: 2},
		{ProductID: " b ", Quantity: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, []CartLine{{ProductID: "a", Quantity: 2}, {ProductID: "b", Quantity: 4}}, lines)
}

func TestNormalizeCartRejectsBadLines(t *testing.T) {
	cases := [][]CartLine{
		nil,
		{{ProductID: "", Quantity: 1}},
		{{ProductID: "a", Quantity: 0}},
		{{ProductID: "a", Quantity: -2}},
		{{ProductID: "a", Quantity: math.MaxInt}, {ProductID: "a", Quantity: math.MaxInt}},
	}
	for _, c := range cases {
		_, err := NormalizeCart(c)
		assert.True(t, errors.Is(err, ErrInvalidCart), "%+v", c)
	}
}

func TestBuyerValidate(t *testing.T) {
	assert.NoError(t, Buyer{Name: "Maria", Email: "maria@example.gr"}.Validate())
	assert.NoError(t, Buyer{Name: "Maria", Phone: "+306900000000"}.Validate())

	for _, b := range []Buyer{
		{Email: "maria@example.gr"},
		{Name: "Maria"},
		{Name: "Maria", Email: "not-an-email"},
	} {
		assert.True(t, errors.Is(b.Validate(), ErrInvalidInput), "%+v", b)
	}
}

func TestTransitions(t *testing.T) {
	now := time.Now()
	o := &Order{Status: StatePaid}
	require.NoError(t, o.TransitionTo(StatePacking, now))
	require.NoError(t, o.TransitionTo(StateShipped, now))
	require.NoError(t, o.TransitionTo(StateDelivered, now))
	assert.Equal(t, StateDelivered, o.Status)

	err := o.TransitionTo(StateCancelled, now)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, StateDelivered, o.Status)

	assert.True(t, CanTransition(StatePaid, StateCancelled))
	assert.False(t, CanTransition(StateShipped, StateCancelled))
	assert.False(t, CanTransition(StatePaid, StatePaid))
}

func TestParseState(t *testing.T) {
	s, err := ParseState("SHIPPED")
	require.NoError(t, err)
	assert.Equal(t, StateShipped, s)

	_, err = ParseState("LOST")
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestNewTrackingToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		tok, err := NewTrackingToken()
		require.NoError(t, err)
		assert.Len(t, tok, 32)
		assert.False(t, seen[tok])
		seen[tok] = true
	}
}

func TestOutOfStockErrorUnwraps(t *testing.T) {
	var err error = &OutOfStockError{ProductID: "p1", Requested: 2, Available: 1}
	assert.True(t, errors.Is(err, ErrOutOfStock))

	var oos *OutOfStockError
	require.True(t, errors.As(err, &oos))
	assert.Equal(t, "p1", oos.ProductID)
}

func TestNewOrderCreatedGroupsItemsByProducer(t *testing.T) {
	o := &Order{
		ID: "o1",
		Items: []OrderItem{
			{ProductID: "oil", Quantity: 1, UnitPrice: decimal.NewFromInt(10), ProducerID: "grove"},
			{ProductID: "honey", Quantity: 2, UnitPrice: decimal.NewFromInt(5), ProducerID: "bees"},
			{ProductID: "olives", Quantity: 1, UnitPrice: decimal.NewFromInt(3), ProducerID: "grove"},
		},
	}
	producers := map[string]Producer{
		"grove": {ID: "grove", Name: "Grove", Email: "g@example.com"},
		"bees":  {ID: "bees", Name: "Bees", Email: "b@example.com"},
	}

	ev := NewOrderCreated(o, producers)
	require.Len(t, ev.Producers, 2)
	assert.Equal(t, "bees", ev.Producers[0].ID)
	assert.Len(t, ev.Producers[0].Items, 1)
	assert.Equal(t, "grove", ev.Producers[1].ID)
	assert.Len(t, ev.Producers[1].Items, 2)
	assert.Equal(t, 4, o.ItemCount())
}

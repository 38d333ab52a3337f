package collection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_SubscriptionOrder(t *testing.T) {
	var d Dispatcher
	var order []int

	for i := 1; i <= 3; i++ {
		d.Subscribe(AfterUpdate, func(context.Context, Event) error {
			order = append(order, i)
			return nil
		})
	}

	require.NoError(t, d.Fire(context.Background(), Event{Kind: AfterUpdate}))
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestDispatcher_Unsubscribe(t *testing.T) {
	var d Dispatcher
	calls := 0

	sub := d.Subscribe(AfterInsert, func(context.Context, Event) error {
		calls++
		return nil
	})
	other := d.Subscribe(AfterInsert, func(context.Context, Event) error { return nil })
	assert.Equal(t, 2, d.Subscribers(AfterInsert))

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 1, d.Subscribers(AfterInsert))

	require.NoError(t, d.Fire(context.Background(), Event{Kind: AfterInsert}))
	assert.Equal(t, 0, calls)

	other.Unsubscribe()
	assert.Equal(t, 0, d.Subscribers(AfterInsert))
}

func TestDispatcher_HandlerMayUnsubscribeDuringFire(t *testing.T) {
	var d Dispatcher
	var sub Subscription
	sub = d.Subscribe(AfterRemove, func(context.Context, Event) error {
		sub.Unsubscribe()
		return nil
	})

	require.NoError(t, d.Fire(context.Background(), Event{Kind: AfterRemove}))
	assert.Equal(t, 0, d.Subscribers(AfterRemove))
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "after-insert", AfterInsert.String())
	assert.Equal(t, "after-update", AfterUpdate.String())
	assert.Equal(t, "after-remove", AfterRemove.String())
	assert.Equal(t, "unknown", EventKind(0).String())
}

func TestUserContext(t *testing.T) {
	assert.Equal(t, "", UserFrom(context.Background()))
	assert.Equal(t, "u1", UserFrom(WithUser(context.Background(), "u1")))
}

package order

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================
// Transition Table Tests
// ============================================

func TestOrder_Plan(t *testing.T) {
	tests := []struct {
		from     Status
		event    Event
		want     Status
		wantNoop bool
		wantErr  bool
	}{
		{StatusPending, EventConfirm, StatusConfirmed, false, false},
		{StatusPending, EventCancel, StatusCancelled, false, false},
		{StatusPending, EventShip, "", false, true},
		{StatusPending, EventDeliver, "", false, true},
		{StatusConfirmed, EventShip, StatusShipped, false, false},
		{StatusConfirmed, EventCancel, StatusCancelled, false, false},
		{StatusConfirmed, EventConfirm, StatusConfirmed, true, false},
		{StatusConfirmed, EventDeliver, "", false, true},
		{StatusShipped, EventDeliver, StatusDelivered, false, false},
		{StatusShipped, EventShip, StatusShipped, true, false},
		{StatusShipped, EventCancel, "", false, true},
		{StatusShipped, EventConfirm, "", false, true},
		{StatusDelivered, EventDeliver, StatusDelivered, true, false},
		{StatusDelivered, EventCancel, "", false, true},
		{StatusCancelled, EventCancel, StatusCancelled, true, false},
		{StatusCancelled, EventShip, "", false, true},
		{StatusCancelled, EventConfirm, "", false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_"+string(tt.event), func(t *testing.T) {
			o := &Order{Status: tt.from}

			next, noop, err := o.Plan(tt.event)

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidTransition)
				var te *TransitionError
				require.True(t, errors.As(err, &te))
				assert.Equal(t, tt.from, te.Status)
				assert.Equal(t, tt.event, te.Event)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, next)
			assert.Equal(t, tt.wantNoop, noop)
		})
	}
}

func TestOrder_PlanUnknownEvent(t *testing.T) {
	o := &Order{Status: StatusPending}
	_, _, err := o.Plan(Event("refund"))
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestTransitionError_Message(t *testing.T) {
	err := &TransitionError{Status: StatusDelivered, Event: EventCancel}
	assert.Equal(t, "cannot cancel order in status delivered", err.Error())
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusDelivered.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusConfirmed.IsTerminal())
	assert.False(t, StatusShipped.IsTerminal())
}

func TestParseEvent(t *testing.T) {
	for _, name := range []string{"confirm", "ship", "deliver", "cancel"} {
		ev, err := ParseEvent(name)
		require.NoError(t, err)
		assert.Equal(t, Event(name), ev)
	}

	_, err := ParseEvent("pay")
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

// ============================================
// Value Tests
// ============================================

func TestComputeTotal(t *testing.T) {
	items := []LineItem{
		{ProductID: "p-1", Quantity: 2, UnitPrice: 1000},
		{ProductID: "p-2", Quantity: 1, UnitPrice: 2500},
	}
	assert.Equal(t, 4500, ComputeTotal(items))
	assert.Equal(t, 0, ComputeTotal(nil))
}

func TestOrder_CloneDoesNotShareItems(t *testing.T) {
	o := &Order{ID: "o-1", Items: []LineItem{{ProductID: "p-1", Quantity: 1}}}
	cp := o.Clone()
	cp.Items[0].Quantity = 9

	assert.Equal(t, 1, o.Items[0].Quantity)
}

func TestValidateItems(t *testing.T) {
	assert.ErrorIs(t, ValidateItems(nil), ErrEmptyOrder)
	assert.ErrorIs(t, ValidateItems([]LineItem{}), ErrEmptyOrder)
	assert.ErrorIs(t, ValidateItems([]LineItem{{ProductID: "p-1", Quantity: 0}}), ErrInvalidLineItem)
	assert.ErrorIs(t, ValidateItems([]LineItem{{ProductID: "", Quantity: 1}}), ErrInvalidLineItem)
	assert.ErrorIs(t, ValidateItems([]LineItem{{ProductID: "p-1", Quantity: 1, UnitPrice: -1}}), ErrInvalidLineItem)
	assert.NoError(t, ValidateItems([]LineItem{{ProductID: "p-1", Quantity: 1, UnitPrice: 0}}))
}

func TestNewNumber(t *testing.T) {
	now := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	n := NewNumber(now)

	assert.Regexp(t, regexp.MustCompile(`^ORD-20250304050607-[A-Z0-9]{4}$`), n)
}

package event

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type delivery struct {
	value string
	err   error
}

func recordInto(out *[]delivery) Callback[string] {
	return func(v string, err error) {
		*out = append(*out, delivery{value: v, err: err})
	}
}

func TestActionSlot_FireOnce(t *testing.T) {
	slot := NewActionSlot[string]("test", FireOnce)
	require.False(t, slot.Armed())
	require.Zero(t, slot.Deliver("a"))

	var got []delivery
	_, replaced := slot.Arm(recordInto(&got), nil)
	require.False(t, replaced)
	require.True(t, slot.Armed())

	require.Equal(t, 1, slot.Deliver("a", "b"))
	require.Equal(t, []delivery{{value: "a"}}, got)
	require.False(t, slot.Armed())

	// Once fired, later batches are not delivered to the same request.
	require.Zero(t, slot.Deliver("c"))
	require.Len(t, got, 1)
}

func TestActionSlot_FireOnceMatch(t *testing.T) {
	slot := NewActionSlot[string]("test", FireOnce)

	var got []delivery
	slot.Arm(recordInto(&got), func(v string) bool { return v == "b" })

	require.Zero(t, slot.Deliver("a"))
	require.True(t, slot.Armed())

	require.Equal(t, 1, slot.Deliver("c", "b", "b"))
	require.Equal(t, []delivery{{value: "b"}}, got)
	require.False(t, slot.Armed())
}

func TestActionSlot_FirePerItem(t *testing.T) {
	slot := NewActionSlot[string]("test", FirePerItem)

	var got []delivery
	slot.Arm(recordInto(&got), func(v string) bool { return v == "a" })

	require.Equal(t, 2, slot.Deliver("a", "b"))
	require.Equal(t, []delivery{{value: "a"}, {value: "b"}}, got)
	require.False(t, slot.Armed())
}

func TestActionSlot_Replace(t *testing.T) {
	slot := NewActionSlot[string]("test", FireOnce)

	var first, second []delivery
	firstID, _ := slot.Arm(recordInto(&first), nil)
	secondID, replaced := slot.Arm(recordInto(&second), nil)
	require.True(t, replaced)
	require.NotEqual(t, firstID, secondID)

	pending, ok := slot.Pending()
	require.True(t, ok)
	require.Equal(t, secondID, pending)

	slot.Deliver("a")
	require.Empty(t, first)
	require.Equal(t, []delivery{{value: "a"}}, second)
}

func TestActionSlot_Fail(t *testing.T) {
	slot := NewActionSlot[string]("test", FireOnce)
	require.False(t, slot.Fail(errors.New("nobody listening")))

	var got []delivery
	slot.Arm(recordInto(&got), func(string) bool { return false })

	failure := errors.New("failure")
	require.True(t, slot.Fail(failure))
	require.Len(t, got, 1)
	require.Equal(t, failure, got[0].err)
	require.False(t, slot.Armed())
}

func TestActionSlot_FailRequestAndExpire(t *testing.T) {
	slot := NewActionSlot[string]("test", FireOnce)

	var got []delivery
	staleID, _ := slot.Arm(recordInto(&got), nil)
	currentID, _ := slot.Arm(recordInto(&got), nil)

	require.False(t, slot.FailRequest(staleID, errors.New("stale")))
	require.False(t, slot.Expire(uuid.New()))
	require.Empty(t, got)

	require.True(t, slot.Expire(currentID))
	require.Len(t, got, 1)
	require.ErrorIs(t, got[0].err, ErrActionTimeout)

	require.False(t, slot.Expire(currentID))
	require.Len(t, got, 1)
}

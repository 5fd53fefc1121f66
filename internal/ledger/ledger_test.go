package ledger_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afisha-platform/booking-core/internal/ledger"
	"github.com/afisha-platform/booking-core/internal/model"
	"github.com/afisha-platform/booking-core/internal/store"
	"github.com/afisha-platform/booking-core/internal/store/memstore"
)

func newEvent(t *testing.T, st *memstore.Memstore, seats int, startAt time.Time, status model.EventStatus) *model.Event {
	t.Helper()
	event := &model.Event{
		ID:          fmt.Sprintf("event-%s", t.Name()),
		Title:       "Концерт",
		City:        "Москва",
		StartAt:     startAt,
		Seats:       seats,
		Status:      status,
		OrganizerID: "org-1",
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, st.CreateEvent(context.Background(), event))
	return event
}

func activeCount(t *testing.T, st *memstore.Memstore, eventID string) int {
	t.Helper()
	bookings, err := st.ListActiveBookings(context.Background(), eventID)
	require.NoError(t, err)
	return len(bookings)
}

func TestTryReserveNoOverbooking(t *testing.T) {
	st := memstore.New()
	l := ledger.NewSeatLedger(st)
	event := newEvent(t, st, 3, time.Now().UTC().Add(24*time.Hour), model.StatusExpected)

	const callers = 10
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.TryReserve(context.Background(), fmt.Sprintf("user-%d", i), event.ID)
		}(i)
	}
	wg.Wait()

	reserved, noSeats := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			reserved++
		case assert.ErrorIs(t, err, store.ErrNoSeats):
			noSeats++
		}
	}
	assert.Equal(t, 3, reserved)
	assert.Equal(t, 7, noSeats)
	assert.Equal(t, 3, activeCount(t, st, event.ID))
}

func TestTryReserveLastSeatRace(t *testing.T) {
	st := memstore.New()
	l := ledger.NewSeatLedger(st)
	event := newEvent(t, st, 1, time.Now().UTC().Add(time.Hour), model.StatusExpected)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, user := range []string{"u1", "u2"} {
		wg.Add(1)
		go func(i int, user string) {
			defer wg.Done()
			_, errs[i] = l.TryReserve(context.Background(), user, event.ID)
		}(i, user)
	}
	wg.Wait()

	if errs[0] == nil {
		assert.ErrorIs(t, errs[1], store.ErrNoSeats)
	} else {
		assert.ErrorIs(t, errs[0], store.ErrNoSeats)
		assert.NoError(t, errs[1])
	}
	assert.Equal(t, 1, activeCount(t, st, event.ID))
}

func TestTryReserveEventNotFound(t *testing.T) {
	l := ledger.NewSeatLedger(memstore.New())
	_, err := l.TryReserve(context.Background(), "u1", "missing")
	assert.ErrorIs(t, err, store.ErrEventNotFound)
}

func TestTryReserveStatusGated(t *testing.T) {
	future := time.Now().UTC().Add(24 * time.Hour)
	past := time.Now().UTC().Add(-time.Minute)
	cases := []struct {
		name    string
		status  model.EventStatus
		startAt time.Time
	}{
		{"finished", model.StatusFinished, future},
		{"cancelled", model.StatusCancelled, future},
		{"already started", model.StatusExpected, past},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := memstore.New()
			l := ledger.NewSeatLedger(st)
			event := newEvent(t, st, 10, tc.startAt, tc.status)

			_, err := l.TryReserve(context.Background(), "u1", event.ID)
			assert.ErrorIs(t, err, store.ErrEventNotBookable)
			assert.Equal(t, 0, activeCount(t, st, event.ID))
		})
	}
}

func TestReleaseIdempotent(t *testing.T) {
	st := memstore.New()
	l := ledger.NewSeatLedger(st)
	event := newEvent(t, st, 5, time.Now().UTC().Add(time.Hour), model.StatusExpected)

	_, err := l.TryReserve(context.Background(), "u1", event.ID)
	require.NoError(t, err)
	require.Equal(t, 1, activeCount(t, st, event.ID))

	released, err := l.Release(context.Background(), "u1", event.ID)
	require.NoError(t, err)
	assert.NotNil(t, released.CancelledAt)
	assert.Equal(t, 0, activeCount(t, st, event.ID))

	_, err = l.Release(context.Background(), "u1", event.ID)
	assert.ErrorIs(t, err, store.ErrBookingNotFound)
	assert.Equal(t, 0, activeCount(t, st, event.ID))
}

func TestRebookReusesRow(t *testing.T) {
	st := memstore.New()
	l := ledger.NewSeatLedger(st)
	event := newEvent(t, st, 5, time.Now().UTC().Add(time.Hour), model.StatusExpected)

	first, err := l.TryReserve(context.Background(), "u1", event.ID)
	require.NoError(t, err)
	_, err = l.Release(context.Background(), "u1", event.ID)
	require.NoError(t, err)

	second, err := l.TryReserve(context.Background(), "u1", event.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "re-book must reactivate the existing row")
	assert.True(t, second.IsActive())
	assert.Equal(t, 1, activeCount(t, st, event.ID))
}

func TestTryReserveAlreadyActive(t *testing.T) {
	st := memstore.New()
	l := ledger.NewSeatLedger(st)
	event := newEvent(t, st, 5, time.Now().UTC().Add(time.Hour), model.StatusExpected)

	first, err := l.TryReserve(context.Background(), "u1", event.ID)
	require.NoError(t, err)
	again, err := l.TryReserve(context.Background(), "u1", event.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 1, activeCount(t, st, event.ID))
}

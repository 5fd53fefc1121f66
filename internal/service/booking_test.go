package service_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afisha-platform/booking-core/internal/ledger"
	"github.com/afisha-platform/booking-core/internal/model"
	"github.com/afisha-platform/booking-core/internal/notify"
	"github.com/afisha-platform/booking-core/internal/queue"
	"github.com/afisha-platform/booking-core/internal/service"
	"github.com/afisha-platform/booking-core/internal/store"
	"github.com/afisha-platform/booking-core/internal/store/memstore"
)

func newCoordinator(st *memstore.Memstore) *service.BookingCoordinator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return service.NewBookingCoordinator(
		ledger.NewSeatLedger(st), st, queue.NewBroker(st), logger)
}

func seedEvent(t *testing.T, st *memstore.Memstore, seats int, startAt time.Time, status model.EventStatus) *model.Event {
	t.Helper()
	event := &model.Event{
		ID:          "event-1",
		Title:       "Лекция",
		City:        "Казань",
		StartAt:     startAt,
		Seats:       seats,
		Status:      status,
		OrganizerID: "org-1",
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, st.CreateEvent(context.Background(), event))
	return event
}

func tasksByName(st *memstore.Memstore, name string) []queue.Task {
	var out []queue.Task
	for _, task := range st.Tasks() {
		if task.Name == name {
			out = append(out, task)
		}
	}
	return out
}

func TestCreateBookingEnqueuesIntent(t *testing.T) {
	st := memstore.New()
	c := newCoordinator(st)
	event := seedEvent(t, st, 2, time.Now().UTC().Add(time.Hour), model.StatusExpected)

	booking, err := c.CreateBooking(context.Background(), "u1", event.ID)
	require.NoError(t, err)
	assert.True(t, booking.IsActive())

	intents := tasksByName(st, notify.TaskBooking)
	require.Len(t, intents, 1)
	assert.Equal(t, event.ID, intents[0].Subject)
	assert.JSONEq(t, `{"user_id":"u1","event_id":"event-1"}`, string(intents[0].Args))
}

func TestCreateBookingNoIntentOnFailure(t *testing.T) {
	st := memstore.New()
	c := newCoordinator(st)
	event := seedEvent(t, st, 1, time.Now().UTC().Add(time.Hour), model.StatusExpected)

	_, err := c.CreateBooking(context.Background(), "u1", event.ID)
	require.NoError(t, err)
	_, err = c.CreateBooking(context.Background(), "u2", event.ID)
	require.ErrorIs(t, err, store.ErrNoSeats)

	assert.Len(t, tasksByName(st, notify.TaskBooking), 1,
		"a failed reservation must not enqueue a notification")
}

func TestCancelBookingEnqueuesIntent(t *testing.T) {
	st := memstore.New()
	c := newCoordinator(st)
	event := seedEvent(t, st, 2, time.Now().UTC().Add(time.Hour), model.StatusExpected)

	_, err := c.CreateBooking(context.Background(), "u1", event.ID)
	require.NoError(t, err)
	_, err = c.CancelBooking(context.Background(), "u1", event.ID)
	require.NoError(t, err)

	assert.Len(t, tasksByName(st, notify.TaskCancellation), 1)

	_, err = c.CancelBooking(context.Background(), "u1", event.ID)
	require.ErrorIs(t, err, store.ErrBookingNotFound)
	assert.Len(t, tasksByName(st, notify.TaskCancellation), 1,
		"an idempotent re-cancel must not enqueue another notification")
}

func TestCancelEventFansOutAndCancelsReminders(t *testing.T) {
	st := memstore.New()
	c := newCoordinator(st)
	broker := queue.NewBroker(st)
	event := seedEvent(t, st, 5, time.Now().UTC().Add(90*time.Minute), model.StatusExpected)

	_, err := c.CreateBooking(context.Background(), "u1", event.ID)
	require.NoError(t, err)
	require.NoError(t, broker.Enqueue(context.Background(), notify.TaskReminder, event.ID,
		notify.Intent{UserID: "u1", EventID: event.ID}, event.StartAt.Add(-time.Hour)))

	require.NoError(t, c.CancelEvent(context.Background(), event.ID))

	got, err := st.GetEvent(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)

	fanOut := tasksByName(st, notify.TaskEventCancelled)
	require.Len(t, fanOut, 1)
	assert.Equal(t, event.ID, fanOut[0].Subject)

	reminders := tasksByName(st, notify.TaskReminder)
	require.Len(t, reminders, 1)
	assert.Equal(t, queue.StatusCancelled, reminders[0].Status)
}

func TestCancelEventAlreadyClosed(t *testing.T) {
	st := memstore.New()
	c := newCoordinator(st)
	event := seedEvent(t, st, 5, time.Now().UTC().Add(time.Hour), model.StatusFinished)

	err := c.CancelEvent(context.Background(), event.ID)
	assert.ErrorIs(t, err, service.ErrEventNotCancellable)
	assert.Empty(t, tasksByName(st, notify.TaskEventCancelled))
}

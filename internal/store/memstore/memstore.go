// Package memstore implements the store contract in memory. The per-event
// row lock becomes a per-event mutex held for the whole WithEventTx
// closure, which preserves the atomicity the booking path depends on.
// Writes apply immediately (there is no rollback); every caller validates
// before writing, so a failed closure leaves no partial state behind.
//
// It backs the test suite and is good enough for a local run without
// PostgreSQL; it is not durable.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/afisha-platform/booking-core/internal/model"
	"github.com/afisha-platform/booking-core/internal/queue"
	"github.com/afisha-platform/booking-core/internal/store"
)

// Memstore holds all state behind one data mutex plus one lazily created
// mutex per event for the transactional critical section.
type Memstore struct {
	mu         sync.Mutex
	eventLocks map[string]*sync.Mutex

	users         map[string]model.User
	events        map[string]model.Event
	bookings      map[string]map[string]model.Booking // eventID -> userID
	notifications []model.NotificationRecord
	ratings       map[string]map[string]model.Rating // eventID -> userID
	tasks         map[string]*queue.Task
	taskOrder     []string
}

// New constructs an empty store.
func New() *Memstore {
	return &Memstore{
		eventLocks: make(map[string]*sync.Mutex),
		users:      make(map[string]model.User),
		events:     make(map[string]model.Event),
		bookings:   make(map[string]map[string]model.Booking),
		ratings:    make(map[string]map[string]model.Rating),
		tasks:      make(map[string]*queue.Task),
	}
}

func (m *Memstore) eventLock(eventID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.eventLocks[eventID]
	if !ok {
		lock = &sync.Mutex{}
		m.eventLocks[eventID] = lock
	}
	return lock
}

// WithEventTx implements store.Store. Locking one event does not block
// transactions on another.
func (m *Memstore) WithEventTx(ctx context.Context, eventID string, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lock := m.eventLock(eventID)
	lock.Lock()
	defer lock.Unlock()
	return fn(&memTx{m: m})
}

type memTx struct {
	m *Memstore
}

func (t *memTx) EventForUpdate(_ context.Context, eventID string) (*model.Event, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	event, ok := t.m.events[eventID]
	if !ok {
		return nil, store.ErrEventNotFound
	}
	return &event, nil
}

func (t *memTx) ActiveBookingCount(_ context.Context, eventID string) (int, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	count := 0
	for _, b := range t.m.bookings[eventID] {
		if b.IsActive() {
			count++
		}
	}
	return count, nil
}

func (t *memTx) UpsertActiveBooking(_ context.Context, userID, eventID string, now time.Time) (*model.Booking, bool, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	byUser := t.m.bookings[eventID]
	if byUser == nil {
		byUser = make(map[string]model.Booking)
		t.m.bookings[eventID] = byUser
	}
	if existing, ok := byUser[userID]; ok {
		if existing.IsActive() {
			out := existing
			return &out, false, nil
		}
		existing.CancelledAt = nil
		byUser[userID] = existing
		out := existing
		return &out, true, nil
	}
	booking := model.Booking{
		ID:        uuid.New().String(),
		UserID:    userID,
		EventID:   eventID,
		CreatedAt: now,
	}
	byUser[userID] = booking
	out := booking
	return &out, false, nil
}

func (t *memTx) CancelActiveBooking(_ context.Context, userID, eventID string, now time.Time) (*model.Booking, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	byUser := t.m.bookings[eventID]
	existing, ok := byUser[userID]
	if !ok || !existing.IsActive() {
		return nil, store.ErrBookingNotFound
	}
	cancelled := now
	existing.CancelledAt = &cancelled
	byUser[userID] = existing
	out := existing
	return &out, nil
}

func (t *memTx) SetEventStatus(_ context.Context, eventID string, status model.EventStatus) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	event, ok := t.m.events[eventID]
	if !ok {
		return store.ErrEventNotFound
	}
	event.Status = status
	t.m.events[eventID] = event
	return nil
}

// ─── Plain store methods ─────────────────────────────────────────────────

func (m *Memstore) CreateUser(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = *user
	return nil
}

func (m *Memstore) GetUser(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return &user, nil
}

func (m *Memstore) CreateEvent(_ context.Context, event *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.ID] = *event
	return nil
}

func (m *Memstore) GetEvent(_ context.Context, id string) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	event, ok := m.events[id]
	if !ok {
		return nil, store.ErrEventNotFound
	}
	return &event, nil
}

func (m *Memstore) ListEvents(_ context.Context) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := make([]model.Event, 0, len(m.events))
	for _, e := range m.events {
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].StartAt.Before(events[j].StartAt) })
	return events, nil
}

func (m *Memstore) ExpectedEventsStartingBetween(_ context.Context, from, to time.Time) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var events []model.Event
	for _, e := range m.events {
		if e.Status == model.StatusExpected && e.StartAt.After(from) && !e.StartAt.After(to) {
			events = append(events, e)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].StartAt.Before(events[j].StartAt) })
	return events, nil
}

func (m *Memstore) FinishEventsStartedBefore(_ context.Context, cutoff time.Time) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var finished []model.Event
	for id, e := range m.events {
		if e.Status == model.StatusExpected && e.StartAt.Before(cutoff) {
			e.Status = model.StatusFinished
			m.events[id] = e
			finished = append(finished, e)
		}
	}
	sort.Slice(finished, func(i, j int) bool { return finished[i].StartAt.Before(finished[j].StartAt) })
	return finished, nil
}

func (m *Memstore) ListActiveBookings(_ context.Context, eventID string) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var bookings []model.Booking
	for _, b := range m.bookings[eventID] {
		if b.IsActive() {
			bookings = append(bookings, b)
		}
	}
	sort.Slice(bookings, func(i, j int) bool { return bookings[i].CreatedAt.Before(bookings[j].CreatedAt) })
	return bookings, nil
}

func (m *Memstore) ActiveBookingExists(_ context.Context, userID, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[eventID][userID]
	return ok && b.IsActive(), nil
}

func (m *Memstore) AppendNotification(_ context.Context, rec *model.NotificationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, *rec)
	return nil
}

// Notifications returns a copy of all recorded notifications, oldest first.
// Test helper; the production contract is append-only writes.
func (m *Memstore) Notifications() []model.NotificationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.NotificationRecord, len(m.notifications))
	copy(out, m.notifications)
	return out
}

func (m *Memstore) ReminderRecordedSince(_ context.Context, eventID string, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.notifications {
		if rec.EventID == eventID && rec.Type == model.NotificationReminder && !rec.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memstore) UpsertRating(_ context.Context, rating *model.Rating) (*model.Rating, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byUser := m.ratings[rating.EventID]
	if byUser == nil {
		byUser = make(map[string]model.Rating)
		m.ratings[rating.EventID] = byUser
	}
	if existing, ok := byUser[rating.UserID]; ok {
		existing.Score = rating.Score
		existing.Comment = rating.Comment
		byUser[rating.UserID] = existing
		out := existing
		return &out, nil
	}
	byUser[rating.UserID] = *rating
	out := *rating
	return &out, nil
}

func (m *Memstore) AverageRating(_ context.Context, eventID string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byUser := m.ratings[eventID]
	if len(byUser) == 0 {
		return 0, nil
	}
	sum := 0
	for _, r := range byUser {
		sum += r.Score
	}
	return float64(sum) / float64(len(byUser)), nil
}

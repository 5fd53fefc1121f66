// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/afisha-platform/booking-core/internal/model"
	"github.com/afisha-platform/booking-core/internal/queue"
	"github.com/afisha-platform/booking-core/internal/service"
	"github.com/afisha-platform/booking-core/internal/store"
)

// API holds all HTTP handlers for the booking core.
type API struct {
	coordinator *service.BookingCoordinator
	ratings     *service.RatingService
	store       store.Store
	broker      *queue.Broker
	logger      *slog.Logger
}

// NewAPI constructs the handler set.
func NewAPI(coordinator *service.BookingCoordinator, ratings *service.RatingService, s store.Store, broker *queue.Broker, logger *slog.Logger) *API {
	return &API{coordinator: coordinator, ratings: ratings, store: s, broker: broker, logger: logger}
}

// Routes mounts every endpoint on r.
func (a *API) Routes(r chi.Router) {
	r.Get("/health", a.HealthCheck)

	r.Route("/users", func(r chi.Router) {
		r.Post("/", a.CreateUser)
	})
	r.Route("/events", func(r chi.Router) {
		r.Post("/", a.CreateEvent)
		r.Get("/", a.ListEvents)
		r.Get("/{id}", a.GetEvent)
		r.Post("/{id}/book", a.CreateBooking)
		r.Post("/{id}/cancel-booking", a.CancelBooking)
		r.Post("/{id}/cancel", a.CancelEvent)
		r.Post("/{id}/rate", a.RateEvent)
		r.Get("/{id}/bookings", a.ListBookings)
		r.Get("/{id}/rating", a.AverageRating)
	})
	r.Post("/rpc/send-email", a.SendEmail)
}

// ─── Helper utilities ────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeDomainError maps the error taxonomy onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrEventNotFound):
		writeError(w, http.StatusNotFound, "event not found")
	case errors.Is(err, store.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, store.ErrBookingNotFound):
		writeError(w, http.StatusNotFound, "booking not found or already cancelled")
	case errors.Is(err, store.ErrEventNotBookable):
		writeError(w, http.StatusConflict, "event is already finished, cancelled, or started")
	case errors.Is(err, store.ErrNoSeats):
		writeError(w, http.StatusConflict, "no seats left")
	case errors.Is(err, service.ErrEventNotCancellable):
		writeError(w, http.StatusConflict, "event is already finished or cancelled")
	case errors.Is(err, service.ErrEventNotRatable):
		writeError(w, http.StatusBadRequest, "event cannot be rated before it finishes")
	case errors.Is(err, service.ErrUserNotAttended):
		writeError(w, http.StatusForbidden, "only attendees can rate the event")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// ─── Users and events ────────────────────────────────────────────────────

// CreateUser handles POST /users
func (a *API) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req model.CreateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	user := &model.User{ID: uuid.New().String(), Email: req.Email, Name: req.Name}
	if err := a.store.CreateUser(r.Context(), user); err != nil {
		a.logger.Error("create user", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// CreateEvent handles POST /events
func (a *API) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	startAt, err := time.Parse(time.RFC3339, req.StartAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start_at must be RFC 3339")
		return
	}
	if req.Title == "" || req.OrganizerID == "" {
		writeError(w, http.StatusBadRequest, "title and organizer_id are required")
		return
	}
	if req.Seats <= 0 {
		writeError(w, http.StatusBadRequest, "seats must be a positive integer")
		return
	}
	event := &model.Event{
		ID:          uuid.New().String(),
		Title:       req.Title,
		City:        req.City,
		StartAt:     startAt.UTC(),
		Seats:       req.Seats,
		Status:      model.StatusExpected,
		OrganizerID: req.OrganizerID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := a.store.CreateEvent(r.Context(), event); err != nil {
		a.logger.Error("create event", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create event")
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events
func (a *API) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := a.store.ListEvents(r.Context())
	if err != nil {
		a.logger.Error("list events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
func (a *API) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := a.store.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// ─── Booking operations ──────────────────────────────────────────────────

// CreateBooking handles POST /events/{id}/book
func (a *API) CreateBooking(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "id")
	var req model.BookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	booking, err := a.coordinator.CreateBooking(r.Context(), req.UserID, eventID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

// CancelBooking handles POST /events/{id}/cancel-booking
func (a *API) CancelBooking(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "id")
	var req model.BookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	booking, err := a.coordinator.CancelBooking(r.Context(), req.UserID, eventID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// CancelEvent handles POST /events/{id}/cancel
func (a *API) CancelEvent(w http.ResponseWriter, r *http.Request) {
	if err := a.coordinator.CancelEvent(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "event cancelled"})
}

// ListBookings handles GET /events/{id}/bookings
func (a *API) ListBookings(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "id")
	if _, err := a.store.GetEvent(r.Context(), eventID); err != nil {
		writeDomainError(w, err)
		return
	}
	bookings, err := a.store.ListActiveBookings(r.Context(), eventID)
	if err != nil {
		a.logger.Error("list bookings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list bookings")
		return
	}
	if bookings == nil {
		bookings = []model.Booking{}
	}
	writeJSON(w, http.StatusOK, bookings)
}

// ─── Ratings ─────────────────────────────────────────────────────────────

// RateEvent handles POST /events/{id}/rate
func (a *API) RateEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "id")
	var req model.RateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	rating, err := a.ratings.RateEvent(r.Context(), req.UserID, eventID, req.Score, req.Comment)
	if err != nil {
		if errors.Is(err, store.ErrEventNotFound) ||
			errors.Is(err, service.ErrEventNotRatable) ||
			errors.Is(err, service.ErrUserNotAttended) {
			writeDomainError(w, err)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, rating)
}

// AverageRating handles GET /events/{id}/rating
func (a *API) AverageRating(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "id")
	if _, err := a.store.GetEvent(r.Context(), eventID); err != nil {
		writeDomainError(w, err)
		return
	}
	avg, err := a.ratings.AverageRating(r.Context(), eventID)
	if err != nil {
		a.logger.Error("average rating", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute rating")
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"average_rating": avg})
}

// ─── Health check ────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func (a *API) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

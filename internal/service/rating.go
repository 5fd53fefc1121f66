package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/afisha-platform/booking-core/internal/model"
	"github.com/afisha-platform/booking-core/internal/store"
)

var (
	// ErrEventNotRatable is returned when rating an event that has not
	// finished.
	ErrEventNotRatable = errors.New("event cannot be rated before it finishes")

	// ErrUserNotAttended is returned when the rater holds no active
	// booking for the event.
	ErrUserNotAttended = errors.New("user did not attend the event")
)

// RatingService lets attendees score finished events.
type RatingService struct {
	store store.Store
}

// NewRatingService constructs a RatingService.
func NewRatingService(s store.Store) *RatingService {
	return &RatingService{store: s}
}

// RateEvent upserts the user's rating. The event must be finished and the
// user must hold an active booking for it. Score is 1..5.
func (s *RatingService) RateEvent(ctx context.Context, userID, eventID string, score int, comment string) (*model.Rating, error) {
	if score < 1 || score > 5 {
		return nil, fmt.Errorf("score must be between 1 and 5, got %d", score)
	}
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.Status != model.StatusFinished {
		return nil, ErrEventNotRatable
	}
	attended, err := s.store.ActiveBookingExists(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}
	if !attended {
		return nil, ErrUserNotAttended
	}
	return s.store.UpsertRating(ctx, &model.Rating{
		ID:        uuid.New().String(),
		UserID:    userID,
		EventID:   eventID,
		Score:     score,
		Comment:   comment,
		CreatedAt: time.Now().UTC(),
	})
}

// AverageRating returns the event's mean score, 0 when unrated.
func (s *RatingService) AverageRating(ctx context.Context, eventID string) (float64, error) {
	return s.store.AverageRating(ctx, eventID)
}

package model

// Request payloads for the HTTP surface.

// CreateUserRequest is the payload for registering a user projection.
type CreateUserRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Title       string `json:"title"`
	City        string `json:"city"`
	StartAt     string `json:"start_at"`
	Seats       int    `json:"seats"`
	OrganizerID string `json:"organizer_id"`
}

// BookingRequest identifies the user booking or cancelling a seat.
type BookingRequest struct {
	UserID string `json:"user_id"`
}

// RateRequest is the payload for rating a finished event.
type RateRequest struct {
	UserID  string `json:"user_id"`
	Score   int    `json:"score"`
	Comment string `json:"comment"`
}

// SendEmailMetadata routes an RPC-boundary intent to a notification type.
type SendEmailMetadata struct {
	NotificationType string `json:"notification_type"`
	UserID           string `json:"user_id"`
	EventID          string `json:"event_id"`
}

// SendEmailRequest is the RPC-boundary payload a remote caller uses to
// enqueue a notification intent. Subject and message are accepted for
// contract compatibility; the dispatcher re-renders from current state.
type SendEmailRequest struct {
	RecipientEmail string            `json:"recipient_email"`
	Subject        string            `json:"subject"`
	Message        string            `json:"message"`
	Metadata       SendEmailMetadata `json:"metadata"`
}

// SendEmailResponse reports the RPC-boundary outcome.
type SendEmailResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

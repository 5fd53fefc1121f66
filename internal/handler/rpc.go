package handler

import (
	"net/http"
	"time"

	"github.com/afisha-platform/booking-core/internal/model"
	"github.com/afisha-platform/booking-core/internal/notify"
)

// SendEmail handles POST /rpc/send-email
//
// This is the boundary a remote caller (the web tier's deployment shape)
// uses to enqueue notification intents. Subject and message in the request
// are not trusted: the dispatcher re-renders from current state at fire
// time. Booking, cancellation and reminder intents require user_id and
// event_id metadata; event_cancelled requires event_id only. Malformed
// metadata or an unsupported notification_type is rejected synchronously
// with a structured failure, never a crash.
func (a *API) SendEmail(w http.ResponseWriter, r *http.Request) {
	var req model.SendEmailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	meta := req.Metadata
	var task string
	switch meta.NotificationType {
	case string(model.NotificationBooking):
		task = notify.TaskBooking
	case string(model.NotificationCancellation):
		task = notify.TaskCancellation
	case string(model.NotificationReminder):
		task = notify.TaskReminder
	case string(model.NotificationEventCancelled):
		task = notify.TaskEventCancelled
	default:
		writeJSON(w, http.StatusBadRequest, model.SendEmailResponse{
			Success: false,
			Message: "unsupported notification_type: " + meta.NotificationType,
		})
		return
	}

	if meta.EventID == "" {
		writeJSON(w, http.StatusBadRequest, model.SendEmailResponse{
			Success: false,
			Message: "missing metadata: event_id is required",
		})
		return
	}
	intent := notify.Intent{EventID: meta.EventID}
	if task != notify.TaskEventCancelled {
		if meta.UserID == "" {
			writeJSON(w, http.StatusBadRequest, model.SendEmailResponse{
				Success: false,
				Message: "missing metadata: user_id is required",
			})
			return
		}
		intent.UserID = meta.UserID
	}

	if err := a.broker.Enqueue(r.Context(), task, meta.EventID, intent, time.Time{}); err != nil {
		a.logger.Error("rpc enqueue", "task", task, "error", err)
		writeJSON(w, http.StatusInternalServerError, model.SendEmailResponse{
			Success: false,
			Message: "failed to enqueue notification",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, model.SendEmailResponse{
		Success: true,
		Message: "notification queued",
	})
}

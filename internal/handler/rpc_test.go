package handler_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afisha-platform/booking-core/internal/model"
	"github.com/afisha-platform/booking-core/internal/notify"
	"github.com/afisha-platform/booking-core/internal/queue"
)

func TestSendEmailQueuesIntent(t *testing.T) {
	srv, st := newTestServer(t)

	resp := postJSON(t, srv.URL+"/rpc/send-email", model.SendEmailRequest{
		RecipientEmail: "ignored@example.com",
		Subject:        "ignored, re-rendered at fire time",
		Metadata: model.SendEmailMetadata{
			NotificationType: string(model.NotificationBooking),
			UserID:           "u1",
			EventID:          "event-1",
		},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	out := decodeBody[model.SendEmailResponse](t, resp)
	assert.True(t, out.Success)
	assert.Equal(t, "notification queued", out.Message)

	tasks := st.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, notify.TaskBooking, tasks[0].Name)
	assert.Equal(t, "event-1", tasks[0].Subject)
	assert.Equal(t, queue.StatusPending, tasks[0].Status)
	assert.JSONEq(t, `{"user_id":"u1","event_id":"event-1"}`, string(tasks[0].Args))
}

func TestSendEmailEventCancelledNeedsNoUser(t *testing.T) {
	srv, st := newTestServer(t)

	resp := postJSON(t, srv.URL+"/rpc/send-email", model.SendEmailRequest{
		Metadata: model.SendEmailMetadata{
			NotificationType: string(model.NotificationEventCancelled),
			EventID:          "event-1",
		},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	tasks := st.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, notify.TaskEventCancelled, tasks[0].Name)
	assert.JSONEq(t, `{"event_id":"event-1"}`, string(tasks[0].Args))
}

func TestSendEmailRejectsUnsupportedType(t *testing.T) {
	srv, st := newTestServer(t)

	resp := postJSON(t, srv.URL+"/rpc/send-email", model.SendEmailRequest{
		Metadata: model.SendEmailMetadata{
			NotificationType: "marketing_blast",
			UserID:           "u1",
			EventID:          "event-1",
		},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	out := decodeBody[model.SendEmailResponse](t, resp)
	assert.False(t, out.Success)
	assert.Contains(t, out.Message, "unsupported notification_type")
	assert.Empty(t, st.Tasks())
}

func TestSendEmailRejectsMissingMetadata(t *testing.T) {
	srv, st := newTestServer(t)

	cases := []struct {
		name string
		meta model.SendEmailMetadata
		want string
	}{
		{
			"missing event_id",
			model.SendEmailMetadata{NotificationType: string(model.NotificationReminder), UserID: "u1"},
			"event_id is required",
		},
		{
			"missing user_id",
			model.SendEmailMetadata{NotificationType: string(model.NotificationReminder), EventID: "event-1"},
			"user_id is required",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/rpc/send-email", model.SendEmailRequest{Metadata: tc.meta})
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			out := decodeBody[model.SendEmailResponse](t, resp)
			assert.False(t, out.Success)
			assert.Contains(t, out.Message, tc.want)
		})
	}
	assert.Empty(t, st.Tasks())
}

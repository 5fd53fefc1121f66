package notify

import (
	"fmt"

	"github.com/afisha-platform/booking-core/internal/model"
)

const startAtLayout = "02.01.2006 в 15:04"

// render produces the subject and body for one notification type.
func render(typ model.NotificationType, event *model.Event) (subject, body string) {
	startAt := event.StartAt.Format(startAtLayout)
	switch typ {
	case model.NotificationBooking:
		subject = fmt.Sprintf("Бронирование мероприятия: %s", event.Title)
		body = fmt.Sprintf(
			"Вы успешно забронировали место на мероприятие '%s', которое состоится %s.",
			event.Title, startAt)
	case model.NotificationCancellation:
		subject = fmt.Sprintf("Отмена бронирования: %s", event.Title)
		body = fmt.Sprintf(
			"Вы отменили бронирование на мероприятие '%s', которое должно было состояться %s.",
			event.Title, startAt)
	case model.NotificationReminder:
		subject = fmt.Sprintf("Напоминание: %s", event.Title)
		body = fmt.Sprintf(
			"Напоминаем, что через час состоится мероприятие '%s' в городе %s.",
			event.Title, event.City)
	case model.NotificationEventCancelled:
		subject = fmt.Sprintf("Отмена мероприятия: %s", event.Title)
		body = fmt.Sprintf(
			"К сожалению, мероприятие '%s', запланированное на %s, было отменено.",
			event.Title, startAt)
	}
	return subject, body
}

// placeholderMessage is recorded when the referenced user or event is gone
// and no real message could be rendered.
const placeholderMessage = "Информация об уведомлении недоступна"

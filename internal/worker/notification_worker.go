package worker

import (
	"github.com/spec-kit/edusupport/internal/service"
)

// StartNotificationWorker subscribes the notification service to ticket and
// chat domain events.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}

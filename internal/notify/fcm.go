// README: Best-effort FCM status pushes to the requesting organization's devices.
package notify

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"

	"lifeline/internal/modules/request"
	"lifeline/internal/types"
)

// FCMNotifier pushes request status changes over Firebase Cloud Messaging.
// Devices subscribe to a per-requester topic when the user signs in, so no
// token storage is needed server-side.
type FCMNotifier struct {
	client *messaging.Client
	log    *zap.Logger
}

func NewFCMNotifier(client *messaging.Client, log *zap.Logger) *FCMNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &FCMNotifier{client: client, log: log}
}

var statusTitles = map[request.Status]string{
	request.StatusApproved:  "Delivery dispatched",
	request.StatusRejected:  "Request rejected",
	request.StatusCompleted: "Delivery completed",
}

// PushStatus sends a notification about the request's new status. Failures are
// logged and swallowed; a push must never fail the state transition that
// triggered it.
func (n *FCMNotifier) PushStatus(ctx context.Context, requesterID, requestID types.ID, status request.Status) {
	title, ok := statusTitles[status]
	if !ok {
		return
	}

	msg := &messaging.Message{
		Topic: topicFor(requesterID),
		Notification: &messaging.Notification{
			Title: title,
			Body:  fmt.Sprintf("Blood request %s is now %s.", requestID, status),
		},
		Data: map[string]string{
			"request_id": string(requestID),
			"status":     string(status),
		},
	}
	if _, err := n.client.Send(ctx, msg); err != nil {
		n.log.Warn("fcm push failed",
			zap.String("request_id", string(requestID)),
			zap.Error(err),
		)
	}
}

func topicFor(requesterID types.ID) string {
	return "requester-" + string(requesterID)
}

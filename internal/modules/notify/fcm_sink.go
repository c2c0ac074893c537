// README: FCM sink; pushes the assignment to the rider's and customer's devices.
package notify

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/sirupsen/logrus"
)

type fcmSender interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
}

type FCMSink struct {
	client fcmSender
	log    *logrus.Entry
}

func NewFCMSink(ctx context.Context, app *firebase.App, log *logrus.Entry) (*FCMSink, error) {
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialising firebase messaging client: %w", err)
	}
	return &FCMSink{client: client, log: log.WithField("component", "fcm")}, nil
}

func (s *FCMSink) Name() string { return "fcm" }

// Deliver sends to every recipient with a registered device. Recipients
// without a token are skipped.
func (s *FCMSink) Deliver(ctx context.Context, a Assignment) error {
	var failed []error
	for _, m := range assignmentMessages(a) {
		id, err := s.client.Send(ctx, m)
		if err != nil {
			failed = append(failed, fmt.Errorf("send to %s: %w", m.Data["recipient"], err))
			continue
		}
		s.log.WithFields(logrus.Fields{"order_id": a.OrderID, "message_id": id}).Debug("fcm sent")
	}
	return errors.Join(failed...)
}

func assignmentMessages(a Assignment) []*messaging.Message {
	var out []*messaging.Message
	if a.Rider.DeviceToken != "" {
		out = append(out, &messaging.Message{
			Token: a.Rider.DeviceToken,
			Data:  assignmentData(a, "rider"),
			Notification: &messaging.Notification{
				Title: "New delivery assigned",
				Body:  fmt.Sprintf("Order %s: %s", a.OrderNumber, a.PackageDescription),
			},
			Android: &messaging.AndroidConfig{Priority: "high"},
		})
	}
	if a.Customer.DeviceToken != "" {
		out = append(out, &messaging.Message{
			Token: a.Customer.DeviceToken,
			Data:  assignmentData(a, "customer"),
			Notification: &messaging.Notification{
				Title: "Your parcel is on its way",
				Body:  fmt.Sprintf("Order %s has a rider. Pick a delivery location to confirm.", a.OrderNumber),
			},
		})
	}
	return out
}

func assignmentData(a Assignment, recipient string) map[string]string {
	return map[string]string{
		"type":         a.Type,
		"recipient":    recipient,
		"order_id":     a.OrderID,
		"order_number": a.OrderNumber,
	}
}

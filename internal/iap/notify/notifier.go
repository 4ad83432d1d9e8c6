package notify

import (
	"context"
	"fmt"
	"strconv"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	"google.golang.org/api/option"

	"matchBack/internal/iap/present"
	"matchBack/internal/iap/reconcile"
)

// Logger provides minimal logging required by the notifier.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Sender delivers one FCM message. *messaging.Client satisfies it.
type Sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// TokenStore lists the push tokens registered for a user.
type TokenStore interface {
	TokensByUser(ctx context.Context, userID int64) ([]string, error)
}

// Notifier pushes entitlement changes to the user's other devices.
type Notifier struct {
	sender Sender
	tokens TokenStore
	logger Logger
}

// NewMessagingClient builds an FCM client from a service account JSON.
func NewMessagingClient(ctx context.Context, credentialsJSON string) (*messaging.Client, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsJSON([]byte(credentialsJSON)))
	if err != nil {
		return nil, fmt.Errorf("firebase.NewApp: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase messaging: %w", err)
	}
	return client, nil
}

// New constructs a Notifier.
func New(sender Sender, tokens TokenStore, logger Logger) *Notifier {
	return &Notifier{sender: sender, tokens: tokens, logger: logger}
}

// Granted implements reconcile.Observer.
func (n *Notifier) Granted(ctx context.Context, userID int64, res reconcile.Result) {
	n.send(ctx, userID, "entitlement_changed", res)
}

// LedgerFailed implements reconcile.Observer.
func (n *Notifier) LedgerFailed(ctx context.Context, userID int64, res reconcile.Result) {
	n.send(ctx, userID, "entitlement_pending", res)
}

func (n *Notifier) send(ctx context.Context, userID int64, kind string, res reconcile.Result) {
	tokens, err := n.tokens.TokensByUser(ctx, userID)
	if err != nil {
		n.logger.Errorf("notify: tokens for user %d: %v", userID, err)
		return
	}
	msg := present.ForResult(res)
	for _, token := range tokens {
		if _, err := n.sender.Send(ctx, buildMessage(token, kind, msg, res)); err != nil {
			n.logger.Errorf("notify: user %d token %s: %v", userID, shortToken(token), err)
		}
	}
}

func buildMessage(token, kind string, msg present.Message, res reconcile.Result) *messaging.Message {
	return &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: map[string]string{
			"type":           kind,
			"category":       string(res.Category),
			"sku":            res.SKU,
			"transaction_id": res.TransactionID,
			"consumable":     strconv.FormatBool(res.Consumable),
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				ChannelID: "purchases",
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority": "10",
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{
						Title: msg.Title,
						Body:  msg.Body,
					},
					Sound: "default",
				},
			},
		},
	}
}

func shortToken(t string) string {
	if len(t) <= 8 {
		return t
	}
	return t[:8] + "..."
}

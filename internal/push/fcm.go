package push

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// multicastSender is the slice of *messaging.Client the provider needs.
type multicastSender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCMProvider sends through Firebase Cloud Messaging.
//
// The credentials (project ID, client email, private key) come from the Firebase
// console service account.
type FCMProvider struct {
	client multicastSender
}

// NewFCMProvider builds a provider from service account fields.
// The private key in .env has literal "\n" sequences, which are turned into newlines.
func NewFCMProvider(ctx context.Context, projectID, clientEmail, privateKey string, logger *zap.Logger) (*FCMProvider, error) {
	privateKey = strings.ReplaceAll(privateKey, "\\n", "\n")

	credsJSON := fmt.Sprintf(`{
		"type": "service_account",
		"project_id": %q,
		"private_key": %q,
		"client_email": %q,
		"token_uri": "https://oauth2.googleapis.com/token"
	}`, projectID, privateKey, clientEmail)

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsJSON([]byte(credsJSON)))
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("get messaging client: %w", err)
	}

	logger.Info("FCM initialized", zap.String("project_id", projectID))
	return &FCMProvider{client: client}, nil
}

func (p *FCMProvider) Name() string { return "fcm" }

// SendBatch sends one multicast and classifies each per-token failure.
func (p *FCMProvider) SendBatch(ctx context.Context, tokens []string, msg Message) ([]Outcome, error) {
	message := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: fcmData(msg.Data),
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound: "default",
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
				},
			},
		},
	}

	response, err := p.client.SendEachForMulticast(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("send multicast: %w", err)
	}

	outcomes := make([]Outcome, len(tokens))
	for i, token := range tokens {
		outcomes[i] = Outcome{Token: token}
		if i >= len(response.Responses) {
			outcomes[i].Err = fmt.Errorf("missing response for token %d", i)
			continue
		}
		resp := response.Responses[i]
		if resp.Success {
			outcomes[i].Success = true
			continue
		}
		outcomes[i].Err = resp.Error
		outcomes[i].Permanent = isPermanentFCMError(resp.Error)
	}
	return outcomes, nil
}

// isPermanentFCMError matches "registration-token-not-registered" and a
// sender mismatch. INVALID_ARGUMENT is left transient: FCM also returns it for
// a bad payload, which says nothing about the token.
func isPermanentFCMError(err error) bool {
	if err == nil {
		return false
	}
	return messaging.IsUnregistered(err) || messaging.IsSenderIDMismatch(err)
}

// fcmData drops keys FCM rejects so one bad key cannot fail a whole batch.
func fcmData(data map[string]string) map[string]string {
	if len(data) == 0 {
		return data
	}
	out := make(map[string]string, len(data))
	for k, v := range data {
		if ReservedDataKey(k) {
			continue
		}
		out[k] = v
	}
	return out
}

// ReservedDataKey reports whether FCM refuses k as a data key.
func ReservedDataKey(k string) bool {
	switch strings.ToLower(k) {
	case "", "from", "notification", "message_type", "collapse_key", "priority", "ttl":
		return true
	}
	lk := strings.ToLower(k)
	return strings.HasPrefix(lk, "google.") || strings.HasPrefix(lk, "gcm.")
}

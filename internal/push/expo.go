package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ExpoProvider sends through Expo's Push API. It needs no credentials.
// Expo accepts at most 100 messages per request, so the gateway batch size
// should be lowered accordingly when this provider is selected.
type ExpoProvider struct {
	httpClient *http.Client
	url        string
}

// ExpoMaxBatch is the Expo API limit on messages per request.
const ExpoMaxBatch = 100

const expoPushURL = "https://exp.host/--/api/v2/push/send"

type expoPushMessage struct {
	To       []string          `json:"to"`
	Title    string            `json:"title,omitempty"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	Sound    string            `json:"sound,omitempty"`
	Priority string            `json:"priority,omitempty"`
}

type expoPushResponse struct {
	Data []expoPushTicket `json:"data"`
}

type expoPushTicket struct {
	Status  string `json:"status"` // "ok" or "error"
	ID      string `json:"id"`
	Message string `json:"message,omitempty"`
	Details struct {
		Error string `json:"error,omitempty"` // "DeviceNotRegistered", "MessageTooBig", ...
	} `json:"details,omitempty"`
}

// NewExpoProvider creates an Expo provider. An empty url uses the public endpoint.
func NewExpoProvider(url string) *ExpoProvider {
	if url == "" {
		url = expoPushURL
	}
	return &ExpoProvider{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		url:        url,
	}
}

func (p *ExpoProvider) Name() string { return "expo" }

// IsExpoToken reports whether token has the Expo push token shape.
func IsExpoToken(token string) bool {
	return strings.HasPrefix(token, "ExponentPushToken[") || strings.HasPrefix(token, "ExpoPushToken[")
}

// SendBatch posts one request. Tokens that are not Expo tokens are reported as
// permanently invalid without being sent.
func (p *ExpoProvider) SendBatch(ctx context.Context, tokens []string, msg Message) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(tokens))
	valid := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if IsExpoToken(t) {
			valid = append(valid, t)
			continue
		}
		outcomes = append(outcomes, Outcome{Token: t, Permanent: true, Err: fmt.Errorf("not an expo push token")})
	}
	if len(valid) == 0 {
		return outcomes, nil
	}

	payload, err := json.Marshal(expoPushMessage{
		To:       valid,
		Title:    msg.Title,
		Body:     msg.Body,
		Data:     msg.Data,
		Sound:    "default",
		Priority: "high",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("expo api error: status=%d body=%s", resp.StatusCode, string(respBody))
	}

	var pushResp expoPushResponse
	if err := json.Unmarshal(respBody, &pushResp); err != nil {
		return nil, fmt.Errorf("parse expo response: %w", err)
	}

	// Tickets come back in request order.
	for i, token := range valid {
		o := Outcome{Token: token}
		if i >= len(pushResp.Data) {
			o.Err = fmt.Errorf("missing ticket")
			outcomes = append(outcomes, o)
			continue
		}
		ticket := pushResp.Data[i]
		if ticket.Status == "ok" {
			o.Success = true
		} else {
			o.Err = fmt.Errorf("%s (%s)", ticket.Message, ticket.Details.Error)
			o.Permanent = ticket.Details.Error == "DeviceNotRegistered"
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookRequest is the JSON body posted to the delivery webhook.
type WebhookRequest struct {
	NotificationID string              `json:"notification_id"`
	Kind           string              `json:"kind"`
	To             string              `json:"to"`
	Subject        string              `json:"subject"`
	Body           string              `json:"body"`
	Attachments    []WebhookAttachment `json:"attachments,omitempty"`
}

// WebhookAttachment carries attachment bytes base64-encoded.
type WebhookAttachment struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// WebhookProvider delivers notifications by POSTing them to an HTTP endpoint
// that owns the actual transport. The URL is injected from config so tests
// can point it at a local server.
type WebhookProvider struct {
	baseURL    string
	httpClient *http.Client
}

func NewWebhookProvider(baseURL string, timeout time.Duration) *WebhookProvider {
	return &WebhookProvider{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send posts the message and expects 200 or 202 with a JSON body
// containing messageId.
func (p *WebhookProvider) Send(ctx context.Context, msg *Message) (*SendResponse, error) {
	req := WebhookRequest{
		NotificationID: msg.NotificationID,
		Kind:           string(msg.Kind),
		To:             msg.To,
		Subject:        msg.Subject,
		Body:           msg.HTMLBody,
	}
	for _, a := range msg.Attachments {
		req.Attachments = append(req.Attachments, WebhookAttachment{
			FileName:    a.FileName,
			ContentType: a.ContentType,
			Data:        a.Data,
		})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("unexpected provider status: %d", resp.StatusCode)
	}

	var sendResp SendResponse
	if err := json.NewDecoder(resp.Body).Decode(&sendResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &sendResp, nil
}

// compile-time check that WebhookProvider implements Sender
var _ Sender = (*WebhookProvider)(nil)

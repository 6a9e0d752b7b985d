package provider

import (
	"context"

	"github.com/notifyhub/notification-queue/internal/domain"
)

// Message is a rendered notification ready for transport.
type Message struct {
	NotificationID string
	Kind           domain.Kind
	To             string
	Subject        string
	HTMLBody       string
	Attachments    []*domain.Attachment
}

// SendResponse carries the transport's identifier for the sent message.
type SendResponse struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status,omitempty"`
}

// Sender abstracts the outbound transport.
// Mocking this interface in tests gives full control over delivery
// behaviour without network calls.
type Sender interface {
	Send(ctx context.Context, msg *Message) (*SendResponse, error)
}

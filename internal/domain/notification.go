package domain

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Kind selects the message template and the recipient eligibility rule.
type Kind string

const (
	KindCommunityTeamInvitation Kind = "community-team-invitation"
	KindEmailVerification       Kind = "email-verification"
	KindEventCanceled           Kind = "event-canceled"
	KindEventPublished          Kind = "event-published"
	KindEventReminder           Kind = "event-reminder"
	KindEventRescheduled        Kind = "event-rescheduled"
	KindGroupTeamInvitation     Kind = "group-team-invitation"
	KindGroupWelcome            Kind = "group-welcome"
)

// Kinds lists every kind accepted by the queue.
var Kinds = []Kind{
	KindCommunityTeamInvitation,
	KindEmailVerification,
	KindEventCanceled,
	KindEventPublished,
	KindEventReminder,
	KindEventRescheduled,
	KindGroupTeamInvitation,
	KindGroupWelcome,
}

func (k Kind) IsValid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// RequiresVerifiedRecipient reports whether a job of this kind may only be
// delivered to a recipient with a verified email address. The verification
// email itself is the only exception.
func (k Kind) RequiresVerifiedRecipient() bool {
	return k != KindEmailVerification
}

// Notification is one recipient-scoped delivery job.
type Notification struct {
	ID             string     `json:"id"`
	Kind           Kind       `json:"kind"`
	UserID         string     `json:"user_id"`
	TemplateDataID *string    `json:"template_data_id,omitempty"`
	AttachmentIDs  []string   `json:"attachment_ids"`
	Processed      bool       `json:"processed"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
	Error          *string    `json:"error,omitempty"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// LeasedNotification is what a delivery worker receives from a dequeue:
// the job plus everything needed to render and address it.
type LeasedNotification struct {
	ID             string          `json:"id"`
	Kind           Kind            `json:"kind"`
	UserID         string          `json:"user_id"`
	RecipientEmail string          `json:"recipient_email"`
	TemplateData   json.RawMessage `json:"template_data,omitempty"`
	AttachmentIDs  []string        `json:"attachment_ids"`
	CreatedAt      time.Time       `json:"created_at"`
	LeaseExpiresAt time.Time       `json:"lease_expires_at"`
}

// Attachment is an immutable, content-addressed blob.
type Attachment struct {
	ID          string    `json:"id"`
	ContentType string    `json:"content_type"`
	FileName    string    `json:"file_name"`
	Data        []byte    `json:"-"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// AttachmentInput describes one attachment passed to an enqueue call.
// Data is base64 in JSON.
type AttachmentInput struct {
	ContentType string `json:"content_type"`
	FileName    string `json:"file_name"`
	Data        []byte `json:"data"`
}

// EnqueueRequest is the inbound payload for a fan-out enqueue.
type EnqueueRequest struct {
	Kind         Kind              `json:"kind"`
	TemplateData json.RawMessage   `json:"template_data,omitempty"`
	Attachments  []AttachmentInput `json:"attachments,omitempty"`
	RecipientIDs []string          `json:"recipient_ids"`
}

// Validate rejects malformed requests before anything is written.
// A literal JSON null template is normalised to "no template".
func (r *EnqueueRequest) Validate() error {
	if !r.Kind.IsValid() {
		return ErrInvalidKind
	}

	trimmed := bytes.TrimSpace(r.TemplateData)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		r.TemplateData = nil
	} else {
		var obj map[string]any
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return ErrInvalidTemplateData
		}
	}

	for _, a := range r.Attachments {
		if a.ContentType == "" || a.FileName == "" || len(a.Data) == 0 {
			return ErrInvalidAttachment
		}
	}

	// Recipient ids are rewritten to the canonical hyphenated form; uuid.Parse
	// also accepts urn and braced forms that Postgres rejects.
	if r.RecipientIDs != nil {
		ids := make([]string, len(r.RecipientIDs))
		for i, id := range r.RecipientIDs {
			u, err := uuid.Parse(id)
			if err != nil {
				return ErrInvalidRecipient
			}
			ids[i] = u.String()
		}
		r.RecipientIDs = ids
	}
	return nil
}

// EnqueueResult reports what an enqueue materialised.
type EnqueueResult struct {
	NotificationIDs []string `json:"notification_ids"`
	TemplateDataID  *string  `json:"template_data_id,omitempty"`
	AttachmentIDs   []string `json:"attachment_ids"`
}

// QueueStats is a point-in-time count of jobs by state.
type QueueStats struct {
	Pending   int `json:"pending"`
	Leased    int `json:"leased"`
	Processed int `json:"processed"`
}

package domain

import (
	"encoding/json"
	"time"
)

// ReminderCandidate is a qualifying upcoming event together with the
// context needed to build its reminder payload.
type ReminderCandidate struct {
	EventID          string
	EventName        string
	EventSlug        string
	EventKind        string
	DescriptionShort *string
	StartsAt         time.Time
	EndsAt           *time.Time
	Timezone         string
	VenueName        *string
	VenueAddress     *string
	VenueCity        *string
	MeetingURL       *string
	LogoURL          *string

	GroupName string
	GroupSlug string

	CommunityName        string
	CommunityDisplayName string
	Theme                json.RawMessage

	// RecipientIDs is the set union of verified attendees and speakers.
	RecipientIDs []string
}

// ReminderOutcome is the result of evaluating one event.
type ReminderOutcome struct {
	EventID    string
	StartsAt   time.Time
	Recipients int
}

package service

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/notifyhub/notification-queue/internal/domain"
)

type reminderPayload struct {
	Link      string            `json:"link"`
	Event     reminderEvent     `json:"event"`
	Group     reminderGroup     `json:"group"`
	Community reminderCommunity `json:"community"`
	Theme     json.RawMessage   `json:"theme,omitempty"`
}

type reminderEvent struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Slug             string     `json:"slug"`
	Kind             string     `json:"kind"`
	DescriptionShort *string    `json:"description_short,omitempty"`
	StartsAt         time.Time  `json:"starts_at"`
	EndsAt           *time.Time `json:"ends_at,omitempty"`
	Timezone         string     `json:"timezone"`
	VenueName        *string    `json:"venue_name,omitempty"`
	VenueAddress     *string    `json:"venue_address,omitempty"`
	VenueCity        *string    `json:"venue_city,omitempty"`
	MeetingURL       *string    `json:"meeting_url,omitempty"`
	LogoURL          *string    `json:"logo_url,omitempty"`
}

type reminderGroup struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type reminderCommunity struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// BuildReminderPayload snapshots everything the reminder template needs so
// delivery does not depend on the event still looking the same later.
func BuildReminderPayload(baseURL string, c *domain.ReminderCandidate) (json.RawMessage, error) {
	p := reminderPayload{
		Link: EventLink(baseURL, c.CommunityName, c.GroupSlug, c.EventSlug),
		Event: reminderEvent{
			ID:               c.EventID,
			Name:             c.EventName,
			Slug:             c.EventSlug,
			Kind:             c.EventKind,
			DescriptionShort: c.DescriptionShort,
			StartsAt:         c.StartsAt.UTC(),
			EndsAt:           c.EndsAt,
			Timezone:         c.Timezone,
			VenueName:        c.VenueName,
			VenueAddress:     c.VenueAddress,
			VenueCity:        c.VenueCity,
			MeetingURL:       c.MeetingURL,
			LogoURL:          c.LogoURL,
		},
		Group:     reminderGroup{Name: c.GroupName, Slug: c.GroupSlug},
		Community: reminderCommunity{Name: c.CommunityName, DisplayName: c.CommunityDisplayName},
	}
	if len(c.Theme) > 0 && string(c.Theme) != "null" {
		p.Theme = c.Theme
	}
	return json.Marshal(p)
}

// EventLink builds {base}/{community}/group/{group}/event/{event}.
func EventLink(baseURL, community, groupSlug, eventSlug string) string {
	return strings.TrimRight(baseURL, "/") +
		"/" + url.PathEscape(community) +
		"/group/" + url.PathEscape(groupSlug) +
		"/event/" + url.PathEscape(eventSlug)
}

func normalizeBaseURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", domain.ErrInvalidBaseURL
	}
	return strings.TrimRight(u.String(), "/"), nil
}

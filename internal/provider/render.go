package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/notifyhub/notification-queue/internal/domain"
)

type kindTemplate struct {
	subject string
	body    string
}

var kindTemplates = map[domain.Kind]kindTemplate{
	domain.KindEventReminder: {
		subject: `Reminder: {{.event.name}} starts soon`,
		body: `<p><strong>{{.event.name}}</strong> ({{.group.name}}, {{.community.display_name}}) starts at {{.event.starts_at}}.</p>
{{with .event.venue_name}}<p>Venue: {{.}}{{with $.event.venue_city}}, {{.}}{{end}}</p>{{end}}
{{with .event.meeting_url}}<p>Join online: <a href="{{.}}">{{.}}</a></p>{{end}}
<p><a href="{{.link}}">View event</a></p>`,
	},
	domain.KindEmailVerification: {
		subject: `Verify your email address`,
		body:    `<p>Please confirm your email address by following <a href="{{.link}}">this link</a>.</p>`,
	},
	domain.KindGroupWelcome: {
		subject: `Welcome to {{.group.name}}`,
		body:    `<p>You are now a member of <strong>{{.group.name}}</strong>.</p>{{with .link}}<p><a href="{{.}}">Visit the group</a></p>{{end}}`,
	},
	domain.KindEventPublished: {
		subject: `New event: {{.event.name}}`,
		body:    `<p>{{.group.name}} published <strong>{{.event.name}}</strong>.</p>{{with .link}}<p><a href="{{.}}">View event</a></p>{{end}}`,
	},
	domain.KindEventCanceled: {
		subject: `Event canceled: {{.event.name}}`,
		body:    `<p><strong>{{.event.name}}</strong> has been canceled.</p>`,
	},
	domain.KindEventRescheduled: {
		subject: `Event rescheduled: {{.event.name}}`,
		body:    `<p><strong>{{.event.name}}</strong> now starts at {{.event.starts_at}}.</p>{{with .link}}<p><a href="{{.}}">View event</a></p>{{end}}`,
	},
	domain.KindCommunityTeamInvitation: {
		subject: `Invitation to the {{.community.display_name}} team`,
		body:    `<p>You have been invited to join the <strong>{{.community.display_name}}</strong> team.</p>{{with .link}}<p><a href="{{.}}">Respond</a></p>{{end}}`,
	},
	domain.KindGroupTeamInvitation: {
		subject: `Invitation to the {{.group.name}} team`,
		body:    `<p>You have been invited to join the <strong>{{.group.name}}</strong> team.</p>{{with .link}}<p><a href="{{.}}">Respond</a></p>{{end}}`,
	},
}

type parsedTemplate struct {
	subject *texttemplate.Template
	body    *htmltemplate.Template
}

// Renderer turns a job's kind and template data into subject and HTML body.
type Renderer struct {
	templates map[domain.Kind]parsedTemplate
}

// NewRenderer parses the built-in template of every kind.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[domain.Kind]parsedTemplate, len(kindTemplates))}
	for kind, t := range kindTemplates {
		subject, err := texttemplate.New(string(kind)).Option("missingkey=error").Parse(t.subject)
		if err != nil {
			return nil, fmt.Errorf("parse %s subject: %w", kind, err)
		}
		body, err := htmltemplate.New(string(kind)).Parse(t.body)
		if err != nil {
			return nil, fmt.Errorf("parse %s body: %w", kind, err)
		}
		r.templates[kind] = parsedTemplate{subject: subject, body: body}
	}
	return r, nil
}

func (r *Renderer) Render(kind domain.Kind, data json.RawMessage) (subject, body string, err error) {
	t, ok := r.templates[kind]
	if !ok {
		return "", "", fmt.Errorf("%w: no template for %q", domain.ErrInvalidKind, kind)
	}

	vars := map[string]any{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &vars); err != nil {
			return "", "", fmt.Errorf("decode template data: %w", err)
		}
	}

	var sb, bb bytes.Buffer
	if err := t.subject.Execute(&sb, vars); err != nil {
		return "", "", fmt.Errorf("render subject: %w", err)
	}
	if err := t.body.Execute(&bb, vars); err != nil {
		return "", "", fmt.Errorf("render body: %w", err)
	}
	return strings.TrimSpace(sb.String()), bb.String(), nil
}

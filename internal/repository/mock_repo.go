package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/notifyhub/notification-queue/internal/content"
	"github.com/notifyhub/notification-queue/internal/domain"
)

// MockUser is a recipient known to the in-memory repository.
type MockUser struct {
	ID       string
	Email    string
	Verified bool
}

// MockEvent is an event row as seen by the reminder scan. The embedded
// candidate's RecipientIDs field is ignored; recipients come from
// AttendeeIDs and SpeakerIDs.
type MockEvent struct {
	domain.ReminderCandidate

	Published         bool
	Canceled          bool
	Deleted           bool
	GroupInactive     bool
	GroupDeleted      bool
	CommunityInactive bool
	CommunityDeleted  bool

	ReminderEnabled           bool
	ReminderSentAt            *time.Time
	ReminderEvaluatedForStart *time.Time

	AttendeeIDs []string
	SpeakerIDs  []string
}

// MockRepository is a hand-written, in-memory implementation of both
// NotificationRepository and ReminderRepository used in unit tests.
// A single mutex serialises every operation, which gives the same
// exclusivity guarantees as row locking.
type MockRepository struct {
	mu sync.Mutex

	users         map[string]MockUser
	templates     map[string]string // hash -> id
	templateData  map[string]json.RawMessage
	attachments   map[string]*domain.Attachment // id -> attachment
	attachmentIDs map[string]string             // hash -> id
	notifications map[string]*domain.Notification
	events        map[string]*MockEvent
	lastCreated   time.Time

	// Optional error overrides, set in tests to simulate failure paths.
	EnqueueErr error
	DequeueErr error
	EventErrs  map[string]error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		users:         make(map[string]MockUser),
		templates:     make(map[string]string),
		templateData:  make(map[string]json.RawMessage),
		attachments:   make(map[string]*domain.Attachment),
		attachmentIDs: make(map[string]string),
		notifications: make(map[string]*domain.Notification),
		events:        make(map[string]*MockEvent),
		EventErrs:     make(map[string]error),
	}
}

var (
	_ NotificationRepository = (*MockRepository)(nil)
	_ ReminderRepository     = (*MockRepository)(nil)
)

// ---- seeding and inspection ----

func (m *MockRepository) AddUser(u MockUser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *MockRepository) AddEvent(e MockEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := e
	m.events[e.EventID] = &clone
}

// Event returns a copy of the stored event.
func (m *MockRepository) Event(id string) (MockEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return MockEvent{}, false
	}
	return *e, true
}

// RescheduleEvent moves an event to a new start time.
func (m *MockRepository) RescheduleEvent(id string, startsAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.events[id]; ok {
		e.StartsAt = startsAt
	}
}

// Notifications returns copies of all notifications in creation order.
func (m *MockRepository) Notifications() []domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Notification, 0, len(m.notifications))
	for _, n := range m.ordered() {
		out = append(out, *n)
	}
	return out
}

func (m *MockRepository) TemplateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.templates)
}

func (m *MockRepository) AttachmentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attachments)
}

// ExpireLeases makes every outstanding lease look expired, as if the
// worker holding it had crashed.
func (m *MockRepository) ExpireLeases() {
	m.mu.Lock()
	defer m.mu.Unlock()
	past := time.Now().Add(-time.Second)
	for _, n := range m.notifications {
		if !n.Processed && n.LeaseExpiresAt != nil {
			n.LeaseExpiresAt = &past
		}
	}
}

// ---- NotificationRepository ----

func (m *MockRepository) Enqueue(_ context.Context, req domain.EnqueueRequest) (*domain.EnqueueResult, error) {
	if m.EnqueueErr != nil {
		return nil, m.EnqueueErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enqueueLocked(req)
}

func (m *MockRepository) DequeueNext(_ context.Context, lease time.Duration) (*domain.LeasedNotification, error) {
	if m.DequeueErr != nil {
		return nil, m.DequeueErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, n := range m.ordered() {
		if n.Processed || (n.LeaseExpiresAt != nil && n.LeaseExpiresAt.After(now)) {
			continue
		}
		u := m.users[n.UserID]
		if !u.Verified && n.Kind.RequiresVerifiedRecipient() {
			continue
		}

		expires := now.Add(lease)
		n.LeaseExpiresAt = &expires

		leased := &domain.LeasedNotification{
			ID:             n.ID,
			Kind:           n.Kind,
			UserID:         n.UserID,
			RecipientEmail: u.Email,
			AttachmentIDs:  append([]string{}, n.AttachmentIDs...),
			CreatedAt:      n.CreatedAt,
			LeaseExpiresAt: expires,
		}
		if n.TemplateDataID != nil {
			leased.TemplateData = append(json.RawMessage{}, m.templateData[*n.TemplateDataID]...)
		}
		return leased, nil
	}
	return nil, nil
}

func (m *MockRepository) MarkProcessed(_ context.Context, id string, errMsg *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return domain.ErrNotFound
	}
	if n.Processed {
		return domain.ErrAlreadyProcessed
	}
	now := time.Now().UTC()
	n.Processed = true
	n.ProcessedAt = &now
	n.LeaseExpiresAt = nil
	if errMsg != nil {
		msg := *errMsg
		n.Error = &msg
	}
	return nil
}

func (m *MockRepository) GetByID(_ context.Context, id string) (*domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *n
	clone.AttachmentIDs = append([]string{}, n.AttachmentIDs...)
	return &clone, nil
}

func (m *MockRepository) GetAttachment(_ context.Context, id string) (*domain.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attachments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *a
	return &clone, nil
}

func (m *MockRepository) Stats(_ context.Context) (*domain.QueueStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s domain.QueueStats
	now := time.Now()
	for _, n := range m.notifications {
		switch {
		case n.Processed:
			s.Processed++
		case n.LeaseExpiresAt != nil && n.LeaseExpiresAt.After(now):
			s.Leased++
		default:
			s.Pending++
		}
	}
	return &s, nil
}

// ---- ReminderRepository ----

func (m *MockRepository) EvaluateNextEvent(
	_ context.Context,
	now time.Time,
	lookahead time.Duration,
	exclude []string,
	build ReminderPayloadFunc,
) (*domain.ReminderOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}

	var candidates []*MockEvent
	for _, e := range m.events {
		if !skip[e.EventID] && e.qualifies(now, lookahead) {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].StartsAt.Equal(candidates[j].StartsAt) {
			return candidates[i].StartsAt.Before(candidates[j].StartsAt)
		}
		return candidates[i].EventID < candidates[j].EventID
	})

	e := candidates[0]
	out := &domain.ReminderOutcome{EventID: e.EventID, StartsAt: e.StartsAt}
	if err := m.EventErrs[e.EventID]; err != nil {
		return out, err
	}

	c := e.ReminderCandidate
	c.RecipientIDs = m.verifiedUnion(e.AttendeeIDs, e.SpeakerIDs)
	startsAt := e.StartsAt

	if len(c.RecipientIDs) > 0 {
		payload, err := build(&c)
		if err != nil {
			return out, fmt.Errorf("build reminder payload: %w", err)
		}
		_, err = m.enqueueLocked(domain.EnqueueRequest{
			Kind:         domain.KindEventReminder,
			TemplateData: payload,
			RecipientIDs: c.RecipientIDs,
		})
		if err != nil {
			return out, fmt.Errorf("enqueue reminder: %w", err)
		}
		sentAt := now
		e.ReminderSentAt = &sentAt
	}
	e.ReminderEvaluatedForStart = &startsAt

	out.Recipients = len(c.RecipientIDs)
	return out, nil
}

// ---- helpers ----

func (e *MockEvent) qualifies(now time.Time, lookahead time.Duration) bool {
	if !e.Published || e.Canceled || e.Deleted || !e.ReminderEnabled {
		return false
	}
	if e.GroupInactive || e.GroupDeleted || e.CommunityInactive || e.CommunityDeleted {
		return false
	}
	if e.StartsAt.IsZero() || !e.StartsAt.After(now) || e.StartsAt.After(now.Add(lookahead)) {
		return false
	}
	return e.ReminderEvaluatedForStart == nil || !e.ReminderEvaluatedForStart.Equal(e.StartsAt)
}

func (m *MockRepository) verifiedUnion(groups ...[]string) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, g := range groups {
		for _, id := range g {
			if u, ok := m.users[id]; ok && u.Verified && !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids
}

// enqueueLocked validates every recipient before mutating anything so a
// failed call leaves no trace.
func (m *MockRepository) enqueueLocked(req domain.EnqueueRequest) (*domain.EnqueueResult, error) {
	for _, id := range req.RecipientIDs {
		if _, ok := m.users[id]; !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownRecipient, id)
		}
	}

	var (
		canonical []byte
		hash      string
	)
	if req.TemplateData != nil {
		var err error
		if canonical, hash, err = content.TemplateFingerprint(req.TemplateData); err != nil {
			return nil, fmt.Errorf("fingerprint template data: %w", err)
		}
	}

	res := &domain.EnqueueResult{
		NotificationIDs: make([]string, 0, len(req.RecipientIDs)),
		AttachmentIDs:   make([]string, 0, len(req.Attachments)),
	}

	if req.TemplateData != nil {
		id, ok := m.templates[hash]
		if !ok {
			id = uuid.NewString()
			m.templates[hash] = id
			m.templateData[id] = canonical
		}
		res.TemplateDataID = &id
	}

	for _, a := range req.Attachments {
		h := content.Fingerprint(a.Data)
		id, ok := m.attachmentIDs[h]
		if !ok {
			id = uuid.NewString()
			m.attachmentIDs[h] = id
			m.attachments[id] = &domain.Attachment{
				ID:          id,
				ContentType: a.ContentType,
				FileName:    a.FileName,
				Data:        append([]byte{}, a.Data...),
				Hash:        h,
				CreatedAt:   time.Now().UTC(),
			}
		}
		if !slices.Contains(res.AttachmentIDs, id) {
			res.AttachmentIDs = append(res.AttachmentIDs, id)
		}
	}

	createdAt := time.Now().UTC()
	if !createdAt.After(m.lastCreated) {
		createdAt = m.lastCreated.Add(time.Microsecond)
	}
	m.lastCreated = createdAt

	for _, userID := range req.RecipientIDs {
		n := &domain.Notification{
			ID:             uuid.NewString(),
			Kind:           req.Kind,
			UserID:         userID,
			TemplateDataID: res.TemplateDataID,
			AttachmentIDs:  append([]string{}, res.AttachmentIDs...),
			CreatedAt:      createdAt,
		}
		m.notifications[n.ID] = n
		res.NotificationIDs = append(res.NotificationIDs, n.ID)
	}
	return res, nil
}

func (m *MockRepository) ordered() []*domain.Notification {
	out := make([]*domain.Notification, 0, len(m.notifications))
	for _, n := range m.notifications {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

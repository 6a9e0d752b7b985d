package service_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-queue/internal/domain"
	"github.com/notifyhub/notification-queue/internal/queue"
	"github.com/notifyhub/notification-queue/internal/repository"
	"github.com/notifyhub/notification-queue/internal/service"
)

func newService() (*service.NotificationService, *repository.MockRepository, *queue.Notifier) {
	repo := repository.NewMockRepository()
	q := queue.New(1000)
	svc := service.NewNotificationService(repo, q, time.Minute, service.Hooks{}, zap.NewNop())
	return svc, repo, q
}

func addUser(repo *repository.MockRepository, verified bool) string {
	id := uuid.NewString()
	repo.AddUser(repository.MockUser{ID: id, Email: id[:8] + "@example.com", Verified: verified})
	return id
}

func TestNotificationService_Enqueue_FanOut(t *testing.T) {
	svc, repo, q := newService()
	ctx := context.Background()
	u1, u2 := addUser(repo, true), addUser(repo, true)

	res, err := svc.Enqueue(ctx, domain.EnqueueRequest{
		Kind:         domain.KindGroupWelcome,
		TemplateData: json.RawMessage(`{"group":{"name":"Gophers"}}`),
		Attachments: []domain.AttachmentInput{
			{ContentType: "text/calendar", FileName: "a.ics", Data: []byte("A")},
			{ContentType: "application/pdf", FileName: "b.pdf", Data: []byte("B")},
		},
		RecipientIDs: []string{u1, u2, u1},
	})
	require.NoError(t, err)

	assert.Len(t, res.NotificationIDs, 3, "repeated recipients produce repeated jobs")
	require.NotNil(t, res.TemplateDataID)
	require.Len(t, res.AttachmentIDs, 2)
	assert.Equal(t, 3, q.Pending())

	for _, n := range repo.Notifications() {
		assert.Equal(t, domain.KindGroupWelcome, n.Kind)
		assert.Equal(t, *res.TemplateDataID, *n.TemplateDataID)
		assert.Equal(t, res.AttachmentIDs, n.AttachmentIDs, "every job links every attachment in order")
	}
}

func TestNotificationService_Enqueue_DeduplicatesContent(t *testing.T) {
	svc, repo, _ := newService()
	ctx := context.Background()
	u := addUser(repo, true)

	first, err := svc.Enqueue(ctx, domain.EnqueueRequest{
		Kind:         domain.KindEventPublished,
		TemplateData: json.RawMessage(`{"b":2,"a":1}`),
		Attachments:  []domain.AttachmentInput{{ContentType: "image/png", FileName: "logo.png", Data: []byte{1, 2, 3}}},
		RecipientIDs: []string{u},
	})
	require.NoError(t, err)

	second, err := svc.Enqueue(ctx, domain.EnqueueRequest{
		Kind:         domain.KindEventPublished,
		TemplateData: json.RawMessage(`{ "a": 1, "b": 2 }`),
		Attachments:  []domain.AttachmentInput{{ContentType: "image/png", FileName: "other-name.png", Data: []byte{1, 2, 3}}},
		RecipientIDs: []string{u},
	})
	require.NoError(t, err)

	assert.Equal(t, *first.TemplateDataID, *second.TemplateDataID)
	assert.Equal(t, first.AttachmentIDs, second.AttachmentIDs)
	assert.Equal(t, 1, repo.TemplateCount())
	assert.Equal(t, 1, repo.AttachmentCount())
	assert.Len(t, repo.Notifications(), 2)
}

func TestNotificationService_Enqueue_RepeatedAttachmentLinkedOnce(t *testing.T) {
	svc, repo, _ := newService()
	u := addUser(repo, true)

	res, err := svc.Enqueue(context.Background(), domain.EnqueueRequest{
		Kind: domain.KindEventPublished,
		Attachments: []domain.AttachmentInput{
			{ContentType: "text/calendar", FileName: "event.ics", Data: []byte("ICS")},
			{ContentType: "application/pdf", FileName: "agenda.pdf", Data: []byte("PDF")},
			{ContentType: "text/calendar", FileName: "copy.ics", Data: []byte("ICS")},
		},
		RecipientIDs: []string{u},
	})
	require.NoError(t, err)

	require.Len(t, res.AttachmentIDs, 2)
	assert.Equal(t, 2, repo.AttachmentCount())

	n, err := svc.DequeueNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, res.AttachmentIDs, n.AttachmentIDs)
}

func TestNotificationService_Enqueue_CanonicalisesRecipientIDs(t *testing.T) {
	svc, repo, _ := newService()
	u := addUser(repo, true)

	res, err := svc.Enqueue(context.Background(), domain.EnqueueRequest{
		Kind:         domain.KindGroupWelcome,
		RecipientIDs: []string{"urn:uuid:" + u},
	})
	require.NoError(t, err)
	require.Len(t, res.NotificationIDs, 1)
	assert.Equal(t, u, repo.Notifications()[0].UserID)
}

func TestNotificationService_Enqueue_EmptyRecipients(t *testing.T) {
	svc, repo, q := newService()

	res, err := svc.Enqueue(context.Background(), domain.EnqueueRequest{Kind: domain.KindEventCanceled})
	require.NoError(t, err)
	assert.Empty(t, res.NotificationIDs)
	assert.Empty(t, repo.Notifications())
	assert.Zero(t, q.Pending())
}

func TestNotificationService_Enqueue_UnknownRecipientIsAllOrNothing(t *testing.T) {
	svc, repo, _ := newService()
	known := addUser(repo, true)

	_, err := svc.Enqueue(context.Background(), domain.EnqueueRequest{
		Kind:         domain.KindEventReminder,
		TemplateData: json.RawMessage(`{"x":1}`),
		Attachments:  []domain.AttachmentInput{{ContentType: "text/plain", FileName: "a.txt", Data: []byte("a")}},
		RecipientIDs: []string{known, uuid.NewString()},
	})
	assert.ErrorIs(t, err, domain.ErrUnknownRecipient)
	assert.Empty(t, repo.Notifications())
	assert.Zero(t, repo.TemplateCount())
	assert.Zero(t, repo.AttachmentCount())
}

func TestNotificationService_Enqueue_InvalidRequest(t *testing.T) {
	svc, repo, _ := newService()

	_, err := svc.Enqueue(context.Background(), domain.EnqueueRequest{Kind: "fax"})
	assert.ErrorIs(t, err, domain.ErrInvalidKind)

	_, err = svc.Enqueue(context.Background(), domain.EnqueueRequest{
		Kind:         domain.KindEventReminder,
		RecipientIDs: []string{"nope"},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRecipient)
	assert.Empty(t, repo.Notifications())
}

func TestNotificationService_DequeueNext_FIFO(t *testing.T) {
	svc, repo, _ := newService()
	ctx := context.Background()
	u := addUser(repo, true)

	var want []string
	for i := 0; i < 3; i++ {
		res, err := svc.Enqueue(ctx, domain.EnqueueRequest{Kind: domain.KindEventPublished, RecipientIDs: []string{u}})
		require.NoError(t, err)
		want = append(want, res.NotificationIDs[0])
	}

	var got []string
	for i := 0; i < 3; i++ {
		n, err := svc.DequeueNext(ctx)
		require.NoError(t, err)
		require.NotNil(t, n)
		got = append(got, n.ID)
	}
	assert.Equal(t, want, got)

	n, err := svc.DequeueNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, n, "leased jobs are not handed out twice")
}

func TestNotificationService_DequeueNext_Eligibility(t *testing.T) {
	svc, repo, _ := newService()
	ctx := context.Background()
	unverified := addUser(repo, false)

	_, err := svc.Enqueue(ctx, domain.EnqueueRequest{Kind: domain.KindEventReminder, RecipientIDs: []string{unverified}})
	require.NoError(t, err)
	verification, err := svc.Enqueue(ctx, domain.EnqueueRequest{
		Kind:         domain.KindEmailVerification,
		TemplateData: json.RawMessage(`{"link":"https://example.com/verify/abc"}`),
		RecipientIDs: []string{unverified},
	})
	require.NoError(t, err)

	n, err := svc.DequeueNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, verification.NotificationIDs[0], n.ID)
	assert.Equal(t, domain.KindEmailVerification, n.Kind)
	assert.JSONEq(t, `{"link":"https://example.com/verify/abc"}`, string(n.TemplateData))

	n, err = svc.DequeueNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, n, "reminder to an unverified recipient is never returned")
}

func TestNotificationService_DequeueNext_ConcurrentCallersGetDistinctJobs(t *testing.T) {
	svc, repo, _ := newService()
	ctx := context.Background()

	const jobs = 60
	recipients := make([]string, jobs)
	for i := range recipients {
		recipients[i] = addUser(repo, true)
	}
	res, err := svc.Enqueue(ctx, domain.EnqueueRequest{Kind: domain.KindEventPublished, RecipientIDs: recipients})
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				n, err := svc.DequeueNext(ctx)
				if err != nil || n == nil {
					return
				}
				mu.Lock()
				seen[n.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, jobs)
	for _, id := range res.NotificationIDs {
		assert.Equal(t, 1, seen[id], id)
	}
}

func TestNotificationService_ExpiredLeaseIsRedelivered(t *testing.T) {
	svc, repo, _ := newService()
	ctx := context.Background()
	u := addUser(repo, true)

	res, err := svc.Enqueue(ctx, domain.EnqueueRequest{Kind: domain.KindEventPublished, RecipientIDs: []string{u}})
	require.NoError(t, err)

	first, err := svc.DequeueNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)

	repo.ExpireLeases()

	again, err := svc.DequeueNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, res.NotificationIDs[0], again.ID)

	require.NoError(t, svc.MarkProcessed(ctx, again.ID, ""))
	repo.ExpireLeases()

	none, err := svc.DequeueNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, none, "processed jobs are never redelivered")
}

func TestNotificationService_MarkProcessed(t *testing.T) {
	svc, repo, _ := newService()
	ctx := context.Background()
	u := addUser(repo, true)

	res, err := svc.Enqueue(ctx, domain.EnqueueRequest{Kind: domain.KindEventPublished, RecipientIDs: []string{u}})
	require.NoError(t, err)
	id := res.NotificationIDs[0]

	require.NoError(t, svc.MarkProcessed(ctx, id, "smtp: 550 mailbox unavailable"))

	n, err := svc.GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, n.Processed)
	require.NotNil(t, n.ProcessedAt)
	require.NotNil(t, n.Error)
	assert.Equal(t, "smtp: 550 mailbox unavailable", *n.Error)

	assert.ErrorIs(t, svc.MarkProcessed(ctx, id, ""), domain.ErrAlreadyProcessed)
	assert.ErrorIs(t, svc.MarkProcessed(ctx, uuid.NewString(), ""), domain.ErrNotFound)
	assert.ErrorIs(t, svc.MarkProcessed(ctx, "not-a-uuid", ""), domain.ErrNotFound)
}

func TestNotificationService_Stats(t *testing.T) {
	svc, repo, _ := newService()
	ctx := context.Background()
	u := addUser(repo, true)

	_, err := svc.Enqueue(ctx, domain.EnqueueRequest{Kind: domain.KindEventPublished, RecipientIDs: []string{u, u, u}})
	require.NoError(t, err)

	n, err := svc.DequeueNext(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.MarkProcessed(ctx, n.ID, ""))
	_, err = svc.DequeueNext(ctx)
	require.NoError(t, err)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.QueueStats{Pending: 1, Leased: 1, Processed: 1}, *stats)
}

func TestNotificationService_Hooks(t *testing.T) {
	repo := repository.NewMockRepository()
	var enqueued, dequeued int
	svc := service.NewNotificationService(repo, queue.New(10), time.Minute, service.Hooks{
		OnEnqueued: func(_ domain.Kind, n int) { enqueued += n },
		OnDequeued: func(domain.Kind) { dequeued++ },
	}, zap.NewNop())
	u := addUser(repo, true)

	_, err := svc.Enqueue(context.Background(), domain.EnqueueRequest{Kind: domain.KindGroupWelcome, RecipientIDs: []string{u, u}})
	require.NoError(t, err)
	_, err = svc.DequeueNext(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, enqueued)
	assert.Equal(t, 1, dequeued)
}

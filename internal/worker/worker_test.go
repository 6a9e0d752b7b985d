package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-queue/internal/domain"
	"github.com/notifyhub/notification-queue/internal/provider"
	"github.com/notifyhub/notification-queue/internal/queue"
	"github.com/notifyhub/notification-queue/internal/ratelimiter"
	"github.com/notifyhub/notification-queue/internal/repository"
	"github.com/notifyhub/notification-queue/internal/service"
	"github.com/notifyhub/notification-queue/internal/worker"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []*provider.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg *provider.Message) (*provider.SendResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, msg)
	return &provider.SendResponse{MessageID: "msg-" + msg.NotificationID, Status: "accepted"}, nil
}

func (f *fakeSender) messages() []*provider.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*provider.Message(nil), f.sent...)
}

type fixture struct {
	repo   *repository.MockRepository
	svc    *service.NotificationService
	wake   *queue.Notifier
	sender *fakeSender

	ratePerSec int
}

func newFixture() *fixture {
	return newFixtureWithLease(time.Minute)
}

func newFixtureWithLease(lease time.Duration) *fixture {
	repo := repository.NewMockRepository()
	wake := queue.New(100)
	svc := service.NewNotificationService(repo, wake, lease, service.Hooks{}, zap.NewNop())
	return &fixture{repo: repo, svc: svc, wake: wake, sender: &fakeSender{}, ratePerSec: 1000}
}

func (f *fixture) user(verified bool) string {
	id := uuid.NewString()
	f.repo.AddUser(repository.MockUser{ID: id, Email: id[:8] + "@example.com", Verified: verified})
	return id
}

// runPool starts a pool and returns a stop func that cancels and waits for it.
func (f *fixture) runPool(t *testing.T, workers int, hooks worker.MetricHooks) func() {
	t.Helper()
	renderer, err := provider.NewRenderer()
	require.NoError(t, err)

	p := worker.NewPool(
		worker.PoolConfig{Workers: workers, IdleWait: 10 * time.Millisecond},
		f.svc, f.wake, renderer, f.sender, ratelimiter.New(f.ratePerSec), zap.NewNop(), hooks,
	)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	return func() {
		cancel()
		p.Wait()
	}
}

func (f *fixture) allProcessed() bool {
	for _, n := range f.repo.Notifications() {
		if !n.Processed {
			return false
		}
	}
	return true
}

func TestPool_DeliversAndMarksProcessed(t *testing.T) {
	f := newFixture()
	u1, u2 := f.user(true), f.user(true)

	_, err := f.svc.Enqueue(context.Background(), domain.EnqueueRequest{
		Kind:         domain.KindGroupWelcome,
		TemplateData: json.RawMessage(`{"group":{"name":"Gophers"}}`),
		Attachments:  []domain.AttachmentInput{{ContentType: "text/plain", FileName: "rules.txt", Data: []byte("be nice")}},
		RecipientIDs: []string{u1, u2},
	})
	require.NoError(t, err)

	var sent atomic.Int32
	stop := f.runPool(t, 2, worker.MetricHooks{
		OnSent: func(domain.Kind, time.Duration) { sent.Add(1) },
	})
	defer stop()

	assert.Eventually(t, f.allProcessed, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return sent.Load() == 2 }, time.Second, 10*time.Millisecond)

	msgs := f.sender.messages()
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		assert.Equal(t, "Welcome to Gophers", m.Subject)
		require.Len(t, m.Attachments, 1)
		assert.Equal(t, "rules.txt", m.Attachments[0].FileName)
		assert.Equal(t, []byte("be nice"), m.Attachments[0].Data)
	}
	for _, n := range f.repo.Notifications() {
		assert.Nil(t, n.Error)
	}
}

func TestPool_SendFailureRecordedOnJob(t *testing.T) {
	f := newFixture()
	f.sender.err = errors.New("mailbox unavailable")
	u := f.user(true)

	_, err := f.svc.Enqueue(context.Background(), domain.EnqueueRequest{
		Kind:         domain.KindGroupWelcome,
		TemplateData: json.RawMessage(`{"group":{"name":"Gophers"}}`),
		RecipientIDs: []string{u},
	})
	require.NoError(t, err)

	var failed atomic.Int32
	stop := f.runPool(t, 1, worker.MetricHooks{
		OnFailed: func(domain.Kind) { failed.Add(1) },
	})
	defer stop()

	assert.Eventually(t, f.allProcessed, 2*time.Second, 10*time.Millisecond)
	n := f.repo.Notifications()[0]
	require.NotNil(t, n.Error)
	assert.Contains(t, *n.Error, "mailbox unavailable")
	assert.Eventually(t, func() bool { return failed.Load() == 1 }, time.Second, 10*time.Millisecond)
}

func TestPool_RenderFailureRecordedOnJob(t *testing.T) {
	f := newFixture()
	u := f.user(true)

	// group-welcome needs group.name in its subject.
	_, err := f.svc.Enqueue(context.Background(), domain.EnqueueRequest{
		Kind:         domain.KindGroupWelcome,
		TemplateData: json.RawMessage(`{}`),
		RecipientIDs: []string{u},
	})
	require.NoError(t, err)

	stop := f.runPool(t, 1, worker.MetricHooks{})
	defer stop()

	assert.Eventually(t, f.allProcessed, 2*time.Second, 10*time.Millisecond)
	n := f.repo.Notifications()[0]
	require.NotNil(t, n.Error)
	assert.Contains(t, *n.Error, "render subject")
	assert.Empty(t, f.sender.messages())
}

func TestPool_SkipsUnverifiedRecipients(t *testing.T) {
	f := newFixture()
	verified, unverified := f.user(true), f.user(false)

	_, err := f.svc.Enqueue(context.Background(), domain.EnqueueRequest{
		Kind:         domain.KindGroupWelcome,
		TemplateData: json.RawMessage(`{"group":{"name":"Gophers"}}`),
		RecipientIDs: []string{unverified, verified},
	})
	require.NoError(t, err)

	stop := f.runPool(t, 1, worker.MetricHooks{})

	assert.Eventually(t, func() bool { return len(f.sender.messages()) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	stop()

	msgs := f.sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, verified[:8]+"@example.com", msgs[0].To)

	for _, n := range f.repo.Notifications() {
		assert.Equal(t, n.UserID == verified, n.Processed)
	}
}

func TestPool_RateLimitWaitBoundedByLease(t *testing.T) {
	f := newFixtureWithLease(100 * time.Millisecond)
	f.ratePerSec = 1
	u1, u2 := f.user(true), f.user(true)

	_, err := f.svc.Enqueue(context.Background(), domain.EnqueueRequest{
		Kind:         domain.KindGroupWelcome,
		TemplateData: json.RawMessage(`{"group":{"name":"Gophers"}}`),
		RecipientIDs: []string{u1, u2},
	})
	require.NoError(t, err)

	stop := f.runPool(t, 2, worker.MetricHooks{})
	defer stop()

	// One token per second: the second job cannot get one inside its lease,
	// so it is released unsent instead of being held past the lease.
	time.Sleep(300 * time.Millisecond)
	assert.Len(t, f.sender.messages(), 1)

	assert.Eventually(t, f.allProcessed, 3*time.Second, 20*time.Millisecond)

	msgs := f.sender.messages()
	require.Len(t, msgs, 2, "each job is sent exactly once")
	assert.NotEqual(t, msgs[0].NotificationID, msgs[1].NotificationID)
}

func TestPool_StopsOnCancel(t *testing.T) {
	f := newFixture()
	stop := f.runPool(t, 3, worker.MetricHooks{})

	done := make(chan struct{})
	go func() {
		stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop after cancel")
	}
}

type fakeRunner struct {
	calls   atomic.Int32
	baseURL atomic.Value
}

func (r *fakeRunner) RunReminderPass(_ context.Context, baseURL string) (int, error) {
	r.calls.Add(1)
	r.baseURL.Store(baseURL)
	return 2, nil
}

func TestReminderWorker_RunsPassEveryTick(t *testing.T) {
	runner := &fakeRunner{}
	rw := worker.NewReminderWorker(runner, "https://example.org", 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rw.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return runner.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, "https://example.org", runner.baseURL.Load())
}

type fakeStats struct {
	stats *domain.QueueStats
}

func (s fakeStats) Stats(context.Context) (*domain.QueueStats, error) { return s.stats, nil }

func TestStatsWorker_ReportsImmediately(t *testing.T) {
	reported := make(chan *domain.QueueStats, 10)
	sw := worker.NewStatsWorker(
		fakeStats{stats: &domain.QueueStats{Pending: 3, Leased: 1}},
		func(s *domain.QueueStats) { reported <- s },
		time.Hour,
		zap.NewNop(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sw.Run(ctx)

	select {
	case s := <-reported:
		assert.Equal(t, 3, s.Pending)
		assert.Equal(t, 1, s.Leased)
	case <-time.After(time.Second):
		t.Fatal("stats worker did not report")
	}
}

// blockingRunner holds a reminder pass open until released, ignoring ctx.
type blockingRunner struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (r *blockingRunner) RunReminderPass(context.Context, string) (int, error) {
	r.once.Do(func() { close(r.started) })
	<-r.release
	return 0, nil
}

func TestGroup_WaitsForInFlightPass(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{}), release: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	var g worker.Group
	g.Go(ctx, worker.NewReminderWorker(runner, "https://example.org", 5*time.Millisecond, zap.NewNop()))
	g.Go(ctx, worker.NewStatsWorker(fakeStats{stats: &domain.QueueStats{}}, func(*domain.QueueStats) {}, time.Hour, zap.NewNop()))

	select {
	case <-runner.started:
	case <-time.After(time.Second):
		t.Fatal("reminder pass did not start")
	}
	cancel()

	waited := make(chan struct{})
	go func() {
		g.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		t.Fatal("Wait returned while a pass was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(runner.release)
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after the pass finished")
	}
}

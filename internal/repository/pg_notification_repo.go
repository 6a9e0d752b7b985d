package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/notification-queue/internal/content"
	"github.com/notifyhub/notification-queue/internal/domain"
)

type pgNotificationRepository struct {
	pool *pgxpool.Pool
}

// NewPgNotificationRepository returns a NotificationRepository backed by PostgreSQL.
func NewPgNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &pgNotificationRepository{pool: pool}
}

func (r *pgNotificationRepository) Enqueue(ctx context.Context, req domain.EnqueueRequest) (*domain.EnqueueResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	res, err := enqueueTx(ctx, tx, req)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit enqueue: %w", err)
	}
	return res, nil
}

const dequeueSQL = `
	WITH next AS (
		SELECT n.notification_id
		FROM notification n
		JOIN users u ON u.user_id = n.user_id
		WHERE n.processed = false
		  AND (n.lease_expires_at IS NULL OR n.lease_expires_at <= now())
		  AND (u.email_verified OR n.kind = $2)
		ORDER BY n.created_at, n.notification_id
		LIMIT 1
		FOR UPDATE OF n SKIP LOCKED
	)
	UPDATE notification n
	SET lease_expires_at = now() + make_interval(secs => $1)
	FROM next, users u
	WHERE n.notification_id = next.notification_id
	  AND u.user_id = n.user_id
	RETURNING n.notification_id::text, n.kind, n.user_id::text, u.email,
	          n.notification_template_data_id::text, n.created_at, n.lease_expires_at`

func (r *pgNotificationRepository) DequeueNext(ctx context.Context, lease time.Duration) (*domain.LeasedNotification, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var (
		n          domain.LeasedNotification
		kind       string
		templateID *string
	)
	err = tx.QueryRow(ctx, dequeueSQL, lease.Seconds(), string(domain.KindEmailVerification)).Scan(
		&n.ID, &kind, &n.UserID, &n.RecipientEmail, &templateID, &n.CreatedAt, &n.LeaseExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lease notification: %w", err)
	}
	n.Kind = domain.Kind(kind)

	if templateID != nil {
		var data string
		err := tx.QueryRow(ctx, `
			SELECT data::text FROM notification_template_data
			WHERE notification_template_data_id = $1`, *templateID).Scan(&data)
		if err != nil {
			return nil, fmt.Errorf("load template data: %w", err)
		}
		n.TemplateData = json.RawMessage(data)
	}

	if n.AttachmentIDs, err = attachmentIDs(ctx, tx, n.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit lease: %w", err)
	}
	return &n, nil
}

func (r *pgNotificationRepository) MarkProcessed(ctx context.Context, id string, errMsg *string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notification
		SET processed = true, processed_at = now(), error = $2, lease_expires_at = NULL
		WHERE notification_id = $1 AND processed = false`, id, errMsg)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var processed bool
	err = r.pool.QueryRow(ctx,
		`SELECT processed FROM notification WHERE notification_id = $1`, id).Scan(&processed)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check notification: %w", err)
	}
	return domain.ErrAlreadyProcessed
}

func (r *pgNotificationRepository) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	var (
		n    domain.Notification
		kind string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT notification_id::text, kind, user_id::text, notification_template_data_id::text,
		       processed, processed_at, error, lease_expires_at, created_at
		FROM notification WHERE notification_id = $1`, id).Scan(
		&n.ID, &kind, &n.UserID, &n.TemplateDataID,
		&n.Processed, &n.ProcessedAt, &n.Error, &n.LeaseExpiresAt, &n.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	n.Kind = domain.Kind(kind)

	if n.AttachmentIDs, err = attachmentIDs(ctx, r.pool, n.ID); err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *pgNotificationRepository) GetAttachment(ctx context.Context, id string) (*domain.Attachment, error) {
	var a domain.Attachment
	err := r.pool.QueryRow(ctx, `
		SELECT attachment_id::text, content_type, file_name, data, hash, created_at
		FROM attachment WHERE attachment_id = $1`, id).Scan(
		&a.ID, &a.ContentType, &a.FileName, &a.Data, &a.Hash, &a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attachment: %w", err)
	}
	return &a, nil
}

func (r *pgNotificationRepository) Stats(ctx context.Context) (*domain.QueueStats, error) {
	var s domain.QueueStats
	err := r.pool.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE NOT processed AND (lease_expires_at IS NULL OR lease_expires_at <= now())),
			count(*) FILTER (WHERE NOT processed AND lease_expires_at > now()),
			count(*) FILTER (WHERE processed)
		FROM notification`).Scan(&s.Pending, &s.Leased, &s.Processed)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	return &s, nil
}

// ---- helpers ----

const (
	upsertTemplateDataSQL = `
		INSERT INTO notification_template_data (notification_template_data_id, data, hash)
		VALUES ($1, $2::jsonb, $3)
		ON CONFLICT (hash) DO UPDATE SET hash = EXCLUDED.hash
		RETURNING notification_template_data_id::text`

	upsertAttachmentSQL = `
		INSERT INTO attachment (attachment_id, content_type, data, file_name, hash)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (hash) DO UPDATE SET hash = EXCLUDED.hash
		RETURNING attachment_id::text`

	insertNotificationSQL = `
		INSERT INTO notification (notification_id, kind, user_id, notification_template_data_id)
		VALUES ($1, $2, $3, $4)`

	linkAttachmentSQL = `
		INSERT INTO notification_attachment (notification_id, attachment_id, position)
		SELECT unnest($1::text[])::uuid, $2, $3`
)

// enqueueTx materialises an enqueue request inside tx. Content rows are
// resolved by fingerprint: a conflicting insert returns the existing id.
func enqueueTx(ctx context.Context, tx pgx.Tx, req domain.EnqueueRequest) (*domain.EnqueueResult, error) {
	res := &domain.EnqueueResult{
		NotificationIDs: make([]string, 0, len(req.RecipientIDs)),
		AttachmentIDs:   make([]string, 0, len(req.Attachments)),
	}

	if req.TemplateData != nil {
		canonical, hash, err := content.TemplateFingerprint(req.TemplateData)
		if err != nil {
			return nil, fmt.Errorf("fingerprint template data: %w", err)
		}
		var id string
		if err := tx.QueryRow(ctx, upsertTemplateDataSQL, uuid.NewString(), string(canonical), hash).Scan(&id); err != nil {
			return nil, fmt.Errorf("upsert template data: %w", err)
		}
		res.TemplateDataID = &id
	}

	for _, userID := range req.RecipientIDs {
		id := uuid.NewString()
		if _, err := tx.Exec(ctx, insertNotificationSQL, id, string(req.Kind), userID, res.TemplateDataID); err != nil {
			if isForeignKeyViolation(err) {
				return nil, fmt.Errorf("%w: %s", domain.ErrUnknownRecipient, userID)
			}
			return nil, fmt.Errorf("insert notification: %w", err)
		}
		res.NotificationIDs = append(res.NotificationIDs, id)
	}

	// Attachments form an ordered set: repeated bytes link once, at their
	// first position.
	linked := make(map[string]bool, len(req.Attachments))
	for _, a := range req.Attachments {
		var id string
		err := tx.QueryRow(ctx, upsertAttachmentSQL,
			uuid.NewString(), a.ContentType, a.Data, a.FileName, content.Fingerprint(a.Data),
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("upsert attachment: %w", err)
		}
		if linked[id] {
			continue
		}
		linked[id] = true
		pos := len(res.AttachmentIDs)
		res.AttachmentIDs = append(res.AttachmentIDs, id)

		if len(res.NotificationIDs) == 0 {
			continue
		}
		if _, err := tx.Exec(ctx, linkAttachmentSQL, res.NotificationIDs, id, pos); err != nil {
			return nil, fmt.Errorf("link attachment: %w", err)
		}
	}

	return res, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func attachmentIDs(ctx context.Context, q querier, notificationID string) ([]string, error) {
	rows, err := q.Query(ctx, `
		SELECT attachment_id::text FROM notification_attachment
		WHERE notification_id = $1 ORDER BY position`, notificationID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan attachments: %w", err)
	}
	return ids, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation
}

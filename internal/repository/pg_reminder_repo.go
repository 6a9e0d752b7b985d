package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/notification-queue/internal/domain"
)

type pgReminderRepository struct {
	pool *pgxpool.Pool
}

// NewPgReminderRepository returns a ReminderRepository backed by PostgreSQL.
func NewPgReminderRepository(pool *pgxpool.Pool) ReminderRepository {
	return &pgReminderRepository{pool: pool}
}

const selectReminderEventSQL = `
	SELECT e.event_id::text, e.name, e.slug, e.kind, e.description_short,
	       e.starts_at, e.ends_at, e.timezone,
	       e.venue_name, e.venue_address, e.venue_city, e.meeting_url, e.logo_url,
	       g.name, g.slug, c.name, c.display_name, c.theme::text
	FROM event e
	JOIN "group" g ON g.group_id = e.group_id
	JOIN community c ON c.community_id = g.community_id
	WHERE c.active AND NOT c.deleted
	  AND g.active AND NOT g.deleted
	  AND e.published AND NOT e.canceled AND NOT e.deleted
	  AND e.reminder_enabled
	  AND e.starts_at > $1
	  AND e.starts_at <= $2
	  AND (e.reminder_evaluated_for_start IS NULL OR e.reminder_evaluated_for_start <> e.starts_at)
	  AND NOT (e.event_id::text = ANY($3::text[]))
	ORDER BY e.starts_at, e.event_id
	LIMIT 1
	FOR UPDATE OF e SKIP LOCKED`

const reminderRecipientsSQL = `
	SELECT u.user_id::text
	FROM event_attendee ea
	JOIN users u ON u.user_id = ea.user_id
	WHERE ea.event_id = $1 AND u.email_verified
	UNION
	SELECT u.user_id::text
	FROM event_speaker es
	JOIN users u ON u.user_id = es.user_id
	WHERE es.event_id = $1 AND u.email_verified
	ORDER BY 1`

func (r *pgReminderRepository) EvaluateNextEvent(
	ctx context.Context,
	now time.Time,
	lookahead time.Duration,
	exclude []string,
	build ReminderPayloadFunc,
) (*domain.ReminderOutcome, error) {
	if exclude == nil {
		exclude = []string{}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	c, err := scanReminderCandidate(tx.QueryRow(ctx, selectReminderEventSQL, now, now.Add(lookahead), exclude))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select reminder event: %w", err)
	}

	out := &domain.ReminderOutcome{EventID: c.EventID, StartsAt: c.StartsAt}

	rows, err := tx.Query(ctx, reminderRecipientsSQL, c.EventID)
	if err != nil {
		return out, fmt.Errorf("query recipients: %w", err)
	}
	if c.RecipientIDs, err = pgx.CollectRows(rows, pgx.RowTo[string]); err != nil {
		return out, fmt.Errorf("scan recipients: %w", err)
	}

	if len(c.RecipientIDs) == 0 {
		_, err = tx.Exec(ctx, `
			UPDATE event SET reminder_evaluated_for_start = $2
			WHERE event_id = $1`, c.EventID, c.StartsAt)
		if err != nil {
			return out, fmt.Errorf("stamp evaluated event: %w", err)
		}
	} else {
		payload, err := build(c)
		if err != nil {
			return out, fmt.Errorf("build reminder payload: %w", err)
		}
		_, err = enqueueTx(ctx, tx, domain.EnqueueRequest{
			Kind:         domain.KindEventReminder,
			TemplateData: payload,
			RecipientIDs: c.RecipientIDs,
		})
		if err != nil {
			return out, fmt.Errorf("enqueue reminder: %w", err)
		}
		_, err = tx.Exec(ctx, `
			UPDATE event SET reminder_evaluated_for_start = $2, reminder_sent_at = $3
			WHERE event_id = $1`, c.EventID, c.StartsAt, now)
		if err != nil {
			return out, fmt.Errorf("stamp reminded event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return out, fmt.Errorf("commit reminder: %w", err)
	}
	out.Recipients = len(c.RecipientIDs)
	return out, nil
}

func scanReminderCandidate(row pgx.Row) (*domain.ReminderCandidate, error) {
	var (
		c     domain.ReminderCandidate
		theme *string
	)
	err := row.Scan(
		&c.EventID, &c.EventName, &c.EventSlug, &c.EventKind, &c.DescriptionShort,
		&c.StartsAt, &c.EndsAt, &c.Timezone,
		&c.VenueName, &c.VenueAddress, &c.VenueCity, &c.MeetingURL, &c.LogoURL,
		&c.GroupName, &c.GroupSlug, &c.CommunityName, &c.CommunityDisplayName, &theme,
	)
	if err != nil {
		return nil, err
	}
	if theme != nil {
		c.Theme = json.RawMessage(*theme)
	}
	return &c, nil
}

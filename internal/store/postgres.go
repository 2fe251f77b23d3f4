package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// userRepo implements UserRepository.
type userRepo struct {
	pool DB
}

func (r *userRepo) Ensure(ctx context.Context, id string) error {
	defer observeDB(ctx, "users.ensure")()
	const q = `INSERT INTO users (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`
	if _, err := r.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*User, error) {
	defer observeDB(ctx, "users.get_by_id")()
	const q = `SELECT id, partner_id, created_at FROM users WHERE id=$1`
	var u User
	if err := r.pool.QueryRow(ctx, q, id).Scan(&u.ID, &u.PartnerID, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (r *userRepo) LinkedPartnerID(ctx context.Context, id string) (string, error) {
	defer observeDB(ctx, "users.linked_partner")()
	const q = `SELECT partner_id FROM users WHERE id=$1`
	var partnerID *string
	if err := r.pool.QueryRow(ctx, q, id).Scan(&partnerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("linked partner: %w", err)
	}
	if partnerID == nil {
		return "", nil
	}
	return *partnerID, nil
}

// LinkPartner links both users to each other. Either side already being
// linked to someone else yields ErrConflict.
func (r *userRepo) LinkPartner(ctx context.Context, userID, partnerID string) error {
	defer observeDB(ctx, "users.link_partner")()
	if userID == partnerID {
		return ErrConflict
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin link partner: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const lockQ = `SELECT id, partner_id FROM users WHERE id = ANY($1) FOR UPDATE`
	rows, err := tx.Query(ctx, lockQ, []string{userID, partnerID})
	if err != nil {
		return fmt.Errorf("lock partner rows: %w", err)
	}
	found, conflict := 0, false
	for rows.Next() {
		var id string
		var current *string
		if err := rows.Scan(&id, &current); err != nil {
			rows.Close()
			return fmt.Errorf("scan partner row: %w", err)
		}
		found++
		other := partnerID
		if id == partnerID {
			other = userID
		}
		if current != nil && *current != other {
			conflict = true
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("lock partner rows: %w", err)
	}
	if found != 2 {
		return ErrNotFound
	}
	if conflict {
		return ErrConflict
	}

	const linkQ = `UPDATE users SET partner_id = CASE WHEN id=$1 THEN $2 ELSE $1 END WHERE id IN ($1, $2)`
	if _, err := tx.Exec(ctx, linkQ, userID, partnerID); err != nil {
		return fmt.Errorf("link partner: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit link partner: %w", err)
	}
	return nil
}

// UnlinkPartner clears the link on both sides.
func (r *userRepo) UnlinkPartner(ctx context.Context, userID string) error {
	defer observeDB(ctx, "users.unlink_partner")()
	const q = `UPDATE users SET partner_id = NULL WHERE id=$1 OR partner_id=$1`
	if _, err := r.pool.Exec(ctx, q, userID); err != nil {
		return fmt.Errorf("unlink partner: %w", err)
	}
	return nil
}

// cycleEntryRepo implements CycleEntryRepository.
type cycleEntryRepo struct {
	pool DB
}

func (r *cycleEntryRepo) ListByUser(ctx context.Context, userID string) ([]CycleEntry, error) {
	defer observeDB(ctx, "cycle_entries.list_by_user")()
	const q = `SELECT id, user_id, start_date, end_date, created_at
FROM cycle_entries WHERE user_id=$1 ORDER BY start_date ASC, created_at ASC`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list cycle entries: %w", err)
	}
	defer rows.Close()

	var entries []CycleEntry
	for rows.Next() {
		var e CycleEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.StartDate, &e.EndDate, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cycle entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list cycle entries: %w", err)
	}
	return entries, nil
}

func (r *cycleEntryRepo) Append(ctx context.Context, entry CycleEntry) (*CycleEntry, error) {
	defer observeDB(ctx, "cycle_entries.append")()
	const q = `INSERT INTO cycle_entries (id, user_id, start_date, end_date)
VALUES ($1, $2, $3, $4) RETURNING created_at`
	if err := r.pool.QueryRow(ctx, q, entry.ID, entry.UserID, entry.StartDate, entry.EndDate).Scan(&entry.CreatedAt); err != nil {
		return nil, fmt.Errorf("append cycle entry: %w", err)
	}
	return &entry, nil
}

func (r *cycleEntryRepo) ListUserIDs(ctx context.Context) ([]string, error) {
	defer observeDB(ctx, "cycle_entries.list_user_ids")()
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT user_id FROM cycle_entries ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list cycle users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan cycle user: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list cycle users: %w", err)
	}
	return ids, nil
}

// preferenceRepo implements PreferenceRepository.
type preferenceRepo struct {
	pool DB
}

func (r *preferenceRepo) Get(ctx context.Context, userID string) (*CyclePreference, error) {
	defer observeDB(ctx, "cycle_preferences.get")()
	const q = `SELECT user_id, share_with_partner, updated_at FROM cycle_preferences WHERE user_id=$1`
	var p CyclePreference
	if err := r.pool.QueryRow(ctx, q, userID).Scan(&p.UserID, &p.ShareWithPartner, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cycle preference: %w", err)
	}
	return &p, nil
}

func (r *preferenceRepo) Set(ctx context.Context, userID string, shareWithPartner bool) (*CyclePreference, error) {
	defer observeDB(ctx, "cycle_preferences.set")()
	const q = `INSERT INTO cycle_preferences (user_id, share_with_partner, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (user_id) DO UPDATE SET share_with_partner = EXCLUDED.share_with_partner, updated_at = NOW()
RETURNING updated_at`
	p := CyclePreference{UserID: userID, ShareWithPartner: shareWithPartner}
	if err := r.pool.QueryRow(ctx, q, userID, shareWithPartner).Scan(&p.UpdatedAt); err != nil {
		return nil, fmt.Errorf("set cycle preference: %w", err)
	}
	return &p, nil
}

// eventRepo implements EventRepository.
type eventRepo struct {
	pool DB
}

const eventColumns = `id, title, description, starts_at, ends_at, event_type, user_ids, created_by, created_at, updated_at`

func scanEvent(row pgx.Row) (*CalendarEvent, error) {
	var e CalendarEvent
	if err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Start, &e.End, &e.Type, &e.UserIDs, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *eventRepo) ListForParticipants(ctx context.Context, userIDs []string) ([]CalendarEvent, error) {
	defer observeDB(ctx, "calendar_events.list_for_participants")()
	if len(userIDs) == 0 {
		return nil, nil
	}
	q := `SELECT ` + eventColumns + ` FROM calendar_events WHERE user_ids && $1 ORDER BY starts_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, q, userIDs)
	if err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}
	defer rows.Close()

	var events []CalendarEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan calendar event: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}
	return events, nil
}

func (r *eventRepo) GetByID(ctx context.Context, id string) (*CalendarEvent, error) {
	defer observeDB(ctx, "calendar_events.get_by_id")()
	q := `SELECT ` + eventColumns + ` FROM calendar_events WHERE id=$1`
	e, err := scanEvent(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get calendar event: %w", err)
	}
	return e, nil
}

func (r *eventRepo) Create(ctx context.Context, event CalendarEvent) (*CalendarEvent, error) {
	defer observeDB(ctx, "calendar_events.create")()
	const q = `INSERT INTO calendar_events (id, title, description, starts_at, ends_at, event_type, user_ids, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, event.ID, event.Title, event.Description, event.Start, event.End, event.Type, event.UserIDs, event.CreatedBy).
		Scan(&event.CreatedAt, &event.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("create calendar event: %w", err)
	}
	return &event, nil
}

func (r *eventRepo) Update(ctx context.Context, event CalendarEvent) (*CalendarEvent, error) {
	defer observeDB(ctx, "calendar_events.update")()
	const q = `UPDATE calendar_events
SET title=$2, description=$3, starts_at=$4, ends_at=$5, event_type=$6, updated_at=$7
WHERE id=$1 RETURNING created_by, user_ids, created_at`
	event.UpdatedAt = time.Now().UTC()
	err := r.pool.QueryRow(ctx, q, event.ID, event.Title, event.Description, event.Start, event.End, event.Type, event.UpdatedAt).
		Scan(&event.CreatedBy, &event.UserIDs, &event.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update calendar event: %w", err)
	}
	return &event, nil
}

func (r *eventRepo) Delete(ctx context.Context, id string) error {
	defer observeDB(ctx, "calendar_events.delete")()
	tag, err := r.pool.Exec(ctx, `DELETE FROM calendar_events WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete calendar event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

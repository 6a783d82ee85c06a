package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/KyawPh/luu-kyone-bot-sub000/internal/domain"
)

type postRow struct {
	PostID           string        `db:"post_id"`
	OwnerID          int64         `db:"owner_id"`
	FromCity         string        `db:"from_city"`
	ToCity           string        `db:"to_city"`
	Categories       string        `db:"categories"`
	DepartureDate    sql.NullInt64 `db:"departure_date"`
	Urgency          string        `db:"urgency"`
	Weight           string        `db:"weight"`
	Description      string        `db:"description"`
	PhotoRef         string        `db:"photo_ref"`
	Status           string        `db:"status"`
	CreatedAt        int64         `db:"created_at"`
	ExpiresAt        int64         `db:"expires_at"`
	CompletedAt      sql.NullInt64 `db:"completed_at"`
	CancelledAt      sql.NullInt64 `db:"cancelled_at"`
	ExpiredAt        sql.NullInt64 `db:"expired_at"`
	ExpiredReason    string        `db:"expired_reason"`
	ChannelChatID    sql.NullInt64 `db:"channel_chat_id"`
	ChannelMessageID sql.NullInt64 `db:"channel_message_id"`
}

const postColumns = `post_id, owner_id, from_city, to_city, categories, departure_date, urgency,
	weight, description, photo_ref, status, created_at, expires_at, completed_at, cancelled_at,
	expired_at, expired_reason, channel_chat_id, channel_message_id`

func tableFor(kind domain.Kind) (string, error) {
	switch kind {
	case domain.KindTravel:
		return "travel_plans", nil
	case domain.KindFavor:
		return "favor_requests", nil
	}
	return "", fmt.Errorf("kind %q: %w", kind, domain.ErrValidation)
}

func nullMillis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(t), Valid: true}
}

func timeFrom(n sql.NullInt64) time.Time {
	if !n.Valid {
		return time.Time{}
	}
	return fromMillis(n.Int64)
}

func joinCategories(cs []domain.Category) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

func splitCategories(s string) []domain.Category {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]domain.Category, 0, len(parts))
	for _, p := range parts {
		out = append(out, domain.Category(p))
	}
	return out
}

func (r postRow) toDomain(kind domain.Kind) domain.Post {
	p := domain.Post{
		ID:            r.PostID,
		Kind:          kind,
		OwnerID:       r.OwnerID,
		Route:         domain.Route{From: domain.City(r.FromCity), To: domain.City(r.ToCity)},
		Categories:    splitCategories(r.Categories),
		DepartureDate: timeFrom(r.DepartureDate),
		Urgency:       domain.Urgency(r.Urgency),
		Weight:        r.Weight,
		Description:   r.Description,
		PhotoRef:      r.PhotoRef,
		Status:        domain.Status(r.Status),
		CreatedAt:     fromMillis(r.CreatedAt),
		ExpiresAt:     fromMillis(r.ExpiresAt),
		CompletedAt:   timeFrom(r.CompletedAt),
		CancelledAt:   timeFrom(r.CancelledAt),
		ExpiredAt:     timeFrom(r.ExpiredAt),
		ExpiredReason: r.ExpiredReason,
	}
	if r.ChannelChatID.Valid && r.ChannelMessageID.Valid {
		p.Channel = domain.ChannelRef{ChatID: r.ChannelChatID.Int64, MessageID: int(r.ChannelMessageID.Int64)}
	}
	return p
}

func (s *Store) InsertPost(ctx context.Context, p domain.Post) error {
	table, err := tableFor(p.Kind)
	if err != nil {
		return err
	}
	q := s.db.Rebind(`INSERT INTO ` + table + ` (` + postColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = s.db.ExecContext(ctx, q,
		p.ID, p.OwnerID, string(p.Route.From), string(p.Route.To), joinCategories(p.Categories),
		nullMillis(p.DepartureDate), string(p.Urgency), p.Weight, p.Description, p.PhotoRef,
		string(p.Status), toMillis(p.CreatedAt), toMillis(p.ExpiresAt),
		nullMillis(p.CompletedAt), nullMillis(p.CancelledAt), nullMillis(p.ExpiredAt), p.ExpiredReason,
		sql.NullInt64{}, sql.NullInt64{},
	)
	if err != nil {
		return storeErr("insert post", err)
	}
	return nil
}

// GetPost returns domain.ErrNotFound for unknown ids.
func (s *Store) GetPost(ctx context.Context, kind domain.Kind, id string) (domain.Post, error) {
	table, err := tableFor(kind)
	if err != nil {
		return domain.Post{}, err
	}
	var row postRow
	q := s.db.Rebind(`SELECT ` + postColumns + ` FROM ` + table + ` WHERE post_id = ?`)
	if err := s.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Post{}, fmt.Errorf("post %s: %w", id, domain.ErrNotFound)
		}
		return domain.Post{}, storeErr("get post", err)
	}
	return row.toDomain(kind), nil
}

func (s *Store) DeletePost(ctx context.Context, kind domain.Kind, id string) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	q := s.db.Rebind(`DELETE FROM ` + table + ` WHERE post_id = ?`)
	if _, err := s.db.ExecContext(ctx, q, id); err != nil {
		return storeErr("delete post", err)
	}
	return nil
}

// SetChannelRef records the published message once. A second call fails with
// domain.ErrInvalidState.
func (s *Store) SetChannelRef(ctx context.Context, kind domain.Kind, id string, ref domain.ChannelRef) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	q := s.db.Rebind(`UPDATE ` + table + ` SET channel_chat_id = ?, channel_message_id = ?
		WHERE post_id = ? AND channel_message_id IS NULL`)
	res, err := s.db.ExecContext(ctx, q, ref.ChatID, int64(ref.MessageID), id)
	if err != nil {
		return storeErr("set channel ref", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("set channel ref", err)
	}
	if n == 0 {
		if _, err := s.GetPost(ctx, kind, id); err != nil {
			return err
		}
		return fmt.Errorf("post %s already published: %w", id, domain.ErrInvalidState)
	}
	return nil
}

// TransitionPost moves an active post owned by t.ActorID into t.Target. It
// reports false when no active post matched, leaving the row untouched.
func (s *Store) TransitionPost(ctx context.Context, t domain.Transition, at time.Time) (bool, error) {
	table, err := tableFor(t.Kind)
	if err != nil {
		return false, err
	}
	var column string
	switch t.Target {
	case domain.StatusCompleted:
		column = "completed_at"
	case domain.StatusCancelled:
		column = "cancelled_at"
	default:
		return false, fmt.Errorf("target %q: %w", t.Target, domain.ErrValidation)
	}
	q := s.db.Rebind(`UPDATE ` + table + ` SET status = ?, ` + column + ` = ?
		WHERE post_id = ? AND owner_id = ? AND status = ?`)
	res, err := s.db.ExecContext(ctx, q, string(t.Target), toMillis(at), t.PostID, t.ActorID, string(domain.StatusActive))
	if err != nil {
		return false, storeErr("transition post", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("transition post", err)
	}
	return n == 1, nil
}

// ListActive returns active posts of kind, oldest first.
func (s *Store) ListActive(ctx context.Context, kind domain.Kind) ([]domain.Post, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	q := s.db.Rebind(`SELECT ` + postColumns + ` FROM ` + table + ` WHERE status = ? ORDER BY created_at, post_id`)
	return s.selectPosts(ctx, kind, "list active", q, string(domain.StatusActive))
}

// ListOwned returns the newest posts of ownerID, up to limit (0 means 20).
func (s *Store) ListOwned(ctx context.Context, ownerID int64, kind domain.Kind, limit int) ([]domain.Post, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	q := s.db.Rebind(`SELECT ` + postColumns + ` FROM ` + table + ` WHERE owner_id = ? ORDER BY created_at DESC, post_id LIMIT ?`)
	return s.selectPosts(ctx, kind, "list owned", q, ownerID, limit)
}

func (s *Store) selectPosts(ctx context.Context, kind domain.Kind, op, q string, args ...any) ([]domain.Post, error) {
	var rows []postRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, storeErr(op, err)
	}
	out := make([]domain.Post, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain(kind))
	}
	return out, nil
}

// ExpirePosts applies batch in a single transaction. Every update is
// conditional on the post still being active; the returned slice lists the
// expirations that took effect. Any error rolls back the whole batch.
func (s *Store) ExpirePosts(ctx context.Context, batch []domain.Expiration) ([]domain.Expiration, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, storeErr("expire posts: begin", err)
	}
	applied, err := expireInTx(ctx, tx, batch)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr("expire posts: commit", err)
	}
	return applied, nil
}

func expireInTx(ctx context.Context, tx *sqlx.Tx, batch []domain.Expiration) ([]domain.Expiration, error) {
	applied := make([]domain.Expiration, 0, len(batch))
	for _, e := range batch {
		table, err := tableFor(e.Kind)
		if err != nil {
			return nil, err
		}
		q := tx.Rebind(`UPDATE ` + table + ` SET status = ?, expired_at = ?, expired_reason = ?
			WHERE post_id = ? AND status = ?`)
		res, err := tx.ExecContext(ctx, q, string(domain.StatusExpired), toMillis(e.At), e.Reason, e.PostID, string(domain.StatusActive))
		if err != nil {
			return nil, storeErr("expire post "+e.PostID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, storeErr("expire post "+e.PostID, err)
		}
		if n == 1 {
			applied = append(applied, e)
		}
	}
	return applied, nil
}

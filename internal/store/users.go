package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/KyawPh/luu-kyone-bot-sub000/internal/domain"
)

type userRow struct {
	ID                  int64   `db:"id"`
	DisplayName         string  `db:"display_name"`
	Handle              string  `db:"handle"`
	JoinedAt            int64   `db:"joined_at"`
	LastActiveAt        int64   `db:"last_active_at"`
	IsPremium           bool    `db:"is_premium"`
	CompletedFavorCount int     `db:"completed_favor_count"`
	Rating              float64 `db:"rating"`
	ChannelMember       bool    `db:"channel_member"`
	NotifyNewPosts      bool    `db:"notify_new_posts"`
	NotifyDailySummary  bool    `db:"notify_daily_summary"`
}

const userColumns = `id, display_name, handle, joined_at, last_active_at, is_premium,
	completed_favor_count, rating, channel_member, notify_new_posts, notify_daily_summary`

func (r userRow) toDomain() domain.User {
	return domain.User{
		ID:                  r.ID,
		DisplayName:         r.DisplayName,
		Handle:              r.Handle,
		JoinedAt:            fromMillis(r.JoinedAt),
		LastActiveAt:        fromMillis(r.LastActiveAt),
		IsPremium:           r.IsPremium,
		CompletedFavorCount: r.CompletedFavorCount,
		Rating:              r.Rating,
		ChannelMember:       r.ChannelMember,
		Notifications: domain.NotificationSettings{
			NewPosts:     r.NotifyNewPosts,
			DailySummary: r.NotifyDailySummary,
		},
	}
}

// GetUser returns domain.ErrNotFound for users that never onboarded.
func (s *Store) GetUser(ctx context.Context, id int64) (domain.User, error) {
	var row userRow
	q := s.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE id = ?`)
	if err := s.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, fmt.Errorf("user %d: %w", id, domain.ErrNotFound)
		}
		return domain.User{}, storeErr("get user", err)
	}
	return row.toDomain(), nil
}

// UpsertUser creates the user on first onboarding. Later calls refresh the
// profile fields and membership flag but keep joined_at, counters and settings.
func (s *Store) UpsertUser(ctx context.Context, u domain.User) error {
	q := s.db.Rebind(`INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			display_name = excluded.display_name,
			handle = excluded.handle,
			last_active_at = excluded.last_active_at,
			is_premium = excluded.is_premium,
			channel_member = excluded.channel_member`)
	_, err := s.db.ExecContext(ctx, q,
		u.ID, u.DisplayName, u.Handle, toMillis(u.JoinedAt), toMillis(u.LastActiveAt), u.IsPremium,
		u.CompletedFavorCount, u.Rating, u.ChannelMember, u.Notifications.NewPosts, u.Notifications.DailySummary,
	)
	if err != nil {
		return storeErr("upsert user", err)
	}
	return nil
}

// TouchUser bumps last_active_at; unknown users are ignored.
func (s *Store) TouchUser(ctx context.Context, id int64, at time.Time) error {
	q := s.db.Rebind(`UPDATE users SET last_active_at = ? WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, q, toMillis(at), id); err != nil {
		return storeErr("touch user", err)
	}
	return nil
}

func (s *Store) NotificationSettings(ctx context.Context, id int64) (domain.NotificationSettings, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return domain.NotificationSettings{}, err
	}
	return u.Notifications, nil
}

func (s *Store) SetNotificationSettings(ctx context.Context, id int64, ns domain.NotificationSettings) error {
	q := s.db.Rebind(`UPDATE users SET notify_new_posts = ?, notify_daily_summary = ? WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, q, ns.NewPosts, ns.DailySummary, id)
	if err != nil {
		return storeErr("set notification settings", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListSubscribers returns ids of channel members that enabled topic.
func (s *Store) ListSubscribers(ctx context.Context, topic Topic) ([]int64, error) {
	var column string
	switch topic {
	case TopicNewPosts:
		column = "notify_new_posts"
	case TopicDailySummary:
		column = "notify_daily_summary"
	default:
		return nil, fmt.Errorf("topic %q: %w", topic, domain.ErrValidation)
	}
	var ids []int64
	q := s.db.Rebind(`SELECT id FROM users WHERE channel_member = ? AND ` + column + ` = ? ORDER BY id`)
	if err := s.db.SelectContext(ctx, &ids, q, true, true); err != nil {
		return nil, storeErr("list subscribers", err)
	}
	return ids, nil
}

// Package store persists users, posts and connections on top of sqlx. The
// same SQL runs on PostgreSQL (lib/pq) and SQLite (modernc.org/sqlite):
// timestamps are unix milliseconds and queries use ? placeholders rebound
// per driver.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/KyawPh/luu-kyone-bot-sub000/internal/domain"
)

// Users persists onboarded users.
type Users interface {
	GetUser(ctx context.Context, id int64) (domain.User, error)
	UpsertUser(ctx context.Context, u domain.User) error
	TouchUser(ctx context.Context, id int64, at time.Time) error
	NotificationSettings(ctx context.Context, id int64) (domain.NotificationSettings, error)
	SetNotificationSettings(ctx context.Context, id int64, s domain.NotificationSettings) error
	ListSubscribers(ctx context.Context, topic Topic) ([]int64, error)
}

// Posts persists travel plans and favor requests.
type Posts interface {
	InsertPost(ctx context.Context, p domain.Post) error
	GetPost(ctx context.Context, kind domain.Kind, id string) (domain.Post, error)
	DeletePost(ctx context.Context, kind domain.Kind, id string) error
	SetChannelRef(ctx context.Context, kind domain.Kind, id string, ref domain.ChannelRef) error
	TransitionPost(ctx context.Context, t domain.Transition, at time.Time) (bool, error)
	ListActive(ctx context.Context, kind domain.Kind) ([]domain.Post, error)
	ListOwned(ctx context.Context, ownerID int64, kind domain.Kind, limit int) ([]domain.Post, error)
	ExpirePosts(ctx context.Context, batch []domain.Expiration) ([]domain.Expiration, error)
}

// Connections persists introduction records.
type Connections interface {
	FindConnection(ctx context.Context, requesterID, posterID int64, postID string) (domain.Connection, bool, error)
	InsertConnection(ctx context.Context, c domain.Connection) error
	DeleteConnection(ctx context.Context, id string) error
}

// Topic selects a notification setting when listing subscribers.
type Topic string

const (
	TopicNewPosts     Topic = "new_posts"
	TopicDailySummary Topic = "daily_summary"
)

// Store implements Users, Posts and Connections.
type Store struct {
	db *sqlx.DB
}

var (
	_ Users       = (*Store)(nil)
	_ Posts       = (*Store)(nil)
	_ Connections = (*Store)(nil)
)

// New wraps an open database whose schema is already migrated.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Ping checks the underlying connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreFailure, err)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}

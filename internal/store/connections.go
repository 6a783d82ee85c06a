package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/KyawPh/luu-kyone-bot-sub000/internal/domain"
)

type connectionRow struct {
	ID          string `db:"id"`
	RequesterID int64  `db:"requester_id"`
	PosterID    int64  `db:"poster_id"`
	PostID      string `db:"post_id"`
	Kind        string `db:"kind"`
	Status      string `db:"status"`
	CreatedAt   int64  `db:"created_at"`
}

func (s *Store) FindConnection(ctx context.Context, requesterID, posterID int64, postID string) (domain.Connection, bool, error) {
	var row connectionRow
	q := s.db.Rebind(`SELECT id, requester_id, poster_id, post_id, kind, status, created_at
		FROM connections WHERE requester_id = ? AND poster_id = ? AND post_id = ?`)
	if err := s.db.GetContext(ctx, &row, q, requesterID, posterID, postID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Connection{}, false, nil
		}
		return domain.Connection{}, false, storeErr("find connection", err)
	}
	return domain.Connection{
		ID:          row.ID,
		RequesterID: row.RequesterID,
		PosterID:    row.PosterID,
		PostID:      row.PostID,
		Kind:        domain.Kind(row.Kind),
		Status:      row.Status,
		CreatedAt:   fromMillis(row.CreatedAt),
	}, true, nil
}

// InsertConnection maps a unique index violation on the
// (requester, poster, post) triple to domain.ErrAlreadyContacted.
func (s *Store) InsertConnection(ctx context.Context, c domain.Connection) error {
	q := s.db.Rebind(`INSERT INTO connections (id, requester_id, poster_id, post_id, kind, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q, c.ID, c.RequesterID, c.PosterID, c.PostID, string(c.Kind), c.Status, toMillis(c.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("connection %d→%d on %s: %w", c.RequesterID, c.PosterID, c.PostID, domain.ErrAlreadyContacted)
		}
		return storeErr("insert connection", err)
	}
	return nil
}

func (s *Store) DeleteConnection(ctx context.Context, id string) error {
	q := s.db.Rebind(`DELETE FROM connections WHERE id = ?`)
	if _, err := s.db.ExecContext(ctx, q, id); err != nil {
		return storeErr("delete connection", err)
	}
	return nil
}

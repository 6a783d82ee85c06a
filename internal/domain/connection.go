package domain

import "time"

// ConnectionIntroduced is the only connection status written by the broker.
const ConnectionIntroduced = "introduced"

// Connection records a one-time introduction between requester and poster.
type Connection struct {
	ID          string
	RequesterID int64
	PosterID    int64
	PostID      string
	Kind        Kind
	CreatedAt   time.Time
	Status      string
}

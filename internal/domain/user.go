package domain

import (
	"fmt"
	"time"
)

// NotificationSettings are the per-user toggles edited in the settings flow.
type NotificationSettings struct {
	NewPosts     bool
	DailySummary bool
}

// DefaultNotificationSettings is applied on onboarding.
var DefaultNotificationSettings = NotificationSettings{NewPosts: true, DailySummary: true}

// User is an onboarded bot user.
type User struct {
	ID                  int64
	DisplayName         string
	Handle              string
	JoinedAt            time.Time
	LastActiveAt        time.Time
	IsPremium           bool
	CompletedFavorCount int
	Rating              float64
	ChannelMember       bool
	Notifications       NotificationSettings
}

// ContactLink renders @handle when the user has a username, otherwise a
// tg://user deep link.
func (u User) ContactLink() string {
	if u.Handle != "" {
		return "@" + u.Handle
	}
	return fmt.Sprintf("tg://user?id=%d", u.ID)
}

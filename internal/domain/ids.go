package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewPostID allocates a human-referenceable id such as T-261016-3FA9C2.
func NewPostID(kind Kind, now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return kind.Prefix() + "-" + now.Format("060102") + "-" + suffix
}

// NewConnectionID allocates a connection id.
func NewConnectionID() string {
	return uuid.NewString()
}

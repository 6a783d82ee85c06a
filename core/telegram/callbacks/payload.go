package callbacks

import (
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// PayloadParts splits the callback payload into exactly n parts using sep.
func PayloadParts(c tele.Context, sep string, n int) ([]string, error) {
	p := CallbackPayload(c)
	if p == "" {
		return nil, strconv.ErrSyntax
	}
	parts := strings.SplitN(p, sep, n)
	if len(parts) != n {
		return nil, strconv.ErrSyntax
	}
	for _, part := range parts {
		if part == "" {
			return nil, strconv.ErrSyntax
		}
	}
	return parts, nil
}

// Data joins payload parts with sep, the inverse of PayloadParts.
func Data(sep string, parts ...string) string {
	return strings.Join(parts, sep)
}

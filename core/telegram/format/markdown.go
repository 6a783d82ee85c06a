package format

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// MarkdownV1 denotes Telegram markdown version 1.
	MarkdownV1 = 1
	// MarkdownV2 denotes Telegram markdown version 2.
	MarkdownV2 = 2
)

var (
	mdV1Re     = regexp.MustCompile("([_*`\\[])")
	mdV2Re     = regexp.MustCompile("([_*\\[\\]()~`>#+=|{}.!\\\\-])")
	mdV2CodeRe = regexp.MustCompile("([`\\\\])")
)

// EscapeMarkdown escapes special characters for MarkdownV1 or V2. For V2,
// entityType "code" or "pre" escapes only backtick and backslash, as Telegram
// requires inside those entities.
func EscapeMarkdown(text string, version int, entityType string) (string, error) {
	switch version {
	case MarkdownV1:
		return mdV1Re.ReplaceAllString(text, `\$1`), nil
	case MarkdownV2:
		switch strings.ToLower(entityType) {
		case "code", "pre":
			return mdV2CodeRe.ReplaceAllString(text, `\$1`), nil
		}
		return mdV2Re.ReplaceAllString(text, `\$1`), nil
	}
	return "", fmt.Errorf("unsupported markdown version: %d", version)
}

// V2 escapes text for plain MarkdownV2 content.
func V2(text string) string {
	out, _ := EscapeMarkdown(text, MarkdownV2, "")
	return out
}

// Bold wraps escaped text in MarkdownV2 bold markers.
func Bold(text string) string {
	return "*" + V2(text) + "*"
}

// Code wraps text in a MarkdownV2 inline code entity.
func Code(text string) string {
	out, _ := EscapeMarkdown(text, MarkdownV2, "code")
	return "`" + out + "`"
}
